// Command savegress-inspectord is a thin read-only local HTTP daemon that
// exposes a running process's Session Core state over loopback HTTP, for
// the "inspector window" host surface the spec calls out as out of scope
// for the runtime itself. It is deliberately minimal: one Core, no auth
// beyond loopback binding, JSON GETs only.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/rs/zerolog"

	"github.com/savegress/license-runtime/cachestore"
	"github.com/savegress/license-runtime/runtimeconfig"
	"github.com/savegress/license-runtime/session"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:8787", "loopback address to listen on")
	envPrefix := flag.String("env-prefix", "SAVEGRESS_", "environment variable prefix for runtimeconfig.FromEnv")
	storageFile := flag.String("storage-file", "", "path to the sealed on-disk cache file (required)")
	passphrase := flag.String("passphrase", "", "passphrase for the on-disk cache store (required)")
	flag.Parse()

	if *storageFile == "" || *passphrase == "" {
		log.Fatal("savegress-inspectord: -storage-file and -passphrase are required")
	}

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()

	cfg, err := runtimeconfig.FromEnv(*envPrefix)
	if err != nil {
		log.Fatalf("savegress-inspectord: load config: %v", err)
	}

	cfg.Store = cachestore.NewFileStore(*storageFile, *passphrase)
	cfg.Logger = logger
	cfg.AutoInit = true

	core, err := session.New(cfg)
	if err != nil {
		log.Fatalf("savegress-inspectord: start session core: %v", err)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"http://127.0.0.1:*", "http://localhost:*"},
		AllowedMethods: []string{"GET"},
	}))
	r.Use(httprate.LimitByIP(60, time.Minute))

	r.Get("/status", statusHandler(core))
	r.Get("/license", licenseHandler(core))
	r.Get("/entitlements/{key}", entitlementHandler(core))

	srv := &http.Server{
		Addr:         *addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  30 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", *addr).Msg("inspector listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("savegress-inspectord: server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("forced shutdown")
	}
	if err := core.Dispose(); err != nil {
		logger.Error().Err(err).Msg("session core dispose")
	}
}

func statusHandler(core *session.Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"status": core.GetStatus()})
	}
}

func licenseHandler(core *session.Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		lic := core.GetCurrentLicense()
		if lic == nil {
			w.WriteHeader(http.StatusNotFound)
			writeJSON(w, map[string]any{"error": "no cached license"})
			return
		}
		writeJSON(w, lic)
	}
}

func entitlementHandler(core *session.Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := chi.URLParam(r, "key")
		writeJSON(w, core.CheckEntitlement(key))
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
