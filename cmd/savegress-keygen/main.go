// Command savegress-keygen is a licensor-side utility: it generates the
// Ed25519 key pair the license service signs with, and signs offline
// tokens for distribution to activated devices. It has no runtime
// dependency on session.Core — it produces the inputs the Session Core
// consumes (a pinned PublicKey, a signed OfflineToken) rather than
// consuming them.
package main

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/savegress/license-runtime/licensemodel"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	switch os.Args[1] {
	case "genkey":
		runGenkey(os.Args[2:])
	case "sign-token":
		runSignToken(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: savegress-keygen <genkey|sign-token> [flags]")
}

func runGenkey(args []string) {
	fs := flag.NewFlagSet("genkey", flag.ExitOnError)
	fs.Parse(args)

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		log.Fatalf("generate key pair: %v", err)
	}

	fmt.Println("=== Savegress offline-signing key pair generated ===")
	fmt.Println()
	fmt.Println("Keep the private key on the license server only.")
	fmt.Println("Distribute the public key to devices via a pinned PublicKey record.")
	fmt.Println()
	fmt.Printf("SAVEGRESS_SIGNING_PRIVATE_KEY=%s\n", base64.StdEncoding.EncodeToString(priv))
	fmt.Printf("SAVEGRESS_SIGNING_PUBLIC_KEY=%s\n", base64.StdEncoding.EncodeToString(pub))
}

func runSignToken(args []string) {
	fs := flag.NewFlagSet("sign-token", flag.ExitOnError)
	privKeyB64 := fs.String("private-key", "", "base64-encoded Ed25519 private key (required)")
	keyID := fs.String("key-id", "", "key_id to embed in the token and signature (required)")
	licenseKey := fs.String("license-key", "", "license key this token is bound to (required)")
	productSlug := fs.String("product-slug", "", "product slug this token is bound to (required)")
	planKey := fs.String("plan-key", "", "plan key to embed")
	mode := fs.String("mode", "", "mode to embed (e.g. trial, full)")
	validDays := fs.Int("valid-days", 30, "days from now until the token expires")
	entitlements := fs.String("entitlements", "", "comma-separated entitlement keys")
	fs.Parse(args)

	if *privKeyB64 == "" || *keyID == "" || *licenseKey == "" || *productSlug == "" {
		fmt.Fprintln(os.Stderr, "sign-token: -private-key, -key-id, -license-key and -product-slug are required")
		os.Exit(2)
	}

	privBytes, err := base64.StdEncoding.DecodeString(*privKeyB64)
	if err != nil || len(privBytes) != ed25519.PrivateKeySize {
		log.Fatalf("invalid -private-key")
	}
	priv := ed25519.PrivateKey(privBytes)

	now := time.Now().UTC()
	body := licensemodel.OfflineTokenBody{
		LicenseKey:    *licenseKey,
		ProductSlug:   *productSlug,
		IssuedAt:      now.Unix(),
		ExpiresAt:     now.AddDate(0, 0, *validDays).Unix(),
		NotBefore:     now.Unix(),
		KeyID:         *keyID,
		SchemaVersion: 1,
		Mode:          *mode,
		PlanKey:       *planKey,
		Entitlements:  parseEntitlements(*entitlements),
	}

	canonical, err := json.Marshal(body)
	if err != nil {
		log.Fatalf("marshal token body: %v", err)
	}

	sig := ed25519.Sign(priv, canonical)
	token := licensemodel.OfflineToken{
		Token: body,
		Signature: licensemodel.TokenSignature{
			Algorithm: "ed25519",
			KeyID:     *keyID,
			Value:     base64.RawURLEncoding.EncodeToString(sig),
		},
		Canonical: string(canonical),
	}

	out, err := json.MarshalIndent(token, "", "  ")
	if err != nil {
		log.Fatalf("marshal token: %v", err)
	}
	fmt.Println(string(out))
}

func parseEntitlements(raw string) []licensemodel.OfflineEntitlement {
	if raw == "" {
		return nil
	}
	var entitlements []licensemodel.OfflineEntitlement
	start := 0
	for i := 0; i <= len(raw); i++ {
		if i == len(raw) || raw[i] == ',' {
			if key := raw[start:i]; key != "" {
				entitlements = append(entitlements, licensemodel.OfflineEntitlement{Key: key})
			}
			start = i + 1
		}
	}
	return entitlements
}
