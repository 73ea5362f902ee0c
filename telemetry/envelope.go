// Package telemetry builds the optional envelope attached to activate,
// validate, and heartbeat requests when telemetry is enabled (spec §6). It
// is adapted from the teacher's pkg/license.TelemetryEvent/UsageCollector:
// the teacher's event shape is domain metrics (events/bytes processed,
// table counts) for a data pipeline product, which this runtime has no
// use for; what's kept is its collector role, repurposed to collect and
// serialize the spec's host-environment envelope instead. Nothing is
// buffered or sent from here: the envelope rides on the adapter's requests.
package telemetry

import (
	"os"
	"runtime"
	"time"
)

// Envelope is attached to activate/validate/heartbeat request bodies when
// telemetry is enabled. Optional fields are omitted on the wire when empty;
// sdk_name, sdk_version, os_name, platform, architecture, cpu_cores,
// language and runtime_version are always sent.
type Envelope struct {
	SDKName        string   `json:"sdk_name"`
	SDKVersion     string   `json:"sdk_version"`
	OSName         string   `json:"os_name"`
	OSVersion      string   `json:"os_version,omitempty"`
	Platform       string   `json:"platform"`
	DeviceModel    string   `json:"device_model,omitempty"`
	DeviceType     string   `json:"device_type,omitempty"`
	Architecture   string   `json:"architecture"`
	CPUCores       int      `json:"cpu_cores"`
	MemoryGB       *float64 `json:"memory_gb,omitempty"`
	Locale         string   `json:"locale,omitempty"`
	Timezone       string   `json:"timezone,omitempty"`
	Language       string   `json:"language"`
	RuntimeVersion string   `json:"runtime_version"`
	AppVersion     string   `json:"app_version,omitempty"`
	AppBuild       string   `json:"app_build,omitempty"`
}

// Options carries the SDK, platform and app version/build identifiers
// that Collect cannot infer from the host; the host-derived fields are not
// overridable. Platform
// identifies the embedding runtime itself (e.g. "go-server") — it is
// deliberately NOT a copy of OSName (spec §6).
type Options struct {
	SDKName    string
	SDKVersion string
	Platform   string
	AppVersion string
	AppBuild   string
}

// Collect builds an Envelope from the current host environment plus the
// caller-supplied SDK/app identifiers.
func Collect(opts Options) Envelope {
	env := Envelope{
		SDKName:        opts.SDKName,
		SDKVersion:     opts.SDKVersion,
		OSName:         runtime.GOOS,
		Platform:       opts.Platform,
		Architecture:   runtime.GOARCH,
		CPUCores:       runtime.NumCPU(),
		Language:       "go",
		RuntimeVersion: runtime.Version(),
		AppVersion:     opts.AppVersion,
		AppBuild:       opts.AppBuild,
	}

	env.Timezone = time.Local.String()

	if lang := os.Getenv("LANG"); lang != "" {
		env.Locale = lang
	}

	return env
}

// ToMap converts the envelope to a JSON-ready map, suitable for embedding
// under the "telemetry" key in an apiadapter request body.
func (e Envelope) ToMap() map[string]any {
	m := map[string]any{
		"sdk_name":        e.SDKName,
		"sdk_version":     e.SDKVersion,
		"os_name":         e.OSName,
		"platform":        e.Platform,
		"architecture":    e.Architecture,
		"cpu_cores":       e.CPUCores,
		"language":        e.Language,
		"runtime_version": e.RuntimeVersion,
	}
	if e.OSVersion != "" {
		m["os_version"] = e.OSVersion
	}
	if e.DeviceModel != "" {
		m["device_model"] = e.DeviceModel
	}
	if e.DeviceType != "" {
		m["device_type"] = e.DeviceType
	}
	if e.MemoryGB != nil {
		m["memory_gb"] = *e.MemoryGB
	}
	if e.Locale != "" {
		m["locale"] = e.Locale
	}
	if e.Timezone != "" {
		m["timezone"] = e.Timezone
	}
	if e.AppVersion != "" {
		m["app_version"] = e.AppVersion
	}
	if e.AppBuild != "" {
		m["app_build"] = e.AppBuild
	}
	return m
}
