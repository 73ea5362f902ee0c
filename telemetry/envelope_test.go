package telemetry

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCollectFillsHostFields(t *testing.T) {
	env := Collect(Options{SDKName: "savegress-go", SDKVersion: "1.0.0", Platform: "go-server"})

	assert.Equal(t, "savegress-go", env.SDKName)
	assert.Equal(t, runtime.GOOS, env.OSName)
	assert.Equal(t, runtime.GOARCH, env.Architecture)
	assert.Equal(t, "go-server", env.Platform)
	assert.Equal(t, "go", env.Language)
	assert.NotEmpty(t, env.RuntimeVersion)
}

func TestPlatformIsNotADuplicateOfOSName(t *testing.T) {
	env := Collect(Options{Platform: "go-server"})
	assert.NotEqual(t, env.OSName, env.Platform)
}

func TestToMapOmitsEmptyOptionalFields(t *testing.T) {
	env := Envelope{SDKName: "x", OSName: "linux", Platform: "go-server", Architecture: "amd64", Language: "go", RuntimeVersion: "go1.24"}
	m := env.ToMap()

	_, hasOSVersion := m["os_version"]
	assert.False(t, hasOSVersion)
	_, hasAppVersion := m["app_version"]
	assert.False(t, hasAppVersion)
	assert.Equal(t, "x", m["sdk_name"])
}
