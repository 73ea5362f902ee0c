package deviceid

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeriveIsStableAcrossCalls(t *testing.T) {
	first, err := Derive()
	if err != nil {
		t.Skipf("no stable host attributes available in this environment: %v", err)
	}
	second, err := Derive()
	assert.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Len(t, first, 32)
}

func TestDeriveWithFallbackNeverPanicsAndIsStable(t *testing.T) {
	first := DeriveWithFallback()
	second := DeriveWithFallback()
	assert.Equal(t, first, second)
}

func TestKubernetesDeviceIDRequiresAtLeastOneAttribute(t *testing.T) {
	t.Setenv("POD_NAME", "")
	t.Setenv("POD_NAMESPACE", "")
	t.Setenv("NODE_NAME", "")
	assert.Empty(t, kubernetesDeviceID())

	t.Setenv("POD_NAME", "worker-0")
	assert.NotEmpty(t, kubernetesDeviceID())
}

func TestIsKubernetesReflectsEnvVar(t *testing.T) {
	t.Setenv("KUBERNETES_SERVICE_HOST", "")
	t.Setenv("KUBERNETES_SERVICE_HOST", "10.0.0.1")
	assert.True(t, IsKubernetes())
}
