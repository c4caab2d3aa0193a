package metrics

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetHealthChecker() {
	healthChecker = &HealthChecker{
		components: make(map[string]ComponentHealth),
		startTime:  time.Now(),
	}
}

func TestRegisterComponent(t *testing.T) {
	resetHealthChecker()

	RegisterComponent("podman/udp", true, "bound 10.88.0.1:53")

	require.Len(t, healthChecker.components, 1)
	comp := healthChecker.components["podman/udp"]
	assert.True(t, comp.Healthy)
	assert.Equal(t, "bound 10.88.0.1:53", comp.Message)
}

func TestGetHealth_AllHealthy(t *testing.T) {
	resetHealthChecker()
	healthChecker.version = "1.0.0"

	RegisterComponent("config", true, "")
	RegisterComponent("podman/udp", true, "")

	health := GetHealth()

	assert.Equal(t, "healthy", health.Status)
	assert.Len(t, health.Components, 2)
	assert.Equal(t, "1.0.0", health.Version)
}

func TestGetHealth_OneUnhealthy(t *testing.T) {
	resetHealthChecker()

	RegisterComponent("config", true, "")
	RegisterComponent("podman/udp", false, "socket closed")

	health := GetHealth()

	assert.Equal(t, "unhealthy", health.Status)
	assert.Equal(t, "unhealthy: socket closed", health.Components["podman/udp"])
}

func TestGetReadiness_AllReady(t *testing.T) {
	resetHealthChecker()
	SetRequiredComponents([]string{"config", "podman/udp", "podman/tcp"})

	RegisterComponent("config", true, "")
	RegisterComponent("podman/udp", true, "")
	RegisterComponent("podman/tcp", true, "")

	readiness := GetReadiness()
	assert.Equal(t, "ready", readiness.Status)
}

func TestGetReadiness_MissingRequiredComponent(t *testing.T) {
	resetHealthChecker()
	SetRequiredComponents([]string{"config", "podman/udp", "podman/tcp"})

	RegisterComponent("config", true, "")
	// podman/udp and podman/tcp not registered yet

	readiness := GetReadiness()
	assert.Equal(t, "not_ready", readiness.Status)
	assert.NotEmpty(t, readiness.Message)
}

func TestGetReadiness_RequiredComponentUnhealthy(t *testing.T) {
	resetHealthChecker()
	SetRequiredComponents([]string{"config", "podman/udp"})

	RegisterComponent("config", true, "")
	RegisterComponent("podman/udp", false, "bind: address already in use")

	readiness := GetReadiness()
	assert.Equal(t, "not_ready", readiness.Status)
}

func TestGetReadiness_NoRequiredComponentsIsReady(t *testing.T) {
	resetHealthChecker()

	readiness := GetReadiness()
	assert.Equal(t, "ready", readiness.Status, "nothing required yet")
}

func TestHealthHandler(t *testing.T) {
	resetHealthChecker()
	healthChecker.version = "test"

	RegisterComponent("config", true, "")

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	HealthHandler()(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var health HealthStatus
	require.NoError(t, json.NewDecoder(w.Body).Decode(&health))
	assert.Equal(t, "healthy", health.Status)
}

func TestHealthHandler_Unhealthy(t *testing.T) {
	resetHealthChecker()

	RegisterComponent("podman/udp", false, "broken")

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	HealthHandler()(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestReadyHandler(t *testing.T) {
	resetHealthChecker()
	SetRequiredComponents([]string{"config", "podman/udp"})
	RegisterComponent("config", true, "")
	RegisterComponent("podman/udp", true, "")

	req := httptest.NewRequest("GET", "/ready", nil)
	w := httptest.NewRecorder()
	ReadyHandler()(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestReadyHandler_NotReady(t *testing.T) {
	resetHealthChecker()
	SetRequiredComponents([]string{"config", "podman/udp"})
	RegisterComponent("config", true, "")

	req := httptest.NewRequest("GET", "/ready", nil)
	w := httptest.NewRecorder()
	ReadyHandler()(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestLivenessHandler(t *testing.T) {
	resetHealthChecker()

	req := httptest.NewRequest("GET", "/live", nil)
	w := httptest.NewRecorder()
	LivenessHandler()(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var response map[string]string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Equal(t, "alive", response["status"])
}

func TestUpdateComponent(t *testing.T) {
	resetHealthChecker()

	RegisterComponent("podman/udp", true, "ok")
	UpdateComponent("podman/udp", false, "error")

	comp := healthChecker.components["podman/udp"]
	assert.False(t, comp.Healthy)
	assert.Equal(t, "error", comp.Message)
}
