package metrics

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandlerServesEmptyWhenDisabled(t *testing.T) {
	if IsEnabled() {
		t.Skip("registry already initialized by another test")
	}

	assert.Nil(t, GetRegistry())
	assert.Nil(t, NewHTTPMetrics())
	assert.Nil(t, NewProxyMetrics())

	rr := httptest.NewRecorder()
	Handler().ServeHTTP(rr, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, 200, rr.Code)
}

func TestInitRegistryIdempotent(t *testing.T) {
	InitRegistry()
	require.True(t, IsEnabled())

	reg := GetRegistry()
	require.NotNil(t, reg)

	InitRegistry()
	assert.Same(t, reg, GetRegistry())

	rr := httptest.NewRecorder()
	Handler().ServeHTTP(rr, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, 200, rr.Code)
	assert.Contains(t, rr.Body.String(), "go_goroutines")
}
