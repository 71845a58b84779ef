package metrics

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandlerReportsCounters(t *testing.T) {
	m := New()
	m.IncConsumed()
	m.IncRequested()
	m.IncRegistered()
	m.IncRetried()
	m.IncRetried()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	var snap Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, Snapshot{Consumed: 1, Requested: 1, Registered: 1, Retried: 2}, snap)
}
