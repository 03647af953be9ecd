package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.DocHashed()
		m.SetOutstanding(3)
		m.CacheHit("lru")
		m.CacheMiss()
		m.DocsBanded(1, 1)
		m.ClusterFormed(2, "random")
		m.ObserveStage("hash", 0.1)
		m.SinkWrite("file", nil)
	})
}

func TestRecorders(t *testing.T) {
	m := New()
	m.DocHashed()
	m.DocHashed()
	m.CacheHit("redis")
	m.ClusterFormed(4, "queue")
	m.SinkWrite("postgres", errors.New("down"))

	body := scrape(t, m)
	assert.Contains(t, body, "kwikdedup_docs_hashed_total 2")
	assert.Contains(t, body, `kwikdedup_signature_cache_hits_total{layer="redis"} 1`)
	assert.Contains(t, body, `kwikdedup_pivots_total{source="queue"} 1`)
	assert.Contains(t, body, `kwikdedup_sink_writes_total{sink="postgres",status="error"} 1`)
}

func TestNewTwiceDoesNotPanic(t *testing.T) {
	assert.NotPanics(t, func() {
		New()
		New()
	})
}

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	return rec.Body.String()
}

func TestHandlerServesRegistry(t *testing.T) {
	m := New()
	m.DocHashed()
	assert.True(t, strings.Contains(scrape(t, m), "kwikdedup_docs_hashed_total 1"))
}
