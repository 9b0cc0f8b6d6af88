package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_IndependentRegistries(t *testing.T) {
	a := NewCollector("lens")
	b := NewCollector("lens")
	assert.NotSame(t, a.GetRegistry(), b.GetRegistry())
}

func TestCollector_RecordsReconcile(t *testing.T) {
	c := NewCollector("lens")
	c.ObserveReconcile("append", "preserve", 3, 1, 2*time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.Reconciles.WithLabelValues("append", "preserve")))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.ElementsAdded))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.ElementsRemoved))
}

func TestCollector_SaveStatus(t *testing.T) {
	c := NewCollector("lens")
	c.ObserveSave(nil)
	c.ObserveSave(errors.New("disk full"))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Saves.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Saves.WithLabelValues("error")))
}

func TestCollector_NilSafe(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.ObserveHTTP("GET", "/health", 200, time.Millisecond)
		c.ObserveHistory("undo", "add")
		c.SetHistoryDepth("s", 1, 0)
		c.ObservePaths("dfs", false, 2, time.Millisecond)
	})
}

func TestCollector_Handler(t *testing.T) {
	c := NewCollector("lens")
	c.SetSessions(2)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "lens_sessions 2"))
}
