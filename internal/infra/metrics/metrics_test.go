package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder_Refinements(t *testing.T) {
	r := New()

	r.RefinementIssued("skip")
	r.RefinementIssued("like")
	assert.InDelta(t, 2, testutil.ToFloat64(r.inFlight), 1e-9)

	r.RefinementFinished("skip", 10, nil)
	r.RefinementFinished("like", 0, errors.New("boom"))

	assert.InDelta(t, 0, testutil.ToFloat64(r.inFlight), 1e-9)
	assert.InDelta(t, 1, testutil.ToFloat64(r.refinements.WithLabelValues("skip", "ok")), 1e-9)
	assert.InDelta(t, 1, testutil.ToFloat64(r.refinements.WithLabelValues("like", "error")), 1e-9)
	assert.InDelta(t, 10, testutil.ToFloat64(r.appended.WithLabelValues("skip")), 1e-9)
}

func TestRecorder_Counters(t *testing.T) {
	r := New()

	r.MetadataResolved(nil)
	r.MetadataResolved(nil)
	r.MetadataResolved(errors.New("timeout"))
	r.AutoAdvanced()
	r.EngineCommandFailed("seek")
	r.QueueLength(23)

	assert.InDelta(t, 2, testutil.ToFloat64(r.metadata.WithLabelValues("ok")), 1e-9)
	assert.InDelta(t, 1, testutil.ToFloat64(r.metadata.WithLabelValues("error")), 1e-9)
	assert.InDelta(t, 1, testutil.ToFloat64(r.autoAdvances), 1e-9)
	assert.InDelta(t, 1, testutil.ToFloat64(r.engineFailures.WithLabelValues("seek")), 1e-9)
	assert.InDelta(t, 23, testutil.ToFloat64(r.queueLength), 1e-9)
}

func TestRecorder_Handler(t *testing.T) {
	r := New()
	r.QueueLength(5)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "moodbox_queue_length 5")
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestNew_IndependentRegistries(t *testing.T) {
	a := New()
	b := New()
	a.AutoAdvanced()

	assert.InDelta(t, 1, testutil.ToFloat64(a.autoAdvances), 1e-9)
	assert.InDelta(t, 0, testutil.ToFloat64(b.autoAdvances), 1e-9)
}
