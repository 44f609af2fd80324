package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRegister_ReusesExisting(t *testing.T) {
	r := NewRegistry()
	opts := prometheus.CounterOpts{Namespace: Namespace, Name: "things_total", Help: "things"}

	a := Register(r.Registerer(), prometheus.NewCounter(opts))
	b := Register(r.Registerer(), prometheus.NewCounter(opts))
	a.Inc()
	b.Inc()

	assert.Equal(t, 2.0, testutil.ToFloat64(a))
}

func TestRegister_NilRegisterer(t *testing.T) {
	c := Register(nil, prometheus.NewCounter(prometheus.CounterOpts{Name: "x", Help: "x"}))
	c.Inc()
	assert.Equal(t, 1.0, testutil.ToFloat64(c))
}

func TestHandler(t *testing.T) {
	r := NewRegistry()
	Register(r.Registerer(), prometheus.NewCounter(prometheus.CounterOpts{Namespace: Namespace, Name: "hits_total", Help: "hits"})).Inc()

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "projsearch_hits_total 1")
}
