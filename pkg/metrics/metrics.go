package metrics

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
)

// Metrics exposes in-memory counters for the registrar.
type Metrics struct {
	consumed   atomic.Int64
	requested  atomic.Int64
	registered atomic.Int64
	failed     atomic.Int64
	rejected   atomic.Int64
	skipped    atomic.Int64
	retried    atomic.Int64
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	Consumed   int64 `json:"consumed"`
	Requested  int64 `json:"requested"`
	Registered int64 `json:"registered"`
	Failed     int64 `json:"failed"`
	Rejected   int64 `json:"rejected"`
	Skipped    int64 `json:"skipped"`
	Retried    int64 `json:"retried"`
}

// New returns a zeroed Metrics collector.
func New() *Metrics {
	return &Metrics{}
}

func (m *Metrics) IncConsumed()   { m.consumed.Add(1) }
func (m *Metrics) IncRequested()  { m.requested.Add(1) }
func (m *Metrics) IncRegistered() { m.registered.Add(1) }
func (m *Metrics) IncFailed()     { m.failed.Add(1) }
func (m *Metrics) IncRejected()   { m.rejected.Add(1) }
func (m *Metrics) IncSkipped()    { m.skipped.Add(1) }
func (m *Metrics) IncRetried()    { m.retried.Add(1) }

func (m *Metrics) Snapshot() Snapshot {
	return Snapshot{
		Consumed:   m.consumed.Load(),
		Requested:  m.requested.Load(),
		Registered: m.registered.Load(),
		Failed:     m.failed.Load(),
		Rejected:   m.rejected.Load(),
		Skipped:    m.skipped.Load(),
		Retried:    m.retried.Load(),
	}
}

// Handler serves the counters as JSON.
func (m *Metrics) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(m.Snapshot())
	})
}
