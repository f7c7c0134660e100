// Package metrics exposes a small fixed set of Prometheus-text counters
// over GET /metrics. Nothing in the retrieved dependency pack offers a
// pull-based text-exposition client, so this registry is built directly
// on sync/atomic and fmt.Fprintf rather than adapted from a library.
package metrics

import (
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/ashita-ai/compass/internal/consensus"
)

// Registry holds the process-wide counters backing GET /metrics.
type Registry struct {
	queriesTotal    atomic.Int64
	successfulTotal atomic.Int64
	failedTotal     atomic.Int64
	requestsTotal   atomic.Int64

	unanimousTotal   atomic.Int64
	splitTotal       atomic.Int64
	noConsensusTotal atomic.Int64
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{}
}

// RecordRequest counts one inbound HTTP request, regardless of outcome.
func (r *Registry) RecordRequest() {
	r.requestsTotal.Add(1)
}

// RecordQuery implements orchestrator.MetricsRecorder. latency is
// accepted for interface compatibility but not exposed as a counter;
// per-model latency belongs in tracing spans, not this text surface.
func (r *Registry) RecordQuery(success bool, latency time.Duration, verdict consensus.Verdict) {
	r.queriesTotal.Add(1)
	if success {
		r.successfulTotal.Add(1)
	} else {
		r.failedTotal.Add(1)
	}

	switch verdict {
	case consensus.VerdictUnanimous:
		r.unanimousTotal.Add(1)
	case consensus.VerdictSplit:
		r.splitTotal.Add(1)
	case consensus.VerdictNoConsensus:
		r.noConsensusTotal.Add(1)
	}
}

// Snapshot is a point-in-time copy of every counter, used by GET /status.
type Snapshot struct {
	QueriesTotal     int64
	SuccessfulTotal  int64
	FailedTotal      int64
	RequestsTotal    int64
	UnanimousTotal   int64
	SplitTotal       int64
	NoConsensusTotal int64
}

// Snapshot reads every counter without resetting it.
func (r *Registry) Snapshot() Snapshot {
	return Snapshot{
		QueriesTotal:     r.queriesTotal.Load(),
		SuccessfulTotal:  r.successfulTotal.Load(),
		FailedTotal:      r.failedTotal.Load(),
		RequestsTotal:    r.requestsTotal.Load(),
		UnanimousTotal:   r.unanimousTotal.Load(),
		SplitTotal:       r.splitTotal.Load(),
		NoConsensusTotal: r.noConsensusTotal.Load(),
	}
}

// WriteExposition writes the Prometheus text-exposition format for every
// counter to w.
func (r *Registry) WriteExposition(w io.Writer) error {
	snap := r.Snapshot()
	counters := []struct {
		name  string
		help  string
		value int64
	}{
		{"compass_queries_total", "Total jury queries executed.", snap.QueriesTotal},
		{"compass_successful_total", "Jury queries with at least one successful model or a non-no_consensus verdict.", snap.SuccessfulTotal},
		{"compass_failed_total", "Jury queries where every model failed and no consensus was reached.", snap.FailedTotal},
		{"compass_requests_total", "Total inbound HTTP requests.", snap.RequestsTotal},
		{"compass_consensus_unanimous_total", "Queries resolved with a unanimous verdict.", snap.UnanimousTotal},
		{"compass_consensus_split_total", "Queries resolved with a split verdict.", snap.SplitTotal},
		{"compass_consensus_no_consensus_total", "Queries resolved with no consensus.", snap.NoConsensusTotal},
	}

	for _, c := range counters {
		if _, err := fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s counter\n%s %d\n", c.name, c.help, c.name, c.name, c.value); err != nil {
			return fmt.Errorf("metrics: write exposition: %w", err)
		}
	}
	return nil
}
