package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/ashita-ai/compass/internal/consensus"
)

func TestRecordQueryTracksSuccessAndVerdict(t *testing.T) {
	r := New()
	r.RecordQuery(true, 50*time.Millisecond, consensus.VerdictUnanimous)
	r.RecordQuery(false, 10*time.Millisecond, consensus.VerdictNoConsensus)
	r.RecordQuery(true, 80*time.Millisecond, consensus.VerdictSplit)

	snap := r.Snapshot()
	if snap.QueriesTotal != 3 {
		t.Errorf("QueriesTotal = %d, want 3", snap.QueriesTotal)
	}
	if snap.SuccessfulTotal != 2 {
		t.Errorf("SuccessfulTotal = %d, want 2", snap.SuccessfulTotal)
	}
	if snap.FailedTotal != 1 {
		t.Errorf("FailedTotal = %d, want 1", snap.FailedTotal)
	}
	if snap.UnanimousTotal != 1 || snap.SplitTotal != 1 || snap.NoConsensusTotal != 1 {
		t.Errorf("snapshot = %+v, want one of each verdict", snap)
	}
}

func TestRecordRequestIncrementsIndependently(t *testing.T) {
	r := New()
	r.RecordRequest()
	r.RecordRequest()

	if snap := r.Snapshot(); snap.RequestsTotal != 2 {
		t.Errorf("RequestsTotal = %d, want 2", snap.RequestsTotal)
	}
}

func TestWriteExpositionIncludesAllCounters(t *testing.T) {
	r := New()
	r.RecordQuery(true, time.Millisecond, consensus.VerdictUnanimous)
	r.RecordRequest()

	var sb strings.Builder
	if err := r.WriteExposition(&sb); err != nil {
		t.Fatalf("WriteExposition() error = %v", err)
	}
	out := sb.String()

	for _, name := range []string{
		"compass_queries_total 1",
		"compass_successful_total 1",
		"compass_failed_total 0",
		"compass_requests_total 1",
		"compass_consensus_unanimous_total 1",
		"compass_consensus_split_total 0",
		"compass_consensus_no_consensus_total 0",
	} {
		if !strings.Contains(out, name) {
			t.Errorf("exposition missing %q, got:\n%s", name, out)
		}
	}
}
