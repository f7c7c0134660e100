package consensus

import "testing"

func TestAggregateUnanimous(t *testing.T) {
	// S1 — three responses all containing the same sentence.
	responses := []ModelResponse{
		{Model: "gpt-4o", Answer: "The answer is Go.", Success: true},
		{Model: "claude-3-5-sonnet", Answer: "The answer is Go.", Success: true},
		{Model: "gemini-1.5-pro", Answer: "The answer is Go.", Success: true},
	}
	result := Aggregate(responses)

	if result.Verdict != VerdictUnanimous {
		t.Fatalf("Verdict = %v, want unanimous", result.Verdict)
	}
	if result.Confidence != ConfidenceHigh {
		t.Errorf("Confidence = %v, want high", result.Confidence)
	}
	if result.Score < 0.90 {
		t.Errorf("Score = %v, want >= 0.90", result.Score)
	}
	if result.Representative == nil {
		t.Fatal("Representative is nil")
	}
	if result.Representative.Model != "gpt-4o" {
		t.Errorf("Representative = %v, want first index (gpt-4o)", result.Representative.Model)
	}
	if result.Dissenter != nil {
		t.Errorf("Dissenter = %+v, want absent", result.Dissenter)
	}
}

func TestAggregateSplit(t *testing.T) {
	// S2 — two responses are word-for-word identical ("Rust"-flavored
	// answers agreeing on all of their wording); the third keeps the shared
	// opening but diverges on the rest, pulling mean agreement down into
	// the split band without collapsing it to no_consensus.
	responses := []ModelResponse{
		{Model: "a", Answer: "rust gives memory safety thread correctness", Success: true},
		{Model: "b", Answer: "rust gives memory safety thread correctness", Success: true},
		{Model: "c", Answer: "rust gives memory safety thread speed matters most", Success: true},
	}
	result := Aggregate(responses)

	if result.Verdict != VerdictSplit {
		t.Fatalf("Verdict = %v, want split", result.Verdict)
	}
	if result.Confidence != ConfidenceMedium {
		t.Errorf("Confidence = %v, want medium", result.Confidence)
	}
	if result.Score < 0.60 || result.Score >= 0.90 {
		t.Errorf("Score = %v, want in [0.60, 0.90)", result.Score)
	}
	if result.Representative == nil {
		t.Fatal("Representative is nil")
	}
	if result.Representative.Model == "c" {
		t.Errorf("Representative = %v, want one of the similar pair", result.Representative.Model)
	}
	if result.Dissenter == nil {
		t.Fatal("Dissenter is nil, want present")
	}
	if result.Dissenter.Model != "c" {
		t.Errorf("Dissenter = %v, want c", result.Dissenter.Model)
	}
}

func TestAggregateNoConsensus(t *testing.T) {
	// S3 — three unrelated answers on three different topics.
	responses := []ModelResponse{
		{Model: "a", Answer: "Photosynthesis converts sunlight into chemical energy in plants.", Success: true},
		{Model: "b", Answer: "The stock market closed lower today amid inflation fears.", Success: true},
		{Model: "c", Answer: "Mount Everest is the tallest mountain above sea level.", Success: true},
	}
	result := Aggregate(responses)

	if result.Verdict != VerdictNoConsensus {
		t.Fatalf("Verdict = %v, want no_consensus", result.Verdict)
	}
	if result.Confidence != ConfidenceLow {
		t.Errorf("Confidence = %v, want low", result.Confidence)
	}
	if result.Score >= 0.60 {
		t.Errorf("Score = %v, want < 0.60", result.Score)
	}
	if result.Representative == nil {
		t.Error("Representative is nil, want present")
	}
	if result.Dissenter != nil {
		t.Errorf("Dissenter = %+v, want absent", result.Dissenter)
	}
}

func TestAggregatePartialFailure(t *testing.T) {
	// S4 — two succeed, one transport error.
	responses := []ModelResponse{
		{Model: "a", Answer: "The answer is Go.", Success: true},
		{Model: "b", Answer: "The answer is Go.", Success: true},
		{Model: "c", Success: false, Error: "transport error: connection reset"},
	}
	result := Aggregate(responses)

	if len(result.Responses) != 3 {
		t.Fatalf("len(Responses) = %d, want 3", len(result.Responses))
	}
	if result.Responses[2].Success {
		t.Errorf("Responses[2].Success = true, want false")
	}
	if result.Verdict != VerdictUnanimous {
		t.Errorf("Verdict = %v, want unanimous (from the two successes)", result.Verdict)
	}
}

func TestAggregateZeroSuccesses(t *testing.T) {
	responses := []ModelResponse{
		{Model: "a", Success: false, Error: "timeout"},
		{Model: "b", Success: false, Error: "timeout"},
	}
	result := Aggregate(responses)

	if result.Verdict != VerdictNoConsensus {
		t.Errorf("Verdict = %v, want no_consensus", result.Verdict)
	}
	if result.Score != 0 {
		t.Errorf("Score = %v, want 0", result.Score)
	}
	if result.Representative != nil {
		t.Errorf("Representative = %+v, want absent", result.Representative)
	}
	if result.Dissenter != nil {
		t.Errorf("Dissenter = %+v, want absent", result.Dissenter)
	}
}

func TestAggregateSingleSuccess(t *testing.T) {
	responses := []ModelResponse{
		{Model: "a", Answer: "only one answered", Success: true},
		{Model: "b", Success: false, Error: "budget exceeded"},
	}
	result := Aggregate(responses)

	if result.Verdict != VerdictNoConsensus {
		t.Errorf("Verdict = %v, want no_consensus", result.Verdict)
	}
	if result.Score != 0 {
		t.Errorf("Score = %v, want 0", result.Score)
	}
	if result.Representative == nil || result.Representative.Model != "a" {
		t.Errorf("Representative = %+v, want model a", result.Representative)
	}
	if result.Dissenter != nil {
		t.Errorf("Dissenter = %+v, want absent", result.Dissenter)
	}
}

func TestAggregateEmptyButSuccessfulIsCoercedToFailure(t *testing.T) {
	responses := []ModelResponse{
		{Model: "a", Answer: "", Success: true},
		{Model: "b", Answer: "real answer", Success: true},
	}
	result := Aggregate(responses)

	// Only one genuinely usable answer remains, so this degenerates to
	// the single-success case rather than treating "a" as a contributor.
	if result.Verdict != VerdictNoConsensus {
		t.Errorf("Verdict = %v, want no_consensus", result.Verdict)
	}
	if result.Representative == nil || result.Representative.Model != "b" {
		t.Errorf("Representative = %+v, want model b", result.Representative)
	}
}

func TestAggregateScoreInRangeAndVerdictConsistent(t *testing.T) {
	cases := [][]ModelResponse{
		{
			{Model: "a", Answer: "cats are great pets", Success: true},
			{Model: "b", Answer: "dogs are great pets", Success: true},
			{Model: "c", Answer: "the weather today is sunny and warm", Success: true},
		},
		{
			{Model: "a", Answer: "yes", Success: true},
			{Model: "b", Answer: "no", Success: true},
		},
	}
	for _, responses := range cases {
		result := Aggregate(responses)
		if result.Score < 0 || result.Score > 1 {
			t.Errorf("Score = %v, out of [0,1]", result.Score)
		}
		switch result.Verdict {
		case VerdictUnanimous:
			if result.Score < 0.90 {
				t.Errorf("unanimous with score %v < 0.90", result.Score)
			}
		case VerdictSplit:
			if result.Score < 0.60 || result.Score >= 0.90 {
				t.Errorf("split with score %v outside [0.60, 0.90)", result.Score)
			}
		case VerdictNoConsensus:
			if result.Score >= 0.60 {
				t.Errorf("no_consensus with score %v >= 0.60", result.Score)
			}
		}
		if result.Verdict != VerdictSplit && result.Dissenter != nil {
			t.Errorf("dissenter present for verdict %v", result.Verdict)
		}
	}
}
