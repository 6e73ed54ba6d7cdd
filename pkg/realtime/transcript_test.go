package realtime

import "testing"

func TestTranscriptBufferAssistantDeltas(t *testing.T) {
	t.Parallel()

	var b transcriptBuffer
	b.addAssistantDelta("I ")
	b.addAssistantDelta("hear ")
	b.addAssistantDelta("you.")

	if _, got := b.snapshot(); got != "I hear you." {
		t.Errorf("expected concatenated deltas, got %q", got)
	}
}

func TestTranscriptBufferFinalReplacesDeltas(t *testing.T) {
	t.Parallel()

	var b transcriptBuffer
	b.addAssistantDelta("I hear ")
	b.addAssistantDelta("you")
	b.setAssistantFinal("I hear you.")

	if _, got := b.snapshot(); got != "I hear you." {
		t.Errorf("final must replace accumulated deltas, got %q", got)
	}

	// A straggler delta after the final is stale and must not append.
	b.addAssistantDelta(" (extra)")
	if _, got := b.snapshot(); got != "I hear you." {
		t.Errorf("delta after final must be ignored, got %q", got)
	}
}

func TestTranscriptBufferUserFinalOverwrites(t *testing.T) {
	t.Parallel()

	var b transcriptBuffer
	b.setUserFinal("I feel anxious")
	b.setUserFinal("I feel anxious today")

	if got, _ := b.snapshot(); got != "I feel anxious today" {
		t.Errorf("repeated user final must overwrite, got %q", got)
	}
}

func TestTranscriptBufferFinalize(t *testing.T) {
	t.Parallel()

	var b transcriptBuffer
	b.setUserFinal("hello")
	b.addAssistantDelta("hi there")

	user, assistant := b.finalize()
	if user != "hello" || assistant != "hi there" {
		t.Errorf("finalize returned (%q, %q)", user, assistant)
	}

	// The buffer starts the next turn empty, including the final marker.
	user, assistant = b.snapshot()
	if user != "" || assistant != "" {
		t.Errorf("finalize must reset the buffer, got (%q, %q)", user, assistant)
	}
	b.addAssistantDelta("next turn")
	if _, got := b.snapshot(); got != "next turn" {
		t.Errorf("deltas must accumulate again after finalize, got %q", got)
	}
}

func TestTranscriptBufferReset(t *testing.T) {
	t.Parallel()

	var b transcriptBuffer
	b.setUserFinal("discarded")
	b.setAssistantFinal("also discarded")
	b.reset()

	user, assistant := b.snapshot()
	if user != "" || assistant != "" {
		t.Errorf("reset must clear the buffer, got (%q, %q)", user, assistant)
	}
}

func TestDivergence(t *testing.T) {
	t.Parallel()

	tests := []struct {
		a, b string
		zero bool
	}{
		{"", "", true},
		{"identical", "identical", true},
		{"  padded  ", "padded", true},
		{"completely different", "nothing alike here!!", false},
	}
	for _, tc := range tests {
		d := divergence(tc.a, tc.b)
		if d < 0 || d > 1 {
			t.Errorf("divergence(%q, %q) = %v, out of range", tc.a, tc.b, d)
		}
		if tc.zero && d != 0 {
			t.Errorf("divergence(%q, %q) = %v, expected 0", tc.a, tc.b, d)
		}
		if !tc.zero && d == 0 {
			t.Errorf("divergence(%q, %q) = 0, expected > 0", tc.a, tc.b)
		}
	}
}
