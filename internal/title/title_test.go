package title

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

// completionJSON builds a minimal chat completion response carrying content.
func completionJSON(content string) string {
	return `{
		"id": "chatcmpl-1",
		"object": "chat.completion",
		"model": "gpt-4o-mini",
		"choices": [{
			"index": 0,
			"message": {"role": "assistant", "content": "` + content + `"},
			"finish_reason": "stop"
		}]
	}`
}

func newTestGenerator(t *testing.T, handler http.HandlerFunc) *Generator {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	g, err := New("sk-test", "", WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return g
}

func TestNew_RequiresAPIKey(t *testing.T) {
	t.Parallel()
	if _, err := New("", "gpt-4o-mini"); err == nil {
		t.Fatal("expected error for empty API key")
	}
}

func TestTitle(t *testing.T) {
	t.Parallel()
	g := newTestGenerator(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(completionJSON("Feeling Anxious Today")))
	})

	got, err := g.Title(context.Background(), "I feel anxious today")
	if err != nil {
		t.Fatalf("Title: %v", err)
	}
	if got != "Feeling Anxious Today" {
		t.Errorf("title = %q", got)
	}
}

func TestTitle_SanitizesModelOutput(t *testing.T) {
	t.Parallel()
	g := newTestGenerator(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(completionJSON(`\"Morning Check-In.\"`)))
	})

	got, err := g.Title(context.Background(), "good morning")
	if err != nil {
		t.Fatalf("Title: %v", err)
	}
	if got != "Morning Check-In" {
		t.Errorf("expected quotes and trailing period stripped, got %q", got)
	}
}

func TestTitle_EmptyUtterance(t *testing.T) {
	t.Parallel()
	g := newTestGenerator(t, func(w http.ResponseWriter, _ *http.Request) {
		t.Error("no request expected for an empty utterance")
	})

	if _, err := g.Title(context.Background(), "   "); err == nil {
		t.Fatal("expected error for empty utterance")
	}
}

func TestTitle_APIFailure(t *testing.T) {
	t.Parallel()
	g := newTestGenerator(t, func(w http.ResponseWriter, _ *http.Request) {
		// 400 is not retried by the client, unlike 429/5xx.
		http.Error(w, `{"error": {"message": "bad request"}}`, http.StatusBadRequest)
	})

	if _, err := g.Title(context.Background(), "hello"); err == nil {
		t.Fatal("expected error for API failure")
	}
}

func TestSanitize(t *testing.T) {
	t.Parallel()
	tests := []struct{ in, want string }{
		{"Plain Title", "Plain Title"},
		{`"Quoted"`, "Quoted"},
		{"Trailing!", "Trailing"},
		{"  padded  ", "padded"},
		{"", ""},
	}
	for _, tc := range tests {
		if got := sanitize(tc.in); got != tc.want {
			t.Errorf("sanitize(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
