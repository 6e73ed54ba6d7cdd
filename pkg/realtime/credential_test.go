package realtime

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestBrokerAcquire(t *testing.T) {
	t.Parallel()

	var gotAuth, gotMethod string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotMethod = r.Method
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"ok": true,
			"token": "ek_test_123",
			"sessionId": "sess_9",
			"model": "gpt-realtime",
			"voice": "marin",
			"expiresAt": "2099-01-02T15:04:05Z"
		}`))
	}))
	defer srv.Close()

	b := &Broker{Endpoint: srv.URL, AuthToken: "user-token"}
	cred, err := b.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire returned error: %v", err)
	}

	if gotMethod != http.MethodPost {
		t.Errorf("expected POST, got %s", gotMethod)
	}
	if gotAuth != "Bearer user-token" {
		t.Errorf("unexpected Authorization header %q", gotAuth)
	}
	if cred.Token != "ek_test_123" {
		t.Errorf("unexpected token %q", cred.Token)
	}
	if cred.SessionID != "sess_9" || cred.Model != "gpt-realtime" || cred.Voice != "marin" {
		t.Errorf("unexpected credential fields: %+v", cred)
	}
	if want := time.Date(2099, 1, 2, 15, 4, 5, 0, time.UTC); !cred.ExpiresAt.Equal(want) {
		t.Errorf("expected expiry %v, got %v", want, cred.ExpiresAt)
	}
	if cred.Expired(time.Now()) {
		t.Error("credential should not be expired")
	}
}

func TestBrokerAcquireNumericExpiry(t *testing.T) {
	t.Parallel()

	// Some brokers emit expiresAt as a bare epoch number, not a string.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok": true, "token": "ek_test_456", "expiresAt": 1900000000}`))
	}))
	defer srv.Close()

	b := &Broker{Endpoint: srv.URL}
	cred, err := b.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire returned error: %v", err)
	}
	if want := time.Unix(1900000000, 0); !cred.ExpiresAt.Equal(want) {
		t.Errorf("expected expiry %v, got %v", want, cred.ExpiresAt)
	}
}

func TestBrokerAcquireUnauthenticated(t *testing.T) {
	t.Parallel()

	for _, status := range []int{http.StatusUnauthorized, http.StatusForbidden} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(status)
		}))

		b := &Broker{Endpoint: srv.URL}
		_, err := b.Acquire(context.Background())
		srv.Close()

		if !errors.Is(err, ErrUnauthenticated) {
			t.Errorf("status %d: expected ErrUnauthenticated, got %v", status, err)
		}
	}
}

func TestBrokerAcquireBackendFailure(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "5xx status",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
			},
		},
		{
			name: "ok false",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(`{"ok": false, "error": "quota exceeded"}`))
			},
		},
		{
			name: "missing token",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(`{"ok": true, "token": ""}`))
			},
		},
		{
			name: "malformed body",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(`{not json`))
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(tc.handler)
			defer srv.Close()

			b := &Broker{Endpoint: srv.URL}
			_, err := b.Acquire(context.Background())
			if !errors.Is(err, ErrBackend) {
				t.Errorf("expected ErrBackend, got %v", err)
			}
		})
	}
}

func TestBrokerAcquireNetworkError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close() // connection refused from here on

	b := &Broker{Endpoint: srv.URL}
	_, err := b.Acquire(context.Background())
	if !errors.Is(err, ErrNetwork) {
		t.Errorf("expected ErrNetwork, got %v", err)
	}
	if errors.Is(err, ErrBackend) || errors.Is(err, ErrUnauthenticated) {
		t.Errorf("network failure must not classify as a backend rejection: %v", err)
	}
}

func TestParseExpiry(t *testing.T) {
	t.Parallel()

	rfc, err := parseExpiry("2031-06-01T00:00:00Z")
	if err != nil {
		t.Fatalf("RFC 3339 expiry: %v", err)
	}
	if rfc.Year() != 2031 {
		t.Errorf("unexpected year %d", rfc.Year())
	}

	epoch, err := parseExpiry("1900000000")
	if err != nil {
		t.Fatalf("epoch expiry: %v", err)
	}
	if !epoch.Equal(time.Unix(1900000000, 0)) {
		t.Errorf("unexpected epoch time %v", epoch)
	}

	if _, err := parseExpiry("soon"); err == nil {
		t.Error("expected error for unparseable expiry")
	} else if !strings.Contains(err.Error(), "timestamp") {
		t.Errorf("unexpected error text: %v", err)
	}
}

func TestCredentialExpiry(t *testing.T) {
	t.Parallel()

	now := time.Now()
	cred := Credential{ExpiresAt: now.Add(time.Minute)}

	if cred.Expired(now) {
		t.Error("credential with future expiry reported expired")
	}
	if !cred.Expired(now.Add(2 * time.Minute)) {
		t.Error("credential past its expiry reported valid")
	}
	if got := cred.TimeToExpiry(now); got != time.Minute {
		t.Errorf("expected 1m to expiry, got %v", got)
	}

	var noExpiry Credential
	if noExpiry.Expired(now) {
		t.Error("credential without expiry must never report expired")
	}
}
