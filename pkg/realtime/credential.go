// Package realtime implements the Aria voice session engine: the credential
// broker client, the protocol event set and dispatcher, the turn state
// machine, the transcript aggregator, the persistence bridge, and the
// [Session] that ties them together over one media transport.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Credential is a short-lived, single-use session credential minted by the
// authorization backend. Immutable once issued; owned by one connection
// attempt.
type Credential struct {
	// Token is the opaque bearer token presented during the handshake.
	Token string

	// SessionID identifies the minted session at the backend.
	SessionID string

	// Model is the speech model the credential is bound to.
	Model string

	// Voice is the assistant voice the credential is bound to.
	Voice string

	// IssuedAt is when the broker minted the credential.
	IssuedAt time.Time

	// ExpiresAt is when the credential stops being accepted.
	ExpiresAt time.Time
}

// Expired reports whether the credential is stale at now.
func (c Credential) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && !now.Before(c.ExpiresAt)
}

// TimeToExpiry returns how long the credential remains valid at now.
// Negative when already expired; zero when the credential has no expiry.
func (c Credential) TimeToExpiry(now time.Time) time.Duration {
	if c.ExpiresAt.IsZero() {
		return 0
	}
	return c.ExpiresAt.Sub(now)
}

// CredentialSource mints session credentials. [Broker] is the HTTP
// implementation; tests substitute their own.
type CredentialSource interface {
	// Acquire mints a fresh credential. Called once per connection attempt;
	// credentials are never cached or reused.
	Acquire(ctx context.Context) (Credential, error)
}

// Compile-time assertion.
var _ CredentialSource = (*Broker)(nil)

// Broker requests session credentials from the authorization backend.
type Broker struct {
	// Endpoint is the broker URL.
	Endpoint string

	// AuthToken authenticates the caller to the broker (the user's own
	// token, not a session credential).
	AuthToken string

	// HTTPClient is the client used for requests. Nil means a client with a
	// 10 s timeout.
	HTTPClient *http.Client
}

// credentialResponse is the broker's wire format. expiresAt is kept raw:
// brokers emit it as an RFC 3339 string or as a bare epoch number.
type credentialResponse struct {
	OK        bool            `json:"ok"`
	Token     string          `json:"token"`
	SessionID string          `json:"sessionId"`
	Model     string          `json:"model"`
	Voice     string          `json:"voice"`
	ExpiresAt json.RawMessage `json:"expiresAt"`
	Error     string          `json:"error,omitempty"`
}

// Acquire implements [CredentialSource]. It must be called fresh for every
// connection attempt.
func (b *Broker) Acquire(ctx context.Context) (Credential, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.Endpoint, strings.NewReader("{}"))
	if err != nil {
		return Credential{}, fmt.Errorf("broker: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if b.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+b.AuthToken)
	}

	client := b.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	resp, err := client.Do(req)
	if err != nil {
		return Credential{}, fmt.Errorf("%w: broker request: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return Credential{}, fmt.Errorf("%w: broker status %d", ErrUnauthenticated, resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Credential{}, fmt.Errorf("%w: broker status %d", ErrBackend, resp.StatusCode)
	}

	var cr credentialResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return Credential{}, fmt.Errorf("%w: decode broker response: %v", ErrBackend, err)
	}
	if !cr.OK || cr.Token == "" {
		msg := cr.Error
		if msg == "" {
			msg = "no token in response"
		}
		return Credential{}, fmt.Errorf("%w: %s", ErrBackend, msg)
	}

	cred := Credential{
		Token:     cr.Token,
		SessionID: cr.SessionID,
		Model:     cr.Model,
		Voice:     cr.Voice,
		IssuedAt:  time.Now(),
	}
	if raw := strings.Trim(string(cr.ExpiresAt), `"`); raw != "" && raw != "null" {
		expiry, err := parseExpiry(raw)
		if err != nil {
			return Credential{}, fmt.Errorf("%w: parse expiresAt %q: %v", ErrBackend, raw, err)
		}
		cred.ExpiresAt = expiry
	}
	return cred, nil
}

// parseExpiry accepts RFC 3339 timestamps and Unix epoch seconds, the two
// formats brokers emit in the wild.
func parseExpiry(s string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts, nil
	}
	var epoch int64
	if _, err := fmt.Sscanf(s, "%d", &epoch); err == nil && epoch > 0 {
		return time.Unix(epoch, 0), nil
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp format")
}
