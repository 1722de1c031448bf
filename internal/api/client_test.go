package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

type stubTokens struct {
	token      string
	refreshErr error
	refreshed  atomic.Int64
}

func (s *stubTokens) Token() (string, error) { return s.token, nil }

func (s *stubTokens) Refresh(context.Context) error {
	s.refreshed.Add(1)
	if s.refreshErr != nil {
		return s.refreshErr
	}
	s.token = "fresh-token"
	return nil
}

func newTestClient(t *testing.T, handler http.Handler, tokens *stubTokens) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(ClientConfig{
		BaseURL:    server.URL,
		Tokens:     tokens,
		HTTPClient: server.Client(),
	})
	if err != nil {
		t.Fatalf("unexpected client error: %v", err)
	}
	return client
}

func TestNewClientValidatesConfig(t *testing.T) {
	if _, err := NewClient(ClientConfig{BaseURL: "", Tokens: &stubTokens{}}); err == nil {
		t.Fatal("expected error for empty base url")
	}
	if _, err := NewClient(ClientConfig{BaseURL: "http://localhost"}); err == nil {
		t.Fatal("expected error for missing token source")
	}
}

func TestMutateReturnsDataOnSuccess(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer token-1" {
			t.Errorf("unexpected authorization header: %q", got)
		}
		w.Write([]byte(`{"success":true,"message":"ok","data":{"id":"srv-42"}}`))
	}), &stubTokens{token: "token-1"})

	data, err := client.Mutate(context.Background(), http.MethodPost, "/chat/rooms/r1/messages", map[string]string{"body": "hi"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(data) != `{"id":"srv-42"}` {
		t.Fatalf("unexpected data payload: %s", data)
	}
}

func TestMutateClassifiesRejection(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":false,"message":"post not found"}`))
	}), &stubTokens{token: "token-1"})

	_, err := client.Mutate(context.Background(), http.MethodPost, "/posts/p9/vote", nil)
	if !errors.Is(err, ErrRejected) {
		t.Fatalf("expected ErrRejected, got %v", err)
	}
}

func TestMutateClassifiesIdempotentConflict(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":false,"message":"Review already saved"}`))
	}), &stubTokens{token: "token-1"})

	_, err := client.Mutate(context.Background(), http.MethodPost, "/reviews/rev-9/save", nil)
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestAuthFailureTriggersOneSilentRefresh(t *testing.T) {
	var calls atomic.Int64
	tokens := &stubTokens{token: "stale-token"}
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if got := r.Header.Get("Authorization"); got != "Bearer fresh-token" {
			t.Errorf("replay should carry refreshed token, got %q", got)
		}
		w.Write([]byte(`{"success":true}`))
	}), tokens)

	if _, err := client.Mutate(context.Background(), http.MethodPost, "/posts/p1/vote", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tokens.refreshed.Load() != 1 {
		t.Fatalf("expected exactly one refresh, got %d", tokens.refreshed.Load())
	}
	if calls.Load() != 2 {
		t.Fatalf("expected exactly one replay, got %d calls", calls.Load())
	}
}

func TestFailedRefreshSurfacesSessionExpired(t *testing.T) {
	tokens := &stubTokens{token: "stale-token", refreshErr: errors.New("refresh token revoked")}
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}), tokens)

	_, err := client.Mutate(context.Background(), http.MethodDelete, "/posts/p1/save", nil)
	if !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}
}

func TestSecondAuthFailureAfterRefreshIsTerminal(t *testing.T) {
	tokens := &stubTokens{token: "stale-token"}
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}), tokens)

	_, err := client.FetchView(context.Background(), "/posts")
	if !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}
	if tokens.refreshed.Load() != 1 {
		t.Fatalf("expected exactly one refresh attempt, got %d", tokens.refreshed.Load())
	}
}
