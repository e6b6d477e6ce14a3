package calendarsync

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/practivahq/practiva-backend/pkg/config"
	pkgerrors "github.com/practivahq/practiva-backend/pkg/errors"
	"github.com/practivahq/practiva-backend/pkg/retry"
)

func newTestRefresher(t *testing.T, tokenURL string) *TokenRefresher {
	t.Helper()
	refresher, err := NewTokenRefresher(config.CalendarConfig{
		TokenURL:     tokenURL,
		ClientID:     "client",
		ClientSecret: "secret",
	})
	if err != nil {
		t.Fatalf("setup refresher: %v", err)
	}
	refresher.retryCfg = retry.Config{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2,
	}
	return refresher
}

func TestRefresherExchangesToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if got := r.Form.Get("grant_type"); got != "refresh_token" {
			t.Errorf("expected refresh_token grant, got %q", got)
		}
		if got := r.Form.Get("refresh_token"); got != "rt_old" {
			t.Errorf("unexpected refresh token %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"at_new","refresh_token":"rt_new","expires_in":3600}`))
	}))
	defer server.Close()

	creds, err := newTestRefresher(t, server.URL).Refresh(context.Background(), "rt_old")
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if creds.AccessToken != "at_new" || creds.RefreshToken != "rt_new" {
		t.Fatalf("unexpected credentials %+v", creds)
	}
	if !creds.ExpiresAt.After(time.Now()) {
		t.Fatal("expected future expiry")
	}
}

func TestRefresherKeepsRefreshTokenWhenNotRotated(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"access_token":"at_new","expires_in":3600}`))
	}))
	defer server.Close()

	creds, err := newTestRefresher(t, server.URL).Refresh(context.Background(), "rt_old")
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if creds.RefreshToken != "rt_old" {
		t.Fatalf("expected original refresh token kept, got %q", creds.RefreshToken)
	}
}

func TestRefresherRevokedGrantIsTerminal(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"Token has been revoked."}`))
	}))
	defer server.Close()

	_, err := newTestRefresher(t, server.URL).Refresh(context.Background(), "rt_revoked")
	if err == nil {
		t.Fatal("expected error")
	}
	if pkgerrors.IsRetryable(err) {
		t.Fatal("revoked grant must classify terminal")
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("terminal rejection must not retry, got %d calls", got)
	}
}

func TestRefresherRetriesServerErrors(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"access_token":"at_new","expires_in":3600}`))
	}))
	defer server.Close()

	creds, err := newTestRefresher(t, server.URL).Refresh(context.Background(), "rt_old")
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if creds.AccessToken != "at_new" {
		t.Fatalf("unexpected credentials %+v", creds)
	}
	if got := calls.Load(); got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}
}
