package identity

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

func newTestGoogle(t *testing.T, userInfoStatus int, info googleUserInfo) (*Google, func()) {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "test-access",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(userInfoStatus)
		json.NewEncoder(w).Encode(info)
	})
	srv := httptest.NewServer(mux)

	g, err := NewGoogle(GoogleConfig{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURL:  "https://gearmarket.example/auth/callback",
	})
	if err != nil {
		t.Fatalf("new google: %v", err)
	}
	g.oauth.Endpoint.TokenURL = srv.URL + "/token"
	g.userInfoURL = srv.URL + "/userinfo"

	return g, srv.Close
}

func TestGoogleAuthURLCarriesState(t *testing.T) {
	g, err := NewGoogle(GoogleConfig{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURL:  "https://gearmarket.example/auth/callback",
	})
	if err != nil {
		t.Fatalf("new google: %v", err)
	}

	raw := g.AuthURL("state-123")
	parsed, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse auth url: %v", err)
	}
	if got := parsed.Query().Get("state"); got != "state-123" {
		t.Fatalf("state = %q", got)
	}
	if got := parsed.Query().Get("client_id"); got != "client-id" {
		t.Fatalf("client_id = %q", got)
	}
}

func TestGoogleExchangeReturnsIdentity(t *testing.T) {
	g, cleanup := newTestGoogle(t, http.StatusOK, googleUserInfo{
		Email:         "user@example.com",
		Name:          "Example User",
		VerifiedEmail: true,
	})
	defer cleanup()

	identity, err := g.Exchange(context.Background(), "auth-code")
	if err != nil {
		t.Fatalf("exchange: %v", err)
	}
	if identity.Email != "user@example.com" || identity.DisplayName != "Example User" {
		t.Fatalf("identity = %+v", identity)
	}
}

func TestGoogleExchangeRejectsUnverifiedEmail(t *testing.T) {
	g, cleanup := newTestGoogle(t, http.StatusOK, googleUserInfo{
		Email:         "user@example.com",
		VerifiedEmail: false,
	})
	defer cleanup()

	if _, err := g.Exchange(context.Background(), "auth-code"); err == nil {
		t.Fatal("unverified provider email must be rejected")
	}
}

func TestGoogleExchangeUserInfoFailure(t *testing.T) {
	g, cleanup := newTestGoogle(t, http.StatusInternalServerError, googleUserInfo{})
	defer cleanup()

	_, err := g.Exchange(context.Background(), "auth-code")
	if err == nil || !strings.Contains(err.Error(), "status 500") {
		t.Fatalf("err = %v, want userinfo status failure", err)
	}
}

func TestNewGoogleValidatesConfig(t *testing.T) {
	if _, err := NewGoogle(GoogleConfig{ClientSecret: "s", RedirectURL: "r"}); err == nil {
		t.Fatal("missing client id must fail")
	}
	if _, err := NewGoogle(GoogleConfig{ClientID: "c", ClientSecret: "s"}); err == nil {
		t.Fatal("missing redirect URL must fail")
	}
}
