// Package identity implements external identity providers for social login.
package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/oauth2"

	"github.com/gearmarket/auth"
)

const (
	googleAuthURL     = "https://accounts.google.com/o/oauth2/auth"
	googleTokenURL    = "https://oauth2.googleapis.com/token"
	googleUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"
)

// GoogleConfig carries the OAuth2 client registration.
type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

// Google exchanges Google OAuth2 authorization codes for verified
// identities. Only accounts whose email Google reports as verified are
// accepted.
type Google struct {
	oauth       *oauth2.Config
	userInfoURL string
}

// NewGoogle validates the client registration and returns a provider.
func NewGoogle(cfg GoogleConfig) (*Google, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, errors.New("google client id and secret are required")
	}
	if cfg.RedirectURL == "" {
		return nil, errors.New("google redirect URL is required")
	}

	return &Google{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       []string{"openid", "email", "profile"},
			Endpoint: oauth2.Endpoint{
				AuthURL:  googleAuthURL,
				TokenURL: googleTokenURL,
			},
		},
		userInfoURL: googleUserInfoURL,
	}, nil
}

// AuthURL returns the consent page URL carrying the given CSRF state.
func (g *Google) AuthURL(state string) string {
	return g.oauth.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

type googleUserInfo struct {
	Email         string `json:"email"`
	Name          string `json:"name"`
	VerifiedEmail bool   `json:"verified_email"`
}

// Exchange trades the authorization code for the user's profile.
func (g *Google) Exchange(ctx context.Context, code string) (auth.Identity, error) {
	token, err := g.oauth.Exchange(ctx, code)
	if err != nil {
		return auth.Identity{}, fmt.Errorf("google code exchange: %w", err)
	}

	resp, err := g.oauth.Client(ctx, token).Get(g.userInfoURL)
	if err != nil {
		return auth.Identity{}, fmt.Errorf("google userinfo: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return auth.Identity{}, fmt.Errorf("google userinfo: status %d: %s", resp.StatusCode, body)
	}

	var info googleUserInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return auth.Identity{}, fmt.Errorf("google userinfo decode: %w", err)
	}
	if info.Email == "" {
		return auth.Identity{}, errors.New("google userinfo: no email in profile")
	}
	if !info.VerifiedEmail {
		return auth.Identity{}, errors.New("google userinfo: email not verified by provider")
	}

	return auth.Identity{Email: info.Email, DisplayName: info.Name}, nil
}
