// Package oauth wraps the Google OAuth2 flow used to authorize the operator's
// Drive account. Token refresh is an explicit call returning a new token value;
// nothing here mutates shared credential state.
package oauth

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
)

// Static errors for OAuth operations.
var (
	// ErrRefreshTokenRequired is returned when minting without a refresh token.
	ErrRefreshTokenRequired = errors.New("oauth: refresh token is required")
	// ErrCodeRequired is returned when exchanging an empty authorization code.
	ErrCodeRequired = errors.New("oauth: authorization code is required")
	// ErrNoAccessToken is returned when the token endpoint returns no access token.
	ErrNoAccessToken = errors.New("oauth: token endpoint returned no access token")
)

// Scopes is limited to files created by this application.
var Scopes = []string{drive.DriveFileScope}

// Settings holds the OAuth client registration.
type Settings struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	// Endpoint overrides the Google endpoint (tests, emulators).
	Endpoint *oauth2.Endpoint
}

// NewConfig builds the oauth2 configuration for the Drive file scope.
func NewConfig(s Settings) *oauth2.Config {
	endpoint := google.Endpoint
	if s.Endpoint != nil {
		endpoint = *s.Endpoint
	}
	return &oauth2.Config{
		ClientID:     s.ClientID,
		ClientSecret: s.ClientSecret,
		RedirectURL:  s.RedirectURL,
		Endpoint:     endpoint,
		Scopes:       Scopes,
	}
}

// Mint exchanges the long-lived refresh token for a fresh short-lived access
// token. Every call hits the token endpoint and returns a new value.
func Mint(ctx context.Context, cfg *oauth2.Config, refreshToken string) (*oauth2.Token, error) {
	if refreshToken == "" {
		return nil, ErrRefreshTokenRequired
	}

	tok, err := cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return nil, fmt.Errorf("oauth: refresh access token: %w", err)
	}
	if tok.AccessToken == "" {
		return nil, ErrNoAccessToken
	}
	return tok, nil
}

// Minter returns a function that mints access tokens for one refresh token.
func Minter(cfg *oauth2.Config, refreshToken string) func(context.Context) (*oauth2.Token, error) {
	return func(ctx context.Context) (*oauth2.Token, error) {
		return Mint(ctx, cfg, refreshToken)
	}
}

// Client drives the consent flow used to bootstrap the operator credential.
type Client struct {
	cfg *oauth2.Config
}

// NewClient creates a Client for the given configuration.
func NewClient(cfg *oauth2.Config) *Client {
	return &Client{cfg: cfg}
}

// AuthCodeURL returns the consent page URL. Offline access with forced
// consent makes Google return a refresh token on every authorization.
func (c *Client) AuthCodeURL(state string) string {
	return c.cfg.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// Exchange trades an authorization code for tokens.
func (c *Client) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	if code == "" {
		return nil, ErrCodeRequired
	}
	tok, err := c.cfg.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("oauth: exchange code: %w", err)
	}
	return tok, nil
}
