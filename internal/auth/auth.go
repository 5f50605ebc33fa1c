// Package auth keeps a short-lived Google access token obtained from a
// long-lived refresh token.
package auth

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	calendar "google.golang.org/api/calendar/v3"

	"gcalpaper/internal/config"
	"gcalpaper/internal/fault"
)

// Options overrides the token endpoint and transport, mainly for tests.
type Options struct {
	Endpoint   oauth2.Endpoint
	HTTPClient *http.Client
	Now        func() time.Time
}

// Authenticator refreshes the access token on demand and remembers when it
// was obtained so callers can tell whether it is still usable.
type Authenticator struct {
	cfg          *oauth2.Config
	refreshToken string
	httpClient   *http.Client
	now          func() time.Time

	mu       sync.Mutex
	token    *oauth2.Token
	obtained time.Time
}

// New builds an Authenticator for the calendar read-only scope from the
// device secrets. The optional access token is ignored; a fresh one is
// always requested on the first Refresh.
func New(s config.Secrets, opts Options) *Authenticator {
	ep := opts.Endpoint
	if ep.TokenURL == "" {
		ep = google.Endpoint
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Authenticator{
		cfg: &oauth2.Config{
			ClientID:     s.GoogleClientID,
			ClientSecret: s.GoogleClientSecret,
			Endpoint:     ep,
			Scopes:       []string{calendar.CalendarReadonlyScope},
		},
		refreshToken: s.GoogleRefreshToken,
		httpClient:   opts.HTTPClient,
		now:          now,
	}
}

// Refresh exchanges the refresh token for a new access token.
// A refusal from the token endpoint is reported as fault.AuthRefused,
// anything else as fault.TransientNetwork.
func (a *Authenticator) Refresh(ctx context.Context) error {
	if a.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, a.httpClient)
	}

	a.mu.Lock()
	rt := a.refreshToken
	a.mu.Unlock()

	tok, err := a.cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: rt}).Token()
	if err != nil {
		return classify(err)
	}
	if tok.AccessToken == "" {
		return fault.Refused("auth refresh", errors.New("token endpoint returned no access token"))
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.token = tok
	a.obtained = a.now()
	if tok.RefreshToken != "" {
		a.refreshToken = tok.RefreshToken
	}
	return nil
}

// Expired reports whether the current token is missing or its lifetime has
// fully elapsed since it was obtained. A token without an expiry never
// expires.
func (a *Authenticator) Expired() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.token == nil {
		return true
	}
	if a.token.Expiry.IsZero() {
		return false
	}
	lifetime := a.token.Expiry.Sub(a.obtained)
	return a.now().Sub(a.obtained) >= lifetime
}

// ObtainedAt returns when the current token was acquired.
func (a *Authenticator) ObtainedAt() time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.obtained
}

// Token implements oauth2.TokenSource over the last refreshed token. It
// never refreshes by itself.
func (a *Authenticator) Token() (*oauth2.Token, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.token == nil {
		return nil, fault.Refused("auth token", errors.New("no access token, refresh first"))
	}
	t := *a.token
	return &t, nil
}

// Client returns an HTTP client that sends the current bearer token.
func (a *Authenticator) Client(ctx context.Context) *http.Client {
	if a.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, a.httpClient)
	}
	return oauth2.NewClient(ctx, a)
}

func classify(err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		if re.ErrorCode == "invalid_grant" || re.ErrorCode == "invalid_client" || re.ErrorCode == "unauthorized_client" {
			return fault.Refused("auth refresh", err)
		}
		if re.Response != nil {
			switch re.Response.StatusCode {
			case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden:
				return fault.Refused("auth refresh", err)
			}
		}
	}
	return fault.Network("auth refresh", err)
}
