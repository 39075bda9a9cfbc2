package authclient

import (
	"context"
	"net/url"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/oksasatya/magic-code-auth/pkg/helpers"
)

// TokenClient is the part of *Client the lifecycle needs.
type TokenClient interface {
	Exchange(ctx context.Context, code, redirectURI, verifier string) (*Tokens, error)
	Verify(ctx context.Context, access, refresh string) (*VerifyResult, error)
}

// State is what a page render needs to know.
type State struct {
	Authenticated bool
	// URL is the page URL with code and state removed.
	URL *url.URL
	// Subject is only filled by Authenticate.
	Subject helpers.Subject
}

// Lifecycle runs the client side of the login flow for one user agent: pick
// up a returned code, exchange it exactly once and decide whether the page
// is authenticated.
type Lifecycle struct {
	Client      TokenClient
	Store       TokenStore
	RedirectURI string
	Verifier    string
	// State, when set, must match the state parameter returned with the code.
	State  string
	Logger *logrus.Logger

	mu       sync.Mutex
	lastCode string
}

// Load handles one page load. A code equal to the last exchanged one is
// ignored. Without a code, holding an access token counts as authenticated;
// its expiry is not checked here.
func (l *Lifecycle) Load(ctx context.Context, page *url.URL) State {
	l.mu.Lock()
	defer l.mu.Unlock()

	q := page.Query()
	code := q.Get("code")
	clean := stripParams(page, "code", "state")

	if code != "" && code != l.lastCode {
		l.lastCode = code
		if l.State != "" && q.Get("state") != l.State {
			l.logger().Warn("state mismatch on callback")
			return State{URL: clean}
		}
		tokens, err := l.Client.Exchange(ctx, code, l.RedirectURI, l.Verifier)
		if err != nil {
			l.logger().WithError(err).Error("code exchange failed")
			return State{URL: clean}
		}
		if err := l.Store.Set(tokens); err != nil {
			l.logger().WithError(err).Error("persist tokens failed")
			return State{URL: clean}
		}
		return State{Authenticated: true, URL: clean}
	}

	t, err := l.Store.Get()
	if err != nil {
		l.logger().WithError(err).Warn("read tokens failed")
		return State{URL: clean}
	}
	return State{Authenticated: t != nil && t.AccessToken != "", URL: clean}
}

// Authenticate verifies the stored tokens with the issuer, refreshing when
// needed. Tokens that cannot be verified or refreshed are cleared.
func (l *Lifecycle) Authenticate(ctx context.Context) (State, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	t, err := l.Store.Get()
	if err != nil {
		return State{}, err
	}
	if t == nil {
		return State{}, nil
	}
	res, err := l.Client.Verify(ctx, t.AccessToken, t.RefreshToken)
	if err != nil {
		l.logger().WithError(err).Info("stored tokens rejected")
		if cerr := l.Store.Clear(); cerr != nil {
			return State{}, cerr
		}
		return State{}, nil
	}
	if res.Tokens != nil {
		if err := l.Store.Set(res.Tokens); err != nil {
			return State{}, err
		}
	}
	return State{Authenticated: true, Subject: res.Subject}, nil
}

// Logout forgets the stored tokens.
func (l *Lifecycle) Logout() error {
	return l.Store.Clear()
}

func (l *Lifecycle) logger() *logrus.Logger {
	if l.Logger == nil {
		return helpers.NopLogger()
	}
	return l.Logger
}

func stripParams(u *url.URL, names ...string) *url.URL {
	cp := *u
	q := cp.Query()
	for _, n := range names {
		q.Del(n)
	}
	cp.RawQuery = q.Encode()
	return &cp
}
