// Package authclient talks to the issuer from the relying-party side:
// building authorize URLs, exchanging codes, refreshing and verifying tokens.
package authclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/oksasatya/magic-code-auth/pkg/helpers"
)

var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrMissingCode     = errors.New("missing code")
)

// Tokens is an access/refresh pair as returned by the token endpoint.
type Tokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type,omitempty"`
	ExpiresIn    int64  `json:"expires_in,omitempty"`
}

// Error is an OAuth error body returned by the issuer.
type Error struct {
	Status      int    `json:"-"`
	Code        string `json:"error"`
	Description string `json:"error_description"`
}

func (e *Error) Error() string {
	if e.Description == "" {
		return fmt.Sprintf("issuer: %s (%d)", e.Code, e.Status)
	}
	return fmt.Sprintf("issuer: %s: %s (%d)", e.Code, e.Description, e.Status)
}

type Config struct {
	ClientID string
	// Issuer is the issuer base URL, e.g. http://localhost:3001/auth.
	Issuer string
	// Secret is the shared access token secret. When empty, Verify asks the
	// issuer's userinfo endpoint instead of checking signatures locally.
	Secret     string
	HTTPClient *http.Client
}

type Client struct {
	cfg  Config
	http *http.Client
	jwt  *helpers.JWTManager
}

func New(cfg Config) *Client {
	cfg.Issuer = strings.TrimRight(cfg.Issuer, "/")
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	c := &Client{cfg: cfg, http: hc}
	if cfg.Secret != "" {
		c.jwt = &helpers.JWTManager{AccessSecret: []byte(cfg.Secret), Issuer: cfg.Issuer}
	}
	return c
}

func (c *Client) ClientID() string { return c.cfg.ClientID }

type authorizeOptions struct {
	pkce     bool
	state    string
	provider string
}

type AuthorizeOption func(*authorizeOptions)

// WithPKCE adds an S256 code challenge; the verifier is returned in AuthorizeResult.
func WithPKCE() AuthorizeOption { return func(o *authorizeOptions) { o.pkce = true } }

func WithState(state string) AuthorizeOption {
	return func(o *authorizeOptions) { o.state = state }
}

func WithProvider(provider string) AuthorizeOption {
	return func(o *authorizeOptions) { o.provider = provider }
}

type AuthorizeResult struct {
	URL      string
	Verifier string
	State    string
}

// Authorize builds the URL the user agent is sent to.
func (c *Client) Authorize(redirectURI string, opts ...AuthorizeOption) (*AuthorizeResult, error) {
	var o authorizeOptions
	for _, opt := range opts {
		opt(&o)
	}
	q := url.Values{}
	q.Set("response_type", "code")
	q.Set("client_id", c.cfg.ClientID)
	q.Set("redirect_uri", redirectURI)
	if o.state != "" {
		q.Set("state", o.state)
	}
	if o.provider != "" {
		q.Set("provider", o.provider)
	}
	res := &AuthorizeResult{State: o.state}
	if o.pkce {
		v, err := helpers.NewCodeVerifier()
		if err != nil {
			return nil, err
		}
		res.Verifier = v
		q.Set("code_challenge", helpers.ComputeS256Challenge(v))
		q.Set("code_challenge_method", helpers.PKCEMethodS256)
	}
	res.URL = c.cfg.Issuer + "/authorize?" + q.Encode()
	return res, nil
}

// Exchange redeems an authorization code.
func (c *Client) Exchange(ctx context.Context, code, redirectURI, verifier string) (*Tokens, error) {
	if code == "" {
		return nil, ErrMissingCode
	}
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", redirectURI)
	form.Set("client_id", c.cfg.ClientID)
	if verifier != "" {
		form.Set("code_verifier", verifier)
	}
	return c.token(ctx, form)
}

// Refresh trades a refresh token for a new pair. The old refresh token is
// no longer valid afterwards.
func (c *Client) Refresh(ctx context.Context, refresh string) (*Tokens, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refresh)
	form.Set("client_id", c.cfg.ClientID)
	return c.token(ctx, form)
}

func (c *Client) token(ctx context.Context, form url.Values) (*Tokens, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Issuer+"/token", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		oe := &Error{Status: resp.StatusCode}
		if jerr := json.Unmarshal(body, oe); jerr != nil || oe.Code == "" {
			oe.Code = http.StatusText(resp.StatusCode)
		}
		return nil, oe
	}
	var t Tokens
	if err := json.Unmarshal(body, &t); err != nil {
		return nil, fmt.Errorf("decode token response: %w", err)
	}
	if t.AccessToken == "" {
		return nil, errors.New("token response without access_token")
	}
	return &t, nil
}

// VerifyResult carries the subject and, when the access token had to be
// refreshed, the new token pair the caller must persist.
type VerifyResult struct {
	Subject helpers.Subject
	Tokens  *Tokens
}

// Verify checks access and falls back to refreshing with refresh.
func (c *Client) Verify(ctx context.Context, access, refresh string) (*VerifyResult, error) {
	if access != "" {
		sub, err := c.subject(ctx, access)
		if err == nil {
			return &VerifyResult{Subject: sub}, nil
		}
		if !errors.Is(err, ErrUnauthenticated) {
			return nil, err
		}
	}
	if refresh == "" {
		return nil, ErrUnauthenticated
	}
	t, err := c.Refresh(ctx, refresh)
	if err != nil {
		var oe *Error
		if errors.As(err, &oe) {
			return nil, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
		}
		return nil, err
	}
	sub, err := c.subject(ctx, t.AccessToken)
	if err != nil {
		return nil, err
	}
	return &VerifyResult{Subject: sub, Tokens: t}, nil
}

func (c *Client) subject(ctx context.Context, access string) (helpers.Subject, error) {
	if c.jwt != nil {
		claims, err := c.jwt.ParseAccessToken(access)
		if err != nil {
			return helpers.Subject{}, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
		}
		if c.cfg.ClientID != "" && !audienceContains(claims.Audience, c.cfg.ClientID) {
			return helpers.Subject{}, fmt.Errorf("%w: audience mismatch", ErrUnauthenticated)
		}
		return claims.Subject(), nil
	}
	return c.UserInfo(ctx, access)
}

func audienceContains(aud []string, id string) bool {
	for _, a := range aud {
		if a == id {
			return true
		}
	}
	return false
}

// UserInfo asks the issuer who access belongs to.
func (c *Client) UserInfo(ctx context.Context, access string) (helpers.Subject, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.Issuer+"/userinfo", nil)
	if err != nil {
		return helpers.Subject{}, err
	}
	req.Header.Set("Authorization", "Bearer "+access)
	resp, err := c.http.Do(req)
	if err != nil {
		return helpers.Subject{}, fmt.Errorf("userinfo request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode == http.StatusUnauthorized {
		return helpers.Subject{}, ErrUnauthenticated
	}
	if resp.StatusCode != http.StatusOK {
		return helpers.Subject{}, fmt.Errorf("userinfo: unexpected status %d", resp.StatusCode)
	}
	var env struct {
		Data helpers.Subject `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return helpers.Subject{}, fmt.Errorf("decode userinfo: %w", err)
	}
	return env.Data, nil
}
