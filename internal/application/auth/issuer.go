package auth

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/oksasatya/magic-code-auth/pkg/helpers"
)

// ProviderCode is the name of the email code provider.
const ProviderCode = "code"

const (
	GrantAuthorizationCode = "authorization_code"
	GrantRefreshToken      = "refresh_token"
)

func keyPending(id string) string  { return "oauth:pending:" + id }
func keyAuthCode(c string) string  { return "oauth:code:" + c }
func keyRefresh(tok string) string { return "oauth:refresh:" + tok }

// SuccessValue is handed to the success callback once a provider has
// proven the user's identity.
type SuccessValue struct {
	Provider string
	Claims   map[string]string
}

// SuccessFunc resolves a proven identity into the subject tokens are issued for.
type SuccessFunc func(ctx context.Context, v SuccessValue) (helpers.Subject, error)

// AuthorizationRequest holds the /authorize query parameters.
type AuthorizationRequest struct {
	ResponseType        string `form:"response_type" json:"response_type"`
	ClientID            string `form:"client_id" json:"client_id"`
	RedirectURI         string `form:"redirect_uri" json:"redirect_uri"`
	State               string `form:"state" json:"state"`
	Scope               string `form:"scope" json:"scope"`
	Provider            string `form:"provider" json:"provider"`
	CodeChallenge       string `form:"code_challenge" json:"code_challenge"`
	CodeChallengeMethod string `form:"code_challenge_method" json:"code_challenge_method"`
}

// PendingAuthorization is an authorize request waiting for the user to log in.
type PendingAuthorization struct {
	ID        string               `json:"id"`
	Request   AuthorizationRequest `json:"request"`
	CreatedAt time.Time            `json:"created_at"`
}

type authorizationCode struct {
	ClientID            string          `json:"client_id"`
	RedirectURI         string          `json:"redirect_uri"`
	CodeChallenge       string          `json:"code_challenge,omitempty"`
	CodeChallengeMethod string          `json:"code_challenge_method,omitempty"`
	Subject             helpers.Subject `json:"subject"`
	ExpiresAt           time.Time       `json:"expires_at"`
}

type refreshRecord struct {
	ClientID string          `json:"client_id"`
	Subject  helpers.Subject `json:"subject"`
	IssuedAt time.Time       `json:"issued_at"`
}

// ExchangeRequest is the authorization_code grant.
type ExchangeRequest struct {
	Code         string
	RedirectURI  string
	ClientID     string
	CodeVerifier string
}

// Tokens is the token endpoint response body.
type Tokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

type Config struct {
	IssuerURL  string
	Clients    []string // empty allows any client id
	CodeTTL    time.Duration
	PendingTTL time.Duration
	RefreshTTL time.Duration
}

type Issuer struct {
	cfg        Config
	store      Storage
	codes      *CodeProvider
	jwt        *helpers.JWTManager
	success    SuccessFunc
	logger     *logrus.Logger
	clients    map[string]struct{}
	issuerHost string
	now        func() time.Time
}

func NewIssuer(cfg Config, store Storage, codes *CodeProvider, jwtm *helpers.JWTManager, success SuccessFunc, logger *logrus.Logger) *Issuer {
	if cfg.CodeTTL <= 0 {
		cfg.CodeTTL = 5 * time.Minute
	}
	if cfg.PendingTTL <= 0 {
		cfg.PendingTTL = 15 * time.Minute
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = 30 * 24 * time.Hour
	}
	if logger == nil {
		logger = helpers.NopLogger()
	}
	clients := make(map[string]struct{}, len(cfg.Clients))
	for _, c := range cfg.Clients {
		clients[c] = struct{}{}
	}
	host := ""
	if u, err := url.Parse(cfg.IssuerURL); err == nil {
		host = u.Hostname()
	}
	return &Issuer{
		cfg:        cfg,
		store:      store,
		codes:      codes,
		jwt:        jwtm,
		success:    success,
		logger:     logger,
		clients:    clients,
		issuerHost: host,
		now:        time.Now,
	}
}

// Codes exposes the code provider for the code UI.
func (i *Issuer) Codes() *CodeProvider { return i.codes }

func (i *Issuer) clientAllowed(id string) bool {
	if id == "" {
		return false
	}
	if len(i.clients) == 0 {
		return true
	}
	_, ok := i.clients[id]
	return ok
}

func (i *Issuer) redirectAllowed(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() || u.Fragment != "" {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	host := u.Hostname()
	if host == "localhost" || host == i.issuerHost {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// Authorize validates an authorize request and records it as pending.
func (i *Issuer) Authorize(ctx context.Context, req AuthorizationRequest) (*PendingAuthorization, error) {
	if req.ResponseType != "code" {
		return nil, oauthError(CodeUnsupportedResponseType, "response_type must be code")
	}
	if !i.clientAllowed(req.ClientID) {
		return nil, oauthError(CodeInvalidClient, "unknown client_id")
	}
	if !i.redirectAllowed(req.RedirectURI) {
		return nil, oauthError(CodeInvalidRequest, "redirect_uri is not allowed")
	}
	if req.Provider != "" && req.Provider != ProviderCode {
		return nil, oauthError(CodeInvalidRequest, "unknown provider")
	}
	if req.CodeChallenge != "" {
		if req.CodeChallengeMethod == "" {
			req.CodeChallengeMethod = helpers.PKCEMethodS256
		}
		if err := helpers.ValidateCodeChallenge(req.CodeChallenge, req.CodeChallengeMethod); err != nil {
			return nil, oauthError(CodeInvalidRequest, err.Error())
		}
	} else if req.CodeChallengeMethod != "" {
		return nil, oauthError(CodeInvalidRequest, "code_challenge is required")
	}

	id, err := helpers.RandomToken(16)
	if err != nil {
		return nil, err
	}
	p := &PendingAuthorization{ID: id, Request: req, CreatedAt: i.now()}
	if err := putJSON(ctx, i.store, keyPending(id), p, i.cfg.PendingTTL); err != nil {
		return nil, fmt.Errorf("store pending authorization: %w", err)
	}
	return p, nil
}

// Pending loads a pending authorization.
func (i *Issuer) Pending(ctx context.Context, id string) (*PendingAuthorization, error) {
	if id == "" {
		return nil, oauthError(CodeInvalidRequest, "missing pending_id")
	}
	p, err := getJSON[PendingAuthorization](ctx, i.store, keyPending(id))
	if errors.Is(err, ErrNotFound) {
		return nil, oauthError(CodeInvalidRequest, "authorization request expired")
	}
	return p, err
}

// StartCode sends a login code for the pending authorization.
func (i *Issuer) StartCode(ctx context.Context, pendingID, email string, meta RequestMeta) error {
	if _, err := i.Pending(ctx, pendingID); err != nil {
		return err
	}
	return i.codes.Start(ctx, pendingID, email, meta)
}

// ResendCode sends a fresh code to the same email.
func (i *Issuer) ResendCode(ctx context.Context, pendingID string, meta RequestMeta) error {
	if _, err := i.Pending(ctx, pendingID); err != nil {
		return err
	}
	return i.codes.Resend(ctx, pendingID, meta)
}

// ConfirmCode verifies the code, runs the success callback and returns the
// client redirect URL carrying a fresh authorization code.
func (i *Issuer) ConfirmCode(ctx context.Context, pendingID, code string) (string, error) {
	p, err := i.Pending(ctx, pendingID)
	if err != nil {
		return "", err
	}
	claims, err := i.codes.Verify(ctx, pendingID, code)
	if err != nil {
		return "", err
	}
	sub, err := i.success(ctx, SuccessValue{Provider: ProviderCode, Claims: claims})
	if err != nil {
		i.logger.WithError(err).WithField("client_id", p.Request.ClientID).Error("success callback failed")
		return "", fmt.Errorf("%w: %v", ErrSuccessFailed, err)
	}

	ac, err := helpers.RandomToken(32)
	if err != nil {
		return "", err
	}
	rec := authorizationCode{
		ClientID:            p.Request.ClientID,
		RedirectURI:         p.Request.RedirectURI,
		CodeChallenge:       p.Request.CodeChallenge,
		CodeChallengeMethod: p.Request.CodeChallengeMethod,
		Subject:             sub,
		ExpiresAt:           i.now().Add(i.cfg.CodeTTL),
	}
	if err := putJSON(ctx, i.store, keyAuthCode(ac), rec, i.cfg.CodeTTL); err != nil {
		return "", fmt.Errorf("store authorization code: %w", err)
	}
	_ = i.store.Remove(ctx, keyPending(pendingID))

	u, err := url.Parse(p.Request.RedirectURI)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("code", ac)
	if p.Request.State != "" {
		q.Set("state", p.Request.State)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Exchange redeems an authorization code. Codes are single use.
func (i *Issuer) Exchange(ctx context.Context, req ExchangeRequest) (*Tokens, error) {
	if req.Code == "" || req.RedirectURI == "" || req.ClientID == "" {
		return nil, oauthError(CodeInvalidRequest, "code, redirect_uri and client_id are required")
	}
	rec, err := takeJSON[authorizationCode](ctx, i.store, keyAuthCode(req.Code))
	if errors.Is(err, ErrNotFound) {
		return nil, oauthError(CodeInvalidGrant, "invalid or used authorization code")
	}
	if err != nil {
		return nil, err
	}
	if !i.now().Before(rec.ExpiresAt) {
		return nil, oauthError(CodeInvalidGrant, "authorization code expired")
	}
	if rec.ClientID != req.ClientID {
		return nil, oauthError(CodeInvalidGrant, "client_id mismatch")
	}
	if rec.RedirectURI != req.RedirectURI {
		return nil, oauthError(CodeInvalidGrant, "redirect_uri mismatch")
	}
	if rec.CodeChallenge != "" {
		if req.CodeVerifier == "" {
			return nil, oauthError(CodeInvalidGrant, "code_verifier is required")
		}
		if err := helpers.ValidatePKCE(req.CodeVerifier, rec.CodeChallenge, rec.CodeChallengeMethod); err != nil {
			return nil, oauthError(CodeInvalidGrant, err.Error())
		}
	}
	return i.issue(ctx, rec.Subject, rec.ClientID)
}

// Refresh rotates a refresh token: the presented token is consumed and a new
// pair is returned.
func (i *Issuer) Refresh(ctx context.Context, refreshToken, clientID string) (*Tokens, error) {
	if refreshToken == "" {
		return nil, oauthError(CodeInvalidRequest, "refresh_token is required")
	}
	rec, err := takeJSON[refreshRecord](ctx, i.store, keyRefresh(refreshToken))
	if errors.Is(err, ErrNotFound) {
		return nil, oauthError(CodeInvalidGrant, "invalid refresh token")
	}
	if err != nil {
		return nil, err
	}
	if clientID != "" && clientID != rec.ClientID {
		return nil, oauthError(CodeInvalidGrant, "client_id mismatch")
	}
	tokenRefreshes.Add(1)
	return i.issue(ctx, rec.Subject, rec.ClientID)
}

func (i *Issuer) issue(ctx context.Context, sub helpers.Subject, clientID string) (*Tokens, error) {
	access, _, err := i.jwt.GenerateAccessToken(sub, clientID)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}
	refresh, err := helpers.RandomToken(32)
	if err != nil {
		return nil, err
	}
	rec := refreshRecord{ClientID: clientID, Subject: sub, IssuedAt: i.now()}
	if err := putJSON(ctx, i.store, keyRefresh(refresh), rec, i.cfg.RefreshTTL); err != nil {
		return nil, fmt.Errorf("store refresh token: %w", err)
	}
	tokensIssued.Add(1)
	i.logger.WithFields(logrus.Fields{"client_id": clientID, "user_id": sub.Properties.ID}).Debug("tokens issued")
	return &Tokens{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int64(i.jwt.AccessTTL / time.Second),
	}, nil
}

// Verify parses an access token into its subject.
func (i *Issuer) Verify(access string) (helpers.Subject, error) {
	claims, err := i.jwt.ParseAccessToken(access)
	if err != nil {
		return helpers.Subject{}, err
	}
	return claims.Subject(), nil
}

// Metadata is the authorization server metadata document.
func (i *Issuer) Metadata() map[string]any {
	base := strings.TrimRight(i.cfg.IssuerURL, "/")
	return map[string]any{
		"issuer":                                base,
		"authorization_endpoint":                base + "/authorize",
		"token_endpoint":                        base + "/token",
		"userinfo_endpoint":                     base + "/userinfo",
		"response_types_supported":              []string{"code"},
		"grant_types_supported":                 []string{GrantAuthorizationCode, GrantRefreshToken},
		"code_challenge_methods_supported":      []string{helpers.PKCEMethodS256},
		"token_endpoint_auth_methods_supported": []string{"none"},
	}
}
