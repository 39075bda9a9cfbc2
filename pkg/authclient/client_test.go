package authclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oksasatya/magic-code-auth/pkg/helpers"
)

const testSecret = "shared-secret"

var alice = helpers.Subject{
	Type:       helpers.SubjectUser,
	Properties: helpers.SubjectProperties{ID: "u-1", Email: "alice@example.com"},
}

// fakeIssuer serves /auth/token and /auth/userinfo.
type fakeIssuer struct {
	srv      *httptest.Server
	jwt      *helpers.JWTManager
	lastForm url.Values
	refresh  map[string]bool
}

func newFakeIssuer(t *testing.T) *fakeIssuer {
	t.Helper()
	f := &fakeIssuer{refresh: map[string]bool{"r-1": true}}
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/token", func(w http.ResponseWriter, r *http.Request) {
		if !assert.NoError(t, r.ParseForm()) {
			return
		}
		f.lastForm = r.PostForm
		w.Header().Set("Content-Type", "application/json")
		switch r.PostForm.Get("grant_type") {
		case "authorization_code":
			if r.PostForm.Get("code") != "good" {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"invalid or used authorization code"}`))
				return
			}
		case "refresh_token":
			rt := r.PostForm.Get("refresh_token")
			if !f.refresh[rt] {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"invalid refresh token"}`))
				return
			}
			delete(f.refresh, rt)
		}
		access, _, err := f.jwt.GenerateAccessToken(alice, r.PostForm.Get("client_id"))
		if !assert.NoError(t, err) {
			return
		}
		f.refresh["r-2"] = true
		_ = json.NewEncoder(w).Encode(Tokens{AccessToken: access, RefreshToken: "r-2", TokenType: "Bearer", ExpiresIn: 3600})
	})
	mux.HandleFunc("/auth/userinfo", func(w http.ResponseWriter, r *http.Request) {
		tok := r.Header.Get("Authorization")
		if len(tok) < 8 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		claims, err := f.jwt.ParseAccessToken(tok[len("Bearer "):])
		if err != nil {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "data": claims.Subject()})
	})
	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	f.jwt = &helpers.JWTManager{AccessSecret: []byte(testSecret), AccessTTL: time.Hour, Issuer: f.srv.URL + "/auth"}
	return f
}

func (f *fakeIssuer) client(secret string) *Client {
	return New(Config{ClientID: "my-client", Issuer: f.srv.URL + "/auth/", Secret: secret})
}

func TestAuthorize_BuildsURL(t *testing.T) {
	c := New(Config{ClientID: "my-client", Issuer: "http://localhost:3001/auth"})
	res, err := c.Authorize("http://127.0.0.1:5173/", WithPKCE(), WithState("st"), WithProvider("code"))
	require.NoError(t, err)

	u, err := url.Parse(res.URL)
	require.NoError(t, err)
	assert.Equal(t, "/auth/authorize", u.Path)
	q := u.Query()
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "my-client", q.Get("client_id"))
	assert.Equal(t, "http://127.0.0.1:5173/", q.Get("redirect_uri"))
	assert.Equal(t, "st", q.Get("state"))
	assert.Equal(t, "code", q.Get("provider"))
	assert.Equal(t, "S256", q.Get("code_challenge_method"))
	assert.Equal(t, helpers.ComputeS256Challenge(res.Verifier), q.Get("code_challenge"))
}

func TestAuthorize_WithoutPKCE(t *testing.T) {
	c := New(Config{ClientID: "hono-app", Issuer: "http://localhost:3001/auth"})
	res, err := c.Authorize("http://localhost:3000/callback")
	require.NoError(t, err)
	assert.Empty(t, res.Verifier)
	assert.NotContains(t, res.URL, "code_challenge")
}

func TestExchange(t *testing.T) {
	f := newFakeIssuer(t)
	c := f.client("")

	tokens, err := c.Exchange(context.Background(), "good", "http://127.0.0.1:5173/", "verifier")
	require.NoError(t, err)
	assert.NotEmpty(t, tokens.AccessToken)
	assert.Equal(t, "r-2", tokens.RefreshToken)
	assert.Equal(t, "verifier", f.lastForm.Get("code_verifier"))
	assert.Equal(t, "my-client", f.lastForm.Get("client_id"))

	_, err = c.Exchange(context.Background(), "bad", "http://127.0.0.1:5173/", "")
	var oe *Error
	require.ErrorAs(t, err, &oe)
	assert.Equal(t, "invalid_grant", oe.Code)
	assert.Equal(t, http.StatusBadRequest, oe.Status)

	_, err = c.Exchange(context.Background(), "", "x", "")
	assert.ErrorIs(t, err, ErrMissingCode)
}

func TestVerify_LocalSignature(t *testing.T) {
	f := newFakeIssuer(t)
	c := f.client(testSecret)
	access, _, err := f.jwt.GenerateAccessToken(alice, "my-client")
	require.NoError(t, err)

	res, err := c.Verify(context.Background(), access, "")
	require.NoError(t, err)
	assert.Equal(t, alice, res.Subject)
	assert.Nil(t, res.Tokens)
}

func TestVerify_AudienceMismatch(t *testing.T) {
	f := newFakeIssuer(t)
	c := f.client(testSecret)
	access, _, err := f.jwt.GenerateAccessToken(alice, "someone-else")
	require.NoError(t, err)

	_, err = c.Verify(context.Background(), access, "")
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestVerify_ExpiredAccessRefreshes(t *testing.T) {
	f := newFakeIssuer(t)
	c := f.client(testSecret)
	expired := &helpers.JWTManager{AccessSecret: []byte(testSecret), AccessTTL: -time.Minute, Issuer: f.jwt.Issuer}
	access, _, err := expired.GenerateAccessToken(alice, "my-client")
	require.NoError(t, err)

	res, err := c.Verify(context.Background(), access, "r-1")
	require.NoError(t, err)
	require.NotNil(t, res.Tokens)
	assert.Equal(t, "r-2", res.Tokens.RefreshToken)
	assert.Equal(t, alice, res.Subject)
}

func TestVerify_RefreshRejected(t *testing.T) {
	f := newFakeIssuer(t)
	c := f.client(testSecret)

	_, err := c.Verify(context.Background(), "garbage", "unknown")
	assert.ErrorIs(t, err, ErrUnauthenticated)

	_, err = c.Verify(context.Background(), "", "")
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestVerify_ViaUserInfo(t *testing.T) {
	f := newFakeIssuer(t)
	c := f.client("")
	access, _, err := f.jwt.GenerateAccessToken(alice, "my-client")
	require.NoError(t, err)

	res, err := c.Verify(context.Background(), access, "")
	require.NoError(t, err)
	assert.Equal(t, alice, res.Subject)

	_, err = c.UserInfo(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrUnauthenticated)
}
