package router

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oksasatya/magic-code-auth/config"
	"github.com/oksasatya/magic-code-auth/internal/application/auth"
	"github.com/oksasatya/magic-code-auth/internal/container"
	"github.com/oksasatya/magic-code-auth/internal/domain/entity"
	"github.com/oksasatya/magic-code-auth/internal/domain/repository"
	"github.com/oksasatya/magic-code-auth/pkg/authclient"
	"github.com/oksasatya/magic-code-auth/pkg/helpers"
	"github.com/oksasatya/magic-code-auth/pkg/validation"
)

func init() {
	gin.SetMode(gin.TestMode)
	validation.Init()
}

type memUsers struct {
	mu   sync.Mutex
	rows map[string]*entity.User
}

func (m *memUsers) Create(_ context.Context, u *entity.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if r.Email == u.Email {
			return repository.ErrDuplicateEmail
		}
	}
	u.CreatedAt = time.Now().UTC()
	cp := *u
	m.rows[u.ID] = &cp
	return nil
}

func (m *memUsers) GetByID(_ context.Context, id string) (*entity.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.rows[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, repository.ErrNotFound
}

func (m *memUsers) GetByEmail(_ context.Context, email string) (*entity.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.rows {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

type lastCode struct {
	mu   sync.Mutex
	code string
}

func (l *lastCode) SendCode(_ context.Context, msg auth.CodeMessage) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.code = msg.Code
	return nil
}

func (l *lastCode) get() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.code
}

// issuerServer starts the issuer exactly as cmd/issuer wires it, minus
// Postgres and Redis.
func issuerServer(t *testing.T) (*httptest.Server, *config.Config, *lastCode) {
	t.Helper()
	container.Reset()

	// the issuer URL must be known before the engine exists
	srv := httptest.NewUnstartedServer(nil)
	t.Setenv("ISSUER_URL", "http://"+srv.Listener.Addr().String()+"/auth")
	t.Setenv("JWT_ACCESS_SECRET", "router-test-secret")
	cfg := config.Load()
	jwtm := &helpers.JWTManager{AccessSecret: []byte(cfg.JWTAccessSecret), AccessTTL: cfg.AccessTTL, Issuer: cfg.IssuerURL}
	sender := &lastCode{}

	deps, err := NewIssuerDeps(cfg, helpers.NopLogger(), &memUsers{rows: map[string]*entity.User{}}, auth.NewMemoryStorage(), sender, jwtm, nil)
	require.NoError(t, err)

	engine := gin.New()
	reg := NewRegistry(engine, BasePath(cfg.IssuerURL))
	reg.UseCORS(CORS(cfg))
	InitIssuerModules(reg, deps, true, nil)
	reg.RegisterAll()
	srv.Config.Handler = engine
	srv.Start()
	t.Cleanup(srv.Close)
	return srv, cfg, sender
}

func noRedirect() *http.Client {
	return &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }}
}

func location(t *testing.T, resp *http.Response) *url.URL {
	t.Helper()
	require.Equal(t, http.StatusFound, resp.StatusCode)
	u, err := resp.Location()
	require.NoError(t, err)
	return u
}

// loginThroughBrowser plays the user agent: authorize, email form, code form.
// It returns the callback URL the issuer redirected to.
func loginThroughBrowser(t *testing.T, authorizeURL, email string, codes *lastCode) *url.URL {
	t.Helper()
	hc := noRedirect()

	resp, err := hc.Get(authorizeURL)
	require.NoError(t, err)
	_ = resp.Body.Close()
	codePage := location(t, resp)
	pendingID := codePage.Query().Get("pending_id")

	form := url.Values{"pending_id": {pendingID}, "action": {"request"}, "email": {email}}
	resp, err = hc.PostForm(codePage.String(), form)
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	form = url.Values{"pending_id": {pendingID}, "action": {"verify"}, "code": {codes.get()}}
	resp, err = hc.PostForm(codePage.String(), form)
	require.NoError(t, err)
	_ = resp.Body.Close()
	return location(t, resp)
}

func TestHealthAndMetadata(t *testing.T) {
	srv, _, _ := issuerServer(t)

	resp, err := http.Get(srv.URL + "/")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/auth/.well-known/oauth-authorization-server")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/auth/debug/vars")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var vars map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&vars))
	assert.Contains(t, vars, "auth_tokens_issued")
	assert.NotContains(t, vars, "memstats")
}

func TestCORSOnlyUnderIssuerPath(t *testing.T) {
	t.Setenv("CORS_ALLOWED_ORIGINS", "http://localhost:5173")
	srv, _, _ := issuerServer(t)

	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/auth/token", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "http://localhost:5173", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", resp.Header.Get("Access-Control-Allow-Credentials"))

	req, err = http.NewRequest(http.MethodGet, srv.URL+"/", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:5173")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestCLIFlowWithPKCEAndLifecycle(t *testing.T) {
	srv, cfg, codes := issuerServer(t)
	ctx := context.Background()

	client := authclient.New(authclient.Config{ClientID: "my-client", Issuer: cfg.IssuerURL, Secret: cfg.JWTAccessSecret})
	ar, err := client.Authorize("http://127.0.0.1:5173/", authclient.WithPKCE(), authclient.WithState("st"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(ar.URL, srv.URL+"/auth/authorize?"))

	callback := loginThroughBrowser(t, ar.URL, "Grace@Example.com", codes)
	assert.Equal(t, "127.0.0.1:5173", callback.Host)

	store := &authclient.MemoryStore{}
	lc := &authclient.Lifecycle{Client: client, Store: store, RedirectURI: "http://127.0.0.1:5173/", Verifier: ar.Verifier, State: ar.State}

	st := lc.Load(ctx, callback)
	require.True(t, st.Authenticated)
	assert.Empty(t, st.URL.Query().Get("code"))

	// a second load with the same code must not hit the token endpoint again
	st = lc.Load(ctx, callback)
	assert.True(t, st.Authenticated)

	st, err = lc.Authenticate(ctx)
	require.NoError(t, err)
	require.True(t, st.Authenticated)
	assert.Equal(t, "grace@example.com", st.Subject.Properties.Email)

	tokens, err := store.Get()
	require.NoError(t, err)
	info, err := client.UserInfo(ctx, tokens.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, st.Subject.Properties.ID, info.Properties.ID)
}

func TestDemoAppAgainstIssuer(t *testing.T) {
	_, cfg, codes := issuerServer(t)

	engine := gin.New()
	reg := NewRegistry(engine, "")
	require.NoError(t, InitAppModules(reg, cfg, NewAppClient(cfg), helpers.NopLogger(), "http://localhost:3000"))
	reg.RegisterAll()

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/login", nil))
	require.Equal(t, http.StatusFound, w.Code)

	callback := loginThroughBrowser(t, w.Header().Get("Location"), "heidi@example.com", codes)
	assert.Equal(t, "/callback", callback.Path)

	w = httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, callback.RequestURI(), nil))
	require.Equal(t, http.StatusFound, w.Code)
	cookies := w.Result().Cookies()
	require.Len(t, cookies, 2)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w = httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	assert.Contains(t, w.Body.String(), "Welcome heidi@example.com")
}
