package router

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/magic-code-auth/config"
	"github.com/oksasatya/magic-code-auth/internal/application"
	"github.com/oksasatya/magic-code-auth/internal/application/auth"
	"github.com/oksasatya/magic-code-auth/internal/container"
	"github.com/oksasatya/magic-code-auth/internal/domain/repository"
	"github.com/oksasatya/magic-code-auth/internal/infrastructure/notify"
	pginfra "github.com/oksasatya/magic-code-auth/internal/infrastructure/postgres"
	"github.com/oksasatya/magic-code-auth/internal/infrastructure/redisstore"
	handlers "github.com/oksasatya/magic-code-auth/internal/interface/http"
	"github.com/oksasatya/magic-code-auth/internal/interface/middleware"
	"github.com/oksasatya/magic-code-auth/internal/router/modules"
	"github.com/oksasatya/magic-code-auth/pkg/authclient"
	"github.com/oksasatya/magic-code-auth/pkg/helpers"
	mailtpl "github.com/oksasatya/magic-code-auth/pkg/mailer/templates"
)

// StoragePrefix namespaces issuer keys in Redis.
const StoragePrefix = "issuer:"

type IssuerDeps struct {
	Service *application.Service
	Issuer  *auth.Issuer
	Handler *handlers.IssuerHandler
}

// NewIssuerDeps builds the issuer object graph from explicit parts.
func NewIssuerDeps(cfg *config.Config, logger *logrus.Logger, repo repository.UserRepository, store auth.Storage, sender auth.CodeSender, jwtm *helpers.JWTManager, es *elasticsearch.Client) (IssuerDeps, error) {
	service := application.NewService(repo, logger, es, cfg.ESUsersIndex)
	codes := auth.NewCodeProvider(store, sender, cfg.LoginCodeTTL, cfg.LoginCodeMaxTry)
	issuer := auth.NewIssuer(auth.Config{
		IssuerURL:  cfg.IssuerURL,
		Clients:    cfg.Clients(),
		CodeTTL:    cfg.AuthCodeTTL,
		PendingTTL: cfg.PendingAuthTTL,
		RefreshTTL: cfg.RefreshTTL,
	}, store, codes, jwtm, service.Success, logger)

	views, err := handlers.NewViews()
	if err != nil {
		return IssuerDeps{}, err
	}
	handler := handlers.NewIssuerHandler(issuer, service, logger, views, BasePath(cfg.IssuerURL), cfg.AppName)
	return IssuerDeps{Service: service, Issuer: issuer, Handler: handler}, nil
}

// BuildIssuerDeps wires the issuer from the container singletons.
func BuildIssuerDeps() (IssuerDeps, error) {
	cfg := container.GetConfig()
	logger := container.GetLogger()
	repo := pginfra.NewUserRepository(container.GetPGPool())

	var store auth.Storage = auth.NewMemoryStorage()
	if rdb := container.GetRedis(); rdb != nil {
		store = redisstore.New(rdb, StoragePrefix)
	} else {
		logger.Warn("redis not configured; issuer state is kept in memory")
	}
	return NewIssuerDeps(cfg, logger, repo, store, CodeSender(cfg, logger), container.GetJWT(), container.GetES())
}

// CodeSender queues code emails when mail sending is enabled and RabbitMQ is
// available; otherwise codes are logged.
func CodeSender(cfg *config.Config, logger *logrus.Logger) auth.CodeSender {
	if cfg.MailSendEnabled {
		if pub := container.GetRabbitPub(); pub != nil {
			return notify.QueueSender{
				Publisher: pub,
				Branding:  mailtpl.Branding{AppName: cfg.AppName, CompanyName: cfg.CompanyName, SupportURL: cfg.SupportURL},
				Logger:    logger,
			}
		}
		logger.Warn("MAIL_SEND_ENABLED=true but RabbitMQ is unavailable; logging login codes")
	}
	return notify.LogSender{Logger: logger}
}

// BasePath is the path the issuer is mounted on, taken from its URL.
func BasePath(issuerURL string) string {
	u, err := url.Parse(issuerURL)
	if err != nil {
		return "/auth"
	}
	return strings.TrimRight(u.Path, "/")
}

// CORS is the issuer's cross-origin policy for browser clients.
func CORS(cfg *config.Config) gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowOrigins:     cfg.CORSOrigins(),
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:     []string{"Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           24 * time.Hour,
	})
}

// InitIssuerModules registers the issuer, health and (optionally) debug modules.
func InitIssuerModules(r *Registry, deps IssuerDeps, debug bool, allow middleware.AllowFunc) {
	r.AddRoot(modules.NewHealthModule(deps.Handler))
	r.Add(modules.NewIssuerModule(deps.Handler, deps.Issuer, allow))
	if debug {
		r.Add(modules.NewDebugModule("auth_"))
	}
}

// NewAppClient is the demo app's issuer client.
func NewAppClient(cfg *config.Config) *authclient.Client {
	return authclient.New(authclient.Config{
		ClientID: cfg.AppClientID,
		Issuer:   cfg.IssuerURL,
		Secret:   cfg.JWTAccessSecret,
	})
}

// InitAppModules registers the demo web app.
func InitAppModules(r *Registry, cfg *config.Config, client *authclient.Client, logger *logrus.Logger, publicURL string) error {
	views, err := handlers.NewViews()
	if err != nil {
		return err
	}
	cookieAge := cfg.CookieMaxAge
	if cookieAge <= 0 {
		cookieAge = 30 * 24 * time.Hour
	}
	cookies := helpers.NewCookie(cfg.CookieDomain, cfg.CookieSecure, cookieAge)
	h := handlers.NewAppHandler(client, cookies, logger, views, publicURL)
	r.Add(modules.NewAppModule(h, middleware.Session(client, cookies, logger)))
	return nil
}
