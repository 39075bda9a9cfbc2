package application

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/magic-code-auth/internal/application/auth"
	"github.com/oksasatya/magic-code-auth/internal/domain/entity"
	repo "github.com/oksasatya/magic-code-auth/internal/domain/repository"
	"github.com/oksasatya/magic-code-auth/pkg/helpers"
)

var (
	// ErrUserUnavailable is the generic failure of GetOrCreate; the cause is logged.
	ErrUserUnavailable = errors.New("failed to get or create user")
	ErrUserNotFound    = errors.New("user not found")
	ErrUnknownProvider = errors.New("unknown provider")
	ErrMissingEmail    = errors.New("email claim is missing")
)

type Service struct {
	Repo         repo.UserRepository
	Logger       *logrus.Logger
	ES           *elasticsearch.Client
	ESUsersIndex string
	newID        func() string
}

func NewService(repo repo.UserRepository, logger *logrus.Logger, es *elasticsearch.Client, esUsersIndex string) *Service {
	if logger == nil {
		logger = helpers.NopLogger()
	}
	return &Service{
		Repo:         repo,
		Logger:       logger,
		ES:           es,
		ESUsersIndex: esUsersIndex,
		newID:        uuid.NewString,
	}
}

// GetOrCreate returns the user for email, creating it on first sight. A
// concurrent creator winning the insert is resolved by reading its row.
func (s *Service) GetOrCreate(ctx context.Context, email string) (*entity.User, error) {
	email = auth.NormalizeEmail(email)
	log := s.Logger.WithField("email", email)

	u, err := s.Repo.GetByEmail(ctx, email)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		log.WithError(err).Error("lookup user failed")
		return nil, ErrUserUnavailable
	}

	u = &entity.User{ID: s.newID(), Email: email}
	err = s.Repo.Create(ctx, u)
	switch {
	case err == nil:
		log.WithField("user_id", u.ID).Info("user created")
		s.indexUser(ctx, u)
		return u, nil
	case errors.Is(err, repo.ErrDuplicateEmail):
		existing, rerr := s.Repo.GetByEmail(ctx, email)
		if rerr != nil {
			log.WithError(rerr).Error("refetch after duplicate insert failed")
			return nil, ErrUserUnavailable
		}
		return existing, nil
	default:
		log.WithError(err).Error("create user failed")
		return nil, ErrUserUnavailable
	}
}

// Success is the issuer's success callback: it turns verified code claims
// into a user subject.
func (s *Service) Success(ctx context.Context, v auth.SuccessValue) (helpers.Subject, error) {
	if v.Provider != auth.ProviderCode {
		return helpers.Subject{}, fmt.Errorf("%w: %s", ErrUnknownProvider, v.Provider)
	}
	email := v.Claims["email"]
	if email == "" {
		return helpers.Subject{}, ErrMissingEmail
	}
	u, err := s.GetOrCreate(ctx, email)
	if err != nil {
		return helpers.Subject{}, err
	}
	return helpers.Subject{
		Type:       helpers.SubjectUser,
		Properties: helpers.SubjectProperties{ID: u.ID, Email: u.Email},
	}, nil
}

// GetByID loads a user for /userinfo.
func (s *Service) GetByID(ctx context.Context, id string) (*entity.User, error) {
	u, err := s.Repo.GetByID(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	return u, err
}

// indexUser is best effort; failures are only logged.
func (s *Service) indexUser(ctx context.Context, u *entity.User) {
	if s.ES == nil || s.ESUsersIndex == "" {
		return
	}
	doc := map[string]any{
		"id":         u.ID,
		"email":      u.Email,
		"created_at": u.CreatedAt.Format(time.RFC3339Nano),
	}
	b, _ := json.Marshal(doc)
	req := esapi.IndexRequest{Index: s.ESUsersIndex, DocumentID: u.ID, Body: bytes.NewReader(b), Refresh: "false"}
	c, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	res, err := req.Do(c, s.ES)
	if err != nil {
		s.Logger.WithError(err).WithField("user_id", u.ID).Warn("es index failed")
		return
	}
	defer func() { _ = res.Body.Close() }()
	if res.IsError() {
		s.Logger.WithField("status", res.Status()).WithField("user_id", u.ID).Warn("es index response error")
	}
}
