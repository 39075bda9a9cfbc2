package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/oksasatya/magic-code-auth/internal/application/auth"
	"github.com/oksasatya/magic-code-auth/pkg/mailer"
	mailtpl "github.com/oksasatya/magic-code-auth/pkg/mailer/templates"
)

// LogSender writes login codes to the log instead of emailing them.
type LogSender struct {
	Logger *logrus.Logger
}

func (s LogSender) SendCode(_ context.Context, msg auth.CodeMessage) error {
	s.Logger.WithFields(logrus.Fields{
		"email":      msg.Email,
		"code":       msg.Code,
		"expires_in": msg.ExpiresIn.String(),
	}).Info("login code")
	return nil
}

// Publisher is satisfied by helpers.RabbitPublisher.
type Publisher interface {
	PublishJSON(ctx context.Context, body any) error
}

// QueueSender enqueues a login_code email job for the email worker.
type QueueSender struct {
	Publisher Publisher
	Branding  mailtpl.Branding
	Logger    *logrus.Logger
}

func (s QueueSender) SendCode(ctx context.Context, msg auth.CodeMessage) error {
	job := mailer.EmailJob{
		To:       msg.Email,
		Template: mailtpl.LoginCode,
		Data: mailtpl.NewLoginCodeData(s.Branding, msg.Email, msg.Code,
			mailtpl.WithExpiresIn(msg.ExpiresIn),
			mailtpl.WithIP(msg.IP),
			mailtpl.WithUserAgent(msg.UserAgent),
			mailtpl.WithTime(time.Now()),
		),
	}
	if err := s.Publisher.PublishJSON(ctx, job); err != nil {
		return fmt.Errorf("enqueue login code email: %w", err)
	}
	if s.Logger != nil {
		s.Logger.WithField("email", msg.Email).Debug("login code email queued")
	}
	return nil
}

var (
	_ auth.CodeSender = LogSender{}
	_ auth.CodeSender = QueueSender{}
)
