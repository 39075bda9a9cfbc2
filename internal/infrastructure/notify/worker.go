package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/oksasatya/magic-code-auth/pkg/helpers"
	"github.com/oksasatya/magic-code-auth/pkg/mailer"
	mailtpl "github.com/oksasatya/magic-code-auth/pkg/mailer/templates"
)

// ErrBadJob marks a message that can never be delivered; it should be
// dropped rather than requeued.
var ErrBadJob = errors.New("bad email job")

// MailSender is satisfied by *mailer.Mailgun.
type MailSender interface {
	Send(ctx context.Context, to, subject, text, html string) error
}

// Worker turns queued EmailJobs into sent mail.
type Worker struct {
	Mail        MailSender
	Logger      *logrus.Logger
	SendTimeout time.Duration
}

// Process decodes, renders and sends one queued message.
func (w *Worker) Process(ctx context.Context, body []byte) error {
	var job mailer.EmailJob
	if err := json.Unmarshal(body, &job); err != nil {
		return fmt.Errorf("%w: %v", ErrBadJob, err)
	}
	if job.To == "" {
		return fmt.Errorf("%w: missing recipient", ErrBadJob)
	}
	helpers.EnsureRecipientAndEmail(&job)

	subject, text, html := job.Subject, job.Text, job.HTML
	if job.Template != "" {
		s, t, h, err := mailtpl.Render(job.Template, job.Data)
		if err != nil {
			return fmt.Errorf("%w: render %s: %v", ErrBadJob, job.Template, err)
		}
		subject, text, html = s, t, h
	}
	if subject == "" {
		subject = helpers.SubjectFor(job)
	}

	timeout := w.SendTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	c, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := w.Mail.Send(c, job.To, subject, text, html); err != nil {
		return fmt.Errorf("send: %w", err)
	}
	if w.Logger != nil {
		w.Logger.WithFields(logrus.Fields{"to": job.To, "template": job.Template}).Info("email sent")
	}
	return nil
}
