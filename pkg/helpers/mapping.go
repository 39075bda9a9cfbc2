package helpers

import (
	"fmt"
	"strings"

	"github.com/oksasatya/magic-code-auth/pkg/mailer"
	mailtpl "github.com/oksasatya/magic-code-auth/pkg/mailer/templates"
)

// SubjectFor picks a fallback subject line when a job carries none.
func SubjectFor(job mailer.EmailJob) string {
	if job.Subject != "" {
		return job.Subject
	}
	switch strings.ToLower(job.Template) {
	case mailtpl.LoginCode:
		return "Your login code"
	default:
		return "Notification"
	}
}

func EnsureRecipientAndEmail(job *mailer.EmailJob) {
	if job.Data == nil {
		job.Data = map[string]any{}
	}
	if v, ok := job.Data["Email"]; !ok || fmt.Sprintf("%v", v) == "" {
		job.Data["Email"] = job.To
	}
}
