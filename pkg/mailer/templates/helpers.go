package templates

import (
	"strings"
	"time"
)

// Option pattern
type Option func(*EmailData)

func WithIP(ip string) Option        { return func(d *EmailData) { d.IP = strings.TrimSpace(ip) } }
func WithUserAgent(ua string) Option { return func(d *EmailData) { d.UserAgent = ua } }
func WithTime(t time.Time) Option {
	return func(d *EmailData) { d.Time = t.UTC().Format("02 January 2006, 15:04 MST") }
}

func WithExpiresIn(dur time.Duration) Option {
	return func(d *EmailData) {
		utc := time.Now().Add(dur).UTC()
		d.ExpiresAt = utc
		d.ExpiresAtText = utc.Format("02 January 2006, 15:04 MST")
	}
}

// Branding carries the company fields every email shows.
type Branding struct {
	AppName     string
	CompanyName string
	SupportURL  string
}

// NewLoginCodeData builds the data map for the login_code template.
func NewLoginCodeData(b Branding, email, code string, opts ...Option) map[string]any {
	d := EmailData{
		Email:       email,
		Type:        LoginCode,
		AppName:     b.AppName,
		CompanyName: b.CompanyName,
		SupportURL:  b.SupportURL,
		Code:        code,
	}
	for _, opt := range opts {
		opt(&d)
	}
	return ToMap(d)
}
