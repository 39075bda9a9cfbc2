package mailer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewMailgun_Options(t *testing.T) {
	m := NewMailgun("mg.example.com", "key", "Login <no-reply@example.com>", WithTag("login-code"), WithAPIBase(""))
	assert.Equal(t, "login-code", m.Tag)
	assert.Equal(t, "Login <no-reply@example.com>", m.Sender)
	assert.Equal(t, 10*time.Second, m.Timeout)
}
