package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewPool_BadDSN(t *testing.T) {
	_, err := NewPool(context.Background(), "::not a dsn::", 1, 0, time.Minute)
	assert.ErrorContains(t, err, "parse dsn")
}

func TestNewPool_CanceledWhileWaiting(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_, err := NewPool(ctx, "postgres://u:p@127.0.0.1:1/db?connect_timeout=1", 1, 0, time.Minute)
	assert.Error(t, err)
}
