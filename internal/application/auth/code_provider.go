package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oksasatya/magic-code-auth/pkg/helpers"
)

// CodeMessage is what a CodeSender delivers to the user.
type CodeMessage struct {
	Email     string
	Code      string
	ExpiresIn time.Duration
	IP        string
	UserAgent string
}

// CodeSender delivers a plaintext login code.
type CodeSender interface {
	SendCode(ctx context.Context, msg CodeMessage) error
}

// CodeSenderFunc adapts a function to CodeSender.
type CodeSenderFunc func(ctx context.Context, msg CodeMessage) error

func (f CodeSenderFunc) SendCode(ctx context.Context, msg CodeMessage) error { return f(ctx, msg) }

// RequestMeta is request information forwarded to the code email.
type RequestMeta struct {
	IP        string
	UserAgent string
}

type codeState struct {
	Email     string    `json:"email"`
	Hash      string    `json:"hash"`
	ExpiresAt time.Time `json:"expires_at"`
}

// CodeProvider issues and verifies email login codes. One code is live per
// pending authorization; starting again replaces it.
type CodeProvider struct {
	store       Storage
	sender      CodeSender
	ttl         time.Duration
	maxAttempts int
	now         func() time.Time
}

func NewCodeProvider(store Storage, sender CodeSender, ttl time.Duration, maxAttempts int) *CodeProvider {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	return &CodeProvider{store: store, sender: sender, ttl: ttl, maxAttempts: maxAttempts, now: time.Now}
}

// NormalizeEmail trims and lower-cases an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Start generates a code for email, stores its hash and sends it.
func (p *CodeProvider) Start(ctx context.Context, pendingID, email string, meta RequestMeta) error {
	email = NormalizeEmail(email)
	if email == "" {
		return ErrInvalidEmail
	}
	code, err := helpers.GenOTPCode()
	if err != nil {
		return fmt.Errorf("generate code: %w", err)
	}
	hash, err := helpers.HashCode(code)
	if err != nil {
		return fmt.Errorf("hash code: %w", err)
	}
	key := helpers.KeyLoginCode(pendingID)
	st := codeState{Email: email, Hash: hash, ExpiresAt: p.now().Add(p.ttl)}
	// a fresh code gets a fresh attempt budget
	if err := p.store.Remove(ctx, helpers.KeyLoginAttempts(pendingID)); err != nil {
		return fmt.Errorf("reset attempts: %w", err)
	}
	if err := putJSON(ctx, p.store, key, st, p.ttl); err != nil {
		return fmt.Errorf("store code: %w", err)
	}
	msg := CodeMessage{Email: email, Code: code, ExpiresIn: p.ttl, IP: meta.IP, UserAgent: meta.UserAgent}
	if err := p.sender.SendCode(ctx, msg); err != nil {
		_ = p.store.Remove(ctx, key)
		return fmt.Errorf("send code: %w", err)
	}
	codesSent.Add(1)
	return nil
}

// Resend issues a fresh code to the email of the current code.
func (p *CodeProvider) Resend(ctx context.Context, pendingID string, meta RequestMeta) error {
	email, err := p.Email(ctx, pendingID)
	if err != nil {
		return err
	}
	return p.Start(ctx, pendingID, email, meta)
}

// Email returns the address the current code was sent to.
func (p *CodeProvider) Email(ctx context.Context, pendingID string) (string, error) {
	st, err := getJSON[codeState](ctx, p.store, helpers.KeyLoginCode(pendingID))
	if errors.Is(err, ErrNotFound) {
		return "", ErrCodeExpired
	}
	if err != nil {
		return "", err
	}
	return st.Email, nil
}

// Verify checks code and returns the claims {email}. A correct code is
// consumed. Every call is counted before the comparison, so concurrent
// guesses cannot exceed the attempt limit.
func (p *CodeProvider) Verify(ctx context.Context, pendingID, code string) (map[string]string, error) {
	key := helpers.KeyLoginCode(pendingID)
	attemptsKey := helpers.KeyLoginAttempts(pendingID)
	st, err := getJSON[codeState](ctx, p.store, key)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrCodeExpired
	}
	if err != nil {
		return nil, err
	}
	now := p.now()
	if !now.Before(st.ExpiresAt) {
		p.discard(ctx, pendingID)
		return nil, ErrCodeExpired
	}

	n, err := p.store.Incr(ctx, attemptsKey, st.ExpiresAt.Sub(now))
	if err != nil {
		return nil, fmt.Errorf("count attempt: %w", err)
	}
	if n > int64(p.maxAttempts) {
		p.discard(ctx, pendingID)
		return nil, ErrTooManyAttempts
	}

	if !helpers.CompareCode(st.Hash, strings.TrimSpace(code)) {
		codeFailures.Add(1)
		if n >= int64(p.maxAttempts) {
			p.discard(ctx, pendingID)
			return nil, ErrTooManyAttempts
		}
		return nil, ErrInvalidCode
	}

	taken, err := takeJSON[codeState](ctx, p.store, key)
	if errors.Is(err, ErrNotFound) {
		// a concurrent verify consumed it already
		return nil, ErrCodeExpired
	}
	if err != nil {
		return nil, err
	}
	if taken.Hash != st.Hash {
		// replaced by a resend while we compared; the checked code is stale
		if err := putJSON(ctx, p.store, key, taken, taken.ExpiresAt.Sub(p.now())); err != nil {
			return nil, err
		}
		return nil, ErrInvalidCode
	}
	_ = p.store.Remove(ctx, attemptsKey)
	codesVerified.Add(1)
	return map[string]string{"email": taken.Email}, nil
}

func (p *CodeProvider) discard(ctx context.Context, pendingID string) {
	_ = p.store.Remove(ctx, helpers.KeyLoginCode(pendingID))
	_ = p.store.Remove(ctx, helpers.KeyLoginAttempts(pendingID))
}
