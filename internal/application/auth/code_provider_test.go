package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSender struct {
	mu   sync.Mutex
	sent []CodeMessage
	err  error
}

func (r *recordingSender) SendCode(_ context.Context, msg CodeMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, msg)
	return nil
}

func (r *recordingSender) last(t *testing.T) CodeMessage {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	require.NotEmpty(t, r.sent, "no code sent")
	return r.sent[len(r.sent)-1]
}

func wrongCode(code string) string {
	if code == "000000" {
		return "111111"
	}
	return "000000"
}

func TestCodeProvider_StartAndVerify(t *testing.T) {
	ctx := context.Background()
	sender := &recordingSender{}
	p := NewCodeProvider(NewMemoryStorage(), sender, time.Minute, 5)

	require.NoError(t, p.Start(ctx, "p1", "  Alice@Example.COM ", RequestMeta{IP: "1.2.3.4"}))
	msg := sender.last(t)
	assert.Equal(t, "alice@example.com", msg.Email)
	assert.Len(t, msg.Code, 6)
	assert.Equal(t, "1.2.3.4", msg.IP)

	claims, err := p.Verify(ctx, "p1", msg.Code)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"email": "alice@example.com"}, claims)

	// consumed
	_, err = p.Verify(ctx, "p1", msg.Code)
	assert.ErrorIs(t, err, ErrCodeExpired)
}

func TestCodeProvider_RejectsEmptyEmail(t *testing.T) {
	p := NewCodeProvider(NewMemoryStorage(), &recordingSender{}, time.Minute, 5)
	assert.ErrorIs(t, p.Start(context.Background(), "p1", "   ", RequestMeta{}), ErrInvalidEmail)
}

func TestCodeProvider_AttemptsAreBounded(t *testing.T) {
	ctx := context.Background()
	sender := &recordingSender{}
	p := NewCodeProvider(NewMemoryStorage(), sender, time.Minute, 3)
	require.NoError(t, p.Start(ctx, "p1", "a@example.com", RequestMeta{}))
	code := sender.last(t).Code

	for n := 0; n < 2; n++ {
		_, err := p.Verify(ctx, "p1", wrongCode(code))
		assert.ErrorIs(t, err, ErrInvalidCode)
	}
	_, err := p.Verify(ctx, "p1", wrongCode(code))
	assert.ErrorIs(t, err, ErrTooManyAttempts)

	// the right code no longer works
	_, err = p.Verify(ctx, "p1", code)
	assert.ErrorIs(t, err, ErrCodeExpired)
}

func TestCodeProvider_ConcurrentGuessesAreBounded(t *testing.T) {
	ctx := context.Background()
	sender := &recordingSender{}
	const maxAttempts = 5
	p := NewCodeProvider(NewMemoryStorage(), sender, time.Minute, maxAttempts)
	require.NoError(t, p.Start(ctx, "p1", "a@example.com", RequestMeta{}))
	code := sender.last(t).Code

	const guesses = 40
	var (
		start   sync.WaitGroup
		done    sync.WaitGroup
		mu      sync.Mutex
		invalid int
		blocked int
	)
	start.Add(1)
	for i := 0; i < guesses; i++ {
		done.Add(1)
		go func() {
			defer done.Done()
			start.Wait()
			_, err := p.Verify(ctx, "p1", wrongCode(code))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case errors.Is(err, ErrInvalidCode):
				invalid++
			case errors.Is(err, ErrTooManyAttempts), errors.Is(err, ErrCodeExpired):
				blocked++
			}
		}()
	}
	start.Done()
	done.Wait()

	assert.LessOrEqual(t, invalid, maxAttempts-1)
	assert.Equal(t, guesses, invalid+blocked)

	_, err := p.Verify(ctx, "p1", code)
	assert.Error(t, err)
}

// hookStorage runs onIncr once, between the read of the code and its
// comparison inside Verify.
type hookStorage struct {
	Storage
	once   sync.Once
	onIncr func()
}

func (h *hookStorage) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	h.once.Do(h.onIncr)
	return h.Storage.Incr(ctx, key, ttl)
}

func TestCodeProvider_ResendDuringVerifyKeepsNewCode(t *testing.T) {
	ctx := context.Background()
	sender := &recordingSender{}
	store := &hookStorage{Storage: NewMemoryStorage()}
	p := NewCodeProvider(store, sender, time.Minute, 5)
	require.NoError(t, p.Start(ctx, "p1", "a@example.com", RequestMeta{}))
	first := sender.last(t).Code

	var second string
	store.onIncr = func() {
		require.NoError(t, p.Resend(ctx, "p1", RequestMeta{}))
		second = sender.last(t).Code
	}

	_, err := p.Verify(ctx, "p1", first)
	assert.ErrorIs(t, err, ErrInvalidCode)

	claims, err := p.Verify(ctx, "p1", second)
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", claims["email"])
}

func TestCodeProvider_Expired(t *testing.T) {
	ctx := context.Background()
	sender := &recordingSender{}
	p := NewCodeProvider(NewMemoryStorage(), sender, time.Minute, 5)
	require.NoError(t, p.Start(ctx, "p1", "a@example.com", RequestMeta{}))

	p.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	_, err := p.Verify(ctx, "p1", sender.last(t).Code)
	assert.ErrorIs(t, err, ErrCodeExpired)
}

func TestCodeProvider_ResendReplacesCode(t *testing.T) {
	ctx := context.Background()
	sender := &recordingSender{}
	p := NewCodeProvider(NewMemoryStorage(), sender, time.Minute, 5)
	require.NoError(t, p.Start(ctx, "p1", "a@example.com", RequestMeta{}))
	first := sender.last(t).Code

	require.NoError(t, p.Resend(ctx, "p1", RequestMeta{}))
	second := sender.last(t)
	assert.Equal(t, "a@example.com", second.Email)

	if first != second.Code {
		_, err := p.Verify(ctx, "p1", first)
		assert.ErrorIs(t, err, ErrInvalidCode)
	}
	_, err := p.Verify(ctx, "p1", second.Code)
	assert.NoError(t, err)
}

func TestCodeProvider_ResendWithoutStart(t *testing.T) {
	p := NewCodeProvider(NewMemoryStorage(), &recordingSender{}, time.Minute, 5)
	assert.ErrorIs(t, p.Resend(context.Background(), "nope", RequestMeta{}), ErrCodeExpired)
}

func TestCodeProvider_SendFailureDropsCode(t *testing.T) {
	ctx := context.Background()
	p := NewCodeProvider(NewMemoryStorage(), &recordingSender{err: errors.New("smtp down")}, time.Minute, 5)

	err := p.Start(ctx, "p1", "a@example.com", RequestMeta{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "smtp down")

	_, err = p.Email(ctx, "p1")
	assert.ErrorIs(t, err, ErrCodeExpired)
}
