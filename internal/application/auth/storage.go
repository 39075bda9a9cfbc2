package auth

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"time"
)

// ErrNotFound is returned by Storage when a key is absent or expired.
var ErrNotFound = errors.New("storage: key not found")

// Storage is the issuer's key-value store. Every value has a TTL.
type Storage interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Take returns the value and deletes the key in one step, so only one
	// caller can consume a single-use record.
	Take(ctx context.Context, key string) ([]byte, error)
	Remove(ctx context.Context, key string) error
	// Incr atomically adds one to a counter and returns the new value. The
	// TTL is applied when the counter is created and never extended.
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

func putJSON(ctx context.Context, s Storage, key string, v any, ttl time.Duration) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.Set(ctx, key, b, ttl)
}

func getJSON[T any](ctx context.Context, s Storage, key string) (*T, error) {
	b, err := s.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

func takeJSON[T any](ctx context.Context, s Storage, key string) (*T, error) {
	b, err := s.Take(ctx, key)
	if err != nil {
		return nil, err
	}
	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryStorage keeps everything in process memory. Suitable for tests and
// single-instance development servers.
type MemoryStorage struct {
	mu    sync.Mutex
	data  map[string]memoryEntry
	clock func() time.Time
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{data: map[string]memoryEntry{}, clock: time.Now}
}

func (m *MemoryStorage) getLocked(key string) ([]byte, bool) {
	e, ok := m.data[key]
	if !ok {
		return nil, false
	}
	if !e.expiresAt.IsZero() && !m.clock().Before(e.expiresAt) {
		delete(m.data, key)
		return nil, false
	}
	return e.value, true
}

func (m *MemoryStorage) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.getLocked(key)
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (m *MemoryStorage) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := memoryEntry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expiresAt = m.clock().Add(ttl)
	}
	m.data[key] = e
	return nil
}

func (m *MemoryStorage) Take(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.getLocked(key)
	if !ok {
		return nil, ErrNotFound
	}
	delete(m.data, key)
	return v, nil
}

func (m *MemoryStorage) Remove(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *MemoryStorage) Incr(_ context.Context, key string, ttl time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := memoryEntry{}
	if v, ok := m.getLocked(key); ok {
		n, err := strconv.ParseInt(string(v), 10, 64)
		if err != nil {
			return 0, err
		}
		e = m.data[key]
		e.value = strconv.AppendInt(nil, n+1, 10)
		m.data[key] = e
		return n + 1, nil
	}
	e.value = []byte("1")
	if ttl > 0 {
		e.expiresAt = m.clock().Add(ttl)
	}
	m.data[key] = e
	return 1, nil
}

var _ Storage = (*MemoryStorage)(nil)
