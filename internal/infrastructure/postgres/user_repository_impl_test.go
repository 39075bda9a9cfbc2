package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oksasatya/magic-code-auth/internal/domain/entity"
	"github.com/oksasatya/magic-code-auth/internal/domain/repository"
)

type fakeRow struct {
	values []any
	err    error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if len(dest) != len(r.values) {
		return fmt.Errorf("scan: got %d dest, have %d values", len(dest), len(r.values))
	}
	for i, d := range dest {
		switch p := d.(type) {
		case *string:
			*p = r.values[i].(string)
		case *time.Time:
			*p = r.values[i].(time.Time)
		default:
			return fmt.Errorf("scan: unsupported dest %T", d)
		}
	}
	return nil
}

type fakeDB struct {
	lastSQL  string
	lastArgs []any
	row      fakeRow
}

func (f *fakeDB) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	f.lastSQL = sql
	f.lastArgs = args
	return f.row
}

func TestCreate_Success(t *testing.T) {
	created := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	db := &fakeDB{row: fakeRow{values: []any{created}}}
	repo := NewUserRepository(db)

	u := &entity.User{ID: "id-1", Email: "a@example.com"}
	require.NoError(t, repo.Create(context.Background(), u))

	assert.Equal(t, created, u.CreatedAt)
	assert.Contains(t, db.lastSQL, "INSERT INTO users (id, email)")
	assert.Equal(t, []any{"id-1", "a@example.com"}, db.lastArgs)
}

func TestCreate_DuplicateEmail(t *testing.T) {
	db := &fakeDB{row: fakeRow{err: &pgconn.PgError{Code: "23505", ConstraintName: "users_email_unique"}}}
	repo := NewUserRepository(db)

	err := repo.Create(context.Background(), &entity.User{ID: "id-1", Email: "a@example.com"})
	assert.ErrorIs(t, err, repository.ErrDuplicateEmail)
}

func TestCreate_OtherError(t *testing.T) {
	db := &fakeDB{row: fakeRow{err: errors.New("db down")}}
	repo := NewUserRepository(db)

	err := repo.Create(context.Background(), &entity.User{ID: "id-1", Email: "a@example.com"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, repository.ErrDuplicateEmail)
	assert.Contains(t, err.Error(), "db down")
}

func TestGetByEmail_Found(t *testing.T) {
	created := time.Now().UTC()
	db := &fakeDB{row: fakeRow{values: []any{"id-9", "b@example.com", created}}}
	repo := NewUserRepository(db)

	u, err := repo.GetByEmail(context.Background(), "b@example.com")
	require.NoError(t, err)
	assert.Equal(t, "id-9", u.ID)
	assert.Equal(t, "b@example.com", u.Email)
	assert.True(t, strings.Contains(db.lastSQL, "WHERE email = $1"))
}

func TestGetByID_NotFound(t *testing.T) {
	db := &fakeDB{row: fakeRow{err: pgx.ErrNoRows}}
	repo := NewUserRepository(db)

	u, err := repo.GetByID(context.Background(), "missing")
	assert.Nil(t, u)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}
