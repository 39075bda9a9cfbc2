package entity

import (
	"time"
)

// User is the aggregate root for user domain.
// Rows are created on the first successful code login for an email and are
// never updated afterwards.
type User struct {
	ID        string
	Email     string
	CreatedAt time.Time
}
