// Package auth is the token issuer behind /auth: pending authorizations,
// the email code provider, single-use authorization codes and rotating
// refresh tokens. Persistence goes through the Storage key-value interface.
package auth
