package model

import "time"

// Roles carried in the users.role column and the JWT role claim.
const (
    RoleAdmin  = "admin"
    RoleMember = "member"
)

// User represents an application user record as stored in the `users`
// table.  The password hash never leaves the server.
type User struct {
    ID           int64  `db:"id" json:"id"`
    Username     string `db:"username" json:"username"`
    PasswordHash string `db:"password_hash" json:"-"`
    Role         string `db:"role" json:"role"`
}

// RefreshToken models an entry in the `refresh_tokens` table.  Only the
// SHA-256 hash of the token handed to the client is stored.
type RefreshToken struct {
    ID        int64      `db:"id"`
    UserID    int64      `db:"user_id"`
    TokenHash string     `db:"token_hash"`
    ExpiresAt time.Time  `db:"expires_at"`
    RevokedAt *time.Time `db:"revoked_at"`
}

// Usable reports whether the token is neither revoked nor expired at now.
func (t RefreshToken) Usable(now time.Time) bool {
    return t.RevokedAt == nil && now.Before(t.ExpiresAt)
}

// ValidRole reports whether role is one the service understands.
func ValidRole(role string) bool { return role == RoleAdmin || role == RoleMember }
