package authgate

import "context"

// User is the minimal account record the authentication layer needs.
// Profile fields beyond these live in the consuming application's own
// models.
type User struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	Role         string `json:"role"`
	PasswordHash string `json:"passwordHash,omitempty"`
	// OTP, when set, allows a one-time-password login for this account.
	OTP string `json:"otp,omitempty"`
}

// UserFilter selects a user record. Zero-valued fields are ignored; all
// set fields must match.
type UserFilter struct {
	ID    string
	Email string
	OTP   string
}

// UserRepository is the persistence contract the HTTP layer consumes.
// Implementations are expected to return [ErrUserNotFound] when no record
// matches; any other error is an infrastructure failure.
type UserRepository interface {
	Get(ctx context.Context, filter UserFilter) (*User, error)
	Create(ctx context.Context, user *User) error
	Update(ctx context.Context, user *User) error
	Delete(ctx context.Context, user *User) error
}

// PasswordVerifier checks a plaintext password against a stored hash.
// Implemented by [github.com/authgate/authgate/password.Hasher].
type PasswordVerifier interface {
	Verify(password, encodedHash string) (bool, error)
}
