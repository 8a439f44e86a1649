package accounts

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// User is the user model. Accounts are soft hidden by setting hidden_at and
// salting the identity columns; uniqueness of uname, pnumber, and email only
// holds among records where hidden_at is NULL.
type User struct {
	bun.BaseModel  `bun:"table:users,alias:usr"`
	ID             uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Username       string     `bun:"uname,notnull" json:"uname,omitempty"`
	FirstName      string     `bun:"fname,notnull" json:"fname,omitempty"`
	LastName       string     `bun:"lname,notnull" json:"lname,omitempty"`
	Phone          string     `bun:"pnumber,notnull" json:"pnumber,omitempty"`
	Email          string     `bun:"email,notnull" json:"email,omitempty"`
	PasswordHash   string     `bun:"password_hash,notnull" json:"-"`
	EmailValidated bool       `bun:"is_email_verified" json:"is_email_verified"`
	RememberToken  string     `bun:"remember_token" json:"-"`
	HiddenAt       *time.Time `bun:"hidden_at,nullzero" json:"hidden_at,omitempty"`
	LoginAttempts  int        `bun:"login_attempts" json:"-"`
	LoginAttemptAt *time.Time `bun:"login_attempt_at" json:"-"`
	LoggedInAt     *time.Time `bun:"loggedin_at" json:"loggedin_at,omitempty"`
	CreatedAt      *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt      *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// IsHidden reports whether the account has been soft deleted.
func (u *User) IsHidden() bool {
	return u != nil && u.HiddenAt != nil
}

// MarkHidden anonymizes the identity fields in memory by prefixing them with
// the salt and records the hide timestamp. The same salt is reused across
// all three fields so they stay internally correlated.
func (u *User) MarkHidden(salt string, at time.Time) *User {
	u.HiddenAt = &at
	u.Email = salt + u.Email
	u.Username = salt + u.Username
	u.Phone = salt + u.Phone
	return u
}

// MarkVerified flips the email verified flag. The flag is monotonic, it
// never reverts to false.
func (u *User) MarkVerified() *User {
	u.EmailValidated = true
	return u
}

// UserVerification is a single-use correlation record linking a random
// token to a user pending email verification.
type UserVerification struct {
	bun.BaseModel `bun:"table:users_verify,alias:uvf"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	UserID        *uuid.UUID `bun:"user_id,notnull" json:"user_id,omitempty"`
	User          *User      `bun:"rel:has-one,join:user_id=id" json:"user,omitempty"`
	Token         string     `bun:"token,notnull,unique" json:"token,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}

// NewUserVerification creates a verification record for the given user.
func NewUserVerification(userID uuid.UUID, token string) *UserVerification {
	return &UserVerification{
		ID:     uuid.New(),
		UserID: &userID,
		Token:  token,
	}
}
