package accounts

import (
	"context"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

var hideUserSQL = `UPDATE "users" AS "usr"
SET
	"hidden_at" = ?,
	"email" = ? || "email",
	"uname" = ? || "uname",
	"pnumber" = ? || "pnumber",
	"updated_at" = ?
WHERE
	"usr"."hidden_at" IS NULL
AND (
	"usr"."id" = ?
) RETURNING *;`

var verifyUserEmailSQL = `UPDATE "users" AS "usr"
SET
	"is_email_verified" = TRUE,
	"updated_at" = ?
WHERE
	"usr"."hidden_at" IS NULL
AND (
	"usr"."id" = ?
) RETURNING *;`

type Users interface {
	repository.Repository[*User]

	Register(ctx context.Context, user *User) (*User, error)
	RegisterTx(ctx context.Context, tx bun.IDB, user *User) (*User, error)

	GetActiveByEmail(ctx context.Context, email string) (*User, error)
	GetActiveByEmailTx(ctx context.Context, tx bun.IDB, email string) (*User, error)
	FindByID(ctx context.Context, id string) (*User, error)

	FindConflictsTx(ctx context.Context, tx bun.IDB, uname, pnumber, email string) (map[string]bool, error)

	TrackAttemptedLogin(ctx context.Context, user *User) error
	TrackAttemptedLoginTx(ctx context.Context, tx bun.IDB, user *User) error
	TrackSucccessfulLogin(ctx context.Context, user *User) error
	TrackSucccessfulLoginTx(ctx context.Context, tx bun.IDB, user *User) error

	VerifyEmailTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*User, error)
	HideTx(ctx context.Context, tx bun.IDB, id uuid.UUID, salt string, at time.Time) (*User, error)
	DeleteByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error
}

type users struct {
	repository.Repository[*User]
	db *bun.DB
}

var (
	_ Users                        = (*users)(nil)
	_ repository.Repository[*User] = (*users)(nil)
)

func NewUsersRepository(db *bun.DB) Users {
	repo := repository.NewRepository[*User](db, repository.ModelHandlers[*User]{
		NewRecord: func() *User { return &User{} },
		GetID: func(u *User) uuid.UUID {
			if u == nil {
				return uuid.Nil
			}
			return u.ID
		},
		SetID: func(u *User, id uuid.UUID) {
			if u != nil {
				u.ID = id
			}
		},
		GetIdentifier: func() string {
			return "email"
		},
	})

	return &users{
		Repository: repo,
		db:         db,
	}
}

func (a *users) Register(ctx context.Context, user *User) (*User, error) {
	return a.RegisterTx(ctx, a.db, user)
}

func (a *users) RegisterTx(ctx context.Context, tx bun.IDB, user *User) (*User, error) {
	if user != nil && user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	return a.Repository.CreateTx(ctx, tx, user)
}

// GetActiveByEmail resolves a user by email, excluding hidden accounts.
// Hidden accounts must be unreachable under their original identity, so
// every auth lookup path filters on hidden_at explicitly rather than relying
// on the salted-columns side effect.
func (a *users) GetActiveByEmail(ctx context.Context, email string) (*User, error) {
	return a.GetActiveByEmailTx(ctx, a.db, email)
}

func (a *users) GetActiveByEmailTx(ctx context.Context, tx bun.IDB, email string) (*User, error) {
	record := &User{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.email = ?", email).
		Where("?TableAlias.hidden_at IS NULL").
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{
					"email": email,
				})
		}
		return nil, err
	}

	return record, nil
}

// FindByID retrieves a record by internal id, hidden accounts included.
func (a *users) FindByID(ctx context.Context, id string) (*User, error) {
	return a.Repository.GetByID(ctx, id)
}

// FindConflictsTx probes the active records for uname/pnumber/email
// collisions and returns the set of taken fields. The unique indexes remain
// the arbiter under concurrent registration, this probe exists to produce
// field-level validation messages.
func (a *users) FindConflictsTx(ctx context.Context, tx bun.IDB, uname, pnumber, email string) (map[string]bool, error) {
	var records []*User
	err := tx.NewSelect().
		Model(&records).
		Column("uname", "pnumber", "email").
		Where("?TableAlias.hidden_at IS NULL").
		WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.
				WhereOr("?TableAlias.uname = ?", uname).
				WhereOr("?TableAlias.pnumber = ?", pnumber).
				WhereOr("?TableAlias.email = ?", email)
		}).
		Scan(ctx)

	if err != nil {
		return nil, err
	}

	taken := map[string]bool{}
	for _, record := range records {
		if record.Username == uname {
			taken["uname"] = true
		}
		if record.Phone == pnumber {
			taken["pnumber"] = true
		}
		if record.Email == email {
			taken["email"] = true
		}
	}

	return taken, nil
}

func (a *users) TrackSucccessfulLogin(ctx context.Context, user *User) error {
	return a.TrackSucccessfulLoginTx(ctx, a.db, user)
}

func (a *users) TrackSucccessfulLoginTx(ctx context.Context, tx bun.IDB, user *User) error {
	// NOTE: Updating using the ORM fails due to a bug, it wont reset
	// login_attempt_at, login_attempts fields.
	loggedInAt := time.Now()
	_, err := tx.NewRaw(`
		UPDATE "users" AS "usr"
		SET
			"loggedin_at" = ?,
			"login_attempt_at" = NULL,
			"login_attempts" = 0
		WHERE
			("usr".id = ?)
			AND "usr"."hidden_at" IS NULL;
	`, loggedInAt, user.ID).Exec(ctx)

	return err
}

func (a *users) TrackAttemptedLogin(ctx context.Context, user *User) error {
	return a.TrackAttemptedLoginTx(ctx, a.db, user)
}

func (a *users) TrackAttemptedLoginTx(ctx context.Context, tx bun.IDB, user *User) error {
	criteria := []repository.UpdateCriteria{
		repository.UpdateByID(user.ID.String()),
	}

	record := &User{}
	record.ID = user.ID
	record.LoginAttempts = user.LoginAttempts + 1
	now := time.Now()
	record.LoginAttemptAt = &now

	_, err := a.Repository.UpdateTx(ctx, tx, record, criteria...)

	return err
}

// VerifyEmailTx flips is_email_verified. The flag is monotonic so repeated
// calls are harmless.
func (a *users) VerifyEmailTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*User, error) {
	res, err := a.Repository.RawTx(ctx, tx, verifyUserEmailSQL, time.Now(), id.String())
	if err != nil {
		return nil, err
	}

	if len(res) == 0 {
		return nil, repository.NewRecordNotFound().
			WithMetadata(map[string]any{
				"id": id.String(),
			})
	}

	return res[0], nil
}

// HideTx anonymizes the identity columns with the salt prefix and stamps
// hidden_at. Only active records match, hiding twice is a not found.
func (a *users) HideTx(ctx context.Context, tx bun.IDB, id uuid.UUID, salt string, at time.Time) (*User, error) {
	res, err := a.Repository.RawTx(ctx, tx, hideUserSQL, at, salt, salt, salt, at, id.String())
	if err != nil {
		return nil, err
	}

	if len(res) == 0 {
		return nil, repository.NewRecordNotFound().
			WithMetadata(map[string]any{
				"id": id.String(),
			})
	}

	return res[0], nil
}

// DeleteByIDTx hard deletes the record.
func (a *users) DeleteByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error {
	_, err := tx.NewDelete().
		Model((*User)(nil)).
		Where("id = ?", id).
		Exec(ctx)

	return err
}
