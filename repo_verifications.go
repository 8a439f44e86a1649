package accounts

import (
	"context"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type Verifications interface {
	repository.Repository[*UserVerification]

	GetByToken(ctx context.Context, token string) (*UserVerification, error)
	GetByTokenTx(ctx context.Context, tx bun.IDB, token string) (*UserVerification, error)
	DeleteByUserTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) error
}

type verifications struct {
	repository.Repository[*UserVerification]
	db *bun.DB
}

var _ Verifications = (*verifications)(nil)

func NewVerificationsRepository(db *bun.DB) Verifications {
	repo := repository.NewRepository[*UserVerification](db, repository.ModelHandlers[*UserVerification]{
		NewRecord: func() *UserVerification { return &UserVerification{} },
		GetID: func(record *UserVerification) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return record.ID
		},
		SetID: func(record *UserVerification, id uuid.UUID) {
			if record != nil {
				record.ID = id
			}
		},
		GetIdentifier: func() string {
			return "token"
		},
	})

	return &verifications{
		Repository: repo,
		db:         db,
	}
}

func (v *verifications) GetByToken(ctx context.Context, token string) (*UserVerification, error) {
	return v.GetByTokenTx(ctx, v.db, token)
}

// GetByTokenTx loads the verification record with its owning user. The user
// join is unfiltered, verification state is frozen once an account hides.
func (v *verifications) GetByTokenTx(ctx context.Context, tx bun.IDB, token string) (*UserVerification, error) {
	record := &UserVerification{}
	err := tx.NewSelect().
		Model(record).
		Relation("User").
		Where("?TableAlias.token = ?", token).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{
					"token": token,
				})
		}
		return nil, err
	}

	return record, nil
}

// DeleteByUserTx removes all verification records owned by the user,
// keeping referential integrity when an account is hard deleted.
func (v *verifications) DeleteByUserTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) error {
	_, err := tx.NewDelete().
		Model((*UserVerification)(nil)).
		Where("user_id = ?", userID).
		Exec(ctx)

	return err
}
