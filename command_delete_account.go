package accounts

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

type DeleteAccountMessage struct {
	Email    string `json:"uemail"`
	Password string `json:"upassword"`
	// Session is the caller's live session, resolved by the transport
	// layer. Credentials are re-validated regardless, the session alone is
	// never trusted for account removal.
	Session Session

	OnResponse func(r *DeleteAccountResponse)
}

func (e DeleteAccountMessage) Type() string { return "account.delete" }

type DeleteAccountResponse struct {
	User *User `json:"user"`
}

type DeleteAccountHandler struct {
	repo      RepositoryManager
	provider  IdentityProvider
	lifecycle *AccountLifecycle
}

func NewDeleteAccountHandler(repo RepositoryManager, provider IdentityProvider, lifecycle *AccountLifecycle) *DeleteAccountHandler {
	return &DeleteAccountHandler{
		repo:      repo,
		provider:  provider,
		lifecycle: lifecycle,
	}
}

func (h *DeleteAccountHandler) Execute(ctx context.Context, event DeleteAccountMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during account deletion")
	default:
		return h.execute(ctx, event)
	}
}

func (h *DeleteAccountHandler) execute(ctx context.Context, event DeleteAccountMessage) error {
	identity, err := h.provider.VerifyCredentials(ctx, event.Email, event.Password)
	if err != nil {
		return err
	}

	if event.Session == nil {
		return ErrNoActiveSession
	}

	resp := &DeleteAccountResponse{}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		user, err := h.repo.Users().GetActiveByEmailTx(ctx, tx, event.Email)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve user for deletion")
		}

		actor := ActorRef{ID: identity.ID(), Type: "user"}
		if err := h.lifecycle.Delete(ctx, tx, actor, user); err != nil {
			return err
		}

		resp.User = user
		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "account deletion transaction failed")
	}

	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}
