package accounts

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

type HideAccountMessage struct {
	Email    string `json:"uemail"`
	Password string `json:"upassword"`
	// Session is the caller's live session. Its identity must match the
	// submitted email, hiding someone else's account is never allowed.
	Session Session

	OnResponse func(r *HideAccountResponse)
}

func (e HideAccountMessage) Type() string { return "account.hide" }

type HideAccountResponse struct {
	User *User `json:"user"`
}

type HideAccountHandler struct {
	repo      RepositoryManager
	provider  IdentityProvider
	lifecycle *AccountLifecycle
}

func NewHideAccountHandler(repo RepositoryManager, provider IdentityProvider, lifecycle *AccountLifecycle) *HideAccountHandler {
	return &HideAccountHandler{
		repo:      repo,
		provider:  provider,
		lifecycle: lifecycle,
	}
}

func (h *HideAccountHandler) Execute(ctx context.Context, event HideAccountMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during account hiding")
	default:
		return h.execute(ctx, event)
	}
}

func (h *HideAccountHandler) execute(ctx context.Context, event HideAccountMessage) error {
	identity, err := h.provider.VerifyCredentials(ctx, event.Email, event.Password)
	if err != nil {
		return err
	}

	if event.Session == nil {
		return ErrNoActiveSession
	}

	sessionIdentity, err := h.provider.FindIdentityByIdentifier(ctx, event.Session.GetUserID())
	if err != nil {
		return ErrNoActiveSession
	}

	// cross-account tamper guard: the session owner and the submitted
	// email must be the same account
	if sessionIdentity.Email() != event.Email {
		return ErrRequestNotAllowed
	}

	resp := &HideAccountResponse{}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		user, err := h.repo.Users().GetActiveByEmailTx(ctx, tx, event.Email)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve user for hiding")
		}

		actor := ActorRef{ID: identity.ID(), Type: "user"}
		hidden, err := h.lifecycle.Hide(ctx, tx, actor, user)
		if err != nil {
			return err
		}

		resp.User = hidden
		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "account hiding transaction failed")
	}

	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}
