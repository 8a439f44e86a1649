package accounts

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

// Human readable outcomes surfaced by the verification redirect flow.
const (
	VerifyMessageNotFound        = "Sorry your email cannot be identified."
	VerifyMessageVerified        = "Your e-mail is verified. You can now login."
	VerifyMessageAlreadyVerified = "Your e-mail is already verified. You can now login."
)

type VerifyAccountMessage struct {
	Token      string `json:"token"`
	OnResponse func(r *VerifyAccountResponse)
}

func (e VerifyAccountMessage) Type() string { return "account.verify" }

type VerifyAccountResponse struct {
	Found           bool   `json:"found"`
	AlreadyVerified bool   `json:"already_verified"`
	Message         string `json:"message"`
}

type VerifyAccountHandler struct {
	repo   RepositoryManager
	sink   ActivitySink
	logger Logger
}

func NewVerifyAccountHandler(repo RepositoryManager) *VerifyAccountHandler {
	return &VerifyAccountHandler{
		repo:   repo,
		sink:   noopActivitySink{},
		logger: defLogger{},
	}
}

// WithActivitySink configures an ActivitySink for verification events.
func (h *VerifyAccountHandler) WithActivitySink(sink ActivitySink) *VerifyAccountHandler {
	h.sink = normalizeActivitySink(sink)
	return h
}

func (h *VerifyAccountHandler) WithLogger(l Logger) *VerifyAccountHandler {
	if l != nil {
		h.logger = l
	}
	return h
}

func (h *VerifyAccountHandler) Execute(ctx context.Context, event VerifyAccountMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during account verification")
	default:
		return h.execute(ctx, event)
	}
}

func (h *VerifyAccountHandler) execute(ctx context.Context, event VerifyAccountMessage) error {
	resp := &VerifyAccountResponse{}
	var verified *User

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		verification, err := h.repo.Verifications().GetByTokenTx(ctx, tx, event.Token)
		if err != nil {
			// an unknown token is part of the expected flow, not an
			// application error
			if repository.IsRecordNotFound(err) || goerrors.IsNotFound(err) {
				resp.Found = false
				resp.Message = VerifyMessageNotFound
				return nil
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve verification record")
		}

		resp.Found = true

		user := verification.User
		if user == nil {
			if verification.UserID == nil {
				return goerrors.New("verification record is missing its user", goerrors.CategoryInternal)
			}
			if user, err = h.repo.Users().FindByID(ctx, verification.UserID.String()); err != nil {
				return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve user for verification")
			}
		}

		// repeated verification never changes state, the flag is monotonic
		if user.EmailValidated {
			resp.AlreadyVerified = true
			resp.Message = VerifyMessageAlreadyVerified
			return nil
		}

		if _, err := h.repo.Users().VerifyEmailTx(ctx, tx, user.ID); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to mark email as verified")
		}

		verified = user
		resp.Message = VerifyMessageVerified
		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to execute account verification")
	}

	// only an actual flip is auditable, the not-found and repeat outcomes
	// leave no trace
	if verified != nil {
		if err := h.sink.Record(ctx, ActivityEvent{
			EventType:  ActivityEventVerified,
			Actor:      ActorRef{ID: verified.ID.String(), Type: "user"},
			UserID:     verified.ID.String(),
			FromState:  StateActive,
			ToState:    StateActive,
			OccurredAt: time.Now(),
		}); err != nil {
			h.logger.Warn("activity sink record error: %v", err)
		}
	}

	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}
