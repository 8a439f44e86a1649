package accounts

import (
	"context"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/nyaruka/phonenumbers"
	"github.com/uptrace/bun"
)

type RegisterUserMessage struct {
	Username  string `json:"uname"`
	FirstName string `json:"fname"`
	LastName  string `json:"lname"`
	Phone     string `json:"pnumber"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	UseHashid bool

	OnResponse func(r *RegisterUserResponse)
}

func (e RegisterUserMessage) Type() string { return "account.register" }

type RegisterUserResponse struct {
	User        *User  `json:"user"`
	VerifyToken string `json:"email_verify_token"`
}

type RegisterUserHandler struct {
	repo   RepositoryManager
	hasher PasswordAuthenticator
	sink   ActivitySink
	logger Logger
}

func NewRegisterUserHandler(repo RepositoryManager) *RegisterUserHandler {
	return &RegisterUserHandler{
		repo:   repo,
		hasher: NewPasswordHasher(),
		sink:   noopActivitySink{},
		logger: defLogger{},
	}
}

// WithHasher overrides the password hasher, used by tests to install
// deterministic fakes.
func (h *RegisterUserHandler) WithHasher(hasher PasswordAuthenticator) *RegisterUserHandler {
	if hasher != nil {
		h.hasher = hasher
	}
	return h
}

// WithActivitySink configures an ActivitySink for registration events.
func (h *RegisterUserHandler) WithActivitySink(sink ActivitySink) *RegisterUserHandler {
	h.sink = normalizeActivitySink(sink)
	return h
}

func (h *RegisterUserHandler) WithLogger(l Logger) *RegisterUserHandler {
	if l != nil {
		h.logger = l
	}
	return h
}

func (h *RegisterUserHandler) Execute(ctx context.Context, event RegisterUserMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during user registration",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *RegisterUserHandler) execute(ctx context.Context, event RegisterUserMessage) error {
	resp := &RegisterUserResponse{}
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		taken, err := h.repo.Users().FindConflictsTx(ctx, tx, event.Username, event.Phone, event.Email)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to check uniqueness constraints")
		}

		if len(taken) > 0 {
			fields := map[string]string{}
			for field := range taken {
				fields[field] = "The " + field + " has already been taken."
			}
			return ValidationFailed(fields)
		}

		hash, err := h.hasher.HashPassword(event.Password)
		if err != nil {
			var richErr *goerrors.Error
			if goerrors.As(err, &richErr) {
				return goerrors.Wrap(richErr, goerrors.CategoryValidation, "invalid password provided")
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
		}

		token := RandomToken(VerifyTokenLength)

		user := &User{
			Username:      getUsername(event.Username, event.Email),
			FirstName:     event.FirstName,
			LastName:      event.LastName,
			Phone:         normalizePhone(event.Phone),
			Email:         event.Email,
			PasswordHash:  hash,
			RememberToken: token,
		}
		if event.UseHashid {
			if id, err := hashid.NewUUID(event.Email); err == nil {
				user.ID = id
			}
		}

		if user, err = h.repo.Users().RegisterTx(ctx, tx, user); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryConflict, "could not create user")
		}

		verification := NewUserVerification(user.ID, token)
		if _, err = h.repo.Verifications().CreateTx(ctx, tx, verification); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "could not create verification record")
		}

		resp.User = user
		resp.VerifyToken = token

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}

		return goerrors.Wrap(err, goerrors.CategoryInternal, "user registration transaction failed")
	}

	h.emit(ctx, ActivityEvent{
		EventType:  ActivityEventRegistered,
		Actor:      ActorRef{ID: resp.User.ID.String(), Type: "user"},
		UserID:     resp.User.ID.String(),
		ToState:    StateActive,
		Metadata:   map[string]any{"email": resp.User.Email},
		OccurredAt: time.Now(),
	})

	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}

func (h *RegisterUserHandler) emit(ctx context.Context, event ActivityEvent) {
	if err := h.sink.Record(ctx, event); err != nil {
		h.logger.Warn("activity sink record error: %v", err)
	}
}

func getUsername(username, email string) string {
	if username != "" {
		return username
	}

	if strings.Contains(email, "@") {
		username = strings.Split(email, "@")[0]
	}

	return username
}

// normalizePhone canonicalizes numbers already in international form.
// Anything phonenumbers cannot parse is stored as submitted, the length
// constraint is the only hard requirement.
func normalizePhone(phone string) string {
	parsed, err := phonenumbers.Parse(phone, "")
	if err != nil || !phonenumbers.IsValidNumber(parsed) {
		return phone
	}
	return phonenumbers.Format(parsed, phonenumbers.E164)
}
