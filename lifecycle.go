package accounts

import (
	"context"
	"fmt"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

// AccountState models the removal axis of the account state machine.
// Verified/unverified is orthogonal and tracked on the user record itself.
type AccountState string

const (
	// StateActive is a live, reachable account.
	StateActive AccountState = "active"
	// StateHidden is a soft deleted account: anonymized but retained.
	StateHidden AccountState = "hidden"
	// StateDeleted is terminal, the record is removed.
	StateDeleted AccountState = "deleted"
)

// StateOf derives the lifecycle state from a user record.
func StateOf(u *User) AccountState {
	if u == nil {
		return StateDeleted
	}
	if u.IsHidden() {
		return StateHidden
	}
	return StateActive
}

// defaultTransitions: hidden and deleted are mutually exclusive and only
// reachable from active. Neither transitions anywhere else.
var defaultTransitions = map[AccountState][]AccountState{
	StateActive: {StateHidden, StateDeleted},
}

// AccountLifecycle applies hide/delete transitions, enforcing state guards
// and emitting activity events.
type AccountLifecycle struct {
	users         Users
	verifications Verifications
	sink          ActivitySink
	logger        Logger
	clock         func() time.Time
	transitions   map[AccountState][]AccountState
}

// LifecycleOption customizes an AccountLifecycle.
type LifecycleOption func(*AccountLifecycle)

// WithLifecycleClock overrides the clock, used by tests for deterministic
// hide timestamps.
func WithLifecycleClock(clock func() time.Time) LifecycleOption {
	return func(l *AccountLifecycle) {
		if clock != nil {
			l.clock = clock
		}
	}
}

// WithLifecycleSink configures an ActivitySink for transition events.
func WithLifecycleSink(sink ActivitySink) LifecycleOption {
	return func(l *AccountLifecycle) {
		l.sink = normalizeActivitySink(sink)
	}
}

// WithLifecycleLogger overrides the logger.
func WithLifecycleLogger(logger Logger) LifecycleOption {
	return func(l *AccountLifecycle) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// NewAccountLifecycle creates the lifecycle manager over the given repos.
func NewAccountLifecycle(users Users, verifications Verifications, opts ...LifecycleOption) *AccountLifecycle {
	l := &AccountLifecycle{
		users:         users,
		verifications: verifications,
		sink:          noopActivitySink{},
		logger:        defLogger{},
		clock:         time.Now,
		transitions:   defaultTransitions,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}

	return l
}

// Hide soft deletes the user: sets hidden_at and salts the identity columns
// with a fresh random prefix so they no longer collide with the uniqueness
// constraints. The record is preserved. Verified flag and password hash are
// untouched.
func (l *AccountLifecycle) Hide(ctx context.Context, tx bun.IDB, actor ActorRef, user *User) (*User, error) {
	if err := l.guard(user, StateHidden); err != nil {
		return nil, err
	}

	salt := RandomToken(HideSaltLength)
	hidden, err := l.users.HideTx(ctx, tx, user.ID, salt, l.clock())
	if err != nil {
		return nil, err
	}

	l.emit(ctx, ActivityEventHidden, actor, user, StateActive, StateHidden, nil)

	return hidden, nil
}

// Delete permanently removes the user record and its verification records.
// Irreversible.
func (l *AccountLifecycle) Delete(ctx context.Context, tx bun.IDB, actor ActorRef, user *User) error {
	if err := l.guard(user, StateDeleted); err != nil {
		return err
	}

	if err := l.verifications.DeleteByUserTx(ctx, tx, user.ID); err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to delete verification records")
	}

	if err := l.users.DeleteByIDTx(ctx, tx, user.ID); err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to delete user record")
	}

	l.emit(ctx, ActivityEventDeleted, actor, user, StateActive, StateDeleted, nil)

	return nil
}

func (l *AccountLifecycle) guard(user *User, target AccountState) error {
	from := StateOf(user)
	for _, allowed := range l.transitions[from] {
		if allowed == target {
			return nil
		}
	}

	return errors.New(
		fmt.Sprintf("account transition from %q to %q is not allowed", from, target),
		errors.CategoryConflict,
	).WithTextCode("INVALID_TRANSITION").WithCode(errors.CodeConflict)
}

func (l *AccountLifecycle) emit(ctx context.Context, eventType ActivityEventType, actor ActorRef, user *User, from, to AccountState, metadata map[string]any) {
	if metadata == nil {
		metadata = map[string]any{}
	}

	event := ActivityEvent{
		EventType:  eventType,
		Actor:      actor,
		UserID:     user.ID.String(),
		FromState:  from,
		ToState:    to,
		Metadata:   metadata,
		OccurredAt: l.clock(),
	}

	if err := l.sink.Record(ctx, event); err != nil {
		l.logger.Warn("activity sink record error: %v", err)
	}
}
