package auth_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	auth "github.com/weshop/go-auth"
)

func TestStateMachineActivatesPendingAccount(t *testing.T) {
	store := &MockAccounts{}
	userID := uuid.New()
	user := &auth.User{ID: userID, State: auth.StatePendingVerification}

	store.On("UpdateStateIf", mock.Anything, userID.String(), auth.StatePendingVerification, auth.StateActive).
		Return(&auth.User{ID: userID, State: auth.StateActive}, nil).Once()

	sm := auth.NewStateMachine(store)

	result, err := sm.Transition(context.Background(), auth.ActorRef{ID: "system"}, user, auth.StateActive)
	require.NoError(t, err)
	assert.True(t, result.IsActive())
	store.AssertExpectations(t)
}

func TestStateMachineRejectsIllegalTransitions(t *testing.T) {
	store := &MockAccounts{}
	sm := auth.NewStateMachine(store)

	tests := []struct {
		name string
		from auth.AccountState
		to   auth.AccountState
	}{
		{"active back to pending", auth.StateActive, auth.StatePendingVerification},
		{"pending to unknown state", auth.StatePendingVerification, "dormant"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user := &auth.User{ID: uuid.New(), State: tt.from}
			_, err := sm.Transition(context.Background(), auth.ActorRef{}, user, tt.to)
			require.Error(t, err)
			assert.ErrorIs(t, err, auth.ErrInvalidTransition)
		})
	}

	store.AssertNotCalled(t, "UpdateStateIf", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestStateMachineBannedIsTerminal(t *testing.T) {
	store := &MockAccounts{}
	sm := auth.NewStateMachine(store)
	user := &auth.User{ID: uuid.New(), State: auth.StateBanned}

	_, err := sm.Transition(context.Background(), auth.ActorRef{ID: "admin"}, user, auth.StateActive)
	require.Error(t, err)
	assert.ErrorIs(t, err, auth.ErrTerminalState)
	store.AssertNotCalled(t, "UpdateStateIf", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestStateMachineForceBypassesTerminalGuard(t *testing.T) {
	store := &MockAccounts{}
	userID := uuid.New()
	user := &auth.User{ID: userID, State: auth.StateBanned}

	store.On("UpdateStateIf", mock.Anything, userID.String(), auth.StateBanned, auth.StateActive).
		Return(&auth.User{ID: userID, State: auth.StateActive}, nil).Once()

	sm := auth.NewStateMachine(store)

	result, err := sm.Transition(context.Background(), auth.ActorRef{ID: "admin"}, user, auth.StateActive, auth.WithForceTransition())
	require.NoError(t, err)
	assert.True(t, result.IsActive())
	store.AssertExpectations(t)
}

func TestStateMachineSameStateIsNoOp(t *testing.T) {
	store := &MockAccounts{}
	sm := auth.NewStateMachine(store)
	user := &auth.User{ID: uuid.New(), State: auth.StateActive}

	result, err := sm.Transition(context.Background(), auth.ActorRef{}, user, auth.StateActive)
	require.NoError(t, err)
	assert.Equal(t, user, result)
	store.AssertNotCalled(t, "UpdateStateIf", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestStateMachineNilUserRejected(t *testing.T) {
	sm := auth.NewStateMachine(&MockAccounts{})

	_, err := sm.Transition(context.Background(), auth.ActorRef{}, nil, auth.StateActive)
	require.Error(t, err)
	assert.ErrorIs(t, err, auth.ErrInvalidTransition)
}

func TestStateMachinePropagatesConcurrentWriteConflict(t *testing.T) {
	store := &MockAccounts{}
	userID := uuid.New()
	user := &auth.User{ID: userID, State: auth.StateActive}

	conflict := assert.AnError
	store.On("UpdateStateIf", mock.Anything, userID.String(), auth.StateActive, auth.StateBanned).
		Return(nil, conflict).Once()

	sm := auth.NewStateMachine(store)

	_, err := sm.Transition(context.Background(), auth.ActorRef{}, user, auth.StateBanned)
	require.ErrorIs(t, err, conflict)
}

func TestStateMachineEmitsActivityWithMetadata(t *testing.T) {
	store := &MockAccounts{}
	sink := &capturingSink{}
	userID := uuid.New()
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	user := &auth.User{ID: userID, State: auth.StatePendingVerification}

	store.On("UpdateStateIf", mock.Anything, userID.String(), auth.StatePendingVerification, auth.StateBanned).
		Return(&auth.User{ID: userID, State: auth.StateBanned}, nil).Once()

	sm := auth.NewStateMachine(store,
		auth.WithStateMachineActivitySink(sink),
		auth.WithStateMachineClock(func() time.Time { return now }),
	)

	_, err := sm.Transition(context.Background(), auth.ActorRef{ID: "moderator", Type: "admin"}, user, auth.StateBanned,
		auth.WithTransitionReason("abusive signup"),
		auth.WithTransitionMetadata(map[string]any{"report_id": "rpt-12"}),
	)
	require.NoError(t, err)

	require.Len(t, sink.events, 1)
	evt := sink.events[0]
	assert.Equal(t, auth.ActivityEventStateChanged, evt.EventType)
	assert.Equal(t, "moderator", evt.Actor.ID)
	assert.Equal(t, userID.String(), evt.UserID)
	assert.Equal(t, auth.StatePendingVerification, evt.FromState)
	assert.Equal(t, auth.StateBanned, evt.ToState)
	assert.Equal(t, "abusive signup", evt.Metadata["reason"])
	assert.Equal(t, "rpt-12", evt.Metadata["report_id"])
	assert.Equal(t, now, evt.OccurredAt)
}

func TestStateMachineCanTransition(t *testing.T) {
	sm := auth.NewStateMachine(&MockAccounts{})

	assert.True(t, sm.CanTransition(auth.StatePendingVerification, auth.StateActive))
	assert.True(t, sm.CanTransition(auth.StatePendingVerification, auth.StateBanned))
	assert.True(t, sm.CanTransition(auth.StateActive, auth.StateBanned))
	assert.False(t, sm.CanTransition(auth.StateActive, auth.StatePendingVerification))
	assert.False(t, sm.CanTransition(auth.StateBanned, auth.StateActive))
	assert.False(t, sm.CanTransition(auth.StateBanned, auth.StatePendingVerification))
}

func TestStateMachineCurrentStateBackfillsEmpty(t *testing.T) {
	sm := auth.NewStateMachine(&MockAccounts{})

	assert.Equal(t, auth.StatePendingVerification, sm.CurrentState(&auth.User{}))
	assert.Equal(t, auth.StateActive, sm.CurrentState(&auth.User{State: auth.StateActive}))
	assert.Equal(t, "", sm.CurrentState(nil))
}
