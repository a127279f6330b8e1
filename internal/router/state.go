package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/qmuntal/stateless"

	"github.com/comigor/summarizer-go/internal/history"
	"github.com/comigor/summarizer-go/internal/kv"
	"github.com/comigor/summarizer-go/internal/logger"
)

// State is where a private conversation stands between two messages.
type State string

const (
	StateIdle                 State = "idle"
	StateAwaitingSummaryArgs  State = "awaiting_summary_args"
	StateAwaitingRemoveTarget State = "awaiting_remove_target"
)

// Trigger moves a conversation between states.
type Trigger string

const (
	TriggerSummarize Trigger = "Summarize" // /sum_up accepted
	TriggerRemove    Trigger = "Remove"    // /remove_chat accepted
	TriggerCancel    Trigger = "Cancel"    // cancel token
	TriggerInput     Trigger = "Input"     // free text consumed by the current state
	TriggerReset     Trigger = "Reset"     // any other command
)

// pendingCommand names the command a waiting state belongs to.
func (s State) pendingCommand() Command {
	switch s {
	case StateAwaitingSummaryArgs:
		return CmdSummarize
	case StateAwaitingRemoveTarget:
		return CmdRemoveChat
	case StateIdle:
		return ""
	}
	return ""
}

type stateRecord struct {
	State     State     `json:"state"`
	UpdatedAt time.Time `json:"updated_at"`
}

// stateStore persists one State per private chat under state/<chatID>.
type stateStore struct {
	kv      kv.Store
	history *history.Store
}

func stateName(chatID int64) string {
	return kv.Name("state", strconv.FormatInt(chatID, 10))
}

func (s *stateStore) get(ctx context.Context, chatID int64) (State, error) {
	data, err := s.kv.Get(ctx, stateName(chatID))
	if err == nil {
		var rec stateRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return StateIdle, fmt.Errorf("router: decode state %d: %w", chatID, err)
		}
		return rec.State, nil
	}
	if !errors.Is(err, kv.ErrNotFound) {
		return StateIdle, fmt.Errorf("router: read state %d: %w", chatID, err)
	}

	// Chats that predate explicit state: recover it from the last stored
	// message, then pin it so later reads don't see newer messages.
	st := StateIdle
	h, err := s.history.Load(ctx, chatID)
	if err != nil && !errors.Is(err, history.ErrNotFound) {
		return StateIdle, err
	}
	if last, ok := history.Last(h); ok {
		st = inferState(last.Text)
	}
	logger.L.Debug("conversation state inferred from history", "chat_id", chatID, "state", st)
	return st, s.set(ctx, chatID, st)
}

func (s *stateStore) set(ctx context.Context, chatID int64, st State) error {
	data, err := json.Marshal(stateRecord{State: st, UpdatedAt: time.Now().UTC()})
	if err != nil {
		return err
	}
	if err := s.kv.Put(ctx, stateName(chatID), data); err != nil {
		return fmt.Errorf("router: persist state %d: %w", chatID, err)
	}
	return nil
}

func inferState(lastText string) State {
	switch Command(lastText) {
	case CmdSummarize:
		return StateAwaitingSummaryArgs
	case CmdRemoveChat:
		return StateAwaitingRemoveTarget
	}
	return StateIdle
}

// machine builds the state machine of one private chat, backed by s.
func (s *stateStore) machine(chatID int64) *stateless.StateMachine {
	fsm := stateless.NewStateMachineWithExternalStorage(
		func(ctx context.Context) (stateless.State, error) {
			return s.get(ctx, chatID)
		},
		func(ctx context.Context, st stateless.State) error {
			return s.set(ctx, chatID, st.(State))
		},
		stateless.FiringImmediate,
	)

	fsm.Configure(StateIdle).
		Permit(TriggerSummarize, StateAwaitingSummaryArgs).
		Permit(TriggerRemove, StateAwaitingRemoveTarget).
		Ignore(TriggerCancel).
		Ignore(TriggerInput).
		Ignore(TriggerReset)

	fsm.Configure(StateAwaitingSummaryArgs).
		PermitReentry(TriggerSummarize).
		Permit(TriggerRemove, StateAwaitingRemoveTarget).
		Permit(TriggerCancel, StateIdle).
		Permit(TriggerInput, StateIdle).
		Permit(TriggerReset, StateIdle)

	fsm.Configure(StateAwaitingRemoveTarget).
		PermitReentry(TriggerRemove).
		Permit(TriggerSummarize, StateAwaitingSummaryArgs).
		Permit(TriggerCancel, StateIdle).
		Permit(TriggerInput, StateIdle).
		Permit(TriggerReset, StateIdle)

	return fsm
}

func currentState(ctx context.Context, fsm *stateless.StateMachine) (State, error) {
	st, err := fsm.State(ctx)
	if err != nil {
		return StateIdle, err
	}
	return st.(State), nil
}

func fire(ctx context.Context, fsm *stateless.StateMachine, chatID int64, t Trigger) {
	if err := fsm.FireCtx(ctx, t); err != nil {
		logger.L.Warn("FSM fire error", "chat_id", chatID, "trigger", t, "error", err)
	}
}
