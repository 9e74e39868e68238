package state

import (
	"errors"
	"sync"

	"github.com/wfunc/ludoserver/models"
)

// 状态机接口
type StateMachine interface {
	ChangeState(state State) error
	GetCurrentState() State
	AddTransition(from State, to State, condition func() bool) error
}

// 状态接口
type State interface {
	OnEnter()
	OnExit()
	// OnUpdate runs the lazy clock checks before each action.
	OnUpdate()
	GetID() string
	HandleAction(player Player, action Action) error
}

// Action is one player request routed to the current phase state. Type is
// the websocket event name.
type Action struct {
	Type   string
	Name   string // player name, for join
	PawnID string // for move
	Flag   bool   // ready / paused
}

var (
	// ErrTransitionNotAllowed is returned when a state transition is not allowed.
	ErrTransitionNotAllowed = errors.New("state transition not allowed")
	// ErrNoop is returned by HandleAction when the action was accepted but
	// changed nothing, so there is nothing to save or broadcast.
	ErrNoop = errors.New("no state change")
)

// State ids.
const (
	IDWaiting  = "waiting"
	IDGaming   = "gaming"
	IDFinished = "finished"
)

// 基础状态机实现
type BaseStateMachine struct {
	currentState State
	transitions  map[string]map[string]func() bool // fromState -> toState -> condition
	mutex        sync.RWMutex
}

func NewBaseStateMachine(initialState State) *BaseStateMachine {
	machine := RestoreStateMachine(initialState)
	initialState.OnEnter()
	return machine
}

// RestoreStateMachine resumes a machine in a state that was already entered
// before, e.g. when a room is loaded from storage. OnEnter is not called.
func RestoreStateMachine(current State) *BaseStateMachine {
	return &BaseStateMachine{
		currentState: current,
		transitions:  make(map[string]map[string]func() bool),
	}
}

func (sm *BaseStateMachine) ChangeState(newState State) error {
	sm.mutex.Lock()
	defer sm.mutex.Unlock()

	currentID := sm.currentState.GetID()
	newID := newState.GetID()

	// 检查是否有转换条件
	if conditions, exists := sm.transitions[currentID]; exists {
		if condition, exists := conditions[newID]; exists {
			if condition != nil && !condition() {
				return ErrTransitionNotAllowed
			}
		}
	}

	sm.currentState.OnExit()
	sm.currentState = newState
	sm.currentState.OnEnter()

	return nil
}

func (sm *BaseStateMachine) GetCurrentState() State {
	sm.mutex.RLock()
	defer sm.mutex.RUnlock()
	return sm.currentState
}

func (sm *BaseStateMachine) AddTransition(from State, to State, condition func() bool) error {
	sm.mutex.Lock()
	defer sm.mutex.Unlock()

	fromID := from.GetID()
	toID := to.GetID()

	if _, exists := sm.transitions[fromID]; !exists {
		sm.transitions[fromID] = make(map[string]func() bool)
	}

	sm.transitions[fromID][toID] = condition
	return nil
}

// 房间状态基础结构
type RoomStateBase struct {
	ID   string
	Room RoomContext
}

func (s *RoomStateBase) GetID() string {
	return s.ID
}

func (s *RoomStateBase) OnEnter() {}

func (s *RoomStateBase) OnExit() {}

func (s *RoomStateBase) OnUpdate() {}

func (s *RoomStateBase) HandleAction(player Player, action Action) error {
	return ErrNoop
}

// ForRoom returns the phase state matching the flags of the loaded room.
func ForRoom(ctx RoomContext) State {
	room := ctx.Room()
	switch {
	case room.Concluded():
		return NewFinishedState(ctx, room.Winner)
	case room.Started:
		return NewGamingState(ctx)
	default:
		return NewWaitingState(ctx)
	}
}

// Restore builds the state machine of a loaded room with the phase
// transitions wired: the game only starts once everybody is ready, and a
// finished game never goes back.
func Restore(ctx RoomContext) *BaseStateMachine {
	sm := RestoreStateMachine(ForRoom(ctx))

	waiting, gaming := NewWaitingState(ctx), NewGamingState(ctx)
	finished := NewFinishedState(ctx, models.OutcomeNone)
	never := func() bool { return false }

	_ = sm.AddTransition(waiting, gaming, func() bool { return CanStart(ctx) })
	_ = sm.AddTransition(gaming, waiting, never)
	_ = sm.AddTransition(finished, waiting, never)
	_ = sm.AddTransition(finished, gaming, never)
	return sm
}
