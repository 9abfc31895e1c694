package state

import (
	"errors"
	"fmt"
	"sync"
)

// Phase is a step of the match lifecycle.
type Phase int

const (
	NotJoined Phase = iota
	Joining
	Joined
	Started
	Ended
)

func (p Phase) String() string {
	switch p {
	case NotJoined:
		return "not_joined"
	case Joining:
		return "joining"
	case Joined:
		return "joined"
	case Started:
		return "started"
	case Ended:
		return "ended"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// 状态机接口
type StateMachine interface {
	ChangeState(to Phase) error
	GetCurrentState() Phase
	AddTransition(from Phase, to Phase, condition func() bool) error
	OnEnter(phase Phase, fn func())
}

// ErrTransitionNotAllowed is returned when a state transition is not allowed.
var ErrTransitionNotAllowed = errors.New("state transition not allowed")

// BaseStateMachine only moves along registered transitions. Listeners
// registered with OnEnter run after the change, outside the lock.
type BaseStateMachine struct {
	currentState Phase
	transitions  map[Phase]map[Phase]func() bool // fromState -> toState -> condition
	listeners    map[Phase][]func()
	mutex        sync.RWMutex
}

func NewBaseStateMachine(initial Phase) *BaseStateMachine {
	return &BaseStateMachine{
		currentState: initial,
		transitions:  make(map[Phase]map[Phase]func() bool),
		listeners:    make(map[Phase][]func()),
	}
}

// NewLifecycle returns a machine in NotJoined that only moves forward:
// every phase may advance to any later one, never back.
func NewLifecycle() *BaseStateMachine {
	sm := NewBaseStateMachine(NotJoined)
	for from := NotJoined; from < Ended; from++ {
		for to := from + 1; to <= Ended; to++ {
			sm.AddTransition(from, to, nil)
		}
	}
	return sm
}

func (sm *BaseStateMachine) ChangeState(to Phase) error {
	sm.mutex.Lock()
	from := sm.currentState
	condition, ok := sm.transitions[from][to]
	if !ok || (condition != nil && !condition()) {
		sm.mutex.Unlock()
		return fmt.Errorf("%w: %s -> %s", ErrTransitionNotAllowed, from, to)
	}
	sm.currentState = to
	listeners := append([]func(){}, sm.listeners[to]...)
	sm.mutex.Unlock()

	for _, fn := range listeners {
		fn()
	}
	return nil
}

func (sm *BaseStateMachine) GetCurrentState() Phase {
	sm.mutex.RLock()
	defer sm.mutex.RUnlock()
	return sm.currentState
}

func (sm *BaseStateMachine) AddTransition(from Phase, to Phase, condition func() bool) error {
	sm.mutex.Lock()
	defer sm.mutex.Unlock()

	if _, exists := sm.transitions[from]; !exists {
		sm.transitions[from] = make(map[Phase]func() bool)
	}
	sm.transitions[from][to] = condition
	return nil
}

// OnEnter registers fn to run each time the machine enters phase.
func (sm *BaseStateMachine) OnEnter(phase Phase, fn func()) {
	sm.mutex.Lock()
	defer sm.mutex.Unlock()
	sm.listeners[phase] = append(sm.listeners[phase], fn)
}
