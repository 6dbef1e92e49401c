package registry

import (
	"fmt"

	nativecommon "gridchain/native/common"
)

const moduleName = "registry"

// engineState abstracts the subset of state manager functionality required
// by the registry.
type engineState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

var participantPrefix = []byte("registry/participant/")

func participantKey(addr [20]byte) []byte {
	return []byte(fmt.Sprintf("%s%x", participantPrefix, addr))
}

// Engine maintains the participant registry consulted by the marketplace for
// authorization checks.
type Engine struct {
	state    engineState
	pauses   nativecommon.PauseView
	heightFn func() uint64
}

// NewEngine constructs a registry engine bound to the provided state backend.
func NewEngine(state engineState) *Engine {
	return &Engine{state: state, heightFn: func() uint64 { return 0 }}
}

// SetPauses configures the pause view consulted before mutations.
func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

// SetHeightFunc overrides the ledger height source. The node injects its
// block-height counter; tests supply deterministic values.
func (e *Engine) SetHeightFunc(height func() uint64) {
	if e == nil {
		return
	}
	if height == nil {
		e.heightFn = func() uint64 { return 0 }
		return
	}
	e.heightFn = height
}

func (e *Engine) height() uint64 {
	if e == nil || e.heightFn == nil {
		return 0
	}
	return e.heightFn()
}

// Register records a new participant with the supplied role.
func (e *Engine) Register(addr [20]byte, role Role) (*Participant, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if !role.Valid() {
		return nil, ErrInvalidRole
	}
	key := participantKey(addr)
	ok, err := e.state.KVGet(key, nil)
	if err != nil {
		return nil, err
	}
	if ok {
		return nil, ErrAlreadyRegistered
	}
	height := e.height()
	participant := &Participant{
		Address:      addr,
		Role:         role,
		RegisteredAt: height,
		UpdatedAt:    height,
	}
	if err := e.state.KVPut(key, participant); err != nil {
		return nil, err
	}
	return participant.Clone(), nil
}

// UpdateRole replaces the participant's role. Only the participant updates
// their own record, so no separate caller check is needed here.
func (e *Engine) UpdateRole(addr [20]byte, role Role) (*Participant, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if !role.Valid() {
		return nil, ErrInvalidRole
	}
	participant, ok, err := e.Get(addr)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotRegistered
	}
	participant.Role = role
	participant.UpdatedAt = e.height()
	if err := e.state.KVPut(participantKey(addr), participant); err != nil {
		return nil, err
	}
	return participant.Clone(), nil
}

// Get fetches the participant record for addr.
func (e *Engine) Get(addr [20]byte) (*Participant, bool, error) {
	if e == nil || e.state == nil {
		return nil, false, ErrNilState
	}
	participant := new(Participant)
	ok, err := e.state.KVGet(participantKey(addr), participant)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	return participant, true, nil
}

// IsRegisteredAs reports whether addr is registered with the given role. The
// Both role satisfies a producer or consumer query.
func (e *Engine) IsRegisteredAs(addr [20]byte, role Role) (bool, error) {
	participant, ok, err := e.Get(addr)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	if participant.Role == role || participant.Role == RoleBoth {
		return true, nil
	}
	return false, nil
}

// RoleOf returns the participant's role, failing when unregistered.
func (e *Engine) RoleOf(addr [20]byte) (Role, error) {
	participant, ok, err := e.Get(addr)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, ErrNotRegistered
	}
	return participant.Role, nil
}
