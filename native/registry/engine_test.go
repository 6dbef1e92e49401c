package registry

import (
	"bytes"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/rlp"

	nativecommon "gridchain/native/common"
)

type mockState struct {
	kv map[string][]byte
}

func newMockState() *mockState {
	return &mockState{kv: make(map[string][]byte)}
}

func (m *mockState) KVPut(key []byte, value interface{}) error {
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	m.kv[string(key)] = encoded
	return nil
}

func (m *mockState) KVGet(key []byte, out interface{}) (bool, error) {
	data, ok := m.kv[string(key)]
	if !ok {
		return false, nil
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}

func newTestAddress(fill byte) [20]byte {
	var addr [20]byte
	copy(addr[:], bytes.Repeat([]byte{fill}, 20))
	return addr
}

func newTestEngine() *Engine {
	engine := NewEngine(newMockState())
	height := uint64(1)
	engine.SetHeightFunc(func() uint64 { return height })
	return engine
}

func TestRegisterAndGet(t *testing.T) {
	engine := newTestEngine()
	addr := newTestAddress(0x10)

	if _, ok, err := engine.Get(addr); err != nil || ok {
		t.Fatalf("expected absent participant, ok=%v err=%v", ok, err)
	}

	participant, err := engine.Register(addr, RoleProducer)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if participant.Role != RoleProducer || participant.Address != addr {
		t.Fatalf("unexpected participant: %+v", participant)
	}
	if participant.RegisteredAt == 0 {
		t.Fatalf("registration height not recorded")
	}

	stored, ok, err := engine.Get(addr)
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if stored.Role != RoleProducer {
		t.Fatalf("stored role mismatch: %v", stored.Role)
	}

	if _, err := engine.Register(addr, RoleConsumer); !errors.Is(err, ErrAlreadyRegistered) {
		t.Fatalf("expected ErrAlreadyRegistered, got %v", err)
	}
	if _, err := engine.Register(newTestAddress(0x11), Role(9)); !errors.Is(err, ErrInvalidRole) {
		t.Fatalf("expected ErrInvalidRole, got %v", err)
	}
}

func TestUpdateRole(t *testing.T) {
	engine := newTestEngine()
	addr := newTestAddress(0x10)

	if _, err := engine.UpdateRole(addr, RoleBoth); !errors.Is(err, ErrNotRegistered) {
		t.Fatalf("expected ErrNotRegistered, got %v", err)
	}
	if _, err := engine.Register(addr, RoleConsumer); err != nil {
		t.Fatalf("register: %v", err)
	}
	updated, err := engine.UpdateRole(addr, RoleBoth)
	if err != nil {
		t.Fatalf("update role: %v", err)
	}
	if updated.Role != RoleBoth {
		t.Fatalf("expected RoleBoth, got %v", updated.Role)
	}
	if _, err := engine.UpdateRole(addr, Role(0)); !errors.Is(err, ErrInvalidRole) {
		t.Fatalf("expected ErrInvalidRole, got %v", err)
	}
}

func TestRoleCapabilities(t *testing.T) {
	cases := []struct {
		role    Role
		canSell bool
		canBuy  bool
	}{
		{RoleProducer, true, false},
		{RoleConsumer, false, true},
		{RoleBoth, true, true},
	}
	for _, tc := range cases {
		if tc.role.CanSell() != tc.canSell {
			t.Fatalf("%v CanSell = %v", tc.role, tc.role.CanSell())
		}
		if tc.role.CanBuy() != tc.canBuy {
			t.Fatalf("%v CanBuy = %v", tc.role, tc.role.CanBuy())
		}
	}
}

func TestIsRegisteredAs(t *testing.T) {
	engine := newTestEngine()
	producer := newTestAddress(0x10)
	both := newTestAddress(0x11)
	if _, err := engine.Register(producer, RoleProducer); err != nil {
		t.Fatalf("register producer: %v", err)
	}
	if _, err := engine.Register(both, RoleBoth); err != nil {
		t.Fatalf("register both: %v", err)
	}

	ok, err := engine.IsRegisteredAs(producer, RoleProducer)
	if err != nil || !ok {
		t.Fatalf("producer as producer: ok=%v err=%v", ok, err)
	}
	ok, err = engine.IsRegisteredAs(producer, RoleConsumer)
	if err != nil || ok {
		t.Fatalf("producer must not satisfy consumer: ok=%v err=%v", ok, err)
	}
	// Both satisfies either single role.
	ok, err = engine.IsRegisteredAs(both, RoleProducer)
	if err != nil || !ok {
		t.Fatalf("both as producer: ok=%v err=%v", ok, err)
	}
	ok, err = engine.IsRegisteredAs(both, RoleConsumer)
	if err != nil || !ok {
		t.Fatalf("both as consumer: ok=%v err=%v", ok, err)
	}
	ok, err = engine.IsRegisteredAs(newTestAddress(0x99), RoleProducer)
	if err != nil || ok {
		t.Fatalf("unknown address must not be registered: ok=%v err=%v", ok, err)
	}
	if _, err := engine.RoleOf(newTestAddress(0x99)); !errors.Is(err, ErrNotRegistered) {
		t.Fatalf("expected ErrNotRegistered from RoleOf, got %v", err)
	}
}

func TestParseRole(t *testing.T) {
	for wire, want := range map[string]Role{
		"producer": RoleProducer,
		"consumer": RoleConsumer,
		"both":     RoleBoth,
	} {
		got, err := ParseRole(wire)
		if err != nil || got != want {
			t.Fatalf("ParseRole(%q) = %v, %v", wire, got, err)
		}
		if got.String() != wire {
			t.Fatalf("round trip mismatch for %q: %q", wire, got.String())
		}
	}
	if _, err := ParseRole("prosumer"); !errors.Is(err, ErrInvalidRole) {
		t.Fatalf("expected ErrInvalidRole, got %v", err)
	}
}

func TestPauseBlocksRegistration(t *testing.T) {
	engine := newTestEngine()
	engine.SetPauses(nativecommon.Pauses{"registry": true})
	if _, err := engine.Register(newTestAddress(0x10), RoleProducer); !errors.Is(err, nativecommon.ErrModulePaused) {
		t.Fatalf("expected ErrModulePaused, got %v", err)
	}
}
