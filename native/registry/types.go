package registry

import "errors"

// Role describes how a participant may act on the marketplace.
type Role uint8

const (
	RoleProducer Role = iota + 1
	RoleConsumer
	RoleBoth
)

var (
	ErrNilState          = errors.New("registry: state not configured")
	ErrInvalidRole       = errors.New("registry: invalid role")
	ErrAlreadyRegistered = errors.New("registry: participant already registered")
	ErrNotRegistered     = errors.New("registry: participant not registered")
)

// Valid reports whether the role value is within the supported range.
func (r Role) Valid() bool {
	switch r {
	case RoleProducer, RoleConsumer, RoleBoth:
		return true
	default:
		return false
	}
}

// CanSell reports whether the role allows offering energy for sale.
func (r Role) CanSell() bool {
	return r == RoleProducer || r == RoleBoth
}

// CanBuy reports whether the role allows purchasing energy.
func (r Role) CanBuy() bool {
	return r == RoleConsumer || r == RoleBoth
}

func (r Role) String() string {
	switch r {
	case RoleProducer:
		return "producer"
	case RoleConsumer:
		return "consumer"
	case RoleBoth:
		return "both"
	default:
		return "unknown"
	}
}

// ParseRole maps the wire representation of a role to its enum value.
func ParseRole(s string) (Role, error) {
	switch s {
	case "producer":
		return RoleProducer, nil
	case "consumer":
		return RoleConsumer, nil
	case "both":
		return RoleBoth, nil
	default:
		return 0, ErrInvalidRole
	}
}

// Participant records a registered grid participant. Participants are never
// deleted; role updates overwrite the role in place.
type Participant struct {
	Address      [20]byte
	Role         Role
	RegisteredAt uint64
	UpdatedAt    uint64
}

// Clone returns a copy of the participant record.
func (p *Participant) Clone() *Participant {
	if p == nil {
		return nil
	}
	clone := *p
	return &clone
}
