package meter

import (
	"errors"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// ReadingKind distinguishes production from consumption readings.
type ReadingKind uint8

const (
	KindGeneration ReadingKind = iota + 1
	KindConsumption
)

// Valid reports whether the reading kind is supported.
func (k ReadingKind) Valid() bool {
	return k == KindGeneration || k == KindConsumption
}

func (k ReadingKind) String() string {
	switch k {
	case KindGeneration:
		return "generation"
	case KindConsumption:
		return "consumption"
	default:
		return "unknown"
	}
}

var (
	ErrNilState            = errors.New("meter: state not configured")
	ErrInvalidReading      = errors.New("meter: invalid reading")
	ErrReadingNotFound     = errors.New("meter: reading not found")
	ErrReadingConflict     = errors.New("meter: reading id exists with different payload")
	ErrSelfVerification    = errors.New("meter: reading cannot be verified by its reporter")
	ErrAlreadyVerified     = errors.New("meter: reading already verified by this verifier")
	ErrVerificationMissing = errors.New("meter: verification not found")
)

// Reading is a signed meter report. The signature is stored for audit but
// never verified here; verification happens through third-party attestation
// records.
type Reading struct {
	ID         [32]byte
	Meter      [20]byte
	Kind       ReadingKind
	EnergyWh   uint64
	Sequence   uint64
	RecordedAt uint64
	Signature  []byte
}

// Clone returns a deep copy of the reading.
func (r *Reading) Clone() *Reading {
	if r == nil {
		return nil
	}
	clone := *r
	clone.Signature = append([]byte(nil), r.Signature...)
	return &clone
}

// Validate ensures the reading payload is well formed.
func (r *Reading) Validate() error {
	if r == nil {
		return ErrInvalidReading
	}
	if r.Meter == ([20]byte{}) {
		return ErrInvalidReading
	}
	if !r.Kind.Valid() {
		return ErrInvalidReading
	}
	if r.EnergyWh == 0 {
		return ErrInvalidReading
	}
	return nil
}

// ReadingID derives the deterministic identifier for a reading from its
// meter, kind and sequence number.
func ReadingID(meterAddr [20]byte, kind ReadingKind, sequence uint64) [32]byte {
	var seq [8]byte
	for i := 0; i < 8; i++ {
		seq[7-i] = byte(sequence >> (8 * i))
	}
	digest := ethcrypto.Keccak256(meterAddr[:], []byte{byte(kind)}, seq[:])
	var id [32]byte
	copy(id[:], digest)
	return id
}

// Verification is a third-party attestation over a stored reading.
type Verification struct {
	ReadingID  [32]byte
	Verifier   [20]byte
	Approved   bool
	Notes      string
	VerifiedAt uint64
}

// Clone returns a copy of the verification record.
func (v *Verification) Clone() *Verification {
	if v == nil {
		return nil
	}
	clone := *v
	return &clone
}

// Totals accumulates gross reported energy per meter.
type Totals struct {
	Meter         [20]byte
	GenerationWh  uint64
	ConsumptionWh uint64
}
