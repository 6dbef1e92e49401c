package meter

import (
	"bytes"
	"fmt"

	nativecommon "gridchain/native/common"
)

const moduleName = "meter"

// storage abstracts the subset of state manager functionality required by
// the metering ledger.
type storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

var (
	readingPrefix      = []byte("meter/reading/")
	verificationPrefix = []byte("meter/verification/")
	totalsPrefix       = []byte("meter/totals/")
)

func readingKey(id [32]byte) []byte {
	return []byte(fmt.Sprintf("%s%x", readingPrefix, id))
}

func verificationKey(id [32]byte, verifier [20]byte) []byte {
	return []byte(fmt.Sprintf("%s%x/%x", verificationPrefix, id, verifier))
}

func totalsKey(meterAddr [20]byte) []byte {
	return []byte(fmt.Sprintf("%s%x", totalsPrefix, meterAddr))
}

// Ledger persists signed meter readings and third-party verification
// records. It is an oracle-like subsystem: nothing here touches marketplace
// state, and meter signatures are stored without cryptographic verification.
type Ledger struct {
	store    storage
	pauses   nativecommon.PauseView
	heightFn func() uint64
}

// NewLedger constructs a ledger bound to the provided storage backend.
func NewLedger(store storage) *Ledger {
	return &Ledger{store: store, heightFn: func() uint64 { return 0 }}
}

// SetPauses configures the pause view consulted before mutations.
func (l *Ledger) SetPauses(p nativecommon.PauseView) {
	if l == nil {
		return
	}
	l.pauses = p
}

// SetHeightFunc overrides the ledger height source.
func (l *Ledger) SetHeightFunc(height func() uint64) {
	if l == nil {
		return
	}
	if height == nil {
		l.heightFn = func() uint64 { return 0 }
		return
	}
	l.heightFn = height
}

func (l *Ledger) height() uint64 {
	if l == nil || l.heightFn == nil {
		return 0
	}
	return l.heightFn()
}

// SubmitReading stores a new reading and accrues the meter's gross totals.
// Resubmitting an identical payload is idempotent; reusing a sequence with a
// different payload is rejected.
func (l *Ledger) SubmitReading(meterAddr [20]byte, kind ReadingKind, energyWh, sequence uint64, signature []byte) (*Reading, error) {
	if l == nil || l.store == nil {
		return nil, ErrNilState
	}
	if err := nativecommon.Guard(l.pauses, moduleName); err != nil {
		return nil, err
	}
	reading := &Reading{
		ID:         ReadingID(meterAddr, kind, sequence),
		Meter:      meterAddr,
		Kind:       kind,
		EnergyWh:   energyWh,
		Sequence:   sequence,
		RecordedAt: l.height(),
		Signature:  append([]byte(nil), signature...),
	}
	if err := reading.Validate(); err != nil {
		return nil, err
	}
	existing := new(Reading)
	ok, err := l.store.KVGet(readingKey(reading.ID), existing)
	if err != nil {
		return nil, err
	}
	if ok {
		if existing.Meter != reading.Meter || existing.Kind != reading.Kind ||
			existing.EnergyWh != reading.EnergyWh || existing.Sequence != reading.Sequence ||
			!bytes.Equal(existing.Signature, reading.Signature) {
			return nil, ErrReadingConflict
		}
		return existing.Clone(), nil
	}
	if err := l.store.KVPut(readingKey(reading.ID), reading); err != nil {
		return nil, err
	}
	totals, err := l.TotalsOf(meterAddr)
	if err != nil {
		return nil, err
	}
	switch kind {
	case KindGeneration:
		totals.GenerationWh += energyWh
	case KindConsumption:
		totals.ConsumptionWh += energyWh
	}
	if err := l.store.KVPut(totalsKey(meterAddr), totals); err != nil {
		return nil, err
	}
	return reading.Clone(), nil
}

// GetReading fetches a stored reading by identifier.
func (l *Ledger) GetReading(id [32]byte) (*Reading, bool, error) {
	if l == nil || l.store == nil {
		return nil, false, ErrNilState
	}
	reading := new(Reading)
	ok, err := l.store.KVGet(readingKey(id), reading)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	return reading, true, nil
}

// Verify records a third-party attestation over a stored reading. A verifier
// attests at most once per reading, and reporters cannot attest their own
// readings.
func (l *Ledger) Verify(id [32]byte, verifier [20]byte, approved bool, notes string) (*Verification, error) {
	if l == nil || l.store == nil {
		return nil, ErrNilState
	}
	if err := nativecommon.Guard(l.pauses, moduleName); err != nil {
		return nil, err
	}
	reading, ok, err := l.GetReading(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrReadingNotFound
	}
	if reading.Meter == verifier {
		return nil, ErrSelfVerification
	}
	key := verificationKey(id, verifier)
	exists, err := l.store.KVGet(key, nil)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrAlreadyVerified
	}
	verification := &Verification{
		ReadingID:  id,
		Verifier:   verifier,
		Approved:   approved,
		Notes:      notes,
		VerifiedAt: l.height(),
	}
	if err := l.store.KVPut(key, verification); err != nil {
		return nil, err
	}
	return verification.Clone(), nil
}

// GetVerification fetches the attestation a verifier recorded for a reading.
func (l *Ledger) GetVerification(id [32]byte, verifier [20]byte) (*Verification, bool, error) {
	if l == nil || l.store == nil {
		return nil, false, ErrNilState
	}
	verification := new(Verification)
	ok, err := l.store.KVGet(verificationKey(id, verifier), verification)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	return verification, true, nil
}

// TotalsOf returns the gross reported energy for a meter. Meters with no
// readings report zeroed totals.
func (l *Ledger) TotalsOf(meterAddr [20]byte) (*Totals, error) {
	if l == nil || l.store == nil {
		return nil, ErrNilState
	}
	totals := new(Totals)
	ok, err := l.store.KVGet(totalsKey(meterAddr), totals)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &Totals{Meter: meterAddr}, nil
	}
	return totals, nil
}
