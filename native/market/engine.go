package market

import (
	"fmt"
	"math/big"

	"gridchain/core/events"
	"gridchain/core/types"
	nativecommon "gridchain/native/common"
)

const moduleName = "market"

// engineState abstracts the subset of state manager functionality required
// by the marketplace.
type engineState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVDelete(key []byte) error
}

// RoleOracle answers the authorization questions the engine needs about a
// principal. Implementations are expected to treat the Both role as
// satisfying either capability.
type RoleOracle interface {
	IsRegistered(addr [20]byte) (bool, error)
	CanSell(addr [20]byte) (bool, error)
	CanBuy(addr [20]byte) (bool, error)
}

// ValueLedger provides the atomic balance-conserving transfer primitive used
// for escrow deposits and payouts. Implementations must fail all-or-nothing
// and return an error satisfying errors.Is(err, ErrInsufficientFunds) when
// the sender balance does not cover the amount.
type ValueLedger interface {
	Transfer(from, to [20]byte, amount *big.Int) error
}

var (
	listingPrefix = []byte("market/listing/")
	escrowPrefix  = []byte("market/escrow/")
	bidPrefix     = []byte("market/bid/")
	historyPrefix = []byte("market/history/")
	configKey     = []byte("market/config")
)

func listingKey(id uint64) []byte {
	return []byte(fmt.Sprintf("%s%d", listingPrefix, id))
}

func escrowKey(id uint64) []byte {
	return []byte(fmt.Sprintf("%s%d", escrowPrefix, id))
}

func bidKey(id uint64, bidder [20]byte) []byte {
	return []byte(fmt.Sprintf("%s%d/%x", bidPrefix, id, bidder))
}

func historyKey(addr [20]byte) []byte {
	return []byte(fmt.Sprintf("%s%x", historyPrefix, addr))
}

type marketEvent struct {
	evt *types.Event
}

func (e marketEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e marketEvent) Event() *types.Event { return e.evt }

// Engine orchestrates the marketplace: listing lifecycle, fund custody,
// settlement and dispute resolution. It exclusively owns the listing, escrow,
// bid and trading history tables; no other component mutates them. Every
// operation validates all of its guards before the first fund movement or
// state write, so a rejected call leaves no partial effects behind.
type Engine struct {
	state    engineState
	roles    RoleOracle
	ledger   ValueLedger
	emitter  events.Emitter
	pauses   nativecommon.PauseView
	heightFn func() uint64
	vault    [20]byte
}

// NewEngine creates a marketplace engine with a no-op emitter. Callers wire
// the state backend, role oracle and value ledger before use.
func NewEngine() *Engine {
	return &Engine{
		emitter:  events.NoopEmitter{},
		heightFn: func() uint64 { return 0 },
		vault:    VaultAddress(),
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetRoleOracle configures the participant registry consulted for
// authorization checks.
func (e *Engine) SetRoleOracle(roles RoleOracle) { e.roles = roles }

// SetValueLedger configures the token ledger used for escrow fund movement.
func (e *Engine) SetValueLedger(ledger ValueLedger) { e.ledger = ledger }

// SetPauses configures the pause view consulted before mutations.
func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

// SetEmitter configures the event emitter used by the engine. Passing nil
// resets the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetHeightFunc overrides the ledger height source. The node injects its
// block-height counter; tests supply deterministic heights.
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

// Vault returns the custody account address used for escrowed funds.
func (e *Engine) Vault() [20]byte { return e.vault }

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(marketEvent{evt: event})
}

func (e *Engine) height() uint64 {
	if e == nil || e.heightFn == nil {
		return 0
	}
	return e.heightFn()
}

func (e *Engine) ready() error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	if e.ledger == nil {
		return ErrNilLedger
	}
	if e.roles == nil {
		return ErrNilRoles
	}
	return nativecommon.Guard(e.pauses, moduleName)
}

// InitConfig creates the marketplace configuration row with defaults when it
// does not exist yet. It is invoked once during node startup.
func (e *Engine) InitConfig(owner [20]byte) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	ok, err := e.state.KVGet(configKey, nil)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	cfg := &Config{
		Owner:            owner,
		FeePercent:       DefaultFeePercent,
		MinListingAmount: DefaultMinListingAmount,
		MaxListingAmount: DefaultMaxListingAmount,
	}
	return e.state.KVPut(configKey, cfg)
}

func (e *Engine) loadConfig() (*Config, error) {
	cfg := new(Config)
	ok, err := e.state.KVGet(configKey, cfg)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotInitialized
	}
	return cfg, nil
}

func (e *Engine) storeConfig(cfg *Config) error {
	return e.state.KVPut(configKey, cfg)
}

func (e *Engine) loadListing(id uint64) (*Listing, error) {
	listing := new(Listing)
	ok, err := e.state.KVGet(listingKey(id), listing)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	return listing, nil
}

func (e *Engine) storeListing(listing *Listing) error {
	sanitized, err := SanitizeListing(listing)
	if err != nil {
		return err
	}
	return e.state.KVPut(listingKey(sanitized.ID), sanitized)
}

func (e *Engine) loadEscrow(listingID uint64) (*EscrowRecord, error) {
	record := new(EscrowRecord)
	ok, err := e.state.KVGet(escrowKey(listingID), record)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrEscrowNotFound
	}
	return record, nil
}

func (e *Engine) loadHistory(addr [20]byte) (*TradingHistory, error) {
	history := new(TradingHistory)
	ok, err := e.state.KVGet(historyKey(addr), history)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &TradingHistory{Address: addr}, nil
	}
	return history, nil
}

// --- Administrative operations ---

func (e *Engine) requireOwner(caller [20]byte) (*Config, error) {
	cfg, err := e.loadConfig()
	if err != nil {
		return nil, err
	}
	if caller != cfg.Owner {
		return nil, ErrUnauthorized
	}
	return cfg, nil
}

// SetPlatformFeePercent updates the platform fee taken on settlement. Only
// the contract owner may call it and the fee is capped at MaxFeePercent.
func (e *Engine) SetPlatformFeePercent(caller [20]byte, percent uint64) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	cfg, err := e.requireOwner(caller)
	if err != nil {
		return err
	}
	if percent > MaxFeePercent {
		return ErrFeeTooHigh
	}
	cfg.FeePercent = percent
	if err := e.storeConfig(cfg); err != nil {
		return err
	}
	e.emit(NewFeeUpdatedEvent(percent))
	return nil
}

// SetListingAmountLimits updates the configurable listing size bounds. The
// bounds must satisfy 0 < min < max.
func (e *Engine) SetListingAmountLimits(caller [20]byte, min, max uint64) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	cfg, err := e.requireOwner(caller)
	if err != nil {
		return err
	}
	if min == 0 || min >= max {
		return ErrInvalidLimits
	}
	cfg.MinListingAmount = min
	cfg.MaxListingAmount = max
	if err := e.storeConfig(cfg); err != nil {
		return err
	}
	e.emit(NewLimitsUpdatedEvent(min, max))
	return nil
}

// TransferOwnership hands the arbitrator/fee-recipient role to a new owner.
// The previous owner loses every owner-gated capability immediately.
func (e *Engine) TransferOwnership(caller, newOwner [20]byte) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	cfg, err := e.requireOwner(caller)
	if err != nil {
		return err
	}
	cfg.Owner = newOwner
	if err := e.storeConfig(cfg); err != nil {
		return err
	}
	e.emit(NewOwnershipTransferredEvent(caller, newOwner))
	return nil
}

// --- Read-only queries ---

// GetListing fetches the listing with the supplied identifier.
func (e *Engine) GetListing(id uint64) (*Listing, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	listing, err := e.loadListing(id)
	if err != nil {
		return nil, err
	}
	return listing.Clone(), nil
}

// GetEscrow fetches the escrow record custodying funds for the listing.
func (e *Engine) GetEscrow(listingID uint64) (*EscrowRecord, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	record, err := e.loadEscrow(listingID)
	if err != nil {
		return nil, err
	}
	return record.Clone(), nil
}

// GetTradingHistory returns the accumulated statistics for a participant.
// Participants with no settled trades report zeroed counters.
func (e *Engine) GetTradingHistory(addr [20]byte) (*TradingHistory, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	history, err := e.loadHistory(addr)
	if err != nil {
		return nil, err
	}
	return history.Clone(), nil
}

// GetBid fetches the bid row recorded for the bidder on the listing.
func (e *Engine) GetBid(listingID uint64, bidder [20]byte) (*Bid, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	bid := new(Bid)
	ok, err := e.state.KVGet(bidKey(listingID, bidder), bid)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrBidNotFound
	}
	return bid, nil
}

// GetHighestBid returns the current leading offer for an auction listing.
// The listing's buyer and unit price fields are authoritative; there is no
// aggregated bid book.
func (e *Engine) GetHighestBid(listingID uint64) (*Bid, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	listing, err := e.loadListing(listingID)
	if err != nil {
		return nil, err
	}
	if listing.Pricing != PricingAuction {
		return nil, ErrInvalidPricing
	}
	if !listing.HasBuyer() {
		return nil, ErrBidNotFound
	}
	return &Bid{
		ListingID:    listing.ID,
		Bidder:       listing.Buyer,
		PricePerUnit: new(big.Int).Set(listing.PricePerUnit),
	}, nil
}

// ListingNonce returns the identifier most recently assigned to a listing.
func (e *Engine) ListingNonce() (uint64, error) {
	if e == nil || e.state == nil {
		return 0, ErrNilState
	}
	cfg, err := e.loadConfig()
	if err != nil {
		return 0, err
	}
	return cfg.ListingNonce, nil
}

// Owner returns the current contract owner.
func (e *Engine) Owner() ([20]byte, error) {
	if e == nil || e.state == nil {
		return [20]byte{}, ErrNilState
	}
	cfg, err := e.loadConfig()
	if err != nil {
		return [20]byte{}, err
	}
	return cfg.Owner, nil
}

// PlatformFeePercent returns the configured settlement fee percentage.
func (e *Engine) PlatformFeePercent() (uint64, error) {
	if e == nil || e.state == nil {
		return 0, ErrNilState
	}
	cfg, err := e.loadConfig()
	if err != nil {
		return 0, err
	}
	return cfg.FeePercent, nil
}
