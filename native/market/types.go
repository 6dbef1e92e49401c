package market

import (
	"fmt"
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// PricingModel selects how a listing is priced.
type PricingModel uint8

const (
	PricingFixed PricingModel = iota + 1
	PricingAuction
)

// Valid reports whether the pricing model value is supported.
func (p PricingModel) Valid() bool {
	return p == PricingFixed || p == PricingAuction
}

func (p PricingModel) String() string {
	switch p {
	case PricingFixed:
		return "fixed"
	case PricingAuction:
		return "auction"
	default:
		return "unknown"
	}
}

// ParsePricingModel maps the wire representation to its enum value.
func ParsePricingModel(s string) (PricingModel, error) {
	switch s {
	case "fixed":
		return PricingFixed, nil
	case "auction":
		return PricingAuction, nil
	default:
		return 0, ErrInvalidPricing
	}
}

// ListingState represents the lifecycle states of a listing.
type ListingState uint8

const (
	ListingActive ListingState = iota + 1
	ListingSold
	ListingDelivered
	ListingSettled
	ListingCancelled
	ListingDisputed
)

// Valid reports whether the state value is within the supported range.
func (s ListingState) Valid() bool {
	switch s {
	case ListingActive, ListingSold, ListingDelivered, ListingSettled, ListingCancelled, ListingDisputed:
		return true
	default:
		return false
	}
}

// Terminal reports whether no transition leaves the state.
func (s ListingState) Terminal() bool {
	return s == ListingSettled || s == ListingCancelled
}

// Custodial reports whether the state holds buyer funds in escrow.
func (s ListingState) Custodial() bool {
	return s == ListingSold || s == ListingDelivered || s == ListingDisputed
}

func (s ListingState) String() string {
	switch s {
	case ListingActive:
		return "active"
	case ListingSold:
		return "sold"
	case ListingDelivered:
		return "delivered"
	case ListingSettled:
		return "settled"
	case ListingCancelled:
		return "cancelled"
	case ListingDisputed:
		return "disputed"
	default:
		return "unknown"
	}
}

// Listing is the marketplace's primary entity. Identifiers are assigned from
// a monotonic 1-based nonce and never reused. A zero buyer address means no
// buyer has been recorded; block heights of zero mean the milestone has not
// been reached.
type Listing struct {
	ID           uint64
	Seller       [20]byte
	EnergyAmount uint64
	PricePerUnit *big.Int
	Pricing      PricingModel
	MinPrice     *big.Int
	State        ListingState
	Buyer        [20]byte
	CreatedAt    uint64
	SoldAt       uint64
	DeliveredAt  uint64
	SettledAt    uint64
}

// HasBuyer reports whether a buyer has been recorded on the listing.
func (l *Listing) HasBuyer() bool {
	return l != nil && l.Buyer != ([20]byte{})
}

// TotalCost computes the full cost of the listing at its current unit price.
func (l *Listing) TotalCost() *big.Int {
	if l == nil || l.PricePerUnit == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Mul(l.PricePerUnit, new(big.Int).SetUint64(l.EnergyAmount))
}

// Clone returns a deep copy of the listing so callers can safely mutate the
// copy without affecting the stored instance.
func (l *Listing) Clone() *Listing {
	if l == nil {
		return nil
	}
	clone := *l
	if l.PricePerUnit != nil {
		clone.PricePerUnit = new(big.Int).Set(l.PricePerUnit)
	} else {
		clone.PricePerUnit = big.NewInt(0)
	}
	if l.MinPrice != nil {
		clone.MinPrice = new(big.Int).Set(l.MinPrice)
	} else {
		clone.MinPrice = big.NewInt(0)
	}
	return &clone
}

// SanitizeListing validates and normalises the supplied listing, returning a
// cloned instance with non-nil amount fields. The original is not mutated.
func SanitizeListing(l *Listing) (*Listing, error) {
	if l == nil {
		return nil, fmt.Errorf("market: nil listing")
	}
	clone := l.Clone()
	if clone.ID == 0 {
		return nil, fmt.Errorf("market: listing id must be positive")
	}
	if !clone.Pricing.Valid() {
		return nil, ErrInvalidPricing
	}
	if !clone.State.Valid() {
		return nil, fmt.Errorf("market: invalid listing state %d", clone.State)
	}
	if clone.EnergyAmount == 0 {
		return nil, fmt.Errorf("market: energy amount must be positive")
	}
	if clone.PricePerUnit.Sign() <= 0 {
		return nil, fmt.Errorf("market: unit price must be positive")
	}
	if clone.MinPrice.Sign() < 0 {
		return nil, fmt.Errorf("market: min price must be non-negative")
	}
	return clone, nil
}

// EscrowRecord tracks funds custodied by the marketplace on behalf of a
// listing. A record exists iff its listing is in a custody-holding state, and
// Amount always equals the total cost computed at purchase or finalize time.
type EscrowRecord struct {
	ListingID   uint64
	Amount      *big.Int
	Buyer       [20]byte
	Seller      [20]byte
	DepositedAt uint64
}

// Clone returns a deep copy of the escrow record.
func (r *EscrowRecord) Clone() *EscrowRecord {
	if r == nil {
		return nil
	}
	clone := *r
	if r.Amount != nil {
		clone.Amount = new(big.Int).Set(r.Amount)
	} else {
		clone.Amount = big.NewInt(0)
	}
	return &clone
}

// Bid records a single offer submitted against an auction listing. The
// listing's buyer and unit price fields remain the authoritative leading
// offer; bid rows exist for auditability.
type Bid struct {
	ListingID    uint64
	Bidder       [20]byte
	PricePerUnit *big.Int
	PlacedAt     uint64
}

// Clone returns a deep copy of the bid.
func (b *Bid) Clone() *Bid {
	if b == nil {
		return nil
	}
	clone := *b
	if b.PricePerUnit != nil {
		clone.PricePerUnit = new(big.Int).Set(b.PricePerUnit)
	} else {
		clone.PricePerUnit = big.NewInt(0)
	}
	return &clone
}

// TradingHistory accumulates per-participant statistics derived from settled
// and disputed trades. Counters never decrement. Energy totals track gross
// energy exchanged, so they accrue on disputed settlements too.
type TradingHistory struct {
	Address          [20]byte
	EnergySold       uint64
	EnergyBought     uint64
	SuccessfulTrades uint64
	DisputedTrades   uint64
	LastActive       uint64
}

// Clone returns a copy of the history record.
func (h *TradingHistory) Clone() *TradingHistory {
	if h == nil {
		return nil
	}
	clone := *h
	return &clone
}

// Config holds the marketplace's mutable administrative state. It is owned
// exclusively by the engine and persisted as a single row, which preserves
// single-writer semantics without ambient globals.
type Config struct {
	Owner            [20]byte
	FeePercent       uint64
	MinListingAmount uint64
	MaxListingAmount uint64
	ListingNonce     uint64
}

// Clone returns a copy of the marketplace configuration.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	clone := *c
	return &clone
}

const (
	// MaxFeePercent caps the platform fee an owner may configure.
	MaxFeePercent uint64 = 10

	// DefaultFeePercent applies until the owner configures a fee.
	DefaultFeePercent uint64 = 1

	// DefaultMinListingAmount and DefaultMaxListingAmount bound listing
	// sizes until the owner configures limits.
	DefaultMinListingAmount uint64 = 1
	DefaultMaxListingAmount uint64 = 1_000_000
)

// VaultAddress returns the address that custodies escrowed funds on the
// value ledger. It is derived from a fixed preimage so every node computes
// the same custody account without key material.
func VaultAddress() [20]byte {
	digest := ethcrypto.Keccak256([]byte("gridchain/market/vault"))
	var addr [20]byte
	copy(addr[:], digest[12:])
	return addr
}

// PlatformFee computes the integer-floor platform fee for the given amount.
func PlatformFee(amount *big.Int, feePercent uint64) *big.Int {
	if amount == nil || amount.Sign() <= 0 {
		return big.NewInt(0)
	}
	fee := new(big.Int).Mul(amount, new(big.Int).SetUint64(feePercent))
	return fee.Div(fee, big.NewInt(100))
}
