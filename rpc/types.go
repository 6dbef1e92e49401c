package rpc

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"gridchain/native/market"
	"gridchain/native/meter"
	"gridchain/native/registry"
)

func parseAddress(s string) ([20]byte, error) {
	trimmed := strings.TrimSpace(s)
	if !common.IsHexAddress(trimmed) {
		return [20]byte{}, fmt.Errorf("invalid address %q", s)
	}
	return [20]byte(common.HexToAddress(trimmed)), nil
}

func formatAddress(addr [20]byte) string {
	return common.Address(addr).Hex()
}

func parsePositiveBigInt(s string) (*big.Int, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return nil, fmt.Errorf("amount required")
	}
	value, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", s)
	}
	if value.Sign() <= 0 {
		return nil, fmt.Errorf("amount must be positive")
	}
	return value, nil
}

func parseHash32(s string) ([32]byte, error) {
	var hash [32]byte
	trimmed := strings.TrimSpace(s)
	trimmed = strings.TrimPrefix(strings.TrimPrefix(trimmed, "0x"), "0X")
	if len(trimmed) != 64 {
		return hash, fmt.Errorf("id must be 32 bytes (got %d hex chars)", len(trimmed))
	}
	decoded, err := hex.DecodeString(trimmed)
	if err != nil {
		return hash, err
	}
	copy(hash[:], decoded)
	return hash, nil
}

func formatHash32(hash [32]byte) string {
	return "0x" + hex.EncodeToString(hash[:])
}

type participantJSON struct {
	Address      string `json:"address"`
	Role         string `json:"role"`
	RegisteredAt uint64 `json:"registeredAt"`
	UpdatedAt    uint64 `json:"updatedAt"`
}

func newParticipantJSON(p *registry.Participant) *participantJSON {
	if p == nil {
		return nil
	}
	return &participantJSON{
		Address:      formatAddress(p.Address),
		Role:         p.Role.String(),
		RegisteredAt: p.RegisteredAt,
		UpdatedAt:    p.UpdatedAt,
	}
}

type listingJSON struct {
	ID           uint64  `json:"id"`
	Seller       string  `json:"seller"`
	EnergyAmount uint64  `json:"energyAmount"`
	PricePerUnit string  `json:"pricePerUnit"`
	Pricing      string  `json:"pricing"`
	MinPrice     string  `json:"minPrice,omitempty"`
	State        string  `json:"state"`
	Buyer        *string `json:"buyer,omitempty"`
	CreatedAt    uint64  `json:"createdAt"`
	SoldAt       uint64  `json:"soldAt,omitempty"`
	DeliveredAt  uint64  `json:"deliveredAt,omitempty"`
	SettledAt    uint64  `json:"settledAt,omitempty"`
}

func newListingJSON(l *market.Listing) *listingJSON {
	if l == nil {
		return nil
	}
	out := &listingJSON{
		ID:           l.ID,
		Seller:       formatAddress(l.Seller),
		EnergyAmount: l.EnergyAmount,
		PricePerUnit: l.PricePerUnit.String(),
		Pricing:      l.Pricing.String(),
		State:        l.State.String(),
		CreatedAt:    l.CreatedAt,
		SoldAt:       l.SoldAt,
		DeliveredAt:  l.DeliveredAt,
		SettledAt:    l.SettledAt,
	}
	if l.Pricing == market.PricingAuction {
		out.MinPrice = l.MinPrice.String()
	}
	if l.HasBuyer() {
		buyer := formatAddress(l.Buyer)
		out.Buyer = &buyer
	}
	return out
}

type escrowJSON struct {
	ListingID   uint64 `json:"listingId"`
	Amount      string `json:"amount"`
	Buyer       string `json:"buyer"`
	Seller      string `json:"seller"`
	DepositedAt uint64 `json:"depositedAt"`
}

func newEscrowJSON(r *market.EscrowRecord) *escrowJSON {
	if r == nil {
		return nil
	}
	return &escrowJSON{
		ListingID:   r.ListingID,
		Amount:      r.Amount.String(),
		Buyer:       formatAddress(r.Buyer),
		Seller:      formatAddress(r.Seller),
		DepositedAt: r.DepositedAt,
	}
}

type bidJSON struct {
	ListingID    uint64 `json:"listingId"`
	Bidder       string `json:"bidder"`
	PricePerUnit string `json:"pricePerUnit"`
	PlacedAt     uint64 `json:"placedAt,omitempty"`
}

func newBidJSON(b *market.Bid) *bidJSON {
	if b == nil {
		return nil
	}
	return &bidJSON{
		ListingID:    b.ListingID,
		Bidder:       formatAddress(b.Bidder),
		PricePerUnit: b.PricePerUnit.String(),
		PlacedAt:     b.PlacedAt,
	}
}

type historyJSON struct {
	Address          string `json:"address"`
	EnergySold       uint64 `json:"totalEnergySold"`
	EnergyBought     uint64 `json:"totalEnergyBought"`
	SuccessfulTrades uint64 `json:"successfulTrades"`
	DisputedTrades   uint64 `json:"disputedTrades"`
	LastActive       uint64 `json:"lastActive"`
}

func newHistoryJSON(h *market.TradingHistory) *historyJSON {
	if h == nil {
		return nil
	}
	return &historyJSON{
		Address:          formatAddress(h.Address),
		EnergySold:       h.EnergySold,
		EnergyBought:     h.EnergyBought,
		SuccessfulTrades: h.SuccessfulTrades,
		DisputedTrades:   h.DisputedTrades,
		LastActive:       h.LastActive,
	}
}

type readingJSON struct {
	ID         string `json:"id"`
	Meter      string `json:"meter"`
	Kind       string `json:"kind"`
	EnergyWh   uint64 `json:"energyWh"`
	Sequence   uint64 `json:"sequence"`
	RecordedAt uint64 `json:"recordedAt"`
	Signature  string `json:"signature,omitempty"`
}

func newReadingJSON(r *meter.Reading) *readingJSON {
	if r == nil {
		return nil
	}
	return &readingJSON{
		ID:         formatHash32(r.ID),
		Meter:      formatAddress(r.Meter),
		Kind:       r.Kind.String(),
		EnergyWh:   r.EnergyWh,
		Sequence:   r.Sequence,
		RecordedAt: r.RecordedAt,
		Signature:  hex.EncodeToString(r.Signature),
	}
}

type verificationJSON struct {
	ReadingID  string `json:"readingId"`
	Verifier   string `json:"verifier"`
	Approved   bool   `json:"approved"`
	Notes      string `json:"notes,omitempty"`
	VerifiedAt uint64 `json:"verifiedAt"`
}

func newVerificationJSON(v *meter.Verification) *verificationJSON {
	if v == nil {
		return nil
	}
	return &verificationJSON{
		ReadingID:  formatHash32(v.ReadingID),
		Verifier:   formatAddress(v.Verifier),
		Approved:   v.Approved,
		Notes:      v.Notes,
		VerifiedAt: v.VerifiedAt,
	}
}
