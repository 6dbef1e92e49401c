package market

import (
	"fmt"
	"math/big"
)

// CreateListing registers a new energy offer. The caller must be registered
// with selling capability and the quantity must fall inside the configured
// bounds. Auction listings additionally require a positive minimum price.
func (e *Engine) CreateListing(seller [20]byte, energyAmount uint64, pricePerUnit *big.Int, pricing PricingModel, minPrice *big.Int) (*Listing, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	cfg, err := e.loadConfig()
	if err != nil {
		return nil, err
	}
	registered, err := e.roles.IsRegistered(seller)
	if err != nil {
		return nil, err
	}
	if !registered {
		return nil, ErrNotRegistered
	}
	canSell, err := e.roles.CanSell(seller)
	if err != nil {
		return nil, err
	}
	if !canSell {
		return nil, ErrUnauthorized
	}
	if energyAmount < cfg.MinListingAmount {
		return nil, ErrAmountTooSmall
	}
	if energyAmount > cfg.MaxListingAmount {
		return nil, ErrAmountTooLarge
	}
	if pricePerUnit == nil || pricePerUnit.Sign() <= 0 {
		return nil, ErrInvalidPrice
	}
	if !pricing.Valid() {
		return nil, ErrInvalidPricing
	}
	if pricing == PricingAuction && (minPrice == nil || minPrice.Sign() <= 0) {
		return nil, ErrInvalidPrice
	}
	if minPrice == nil {
		minPrice = big.NewInt(0)
	}
	listing := &Listing{
		ID:           cfg.ListingNonce + 1,
		Seller:       seller,
		EnergyAmount: energyAmount,
		PricePerUnit: new(big.Int).Set(pricePerUnit),
		Pricing:      pricing,
		MinPrice:     new(big.Int).Set(minPrice),
		State:        ListingActive,
		CreatedAt:    e.height(),
	}
	if err := e.storeListing(listing); err != nil {
		return nil, err
	}
	cfg.ListingNonce = listing.ID
	if err := e.storeConfig(cfg); err != nil {
		return nil, err
	}
	e.emit(NewListingCreatedEvent(listing))
	return listing.Clone(), nil
}

// openEscrow moves the full cost from the buyer into custody and records the
// transition to Sold. Shared by fixed-price purchase and auction finalize.
func (e *Engine) openEscrow(listing *Listing, buyer [20]byte) (*Listing, error) {
	total := listing.TotalCost()
	if total.Sign() <= 0 {
		return nil, ErrInvalidPrice
	}
	if err := e.ledger.Transfer(buyer, e.vault, total); err != nil {
		return nil, fmt.Errorf("market: escrow deposit: %w", err)
	}
	height := e.height()
	listing.Buyer = buyer
	listing.State = ListingSold
	listing.SoldAt = height
	if err := e.storeListing(listing); err != nil {
		return nil, err
	}
	record := &EscrowRecord{
		ListingID:   listing.ID,
		Amount:      total,
		Buyer:       buyer,
		Seller:      listing.Seller,
		DepositedAt: height,
	}
	if err := e.state.KVPut(escrowKey(listing.ID), record); err != nil {
		return nil, err
	}
	e.emit(NewEscrowOpenedEvent(record))
	return listing.Clone(), nil
}

func (e *Engine) requireBuyerCapability(listing *Listing, buyer [20]byte) error {
	if buyer == listing.Seller {
		return ErrSelfTrade
	}
	registered, err := e.roles.IsRegistered(buyer)
	if err != nil {
		return err
	}
	if !registered {
		return ErrNotRegistered
	}
	canBuy, err := e.roles.CanBuy(buyer)
	if err != nil {
		return err
	}
	if !canBuy {
		return ErrUnauthorized
	}
	return nil
}

// Purchase buys an active fixed-price listing outright. The full cost moves
// into custody before any state is recorded; an insufficient balance aborts
// the whole operation.
func (e *Engine) Purchase(listingID uint64, buyer [20]byte) (*Listing, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	listing, err := e.loadListing(listingID)
	if err != nil {
		return nil, err
	}
	if listing.State != ListingActive {
		return nil, ErrInvalidState
	}
	if listing.Pricing != PricingFixed {
		return nil, ErrInvalidPricing
	}
	if err := e.requireBuyerCapability(listing, buyer); err != nil {
		return nil, err
	}
	updated, err := e.openEscrow(listing, buyer)
	if err != nil {
		return nil, err
	}
	e.emit(NewListingSoldEvent(updated))
	return updated, nil
}

// PlaceBid records an offer against an active auction listing. No funds move
// until the seller finalizes. The listing's buyer and unit price fields are
// overwritten with the new leading offer, which must beat both the minimum
// price and the current leader.
func (e *Engine) PlaceBid(listingID uint64, bidder [20]byte, pricePerUnit *big.Int) (*Bid, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	listing, err := e.loadListing(listingID)
	if err != nil {
		return nil, err
	}
	if listing.State != ListingActive {
		return nil, ErrInvalidState
	}
	if listing.Pricing != PricingAuction {
		return nil, ErrInvalidPricing
	}
	if err := e.requireBuyerCapability(listing, bidder); err != nil {
		return nil, err
	}
	if pricePerUnit == nil || pricePerUnit.Sign() <= 0 {
		return nil, ErrInvalidPrice
	}
	if pricePerUnit.Cmp(listing.MinPrice) < 0 {
		return nil, ErrPriceTooLow
	}
	if listing.HasBuyer() && pricePerUnit.Cmp(listing.PricePerUnit) <= 0 {
		return nil, ErrPriceTooLow
	}
	bid := &Bid{
		ListingID:    listing.ID,
		Bidder:       bidder,
		PricePerUnit: new(big.Int).Set(pricePerUnit),
		PlacedAt:     e.height(),
	}
	if err := e.state.KVPut(bidKey(listing.ID, bidder), bid); err != nil {
		return nil, err
	}
	listing.Buyer = bidder
	listing.PricePerUnit = new(big.Int).Set(pricePerUnit)
	if err := e.storeListing(listing); err != nil {
		return nil, err
	}
	e.emit(NewBidPlacedEvent(bid))
	return bid.Clone(), nil
}

// FinalizeAuction accepts the current leading offer on an active auction
// listing. Only the seller may finalize, and the winning bidder's funds move
// into custody exactly as on a fixed-price purchase.
func (e *Engine) FinalizeAuction(listingID uint64, caller [20]byte) (*Listing, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	listing, err := e.loadListing(listingID)
	if err != nil {
		return nil, err
	}
	if listing.State != ListingActive {
		return nil, ErrInvalidState
	}
	if listing.Pricing != PricingAuction {
		return nil, ErrInvalidPricing
	}
	if caller != listing.Seller {
		return nil, ErrUnauthorized
	}
	if !listing.HasBuyer() {
		return nil, ErrNoLeadingBid
	}
	updated, err := e.openEscrow(listing, listing.Buyer)
	if err != nil {
		return nil, err
	}
	e.emit(NewAuctionFinalizedEvent(updated))
	return updated, nil
}

// CancelListing withdraws an active listing. No funds ever moved, so the
// transition is a pure state change. Cancelled is terminal.
func (e *Engine) CancelListing(listingID uint64, caller [20]byte) (*Listing, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	listing, err := e.loadListing(listingID)
	if err != nil {
		return nil, err
	}
	if listing.State != ListingActive {
		return nil, ErrInvalidState
	}
	if caller != listing.Seller {
		return nil, ErrUnauthorized
	}
	listing.State = ListingCancelled
	if err := e.storeListing(listing); err != nil {
		return nil, err
	}
	e.emit(NewListingCancelledEvent(listing))
	return listing.Clone(), nil
}

// ConfirmDelivery records the buyer's acknowledgement that the purchased
// energy was delivered, unlocking settlement.
func (e *Engine) ConfirmDelivery(listingID uint64, caller [20]byte) (*Listing, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	listing, err := e.loadListing(listingID)
	if err != nil {
		return nil, err
	}
	if listing.State != ListingSold {
		return nil, ErrInvalidState
	}
	if caller != listing.Buyer {
		return nil, ErrUnauthorized
	}
	listing.State = ListingDelivered
	listing.DeliveredAt = e.height()
	if err := e.storeListing(listing); err != nil {
		return nil, err
	}
	e.emit(NewDeliveryConfirmedEvent(listing))
	return listing.Clone(), nil
}

// SettlePayment disburses the escrowed funds for a delivered listing: the
// platform fee goes to the owner, the remainder to the seller, and both
// parties' histories record a successful trade. The seller, the custody
// account itself, or the owner may trigger settlement.
func (e *Engine) SettlePayment(listingID uint64, caller [20]byte) (*Listing, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	cfg, err := e.loadConfig()
	if err != nil {
		return nil, err
	}
	listing, err := e.loadListing(listingID)
	if err != nil {
		return nil, err
	}
	if listing.State != ListingDelivered {
		return nil, ErrInvalidState
	}
	if caller != listing.Seller && caller != cfg.Owner && caller != e.vault {
		return nil, ErrUnauthorized
	}
	record, err := e.loadEscrow(listingID)
	if err != nil {
		return nil, err
	}
	if err := e.disburseToSeller(record, cfg); err != nil {
		return nil, err
	}
	updated, err := e.closeListing(listing, record, false)
	if err != nil {
		return nil, err
	}
	e.emit(NewPaymentSettledEvent(updated, record))
	return updated, nil
}

// OpenDispute freezes a sold or delivered listing pending arbitration. The
// escrow is retained untouched; only the owner can resolve. If the owner
// never acts the listing stays Disputed with funds locked.
func (e *Engine) OpenDispute(listingID uint64, caller [20]byte) (*Listing, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	listing, err := e.loadListing(listingID)
	if err != nil {
		return nil, err
	}
	if listing.State != ListingSold && listing.State != ListingDelivered {
		return nil, ErrInvalidState
	}
	if caller != listing.Seller && caller != listing.Buyer {
		return nil, ErrUnauthorized
	}
	listing.State = ListingDisputed
	if err := e.storeListing(listing); err != nil {
		return nil, err
	}
	e.emit(NewDisputeOpenedEvent(listing, caller))
	return listing.Clone(), nil
}

// ResolveDispute settles a disputed listing according to the owner's ruling.
// Refunding returns the full escrowed amount to the buyer; ruling for the
// seller pays out exactly as a normal settlement. Either way the escrow is
// closed, the listing reaches Settled and both parties' histories record a
// disputed trade.
func (e *Engine) ResolveDispute(listingID uint64, caller [20]byte, refundBuyer bool) (*Listing, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	cfg, err := e.loadConfig()
	if err != nil {
		return nil, err
	}
	if caller != cfg.Owner {
		return nil, ErrUnauthorized
	}
	listing, err := e.loadListing(listingID)
	if err != nil {
		return nil, err
	}
	if listing.State != ListingDisputed {
		return nil, ErrInvalidState
	}
	record, err := e.loadEscrow(listingID)
	if err != nil {
		return nil, err
	}
	if refundBuyer {
		if err := e.ledger.Transfer(e.vault, record.Buyer, record.Amount); err != nil {
			return nil, fmt.Errorf("market: escrow refund: %w", err)
		}
	} else {
		if err := e.disburseToSeller(record, cfg); err != nil {
			return nil, err
		}
	}
	updated, err := e.closeListing(listing, record, true)
	if err != nil {
		return nil, err
	}
	e.emit(NewDisputeResolvedEvent(updated, refundBuyer))
	return updated, nil
}

// disburseToSeller splits the escrowed amount between seller and owner so
// that payout + fee reconciles exactly with the original deposit.
func (e *Engine) disburseToSeller(record *EscrowRecord, cfg *Config) error {
	fee := PlatformFee(record.Amount, cfg.FeePercent)
	payout := new(big.Int).Sub(record.Amount, fee)
	if payout.Sign() > 0 {
		if err := e.ledger.Transfer(e.vault, record.Seller, payout); err != nil {
			return fmt.Errorf("market: seller payout: %w", err)
		}
	}
	if fee.Sign() > 0 {
		if err := e.ledger.Transfer(e.vault, cfg.Owner, fee); err != nil {
			return fmt.Errorf("market: platform fee: %w", err)
		}
	}
	return nil
}

// closeListing deletes the escrow record, marks the listing Settled and
// accrues trading history for both parties. Called exactly once per custody
// terminus, whether via settlement or dispute resolution.
func (e *Engine) closeListing(listing *Listing, record *EscrowRecord, disputed bool) (*Listing, error) {
	if err := e.state.KVDelete(escrowKey(listing.ID)); err != nil {
		return nil, err
	}
	listing.State = ListingSettled
	listing.SettledAt = e.height()
	if err := e.storeListing(listing); err != nil {
		return nil, err
	}
	if err := e.accrueHistory(record.Seller, listing.EnergyAmount, 0, disputed); err != nil {
		return nil, err
	}
	if err := e.accrueHistory(record.Buyer, 0, listing.EnergyAmount, disputed); err != nil {
		return nil, err
	}
	return listing.Clone(), nil
}

// accrueHistory bumps a participant's counters at a trade terminus. Energy
// totals track gross energy exchanged and accrue regardless of the dispute
// outcome; the success and dispute counters are mutually exclusive.
func (e *Engine) accrueHistory(addr [20]byte, sold, bought uint64, disputed bool) error {
	history, err := e.loadHistory(addr)
	if err != nil {
		return err
	}
	history.EnergySold += sold
	history.EnergyBought += bought
	if disputed {
		history.DisputedTrades++
	} else {
		history.SuccessfulTrades++
	}
	history.LastActive = e.height()
	return e.state.KVPut(historyKey(addr), history)
}
