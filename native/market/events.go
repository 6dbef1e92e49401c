package market

import (
	"encoding/hex"
	"strconv"

	"gridchain/core/types"
)

const (
	EventTypeListingCreated       = "market.listing.created"
	EventTypeListingSold          = "market.listing.sold"
	EventTypeListingCancelled     = "market.listing.cancelled"
	EventTypeBidPlaced            = "market.bid.placed"
	EventTypeAuctionFinalized     = "market.auction.finalized"
	EventTypeEscrowOpened         = "market.escrow.opened"
	EventTypeDeliveryConfirmed    = "market.delivery.confirmed"
	EventTypePaymentSettled       = "market.payment.settled"
	EventTypeDisputeOpened        = "market.dispute.opened"
	EventTypeDisputeResolved      = "market.dispute.resolved"
	EventTypeFeeUpdated           = "market.config.fee_updated"
	EventTypeLimitsUpdated        = "market.config.limits_updated"
	EventTypeOwnershipTransferred = "market.config.ownership_transferred"
)

func newListingEvent(eventType string, l *Listing) *types.Event {
	attrs := make(map[string]string)
	if l == nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	attrs["listingId"] = strconv.FormatUint(l.ID, 10)
	attrs["seller"] = hex.EncodeToString(l.Seller[:])
	attrs["energyAmount"] = strconv.FormatUint(l.EnergyAmount, 10)
	attrs["pricePerUnit"] = l.PricePerUnit.String()
	attrs["pricing"] = l.Pricing.String()
	attrs["state"] = l.State.String()
	if l.HasBuyer() {
		attrs["buyer"] = hex.EncodeToString(l.Buyer[:])
	}
	return &types.Event{Type: eventType, Attributes: attrs}
}

// NewListingCreatedEvent returns the canonical payload for a new listing.
func NewListingCreatedEvent(l *Listing) *types.Event {
	return newListingEvent(EventTypeListingCreated, l)
}

// NewListingSoldEvent returns the payload emitted when a fixed-price listing
// is purchased.
func NewListingSoldEvent(l *Listing) *types.Event {
	return newListingEvent(EventTypeListingSold, l)
}

// NewListingCancelledEvent returns the payload emitted when a seller
// withdraws an active listing.
func NewListingCancelledEvent(l *Listing) *types.Event {
	return newListingEvent(EventTypeListingCancelled, l)
}

// NewAuctionFinalizedEvent returns the payload emitted when a seller accepts
// the leading offer.
func NewAuctionFinalizedEvent(l *Listing) *types.Event {
	return newListingEvent(EventTypeAuctionFinalized, l)
}

// NewDeliveryConfirmedEvent returns the payload emitted when the buyer
// confirms delivery.
func NewDeliveryConfirmedEvent(l *Listing) *types.Event {
	return newListingEvent(EventTypeDeliveryConfirmed, l)
}

// NewBidPlacedEvent returns the payload emitted when a new leading offer is
// recorded against an auction listing.
func NewBidPlacedEvent(b *Bid) *types.Event {
	attrs := make(map[string]string)
	if b != nil {
		attrs["listingId"] = strconv.FormatUint(b.ListingID, 10)
		attrs["bidder"] = hex.EncodeToString(b.Bidder[:])
		attrs["pricePerUnit"] = b.PricePerUnit.String()
		attrs["placedAt"] = strconv.FormatUint(b.PlacedAt, 10)
	}
	return &types.Event{Type: EventTypeBidPlaced, Attributes: attrs}
}

// NewEscrowOpenedEvent returns the payload emitted when buyer funds move
// into custody.
func NewEscrowOpenedEvent(r *EscrowRecord) *types.Event {
	attrs := make(map[string]string)
	if r != nil {
		attrs["listingId"] = strconv.FormatUint(r.ListingID, 10)
		attrs["amount"] = r.Amount.String()
		attrs["buyer"] = hex.EncodeToString(r.Buyer[:])
		attrs["seller"] = hex.EncodeToString(r.Seller[:])
		attrs["depositedAt"] = strconv.FormatUint(r.DepositedAt, 10)
	}
	return &types.Event{Type: EventTypeEscrowOpened, Attributes: attrs}
}

// NewPaymentSettledEvent returns the payload emitted when escrowed funds are
// disbursed to the seller and owner.
func NewPaymentSettledEvent(l *Listing, r *EscrowRecord) *types.Event {
	evt := newListingEvent(EventTypePaymentSettled, l)
	if r != nil {
		evt.Attributes["escrowAmount"] = r.Amount.String()
	}
	return evt
}

// NewDisputeOpenedEvent returns the payload emitted when a party contests a
// trade.
func NewDisputeOpenedEvent(l *Listing, opener [20]byte) *types.Event {
	evt := newListingEvent(EventTypeDisputeOpened, l)
	evt.Attributes["openedBy"] = hex.EncodeToString(opener[:])
	return evt
}

// NewDisputeResolvedEvent returns the payload emitted when the owner rules
// on a dispute.
func NewDisputeResolvedEvent(l *Listing, refundBuyer bool) *types.Event {
	evt := newListingEvent(EventTypeDisputeResolved, l)
	if refundBuyer {
		evt.Attributes["outcome"] = "refund_buyer"
	} else {
		evt.Attributes["outcome"] = "pay_seller"
	}
	return evt
}

// NewFeeUpdatedEvent returns the payload emitted on a fee change.
func NewFeeUpdatedEvent(percent uint64) *types.Event {
	return &types.Event{Type: EventTypeFeeUpdated, Attributes: map[string]string{
		"feePercent": strconv.FormatUint(percent, 10),
	}}
}

// NewLimitsUpdatedEvent returns the payload emitted on a bounds change.
func NewLimitsUpdatedEvent(min, max uint64) *types.Event {
	return &types.Event{Type: EventTypeLimitsUpdated, Attributes: map[string]string{
		"minListingAmount": strconv.FormatUint(min, 10),
		"maxListingAmount": strconv.FormatUint(max, 10),
	}}
}

// NewOwnershipTransferredEvent returns the payload emitted when the contract
// owner changes.
func NewOwnershipTransferredEvent(previous, next [20]byte) *types.Event {
	return &types.Event{Type: EventTypeOwnershipTransferred, Attributes: map[string]string{
		"previousOwner": hex.EncodeToString(previous[:]),
		"newOwner":      hex.EncodeToString(next[:]),
	}}
}
