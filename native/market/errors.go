package market

import "errors"

var (
	// ErrNilState marks an engine used before its state backend was wired.
	ErrNilState = errors.New("market: state not configured")
	// ErrNilLedger marks an engine used before its value ledger was wired.
	ErrNilLedger = errors.New("market: value ledger not configured")
	// ErrNilRoles marks an engine used before its role oracle was wired.
	ErrNilRoles = errors.New("market: role oracle not configured")
	// ErrNotInitialized marks a marketplace whose configuration row has not
	// been created yet.
	ErrNotInitialized = errors.New("market: not initialized")

	// ErrNotFound marks an unknown listing identifier.
	ErrNotFound = errors.New("market: listing not found")
	// ErrEscrowNotFound marks a missing escrow record.
	ErrEscrowNotFound = errors.New("market: escrow not found")
	// ErrBidNotFound marks a missing bid row.
	ErrBidNotFound = errors.New("market: bid not found")

	// ErrUnauthorized marks a caller lacking the required role or ownership.
	ErrUnauthorized = errors.New("market: unauthorized")
	// ErrNotRegistered marks a caller absent from the participant registry.
	ErrNotRegistered = errors.New("market: caller not registered")
	// ErrSelfTrade marks an attempt to buy or bid on one's own listing.
	ErrSelfTrade = errors.New("market: cannot trade with self")

	// ErrInvalidState marks an operation not valid for the listing's current
	// state, including attempts against terminal listings.
	ErrInvalidState = errors.New("market: invalid listing state")
	// ErrNoLeadingBid marks an auction finalize without a recorded offer.
	ErrNoLeadingBid = errors.New("market: auction has no leading bid")

	// ErrInvalidPricing marks an unknown pricing model or an operation that
	// requires the other pricing model.
	ErrInvalidPricing = errors.New("market: invalid pricing model")
	// ErrInvalidPrice marks a non-positive unit or minimum price.
	ErrInvalidPrice = errors.New("market: price must be positive")
	// ErrPriceTooLow marks a bid below the auction minimum or the current
	// leading offer.
	ErrPriceTooLow = errors.New("market: price too low")
	// ErrAmountTooSmall and ErrAmountTooLarge mark listings outside the
	// configured bounds.
	ErrAmountTooSmall = errors.New("market: energy amount below minimum")
	ErrAmountTooLarge = errors.New("market: energy amount above maximum")

	// ErrInsufficientFunds propagates a failed value transfer. Ledger
	// adapters must return errors satisfying errors.Is against this value.
	ErrInsufficientFunds = errors.New("market: insufficient funds")

	// ErrFeeTooHigh marks a fee percentage above MaxFeePercent.
	ErrFeeTooHigh = errors.New("market: fee percentage too high")
	// ErrInvalidLimits marks listing amount bounds that do not satisfy
	// 0 < min < max.
	ErrInvalidLimits = errors.New("market: invalid listing amount limits")
)
