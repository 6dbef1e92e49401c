package market

import (
	"bytes"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/rlp"

	"gridchain/core/events"
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

func (m *mockState) KVDelete(key []byte) error {
	delete(m.kv, string(key))
	return nil
}

type mockRoles struct {
	sellers map[[20]byte]bool
	buyers  map[[20]byte]bool
}

func newMockRoles() *mockRoles {
	return &mockRoles{sellers: make(map[[20]byte]bool), buyers: make(map[[20]byte]bool)}
}

func (m *mockRoles) addProducer(addr [20]byte) { m.sellers[addr] = true }
func (m *mockRoles) addConsumer(addr [20]byte) { m.buyers[addr] = true }
func (m *mockRoles) addBoth(addr [20]byte) {
	m.sellers[addr] = true
	m.buyers[addr] = true
}

func (m *mockRoles) IsRegistered(addr [20]byte) (bool, error) {
	return m.sellers[addr] || m.buyers[addr], nil
}

func (m *mockRoles) CanSell(addr [20]byte) (bool, error) { return m.sellers[addr], nil }
func (m *mockRoles) CanBuy(addr [20]byte) (bool, error)  { return m.buyers[addr], nil }

type mockLedger struct {
	balances map[[20]byte]*big.Int
}

func newMockLedger() *mockLedger {
	return &mockLedger{balances: make(map[[20]byte]*big.Int)}
}

func (m *mockLedger) credit(addr [20]byte, amount int64) {
	m.balances[addr] = big.NewInt(amount)
}

func (m *mockLedger) balance(addr [20]byte) *big.Int {
	if bal, ok := m.balances[addr]; ok {
		return new(big.Int).Set(bal)
	}
	return big.NewInt(0)
}

func (m *mockLedger) Transfer(from, to [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return errors.New("mock ledger: invalid amount")
	}
	if from == to {
		return nil
	}
	fromBal := m.balance(from)
	if fromBal.Cmp(amount) < 0 {
		return ErrInsufficientFunds
	}
	m.balances[from] = fromBal.Sub(fromBal, amount)
	toBal := m.balance(to)
	m.balances[to] = toBal.Add(toBal, amount)
	return nil
}

type capturingEmitter struct {
	events []events.Event
}

func (c *capturingEmitter) Emit(evt events.Event) {
	c.events = append(c.events, evt)
}

func (c *capturingEmitter) types() []string {
	out := make([]string, 0, len(c.events))
	for _, evt := range c.events {
		out = append(out, evt.EventType())
	}
	return out
}

func newTestAddress(fill byte) [20]byte {
	var addr [20]byte
	copy(addr[:], bytes.Repeat([]byte{fill}, 20))
	return addr
}

type testEnv struct {
	engine  *Engine
	state   *mockState
	roles   *mockRoles
	ledger  *mockLedger
	emitter *capturingEmitter
	owner   [20]byte
	height  uint64
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		state:   newMockState(),
		roles:   newMockRoles(),
		ledger:  newMockLedger(),
		emitter: &capturingEmitter{},
		owner:   newTestAddress(0x01),
		height:  1,
	}
	engine := NewEngine()
	engine.SetState(env.state)
	engine.SetRoleOracle(env.roles)
	engine.SetValueLedger(env.ledger)
	engine.SetEmitter(env.emitter)
	engine.SetHeightFunc(func() uint64 { return env.height })
	if err := engine.InitConfig(env.owner); err != nil {
		t.Fatalf("init config: %v", err)
	}
	env.engine = engine
	return env
}

func (env *testEnv) advance() { env.height++ }

func TestCreateListingValidation(t *testing.T) {
	env := newTestEnv(t)
	seller := newTestAddress(0x10)
	consumer := newTestAddress(0x11)
	env.roles.addProducer(seller)
	env.roles.addConsumer(consumer)

	price := big.NewInt(5)

	if _, err := env.engine.CreateListing(newTestAddress(0x99), 100, price, PricingFixed, nil); !errors.Is(err, ErrNotRegistered) {
		t.Fatalf("expected ErrNotRegistered, got %v", err)
	}
	if _, err := env.engine.CreateListing(consumer, 100, price, PricingFixed, nil); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for consumer seller, got %v", err)
	}
	if _, err := env.engine.CreateListing(seller, 0, price, PricingFixed, nil); !errors.Is(err, ErrAmountTooSmall) {
		t.Fatalf("expected ErrAmountTooSmall, got %v", err)
	}
	if _, err := env.engine.CreateListing(seller, DefaultMaxListingAmount+1, price, PricingFixed, nil); !errors.Is(err, ErrAmountTooLarge) {
		t.Fatalf("expected ErrAmountTooLarge, got %v", err)
	}
	if _, err := env.engine.CreateListing(seller, 100, big.NewInt(0), PricingFixed, nil); !errors.Is(err, ErrInvalidPrice) {
		t.Fatalf("expected ErrInvalidPrice for zero price, got %v", err)
	}
	if _, err := env.engine.CreateListing(seller, 100, price, PricingAuction, nil); !errors.Is(err, ErrInvalidPrice) {
		t.Fatalf("expected ErrInvalidPrice for auction without min price, got %v", err)
	}
	if _, err := env.engine.CreateListing(seller, 100, price, PricingModel(9), nil); !errors.Is(err, ErrInvalidPricing) {
		t.Fatalf("expected ErrInvalidPricing, got %v", err)
	}

	listing, err := env.engine.CreateListing(seller, 100, price, PricingFixed, nil)
	if err != nil {
		t.Fatalf("create listing: %v", err)
	}
	if listing.ID != 1 {
		t.Fatalf("expected first listing id 1, got %d", listing.ID)
	}
	if listing.State != ListingActive {
		t.Fatalf("expected active state, got %v", listing.State)
	}
	second, err := env.engine.CreateListing(seller, 50, price, PricingFixed, nil)
	if err != nil {
		t.Fatalf("create second listing: %v", err)
	}
	if second.ID != 2 {
		t.Fatalf("expected monotonic id 2, got %d", second.ID)
	}
	nonce, err := env.engine.ListingNonce()
	if err != nil {
		t.Fatalf("listing nonce: %v", err)
	}
	if nonce != 2 {
		t.Fatalf("expected nonce 2, got %d", nonce)
	}
}

func TestPurchaseSettlementLifecycle(t *testing.T) {
	env := newTestEnv(t)
	seller := newTestAddress(0x10)
	buyer := newTestAddress(0x20)
	env.roles.addProducer(seller)
	env.roles.addConsumer(buyer)
	env.ledger.credit(buyer, 1_000)

	listing, err := env.engine.CreateListing(seller, 100, big.NewInt(5), PricingFixed, nil)
	if err != nil {
		t.Fatalf("create listing: %v", err)
	}
	if _, err := env.engine.GetEscrow(listing.ID); !errors.Is(err, ErrEscrowNotFound) {
		t.Fatalf("expected no escrow before purchase, got %v", err)
	}

	env.advance()
	sold, err := env.engine.Purchase(listing.ID, buyer)
	if err != nil {
		t.Fatalf("purchase: %v", err)
	}
	if sold.State != ListingSold {
		t.Fatalf("expected sold state, got %v", sold.State)
	}
	if sold.Buyer != buyer {
		t.Fatalf("buyer not recorded on listing")
	}
	if got := env.ledger.balance(buyer); got.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("expected buyer balance 500 after escrow, got %s", got)
	}
	if got := env.ledger.balance(env.engine.Vault()); got.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("expected vault balance 500, got %s", got)
	}
	record, err := env.engine.GetEscrow(listing.ID)
	if err != nil {
		t.Fatalf("get escrow: %v", err)
	}
	if record.Amount.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("expected escrow amount 500, got %s", record.Amount)
	}
	if record.Buyer != buyer || record.Seller != seller {
		t.Fatalf("escrow parties mismatch")
	}

	env.advance()
	if _, err := env.engine.ConfirmDelivery(listing.ID, seller); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for seller delivery confirm, got %v", err)
	}
	delivered, err := env.engine.ConfirmDelivery(listing.ID, buyer)
	if err != nil {
		t.Fatalf("confirm delivery: %v", err)
	}
	if delivered.State != ListingDelivered {
		t.Fatalf("expected delivered state, got %v", delivered.State)
	}

	env.advance()
	if _, err := env.engine.SettlePayment(listing.ID, buyer); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for buyer settlement, got %v", err)
	}
	settled, err := env.engine.SettlePayment(listing.ID, seller)
	if err != nil {
		t.Fatalf("settle payment: %v", err)
	}
	if settled.State != ListingSettled {
		t.Fatalf("expected settled state, got %v", settled.State)
	}

	// 1% of 500 floors to 5; the seller receives the remainder.
	if got := env.ledger.balance(seller); got.Cmp(big.NewInt(495)) != 0 {
		t.Fatalf("expected seller payout 495, got %s", got)
	}
	if got := env.ledger.balance(env.owner); got.Cmp(big.NewInt(5)) != 0 {
		t.Fatalf("expected owner fee 5, got %s", got)
	}
	if got := env.ledger.balance(env.engine.Vault()); got.Sign() != 0 {
		t.Fatalf("expected empty vault after settlement, got %s", got)
	}
	if _, err := env.engine.GetEscrow(listing.ID); !errors.Is(err, ErrEscrowNotFound) {
		t.Fatalf("expected escrow removed after settlement, got %v", err)
	}

	sellerHistory, err := env.engine.GetTradingHistory(seller)
	if err != nil {
		t.Fatalf("seller history: %v", err)
	}
	if sellerHistory.EnergySold != 100 || sellerHistory.SuccessfulTrades != 1 || sellerHistory.DisputedTrades != 0 {
		t.Fatalf("unexpected seller history: %+v", sellerHistory)
	}
	buyerHistory, err := env.engine.GetTradingHistory(buyer)
	if err != nil {
		t.Fatalf("buyer history: %v", err)
	}
	if buyerHistory.EnergyBought != 100 || buyerHistory.SuccessfulTrades != 1 {
		t.Fatalf("unexpected buyer history: %+v", buyerHistory)
	}

	if _, err := env.engine.SettlePayment(listing.ID, seller); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState on double settlement, got %v", err)
	}
}

func TestPurchaseGuards(t *testing.T) {
	env := newTestEnv(t)
	seller := newTestAddress(0x10)
	buyer := newTestAddress(0x20)
	poor := newTestAddress(0x21)
	env.roles.addBoth(seller)
	env.roles.addConsumer(buyer)
	env.roles.addConsumer(poor)
	env.ledger.credit(buyer, 1_000)
	env.ledger.credit(poor, 10)

	listing, err := env.engine.CreateListing(seller, 100, big.NewInt(5), PricingFixed, nil)
	if err != nil {
		t.Fatalf("create listing: %v", err)
	}

	if _, err := env.engine.Purchase(listing.ID, seller); !errors.Is(err, ErrSelfTrade) {
		t.Fatalf("expected ErrSelfTrade, got %v", err)
	}
	if _, err := env.engine.Purchase(listing.ID, newTestAddress(0x99)); !errors.Is(err, ErrNotRegistered) {
		t.Fatalf("expected ErrNotRegistered, got %v", err)
	}
	if _, err := env.engine.Purchase(999, buyer); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if _, err := env.engine.Purchase(listing.ID, poor); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	// A failed deposit must leave no partial effects behind.
	reloaded, err := env.engine.GetListing(listing.ID)
	if err != nil {
		t.Fatalf("reload listing: %v", err)
	}
	if reloaded.State != ListingActive || reloaded.HasBuyer() {
		t.Fatalf("failed purchase mutated listing: %+v", reloaded)
	}
	if _, err := env.engine.GetEscrow(listing.ID); !errors.Is(err, ErrEscrowNotFound) {
		t.Fatalf("expected no escrow after failed purchase, got %v", err)
	}
	if got := env.ledger.balance(poor); got.Cmp(big.NewInt(10)) != 0 {
		t.Fatalf("failed purchase moved funds: %s", got)
	}

	if _, err := env.engine.Purchase(listing.ID, buyer); err != nil {
		t.Fatalf("purchase: %v", err)
	}
	if _, err := env.engine.Purchase(listing.ID, buyer); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState on sold listing, got %v", err)
	}
}

func TestCancelListing(t *testing.T) {
	env := newTestEnv(t)
	seller := newTestAddress(0x10)
	buyer := newTestAddress(0x20)
	env.roles.addProducer(seller)
	env.roles.addConsumer(buyer)
	env.ledger.credit(buyer, 1_000)

	listing, err := env.engine.CreateListing(seller, 100, big.NewInt(5), PricingFixed, nil)
	if err != nil {
		t.Fatalf("create listing: %v", err)
	}

	if _, err := env.engine.CancelListing(listing.ID, buyer); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for non-seller cancel, got %v", err)
	}
	cancelled, err := env.engine.CancelListing(listing.ID, seller)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.State != ListingCancelled {
		t.Fatalf("expected cancelled state, got %v", cancelled.State)
	}
	if _, err := env.engine.CancelListing(listing.ID, seller); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState on second cancel, got %v", err)
	}
	if _, err := env.engine.Purchase(listing.ID, buyer); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState purchasing cancelled listing, got %v", err)
	}
}

func TestAuctionFlow(t *testing.T) {
	env := newTestEnv(t)
	seller := newTestAddress(0x10)
	alice := newTestAddress(0x20)
	bob := newTestAddress(0x21)
	env.roles.addProducer(seller)
	env.roles.addConsumer(alice)
	env.roles.addConsumer(bob)
	env.ledger.credit(alice, 10_000)
	env.ledger.credit(bob, 10_000)

	listing, err := env.engine.CreateListing(seller, 100, big.NewInt(5), PricingAuction, big.NewInt(4))
	if err != nil {
		t.Fatalf("create auction: %v", err)
	}

	if _, err := env.engine.Purchase(listing.ID, alice); !errors.Is(err, ErrInvalidPricing) {
		t.Fatalf("expected ErrInvalidPricing purchasing auction, got %v", err)
	}
	if _, err := env.engine.GetHighestBid(listing.ID); !errors.Is(err, ErrBidNotFound) {
		t.Fatalf("expected ErrBidNotFound before first bid, got %v", err)
	}
	if _, err := env.engine.FinalizeAuction(listing.ID, seller); !errors.Is(err, ErrNoLeadingBid) {
		t.Fatalf("expected ErrNoLeadingBid, got %v", err)
	}
	if _, err := env.engine.PlaceBid(listing.ID, alice, big.NewInt(3)); !errors.Is(err, ErrPriceTooLow) {
		t.Fatalf("expected ErrPriceTooLow below minimum, got %v", err)
	}
	if _, err := env.engine.PlaceBid(listing.ID, seller, big.NewInt(6)); !errors.Is(err, ErrSelfTrade) {
		t.Fatalf("expected ErrSelfTrade on own auction, got %v", err)
	}

	if _, err := env.engine.PlaceBid(listing.ID, alice, big.NewInt(6)); err != nil {
		t.Fatalf("first bid: %v", err)
	}
	leading, err := env.engine.GetHighestBid(listing.ID)
	if err != nil {
		t.Fatalf("highest bid: %v", err)
	}
	if leading.Bidder != alice || leading.PricePerUnit.Cmp(big.NewInt(6)) != 0 {
		t.Fatalf("unexpected leading bid: %+v", leading)
	}

	if _, err := env.engine.PlaceBid(listing.ID, bob, big.NewInt(6)); !errors.Is(err, ErrPriceTooLow) {
		t.Fatalf("expected ErrPriceTooLow matching leading bid, got %v", err)
	}
	if _, err := env.engine.PlaceBid(listing.ID, bob, big.NewInt(7)); err != nil {
		t.Fatalf("outbid: %v", err)
	}
	leading, err = env.engine.GetHighestBid(listing.ID)
	if err != nil {
		t.Fatalf("highest bid after outbid: %v", err)
	}
	if leading.Bidder != bob || leading.PricePerUnit.Cmp(big.NewInt(7)) != 0 {
		t.Fatalf("unexpected leading bid after outbid: %+v", leading)
	}

	// Alice's losing bid remains as an audit row.
	aliceBid, err := env.engine.GetBid(listing.ID, alice)
	if err != nil {
		t.Fatalf("audit bid: %v", err)
	}
	if aliceBid.PricePerUnit.Cmp(big.NewInt(6)) != 0 {
		t.Fatalf("unexpected audit bid price: %s", aliceBid.PricePerUnit)
	}

	// No funds move while bidding.
	if got := env.ledger.balance(bob); got.Cmp(big.NewInt(10_000)) != 0 {
		t.Fatalf("bidding moved funds: %s", got)
	}

	if _, err := env.engine.FinalizeAuction(listing.ID, alice); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for non-seller finalize, got %v", err)
	}
	final, err := env.engine.FinalizeAuction(listing.ID, seller)
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if final.State != ListingSold || final.Buyer != bob {
		t.Fatalf("unexpected finalized listing: %+v", final)
	}
	if got := env.ledger.balance(bob); got.Cmp(big.NewInt(9_300)) != 0 {
		t.Fatalf("expected winner debited 700, balance %s", got)
	}
	record, err := env.engine.GetEscrow(listing.ID)
	if err != nil {
		t.Fatalf("escrow after finalize: %v", err)
	}
	if record.Amount.Cmp(big.NewInt(700)) != 0 {
		t.Fatalf("expected escrow 700, got %s", record.Amount)
	}
	if _, err := env.engine.PlaceBid(listing.ID, alice, big.NewInt(8)); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState bidding on sold auction, got %v", err)
	}
}

func TestDisputeRefund(t *testing.T) {
	env := newTestEnv(t)
	seller := newTestAddress(0x10)
	buyer := newTestAddress(0x20)
	env.roles.addProducer(seller)
	env.roles.addConsumer(buyer)
	env.ledger.credit(buyer, 500)

	listing, err := env.engine.CreateListing(seller, 100, big.NewInt(5), PricingFixed, nil)
	if err != nil {
		t.Fatalf("create listing: %v", err)
	}
	if _, err := env.engine.Purchase(listing.ID, buyer); err != nil {
		t.Fatalf("purchase: %v", err)
	}

	if _, err := env.engine.OpenDispute(listing.ID, env.owner); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for third-party dispute, got %v", err)
	}
	disputed, err := env.engine.OpenDispute(listing.ID, buyer)
	if err != nil {
		t.Fatalf("open dispute: %v", err)
	}
	if disputed.State != ListingDisputed {
		t.Fatalf("expected disputed state, got %v", disputed.State)
	}
	if _, err := env.engine.ConfirmDelivery(listing.ID, buyer); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState confirming disputed listing, got %v", err)
	}
	if _, err := env.engine.ResolveDispute(listing.ID, buyer, true); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for non-owner resolve, got %v", err)
	}

	resolved, err := env.engine.ResolveDispute(listing.ID, env.owner, true)
	if err != nil {
		t.Fatalf("resolve dispute: %v", err)
	}
	if resolved.State != ListingSettled {
		t.Fatalf("expected settled state after resolution, got %v", resolved.State)
	}
	// Full refund: no fee is taken on a buyer refund.
	if got := env.ledger.balance(buyer); got.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("expected full refund 500, got %s", got)
	}
	if got := env.ledger.balance(seller); got.Sign() != 0 {
		t.Fatalf("seller paid on refund: %s", got)
	}
	if got := env.ledger.balance(env.engine.Vault()); got.Sign() != 0 {
		t.Fatalf("vault not emptied on refund: %s", got)
	}
	if _, err := env.engine.GetEscrow(listing.ID); !errors.Is(err, ErrEscrowNotFound) {
		t.Fatalf("expected escrow removed after resolution, got %v", err)
	}

	history, err := env.engine.GetTradingHistory(buyer)
	if err != nil {
		t.Fatalf("buyer history: %v", err)
	}
	if history.DisputedTrades != 1 || history.SuccessfulTrades != 0 {
		t.Fatalf("unexpected buyer history: %+v", history)
	}
	if history.EnergyBought != 100 {
		t.Fatalf("energy totals must accrue on disputed settlement, got %d", history.EnergyBought)
	}
}

func TestDisputeSellerWins(t *testing.T) {
	env := newTestEnv(t)
	seller := newTestAddress(0x10)
	buyer := newTestAddress(0x20)
	env.roles.addProducer(seller)
	env.roles.addConsumer(buyer)
	env.ledger.credit(buyer, 500)

	listing, err := env.engine.CreateListing(seller, 100, big.NewInt(5), PricingFixed, nil)
	if err != nil {
		t.Fatalf("create listing: %v", err)
	}
	if _, err := env.engine.Purchase(listing.ID, buyer); err != nil {
		t.Fatalf("purchase: %v", err)
	}
	if _, err := env.engine.ConfirmDelivery(listing.ID, buyer); err != nil {
		t.Fatalf("confirm delivery: %v", err)
	}
	// Disputes stay open from Delivered too.
	if _, err := env.engine.OpenDispute(listing.ID, seller); err != nil {
		t.Fatalf("open dispute: %v", err)
	}
	if _, err := env.engine.ResolveDispute(listing.ID, env.owner, false); err != nil {
		t.Fatalf("resolve for seller: %v", err)
	}
	if got := env.ledger.balance(seller); got.Cmp(big.NewInt(495)) != 0 {
		t.Fatalf("expected seller payout 495, got %s", got)
	}
	if got := env.ledger.balance(env.owner); got.Cmp(big.NewInt(5)) != 0 {
		t.Fatalf("expected owner fee 5, got %s", got)
	}
	history, err := env.engine.GetTradingHistory(seller)
	if err != nil {
		t.Fatalf("seller history: %v", err)
	}
	if history.DisputedTrades != 1 || history.SuccessfulTrades != 0 {
		t.Fatalf("unexpected seller history: %+v", history)
	}
}

func TestAdminOperations(t *testing.T) {
	env := newTestEnv(t)
	stranger := newTestAddress(0x99)

	if err := env.engine.SetPlatformFeePercent(stranger, 5); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := env.engine.SetPlatformFeePercent(env.owner, MaxFeePercent+1); !errors.Is(err, ErrFeeTooHigh) {
		t.Fatalf("expected ErrFeeTooHigh, got %v", err)
	}
	if err := env.engine.SetPlatformFeePercent(env.owner, 0); err != nil {
		t.Fatalf("zero fee must be allowed: %v", err)
	}
	if err := env.engine.SetPlatformFeePercent(env.owner, MaxFeePercent); err != nil {
		t.Fatalf("max fee must be allowed: %v", err)
	}
	percent, err := env.engine.PlatformFeePercent()
	if err != nil {
		t.Fatalf("fee percent: %v", err)
	}
	if percent != MaxFeePercent {
		t.Fatalf("expected fee %d, got %d", MaxFeePercent, percent)
	}

	if err := env.engine.SetListingAmountLimits(env.owner, 0, 10); !errors.Is(err, ErrInvalidLimits) {
		t.Fatalf("expected ErrInvalidLimits for zero min, got %v", err)
	}
	if err := env.engine.SetListingAmountLimits(env.owner, 10, 10); !errors.Is(err, ErrInvalidLimits) {
		t.Fatalf("expected ErrInvalidLimits for min==max, got %v", err)
	}
	if err := env.engine.SetListingAmountLimits(env.owner, 10, 500); err != nil {
		t.Fatalf("set limits: %v", err)
	}
	seller := newTestAddress(0x10)
	env.roles.addProducer(seller)
	if _, err := env.engine.CreateListing(seller, 5, big.NewInt(1), PricingFixed, nil); !errors.Is(err, ErrAmountTooSmall) {
		t.Fatalf("expected ErrAmountTooSmall under new limits, got %v", err)
	}

	next := newTestAddress(0x02)
	if err := env.engine.TransferOwnership(stranger, next); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized transfer, got %v", err)
	}
	if err := env.engine.TransferOwnership(env.owner, next); err != nil {
		t.Fatalf("transfer ownership: %v", err)
	}
	// The previous owner loses every gated capability immediately.
	if err := env.engine.SetPlatformFeePercent(env.owner, 1); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected old owner rejected, got %v", err)
	}
	if err := env.engine.SetPlatformFeePercent(next, 1); err != nil {
		t.Fatalf("new owner must manage fees: %v", err)
	}
	owner, err := env.engine.Owner()
	if err != nil {
		t.Fatalf("owner: %v", err)
	}
	if owner != next {
		t.Fatalf("ownership not recorded")
	}
}

func TestModulePauseBlocksMutations(t *testing.T) {
	env := newTestEnv(t)
	seller := newTestAddress(0x10)
	env.roles.addProducer(seller)
	env.engine.SetPauses(nativecommon.Pauses{"market": true})

	if _, err := env.engine.CreateListing(seller, 100, big.NewInt(5), PricingFixed, nil); !errors.Is(err, nativecommon.ErrModulePaused) {
		t.Fatalf("expected ErrModulePaused, got %v", err)
	}
	if err := env.engine.SetPlatformFeePercent(env.owner, 2); !errors.Is(err, nativecommon.ErrModulePaused) {
		t.Fatalf("expected ErrModulePaused on admin op, got %v", err)
	}
	// Reads stay available while paused.
	if _, err := env.engine.PlatformFeePercent(); err != nil {
		t.Fatalf("paused read failed: %v", err)
	}
}

func TestEventEmission(t *testing.T) {
	env := newTestEnv(t)
	seller := newTestAddress(0x10)
	buyer := newTestAddress(0x20)
	env.roles.addProducer(seller)
	env.roles.addConsumer(buyer)
	env.ledger.credit(buyer, 500)

	listing, err := env.engine.CreateListing(seller, 100, big.NewInt(5), PricingFixed, nil)
	if err != nil {
		t.Fatalf("create listing: %v", err)
	}
	if _, err := env.engine.Purchase(listing.ID, buyer); err != nil {
		t.Fatalf("purchase: %v", err)
	}
	if _, err := env.engine.ConfirmDelivery(listing.ID, buyer); err != nil {
		t.Fatalf("confirm delivery: %v", err)
	}
	if _, err := env.engine.SettlePayment(listing.ID, seller); err != nil {
		t.Fatalf("settle: %v", err)
	}

	want := []string{
		EventTypeListingCreated,
		EventTypeEscrowOpened,
		EventTypeListingSold,
		EventTypeDeliveryConfirmed,
		EventTypePaymentSettled,
	}
	got := env.emitter.types()
	if len(got) != len(want) {
		t.Fatalf("expected %d events, got %v", len(want), got)
	}
	for i, eventType := range want {
		if got[i] != eventType {
			t.Fatalf("event %d: expected %s, got %s", i, eventType, got[i])
		}
	}
}
