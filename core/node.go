package core

import (
	"errors"
	"math/big"
	"sync"

	"gridchain/core/events"
	"gridchain/core/state"
	"gridchain/core/types"
	nativecommon "gridchain/native/common"
	"gridchain/native/market"
	"gridchain/native/meter"
	"gridchain/native/registry"
	"gridchain/native/token"
	"gridchain/storage"
)

const eventBufferSize = 512

// Node wires the native engines to a shared state manager and provides the
// serialized execution environment the marketplace assumes: one operation
// commits fully before the next begins, and the block height advances by one
// for every committed mutating operation. There is no parallelism inside the
// node; the single mutex is the sequencer.
type Node struct {
	mu sync.Mutex

	db     storage.Database
	state  *state.Manager
	height uint64

	market   *market.Engine
	registry *registry.Engine
	token    *token.Ledger
	meter    *meter.Ledger

	eventsMu sync.RWMutex
	recent   []types.Event
}

// NewNode opens the state manager over the supplied database, wires every
// native engine and initialises the marketplace configuration with the given
// owner when the database is fresh.
func NewNode(db storage.Database, owner [20]byte, pauses nativecommon.Pauses) (*Node, error) {
	manager := state.NewManager(db)
	height, err := manager.Height()
	if err != nil {
		return nil, err
	}
	n := &Node{
		db:     db,
		state:  manager,
		height: height,
	}
	heightFn := func() uint64 { return n.height + 1 }

	n.token = token.NewLedger(manager)
	n.token.SetPauses(pauses)

	n.registry = registry.NewEngine(manager)
	n.registry.SetPauses(pauses)
	n.registry.SetHeightFunc(heightFn)

	n.meter = meter.NewLedger(manager)
	n.meter.SetPauses(pauses)
	n.meter.SetHeightFunc(heightFn)

	n.market = market.NewEngine()
	n.market.SetState(manager)
	n.market.SetRoleOracle(roleOracle{engine: n.registry})
	n.market.SetValueLedger(valueLedger{ledger: n.token})
	n.market.SetPauses(pauses)
	n.market.SetHeightFunc(heightFn)
	n.market.SetEmitter(nodeEmitter{node: n})

	if err := n.market.InitConfig(owner); err != nil {
		return nil, err
	}
	if _, ok, err := n.token.MintAuthority(); err != nil {
		return nil, err
	} else if !ok {
		if err := n.token.SetMintAuthority(owner, owner); err != nil {
			return nil, err
		}
	}
	return n, nil
}

// roleOracle adapts the registry engine to the marketplace's authorization
// interface.
type roleOracle struct {
	engine *registry.Engine
}

func (o roleOracle) IsRegistered(addr [20]byte) (bool, error) {
	_, ok, err := o.engine.Get(addr)
	return ok, err
}

func (o roleOracle) CanSell(addr [20]byte) (bool, error) {
	role, err := o.engine.RoleOf(addr)
	if errors.Is(err, registry.ErrNotRegistered) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return role.CanSell(), nil
}

func (o roleOracle) CanBuy(addr [20]byte) (bool, error) {
	role, err := o.engine.RoleOf(addr)
	if errors.Is(err, registry.ErrNotRegistered) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return role.CanBuy(), nil
}

// valueLedger adapts the token ledger to the marketplace's transfer
// interface, translating the ledger's insufficient-funds sentinel into the
// marketplace's.
type valueLedger struct {
	ledger *token.Ledger
}

func (v valueLedger) Transfer(from, to [20]byte, amount *big.Int) error {
	err := v.ledger.Transfer(from, to, amount)
	if errors.Is(err, token.ErrInsufficientFunds) {
		return market.ErrInsufficientFunds
	}
	return err
}

// nodeEmitter buffers engine events for the RPC recent-events query.
type nodeEmitter struct {
	node *Node
}

type payloadEvent interface {
	Event() *types.Event
}

func (e nodeEmitter) Emit(evt events.Event) {
	carrier, ok := evt.(payloadEvent)
	if !ok || carrier.Event() == nil {
		return
	}
	e.node.eventsMu.Lock()
	defer e.node.eventsMu.Unlock()
	e.node.recent = append(e.node.recent, *carrier.Event())
	if len(e.node.recent) > eventBufferSize {
		e.node.recent = e.node.recent[len(e.node.recent)-eventBufferSize:]
	}
}

// RecentEvents returns a copy of the buffered events, newest last.
func (n *Node) RecentEvents() []types.Event {
	n.eventsMu.RLock()
	defer n.eventsMu.RUnlock()
	out := make([]types.Event, len(n.recent))
	copy(out, n.recent)
	return out
}

// Height returns the current ledger height.
func (n *Node) Height() uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.height
}

// commit advances the height after a successful mutating operation. Must be
// called with the node mutex held.
func (n *Node) commit() error {
	n.height++
	return n.state.SetHeight(n.height)
}

func (n *Node) execute(op func() error) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := op(); err != nil {
		return err
	}
	return n.commit()
}

// --- Registry operations ---

func (n *Node) RegisterParticipant(addr [20]byte, role registry.Role) (*registry.Participant, error) {
	var participant *registry.Participant
	err := n.execute(func() error {
		var opErr error
		participant, opErr = n.registry.Register(addr, role)
		return opErr
	})
	return participant, err
}

func (n *Node) UpdateParticipantRole(addr [20]byte, role registry.Role) (*registry.Participant, error) {
	var participant *registry.Participant
	err := n.execute(func() error {
		var opErr error
		participant, opErr = n.registry.UpdateRole(addr, role)
		return opErr
	})
	return participant, err
}

func (n *Node) GetParticipant(addr [20]byte) (*registry.Participant, bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.registry.Get(addr)
}

// --- Token operations ---

func (n *Node) TokenTransfer(from, to [20]byte, amount *big.Int) error {
	return n.execute(func() error {
		return n.token.Transfer(from, to, amount)
	})
}

func (n *Node) TokenMint(caller, to [20]byte, amount *big.Int) error {
	return n.execute(func() error {
		return n.token.Mint(caller, to, amount)
	})
}

func (n *Node) TokenBalanceOf(addr [20]byte) (*big.Int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.token.BalanceOf(addr)
}

func (n *Node) TokenTotalSupply() (*big.Int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.token.TotalSupply()
}

// --- Marketplace operations ---

func (n *Node) CreateListing(seller [20]byte, energyAmount uint64, pricePerUnit *big.Int, pricing market.PricingModel, minPrice *big.Int) (*market.Listing, error) {
	var listing *market.Listing
	err := n.execute(func() error {
		var opErr error
		listing, opErr = n.market.CreateListing(seller, energyAmount, pricePerUnit, pricing, minPrice)
		return opErr
	})
	return listing, err
}

func (n *Node) PurchaseListing(listingID uint64, buyer [20]byte) (*market.Listing, error) {
	var listing *market.Listing
	err := n.execute(func() error {
		var opErr error
		listing, opErr = n.market.Purchase(listingID, buyer)
		return opErr
	})
	return listing, err
}

func (n *Node) PlaceBid(listingID uint64, bidder [20]byte, pricePerUnit *big.Int) (*market.Bid, error) {
	var bid *market.Bid
	err := n.execute(func() error {
		var opErr error
		bid, opErr = n.market.PlaceBid(listingID, bidder, pricePerUnit)
		return opErr
	})
	return bid, err
}

func (n *Node) FinalizeAuction(listingID uint64, caller [20]byte) (*market.Listing, error) {
	var listing *market.Listing
	err := n.execute(func() error {
		var opErr error
		listing, opErr = n.market.FinalizeAuction(listingID, caller)
		return opErr
	})
	return listing, err
}

func (n *Node) CancelListing(listingID uint64, caller [20]byte) (*market.Listing, error) {
	var listing *market.Listing
	err := n.execute(func() error {
		var opErr error
		listing, opErr = n.market.CancelListing(listingID, caller)
		return opErr
	})
	return listing, err
}

func (n *Node) ConfirmDelivery(listingID uint64, caller [20]byte) (*market.Listing, error) {
	var listing *market.Listing
	err := n.execute(func() error {
		var opErr error
		listing, opErr = n.market.ConfirmDelivery(listingID, caller)
		return opErr
	})
	return listing, err
}

func (n *Node) SettlePayment(listingID uint64, caller [20]byte) (*market.Listing, error) {
	var listing *market.Listing
	err := n.execute(func() error {
		var opErr error
		listing, opErr = n.market.SettlePayment(listingID, caller)
		return opErr
	})
	return listing, err
}

func (n *Node) OpenDispute(listingID uint64, caller [20]byte) (*market.Listing, error) {
	var listing *market.Listing
	err := n.execute(func() error {
		var opErr error
		listing, opErr = n.market.OpenDispute(listingID, caller)
		return opErr
	})
	return listing, err
}

func (n *Node) ResolveDispute(listingID uint64, caller [20]byte, refundBuyer bool) (*market.Listing, error) {
	var listing *market.Listing
	err := n.execute(func() error {
		var opErr error
		listing, opErr = n.market.ResolveDispute(listingID, caller, refundBuyer)
		return opErr
	})
	return listing, err
}

func (n *Node) SetPlatformFeePercent(caller [20]byte, percent uint64) error {
	return n.execute(func() error {
		return n.market.SetPlatformFeePercent(caller, percent)
	})
}

func (n *Node) SetListingAmountLimits(caller [20]byte, min, max uint64) error {
	return n.execute(func() error {
		return n.market.SetListingAmountLimits(caller, min, max)
	})
}

func (n *Node) TransferMarketOwnership(caller, newOwner [20]byte) error {
	return n.execute(func() error {
		return n.market.TransferOwnership(caller, newOwner)
	})
}

func (n *Node) GetListing(id uint64) (*market.Listing, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.market.GetListing(id)
}

func (n *Node) GetEscrow(listingID uint64) (*market.EscrowRecord, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.market.GetEscrow(listingID)
}

func (n *Node) GetTradingHistory(addr [20]byte) (*market.TradingHistory, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.market.GetTradingHistory(addr)
}

func (n *Node) GetBid(listingID uint64, bidder [20]byte) (*market.Bid, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.market.GetBid(listingID, bidder)
}

func (n *Node) GetHighestBid(listingID uint64) (*market.Bid, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.market.GetHighestBid(listingID)
}

func (n *Node) ListingNonce() (uint64, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.market.ListingNonce()
}

func (n *Node) MarketOwner() ([20]byte, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.market.Owner()
}

func (n *Node) PlatformFeePercent() (uint64, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.market.PlatformFeePercent()
}

// MarketVault returns the custody account address.
func (n *Node) MarketVault() [20]byte {
	return n.market.Vault()
}

// --- Meter operations ---

func (n *Node) SubmitMeterReading(meterAddr [20]byte, kind meter.ReadingKind, energyWh, sequence uint64, signature []byte) (*meter.Reading, error) {
	var reading *meter.Reading
	err := n.execute(func() error {
		var opErr error
		reading, opErr = n.meter.SubmitReading(meterAddr, kind, energyWh, sequence, signature)
		return opErr
	})
	return reading, err
}

func (n *Node) GetMeterReading(id [32]byte) (*meter.Reading, bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.meter.GetReading(id)
}

func (n *Node) VerifyMeterReading(id [32]byte, verifier [20]byte, approved bool, notes string) (*meter.Verification, error) {
	var verification *meter.Verification
	err := n.execute(func() error {
		var opErr error
		verification, opErr = n.meter.Verify(id, verifier, approved, notes)
		return opErr
	})
	return verification, err
}

func (n *Node) GetMeterTotals(meterAddr [20]byte) (*meter.Totals, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.meter.TotalsOf(meterAddr)
}
