package token

import (
	"errors"
	"fmt"
	"math/big"

	nativecommon "gridchain/native/common"
)

// Symbol is the canonical symbol of the energy-credit token. Balances are
// denominated in micro-units.
const Symbol = "WATT"

const moduleName = "token"

var (
	ErrNilState          = errors.New("token: state not configured")
	ErrInsufficientFunds = errors.New("token: insufficient funds")
	ErrInvalidAmount     = errors.New("token: amount must be positive")
	ErrUnauthorizedMint  = errors.New("token: mint authority required")
)

// ledgerState is the subset of state manager functionality the ledger needs.
type ledgerState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

var (
	balancePrefix = []byte("token/balance/")
	supplyKey     = []byte("token/supply")
	authorityKey  = []byte("token/authority")
)

func balanceKey(addr [20]byte) []byte {
	return []byte(fmt.Sprintf("%s%x", balancePrefix, addr))
}

// Ledger implements the fungible value-transfer primitive used for escrow
// deposits and payouts. Every mutation is balance conserving: a transfer
// debits the sender and credits the recipient or fails without touching
// either account.
type Ledger struct {
	state  ledgerState
	pauses nativecommon.PauseView
}

// NewLedger constructs a ledger bound to the provided state backend.
func NewLedger(state ledgerState) *Ledger {
	return &Ledger{state: state}
}

// SetPauses configures the pause view consulted before mutations.
func (l *Ledger) SetPauses(p nativecommon.PauseView) {
	if l == nil {
		return
	}
	l.pauses = p
}

// BalanceOf returns the balance held by addr. Unknown accounts hold zero.
func (l *Ledger) BalanceOf(addr [20]byte) (*big.Int, error) {
	if l == nil || l.state == nil {
		return nil, ErrNilState
	}
	balance := new(big.Int)
	ok, err := l.state.KVGet(balanceKey(addr), balance)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return balance, nil
}

func (l *Ledger) setBalance(addr [20]byte, amount *big.Int) error {
	return l.state.KVPut(balanceKey(addr), amount)
}

// TotalSupply returns the total minted supply.
func (l *Ledger) TotalSupply() (*big.Int, error) {
	if l == nil || l.state == nil {
		return nil, ErrNilState
	}
	supply := new(big.Int)
	ok, err := l.state.KVGet(supplyKey, supply)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return supply, nil
}

// MintAuthority returns the configured mint authority, when set.
func (l *Ledger) MintAuthority() ([20]byte, bool, error) {
	var authority [20]byte
	if l == nil || l.state == nil {
		return authority, false, ErrNilState
	}
	ok, err := l.state.KVGet(authorityKey, &authority)
	if err != nil {
		return authority, false, err
	}
	return authority, ok, nil
}

// SetMintAuthority assigns the mint authority. The first assignment is open
// (genesis wiring); later changes must come from the current authority.
func (l *Ledger) SetMintAuthority(caller, authority [20]byte) error {
	if l == nil || l.state == nil {
		return ErrNilState
	}
	current, ok, err := l.MintAuthority()
	if err != nil {
		return err
	}
	if ok && caller != current {
		return ErrUnauthorizedMint
	}
	return l.state.KVPut(authorityKey, authority)
}

// Mint credits newly issued units to the recipient. Only the mint authority
// may mint.
func (l *Ledger) Mint(caller, to [20]byte, amount *big.Int) error {
	if l == nil || l.state == nil {
		return ErrNilState
	}
	if err := nativecommon.Guard(l.pauses, moduleName); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	authority, ok, err := l.MintAuthority()
	if err != nil {
		return err
	}
	if !ok || caller != authority {
		return ErrUnauthorizedMint
	}
	balance, err := l.BalanceOf(to)
	if err != nil {
		return err
	}
	if err := l.setBalance(to, new(big.Int).Add(balance, amount)); err != nil {
		return err
	}
	supply, err := l.TotalSupply()
	if err != nil {
		return err
	}
	return l.state.KVPut(supplyKey, new(big.Int).Add(supply, amount))
}

// Transfer moves amount from one account to another. The sender balance is
// checked before either side is written, so a failed transfer leaves both
// accounts untouched.
func (l *Ledger) Transfer(from, to [20]byte, amount *big.Int) error {
	if l == nil || l.state == nil {
		return ErrNilState
	}
	if err := nativecommon.Guard(l.pauses, moduleName); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if from == to {
		return nil
	}
	fromBalance, err := l.BalanceOf(from)
	if err != nil {
		return err
	}
	if fromBalance.Cmp(amount) < 0 {
		return ErrInsufficientFunds
	}
	toBalance, err := l.BalanceOf(to)
	if err != nil {
		return err
	}
	if err := l.setBalance(from, new(big.Int).Sub(fromBalance, amount)); err != nil {
		return err
	}
	return l.setBalance(to, new(big.Int).Add(toBalance, amount))
}
