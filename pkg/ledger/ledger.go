// Package ledger keeps local account balances. Transfer never takes the sender below the existential deposit, but a
// recipient may be credited an amount that leaves it below that floor.
package ledger

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/mw-chain/polkadot-sdk/pkg/common"
	"github.com/mw-chain/polkadot-sdk/pkg/db"
)

const balancePrefix = "LEDGER:BAL:"

var (
	ErrInsufficientBalance = errors.New("transfer would take the sender below the existential deposit")
	ErrBalanceOverflow     = errors.New("balance overflow")
	ErrBelowMinimum        = errors.New("balance is below the existential deposit")
)

type Ledger struct {
	existentialDeposit *uint256.Int
}

// New returns a ledger enforcing the given existential deposit. A nil deposit means zero.
func New(existentialDeposit *uint256.Int) *Ledger {
	ed := new(uint256.Int)
	if existentialDeposit != nil {
		ed.Set(existentialDeposit)
	}
	return &Ledger{existentialDeposit: ed}
}

// ExistentialDeposit returns a copy of the minimum balance of a live account.
func (l *Ledger) ExistentialDeposit() *uint256.Int {
	return l.existentialDeposit.Clone()
}

func balanceKey(who common.AccountID) []byte {
	return []byte(balancePrefix + who.String())
}

// Balance returns the free balance of an account; unknown accounts have a zero balance.
func (l *Ledger) Balance(kv db.KVReader, who common.AccountID) (*uint256.Int, error) {
	b, err := kv.Get(balanceKey(who))
	if errors.Is(err, db.ErrKeyNotFound) {
		return new(uint256.Int), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read balance of %s: %w", who, err)
	}
	if len(b) != 32 {
		return nil, fmt.Errorf("corrupt balance entry for %s: length %d", who, len(b))
	}
	return new(uint256.Int).SetBytes(b), nil
}

// SetBalance overwrites the balance of an account. A non-zero amount below the existential deposit is rejected,
// and setting zero removes the account.
func (l *Ledger) SetBalance(kv db.KVWriter, who common.AccountID, amount *uint256.Int) error {
	if amount.IsZero() {
		return kv.Delete(balanceKey(who))
	}
	if amount.Lt(l.existentialDeposit) {
		return fmt.Errorf("%w: %s < %s", ErrBelowMinimum, amount.Dec(), l.existentialDeposit.Dec())
	}
	b := amount.Bytes32()
	return kv.Set(balanceKey(who), b[:])
}

// Mint credits amount to the account.
func (l *Ledger) Mint(kv db.KVWriter, who common.AccountID, amount *uint256.Int) error {
	bal, err := l.Balance(kv, who)
	if err != nil {
		return err
	}
	if _, overflow := bal.AddOverflow(bal, amount); overflow {
		return ErrBalanceOverflow
	}
	return l.SetBalance(kv, who, bal)
}

// Reducible returns how much can be taken from the account while keeping it alive:
// balance - existential deposit, or zero if the balance does not exceed the deposit.
func (l *Ledger) Reducible(kv db.KVReader, who common.AccountID) (*uint256.Int, error) {
	bal, err := l.Balance(kv, who)
	if err != nil {
		return nil, err
	}
	if !bal.Gt(l.existentialDeposit) {
		return new(uint256.Int), nil
	}
	return bal.Sub(bal, l.existentialDeposit), nil
}

// Transfer moves amount from one account to another, keeping the sender at or above the existential deposit.
// The recipient is credited even if its resulting balance stays below the deposit.
func (l *Ledger) Transfer(kv db.KVWriter, from, to common.AccountID, amount *uint256.Int) error {
	if amount.IsZero() || from == to {
		return nil
	}

	reducible, err := l.Reducible(kv, from)
	if err != nil {
		return err
	}
	if amount.Gt(reducible) {
		return fmt.Errorf("%w: %s requested, %s available", ErrInsufficientBalance, amount.Dec(), reducible.Dec())
	}

	fromBal, err := l.Balance(kv, from)
	if err != nil {
		return err
	}
	toBal, err := l.Balance(kv, to)
	if err != nil {
		return err
	}
	if _, overflow := toBal.AddOverflow(toBal, amount); overflow {
		return ErrBalanceOverflow
	}
	fromBal.Sub(fromBal, amount)

	if err := l.put(kv, from, fromBal); err != nil {
		return err
	}
	return l.put(kv, to, toBal)
}

// put stores a balance without the existential deposit check.
func (l *Ledger) put(kv db.KVWriter, who common.AccountID, amount *uint256.Int) error {
	if amount.IsZero() {
		return kv.Delete(balanceKey(who))
	}
	b := amount.Bytes32()
	return kv.Set(balanceKey(who), b[:])
}
