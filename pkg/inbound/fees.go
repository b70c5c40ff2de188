package inbound

import (
	"github.com/holiman/uint256"
	localCommon "github.com/mw-chain/polkadot-sdk/pkg/common"
	"github.com/mw-chain/polkadot-sdk/pkg/db"
	"github.com/mw-chain/polkadot-sdk/pkg/ledger"
)

// PricingParameters determine what a relayer is paid for delivering a message.
type PricingParameters struct {
	// BaseFee is charged for every message regardless of size.
	BaseFee *uint256.Int
	// ByteFee is charged per byte of the encoded submission.
	ByteFee *uint256.Int
	// LocalReward is an incentive paid on top of the delivery cost.
	LocalReward *uint256.Int
}

func orZero(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return v
}

// DeliveryCost returns BaseFee + ByteFee*length + LocalReward, saturating at the maximum balance.
func (p PricingParameters) DeliveryCost(length int) *uint256.Int {
	if length < 0 {
		length = 0
	}
	saturated := new(uint256.Int).SetAllOne()

	cost, overflow := new(uint256.Int).MulOverflow(orZero(p.ByteFee), uint256.NewInt(uint64(length)))
	if overflow {
		return saturated
	}
	if _, overflow = cost.AddOverflow(cost, orZero(p.BaseFee)); overflow {
		return saturated
	}
	if _, overflow = cost.AddOverflow(cost, orZero(p.LocalReward)); overflow {
		return saturated
	}
	return cost
}

// settleFees pays the relayer up to cost from the fee account without taking it below the existential deposit.
// It returns the amount paid, which is zero when the fee account has nothing to spare or is the relayer itself.
func settleFees(kv db.KVWriter, l *ledger.Ledger, feeAccount, relayer localCommon.AccountID, cost *uint256.Int) (*uint256.Int, error) {
	if feeAccount == relayer {
		return new(uint256.Int), nil
	}
	reducible, err := l.Reducible(kv, feeAccount)
	if err != nil {
		return nil, err
	}
	reward := cost.Clone()
	if reducible.Lt(reward) {
		reward = reducible
	}
	if reward.IsZero() {
		return reward, nil
	}
	if err := l.Transfer(kv, feeAccount, relayer, reward); err != nil {
		return nil, err
	}
	return reward, nil
}
