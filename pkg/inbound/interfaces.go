package inbound

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/mw-chain/polkadot-sdk/pkg/channel"
	localCommon "github.com/mw-chain/polkadot-sdk/pkg/common"
	"github.com/mw-chain/polkadot-sdk/pkg/envelope"
)

type (
	// Verifier decides whether log was authentically emitted on the foreign chain. Any error rejects the
	// submission.
	Verifier interface {
		Verify(log *envelope.EventLog, proof *Proof) error
	}

	// ChannelLookup resolves channel ids. It is satisfied by *channel.Registry.
	ChannelLookup interface {
		Lookup(id localCommon.ChannelID) (*channel.Channel, error)
	}

	// Authority decides which callers may run administrative operations.
	Authority interface {
		IsPrivileged(caller localCommon.AccountID) bool
	}

	// Observer is notified synchronously after a submission has been committed.
	Observer interface {
		OnMessageReceived(ev *MessageReceived)
	}

	// ObserverFunc adapts a function to the Observer interface.
	ObserverFunc func(ev *MessageReceived)

	MessageReceived struct {
		ChannelID localCommon.ChannelID
		Nonce     uint64
		MessageID common.Hash
		// Reward is the amount paid to the relayer. It may be zero.
		Reward *uint256.Int
	}

	// AdminSet is an Authority that grants privilege to a fixed set of accounts.
	AdminSet map[localCommon.AccountID]struct{}
)

var (
	_ ChannelLookup = (*channel.Registry)(nil)
	_ Authority     = AdminSet(nil)
)

func (f ObserverFunc) OnMessageReceived(ev *MessageReceived) {
	f(ev)
}

func NewAdminSet(admins ...localCommon.AccountID) AdminSet {
	s := make(AdminSet, len(admins))
	for _, a := range admins {
		s[a] = struct{}{}
	}
	return s
}

func (s AdminSet) IsPrivileged(caller localCommon.AccountID) bool {
	_, exists := s[caller]
	return exists
}
