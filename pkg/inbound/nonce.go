package inbound

import (
	"fmt"
	"math"

	localCommon "github.com/mw-chain/polkadot-sdk/pkg/common"
	"github.com/mw-chain/polkadot-sdk/pkg/db"
)

const noncePrefix = "INBOUND:NONCE:"

func nonceKey(ch localCommon.ChannelID) []byte {
	return []byte(noncePrefix + ch.String())
}

// readNonce returns the last nonce accepted on the channel, zero if none.
func readNonce(kv db.KVReader, ch localCommon.ChannelID) (uint64, error) {
	n, err := db.GetUint64(kv, nonceKey(ch))
	if err != nil {
		return 0, fmt.Errorf("failed to read nonce of channel %s: %w", ch, err)
	}
	return n, nil
}

// acceptNonce advances the channel's counter to nonce iff nonce immediately follows the last accepted one.
func acceptNonce(kv db.KVWriter, ch localCommon.ChannelID, nonce uint64) error {
	last, err := readNonce(kv, ch)
	if err != nil {
		return err
	}
	if last == math.MaxUint64 {
		return fmt.Errorf("%w: channel %s is exhausted", ErrInvalidNonce, ch)
	}
	if nonce != last+1 {
		return fmt.Errorf("%w: expected %d, got %d", ErrInvalidNonce, last+1, nonce)
	}
	return db.SetUint64(kv, nonceKey(ch), nonce)
}
