package inbound

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	localCommon "github.com/mw-chain/polkadot-sdk/pkg/common"
	"github.com/mw-chain/polkadot-sdk/pkg/db"
	"github.com/mw-chain/polkadot-sdk/pkg/envelope"
)

var errStopIteration = errors.New("stop iteration")

// OutboxPrefix is the key prefix of accepted messages waiting to be routed downstream. Keys sort by channel, then
// nonce.
const OutboxPrefix = "OUTBOX:V1:"

// Message is an accepted message as handed to the downstream router.
type Message struct {
	ChannelID localCommon.ChannelID `json:"channelId"`
	Nonce     uint64                `json:"nonce"`
	MessageID common.Hash           `json:"messageId"`
	Command   envelope.Command      `json:"command"`
	Relayer   localCommon.AccountID `json:"relayer"`
}

func (m *Message) String() string {
	return fmt.Sprintf("Message: {ChannelID=%s Nonce=%d MessageID=%s Tag=%s}", m.ChannelID, m.Nonce, m.MessageID.Hex(), m.Command.Tag)
}

// OutboxKey returns the key the message is stored under.
func (m *Message) OutboxKey() []byte {
	return []byte(fmt.Sprintf("%s%s:%020d", OutboxPrefix, m.ChannelID, m.Nonce))
}

func UnmarshalMessage(data []byte) (*Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to unmarshal outbox message: %w", err)
	}
	return &m, nil
}

// dispatch records the message in the outbox.
func dispatch(kv db.KVWriter, m *Message) error {
	b, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	return kv.Set(m.OutboxKey(), b)
}

// PendingMessages returns up to limit outbox entries in key order. A limit of zero returns all of them.
func PendingMessages(store db.Store, limit int) ([]*Message, error) {
	var msgs []*Message
	err := store.View(func(kv db.KVReader) error {
		return kv.Iterate([]byte(OutboxPrefix), func(_, value []byte) error {
			m, err := UnmarshalMessage(value)
			if err != nil {
				return err
			}
			msgs = append(msgs, m)
			if limit > 0 && len(msgs) >= limit {
				return errStopIteration
			}
			return nil
		})
	})
	if err != nil && !errors.Is(err, errStopIteration) {
		return nil, err
	}
	return msgs, nil
}

// RemoveMessage deletes a routed message from the outbox.
func RemoveMessage(store db.Store, m *Message) error {
	return store.Update(func(kv db.KVWriter) error {
		return kv.Delete(m.OutboxKey())
	})
}
