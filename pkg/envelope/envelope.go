// Package envelope decodes OutboundMessageAccepted logs emitted by the foreign gateway contract into the
// messages the inbound queue acts on.
package envelope

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	localCommon "github.com/mw-chain/polkadot-sdk/pkg/common"
)

type (
	// EventLog is a raw log record as emitted on the foreign chain.
	EventLog struct {
		Address common.Address `json:"address"`
		Topics  []common.Hash  `json:"topics"`
		Data    hexutil.Bytes  `json:"data"`
	}

	// Envelope is the decoded form of an EventLog.
	Envelope struct {
		// Gateway is the address of the contract that emitted the log.
		Gateway   common.Address
		ChannelID localCommon.ChannelID
		Nonce     uint64
		MessageID common.Hash
		Command   Command
	}

	CommandTag uint8

	// Command is the message payload carried by the log.
	Command struct {
		Version uint8         `json:"version"`
		ChainID uint64        `json:"chainId"`
		Tag     CommandTag    `json:"tag"`
		Body    hexutil.Bytes `json:"body"`
	}
)

const (
	CommandRegisterToken CommandTag = iota
	CommandSendToken
	CommandSendNativeToken
)

const (
	// CommandVersion is the only payload version understood by the decoder.
	CommandVersion uint8 = 0

	// commandHeaderLength is version (1) + chain id (8) + tag (1).
	commandHeaderLength = 10
)

func (t CommandTag) String() string {
	switch t {
	case CommandRegisterToken:
		return "RegisterToken"
	case CommandSendToken:
		return "SendToken"
	case CommandSendNativeToken:
		return "SendNativeToken"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(t))
	}
}

func (t CommandTag) Valid() bool {
	return t <= CommandSendNativeToken
}

// FromTypesLog converts a go-ethereum log into an EventLog.
func FromTypesLog(l *types.Log) *EventLog {
	topics := make([]common.Hash, len(l.Topics))
	copy(topics, l.Topics)
	return &EventLog{
		Address: l.Address,
		Topics:  topics,
		Data:    common.CopyBytes(l.Data),
	}
}

// Matches reports whether l and the go-ethereum log carry the same address, topics and data.
func (l *EventLog) Matches(other *types.Log) bool {
	if l.Address != other.Address || len(l.Topics) != len(other.Topics) {
		return false
	}
	for i := range l.Topics {
		if l.Topics[i] != other.Topics[i] {
			return false
		}
	}
	return bytes.Equal(l.Data, other.Data)
}

// Serialize returns the canonical binary encoding of the log:
// address (20) | topic count (1) | topics (32 each) | data length (4) | data.
func (l *EventLog) Serialize() ([]byte, error) {
	if len(l.Topics) > 255 {
		return nil, fmt.Errorf("too many topics: %d", len(l.Topics))
	}
	buf := new(bytes.Buffer)
	buf.Write(l.Address.Bytes())
	MustWrite(buf, binary.BigEndian, uint8(len(l.Topics)))
	for _, t := range l.Topics {
		buf.Write(t.Bytes())
	}
	if err := WriteBytes(buf, l.Data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Encode returns the payload layout of the command.
func (c *Command) Encode() []byte {
	buf := new(bytes.Buffer)
	MustWrite(buf, binary.BigEndian, c.Version)
	MustWrite(buf, binary.BigEndian, c.ChainID)
	MustWrite(buf, binary.BigEndian, c.Tag)
	buf.Write(c.Body)
	return buf.Bytes()
}

// MustWrite calls binary.Write and panics on errors.
func MustWrite(w io.Writer, order binary.ByteOrder, data interface{}) {
	if err := binary.Write(w, order, data); err != nil {
		panic(fmt.Errorf("failed to write binary data: %v", data).Error())
	}
}

// WriteBytes writes a big-endian u32 length prefix followed by b.
func WriteBytes(w io.Writer, b []byte) error {
	if uint64(len(b)) > uint64(^uint32(0)) {
		return fmt.Errorf("byte string too long: %d", len(b))
	}
	MustWrite(w, binary.BigEndian, uint32(len(b)))
	if _, err := w.Write(b); err != nil {
		return err
	}
	return nil
}
