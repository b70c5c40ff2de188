package envelope

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	localCommon "github.com/mw-chain/polkadot-sdk/pkg/common"
)

// GatewayABI is the subset of the gateway contract ABI the decoder needs.
const GatewayABI = `[{
	"anonymous": false,
	"type": "event",
	"name": "OutboundMessageAccepted",
	"inputs": [
		{"indexed": true, "name": "channelID", "type": "bytes32"},
		{"indexed": false, "name": "nonce", "type": "uint64"},
		{"indexed": true, "name": "messageID", "type": "bytes32"},
		{"indexed": false, "name": "payload", "type": "bytes"}
	]
}]`

const outboundMessageAccepted = "OutboundMessageAccepted"

// OutboundMessageAcceptedTopic is keccak256("OutboundMessageAccepted(bytes32,uint64,bytes32,bytes)").
var OutboundMessageAcceptedTopic = common.HexToHash("0x7153f9357c8ea496bba60bf82e67143e27b64462b49041f8e689e1b05728f84f")

var ErrInvalidLog = errors.New("invalid log")

var (
	gatewayABI   abi.ABI
	eventInputs  abi.Arguments
	gatewayEvent abi.Event
)

func init() {
	var err error
	gatewayABI, err = abi.JSON(strings.NewReader(GatewayABI))
	if err != nil {
		panic(fmt.Sprintf("failed to parse gateway ABI: %v", err))
	}
	gatewayEvent = gatewayABI.Events[outboundMessageAccepted]
	eventInputs = gatewayEvent.Inputs.NonIndexed()
}

// Decode parses a raw log into an Envelope. It never returns a partially filled envelope: any failure is reported
// as an error wrapping ErrInvalidLog.
func Decode(log *EventLog) (*Envelope, error) {
	if log == nil {
		return nil, fmt.Errorf("%w: nil log", ErrInvalidLog)
	}
	if len(log.Topics) != 3 {
		return nil, fmt.Errorf("%w: expected 3 topics, got %d", ErrInvalidLog, len(log.Topics))
	}
	if log.Topics[0] != OutboundMessageAcceptedTopic {
		return nil, fmt.Errorf("%w: unexpected event signature %s", ErrInvalidLog, log.Topics[0].Hex())
	}

	values, err := eventInputs.Unpack(log.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to unpack event data: %v", ErrInvalidLog, err)
	}
	if len(values) != 2 {
		return nil, fmt.Errorf("%w: expected 2 data fields, got %d", ErrInvalidLog, len(values))
	}
	nonce, ok := values[0].(uint64)
	if !ok {
		return nil, fmt.Errorf("%w: nonce has unexpected type %T", ErrInvalidLog, values[0])
	}
	payload, ok := values[1].([]byte)
	if !ok {
		return nil, fmt.Errorf("%w: payload has unexpected type %T", ErrInvalidLog, values[1])
	}

	cmd, err := DecodeCommand(payload)
	if err != nil {
		return nil, err
	}

	return &Envelope{
		Gateway:   log.Address,
		ChannelID: localCommon.ChannelIDFromHash(log.Topics[1]),
		Nonce:     nonce,
		MessageID: log.Topics[2],
		Command:   *cmd,
	}, nil
}

// DecodeCommand parses the payload carried by an OutboundMessageAccepted log.
func DecodeCommand(payload []byte) (*Command, error) {
	if len(payload) < commandHeaderLength {
		return nil, fmt.Errorf("%w: payload too short: %d bytes", ErrInvalidLog, len(payload))
	}
	cmd := &Command{
		Version: payload[0],
		ChainID: binary.BigEndian.Uint64(payload[1:9]),
		Tag:     CommandTag(payload[9]),
		Body:    common.CopyBytes(payload[commandHeaderLength:]),
	}
	if cmd.Version != CommandVersion {
		return nil, fmt.Errorf("%w: unsupported payload version %d", ErrInvalidLog, cmd.Version)
	}
	if !cmd.Tag.Valid() {
		return nil, fmt.Errorf("%w: unknown command tag %d", ErrInvalidLog, payload[9])
	}
	return cmd, nil
}

// NewEventLog builds the log the gateway emits for the given message.
func NewEventLog(gateway common.Address, channelID localCommon.ChannelID, nonce uint64, messageID common.Hash, cmd *Command) (*EventLog, error) {
	data, err := eventInputs.Pack(nonce, cmd.Encode())
	if err != nil {
		return nil, fmt.Errorf("failed to pack event data: %w", err)
	}
	return &EventLog{
		Address: gateway,
		Topics:  []common.Hash{OutboundMessageAcceptedTopic, channelID.Hash(), messageID},
		Data:    data,
	}, nil
}
