package inbound

import (
	"bytes"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/mw-chain/polkadot-sdk/pkg/envelope"
)

type (
	// Proof is opaque to the queue and interpreted only by the Verifier.
	Proof struct {
		ReceiptProof   hexutil.Bytes `json:"receiptProof"`
		ExecutionProof hexutil.Bytes `json:"executionProof"`
	}

	// EventProof is what relayers submit: a foreign log plus the evidence that it was emitted.
	EventProof struct {
		EventLog envelope.EventLog `json:"eventLog"`
		Proof    Proof             `json:"proof"`
	}
)

// Serialize returns the canonical binary encoding of the submission. Its length is the basis of the delivery cost.
func (p *EventProof) Serialize() ([]byte, error) {
	logBytes, err := p.EventLog.Serialize()
	if err != nil {
		return nil, err
	}
	buf := bytes.NewBuffer(logBytes)
	if err := envelope.WriteBytes(buf, p.Proof.ReceiptProof); err != nil {
		return nil, err
	}
	if err := envelope.WriteBytes(buf, p.Proof.ExecutionProof); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// EncodedLen returns len(Serialize()).
func (p *EventProof) EncodedLen() (int, error) {
	b, err := p.Serialize()
	if err != nil {
		return 0, err
	}
	return len(b), nil
}
