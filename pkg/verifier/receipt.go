package verifier

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethdb/memorydb"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/ethereum/go-ethereum/trie"
)

// ReceiptProof is a Merkle-Patricia proof that a receipt sits at TxIndex of a block's receipt trie.
type ReceiptProof struct {
	TxIndex uint64
	Nodes   [][]byte
}

var ErrReceiptNotProven = errors.New("receipt is not included under the receipts root")

func receiptKey(txIndex uint64) ([]byte, error) {
	return rlp.EncodeToBytes(uint(txIndex))
}

// Marshal returns the RLP encoding of the proof.
func (p *ReceiptProof) Marshal() ([]byte, error) {
	return rlp.EncodeToBytes(p)
}

// UnmarshalReceiptProof decodes an RLP encoded receipt proof.
func UnmarshalReceiptProof(data []byte) (*ReceiptProof, error) {
	var p ReceiptProof
	if err := rlp.DecodeBytes(data, &p); err != nil {
		return nil, fmt.Errorf("%w: failed to decode receipt proof: %v", ErrMalformedProof, err)
	}
	return &p, nil
}

// VerifyReceipt walks the proof from root and returns the receipt it proves.
func (p *ReceiptProof) VerifyReceipt(root common.Hash) (*types.Receipt, error) {
	proofDb := memorydb.New()
	for _, node := range p.Nodes {
		if err := proofDb.Put(crypto.Keccak256(node), node); err != nil {
			return nil, err
		}
	}

	key, err := receiptKey(p.TxIndex)
	if err != nil {
		return nil, err
	}
	value, err := trie.VerifyProof(root, key, proofDb)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrReceiptNotProven, err)
	}
	if len(value) == 0 {
		return nil, fmt.Errorf("%w: no receipt at index %d", ErrReceiptNotProven, p.TxIndex)
	}

	var receipt types.Receipt
	if err := receipt.UnmarshalBinary(value); err != nil {
		return nil, fmt.Errorf("%w: failed to decode receipt: %v", ErrMalformedProof, err)
	}
	return &receipt, nil
}

// ProveReceipt builds the receipt trie of a block and returns its root together with a proof for the receipt at
// txIndex. It is used by tooling that produces submissions.
func ProveReceipt(receipts types.Receipts, txIndex uint64) (common.Hash, *ReceiptProof, error) {
	if txIndex >= uint64(len(receipts)) {
		return common.Hash{}, nil, fmt.Errorf("tx index %d out of range (%d receipts)", txIndex, len(receipts))
	}

	tr := trie.NewEmpty(trie.NewDatabase(memorydb.New()))
	for i, r := range receipts {
		key, err := receiptKey(uint64(i))
		if err != nil {
			return common.Hash{}, nil, err
		}
		value, err := r.MarshalBinary()
		if err != nil {
			return common.Hash{}, nil, fmt.Errorf("failed to encode receipt %d: %w", i, err)
		}
		if err := tr.TryUpdate(key, value); err != nil {
			return common.Hash{}, nil, err
		}
	}

	root := tr.Hash()

	key, err := receiptKey(txIndex)
	if err != nil {
		return common.Hash{}, nil, err
	}
	proofDb := memorydb.New()
	if err := tr.Prove(key, 0, proofDb); err != nil {
		return common.Hash{}, nil, fmt.Errorf("failed to build proof: %w", err)
	}

	proof := &ReceiptProof{TxIndex: txIndex}
	it := proofDb.NewIterator(nil, nil)
	defer it.Release()
	for it.Next() {
		proof.Nodes = append(proof.Nodes, common.CopyBytes(it.Value()))
	}
	if err := it.Error(); err != nil {
		return common.Hash{}, nil, err
	}

	return root, proof, nil
}
