package verifier

import (
	"bytes"
	"crypto/ecdsa"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/mw-chain/polkadot-sdk/pkg/envelope"
)

type (
	// Attestation claims that a foreign execution block with the given receipts root is final. It is trusted once a
	// quorum of the referenced attester set has signed it.
	Attestation struct {
		BlockHash    common.Hash
		BlockNumber  uint64
		ReceiptsRoot common.Hash
		SetIndex     uint32
		Signatures   []*Signature
	}

	Signature struct {
		Index     uint8
		Signature [65]byte
	}

	// AttesterSet is the ordered list of keys allowed to sign attestations.
	AttesterSet struct {
		Keys  []common.Address
		Index uint32
	}
)

var (
	ErrNoQuorum        = errors.New("attestation did not reach quorum")
	ErrBadSignatures   = errors.New("attestation has bad signatures")
	ErrUnknownSetIndex = errors.New("unknown attester set")
	ErrMalformedProof  = errors.New("malformed proof")
)

// CalculateQuorum returns the minimum number of attesters that need to sign for a set of the given size.
func CalculateQuorum(numAttesters int) int {
	if numAttesters < 0 {
		panic("Invalid numAttesters is less than zero")
	}
	return ((numAttesters * 2) / 3) + 1
}

func NewAttesterSet(keys []common.Address, index uint32) *AttesterSet {
	return &AttesterSet{Keys: keys, Index: index}
}

func (as *AttesterSet) Quorum() int {
	return CalculateQuorum(len(as.Keys))
}

// KeyIndex returns the position of addr in the set and whether it was found.
func (as *AttesterSet) KeyIndex(addr common.Address) (int, bool) {
	for i, k := range as.Keys {
		if k == addr {
			return i, true
		}
	}
	return -1, false
}

func (a *Attestation) signingBody() []byte {
	buf := new(bytes.Buffer)
	buf.Write(a.BlockHash.Bytes())
	envelope.MustWrite(buf, binary.BigEndian, a.BlockNumber)
	buf.Write(a.ReceiptsRoot.Bytes())
	envelope.MustWrite(buf, binary.BigEndian, a.SetIndex)
	return buf.Bytes()
}

// SigningDigest returns the hash attesters sign.
func (a *Attestation) SigningDigest() common.Hash {
	return crypto.Keccak256Hash(crypto.Keccak256(a.signingBody()))
}

// AddSignature signs the attestation with key and appends the signature under the given set index.
func (a *Attestation) AddSignature(key *ecdsa.PrivateKey, index uint8) error {
	sig, err := crypto.Sign(a.SigningDigest().Bytes(), key)
	if err != nil {
		return fmt.Errorf("failed to sign attestation: %w", err)
	}
	var s [65]byte
	copy(s[:], sig)
	a.Signatures = append(a.Signatures, &Signature{Index: index, Signature: s})
	return nil
}

// Verify checks quorum and every signature against the attester set.
func (a *Attestation) Verify(set *AttesterSet) error {
	if set == nil || len(set.Keys) == 0 {
		return errors.New("no attester keys were provided")
	}
	if a.SetIndex != set.Index {
		return fmt.Errorf("%w: attestation references set %d, got set %d", ErrUnknownSetIndex, a.SetIndex, set.Index)
	}
	if len(a.Signatures) < set.Quorum() {
		return fmt.Errorf("%w: %d of %d signatures", ErrNoQuorum, len(a.Signatures), set.Quorum())
	}
	if !verifySignatures(a.SigningDigest().Bytes(), a.Signatures, set.Keys) {
		return ErrBadSignatures
	}
	return nil
}

func verifySignatures(digest []byte, signatures []*Signature, addresses []common.Address) bool {
	if len(addresses) < len(signatures) {
		return false
	}

	lastIndex := -1
	seen := make(map[common.Address]struct{}, len(signatures))

	for _, sig := range signatures {
		if int(sig.Index) >= len(addresses) {
			return false
		}

		// Ensure increasing indexes
		if int(sig.Index) <= lastIndex {
			return false
		}
		lastIndex = int(sig.Index)

		addr := addresses[sig.Index]
		pubKey, err := crypto.Ecrecover(digest, sig.Signature[:])
		if err != nil {
			return false
		}
		if common.BytesToAddress(crypto.Keccak256(pubKey[1:])[12:]) != addr {
			return false
		}

		if _, exists := seen[addr]; exists {
			return false
		}
		seen[addr] = struct{}{}
	}

	return true
}

// Marshal returns the RLP encoding of the attestation.
func (a *Attestation) Marshal() ([]byte, error) {
	return rlp.EncodeToBytes(a)
}

// UnmarshalAttestation decodes an RLP encoded attestation.
func UnmarshalAttestation(data []byte) (*Attestation, error) {
	var a Attestation
	if err := rlp.DecodeBytes(data, &a); err != nil {
		return nil, fmt.Errorf("%w: failed to decode attestation: %v", ErrMalformedProof, err)
	}
	return &a, nil
}
