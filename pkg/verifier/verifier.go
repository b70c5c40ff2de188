// Package verifier implements a proof verifier for foreign execution-layer logs. An execution proof is a
// quorum-signed attestation of a block's receipts root. A receipt proof is a Merkle-Patricia inclusion proof of a
// receipt under that root. A log is authentic if the proven receipt contains it.
package verifier

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	lru "github.com/hashicorp/golang-lru"
	"github.com/mw-chain/polkadot-sdk/pkg/envelope"
	"github.com/mw-chain/polkadot-sdk/pkg/inbound"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

const DefaultHeaderCacheSize = 1024

var (
	verifiedHeadersCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "inbound_verifier_header_cache_hits_total",
			Help: "Total number of attestations served from the verified header cache",
		})
	proofsVerified = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inbound_verifier_proofs_total",
			Help: "Total number of proofs checked by the verifier",
		}, []string{"result"})
)

var ErrLogNotInReceipt = errors.New("log not found in proven receipt")

type Verifier struct {
	logger *zap.Logger

	setsLock sync.RWMutex
	sets     map[uint32]*AttesterSet

	// verifiedHeaders maps an attested block hash to its receipts root.
	verifiedHeaders *lru.Cache
}

var _ inbound.Verifier = (*Verifier)(nil)

func NewVerifier(logger *zap.Logger, cacheSize int, sets ...*AttesterSet) (*Verifier, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultHeaderCacheSize
	}
	cache, err := lru.New(cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create header cache: %w", err)
	}
	v := &Verifier{
		logger:          logger,
		sets:            make(map[uint32]*AttesterSet),
		verifiedHeaders: cache,
	}
	for _, set := range sets {
		if err := v.AddAttesterSet(set); err != nil {
			return nil, err
		}
	}
	return v, nil
}

// AddAttesterSet makes a set available for verifying attestations. Sets are immutable once added.
func (v *Verifier) AddAttesterSet(set *AttesterSet) error {
	if set == nil || len(set.Keys) == 0 {
		return errors.New("attester set must have at least one key")
	}
	if len(set.Keys) > 255 {
		return fmt.Errorf("attester set %d has %d keys, the maximum is 255", set.Index, len(set.Keys))
	}

	v.setsLock.Lock()
	defer v.setsLock.Unlock()
	if _, exists := v.sets[set.Index]; exists {
		return fmt.Errorf("attester set %d already exists", set.Index)
	}
	v.sets[set.Index] = set
	v.logger.Info("verifier: added attester set", zap.Uint32("index", set.Index), zap.Int("numKeys", len(set.Keys)), zap.Int("quorum", set.Quorum()))
	return nil
}

func (v *Verifier) attesterSet(index uint32) (*AttesterSet, bool) {
	v.setsLock.RLock()
	defer v.setsLock.RUnlock()
	set, exists := v.sets[index]
	return set, exists
}

// Verify checks that log was emitted in a block attested by a known attester set.
func (v *Verifier) Verify(log *envelope.EventLog, proof *inbound.Proof) error {
	err := v.verify(log, proof)
	if err != nil {
		proofsVerified.WithLabelValues("rejected").Inc()
		return err
	}
	proofsVerified.WithLabelValues("accepted").Inc()
	return nil
}

func (v *Verifier) verify(log *envelope.EventLog, proof *inbound.Proof) error {
	if log == nil || proof == nil {
		return fmt.Errorf("%w: missing log or proof", ErrMalformedProof)
	}

	root, err := v.verifyExecutionProof(proof.ExecutionProof)
	if err != nil {
		return err
	}

	receiptProof, err := UnmarshalReceiptProof(proof.ReceiptProof)
	if err != nil {
		return err
	}
	receipt, err := receiptProof.VerifyReceipt(root)
	if err != nil {
		return err
	}

	for _, l := range receipt.Logs {
		if log.Matches(l) {
			return nil
		}
	}
	return fmt.Errorf("%w: tx index %d", ErrLogNotInReceipt, receiptProof.TxIndex)
}

// verifyExecutionProof returns the receipts root of an attested block.
func (v *Verifier) verifyExecutionProof(data []byte) (common.Hash, error) {
	att, err := UnmarshalAttestation(data)
	if err != nil {
		return common.Hash{}, err
	}

	if cached, ok := v.verifiedHeaders.Get(att.BlockHash); ok {
		if root, ok := cached.(common.Hash); ok && root == att.ReceiptsRoot {
			verifiedHeadersCacheHits.Inc()
			return root, nil
		}
	}

	set, exists := v.attesterSet(att.SetIndex)
	if !exists {
		return common.Hash{}, fmt.Errorf("%w: %d", ErrUnknownSetIndex, att.SetIndex)
	}
	if err := att.Verify(set); err != nil {
		return common.Hash{}, err
	}

	v.verifiedHeaders.Add(att.BlockHash, att.ReceiptsRoot)
	v.logger.Debug("verifier: accepted attestation",
		zap.Stringer("blockHash", att.BlockHash),
		zap.Uint64("blockNumber", att.BlockNumber),
		zap.Stringer("receiptsRoot", att.ReceiptsRoot),
	)
	return att.ReceiptsRoot, nil
}
