// Package inbound accepts relayer-submitted proofs of messages emitted by a foreign gateway contract. A submission
// is decoded, matched to a registered channel, verified and then committed in a single storage transaction that
// advances the channel nonce, records the message in the outbox and pays the relayer from the channel's fee
// account.
package inbound

import (
	"fmt"
	"sync"

	"github.com/holiman/uint256"
	localCommon "github.com/mw-chain/polkadot-sdk/pkg/common"
	"github.com/mw-chain/polkadot-sdk/pkg/db"
	"github.com/mw-chain/polkadot-sdk/pkg/envelope"
	"github.com/mw-chain/polkadot-sdk/pkg/ledger"
	"go.uber.org/zap"
)

type Queue struct {
	logger    *zap.Logger
	store     db.Store
	ledger    *ledger.Ledger
	channels  ChannelLookup
	verifier  Verifier
	authority Authority
	pricing   PricingParameters
	observers []Observer

	// mu serializes every state changing operation.
	mu sync.Mutex
}

func NewQueue(
	logger *zap.Logger,
	store db.Store,
	l *ledger.Ledger,
	channels ChannelLookup,
	verifier Verifier,
	authority Authority,
	pricing PricingParameters,
	observers ...Observer,
) *Queue {
	return &Queue{
		logger:    logger.With(zap.String("component", "inbound")),
		store:     store,
		ledger:    l,
		channels:  channels,
		verifier:  verifier,
		authority: authority,
		pricing:   pricing,
		observers: observers,
	}
}

// Submit processes a relayer submission. On error nothing has been written.
func (q *Queue) Submit(caller localCommon.AccountID, proof *EventProof) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	ev, err := q.submit(caller, proof)
	if err != nil {
		submissionsRejected.WithLabelValues(errorReason(err)).Inc()
		q.logger.Info("inbound: rejected submission", zap.Stringer("relayer", caller), zap.Error(err))
		return err
	}

	messagesAccepted.Inc()
	if ev.Reward.IsZero() {
		relayersUnpaid.Inc()
	}
	q.logger.Info("inbound: accepted message",
		zap.Stringer("channelID", ev.ChannelID),
		zap.Uint64("nonce", ev.Nonce),
		zap.Stringer("messageID", ev.MessageID),
		zap.Stringer("relayer", caller),
		zap.String("reward", ev.Reward.Dec()),
	)
	for _, o := range q.observers {
		o.OnMessageReceived(ev)
	}
	return nil
}

func (q *Queue) submit(caller localCommon.AccountID, proof *EventProof) (*MessageReceived, error) {
	if proof == nil {
		return nil, fmt.Errorf("%w: empty submission", ErrInvalidLog)
	}

	mode, err := q.OperatingMode()
	if err != nil {
		return nil, err
	}
	if mode == ModeHalted {
		return nil, ErrHalted
	}

	env, err := envelope.Decode(&proof.EventLog)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidLog, err)
	}

	ch, err := q.channels.Lookup(env.ChannelID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidChannel, env.ChannelID)
	}

	if env.Gateway != ch.Gateway {
		return nil, fmt.Errorf("%w: log emitted by %s, channel %s expects %s", ErrInvalidGateway, env.Gateway.Hex(), ch.ID, ch.Gateway.Hex())
	}

	if err := q.verifier.Verify(&proof.EventLog, &proof.Proof); err != nil {
		q.logger.Debug("inbound: proof verification failed", zap.Stringer("channelID", env.ChannelID), zap.Uint64("nonce", env.Nonce), zap.Error(err))
		return nil, ErrInvalidProof
	}

	length, err := proof.EncodedLen()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidLog, err)
	}
	cost := q.pricing.DeliveryCost(length)

	msg := &Message{
		ChannelID: env.ChannelID,
		Nonce:     env.Nonce,
		MessageID: env.MessageID,
		Command:   env.Command,
		Relayer:   caller,
	}

	var reward *uint256.Int
	err = q.store.Update(func(kv db.KVWriter) error {
		if err := acceptNonce(kv, env.ChannelID, env.Nonce); err != nil {
			return err
		}
		if err := dispatch(kv, msg); err != nil {
			return err
		}
		var err error
		reward, err = settleFees(kv, q.ledger, ch.FeeAccount, caller, cost)
		if err != nil {
			return fmt.Errorf("failed to settle fees: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &MessageReceived{
		ChannelID: env.ChannelID,
		Nonce:     env.Nonce,
		MessageID: env.MessageID,
		Reward:    reward,
	}, nil
}

// SetOperatingMode changes the global mode. Only privileged callers may do so.
func (q *Queue) SetOperatingMode(caller localCommon.AccountID, mode OperatingMode) error {
	if !q.authority.IsPrivileged(caller) {
		submissionsRejected.WithLabelValues(errorReason(ErrBadOrigin)).Inc()
		return ErrBadOrigin
	}
	if !mode.Valid() {
		return fmt.Errorf("invalid operating mode %d", uint8(mode))
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.store.Update(func(kv db.KVWriter) error {
		return writeMode(kv, mode)
	}); err != nil {
		return fmt.Errorf("failed to store operating mode: %w", err)
	}

	operatingModeGauge.Set(float64(mode))
	q.logger.Info("inbound: operating mode changed", zap.Stringer("mode", mode), zap.Stringer("caller", caller))
	return nil
}

func (q *Queue) OperatingMode() (OperatingMode, error) {
	var mode OperatingMode
	err := q.store.View(func(kv db.KVReader) error {
		var err error
		mode, err = readMode(kv)
		return err
	})
	return mode, err
}

// Nonce returns the last nonce accepted on the channel.
func (q *Queue) Nonce(ch localCommon.ChannelID) (uint64, error) {
	var nonce uint64
	err := q.store.View(func(kv db.KVReader) error {
		var err error
		nonce, err = readNonce(kv, ch)
		return err
	})
	return nonce, err
}

func (q *Queue) DeliveryCost(length int) *uint256.Int {
	return q.pricing.DeliveryCost(length)
}

func (q *Queue) Balance(who localCommon.AccountID) (*uint256.Int, error) {
	var bal *uint256.Int
	err := q.store.View(func(kv db.KVReader) error {
		var err error
		bal, err = q.ledger.Balance(kv, who)
		return err
	})
	return bal, err
}

// SetBalance overwrites an account balance. It exists for funding accounts on development networks; callers must
// gate it by environment.
func (q *Queue) SetBalance(caller, who localCommon.AccountID, amount *uint256.Int) error {
	if !q.authority.IsPrivileged(caller) {
		return ErrBadOrigin
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.store.Update(func(kv db.KVWriter) error {
		return q.ledger.SetBalance(kv, who, amount)
	}); err != nil {
		return err
	}
	q.logger.Info("inbound: balance set", zap.Stringer("account", who), zap.String("amount", amount.Dec()), zap.Stringer("caller", caller))
	return nil
}

// RefreshMetrics publishes persisted state that metrics cannot otherwise observe, like the operating mode after a
// restart.
func (q *Queue) RefreshMetrics() error {
	mode, err := q.OperatingMode()
	if err != nil {
		return err
	}
	operatingModeGauge.Set(float64(mode))
	return nil
}
