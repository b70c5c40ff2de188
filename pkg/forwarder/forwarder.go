// Package forwarder hands messages accepted by the inbound queue to the downstream router. Messages are read from
// the outbox in key order and removed once the router has taken them.
package forwarder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/mw-chain/polkadot-sdk/pkg/common"
	"github.com/mw-chain/polkadot-sdk/pkg/db"
	"github.com/mw-chain/polkadot-sdk/pkg/inbound"
	"github.com/mw-chain/polkadot-sdk/pkg/readiness"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var (
	messagesRouted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "inbound_forwarder_messages_routed_total",
			Help: "Total number of outbox messages handed to the router",
		})
	routeFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "inbound_forwarder_route_failures_total",
			Help: "Total number of failed attempts to route an outbox message",
		})
	outboxBacklog = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "inbound_forwarder_outbox_backlog",
			Help: "Number of messages found in the outbox by the last drain",
		})
)

// Router receives accepted messages. Route must be idempotent: a message may be routed again if the process
// stops between routing and removing it from the outbox.
type Router interface {
	Route(ctx context.Context, msg *inbound.Message) error
}

type Config struct {
	// PollInterval is how often the outbox is checked when no new message was signalled.
	PollInterval time.Duration
	// BatchSize is the maximum number of messages read per drain.
	BatchSize int
	// RetryInitialInterval is the first delay after a failed route.
	RetryInitialInterval time.Duration
	// RetryMaxElapsedTime bounds the retries of a single message before the drain is abandoned.
	RetryMaxElapsedTime time.Duration
}

func DefaultConfig() Config {
	return Config{
		PollInterval:         5 * time.Second,
		BatchSize:            100,
		RetryInitialInterval: 500 * time.Millisecond,
		RetryMaxElapsedTime:  time.Minute,
	}
}

type Forwarder struct {
	logger *zap.Logger
	store  db.Store
	router Router
	cfg    Config
	wakeC  chan struct{}
}

var _ inbound.Observer = (*Forwarder)(nil)

func NewForwarder(logger *zap.Logger, store db.Store, router Router, cfg Config) *Forwarder {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultConfig().PollInterval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultConfig().BatchSize
	}
	return &Forwarder{
		logger: logger.With(zap.String("component", "forwarder")),
		store:  store,
		router: router,
		cfg:    cfg,
		wakeC:  make(chan struct{}, 1),
	}
}

// OnMessageReceived wakes the forwarder up. It never blocks.
func (f *Forwarder) OnMessageReceived(_ *inbound.MessageReceived) {
	select {
	case f.wakeC <- struct{}{}:
	default:
	}
}

// Run drains the outbox until ctx is cancelled.
func (f *Forwarder) Run(ctx context.Context) error {
	readiness.SetReady(common.ReadinessForwarderRunning)
	f.logger.Info("fwd: starting", zap.Duration("pollInterval", f.cfg.PollInterval), zap.Int("batchSize", f.cfg.BatchSize))

	ticker := time.NewTicker(f.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if err := f.Drain(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			f.logger.Error("fwd: failed to drain outbox", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		case <-f.wakeC:
		}
	}
}

// Drain routes pending messages until the outbox is empty or a message cannot be routed. Messages are never
// skipped, so per channel order is preserved downstream.
func (f *Forwarder) Drain(ctx context.Context) error {
	for {
		msgs, err := inbound.PendingMessages(f.store, f.cfg.BatchSize)
		if err != nil {
			return fmt.Errorf("failed to read outbox: %w", err)
		}
		outboxBacklog.Set(float64(len(msgs)))
		if len(msgs) == 0 {
			return nil
		}

		for _, msg := range msgs {
			if err := f.route(ctx, msg); err != nil {
				return err
			}
			if err := inbound.RemoveMessage(f.store, msg); err != nil {
				return fmt.Errorf("failed to remove %s from outbox: %w", msg, err)
			}
			messagesRouted.Inc()
			f.logger.Debug("fwd: routed message", zap.Stringer("channelID", msg.ChannelID), zap.Uint64("nonce", msg.Nonce))
		}

		if len(msgs) < f.cfg.BatchSize {
			outboxBacklog.Set(0)
			return nil
		}
	}
}

func (f *Forwarder) route(ctx context.Context, msg *inbound.Message) error {
	bo := backoff.NewExponentialBackOff()
	if f.cfg.RetryInitialInterval > 0 {
		bo.InitialInterval = f.cfg.RetryInitialInterval
	}
	bo.MaxElapsedTime = f.cfg.RetryMaxElapsedTime

	op := func() error {
		if err := f.router.Route(ctx, msg); err != nil {
			routeFailures.Inc()
			f.logger.Warn("fwd: failed to route message", zap.Stringer("channelID", msg.ChannelID), zap.Uint64("nonce", msg.Nonce), zap.Error(err))
			return err
		}
		return nil
	}

	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("giving up on %s: %w", msg, err)
	}
	return nil
}

// LogRouter only logs messages. It is used when no downstream transport is configured.
type LogRouter struct {
	Logger *zap.Logger
}

func (r LogRouter) Route(_ context.Context, msg *inbound.Message) error {
	r.Logger.Info("fwd: message ready for execution",
		zap.Stringer("channelID", msg.ChannelID),
		zap.Uint64("nonce", msg.Nonce),
		zap.Stringer("messageID", msg.MessageID),
		zap.Stringer("command", msg.Command.Tag),
	)
	return nil
}
