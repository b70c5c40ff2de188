package forwarder

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mw-chain/polkadot-sdk/pkg/inbound"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"
)

// NATSConfig configures the NATS router.
type NATSConfig struct {
	// URL is the NATS server URL (e.g., "nats://localhost:4222").
	URL string

	// Name is the client name for connection identification.
	Name string

	// SubjectPrefix is prepended to the channel id to build the subject of each message.
	SubjectPrefix string

	// JetStream publishes with acknowledgements and de-duplication instead of core NATS.
	JetStream bool

	MaxReconnects int
	ReconnectWait time.Duration
	Timeout       time.Duration

	// Token for token-based authentication (optional).
	Token string
}

func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           nats.DefaultURL,
		Name:          "inboundd",
		SubjectPrefix: "inbound.messages",
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
		Timeout:       5 * time.Second,
	}
}

// NATSRouter publishes each message as JSON on "<prefix>.<channel id>".
type NATSRouter struct {
	logger *zap.Logger
	conn   *nats.Conn
	js     jetstream.JetStream
	prefix string

	flushTimeout time.Duration
}

var _ Router = (*NATSRouter)(nil)

func NewNATSRouter(logger *zap.Logger, cfg NATSConfig) (*NATSRouter, error) {
	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(cfg.Timeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("fwd: NATS disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("fwd: NATS reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	}
	if cfg.Token != "" {
		opts = append(opts, nats.Token(cfg.Token))
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	flushTimeout := cfg.Timeout
	if flushTimeout <= 0 {
		flushTimeout = DefaultNATSConfig().Timeout
	}
	r := &NATSRouter{logger: logger, conn: conn, prefix: cfg.SubjectPrefix, flushTimeout: flushTimeout}
	if cfg.JetStream {
		js, err := jetstream.New(conn)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to create JetStream context: %w", err)
		}
		r.js = js
	}
	return r, nil
}

// Subject returns the subject messages of a channel are published on.
func Subject(prefix string, msg *inbound.Message) string {
	return fmt.Sprintf("%s.%s", prefix, msg.ChannelID)
}

// dedupID identifies a message for JetStream de-duplication.
func dedupID(msg *inbound.Message) string {
	return fmt.Sprintf("%s:%d", msg.ChannelID, msg.Nonce)
}

func (r *NATSRouter) Route(ctx context.Context, msg *inbound.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	subject := Subject(r.prefix, msg)

	if r.js != nil {
		if _, err := r.js.Publish(ctx, subject, data, jetstream.WithMsgID(dedupID(msg))); err != nil {
			return fmt.Errorf("failed to publish to %s: %w", subject, err)
		}
		return nil
	}

	if err := r.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}
	flushCtx, cancel := context.WithTimeout(ctx, r.flushTimeout)
	defer cancel()
	return r.conn.FlushWithContext(flushCtx)
}

func (r *NATSRouter) Close() {
	if err := r.conn.Drain(); err != nil {
		r.logger.Warn("fwd: failed to drain NATS connection", zap.Error(err))
	}
}
