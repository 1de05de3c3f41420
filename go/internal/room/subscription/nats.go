package subscription

import (
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

// NATSConfig holds connection options for the NATS transport.
type NATSConfig struct {
	URL           string
	MaxReconnects int
	ReconnectWait time.Duration
}

func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           nats.DefaultURL,
		MaxReconnects: -1, // infinite
		ReconnectWait: 2 * time.Second,
	}
}

// NATSTransport subscribes to room subjects over a core NATS connection. The
// room feed is fire-and-forget on the wire; there is no replay, so a plain
// subscription (no JetStream consumer) is the right fit.
type NATSTransport struct {
	nc *nats.Conn
}

// ConnectNATS dials NATS with reconnect handling and returns a transport.
func ConnectNATS(cfg NATSConfig) (*NATSTransport, error) {
	opts := []nats.Option{
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return &NATSTransport{nc: nc}, nil
}

// NewNATSTransport wraps an existing connection.
func NewNATSTransport(nc *nats.Conn) *NATSTransport {
	return &NATSTransport{nc: nc}
}

func (t *NATSTransport) Ready() bool {
	return t.nc != nil && t.nc.Status() == nats.CONNECTED
}

func (t *NATSTransport) Bind(subject string, h MessageHandler) (Binding, error) {
	sub, err := t.nc.Subscribe(subject, func(msg *nats.Msg) {
		h(msg.Data)
	})
	if err != nil {
		return nil, err
	}
	return &natsBinding{sub: sub}, nil
}

// Close drains and closes the underlying connection.
func (t *NATSTransport) Close() {
	if t.nc != nil {
		t.nc.Close()
	}
}

type natsBinding struct {
	sub *nats.Subscription
}

func (b *natsBinding) Unbind() error {
	if !b.sub.IsValid() {
		return nil
	}
	return b.sub.Unsubscribe()
}
