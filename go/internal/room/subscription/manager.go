// Package subscription owns the lifecycle of room-topic subscriptions: it
// waits for the underlying connection to become ready, binds a handler to the
// room's subject, memoizes the binding per room, and makes teardown
// idempotent.
package subscription

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// MessageHandler consumes one raw message from the room topic.
type MessageHandler func(data []byte)

// Transport is the underlying connection a Manager subscribes through.
type Transport interface {
	// Ready reports whether the connection can accept subscriptions now.
	Ready() bool
	// Bind attaches a handler to a subject and returns the live binding.
	Bind(subject string, h MessageHandler) (Binding, error)
}

// Binding is an active subject binding on a transport. Unbind on an
// already-released binding must be a no-op.
type Binding interface {
	Unbind() error
}

// Config tunes the readiness poll and subject naming.
type Config struct {
	// PollInterval is how long to wait between readiness checks.
	PollInterval time.Duration
	// MaxAttempts bounds the readiness poll; with the default interval the
	// total wait is ten seconds.
	MaxAttempts int
	// SubjectPrefix is prepended to the room ID to form the topic subject.
	SubjectPrefix string
}

func DefaultConfig() Config {
	return Config{
		PollInterval:  500 * time.Millisecond,
		MaxAttempts:   20,
		SubjectPrefix: "room.events.",
	}
}

// Manager hands out subscription handles keyed by room ID. Subscribing twice
// to the same room returns the existing live handle rather than tearing down
// and rebinding.
type Manager struct {
	transport Transport
	clock     clockwork.Clock
	cfg       Config

	mu      sync.Mutex
	handles map[string]*Handle
}

func NewManager(transport Transport, clock clockwork.Clock, cfg Config) *Manager {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultConfig().PollInterval
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultConfig().MaxAttempts
	}
	if cfg.SubjectPrefix == "" {
		cfg.SubjectPrefix = DefaultConfig().SubjectPrefix
	}
	return &Manager{
		transport: transport,
		clock:     clock,
		cfg:       cfg,
		handles:   make(map[string]*Handle),
	}
}

// Subject returns the topic subject for a room.
func (m *Manager) Subject(roomID string) string {
	return m.cfg.SubjectPrefix + roomID
}

// Handle is one room subscription. A second Unsubscribe is a no-op.
type Handle struct {
	ID     string
	RoomID string

	mgr     *Manager
	binding Binding
	once    sync.Once
}

// Subscribe binds a handler to the room's subject once the transport reports
// ready, polling on a fixed interval up to the configured attempt bound.
// Failure to become ready is returned as an error the caller is expected to
// log and survive: the room view degrades to no live updates, it does not
// crash.
func (m *Manager) Subscribe(ctx context.Context, roomID string, h MessageHandler) (*Handle, error) {
	m.mu.Lock()
	if existing, ok := m.handles[roomID]; ok {
		m.mu.Unlock()
		log.Debug().Str("room_id", roomID).Str("handle_id", existing.ID).
			Msg("reusing existing room subscription")
		return existing, nil
	}
	m.mu.Unlock()

	subject := m.Subject(roomID)
	if err := m.awaitReady(ctx, subject); err != nil {
		return nil, err
	}

	binding, err := m.transport.Bind(subject, h)
	if err != nil {
		return nil, fmt.Errorf("bind %s: %w", subject, err)
	}

	handle := &Handle{
		ID:      uuid.New().String(),
		RoomID:  roomID,
		mgr:     m,
		binding: binding,
	}

	m.mu.Lock()
	// A concurrent Subscribe for the same room may have won; keep the first.
	if existing, ok := m.handles[roomID]; ok {
		m.mu.Unlock()
		_ = binding.Unbind()
		return existing, nil
	}
	m.handles[roomID] = handle
	m.mu.Unlock()

	log.Info().Str("room_id", roomID).Str("subject", subject).Str("handle_id", handle.ID).
		Msg("room subscription established")
	return handle, nil
}

// awaitReady polls the transport until it reports ready, the attempt bound is
// hit, or ctx is cancelled.
func (m *Manager) awaitReady(ctx context.Context, subject string) error {
	var timer clockwork.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for attempt := 1; attempt <= m.cfg.MaxAttempts; attempt++ {
		if m.transport.Ready() {
			return nil
		}
		if attempt == m.cfg.MaxAttempts {
			break
		}
		log.Debug().
			Str("subject", subject).
			Int("attempt", attempt).
			Int("max_attempts", m.cfg.MaxAttempts).
			Msg("connection not ready, waiting")
		if timer == nil {
			timer = m.clock.NewTimer(m.cfg.PollInterval)
		} else {
			timer.Reset(m.cfg.PollInterval)
		}
		select {
		case <-timer.Chan():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fmt.Errorf("subscribe %s: connection not ready after %d attempts", subject, m.cfg.MaxAttempts)
}

// Unsubscribe releases the handle's binding. Safe to call any number of
// times, on any goroutine.
func (m *Manager) Unsubscribe(h *Handle) {
	if h == nil {
		return
	}
	h.once.Do(func() {
		m.mu.Lock()
		if m.handles[h.RoomID] == h {
			delete(m.handles, h.RoomID)
		}
		m.mu.Unlock()
		if err := h.binding.Unbind(); err != nil {
			log.Warn().Err(err).Str("room_id", h.RoomID).Msg("unbind failed")
			return
		}
		log.Info().Str("room_id", h.RoomID).Str("handle_id", h.ID).Msg("room subscription released")
	})
}

// Unsubscribe releases the handle via its manager. Provided for callers that
// hold only the handle.
func (h *Handle) Unsubscribe() {
	if h == nil || h.mgr == nil {
		return
	}
	h.mgr.Unsubscribe(h)
}
