package subscription

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBinding struct {
	mu      sync.Mutex
	unbinds int
}

func (b *fakeBinding) Unbind() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.unbinds++
	return nil
}

func (b *fakeBinding) unbindCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.unbinds
}

type fakeTransport struct {
	mu          sync.Mutex
	readyAfter  int // Ready() returns true from this call count on
	readyChecks int
	bindErr     error
	bindings    []*fakeBinding
	subjects    []string
}

func (t *fakeTransport) Ready() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.readyChecks++
	return t.readyChecks >= t.readyAfter
}

func (t *fakeTransport) Bind(subject string, h MessageHandler) (Binding, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.bindErr != nil {
		return nil, t.bindErr
	}
	b := &fakeBinding{}
	t.bindings = append(t.bindings, b)
	t.subjects = append(t.subjects, subject)
	return b, nil
}

func TestSubscribeImmediatelyReady(t *testing.T) {
	tr := &fakeTransport{readyAfter: 1}
	m := NewManager(tr, clockwork.NewFakeClock(), DefaultConfig())

	h, err := m.Subscribe(context.Background(), "42", func([]byte) {})
	require.NoError(t, err)
	require.NotNil(t, h)
	assert.Equal(t, "42", h.RoomID)
	assert.Equal(t, []string{"room.events.42"}, tr.subjects)
}

func TestSubscribePollsUntilReady(t *testing.T) {
	tr := &fakeTransport{readyAfter: 4}
	clock := clockwork.NewFakeClock()
	m := NewManager(tr, clock, DefaultConfig())

	done := make(chan error, 1)
	go func() {
		_, err := m.Subscribe(context.Background(), "42", func([]byte) {})
		done <- err
	}()

	// Three not-ready checks, so three waits on the poll timer.
	for i := 0; i < 3; i++ {
		clock.BlockUntil(1)
		clock.Advance(500 * time.Millisecond)
	}
	require.NoError(t, <-done)
	assert.Equal(t, 4, tr.readyChecks)
}

func TestSubscribeGivesUpAfterMaxAttempts(t *testing.T) {
	tr := &fakeTransport{readyAfter: 1 << 30}
	clock := clockwork.NewFakeClock()
	cfg := DefaultConfig()
	cfg.MaxAttempts = 3
	m := NewManager(tr, clock, cfg)

	done := make(chan error, 1)
	go func() {
		_, err := m.Subscribe(context.Background(), "42", func([]byte) {})
		done <- err
	}()

	for i := 0; i < 2; i++ {
		clock.BlockUntil(1)
		clock.Advance(500 * time.Millisecond)
	}
	err := <-done
	require.Error(t, err)
	assert.Equal(t, 3, tr.readyChecks)
	assert.Empty(t, tr.bindings, "must not bind when the transport never became ready")
}

func TestSubscribeCancelledContext(t *testing.T) {
	tr := &fakeTransport{readyAfter: 1 << 30}
	clock := clockwork.NewFakeClock()
	m := NewManager(tr, clock, DefaultConfig())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := m.Subscribe(ctx, "42", func([]byte) {})
		done <- err
	}()

	clock.BlockUntil(1)
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
}

func TestSubscribeMemoizesPerRoom(t *testing.T) {
	tr := &fakeTransport{readyAfter: 1}
	m := NewManager(tr, clockwork.NewFakeClock(), DefaultConfig())

	h1, err := m.Subscribe(context.Background(), "42", func([]byte) {})
	require.NoError(t, err)
	h2, err := m.Subscribe(context.Background(), "42", func([]byte) {})
	require.NoError(t, err)

	assert.Same(t, h1, h2)
	assert.Len(t, tr.bindings, 1, "second subscribe must reuse the live binding")
}

func TestUnsubscribeIdempotent(t *testing.T) {
	tr := &fakeTransport{readyAfter: 1}
	m := NewManager(tr, clockwork.NewFakeClock(), DefaultConfig())

	h, err := m.Subscribe(context.Background(), "42", func([]byte) {})
	require.NoError(t, err)

	m.Unsubscribe(h)
	m.Unsubscribe(h)
	h.Unsubscribe()
	assert.Equal(t, 1, tr.bindings[0].unbindCount())

	// The room can be subscribed again afterwards, with a fresh binding.
	h2, err := m.Subscribe(context.Background(), "42", func([]byte) {})
	require.NoError(t, err)
	assert.NotSame(t, h, h2)
	assert.Len(t, tr.bindings, 2)
}

func TestUnsubscribeNilHandle(t *testing.T) {
	m := NewManager(&fakeTransport{readyAfter: 1}, clockwork.NewFakeClock(), DefaultConfig())
	m.Unsubscribe(nil)
	var h *Handle
	h.Unsubscribe()
}

func TestSubscribeBindError(t *testing.T) {
	tr := &fakeTransport{readyAfter: 1, bindErr: errors.New("no such subject")}
	m := NewManager(tr, clockwork.NewFakeClock(), DefaultConfig())

	_, err := m.Subscribe(context.Background(), "42", func([]byte) {})
	require.Error(t, err)
}
