package subscription

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// WebSocketConfig holds connection options for the WebSocket transport.
type WebSocketConfig struct {
	// URL is the ws:// or wss:// endpoint of the room event feed.
	URL            string
	Header         http.Header
	WriteTimeout   time.Duration
	ReadTimeout    time.Duration
	PingInterval   time.Duration
	MaxMessageSize int64
}

func DefaultWebSocketConfig(url string) WebSocketConfig {
	return WebSocketConfig{
		URL:            url,
		WriteTimeout:   10 * time.Second,
		ReadTimeout:    60 * time.Second,
		PingInterval:   30 * time.Second,
		MaxMessageSize: 64 * 1024,
	}
}

// wsControl is the control frame sent to the feed to start or stop a topic.
type wsControl struct {
	Action string `json:"action"` // "subscribe" | "unsubscribe"
	Topic  string `json:"topic"`
}

// wsEnvelope is the minimal shape needed to route an inbound frame to the
// right topic handler. The topic is echoed by the server; frames without one
// fall back to roomId-based routing by the handler itself.
type wsEnvelope struct {
	Topic string `json:"topic"`
}

// WebSocketTransport is the alternate transport for deployments that expose
// the room feed as a WebSocket endpoint rather than a broker subject. One
// connection carries all topics; frames are demultiplexed by topic.
type WebSocketTransport struct {
	cfg WebSocketConfig

	mu       sync.Mutex
	conn     *websocket.Conn
	ready    bool
	handlers map[string]MessageHandler

	done chan struct{}
}

// DialWebSocket connects and starts the read and keepalive loops.
func DialWebSocket(cfg WebSocketConfig) (*WebSocketTransport, error) {
	conn, _, err := websocket.DefaultDialer.Dial(cfg.URL, cfg.Header)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", cfg.URL, err)
	}

	t := &WebSocketTransport{
		cfg:      cfg,
		conn:     conn,
		ready:    true,
		handlers: make(map[string]MessageHandler),
		done:     make(chan struct{}),
	}
	go t.readLoop()
	go t.pingLoop()

	log.Info().Str("url", cfg.URL).Msg("websocket feed connected")
	return t, nil
}

func (t *WebSocketTransport) Ready() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ready
}

func (t *WebSocketTransport) Bind(subject string, h MessageHandler) (Binding, error) {
	t.mu.Lock()
	if !t.ready {
		t.mu.Unlock()
		return nil, fmt.Errorf("bind %s: websocket closed", subject)
	}
	t.handlers[subject] = h
	t.mu.Unlock()

	if err := t.writeControl(wsControl{Action: "subscribe", Topic: subject}); err != nil {
		t.mu.Lock()
		delete(t.handlers, subject)
		t.mu.Unlock()
		return nil, err
	}
	return &wsBinding{t: t, subject: subject}, nil
}

// Close tears the connection down and stops the loops.
func (t *WebSocketTransport) Close() {
	t.mu.Lock()
	if !t.ready {
		t.mu.Unlock()
		return
	}
	t.ready = false
	conn := t.conn
	t.mu.Unlock()

	close(t.done)
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(t.cfg.WriteTimeout))
	_ = conn.Close()
}

func (t *WebSocketTransport) writeControl(c wsControl) error {
	data, err := json.Marshal(c)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.ready {
		return fmt.Errorf("websocket closed")
	}
	_ = t.conn.SetWriteDeadline(time.Now().Add(t.cfg.WriteTimeout))
	return t.conn.WriteMessage(websocket.TextMessage, data)
}

func (t *WebSocketTransport) readLoop() {
	t.conn.SetReadLimit(t.cfg.MaxMessageSize)
	_ = t.conn.SetReadDeadline(time.Now().Add(t.cfg.ReadTimeout))
	t.conn.SetPongHandler(func(string) error {
		return t.conn.SetReadDeadline(time.Now().Add(t.cfg.ReadTimeout))
	})

	for {
		_, data, err := t.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Error().Err(err).Msg("websocket feed closed unexpectedly")
			}
			t.mu.Lock()
			t.ready = false
			t.mu.Unlock()
			return
		}
		_ = t.conn.SetReadDeadline(time.Now().Add(t.cfg.ReadTimeout))
		t.dispatch(data)
	}
}

// dispatch routes one frame. Frames carrying a topic go to that topic's
// handler; frames without one are fanned out to every handler, which is
// correct for single-room clients and harmless otherwise since handlers
// filter by room ID.
func (t *WebSocketTransport) dispatch(data []byte) {
	var env wsEnvelope
	_ = json.Unmarshal(data, &env)

	t.mu.Lock()
	var targets []MessageHandler
	if env.Topic != "" {
		if h, ok := t.handlers[env.Topic]; ok {
			targets = append(targets, h)
		}
	} else {
		for _, h := range t.handlers {
			targets = append(targets, h)
		}
	}
	t.mu.Unlock()

	for _, h := range targets {
		h(data)
	}
}

func (t *WebSocketTransport) pingLoop() {
	ticker := time.NewTicker(t.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-t.done:
			return
		case <-ticker.C:
			t.mu.Lock()
			conn, ready := t.conn, t.ready
			t.mu.Unlock()
			if !ready {
				return
			}
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(t.cfg.WriteTimeout)); err != nil {
				log.Error().Err(err).Msg("websocket ping failed")
				return
			}
		}
	}
}

type wsBinding struct {
	t       *WebSocketTransport
	subject string
}

func (b *wsBinding) Unbind() error {
	b.t.mu.Lock()
	_, bound := b.t.handlers[b.subject]
	delete(b.t.handlers, b.subject)
	b.t.mu.Unlock()
	if !bound {
		return nil
	}
	return b.t.writeControl(wsControl{Action: "unsubscribe", Topic: b.subject})
}
