package subscription

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// wsTestServer is a minimal topic feed: it records subscribe/unsubscribe
// control frames and lets the test push frames back to the client.
type wsTestServer struct {
	srv      *httptest.Server
	conns    chan *websocket.Conn
	controls chan wsControl
}

func newWSTestServer(t *testing.T) *wsTestServer {
	t.Helper()
	upgrader := websocket.Upgrader{}
	s := &wsTestServer{
		conns:    make(chan *websocket.Conn, 1),
		controls: make(chan wsControl, 16),
	}
	s.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		s.conns <- conn
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var c wsControl
			if json.Unmarshal(data, &c) == nil && c.Action != "" {
				s.controls <- c
			}
		}
	}))
	t.Cleanup(s.srv.Close)
	return s
}

func (s *wsTestServer) url() string {
	return "ws" + strings.TrimPrefix(s.srv.URL, "http")
}

func (s *wsTestServer) waitConn(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case c := <-s.conns:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("no websocket connection")
		return nil
	}
}

func (s *wsTestServer) waitControl(t *testing.T) wsControl {
	t.Helper()
	select {
	case c := <-s.controls:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("no control frame")
		return wsControl{}
	}
}

func TestWebSocketTransportSubscribeAndDispatch(t *testing.T) {
	s := newWSTestServer(t)

	tr, err := DialWebSocket(DefaultWebSocketConfig(s.url()))
	require.NoError(t, err)
	defer tr.Close()
	assert.True(t, tr.Ready())

	conn := s.waitConn(t)
	received := make(chan []byte, 4)
	binding, err := tr.Bind("room.events.42", func(data []byte) { received <- data })
	require.NoError(t, err)

	ctrl := s.waitControl(t)
	assert.Equal(t, "subscribe", ctrl.Action)
	assert.Equal(t, "room.events.42", ctrl.Topic)

	// Topic-tagged frame routes to the bound handler.
	frame := []byte(`{"topic": "room.events.42", "eventType": "USER_JOINED"}`)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, frame))
	select {
	case got := <-received:
		assert.JSONEq(t, string(frame), string(got))
	case <-time.After(2 * time.Second):
		t.Fatal("frame not dispatched")
	}

	// Untagged frame fans out to the handler too.
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"eventType": "MATCH_ENDED"}`)))
	select {
	case <-received:
	case <-time.After(2 * time.Second):
		t.Fatal("untagged frame not dispatched")
	}

	// A frame for another topic is not delivered here.
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"topic": "room.events.7"}`)))

	require.NoError(t, binding.Unbind())
	ctrl = s.waitControl(t)
	assert.Equal(t, "unsubscribe", ctrl.Action)

	// Unbind twice is a no-op and sends no second control frame.
	require.NoError(t, binding.Unbind())
	select {
	case c := <-s.controls:
		t.Fatalf("unexpected control frame: %+v", c)
	case <-time.After(100 * time.Millisecond):
	}

	select {
	case <-received:
		t.Fatal("frame for another topic must not be delivered")
	default:
	}
}

func TestWebSocketTransportManagerIntegration(t *testing.T) {
	s := newWSTestServer(t)

	tr, err := DialWebSocket(DefaultWebSocketConfig(s.url()))
	require.NoError(t, err)
	defer tr.Close()

	m := NewManager(tr, clockwork.NewFakeClock(), DefaultConfig())
	received := make(chan []byte, 1)
	h, err := m.Subscribe(context.Background(), "42", func(data []byte) { received <- data })
	require.NoError(t, err)
	assert.Equal(t, "subscribe", s.waitControl(t).Action)

	conn := s.waitConn(t)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage,
		[]byte(`{"topic": "room.events.42", "eventType": "USER_JOINED"}`)))
	select {
	case <-received:
	case <-time.After(2 * time.Second):
		t.Fatal("frame not dispatched through manager binding")
	}

	m.Unsubscribe(h)
	assert.Equal(t, "unsubscribe", s.waitControl(t).Action)
}

func TestWebSocketTransportBindAfterClose(t *testing.T) {
	s := newWSTestServer(t)
	tr, err := DialWebSocket(DefaultWebSocketConfig(s.url()))
	require.NoError(t, err)

	tr.Close()
	assert.False(t, tr.Ready())
	_, err = tr.Bind("room.events.42", func([]byte) {})
	require.Error(t, err)
}
