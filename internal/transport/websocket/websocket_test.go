package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	ws "github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type event struct {
	name    string
	payload json.RawMessage
}

type recordingSink struct {
	events       chan event
	connectivity chan bool
	closed       chan struct{}
}

func newRecordingSink() *recordingSink {
	return &recordingSink{
		events:       make(chan event, 16),
		connectivity: make(chan bool, 16),
		closed:       make(chan struct{}, 1),
	}
}

func (s *recordingSink) Deliver(name string, payload json.RawMessage) {
	s.events <- event{name: name, payload: payload}
}

func (s *recordingSink) SetConnected(connected bool) {
	s.connectivity <- connected
}

func (s *recordingSink) Closed() {
	s.closed <- struct{}{}
}

func (s *recordingSink) nextConnectivity(t *testing.T) bool {
	t.Helper()
	select {
	case v := <-s.connectivity:
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for connectivity change")
		return false
	}
}

// echoServer acknowledges every request and pushes a greeting event once the
// socket opens. When dropFirst is set, the first connection is closed right
// after the upgrade.
type echoServer struct {
	t         *testing.T
	dropFirst bool
	conns     atomic.Int32

	mu     sync.Mutex
	tokens []string
}

func (s *echoServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.tokens = append(s.tokens, r.Header.Get("Authorization"))
	s.mu.Unlock()

	upgrader := ws.Upgrader{}
	socket, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer socket.Close() //nolint:errcheck

	n := s.conns.Add(1)
	if s.dropFirst && n == 1 {
		return
	}

	_ = socket.WriteJSON(envelope{Event: "hello", Payload: json.RawMessage(`{"n":1}`)})

	for {
		var env envelope
		if err := socket.ReadJSON(&env); err != nil {
			return
		}
		if env.ID == "" {
			continue
		}
		ack := json.RawMessage(`{"success":true,"payload":{"echo":"` + env.Event + `"}}`)
		if err := socket.WriteJSON(envelope{AckID: env.ID, Payload: ack}); err != nil {
			return
		}
	}
}

func newTestDialer(t *testing.T, srv *httptest.Server) *Dialer {
	t.Helper()
	return NewDialer(Options{
		URL:            "ws" + strings.TrimPrefix(srv.URL, "http"),
		MaxAttempts:    3,
		Interval:       10 * time.Millisecond,
		RequestTimeout: 2 * time.Second,
	}, zerolog.Nop())
}

func TestDial_SendsBearerAndDeliversEvents(t *testing.T) {
	handler := &echoServer{t: t}
	srv := httptest.NewServer(handler)
	defer srv.Close()

	sink := newRecordingSink()
	conn, err := newTestDialer(t, srv).Dial(context.Background(), "secret", sink)
	require.NoError(t, err)
	defer conn.Close() //nolint:errcheck

	assert.True(t, sink.nextConnectivity(t))

	select {
	case ev := <-sink.events:
		assert.Equal(t, "hello", ev.name)
		assert.JSONEq(t, `{"n":1}`, string(ev.payload))
	case <-time.After(2 * time.Second):
		t.Fatal("no event delivered")
	}

	handler.mu.Lock()
	defer handler.mu.Unlock()
	assert.Equal(t, []string{"Bearer secret"}, handler.tokens)
}

func TestRequest_CorrelatesAck(t *testing.T) {
	srv := httptest.NewServer(&echoServer{t: t})
	defer srv.Close()

	conn, err := newTestDialer(t, srv).Dial(context.Background(), "tok", newRecordingSink())
	require.NoError(t, err)
	defer conn.Close() //nolint:errcheck

	ack, err := conn.Request(context.Background(), "send_message", []byte(`{"content":"hi"}`))
	require.NoError(t, err)
	assert.True(t, ack.Success)
	assert.JSONEq(t, `{"echo":"send_message"}`, string(ack.Payload))
}

func TestRequest_AfterCloseFails(t *testing.T) {
	srv := httptest.NewServer(&echoServer{t: t})
	defer srv.Close()

	conn, err := newTestDialer(t, srv).Dial(context.Background(), "tok", newRecordingSink())
	require.NoError(t, err)
	require.NoError(t, conn.Close())
	require.NoError(t, conn.Close())

	_, err = conn.Request(context.Background(), "send_message", nil)
	require.Error(t, err)
	assert.Error(t, conn.Emit(context.Background(), "typing_start", nil))
}

func TestConn_ReconnectsAfterDrop(t *testing.T) {
	handler := &echoServer{t: t, dropFirst: true}
	srv := httptest.NewServer(handler)
	defer srv.Close()

	sink := newRecordingSink()
	conn, err := newTestDialer(t, srv).Dial(context.Background(), "tok", sink)
	require.NoError(t, err)
	defer conn.Close() //nolint:errcheck

	assert.True(t, sink.nextConnectivity(t))
	assert.False(t, sink.nextConnectivity(t))
	assert.True(t, sink.nextConnectivity(t))
	assert.EqualValues(t, 2, handler.conns.Load())

	ack, err := conn.Request(context.Background(), "join_conversation", []byte(`{}`))
	require.NoError(t, err)
	assert.True(t, ack.Success)
}

func TestDial_RefusedHandshake(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := newTestDialer(t, srv).Dial(context.Background(), "bad", newRecordingSink())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestConn_ReportsClosedWhenReconnectsExhausted(t *testing.T) {
	var served atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if served.Add(1) > 1 {
			http.Error(w, "gone", http.StatusServiceUnavailable)
			return
		}
		socket, err := (&ws.Upgrader{}).Upgrade(w, r, nil)
		if err != nil {
			return
		}
		_ = socket.Close()
	}))
	defer srv.Close()

	sink := newRecordingSink()
	conn, err := newTestDialer(t, srv).Dial(context.Background(), "tok", sink)
	require.NoError(t, err)
	defer conn.Close() //nolint:errcheck

	assert.True(t, sink.nextConnectivity(t))
	assert.False(t, sink.nextConnectivity(t))

	select {
	case <-sink.closed:
	case <-time.After(2 * time.Second):
		t.Fatal("transport never reported closed")
	}
	assert.EqualValues(t, 4, served.Load())
}
