package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/hay-kot/parley/internal/core/chat"
)

// Handler consumes the raw payload of one inbound event.
type Handler func(payload json.RawMessage)

type handlerEntry struct {
	id uint64
	fn Handler
}

type watcherEntry struct {
	id uint64
	fn func(connected bool)
}

// Manager shares one transport connection between any number of consumers.
// Consumers hold a Lease; the connection is torn down when the last lease is
// released and never by anyone else.
type Manager struct {
	dialer Dialer
	log    zerolog.Logger

	dialMu sync.Mutex
	mu     sync.Mutex
	conn   Conn
	refs   int
	epoch  uint64
	// dialed holds connectivity reported from inside Dial, before conn is
	// installed. Watchers hear about it once Send can use the connection.
	dialed bool

	connected atomic.Bool

	subMu    sync.RWMutex
	nextID   uint64
	handlers map[string][]handlerEntry
	watchers []watcherEntry
}

// NewManager creates a Manager that opens connections with dialer.
func NewManager(dialer Dialer, log zerolog.Logger) *Manager {
	return &Manager{
		dialer:   dialer,
		log:      log,
		handlers: make(map[string][]handlerEntry),
	}
}

// Connect opens the transport unless one is already open. Without a token no
// connection is attempted and nil is returned.
func (m *Manager) Connect(ctx context.Context, token string) error {
	if token == "" {
		m.log.Debug().Msg("no auth token, skipping connect")
		return nil
	}

	// dialMu serializes openers. mu must not be held while dialing: the
	// transport reports connectivity from inside Dial.
	m.dialMu.Lock()
	defer m.dialMu.Unlock()

	if m.current() != nil {
		return nil
	}

	m.mu.Lock()
	m.epoch++
	epoch := m.epoch
	m.mu.Unlock()

	conn, err := m.dialer.Dial(ctx, token, &connSink{m: m, epoch: epoch})
	if err != nil {
		return &chat.TransportError{Op: "connect", Err: err}
	}

	m.mu.Lock()
	if m.epoch != epoch {
		// the transport gave up before Dial returned
		m.dialed = false
		m.mu.Unlock()
		_ = conn.Close()
		return &chat.TransportError{Op: "connect", Err: chat.ErrNotConnected}
	}
	m.conn = conn
	up := m.dialed
	m.dialed = false
	m.mu.Unlock()

	m.SetConnected(up)
	m.log.Debug().Msg("transport opened")
	return nil
}

// Acquire registers a consumer and connects if needed. The returned Lease
// must be released when the consumer goes away.
func (m *Manager) Acquire(ctx context.Context, token string) (*Lease, error) {
	m.mu.Lock()
	m.refs++
	m.mu.Unlock()

	if err := m.Connect(ctx, token); err != nil {
		m.release()
		return nil, err
	}

	return &Lease{m: m}, nil
}

// Refs returns the number of outstanding leases.
func (m *Manager) Refs() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.refs
}

func (m *Manager) release() {
	m.mu.Lock()
	if m.refs > 0 {
		m.refs--
	}
	if m.refs > 0 || m.conn == nil {
		m.mu.Unlock()
		return
	}
	conn := m.conn
	m.conn = nil
	m.epoch++
	m.mu.Unlock()

	if err := conn.Close(); err != nil {
		m.log.Warn().Err(err).Msg("close transport")
	}
	m.SetConnected(false)
	m.log.Debug().Msg("transport closed, no consumers left")
}

// drop forgets a connection whose transport stopped reconnecting so the next
// Connect or Acquire dials a fresh one. Outstanding leases stay valid.
func (m *Manager) drop(epoch uint64) {
	m.mu.Lock()
	if m.epoch != epoch {
		m.mu.Unlock()
		return
	}
	conn := m.conn
	m.conn = nil
	m.epoch++
	m.mu.Unlock()

	m.SetConnected(false)
	if conn != nil {
		if err := conn.Close(); err != nil {
			m.log.Debug().Err(err).Msg("close dead transport")
		}
	}
	m.log.Warn().Msg("transport closed by peer, next connect will redial")
}

func (m *Manager) isEpoch(epoch uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.epoch == epoch
}

// Connected reports whether the transport is currently usable.
func (m *Manager) Connected() bool {
	return m.connected.Load()
}

func (m *Manager) current() Conn {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conn
}

// Send issues a request event and waits for its acknowledgment. While
// disconnected it fails immediately with a TransportError; nothing is queued.
func (m *Manager) Send(ctx context.Context, event string, payload any) (Ack, error) {
	conn := m.current()
	if conn == nil || !m.Connected() {
		return Ack{}, &chat.TransportError{Op: event, Err: chat.ErrNotConnected}
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return Ack{}, fmt.Errorf("encode %s: %w", event, err)
	}

	ack, err := conn.Request(ctx, event, data)
	if err != nil {
		if ctx.Err() != nil {
			return Ack{}, ctx.Err()
		}
		return Ack{}, &chat.TransportError{Op: event, Err: err}
	}

	return ack, nil
}

// Emit sends a fire-and-forget event.
func (m *Manager) Emit(ctx context.Context, event string, payload any) error {
	conn := m.current()
	if conn == nil || !m.Connected() {
		return &chat.TransportError{Op: event, Err: chat.ErrNotConnected}
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s: %w", event, err)
	}

	if err := conn.Emit(ctx, event, data); err != nil {
		return &chat.TransportError{Op: event, Err: err}
	}
	return nil
}

// Subscribe registers fn for event. Each subscription is independent.
func (m *Manager) Subscribe(event string, fn Handler) *Subscription {
	m.subMu.Lock()
	defer m.subMu.Unlock()

	m.nextID++
	id := m.nextID
	m.handlers[event] = append(m.handlers[event], handlerEntry{id: id, fn: fn})

	return &Subscription{cancel: func() { m.unsubscribe(event, id) }}
}

// On subscribes with a typed handler. Payloads that fail to decode are
// logged and dropped.
func On[T any](m *Manager, event string, fn func(T)) *Subscription {
	return m.Subscribe(event, func(payload json.RawMessage) {
		var v T
		if err := json.Unmarshal(payload, &v); err != nil {
			m.log.Warn().Err(err).Str("event", event).Msg("dropping undecodable event")
			return
		}
		fn(v)
	})
}

// WatchConnectivity calls fn whenever the connected flag changes.
func (m *Manager) WatchConnectivity(fn func(connected bool)) *Subscription {
	m.subMu.Lock()
	defer m.subMu.Unlock()

	m.nextID++
	id := m.nextID
	m.watchers = append(m.watchers, watcherEntry{id: id, fn: fn})

	return &Subscription{cancel: func() {
		m.subMu.Lock()
		defer m.subMu.Unlock()
		for i, w := range m.watchers {
			if w.id == id {
				m.watchers = append(m.watchers[:i:i], m.watchers[i+1:]...)
				return
			}
		}
	}}
}

func (m *Manager) unsubscribe(event string, id uint64) {
	m.subMu.Lock()
	defer m.subMu.Unlock()

	entries := m.handlers[event]
	for i, e := range entries {
		if e.id == id {
			entries = append(entries[:i:i], entries[i+1:]...)
			break
		}
	}
	if len(entries) == 0 {
		delete(m.handlers, event)
		return
	}
	m.handlers[event] = entries
}

// Deliver fans an inbound event out to its subscribers.
func (m *Manager) Deliver(event string, payload json.RawMessage) {
	m.subMu.RLock()
	entries := append([]handlerEntry(nil), m.handlers[event]...)
	m.subMu.RUnlock()

	if len(entries) == 0 {
		m.log.Debug().Str("event", event).Msg("no subscribers")
		return
	}

	for _, e := range entries {
		e.fn(payload)
	}
}

// SetConnected updates the connectivity flag and notifies watchers on change.
func (m *Manager) SetConnected(connected bool) {
	if m.connected.Swap(connected) == connected {
		return
	}

	m.log.Info().Bool("connected", connected).Msg("connectivity changed")

	m.subMu.RLock()
	watchers := append([]watcherEntry(nil), m.watchers...)
	m.subMu.RUnlock()

	for _, w := range watchers {
		w.fn(connected)
	}
}

// connSink binds inbound traffic to the dial that produced it, so a
// connection that has been replaced or released cannot flip the state of
// its successor.
type connSink struct {
	m     *Manager
	epoch uint64
}

func (s *connSink) Deliver(event string, payload json.RawMessage) {
	if s.m.isEpoch(s.epoch) {
		s.m.Deliver(event, payload)
	}
}

func (s *connSink) SetConnected(connected bool) {
	s.m.mu.Lock()
	if s.m.epoch != s.epoch {
		s.m.mu.Unlock()
		return
	}
	if s.m.conn == nil {
		s.m.dialed = connected
		s.m.mu.Unlock()
		return
	}
	s.m.mu.Unlock()
	s.m.SetConnected(connected)
}

func (s *connSink) Closed() { s.m.drop(s.epoch) }

// Lease is one consumer's claim on the shared connection.
type Lease struct {
	m    *Manager
	once sync.Once
}

// Release drops the claim. It is safe to call more than once.
func (l *Lease) Release() {
	l.once.Do(l.m.release)
}

// Subscription is a disposable handler registration.
type Subscription struct {
	once   sync.Once
	cancel func()
}

// Unsubscribe removes the registration. It is safe to call more than once.
func (s *Subscription) Unsubscribe() {
	if s == nil {
		return
	}
	s.once.Do(s.cancel)
}
