package connection

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"go.uber.org/zap"

	"fleetserver/protocol"
)

var (
	// ErrStarted is returned by handshake helpers once the receive loop runs.
	ErrStarted = errors.New("receive loop already started")
	// ErrUnexpectedReply is returned when the broker answers with the wrong verb.
	ErrUnexpectedReply = errors.New("unexpected reply")
)

// RemoteError is an ERROR reply from the broker.
type RemoteError struct {
	Reason string
}

func (e *RemoteError) Error() string {
	return "broker: " + e.Reason
}

type EventKind int

const (
	// EventPayload carries a session payload from the opponent.
	EventPayload EventKind = iota
	// EventPeerJoined is sent to a host when a client joins its room.
	EventPeerJoined
	// EventPeerLeft means the opponent disconnected from the broker.
	EventPeerLeft
	// EventRemoteError is an ERROR line received after the handshake.
	EventRemoteError
	// EventDisconnected is always the last event. The channel is closed after it.
	EventDisconnected
)

func (k EventKind) String() string {
	switch k {
	case EventPayload:
		return "payload"
	case EventPeerJoined:
		return "peer-joined"
	case EventPeerLeft:
		return "peer-left"
	case EventRemoteError:
		return "remote-error"
	case EventDisconnected:
		return "disconnected"
	}
	return fmt.Sprintf("EventKind(%d)", int(k))
}

type Event struct {
	Kind    EventKind
	Payload protocol.Payload
	Addr    string
	Err     error
}

// Manager owns a client connection. Handshake helpers run synchronously until
// Start; afterwards a single receive goroutine decodes frames into events.
type Manager struct {
	conn   Conn
	mode   protocol.Mode
	logger *zap.Logger

	mu      sync.Mutex
	started bool
	events  chan Event

	// done is closed by Close; exited when the receive goroutine returns.
	done      chan struct{}
	closeOnce sync.Once
	exited    chan struct{}
}

func NewManager(conn Conn, mode protocol.Mode, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		conn:   conn,
		mode:   mode,
		logger: logger.With(zap.String("remote", conn.RemoteAddr()), zap.String("mode", mode.String())),
		events: make(chan Event, 16),
		done:   make(chan struct{}),
		exited: make(chan struct{}),
	}
}

// Dial connects to a broker, or to a listening peer in direct mode.
func Dial(ctx context.Context, addr string, mode protocol.Mode, logger *zap.Logger) (*Manager, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return NewManager(NewLineConn(conn), mode, logger), nil
}

// AcceptDirect waits on ln for the first peer and returns a direct-mode
// manager for it. The listener is closed afterwards.
func AcceptDirect(ctx context.Context, ln net.Listener, logger *zap.Logger) (*Manager, error) {
	defer ln.Close()
	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()

	conn, err := ln.Accept()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("accept: %w", err)
	}
	return NewManager(NewLineConn(conn), protocol.Direct, logger), nil
}

func (m *Manager) Mode() protocol.Mode { return m.mode }

func (m *Manager) RemoteAddr() string { return m.conn.RemoteAddr() }

func (m *Manager) CreateRoom(name string) error {
	_, err := m.request(protocol.Command{Verb: protocol.CreateRoom, Arg: name}, protocol.RoomCreated)
	return err
}

func (m *Manager) JoinRoom(name string) error {
	_, err := m.request(protocol.Command{Verb: protocol.JoinRoom, Arg: name}, protocol.JoinedRoom)
	return err
}

func (m *Manager) ListRooms() ([]string, error) {
	reply, err := m.request(protocol.Command{Verb: protocol.ListRooms}, protocol.RoomList)
	if err != nil {
		return nil, err
	}
	return protocol.SplitNames(reply.Arg), nil
}

// request sends cmd and waits for the matching reply. Lines that fail to decode
// are skipped like in the receive loop.
func (m *Manager) request(cmd protocol.Command, want protocol.Verb) (protocol.Command, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return protocol.Command{}, ErrStarted
	}

	if err := m.conn.WriteLine(cmd.Encode()); err != nil {
		return protocol.Command{}, fmt.Errorf("send %s: %w", cmd.Verb, err)
	}
	for {
		line, err := m.conn.ReadLine()
		if err != nil {
			return protocol.Command{}, fmt.Errorf("await %s: %w", want, err)
		}
		reply, err := protocol.Decode(line)
		if err != nil {
			m.logger.Warn("Dropped malformed line", zap.String("line", line), zap.Error(err))
			continue
		}
		switch reply.Verb {
		case want:
			return reply, nil
		case protocol.Error:
			return protocol.Command{}, &RemoteError{Reason: reply.Arg}
		default:
			return protocol.Command{}, fmt.Errorf("%w: %s", ErrUnexpectedReply, reply.Verb)
		}
	}
}

// Start launches the receive goroutine and returns its event channel. Calling
// it again returns the same channel. Cancelling ctx closes the connection.
func (m *Manager) Start(ctx context.Context) <-chan Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return m.events
	}
	m.started = true

	stop := context.AfterFunc(ctx, func() { m.conn.Close() })
	go func() {
		defer stop()
		m.receive()
	}()
	return m.events
}

func (m *Manager) receive() {
	defer close(m.exited)
	defer close(m.events)
	defer m.conn.Close()

	for {
		line, err := m.conn.ReadLine()
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, ErrClosed) {
				m.logger.Info("Connection closed", zap.Error(err))
			} else {
				m.logger.Warn("Connection lost", zap.Error(err))
			}
			m.emit(Event{Kind: EventDisconnected, Err: err})
			return
		}

		ev, ok := m.decode(line)
		if !ok {
			continue
		}
		if !m.emit(ev) {
			return
		}
	}
}

// emit delivers ev unless the manager was closed and nobody is reading.
// Room in the buffer always wins over done.
func (m *Manager) emit(ev Event) bool {
	select {
	case m.events <- ev:
		return true
	default:
	}
	select {
	case m.events <- ev:
		return true
	case <-m.done:
		return false
	}
}

func (m *Manager) decode(line string) (Event, bool) {
	if m.mode == protocol.Direct {
		p, err := protocol.DecodePayload(line)
		if err != nil {
			m.logger.Warn("Dropped malformed payload", zap.String("line", line), zap.Error(err))
			return Event{}, false
		}
		return Event{Kind: EventPayload, Payload: p}, true
	}

	cmd, err := protocol.Decode(line)
	if err != nil {
		m.logger.Warn("Dropped malformed line", zap.String("line", line), zap.Error(err))
		return Event{}, false
	}

	switch cmd.Verb {
	case protocol.MessageFromHost, protocol.MessageFromClient:
		p, err := protocol.DecodePayload(cmd.Arg)
		if err != nil {
			m.logger.Warn("Dropped malformed payload", zap.String("line", line), zap.Error(err))
			return Event{}, false
		}
		return Event{Kind: EventPayload, Payload: p}, true
	case protocol.ClientJoined:
		return Event{Kind: EventPeerJoined, Addr: cmd.Arg}, true
	case protocol.HostDisconnected, protocol.ClientDisconnected:
		return Event{Kind: EventPeerLeft}, true
	case protocol.Error:
		return Event{Kind: EventRemoteError, Err: &RemoteError{Reason: cmd.Arg}}, true
	}
	m.logger.Warn("Ignored unexpected command", zap.String("verb", string(cmd.Verb)))
	return Event{}, false
}

// Send writes one payload to the opponent. Failures are logged and returned;
// a broken connection surfaces as EventDisconnected.
func (m *Manager) Send(p protocol.Payload) error {
	line := p.Encode()
	if m.mode == protocol.Relayed {
		line = protocol.Command{Verb: protocol.Message, Arg: line}.Encode()
	}
	if err := m.conn.WriteLine(line); err != nil {
		m.logger.Warn("Failed to send message", zap.String("payload", p.Encode()), zap.Error(err))
		return err
	}
	return nil
}

// Close releases the connection. The receive loop, if running, then reports
// EventDisconnected.
func (m *Manager) Close() error {
	m.closeOnce.Do(func() { close(m.done) })
	err := m.conn.Close()
	if errors.Is(err, ErrClosed) {
		return nil
	}
	return err
}
