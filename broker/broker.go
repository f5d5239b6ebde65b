package broker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"fleetserver/connection"
	"fleetserver/protocol"
)

const storeTimeout = 5 * time.Second

// reasonInvalidCommand is sent for lines that fail to decode or that only the
// broker itself may send.
const reasonInvalidCommand = "Invalid command"

// RoomStore records the lifecycle of rooms. Failures never affect play.
type RoomStore interface {
	RoomCreated(ctx context.Context, name, hostAddr string, at time.Time) error
	RoomJoined(ctx context.Context, name, clientAddr string, at time.Time) error
	ClientLeft(ctx context.Context, name string, at time.Time) error
	RoomClosed(ctx context.Context, name string, at time.Time) error
}

// PresenceStore tracks live broker connections.
type PresenceStore interface {
	Connected(ctx context.Context, id, addr string) error
	Seated(ctx context.Context, id, room, role string) error
	Disconnected(ctx context.Context, id string) error
}

type Option func(*Broker)

func WithRoomStore(s RoomStore) Option {
	return func(b *Broker) { b.rooms = s }
}

func WithPresence(p PresenceStore) Option {
	return func(b *Broker) { b.presence = p }
}

// Broker pairs hosts with clients and relays MESSAGE payloads between them
// without interpreting them.
type Broker struct {
	registry *Registry
	logger   *zap.Logger
	rooms    RoomStore
	presence PresenceStore

	active atomic.Int64
	wg     sync.WaitGroup
}

func New(logger *zap.Logger, opts ...Option) *Broker {
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &Broker{registry: NewRegistry(), logger: logger}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Broker) Registry() *Registry { return b.registry }

// Connections is the number of connections currently being served.
func (b *Broker) Connections() int { return int(b.active.Load()) }

// Serve accepts connections until ctx is cancelled or the listener fails.
// It waits for running workers before returning.
func (b *Broker) Serve(ctx context.Context, ln net.Listener) error {
	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()
	defer b.wg.Wait()

	b.logger.Info("ブローカーを起動しました", zap.String("addr", ln.Addr().String()))
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				b.logger.Warn("Accept timeout", zap.Error(err))
				continue
			}
			return fmt.Errorf("accept: %w", err)
		}

		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			b.HandleConn(ctx, connection.NewLineConn(conn))
		}()
	}
}

// HandleConn serves one connection until it closes or ctx is cancelled. It is
// used for TCP and WebSocket connections alike.
func (b *Broker) HandleConn(ctx context.Context, conn connection.Conn) {
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	peer := NewPeer(uuid.New().String(), conn)
	logger := b.logger.With(zap.String("peer", peer.ID), zap.String("addr", peer.Addr))

	b.active.Add(1)
	defer b.active.Add(-1)
	defer conn.Close()
	defer b.cleanup(peer, logger)
	defer func() {
		// パニックはこの接続だけを落とす
		if r := recover(); r != nil {
			logger.Error("Recovered from panic in connection worker", zap.Any("panic", r))
		}
	}()

	logger.Info("New connection")
	b.track(logger, func(ctx context.Context) error {
		if b.presence == nil {
			return nil
		}
		return b.presence.Connected(ctx, peer.ID, peer.Addr)
	})

	for {
		line, err := conn.ReadLine()
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, connection.ErrClosed) {
				logger.Info("Connection closed")
			} else {
				logger.Warn("Connection lost", zap.Error(err))
			}
			return
		}
		b.dispatch(peer, logger, line)
	}
}

func (b *Broker) dispatch(peer *Peer, logger *zap.Logger, line string) {
	cmd, err := protocol.Decode(line)
	if err != nil {
		logger.Warn("Dropped malformed command", zap.String("line", line), zap.Error(err))
		b.reply(peer, logger, protocol.Command{Verb: protocol.Error, Arg: reasonInvalidCommand})
		return
	}

	switch cmd.Verb {
	case protocol.CreateRoom:
		b.createRoom(peer, logger, cmd.Arg)
	case protocol.ListRooms:
		b.reply(peer, logger, protocol.Command{Verb: protocol.RoomList, Arg: protocol.JoinNames(b.registry.OpenRooms())})
	case protocol.JoinRoom:
		b.joinRoom(peer, logger, cmd.Arg)
	case protocol.Message:
		b.relay(peer, logger, cmd.Arg)
	default:
		logger.Warn("Client sent a broker-only command", zap.String("verb", string(cmd.Verb)))
		b.reply(peer, logger, protocol.Command{Verb: protocol.Error, Arg: reasonInvalidCommand})
	}
}

func (b *Broker) createRoom(peer *Peer, logger *zap.Logger, name string) {
	if err := b.registry.Create(name, peer); err != nil {
		logger.Info("Room creation refused", zap.String("room", name), zap.Error(err))
		b.replyError(peer, logger, err)
		return
	}
	logger.Info("Room created", zap.String("room", name))

	now := time.Now()
	b.track(logger, func(ctx context.Context) error {
		if b.rooms == nil {
			return nil
		}
		return b.rooms.RoomCreated(ctx, name, peer.Addr, now)
	})
	b.seat(peer, logger, name, "host")
	b.reply(peer, logger, protocol.Command{Verb: protocol.RoomCreated, Arg: name})
}

func (b *Broker) joinRoom(peer *Peer, logger *zap.Logger, name string) {
	host, err := b.registry.Join(name, peer)
	if err != nil {
		logger.Info("Join refused", zap.String("room", name), zap.Error(err))
		b.replyError(peer, logger, err)
		return
	}
	logger.Info("Client joined room", zap.String("room", name))

	now := time.Now()
	b.track(logger, func(ctx context.Context) error {
		if b.rooms == nil {
			return nil
		}
		return b.rooms.RoomJoined(ctx, name, peer.Addr, now)
	})
	b.seat(peer, logger, name, "client")
	b.reply(peer, logger, protocol.Command{Verb: protocol.JoinedRoom, Arg: name})
	b.reply(host, logger, protocol.Command{Verb: protocol.ClientJoined, Arg: connection.Host(peer.Addr)})
}

func (b *Broker) relay(peer *Peer, logger *zap.Logger, payload string) {
	target, fromHost, err := b.registry.Opponent(peer)
	if err != nil {
		logger.Debug("Relay refused", zap.Error(err))
		b.replyError(peer, logger, err)
		return
	}
	verb := protocol.MessageFromClient
	if fromHost {
		verb = protocol.MessageFromHost
	}
	b.reply(target, logger, protocol.Command{Verb: verb, Arg: payload})
}

func (b *Broker) cleanup(peer *Peer, logger *zap.Logger) {
	b.track(logger, func(ctx context.Context) error {
		if b.presence == nil {
			return nil
		}
		return b.presence.Disconnected(ctx, peer.ID)
	})

	dep, ok := b.registry.Leave(peer)
	if !ok {
		return
	}
	now := time.Now()
	if dep.WasHost {
		logger.Info("Host disconnected, room closed", zap.String("room", dep.Room))
		b.track(logger, func(ctx context.Context) error {
			if b.rooms == nil {
				return nil
			}
			return b.rooms.RoomClosed(ctx, dep.Room, now)
		})
		if dep.Notify != nil {
			b.reply(dep.Notify, logger, protocol.Command{Verb: protocol.HostDisconnected})
		}
		return
	}

	logger.Info("Client disconnected, room reopened", zap.String("room", dep.Room))
	b.track(logger, func(ctx context.Context) error {
		if b.rooms == nil {
			return nil
		}
		return b.rooms.ClientLeft(ctx, dep.Room, now)
	})
	b.reply(dep.Notify, logger, protocol.Command{Verb: protocol.ClientDisconnected})
}

func (b *Broker) seat(peer *Peer, logger *zap.Logger, room, role string) {
	b.track(logger, func(ctx context.Context) error {
		if b.presence == nil {
			return nil
		}
		return b.presence.Seated(ctx, peer.ID, room, role)
	})
}

// track runs a store hook with a timeout and logs its failure.
func (b *Broker) track(logger *zap.Logger, hook func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := hook(ctx); err != nil {
		logger.Warn("Store update failed", zap.Error(err))
	}
}

func (b *Broker) reply(to *Peer, logger *zap.Logger, cmd protocol.Command) {
	if err := to.Send(cmd); err != nil {
		logger.Warn("Failed to send", zap.String("to", to.ID), zap.String("verb", string(cmd.Verb)), zap.Error(err))
	}
}

func (b *Broker) replyError(to *Peer, logger *zap.Logger, err error) {
	b.reply(to, logger, protocol.Command{Verb: protocol.Error, Arg: reason(err)})
}

var registryErrors = []error{
	ErrRoomExists, ErrRoomNotFound, ErrRoomFull, ErrNotInRoom,
	ErrAlreadyInRoom, ErrInvalidRoomName, ErrNoOpponent,
}

func reason(err error) string {
	for _, known := range registryErrors {
		if errors.Is(err, known) {
			return known.Error()
		}
	}
	return reasonInvalidCommand
}
