package client

import (
	"context"
	"errors"
	"math/rand"

	"go.uber.org/zap"

	"fleetserver/connection"
	"fleetserver/game"
	"fleetserver/protocol"
)

// ErrStopped is returned by requests made after Run returned.
var ErrStopped = errors.New("runner stopped")

// Transport is the connection side of a runner. *connection.Manager implements it.
type Transport interface {
	Start(ctx context.Context) <-chan connection.Event
	Send(p protocol.Payload) error
	Close() error
}

type placeRequest struct {
	kind   game.ShipKind
	anchor game.Point
	o      game.Orientation
	reply  chan error
}

type attackRequest struct {
	cell  game.Point
	reply chan error
}

// Runner owns a Session in a single goroutine. Connection events and requests
// from the presentation layer are serialised through channels, so no session
// state is shared.
type Runner struct {
	session   *game.Session
	transport Transport
	logger    *zap.Logger
	rng       *rand.Rand

	places  chan placeRequest
	autos   chan chan error
	attacks chan attackRequest
	states  chan chan game.Snapshot
	updates chan struct{}

	done  chan struct{}
	final game.Snapshot
}

func NewRunner(session *game.Session, transport Transport, logger *zap.Logger, rng *rand.Rand) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		session:   session,
		transport: transport,
		logger:    logger,
		rng:       rng,
		places:    make(chan placeRequest),
		autos:     make(chan chan error),
		attacks:   make(chan attackRequest),
		states:    make(chan chan game.Snapshot),
		updates:   make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
}

// Run processes events and requests until ctx is cancelled. The transport is
// closed on return.
func (r *Runner) Run(ctx context.Context) error {
	defer close(r.done)
	defer func() { r.final = r.session.Snapshot() }()
	defer r.transport.Close()

	events := r.transport.Start(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-events:
			if !ok {
				// 切断後も状態の参照には応え続ける
				events = nil
				continue
			}
			r.handleEvent(ev)

		case req := <-r.places:
			out, err := r.session.Place(req.kind, req.anchor, req.o)
			r.send(out)
			req.reply <- err

		case reply := <-r.autos:
			out, err := r.session.AutoPlace(r.rng)
			r.send(out)
			reply <- err

		case req := <-r.attacks:
			msg, err := r.session.Attack(req.cell)
			if err == nil {
				r.send([]protocol.Payload{msg})
			}
			req.reply <- err

		case reply := <-r.states:
			reply <- r.session.Snapshot()
			continue
		}
		r.notify()
	}
}

func (r *Runner) handleEvent(ev connection.Event) {
	switch ev.Kind {
	case connection.EventPayload:
		out, err := r.session.Apply(ev.Payload)
		if err != nil {
			r.logger.Debug("Payload not applied", zap.String("payload", ev.Payload.Encode()), zap.Error(err))
		}
		r.send(out)
	case connection.EventPeerJoined:
		r.logger.Info("Opponent joined", zap.String("addr", ev.Addr))
		r.send(r.session.PeerJoined())
	case connection.EventPeerLeft:
		r.logger.Info("Opponent left")
		r.session.PeerLeft()
		// 相手のいないセッションは再開できない。部屋を残さないよう接続を閉じる
		_ = r.transport.Close()
	case connection.EventRemoteError:
		r.logger.Warn("Broker reported an error", zap.Error(ev.Err))
		var remote *connection.RemoteError
		if errors.As(ev.Err, &remote) {
			r.session.Note("Server: %s", remote.Reason)
		}
	case connection.EventDisconnected:
		r.session.ConnectionLost()
	}
}

// send は失敗してもログだけ。切断は受信側のイベントで分かる
func (r *Runner) send(out []protocol.Payload) {
	for _, p := range out {
		_ = r.transport.Send(p)
	}
}

func (r *Runner) notify() {
	select {
	case r.updates <- struct{}{}:
	default:
	}
}

// Updates signals, coalesced, that the state may have changed.
func (r *Runner) Updates() <-chan struct{} { return r.updates }

// Done is closed when Run returned.
func (r *Runner) Done() <-chan struct{} { return r.done }

// Place places one ship. A nil error means the placement was accepted.
func (r *Runner) Place(kind game.ShipKind, anchor game.Point, o game.Orientation) error {
	reply := make(chan error, 1)
	select {
	case r.places <- placeRequest{kind: kind, anchor: anchor, o: o, reply: reply}:
		return <-reply
	case <-r.done:
		return ErrStopped
	}
}

// AutoPlace places every remaining ship at random.
func (r *Runner) AutoPlace() error {
	reply := make(chan error, 1)
	select {
	case r.autos <- reply:
		return <-reply
	case <-r.done:
		return ErrStopped
	}
}

// Attack queues an attack. A nil error means it was sent.
func (r *Runner) Attack(cell game.Point) error {
	reply := make(chan error, 1)
	select {
	case r.attacks <- attackRequest{cell: cell, reply: reply}:
		return <-reply
	case <-r.done:
		return ErrStopped
	}
}

// State returns a snapshot of the session, or the final one once Run returned.
func (r *Runner) State() game.Snapshot {
	reply := make(chan game.Snapshot, 1)
	select {
	case r.states <- reply:
		return <-reply
	case <-r.done:
		return r.final
	}
}
