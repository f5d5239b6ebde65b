package broker

import (
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"fleetserver/connection"
)

const waitTimeout = 2 * time.Second

type testPeer struct {
	t     *testing.T
	conn  connection.Conn
	lines chan string
}

func newTestPeer(t *testing.T, conn connection.Conn) *testPeer {
	p := &testPeer{t: t, conn: conn, lines: make(chan string, 32)}
	go func() {
		defer close(p.lines)
		for {
			line, err := conn.ReadLine()
			if err != nil {
				return
			}
			p.lines <- line
		}
	}()
	t.Cleanup(func() { conn.Close() })
	return p
}

// connect attaches an in-memory connection to the broker.
func connect(t *testing.T, b *Broker) *testPeer {
	server, client := net.Pipe()
	go b.HandleConn(context.Background(), connection.NewLineConn(server))
	return newTestPeer(t, connection.NewLineConn(client))
}

func (p *testPeer) send(line string) {
	p.t.Helper()
	require.NoError(p.t, p.conn.WriteLine(line))
}

func (p *testPeer) expect(want string) {
	p.t.Helper()
	select {
	case got, ok := <-p.lines:
		require.True(p.t, ok, "connection closed while waiting for %q", want)
		assert.Equal(p.t, want, got)
	case <-time.After(waitTimeout):
		p.t.Fatalf("timed out waiting for %q", want)
	}
}

func (p *testPeer) expectNothing() {
	p.t.Helper()
	select {
	case got := <-p.lines:
		p.t.Fatalf("unexpected line %q", got)
	case <-time.After(50 * time.Millisecond):
	}
}

func (p *testPeer) close() {
	p.conn.Close()
}

// newBroker logs to an observer: workers may still log after the test ends.
func newBroker(t *testing.T, opts ...Option) *Broker {
	core, _ := observer.New(zap.DebugLevel)
	return New(zap.New(core), opts...)
}

func TestRoomLifecycle(t *testing.T) {
	b := newBroker(t)
	host, second, third := connect(t, b), connect(t, b), connect(t, b)

	host.send("CREATE_ROOM Alpha")
	host.expect("ROOM_CREATED Alpha")

	second.send("CREATE_ROOM Alpha")
	second.expect("ERROR name in use")

	second.send("JOIN_ROOM Alpha")
	second.expect("JOINED_ROOM Alpha")
	host.expect("CLIENT_JOINED pipe")

	third.send("JOIN_ROOM Alpha")
	third.expect("ERROR Room already has a client")

	third.send("JOIN_ROOM Beta")
	third.expect("ERROR Room not found")

	assert.Equal(t, 1, b.Registry().Count())
}

func TestRelayBetweenOccupants(t *testing.T) {
	b := newBroker(t)
	host, client, stranger := connect(t, b), connect(t, b), connect(t, b)

	host.send("CREATE_ROOM Alpha")
	host.expect("ROOM_CREATED Alpha")

	host.send("MESSAGE ALL_SHIPS_PLACED")
	host.expect("ERROR No opponent in room")

	client.send("JOIN_ROOM Alpha")
	client.expect("JOINED_ROOM Alpha")
	host.expect("CLIENT_JOINED pipe")

	host.send("MESSAGE ATTACK 3 7")
	client.expect("MESSAGE_FROM_HOST ATTACK 3 7")

	client.send("MESSAGE RESULT 3 7 HIT Destroyer")
	host.expect("MESSAGE_FROM_CLIENT RESULT 3 7 HIT Destroyer")

	// ペイロードは解釈しない
	client.send("MESSAGE anything at all")
	host.expect("MESSAGE_FROM_CLIENT anything at all")

	stranger.send("MESSAGE ATTACK 0 0")
	stranger.expect("ERROR Not in a room")
	host.expectNothing()
}

func TestListRooms(t *testing.T) {
	b := newBroker(t)
	lister := connect(t, b)

	lister.send("LIST_ROOMS")
	lister.expect("ROOM_LIST")

	for _, name := range []string{"Gamma", "Beta", "Alpha"} {
		p := connect(t, b)
		p.send("CREATE_ROOM " + name)
		p.expect("ROOM_CREATED " + name)
		if name == "Gamma" {
			joiner := connect(t, b)
			joiner.send("JOIN_ROOM Gamma")
			joiner.expect("JOINED_ROOM Gamma")
			p.expect("CLIENT_JOINED pipe")
		}
	}

	lister.send("LIST_ROOMS")
	lister.expect("ROOM_LIST Alpha,Beta")
}

func TestHostDisconnectClosesRoom(t *testing.T) {
	b := newBroker(t)
	host, client := connect(t, b), connect(t, b)

	host.send("CREATE_ROOM Alpha")
	host.expect("ROOM_CREATED Alpha")
	client.send("JOIN_ROOM Alpha")
	client.expect("JOINED_ROOM Alpha")
	host.expect("CLIENT_JOINED pipe")

	host.close()
	client.expect("HOST_DISCONNECTED")
	require.Eventually(t, func() bool { return b.Registry().Count() == 0 }, waitTimeout, 10*time.Millisecond)

	// 部屋が消えたのでクライアントは自由に動ける
	client.send("MESSAGE ATTACK 0 0")
	client.expect("ERROR Not in a room")
	client.send("CREATE_ROOM Alpha")
	client.expect("ROOM_CREATED Alpha")
}

func TestClientDisconnectReopensRoom(t *testing.T) {
	b := newBroker(t)
	host, client := connect(t, b), connect(t, b)

	host.send("CREATE_ROOM Alpha")
	host.expect("ROOM_CREATED Alpha")
	client.send("JOIN_ROOM Alpha")
	client.expect("JOINED_ROOM Alpha")
	host.expect("CLIENT_JOINED pipe")

	client.close()
	host.expect("CLIENT_DISCONNECTED")
	assert.Equal(t, []string{"Alpha"}, b.Registry().OpenRooms())

	next := connect(t, b)
	next.send("JOIN_ROOM Alpha")
	next.expect("JOINED_ROOM Alpha")
	host.expect("CLIENT_JOINED pipe")
}

func TestInvalidCommandsKeepTheConnection(t *testing.T) {
	b := newBroker(t)
	p := connect(t, b)

	for _, line := range []string{"FLY_AWAY", "CREATE_ROOM", "ROOM_CREATED Alpha", "HOST_DISCONNECTED", "LIST_ROOMS now"} {
		p.send(line)
		p.expect("ERROR Invalid command")
	}

	p.send("CREATE_ROOM a,b")
	p.expect("ERROR Invalid room name")
	p.send("CREATE_ROOM " + strings.Repeat("x", MaxRoomNameLength+1))
	p.expect("ERROR Invalid room name")

	p.send("CREATE_ROOM Alpha")
	p.expect("ROOM_CREATED Alpha")
	p.send("CREATE_ROOM Beta")
	p.expect("ERROR Already in a room")
	p.send("JOIN_ROOM Alpha")
	p.expect("ERROR Already in a room")
}

type event struct {
	kind string
	room string
}

type recordingStore struct {
	mu     sync.Mutex
	events []event
	fail   bool
}

func (s *recordingStore) add(kind, room string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event{kind, room})
	if s.fail {
		return errors.New("store unavailable")
	}
	return nil
}

func (s *recordingStore) snapshot() []event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]event(nil), s.events...)
}

func (s *recordingStore) RoomCreated(_ context.Context, name, _ string, _ time.Time) error {
	return s.add("created", name)
}

func (s *recordingStore) RoomJoined(_ context.Context, name, _ string, _ time.Time) error {
	return s.add("joined", name)
}

func (s *recordingStore) ClientLeft(_ context.Context, name string, _ time.Time) error {
	return s.add("left", name)
}

func (s *recordingStore) RoomClosed(_ context.Context, name string, _ time.Time) error {
	return s.add("closed", name)
}

func (s *recordingStore) Connected(_ context.Context, _, _ string) error {
	return s.add("connected", "")
}

func (s *recordingStore) Seated(_ context.Context, _, room, role string) error {
	return s.add("seated:"+role, room)
}

func (s *recordingStore) Disconnected(_ context.Context, _ string) error {
	return s.add("disconnected", "")
}

func TestStoresFollowRoomLifecycle(t *testing.T) {
	rooms := &recordingStore{}
	presence := &recordingStore{fail: true}
	b := newBroker(t, WithRoomStore(rooms), WithPresence(presence))

	host, client := connect(t, b), connect(t, b)
	host.send("CREATE_ROOM Alpha")
	host.expect("ROOM_CREATED Alpha")
	client.send("JOIN_ROOM Alpha")
	client.expect("JOINED_ROOM Alpha")
	host.expect("CLIENT_JOINED pipe")

	client.close()
	host.expect("CLIENT_DISCONNECTED")
	host.close()

	want := []event{{"created", "Alpha"}, {"joined", "Alpha"}, {"left", "Alpha"}, {"closed", "Alpha"}}
	require.Eventually(t, func() bool { return len(rooms.snapshot()) == len(want) }, waitTimeout, 10*time.Millisecond)
	assert.Equal(t, want, rooms.snapshot())

	// プレゼンスの失敗はプレイに影響しない
	require.Eventually(t, func() bool { return b.Connections() == 0 }, waitTimeout, 10*time.Millisecond)
	assert.Contains(t, presence.snapshot(), event{"seated:host", "Alpha"})
	assert.Contains(t, presence.snapshot(), event{"seated:client", "Alpha"})
	assert.Len(t, presence.snapshot(), 6)
}

func TestServeOverTCP(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	b := newBroker(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Serve(ctx, ln) }()

	raw, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	p := newTestPeer(t, connection.NewLineConn(raw))

	_, err = raw.Write([]byte("CREATE_ROOM Alpha\r\n"))
	require.NoError(t, err)
	p.expect("ROOM_CREATED Alpha")
	p.send("LIST_ROOMS")
	p.expect("ROOM_LIST Alpha")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(waitTimeout):
		t.Fatal("Serve did not return after cancel")
	}
	assert.Zero(t, b.Connections())
}
