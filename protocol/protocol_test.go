package protocol

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeCommand(t *testing.T) {
	tests := []struct {
		line string
		want Command
	}{
		{"CREATE_ROOM Alpha", Command{Verb: CreateRoom, Arg: "Alpha"}},
		{"LIST_ROOMS", Command{Verb: ListRooms}},
		{"JOIN_ROOM Alpha\r\n", Command{Verb: JoinRoom, Arg: "Alpha"}},
		{"MESSAGE ATTACK 3 7", Command{Verb: Message, Arg: "ATTACK 3 7"}},
		{"ROOM_LIST Alpha,Beta", Command{Verb: RoomList, Arg: "Alpha,Beta"}},
		{"ROOM_LIST", Command{Verb: RoomList}},
		{"CLIENT_JOINED 10.0.0.2:5123", Command{Verb: ClientJoined, Arg: "10.0.0.2:5123"}},
		{"MESSAGE_FROM_HOST ALL_SHIPS_PLACED", Command{Verb: MessageFromHost, Arg: "ALL_SHIPS_PLACED"}},
		{"HOST_DISCONNECTED", Command{Verb: HostDisconnected}},
		{"ERROR Room not found", Command{Verb: Error, Arg: "Room not found"}},
		// 区切りは任意の空白
		{"CREATE_ROOM\tAlpha", Command{Verb: CreateRoom, Arg: "Alpha"}},
		{"MESSAGE\tATTACK 3 7", Command{Verb: Message, Arg: "ATTACK 3 7"}},
	}

	for _, tt := range tests {
		got, err := Decode(tt.line)
		require.NoError(t, err, tt.line)
		assert.Equal(t, tt.want, got, tt.line)
	}
}

func TestDecodeCommandFailsClosed(t *testing.T) {
	tests := []struct {
		line string
		want error
	}{
		{"", ErrEmpty},
		{"   \n", ErrEmpty},
		{"FLY_AWAY now", ErrUnknownVerb},
		{"create_room Alpha", ErrUnknownVerb},
		{"CREATE_ROOM", ErrArity},
		{"CREATE_ROOM two words", ErrArity},
		{"CREATE_ROOM two\twords", ErrArity},
		{"LIST_ROOMS\textra", ErrArity},
		{"JOIN_ROOM", ErrArity},
		{"LIST_ROOMS extra", ErrArity},
		{"MESSAGE", ErrArity},
		{"MESSAGE   ", ErrArity},
		{"HOST_DISCONNECTED now", ErrArity},
	}

	for _, tt := range tests {
		_, err := Decode(tt.line)
		require.Error(t, err, tt.line)
		assert.True(t, errors.Is(err, tt.want), "%q: got %v", tt.line, err)

		var decodeErr *DecodeError
		assert.True(t, errors.As(err, &decodeErr))
	}
}

func TestCommandRoundTrip(t *testing.T) {
	commands := []Command{
		{Verb: CreateRoom, Arg: "Alpha"},
		{Verb: ListRooms},
		{Verb: JoinRoom, Arg: "Alpha"},
		{Verb: Message, Arg: "RESULT 1 0 HIT Destroyer"},
		{Verb: RoomCreated, Arg: "Alpha"},
		{Verb: RoomList, Arg: "Alpha,Beta,Gamma"},
		{Verb: RoomList},
		{Verb: JoinedRoom, Arg: "Alpha"},
		{Verb: ClientJoined, Arg: "127.0.0.1"},
		{Verb: MessageFromHost, Arg: "ATTACK 0 0"},
		{Verb: MessageFromClient, Arg: "GAME_OVER Opponent"},
		{Verb: HostDisconnected},
		{Verb: ClientDisconnected},
		{Verb: Error, Arg: "name in use"},
	}

	for _, c := range commands {
		got, err := Decode(c.Encode())
		require.NoError(t, err, c.Encode())
		assert.Equal(t, c, got)
	}
}

func TestPayloadRoundTrip(t *testing.T) {
	payloads := []Payload{
		AttackPayload(3, 7),
		AttackPayload(0, 9),
		ResultPayload(1, 0, true, "Destroyer"),
		ResultPayload(0, 0, true, ""),
		ResultPayload(5, 5, false, ""),
		ReadyPayload(),
		GameOverPayload("Opponent"),
	}

	for _, p := range payloads {
		got, err := DecodePayload(p.Encode())
		require.NoError(t, err, p.Encode())
		assert.Equal(t, p, got)
	}
}

func TestAttackEncoding(t *testing.T) {
	assert.Equal(t, "ATTACK 3 7", AttackPayload(3, 7).Encode())

	got, err := DecodePayload("ATTACK 3 7")
	require.NoError(t, err)
	assert.Equal(t, Payload{Kind: Attack, X: 3, Y: 7}, got)
}

func TestResultEncoding(t *testing.T) {
	assert.Equal(t, "RESULT 0 0 HIT", ResultPayload(0, 0, true, "").Encode())
	assert.Equal(t, "RESULT 1 0 HIT Destroyer", ResultPayload(1, 0, true, "Destroyer").Encode())
	assert.Equal(t, "RESULT 4 2 MISS", ResultPayload(4, 2, false, "").Encode())
}

func TestDecodePayloadFailsClosed(t *testing.T) {
	tests := []struct {
		payload string
		want    error
	}{
		{"", ErrEmpty},
		{"ATTACK", ErrArity},
		{"ATTACK 1", ErrArity},
		{"ATTACK 1 2 3", ErrArity},
		{"ATTACK x 2", ErrBadInteger},
		{"ATTACK 1 two", ErrBadInteger},
		{"RESULT 1 2", ErrArity},
		{"RESULT 1 2 MAYBE", ErrBadOutcome},
		{"RESULT 1 2 MISS Destroyer", ErrBadOutcome},
		{"RESULT 1 2 HIT Destroyer extra", ErrArity},
		{"ALL_SHIPS_PLACED now", ErrArity},
		{"GAME_OVER", ErrArity},
		{"SURRENDER", ErrUnknownVerb},
	}

	for _, tt := range tests {
		_, err := DecodePayload(tt.payload)
		require.Error(t, err, tt.payload)
		assert.True(t, errors.Is(err, tt.want), "%q: got %v", tt.payload, err)
	}
}

func TestNames(t *testing.T) {
	assert.Equal(t, "", JoinNames(nil))
	assert.Equal(t, "Alpha,Beta", JoinNames([]string{"Alpha", "Beta"}))

	assert.Empty(t, SplitNames(""))
	assert.Equal(t, []string{"Alpha", "Beta"}, SplitNames("Alpha,Beta"))
	assert.Equal(t, []string{"Alpha"}, SplitNames("Alpha,,"))
}
