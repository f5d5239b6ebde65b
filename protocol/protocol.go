package protocol

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// Verb はブローカーレベルのコマンド名
type Verb string

const (
	// クライアント → ブローカー
	CreateRoom Verb = "CREATE_ROOM"
	ListRooms  Verb = "LIST_ROOMS"
	JoinRoom   Verb = "JOIN_ROOM"
	Message    Verb = "MESSAGE"

	// ブローカー → クライアント
	RoomCreated        Verb = "ROOM_CREATED"
	RoomList           Verb = "ROOM_LIST"
	JoinedRoom         Verb = "JOINED_ROOM"
	ClientJoined       Verb = "CLIENT_JOINED"
	MessageFromHost    Verb = "MESSAGE_FROM_HOST"
	MessageFromClient  Verb = "MESSAGE_FROM_CLIENT"
	HostDisconnected   Verb = "HOST_DISCONNECTED"
	ClientDisconnected Verb = "CLIENT_DISCONNECTED"
	Error              Verb = "ERROR"
)

// 引数の形。oneToken は空白を含まない1トークン、rest* は行の残り全部
type arity int

const (
	noArg arity = iota
	oneToken
	restOfLine
	restNonEmpty
)

var verbs = map[Verb]arity{
	CreateRoom:         oneToken,
	ListRooms:          noArg,
	JoinRoom:           oneToken,
	Message:            restNonEmpty,
	RoomCreated:        oneToken,
	RoomList:           restOfLine,
	JoinedRoom:         oneToken,
	ClientJoined:       restOfLine,
	MessageFromHost:    restNonEmpty,
	MessageFromClient:  restNonEmpty,
	HostDisconnected:   noArg,
	ClientDisconnected: noArg,
	Error:              restOfLine,
}

var (
	ErrEmpty       = errors.New("empty frame")
	ErrUnknownVerb = errors.New("unknown verb")
	ErrArity       = errors.New("wrong number of arguments")
	ErrBadInteger  = errors.New("bad integer")
	ErrBadOutcome  = errors.New("bad attack outcome")
)

// DecodeError is a decode failure. The offending line is kept for logging.
type DecodeError struct {
	Line string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("protocol: %v: %q", e.Err, e.Line)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Command is one broker-level frame. Arg holds everything after the verb:
// the room name, the comma separated room list, the relayed payload or the
// error reason, depending on Verb.
type Command struct {
	Verb Verb
	Arg  string
}

// Encode renders the command as a single line without the trailing newline.
func (c Command) Encode() string {
	if c.Arg == "" {
		return string(c.Verb)
	}
	return string(c.Verb) + " " + c.Arg
}

func (c Command) String() string { return c.Encode() }

// Decode parses one frame. It never panics; malformed input yields *DecodeError.
func Decode(line string) (Command, error) {
	line = strings.TrimRight(line, "\r\n")
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return Command{}, &DecodeError{Line: line, Err: ErrEmpty}
	}

	head, rest := trimmed, ""
	if i := strings.IndexFunc(trimmed, unicode.IsSpace); i >= 0 {
		head, rest = trimmed[:i], trimmed[i:]
	}
	verb := Verb(head)
	kind, ok := verbs[verb]
	if !ok {
		return Command{}, &DecodeError{Line: line, Err: ErrUnknownVerb}
	}
	rest = strings.TrimSpace(rest)

	switch kind {
	case noArg:
		if rest != "" {
			return Command{}, &DecodeError{Line: line, Err: ErrArity}
		}
	case oneToken:
		if rest == "" || strings.IndexFunc(rest, unicode.IsSpace) >= 0 {
			return Command{}, &DecodeError{Line: line, Err: ErrArity}
		}
	case restNonEmpty:
		if rest == "" {
			return Command{}, &DecodeError{Line: line, Err: ErrArity}
		}
	}
	return Command{Verb: verb, Arg: rest}, nil
}

// JoinNames builds the ROOM_LIST argument. Names must not contain commas.
func JoinNames(names []string) string {
	return strings.Join(names, ",")
}

// SplitNames is the inverse of JoinNames; an empty argument is an empty list.
func SplitNames(arg string) []string {
	if strings.TrimSpace(arg) == "" {
		return []string{}
	}
	parts := strings.Split(arg, ",")
	names := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			names = append(names, p)
		}
	}
	return names
}
