package protocol

import (
	"strconv"
	"strings"
)

// Kind is a session-level verb carried inside MESSAGE payloads.
type Kind string

const (
	Attack         Kind = "ATTACK"
	Result         Kind = "RESULT"
	AllShipsPlaced Kind = "ALL_SHIPS_PLACED"
	GameOver       Kind = "GAME_OVER"
)

const (
	outcomeHit  = "HIT"
	outcomeMiss = "MISS"
)

// Payload is a session-level message. Only the fields relevant to Kind are set:
// X/Y for ATTACK and RESULT, Hit/Sunk for RESULT, Winner for GAME_OVER.
type Payload struct {
	Kind   Kind
	X, Y   int
	Hit    bool
	Sunk   string
	Winner string
}

func AttackPayload(x, y int) Payload {
	return Payload{Kind: Attack, X: x, Y: y}
}

func ResultPayload(x, y int, hit bool, sunk string) Payload {
	return Payload{Kind: Result, X: x, Y: y, Hit: hit, Sunk: sunk}
}

func ReadyPayload() Payload {
	return Payload{Kind: AllShipsPlaced}
}

func GameOverPayload(winner string) Payload {
	return Payload{Kind: GameOver, Winner: winner}
}

// Encode renders the payload as it travels after "MESSAGE ".
func (p Payload) Encode() string {
	switch p.Kind {
	case Attack:
		return string(Attack) + " " + strconv.Itoa(p.X) + " " + strconv.Itoa(p.Y)
	case Result:
		outcome := outcomeMiss
		if p.Hit {
			outcome = outcomeHit
		}
		s := string(Result) + " " + strconv.Itoa(p.X) + " " + strconv.Itoa(p.Y) + " " + outcome
		if p.Sunk != "" {
			s += " " + p.Sunk
		}
		return s
	case GameOver:
		return string(GameOver) + " " + p.Winner
	default:
		return string(p.Kind)
	}
}

func (p Payload) String() string { return p.Encode() }

// DecodePayload parses a relayed payload. Like Decode it fails closed.
func DecodePayload(s string) (Payload, error) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return Payload{}, &DecodeError{Line: s, Err: ErrEmpty}
	}

	kind := Kind(fields[0])
	args := fields[1:]
	switch kind {
	case Attack:
		if len(args) != 2 {
			return Payload{}, &DecodeError{Line: s, Err: ErrArity}
		}
		x, y, err := parseXY(args[0], args[1])
		if err != nil {
			return Payload{}, &DecodeError{Line: s, Err: err}
		}
		return AttackPayload(x, y), nil

	case Result:
		if len(args) != 3 && len(args) != 4 {
			return Payload{}, &DecodeError{Line: s, Err: ErrArity}
		}
		x, y, err := parseXY(args[0], args[1])
		if err != nil {
			return Payload{}, &DecodeError{Line: s, Err: err}
		}
		var hit bool
		switch args[2] {
		case outcomeHit:
			hit = true
		case outcomeMiss:
		default:
			return Payload{}, &DecodeError{Line: s, Err: ErrBadOutcome}
		}
		var sunk string
		if len(args) == 4 {
			// 沈没は命中時のみ
			if !hit {
				return Payload{}, &DecodeError{Line: s, Err: ErrBadOutcome}
			}
			sunk = args[3]
		}
		return ResultPayload(x, y, hit, sunk), nil

	case AllShipsPlaced:
		if len(args) != 0 {
			return Payload{}, &DecodeError{Line: s, Err: ErrArity}
		}
		return ReadyPayload(), nil

	case GameOver:
		if len(args) != 1 {
			return Payload{}, &DecodeError{Line: s, Err: ErrArity}
		}
		return GameOverPayload(args[0]), nil
	}
	return Payload{}, &DecodeError{Line: s, Err: ErrUnknownVerb}
}

func parseXY(xs, ys string) (int, int, error) {
	x, err := strconv.Atoi(xs)
	if err != nil {
		return 0, 0, ErrBadInteger
	}
	y, err := strconv.Atoi(ys)
	if err != nil {
		return 0, 0, ErrBadInteger
	}
	return x, y, nil
}
