package game

import (
	"fmt"
	"math/rand"

	"go.uber.org/zap"

	"fleetserver/protocol"
)

// Role is the side a player takes in a room. The host always moves first.
type Role int

const (
	Host Role = iota
	Client
)

func (r Role) String() string {
	if r == Client {
		return "Client"
	}
	return "Host"
}

func (r Role) Opponent() Role {
	if r == Client {
		return Host
	}
	return Client
}

func ParseRole(s string) (Role, error) {
	switch s {
	case "Host", "host":
		return Host, nil
	case "Client", "client":
		return Client, nil
	}
	return 0, fmt.Errorf("unknown role %q", s)
}

type Phase int

const (
	PhasePlacement Phase = iota
	PhaseReadyWait
	PhaseAttack
	PhaseGameOver
	PhaseDisconnected
)

func (p Phase) String() string {
	switch p {
	case PhasePlacement:
		return "placement"
	case PhaseReadyWait:
		return "ready-wait"
	case PhaseAttack:
		return "attack"
	case PhaseGameOver:
		return "game-over"
	case PhaseDisconnected:
		return "disconnected"
	}
	return fmt.Sprintf("Phase(%d)", int(p))
}

// Winner tokens of GAME_OVER, relative to the sender.
const (
	WinnerOpponent = "Opponent"
	WinnerSelf     = "Self"
)

const autoPlaceAttempts = 200

// Session is one player's view of a game. It is not safe for concurrent use:
// a single goroutine owns it and feeds it local actions and peer payloads.
// Methods that need to tell the peer something return the payloads to send.
type Session struct {
	role   Role
	mode   protocol.Mode
	phase  Phase
	turn   Role
	logger *zap.Logger

	own      Grid
	observed Grid
	ships    map[ShipKind]*PlacedShip

	selfReady     bool
	opponentReady bool
	peerJoined    bool
	announced     bool

	pending      *Point
	sunkOpponent map[ShipKind]bool

	winner    Role
	hasWinner bool

	score Score
	log   EventLog
}

// NewSession starts a session in the placement phase. A client always has its
// peer (the host created the room); a host learns about the client later
// unless the connection is direct.
func NewSession(role Role, mode protocol.Mode, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{
		role:         role,
		mode:         mode,
		phase:        PhasePlacement,
		turn:         Host,
		logger:       logger.With(zap.String("role", role.String()), zap.String("mode", mode.String())),
		ships:        make(map[ShipKind]*PlacedShip),
		sunkOpponent: make(map[ShipKind]bool),
		peerJoined:   role == Client || mode == protocol.Direct,
	}
}

func (s *Session) Role() Role { return s.role }
func (s *Session) Mode() protocol.Mode { return s.mode }
func (s *Session) Phase() Phase { return s.phase }
func (s *Session) Turn() Role { return s.turn }
func (s *Session) Score() Score { return s.score }

// MyTurn reports whether the local player may attack now.
func (s *Session) MyTurn() bool {
	return s.phase == PhaseAttack && s.turn == s.role && s.pending == nil
}

func (s *Session) Winner() (Role, bool) { return s.winner, s.hasWinner }
func (s *Session) Ship(k ShipKind) *PlacedShip { return s.ships[k] }

// active rejects local actions once the session reached a terminal phase.
func (s *Session) active() error {
	switch s.phase {
	case PhaseDisconnected:
		return ErrDisconnected
	case PhaseGameOver:
		return ErrGameOver
	}
	return nil
}

// CanPlace validates a placement without committing it.
func (s *Session) CanPlace(kind ShipKind, anchor Point, o Orientation) error {
	_, err := s.placement(kind, anchor, o)
	return err
}

func (s *Session) placement(kind ShipKind, anchor Point, o Orientation) ([]Point, error) {
	if err := s.active(); err != nil {
		return nil, err
	}
	if s.phase != PhasePlacement {
		return nil, ErrWrongPhase
	}
	if _, ok := shipSizes[kind]; !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownShip, int(kind))
	}
	if _, ok := s.ships[kind]; ok {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyPlaced, kind)
	}

	cells := ShipCells(kind, anchor, o)
	for _, c := range cells {
		if !c.InBounds() {
			return nil, fmt.Errorf("%w: %s at %s", ErrOutOfBounds, kind, c)
		}
		if s.own.At(c) != Empty {
			return nil, fmt.Errorf("%w: %s at %s", ErrOverlap, kind, c)
		}
	}
	return cells, nil
}

// Place validates and commits one ship. After the fifth ship the session is
// ready and returns ALL_SHIPS_PLACED once the peer is there to receive it.
func (s *Session) Place(kind ShipKind, anchor Point, o Orientation) ([]protocol.Payload, error) {
	cells, err := s.placement(kind, anchor, o)
	if err != nil {
		return nil, err
	}

	for _, c := range cells {
		s.own.Set(c, Ship)
	}
	s.ships[kind] = newPlacedShip(kind, cells)
	s.log.Add("Placed %s at %s.", kind, anchor)
	s.logger.Debug("Ship placed", zap.String("ship", kind.String()), zap.Int("x", anchor.X), zap.Int("y", anchor.Y), zap.String("orientation", o.String()))

	if len(s.ships) < len(Kinds) {
		return nil, nil
	}
	return s.ready(), nil
}

// AutoPlace places every ship not yet on the grid at a random free position.
func (s *Session) AutoPlace(rng *rand.Rand) ([]protocol.Payload, error) {
	if err := s.active(); err != nil {
		return nil, err
	}
	if s.phase != PhasePlacement {
		return nil, ErrWrongPhase
	}

	var out []protocol.Payload
	for _, kind := range s.Available() {
		anchor, o, err := s.randomPlacement(rng, kind)
		if err != nil {
			return out, err
		}
		msgs, err := s.Place(kind, anchor, o)
		if err != nil {
			return out, err
		}
		out = append(out, msgs...)
	}
	return out, nil
}

func (s *Session) randomPlacement(rng *rand.Rand, kind ShipKind) (Point, Orientation, error) {
	for i := 0; i < autoPlaceAttempts; i++ {
		o := Orientation(rng.Intn(2))
		anchor := Point{X: rng.Intn(GridSize), Y: rng.Intn(GridSize)}
		if s.CanPlace(kind, anchor, o) == nil {
			return anchor, o, nil
		}
	}

	// 乱数で見つからなければ全マスを走査
	for y := 0; y < GridSize; y++ {
		for x := 0; x < GridSize; x++ {
			for _, o := range []Orientation{Horizontal, Vertical} {
				anchor := Point{X: x, Y: y}
				if err := s.CanPlace(kind, anchor, o); err == nil {
					return anchor, o, nil
				}
			}
		}
	}
	return Point{}, Horizontal, fmt.Errorf("%w: no room for %s", ErrOverlap, kind)
}

// Available lists the kinds still to be placed, in placement order.
func (s *Session) Available() []ShipKind {
	var kinds []ShipKind
	for _, k := range Kinds {
		if _, ok := s.ships[k]; !ok {
			kinds = append(kinds, k)
		}
	}
	return kinds
}

func (s *Session) ready() []protocol.Payload {
	s.selfReady = true
	if s.opponentReady {
		s.start()
	} else {
		s.phase = PhaseReadyWait
		s.log.Add("All ships placed. Waiting for opponent...")
	}
	return s.announce()
}

// announce は準備完了を一度だけ相手に送る
func (s *Session) announce() []protocol.Payload {
	if !s.selfReady || !s.peerJoined || s.announced {
		return nil
	}
	s.announced = true
	return []protocol.Payload{protocol.ReadyPayload()}
}

func (s *Session) start() {
	s.phase = PhaseAttack
	s.turn = Host
	s.log.Add("Both players are ready. Game starts now!")
	s.logger.Info("Game started")
}

// Attack queues an attack on the opponent's grid. The turn passes only when
// the matching RESULT arrives.
func (s *Session) Attack(p Point) (protocol.Payload, error) {
	if err := s.active(); err != nil {
		return protocol.Payload{}, err
	}
	if s.phase != PhaseAttack {
		return protocol.Payload{}, ErrWrongPhase
	}
	if s.turn != s.role {
		return protocol.Payload{}, ErrNotYourTurn
	}
	if s.pending != nil {
		return protocol.Payload{}, ErrAttackPending
	}
	if !p.InBounds() {
		return protocol.Payload{}, fmt.Errorf("%w: %s", ErrOutOfBounds, p)
	}
	if s.observed.At(p) != Empty {
		return protocol.Payload{}, fmt.Errorf("%w: %s", ErrAlreadyAttacked, p)
	}

	target := p
	s.pending = &target
	s.score.Moves++
	s.log.Add("Attacked %s.", p)
	return protocol.AttackPayload(p.X, p.Y), nil
}

// Apply handles a payload received from the peer. Payloads that do not fit the
// current state are dropped with a warning and the reason is returned.
func (s *Session) Apply(msg protocol.Payload) ([]protocol.Payload, error) {
	if s.phase == PhaseDisconnected {
		return nil, s.drop(msg, ErrDisconnected)
	}

	switch msg.Kind {
	case protocol.Attack:
		return s.handleAttack(msg)
	case protocol.Result:
		return nil, s.handleResult(msg)
	case protocol.AllShipsPlaced:
		return nil, s.handleReady(msg)
	case protocol.GameOver:
		return nil, s.handleGameOver(msg)
	}
	return nil, s.drop(msg, ErrUnexpected)
}

func (s *Session) drop(msg protocol.Payload, reason error) error {
	s.logger.Warn("Dropped peer message",
		zap.String("payload", msg.Encode()),
		zap.String("phase", s.phase.String()),
		zap.Error(reason),
	)
	return fmt.Errorf("%s: %w", msg.Kind, reason)
}

func (s *Session) handleAttack(msg protocol.Payload) ([]protocol.Payload, error) {
	p := Point{X: msg.X, Y: msg.Y}
	switch {
	case s.phase == PhaseGameOver:
		return nil, s.drop(msg, ErrGameOver)
	case s.phase != PhaseAttack:
		return nil, s.drop(msg, ErrWrongPhase)
	case s.turn != s.role.Opponent():
		return nil, s.drop(msg, ErrNotYourTurn)
	case !p.InBounds():
		return nil, s.drop(msg, ErrOutOfBounds)
	}

	// 解決済みのマスには同じ結果を返すだけ
	switch s.own.At(p) {
	case Hit, Miss:
		hit := s.own.At(p) == Hit
		s.turn = s.role
		s.logger.Warn("Repeated attack on resolved cell", zap.Int("x", p.X), zap.Int("y", p.Y))
		return []protocol.Payload{protocol.ResultPayload(p.X, p.Y, hit, "")}, nil
	}

	hit := false
	sunk := ""
	for _, kind := range Kinds {
		ship, ok := s.ships[kind]
		if !ok || !ship.strike(p) {
			continue
		}
		hit = true
		if ship.Sunk() {
			sunk = kind.String()
			s.log.Add("Your %s has been sunk!", kind)
		} else {
			s.log.Add("Your %s has been hit!", kind)
		}
		break
	}

	if hit {
		s.own.Set(p, Hit)
	} else {
		s.own.Set(p, Miss)
		s.log.Add("Opponent missed at %s.", p)
	}

	out := []protocol.Payload{protocol.ResultPayload(p.X, p.Y, hit, sunk)}
	if s.fleetSunk() {
		s.finish(s.role.Opponent())
		s.log.Add("All your ships have been sunk! You lose.")
		return append(out, protocol.GameOverPayload(WinnerOpponent)), nil
	}
	s.turn = s.role
	return out, nil
}

func (s *Session) fleetSunk() bool {
	if len(s.ships) < len(Kinds) {
		return false
	}
	for _, ship := range s.ships {
		if !ship.Sunk() {
			return false
		}
	}
	return true
}

func (s *Session) handleResult(msg protocol.Payload) error {
	if s.phase == PhaseGameOver {
		return s.drop(msg, ErrGameOver)
	}
	if s.pending == nil || s.pending.X != msg.X || s.pending.Y != msg.Y {
		return s.drop(msg, ErrNoPendingAttack)
	}

	p := *s.pending
	s.pending = nil
	if msg.Hit {
		s.observed.Set(p, Hit)
		s.score.Hits++
	} else {
		s.observed.Set(p, Miss)
	}

	switch {
	case msg.Sunk != "":
		kind, err := ParseShipKind(msg.Sunk)
		if err != nil {
			s.logger.Warn("Unknown sunk ship", zap.String("ship", msg.Sunk))
			break
		}
		s.sunkOpponent[kind] = true
		s.log.Add("You sunk the opponent's %s!", kind)
	case msg.Hit:
		s.log.Add("Hit at %s!", p)
	default:
		s.log.Add("Miss at %s.", p)
	}

	if len(s.sunkOpponent) == len(Kinds) {
		s.finish(s.role)
		s.log.Add("The whole enemy fleet is sunk! You win.")
		return nil
	}
	s.turn = s.role.Opponent()
	return nil
}

func (s *Session) handleReady(msg protocol.Payload) error {
	if s.opponentReady {
		return s.drop(msg, ErrUnexpected)
	}
	if s.phase == PhaseGameOver {
		return s.drop(msg, ErrGameOver)
	}
	s.opponentReady = true
	s.log.Add("Opponent has placed all ships.")
	if s.phase == PhaseReadyWait {
		s.start()
	}
	return nil
}

func (s *Session) handleGameOver(msg protocol.Payload) error {
	var winner Role
	switch msg.Winner {
	case WinnerOpponent:
		winner = s.role
	case WinnerSelf:
		winner = s.role.Opponent()
	default:
		r, err := ParseRole(msg.Winner)
		if err != nil {
			return s.drop(msg, ErrBadWinner)
		}
		winner = r
	}

	if s.phase == PhaseGameOver {
		if winner != s.winner {
			s.logger.Warn("Conflicting game over", zap.String("local", s.winner.String()), zap.String("peer", winner.String()))
		}
		return nil
	}
	s.finish(winner)
	if winner == s.role {
		s.log.Add("Game over! You win.")
	} else {
		s.log.Add("Game over! Opponent wins.")
	}
	return nil
}

func (s *Session) finish(winner Role) {
	s.phase = PhaseGameOver
	s.winner = winner
	s.hasWinner = true
	s.pending = nil
	s.logger.Info("Game over", zap.String("winner", winner.String()), zap.Int("hits", s.score.Hits), zap.Int("moves", s.score.Moves))
}

// PeerJoined records that the opponent is connected. A host that finished
// placing before the client arrived announces its readiness now.
func (s *Session) PeerJoined() []protocol.Payload {
	if s.peerJoined {
		return nil
	}
	s.peerJoined = true
	s.log.Add("%s joined the game.", s.role.Opponent())
	return s.announce()
}

// PeerLeft ends the game because the opponent disconnected.
func (s *Session) PeerLeft() {
	s.log.Add("%s has disconnected.", s.role.Opponent())
	s.disconnect()
}

// ConnectionLost ends the game because our own connection closed.
func (s *Session) ConnectionLost() {
	s.log.Add("Connection lost.")
	s.disconnect()
}

func (s *Session) disconnect() {
	s.pending = nil
	if s.phase == PhaseGameOver || s.phase == PhaseDisconnected {
		return
	}
	s.phase = PhaseDisconnected
	s.logger.Info("Session disconnected")
}

// Note adds a line to the event log.
func (s *Session) Note(format string, args ...interface{}) {
	s.log.Add(format, args...)
}

// ShipStatus describes one placed ship in a snapshot.
type ShipStatus struct {
	Kind      ShipKind `json:"kind"`
	Cells     []Point  `json:"cells"`
	Remaining int      `json:"remaining"`
	Sunk      bool     `json:"sunk"`
}

// Snapshot is a read-only copy of the session state.
type Snapshot struct {
	Role          Role          `json:"role"`
	Mode          protocol.Mode `json:"mode"`
	Phase         Phase         `json:"phase"`
	Turn          Role          `json:"turn"`
	MyTurn        bool          `json:"my_turn"`
	Own           Grid          `json:"own"`
	Observed      Grid          `json:"observed"`
	Ships         []ShipStatus  `json:"ships"`
	Available     []ShipKind    `json:"available"`
	OpponentSunk  []ShipKind    `json:"opponent_sunk"`
	SelfReady     bool          `json:"self_ready"`
	OpponentReady bool          `json:"opponent_ready"`
	PeerJoined    bool          `json:"peer_joined"`
	Pending       bool          `json:"pending"`
	Over          bool          `json:"over"`
	Winner        Role          `json:"winner"`
	HasWinner     bool          `json:"has_winner"`
	Score         ScoreCard     `json:"score"`
	Log           []string      `json:"log"`
}

// Won reports whether the local player won a finished game.
func (snap Snapshot) Won() bool {
	return snap.HasWinner && snap.Winner == snap.Role
}

func (s *Session) Snapshot() Snapshot {
	snap := Snapshot{
		Role:          s.role,
		Mode:          s.mode,
		Phase:         s.phase,
		Turn:          s.turn,
		MyTurn:        s.MyTurn(),
		Own:           s.own,
		Observed:      s.observed,
		Available:     s.Available(),
		SelfReady:     s.selfReady,
		OpponentReady: s.opponentReady,
		PeerJoined:    s.peerJoined,
		Pending:       s.pending != nil,
		Over:          s.phase == PhaseGameOver,
		Winner:        s.winner,
		HasWinner:     s.hasWinner,
		Score:         s.score.Card(),
		Log:           s.log.Entries(),
	}
	for _, kind := range Kinds {
		if ship, ok := s.ships[kind]; ok {
			cells := make([]Point, len(ship.Cells))
			copy(cells, ship.Cells)
			snap.Ships = append(snap.Ships, ShipStatus{Kind: kind, Cells: cells, Remaining: ship.Remaining(), Sunk: ship.Sunk()})
		}
		if s.sunkOpponent[kind] {
			snap.OpponentSunk = append(snap.OpponentSunk, kind)
		}
	}
	return snap
}
