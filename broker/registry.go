package broker

import (
	"errors"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"

	"fleetserver/connection"
	"fleetserver/protocol"
)

// MaxRoomNameLength is the longest accepted room name in bytes.
const MaxRoomNameLength = 64

// Registry errors. Their text is the reason sent back in ERROR replies.
var (
	ErrRoomExists      = errors.New("name in use")
	ErrRoomNotFound    = errors.New("Room not found")
	ErrRoomFull        = errors.New("Room already has a client")
	ErrNotInRoom       = errors.New("Not in a room")
	ErrAlreadyInRoom   = errors.New("Already in a room")
	ErrInvalidRoomName = errors.New("Invalid room name")
	ErrNoOpponent      = errors.New("No opponent in room")
)

// Peer is one broker connection.
type Peer struct {
	ID   string
	Addr string
	conn connection.Conn
}

func NewPeer(id string, conn connection.Conn) *Peer {
	return &Peer{ID: id, Addr: conn.RemoteAddr(), conn: conn}
}

func (p *Peer) Send(cmd protocol.Command) error {
	return p.conn.WriteLine(cmd.Encode())
}

type Room struct {
	Name      string
	Host      *Peer
	Client    *Peer
	CreatedAt time.Time
}

// RoomInfo is an immutable view of a room.
type RoomInfo struct {
	Name       string    `json:"name"`
	HostAddr   string    `json:"host_addr"`
	ClientAddr string    `json:"client_addr,omitempty"`
	Open       bool      `json:"open"`
	CreatedAt  time.Time `json:"created_at"`
}

// Departure describes what Leave changed.
type Departure struct {
	Room    string
	WasHost bool
	// Notify is the remaining occupant, nil if the room was empty otherwise.
	Notify *Peer
}

// Registry maps room names to rooms. Every method is atomic.
type Registry struct {
	mu    sync.Mutex
	rooms map[string]*Room
	seats map[*Peer]string
	now   func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		rooms: make(map[string]*Room),
		seats: make(map[*Peer]string),
		now:   time.Now,
	}
}

// ValidateRoomName accepts a single non-empty token without commas.
func ValidateRoomName(name string) error {
	if name == "" || len(name) > MaxRoomNameLength {
		return ErrInvalidRoomName
	}
	if strings.ContainsRune(name, ',') || strings.IndexFunc(name, unicode.IsSpace) >= 0 {
		return ErrInvalidRoomName
	}
	return nil
}

// Create registers a room with host as its host.
func (r *Registry) Create(name string, host *Peer) error {
	if err := ValidateRoomName(name); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, seated := r.seats[host]; seated {
		return ErrAlreadyInRoom
	}
	if _, exists := r.rooms[name]; exists {
		return ErrRoomExists
	}
	r.rooms[name] = &Room{Name: name, Host: host, CreatedAt: r.now()}
	r.seats[host] = name
	return nil
}

// Join binds client to the free slot of a room and returns the room's host.
func (r *Registry) Join(name string, client *Peer) (*Peer, error) {
	if err := ValidateRoomName(name); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, seated := r.seats[client]; seated {
		return nil, ErrAlreadyInRoom
	}
	room, ok := r.rooms[name]
	if !ok {
		return nil, ErrRoomNotFound
	}
	if room.Client != nil {
		return nil, ErrRoomFull
	}
	room.Client = client
	r.seats[client] = name
	return room.Host, nil
}

// Opponent returns the relay target for a message from p and whether p is
// the host of its room.
func (r *Registry) Opponent(p *Peer) (*Peer, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	name, ok := r.seats[p]
	if !ok {
		return nil, false, ErrNotInRoom
	}
	room := r.rooms[name]
	if room.Host == p {
		if room.Client == nil {
			return nil, true, ErrNoOpponent
		}
		return room.Client, true, nil
	}
	return room.Host, false, nil
}

// Leave removes p from its room. A leaving host deletes the room and unseats
// the client; a leaving client frees the slot.
func (r *Registry) Leave(p *Peer) (Departure, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	name, ok := r.seats[p]
	if !ok {
		return Departure{}, false
	}
	delete(r.seats, p)

	room := r.rooms[name]
	if room.Host == p {
		delete(r.rooms, name)
		if room.Client != nil {
			delete(r.seats, room.Client)
		}
		return Departure{Room: name, WasHost: true, Notify: room.Client}, true
	}
	room.Client = nil
	return Departure{Room: name, Notify: room.Host}, true
}

// OpenRooms lists the rooms still waiting for a client, sorted by name.
func (r *Registry) OpenRooms() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.rooms))
	for name, room := range r.rooms {
		if room.Client == nil {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Rooms returns a snapshot of every room, sorted by name.
func (r *Registry) Rooms() []RoomInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	infos := make([]RoomInfo, 0, len(r.rooms))
	for _, room := range r.rooms {
		info := RoomInfo{
			Name:      room.Name,
			HostAddr:  room.Host.Addr,
			Open:      room.Client == nil,
			CreatedAt: room.CreatedAt,
		}
		if room.Client != nil {
			info.ClientAddr = room.Client.Addr
		}
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms)
}
