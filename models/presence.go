package models

import "time"

// Presence is what Redis keeps for one live broker connection.
type Presence struct {
	Addr        string    `json:"addr"`
	Room        string    `json:"room,omitempty"`
	Role        string    `json:"role,omitempty"`
	ConnectedAt time.Time `json:"connected_at"`
}
