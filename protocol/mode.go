package protocol

// Mode selects how session payloads travel between the two players.
type Mode int

const (
	// Relayed payloads go through a broker wrapped in MESSAGE and come back
	// as MESSAGE_FROM_HOST / MESSAGE_FROM_CLIENT.
	Relayed Mode = iota
	// Direct payloads are written bare on a peer-to-peer connection.
	Direct
)

func (m Mode) String() string {
	if m == Direct {
		return "direct"
	}
	return "relayed"
}

// ParseMode accepts "direct" or "relayed"; anything else is relayed.
func ParseMode(s string) Mode {
	if s == "direct" {
		return Direct
	}
	return Relayed
}
