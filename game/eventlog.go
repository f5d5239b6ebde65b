package game

import "fmt"

// LogCapacity is how many entries the event log keeps.
const LogCapacity = 5

// EventLog keeps the latest game events, newest last.
type EventLog struct {
	entries []string
}

func (l *EventLog) Add(format string, args ...interface{}) {
	l.entries = append(l.entries, fmt.Sprintf(format, args...))
	if len(l.entries) > LogCapacity {
		l.entries = l.entries[len(l.entries)-LogCapacity:]
	}
}

// Entries returns a copy of the log.
func (l *EventLog) Entries() []string {
	out := make([]string, len(l.entries))
	copy(out, l.entries)
	return out
}
