package game

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScore(t *testing.T) {
	s := Score{Hits: 3, Moves: 5}
	assert.Equal(t, 60.0, s.Accuracy())
	assert.Equal(t, 30000, s.BasePoints())
	assert.Equal(t, 30180, s.Total())

	assert.Equal(t, ScoreCard{Hits: 3, Moves: 5, Base: 30000, Accuracy: 60, Total: 30180}, s.Card())
}

func TestScoreEdgeCases(t *testing.T) {
	assert.Zero(t, Score{}.Accuracy())
	assert.Zero(t, Score{}.Total())

	third := Score{Hits: 1, Moves: 3}
	assert.Equal(t, 33.33, third.Accuracy())
	assert.Equal(t, 10033, third.Total())
}

func TestShipKinds(t *testing.T) {
	total := 0
	for _, k := range Kinds {
		total += k.Size()
		parsed, err := ParseShipKind(strings.ToLower(k.String()))
		require.NoError(t, err)
		assert.Equal(t, k, parsed)
	}
	assert.Equal(t, 17, total)

	_, err := ParseShipKind("Dinghy")
	assert.ErrorIs(t, err, ErrUnknownShip)
}

func TestShipCells(t *testing.T) {
	assert.Equal(t, []Point{{X: 3, Y: 4}, {X: 4, Y: 4}, {X: 5, Y: 4}}, ShipCells(Cruiser, Point{X: 3, Y: 4}, Horizontal))
	assert.Equal(t, []Point{{X: 3, Y: 4}, {X: 3, Y: 5}}, ShipCells(Destroyer, Point{X: 3, Y: 4}, Vertical))
	assert.Equal(t, Vertical, Horizontal.Rotate())
}

func TestEventLogKeepsNewest(t *testing.T) {
	var l EventLog
	for i := 1; i <= 7; i++ {
		l.Add("event %d", i)
	}
	entries := l.Entries()
	require.Len(t, entries, LogCapacity)
	assert.Equal(t, "event 3", entries[0])
	assert.Equal(t, "event 7", entries[LogCapacity-1])
}

func TestGridString(t *testing.T) {
	var g Grid
	g.Set(Point{X: 1, Y: 0}, Ship)
	g.Set(Point{X: 2, Y: 0}, Hit)
	g.Set(Point{X: 3, Y: 0}, Miss)

	lines := strings.Split(strings.TrimRight(g.String(), "\n"), "\n")
	require.Len(t, lines, GridSize+1)
	assert.Equal(t, strings.Fields(fmt.Sprintf("0 ~ S X O %s", strings.Repeat("~ ", 6))), strings.Fields(lines[1]))
}
