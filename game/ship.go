package game

import (
	"fmt"
	"strings"
)

// ShipKind identifies one of the five ships. Every fleet has exactly one of each.
type ShipKind int

const (
	Carrier ShipKind = iota
	Battleship
	Cruiser
	Submarine
	Destroyer
)

// Kinds lists every ship kind in placement order.
var Kinds = []ShipKind{Carrier, Battleship, Cruiser, Submarine, Destroyer}

var shipSizes = map[ShipKind]int{
	Carrier:    5,
	Battleship: 4,
	Cruiser:    3,
	Submarine:  3,
	Destroyer:  2,
}

var shipNames = map[ShipKind]string{
	Carrier:    "Carrier",
	Battleship: "Battleship",
	Cruiser:    "Cruiser",
	Submarine:  "Submarine",
	Destroyer:  "Destroyer",
}

func (k ShipKind) Size() int { return shipSizes[k] }

func (k ShipKind) String() string {
	if name, ok := shipNames[k]; ok {
		return name
	}
	return fmt.Sprintf("ShipKind(%d)", int(k))
}

// ParseShipKind accepts the wire name of a kind, case-insensitively.
func ParseShipKind(s string) (ShipKind, error) {
	for kind, name := range shipNames {
		if strings.EqualFold(name, s) {
			return kind, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownShip, s)
}

type Orientation int

const (
	Horizontal Orientation = iota
	Vertical
)

func (o Orientation) String() string {
	if o == Vertical {
		return "vertical"
	}
	return "horizontal"
}

// Rotate returns the other orientation.
func (o Orientation) Rotate() Orientation {
	if o == Vertical {
		return Horizontal
	}
	return Vertical
}

// ShipCells lists the cells a ship of kind would occupy from anchor, in order.
// Horizontal ships grow towards +X, vertical ones towards +Y. The result is not
// bounds checked.
func ShipCells(kind ShipKind, anchor Point, o Orientation) []Point {
	cells := make([]Point, kind.Size())
	for i := range cells {
		if o == Vertical {
			cells[i] = Point{X: anchor.X, Y: anchor.Y + i}
		} else {
			cells[i] = Point{X: anchor.X + i, Y: anchor.Y}
		}
	}
	return cells
}

// PlacedShip is a ship on the own grid together with its not yet hit cells.
type PlacedShip struct {
	Kind      ShipKind
	Cells     []Point
	remaining map[Point]struct{}
}

func newPlacedShip(kind ShipKind, cells []Point) *PlacedShip {
	remaining := make(map[Point]struct{}, len(cells))
	for _, c := range cells {
		remaining[c] = struct{}{}
	}
	return &PlacedShip{Kind: kind, Cells: cells, remaining: remaining}
}

func (s *PlacedShip) Remaining() int { return len(s.remaining) }

func (s *PlacedShip) Sunk() bool { return len(s.remaining) == 0 }

// strike removes p from the remaining cells and reports whether it was there.
func (s *PlacedShip) strike(p Point) bool {
	if _, ok := s.remaining[p]; !ok {
		return false
	}
	delete(s.remaining, p)
	return true
}
