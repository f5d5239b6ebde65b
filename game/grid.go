package game

import (
	"bytes"
	"fmt"
	"strconv"
	"text/tabwriter"
)

// GridSize is the width and height of both grids.
const GridSize = 10

// Cell is the state of one grid cell.
type Cell int

const (
	Empty Cell = iota
	Ship
	Hit
	Miss
)

func (c Cell) String() string {
	switch c {
	case Ship:
		return "SHIP"
	case Hit:
		return "HIT"
	case Miss:
		return "MISS"
	default:
		return "EMPTY"
	}
}

// Point はグリッド上の座標。X が列、Y が行
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

func (p Point) InBounds() bool {
	return p.X >= 0 && p.X < GridSize && p.Y >= 0 && p.Y < GridSize
}

func (p Point) String() string {
	return fmt.Sprintf("(%d, %d)", p.X, p.Y)
}

// Grid is indexed [y][x]. It is a value type so snapshots copy it.
type Grid [GridSize][GridSize]Cell

func (g *Grid) At(p Point) Cell {
	return g[p.Y][p.X]
}

func (g *Grid) Set(p Point, c Cell) {
	g[p.Y][p.X] = c
}

// Count returns how many cells hold c.
func (g *Grid) Count(c Cell) int {
	n := 0
	for y := range g {
		for x := range g[y] {
			if g[y][x] == c {
				n++
			}
		}
	}
	return n
}

// String renders the grid with column and row numbers:
// S ship, X hit, O miss, ~ water.
func (g Grid) String() string {
	var buffer bytes.Buffer
	tw := tabwriter.NewWriter(&buffer, 3, 0, 1, ' ', 0)

	fmt.Fprint(tw, "\t")
	for x := 0; x < GridSize; x++ {
		fmt.Fprint(tw, strconv.Itoa(x)+"\t")
	}
	fmt.Fprint(tw, "\n")

	for y := 0; y < GridSize; y++ {
		fmt.Fprint(tw, strconv.Itoa(y)+"\t")
		for x := 0; x < GridSize; x++ {
			switch g[y][x] {
			case Ship:
				fmt.Fprint(tw, "S\t")
			case Hit:
				fmt.Fprint(tw, "X\t")
			case Miss:
				fmt.Fprint(tw, "O\t")
			default:
				fmt.Fprint(tw, "~\t")
			}
		}
		fmt.Fprint(tw, "\n")
	}
	tw.Flush()
	return buffer.String()
}
