package game

import (
	"fmt"
	"math/rand/v2"
	"strings"
)

// BoardSize is the grid dimension (10x10).
const BoardSize = 10

// Cell is one grid square state, using the classic display runes.
type Cell byte

const (
	CellEmpty Cell = '.'
	CellShip  Cell = 'S'
	CellHit   Cell = 'X'
	CellMiss  Cell = 'o'
)

// Orientation of a ship placement.
type Orientation int

const (
	Horizontal Orientation = iota
	Vertical
)

// ParseOrientation accepts the protocol tokens H and V (case-insensitive).
func ParseOrientation(s string) (Orientation, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "H":
		return Horizontal, nil
	case "V":
		return Vertical, nil
	default:
		return 0, fmt.Errorf("invalid orientation %q", s)
	}
}

// ShipSpec is one catalog entry.
type ShipSpec struct {
	Name string
	Size int
}

// Catalog lists the fleet in placement order.
var Catalog = []ShipSpec{
	{"Carrier", 5},
	{"Battleship", 4},
	{"Cruiser", 3},
	{"Submarine", 3},
	{"Destroyer", 2},
}

// TotalShipCells is the sum of catalog ship sizes.
const TotalShipCells = 17

// Ship tracks one placed ship's unsunk cells.
type Ship struct {
	Name      string
	remaining map[Coord]struct{}
}

// FireResult classifies the outcome of a shot.
type FireResult int

const (
	FireMiss FireResult = iota
	FireHit
	FireSunk
	FireAlreadyShot
)

// Board holds one player's grid: the hidden grid with real ship positions
// and the tracking grid shown to the opponent (no ships, only hits/misses).
type Board struct {
	hidden  [BoardSize][BoardSize]Cell
	display [BoardSize][BoardSize]Cell
	ships   []*Ship
}

// NewBoard returns an empty board.
func NewBoard() *Board {
	b := &Board{}
	for r := range BoardSize {
		for c := range BoardSize {
			b.hidden[r][c] = CellEmpty
			b.display[r][c] = CellEmpty
		}
	}
	return b
}

// CanPlace reports whether a ship of the given size fits at c with the
// given orientation, fully in bounds and on empty water.
func (b *Board) CanPlace(c Coord, o Orientation, size int) bool {
	cells, ok := shipCells(c, o, size)
	if !ok {
		return false
	}
	for _, cell := range cells {
		if b.hidden[cell.Row][cell.Col] != CellEmpty {
			return false
		}
	}
	return true
}

// Place puts a named ship on the board. Placement is atomic: on error the
// board is unchanged.
func (b *Board) Place(name string, c Coord, o Orientation, size int) error {
	cells, ok := shipCells(c, o, size)
	if !ok {
		return fmt.Errorf("cannot place %s at %s: out of bounds", name, c)
	}
	for _, cell := range cells {
		if b.hidden[cell.Row][cell.Col] != CellEmpty {
			return fmt.Errorf("cannot place %s at %s: cell %s occupied", name, c, cell)
		}
	}

	ship := &Ship{Name: name, remaining: make(map[Coord]struct{}, size)}
	for _, cell := range cells {
		b.hidden[cell.Row][cell.Col] = CellShip
		ship.remaining[cell] = struct{}{}
	}
	b.ships = append(b.ships, ship)
	return nil
}

// PlaceRandomly places the whole catalog at random legal positions.
func (b *Board) PlaceRandomly() {
	for _, spec := range Catalog {
		for {
			c := Coord{Row: rand.IntN(BoardSize), Col: rand.IntN(BoardSize)}
			o := Orientation(rand.IntN(2))
			if b.CanPlace(c, o, spec.Size) {
				_ = b.Place(spec.Name, c, o, spec.Size)
				break
			}
		}
	}
}

// FireAt resolves a shot at c. For FireSunk the sunk ship's name is returned.
// An already revealed cell reports FireAlreadyShot and changes nothing.
func (b *Board) FireAt(c Coord) (FireResult, string) {
	switch b.hidden[c.Row][c.Col] {
	case CellShip:
		b.hidden[c.Row][c.Col] = CellHit
		b.display[c.Row][c.Col] = CellHit
		for _, ship := range b.ships {
			if _, ok := ship.remaining[c]; ok {
				delete(ship.remaining, c)
				if len(ship.remaining) == 0 {
					return FireSunk, ship.Name
				}
				break
			}
		}
		return FireHit, ""
	case CellEmpty:
		b.hidden[c.Row][c.Col] = CellMiss
		b.display[c.Row][c.Col] = CellMiss
		return FireMiss, ""
	default:
		return FireAlreadyShot, ""
	}
}

// AllSunk reports whether every placed ship has no remaining cells.
func (b *Board) AllSunk() bool {
	if len(b.ships) == 0 {
		return false
	}
	for _, ship := range b.ships {
		if len(ship.remaining) > 0 {
			return false
		}
	}
	return true
}

// ShipCount returns the number of placed ships.
func (b *Board) ShipCount() int {
	return len(b.ships)
}

// OccupiedCells counts cells holding a ship or a hit ship part.
func (b *Board) OccupiedCells() int {
	n := 0
	for r := range BoardSize {
		for c := range BoardSize {
			if b.hidden[r][c] == CellShip || b.hidden[r][c] == CellHit {
				n++
			}
		}
	}
	return n
}

// HitCells counts revealed hits on this board.
func (b *Board) HitCells() int {
	n := 0
	for r := range BoardSize {
		for c := range BoardSize {
			if b.hidden[r][c] == CellHit {
				n++
			}
		}
	}
	return n
}

// RenderOwn renders the owner's view with ships visible.
func (b *Board) RenderOwn() string {
	return render(&b.hidden)
}

// RenderGrid renders the tracking view shown to the opponent, hits and
// misses only.
func (b *Board) RenderGrid() string {
	return render(&b.display)
}

func render(grid *[BoardSize][BoardSize]Cell) string {
	var sb strings.Builder
	sb.WriteString("   ")
	for i := range BoardSize {
		if i > 0 {
			sb.WriteByte(' ')
		}
		fmt.Fprintf(&sb, "%2d", i+1)
	}
	sb.WriteByte('\n')
	for r := range BoardSize {
		fmt.Fprintf(&sb, "%-2c ", 'A'+rune(r))
		for c := range BoardSize {
			if c > 0 {
				sb.WriteByte(' ')
			}
			sb.WriteByte(byte(grid[r][c]))
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}

func shipCells(c Coord, o Orientation, size int) ([]Coord, bool) {
	if c.Row < 0 || c.Col < 0 {
		return nil, false
	}
	cells := make([]Coord, 0, size)
	for i := range size {
		cell := c
		if o == Horizontal {
			cell.Col += i
		} else {
			cell.Row += i
		}
		if cell.Row >= BoardSize || cell.Col >= BoardSize {
			return nil, false
		}
		cells = append(cells, cell)
	}
	return cells, true
}
