package game

import (
	"fmt"
	"strconv"
	"strings"
)

// Coord is a zero-based board position.
type Coord struct {
	Row, Col int
}

// ParseCoord converts protocol notation like "B5" into a zero-based Coord.
// The row is a letter A..J (case-insensitive), the column 1..10 decimal.
func ParseCoord(s string) (Coord, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if len(s) < 2 {
		return Coord{}, fmt.Errorf("coordinate %q too short", s)
	}

	rowLetter := s[0]
	if rowLetter < 'A' || rowLetter > 'Z' {
		return Coord{}, fmt.Errorf("invalid coordinate format %q", s)
	}
	col, err := strconv.Atoi(s[1:])
	if err != nil {
		return Coord{}, fmt.Errorf("invalid coordinate format %q", s)
	}

	c := Coord{Row: int(rowLetter - 'A'), Col: col - 1}
	if c.Row >= BoardSize || c.Col < 0 || c.Col >= BoardSize {
		return Coord{}, fmt.Errorf("coordinate %q out of bounds", s)
	}
	return c, nil
}

// String renders the coordinate back into protocol notation.
func (c Coord) String() string {
	return fmt.Sprintf("%c%d", 'A'+rune(c.Row), c.Col+1)
}
