package game

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustCoord(t *testing.T, s string) Coord {
	t.Helper()
	c, err := ParseCoord(s)
	require.NoError(t, err)
	return c
}

// placeFleet puts the whole catalog in the top-left rows, one ship per row.
func placeFleet(t *testing.T, b *Board) {
	t.Helper()
	for i, spec := range Catalog {
		err := b.Place(spec.Name, Coord{Row: i, Col: 0}, Horizontal, spec.Size)
		require.NoError(t, err)
	}
}

func TestCatalogTotals(t *testing.T) {
	sum := 0
	for _, spec := range Catalog {
		sum += spec.Size
	}
	assert.Equal(t, TotalShipCells, sum)
}

func TestPlace_Bounds(t *testing.T) {
	b := NewBoard()

	require.NoError(t, b.Place("Destroyer", mustCoord(t, "J9"), Horizontal, 2))

	err := b.Place("Cruiser", mustCoord(t, "A9"), Horizontal, 3)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of bounds")

	err = b.Place("Cruiser", mustCoord(t, "I1"), Vertical, 3)
	require.Error(t, err)
}

func TestPlace_OverlapIsAtomic(t *testing.T) {
	b := NewBoard()
	require.NoError(t, b.Place("Cruiser", mustCoord(t, "C3"), Horizontal, 3))

	// Crosses C4: must fail and leave the board untouched.
	err := b.Place("Submarine", mustCoord(t, "B4"), Vertical, 3)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "occupied")

	assert.Equal(t, 1, b.ShipCount())
	assert.Equal(t, 3, b.OccupiedCells())

	// The failed placement must not have written any cells outside the
	// overlap either.
	res, _ := b.FireAt(mustCoord(t, "B4"))
	assert.Equal(t, FireMiss, res)
}

func TestCanPlace(t *testing.T) {
	b := NewBoard()
	require.NoError(t, b.Place("Destroyer", mustCoord(t, "A1"), Horizontal, 2))

	assert.False(t, b.CanPlace(mustCoord(t, "A2"), Vertical, 3))
	assert.True(t, b.CanPlace(mustCoord(t, "B1"), Horizontal, 5))
	assert.False(t, b.CanPlace(mustCoord(t, "B7"), Horizontal, 5))
}

func TestFireAt(t *testing.T) {
	b := NewBoard()
	require.NoError(t, b.Place("Destroyer", mustCoord(t, "E5"), Horizontal, 2))

	res, _ := b.FireAt(mustCoord(t, "A1"))
	assert.Equal(t, FireMiss, res)

	res, _ = b.FireAt(mustCoord(t, "E5"))
	assert.Equal(t, FireHit, res)

	res, _ = b.FireAt(mustCoord(t, "E5"))
	assert.Equal(t, FireAlreadyShot, res)

	res, name := b.FireAt(mustCoord(t, "E6"))
	assert.Equal(t, FireSunk, res)
	assert.Equal(t, "Destroyer", name)

	res, _ = b.FireAt(mustCoord(t, "A1"))
	assert.Equal(t, FireAlreadyShot, res)
}

func TestAllSunk(t *testing.T) {
	b := NewBoard()
	assert.False(t, b.AllSunk(), "empty board is never sunk")

	placeFleet(t, b)
	assert.False(t, b.AllSunk())

	for i, spec := range Catalog {
		for j := range spec.Size {
			b.FireAt(Coord{Row: i, Col: j})
		}
	}
	assert.True(t, b.AllSunk())
	assert.Equal(t, TotalShipCells, b.HitCells())
}

func TestPlaceRandomly(t *testing.T) {
	for range 50 {
		b := NewBoard()
		b.PlaceRandomly()
		assert.Equal(t, len(Catalog), b.ShipCount())
		assert.Equal(t, TotalShipCells, b.OccupiedCells())
	}
}

func TestRenderOwn(t *testing.T) {
	b := NewBoard()
	require.NoError(t, b.Place("Destroyer", mustCoord(t, "A1"), Horizontal, 2))

	out := b.RenderOwn()
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	require.Len(t, lines, BoardSize+1)
	assert.Equal(t, "    1  2  3  4  5  6  7  8  9 10", lines[0])
	assert.Equal(t, "A  S S . . . . . . . .", lines[1])
	assert.Equal(t, "J  . . . . . . . . . .", lines[10])
}

func TestRenderGrid_HidesShips(t *testing.T) {
	b := NewBoard()
	require.NoError(t, b.Place("Cruiser", mustCoord(t, "B2"), Horizontal, 3))

	b.FireAt(mustCoord(t, "B2"))
	b.FireAt(mustCoord(t, "J10"))

	out := b.RenderGrid()
	assert.NotContains(t, out, "S", "tracking view never shows ships")
	assert.Contains(t, out, "X")
	assert.Contains(t, out, "o")

	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	assert.Equal(t, "B  . X . . . . . . . .", lines[2])
}

func TestParseOrientation(t *testing.T) {
	for in, want := range map[string]Orientation{"H": Horizontal, "h": Horizontal, "V": Vertical, " v ": Vertical} {
		got, err := ParseOrientation(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseOrientation("D")
	assert.Error(t, err)
}
