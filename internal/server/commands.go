package server

import (
	"fmt"
	"strings"

	"github.com/broadside-game/broadside/internal/game"
)

// parseUsername parses the mandatory first packet: USERNAME <name> [SOLO].
// Names are normalized to lower case; SOLO selects single-player practice.
func parseUsername(msg string) (name string, solo bool, err error) {
	fields := strings.Fields(msg)
	if len(fields) < 2 || len(fields) > 3 || !strings.EqualFold(fields[0], "USERNAME") {
		return "", false, fmt.Errorf("expected USERNAME <name>")
	}
	if len(fields) == 3 {
		if !strings.EqualFold(fields[2], "SOLO") {
			return "", false, fmt.Errorf("expected USERNAME <name> [SOLO]")
		}
		solo = true
	}

	name = strings.ToLower(fields[1])
	if len(name) > 24 {
		return "", false, fmt.Errorf("name too long (max 24)")
	}
	for _, r := range name {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') && r != '_' && r != '-' {
			return "", false, fmt.Errorf("name may contain letters, digits, '_' and '-' only")
		}
	}
	return name, solo, nil
}

// parseFire parses FIRE <coord>.
func parseFire(msg string) (game.Coord, error) {
	fields := strings.Fields(msg)
	if len(fields) != 2 || !strings.EqualFold(fields[0], "FIRE") {
		return game.Coord{}, fmt.Errorf("expected FIRE <coord>")
	}
	return game.ParseCoord(fields[1])
}

// placeCommand is a parsed PLACE <coord> <H|V> <shipname>.
type placeCommand struct {
	coord game.Coord
	o     game.Orientation
	ship  string
}

func parsePlace(msg string) (placeCommand, error) {
	fields := strings.Fields(msg)
	if len(fields) != 4 || !strings.EqualFold(fields[0], "PLACE") {
		return placeCommand{}, fmt.Errorf("expected PLACE <coord> <H|V> <shipname>")
	}
	coord, err := game.ParseCoord(fields[1])
	if err != nil {
		return placeCommand{}, err
	}
	o, err := game.ParseOrientation(fields[2])
	if err != nil {
		return placeCommand{}, err
	}
	return placeCommand{coord: coord, o: o, ship: fields[3]}, nil
}

// isQuit matches the in-band quit token, case-insensitive.
func isQuit(msg string) bool {
	return strings.EqualFold(strings.TrimSpace(msg), "quit")
}

// formatResult renders the primary fire-result line sent to the firer.
func formatResult(res game.FireResult, sunk string) string {
	switch res {
	case game.FireHit:
		return "RESULT HIT"
	case game.FireSunk:
		return "RESULT HIT SUNK " + strings.ToUpper(sunk)
	case game.FireMiss:
		return "RESULT MISS"
	default:
		return "RESULT ALREADY_SHOT"
	}
}
