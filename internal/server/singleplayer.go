package server

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/broadside-game/broadside/internal/game"
)

// RunSinglePlayer drives the practice mode: the server places its fleet
// randomly and the client fires until the fleet is sunk or the client quits.
// There is no turn clock; the session ends when the connection does.
func RunSinglePlayer(ctx context.Context, ep *Endpoint) {
	board := game.NewBoard()
	board.PlaceRandomly()

	slog.Info("single-player game started", "player", ep.Name())
	_ = ep.SendGame("WELCOME")

	moves := 0
	for {
		if err := ep.SendGame("GRID\n" + board.RenderGrid() + "\n"); err != nil {
			return
		}
		_ = ep.SendGame("READY")

		msg, err := ep.RecvGame(ctx)
		if err != nil {
			ep.Close("single-player receive failed")
			return
		}

		if isQuit(msg) {
			_ = ep.SendGame("BYE")
			ep.Close("quit")
			return
		}

		coord, err := parseFire(msg)
		if err != nil {
			_ = ep.SendGame("ERROR " + err.Error())
			continue
		}

		res, sunk := board.FireAt(coord)
		if res == game.FireAlreadyShot {
			_ = ep.SendGame("RESULT ALREADY_SHOT")
			continue
		}
		moves++
		_ = ep.SendGame(formatResult(res, sunk))

		if res == game.FireSunk && board.AllSunk() {
			_ = ep.SendGame("GRID\n" + board.RenderGrid() + "\n")
			_ = ep.SendGame(fmt.Sprintf("WIN %d", moves))
			slog.Info("single-player game won", "player", ep.Name(), "moves", moves)
			ep.Close("single-player game over")
			return
		}
	}
}
