// Package timecontrol turns the remaining clock into a per-move thinking budget.
package timecontrol

import "time"

const (
	// ExpectedGameMoves is the nominal length of a game in moves for one side.
	ExpectedGameMoves = 45
	// MinMovesLeft is the pacing floor: the clock is always split over at
	// least this many future moves, however long the game has run.
	MinMovesLeft = 10
	// MinBudget is the smallest budget ever handed to a search.
	MinBudget = time.Second
)

// Allocate returns the thinking time for the next move given how many moves
// this session has already played and how much time is left on our clock.
func Allocate(movesPlayed int, remaining time.Duration) time.Duration {
	if movesPlayed < 0 {
		movesPlayed = 0
	}
	if remaining < 0 {
		remaining = 0
	}
	movesLeft := max(ExpectedGameMoves-movesPlayed, MinMovesLeft)
	return max(remaining/time.Duration(movesLeft), MinBudget)
}
