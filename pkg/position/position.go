// Package position tracks the authoritative game position of a session and
// applies UCI move lists to it.
package position

import (
	"fmt"
	"strings"

	"github.com/notnil/chess"
)

const (
	tokenStartPos = "startpos"
	tokenMoves    = "moves"
	tokenFEN      = "fen"
)

// IllegalMoveError reports a move token that does not resolve to a legal move
// in the position it was applied to.
type IllegalMoveError struct {
	Move string
	FEN  string
}

func (e *IllegalMoveError) Error() string {
	return fmt.Sprintf("illegal move %q in position %q", e.Move, e.FEN)
}

// Tracker owns the current position. It is not safe for concurrent use; the
// command loop is its only caller and hands out copies via Snapshot.
type Tracker struct {
	pos *chess.Position
}

// NewTracker returns a tracker set to the standard starting position.
func NewTracker() *Tracker {
	return &Tracker{pos: chess.StartingPosition()}
}

// Reset returns the tracker to the standard starting position.
func (t *Tracker) Reset() {
	t.pos = chess.StartingPosition()
}

// FEN returns the current position in Forsyth-Edwards notation.
func (t *Tracker) FEN() string {
	return t.pos.String()
}

// SideToMove returns the colour whose turn it is.
func (t *Tracker) SideToMove() chess.Color {
	return t.pos.Turn()
}

// Snapshot returns an independent copy of the current position that may be
// handed to another goroutine.
func (t *Tracker) Snapshot() *chess.Position {
	pos, err := ParseFEN(t.pos.String())
	if err != nil {
		// A position we produced always re-parses.
		panic(fmt.Sprintf("position: snapshot of %q failed: %v", t.pos.String(), err))
	}
	return pos
}

// Load replaces the position wholesale with the given FEN.
func (t *Tracker) Load(fen string) error {
	pos, err := ParseFEN(fen)
	if err != nil {
		return err
	}
	t.pos = pos
	return nil
}

// Apply applies tokens from a "position" command left to right. "startpos"
// resets the board, "moves" is a separator, "fen" consumes the following
// fields up to "moves", and every other token must be a legal move in UCI
// notation. Apply is atomic: on error the tracker is left unchanged.
func (t *Tracker) Apply(tokens []string) error {
	pos := t.pos
	for i := 0; i < len(tokens); i++ {
		switch tok := tokens[i]; tok {
		case tokenStartPos:
			pos = chess.StartingPosition()
		case tokenMoves:
		case tokenFEN:
			end := i + 1
			for end < len(tokens) && tokens[end] != tokenMoves {
				end++
			}
			loaded, err := ParseFEN(strings.Join(tokens[i+1:end], " "))
			if err != nil {
				return err
			}
			pos = loaded
			i = end - 1
		default:
			move, err := ResolveMove(pos, tok)
			if err != nil {
				return err
			}
			pos = pos.Update(move)
		}
	}
	t.pos = pos
	return nil
}

// ParseFEN decodes a FEN string into a position.
func ParseFEN(fen string) (*chess.Position, error) {
	fen = strings.TrimSpace(fen)
	if fen == "" {
		return nil, fmt.Errorf("empty fen")
	}
	opt, err := chess.FEN(fen)
	if err != nil {
		return nil, fmt.Errorf("invalid fen %q: %w", fen, err)
	}
	return chess.NewGame(opt).Position(), nil
}

// ResolveMove finds the legal move in pos whose UCI encoding is token.
func ResolveMove(pos *chess.Position, token string) (*chess.Move, error) {
	want := strings.ToLower(token)
	var notation chess.UCINotation
	for _, m := range pos.ValidMoves() {
		if notation.Encode(pos, m) == want {
			return m, nil
		}
	}
	return nil, &IllegalMoveError{Move: token, FEN: pos.String()}
}
