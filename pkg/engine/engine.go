// Package engine defines the contract between the session controller and a
// decision engine.
package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/notnil/chess"
	"github.com/shallowred/shallowred/pkg/cache"
)

// NullMove is the UCI token sent when there is no move to play.
const NullMove = "0000"

// Engine searches a position and returns the move it would play.
//
// Search must return soon after ctx is cancelled, with the best move found so
// far. The request's Budget is a soft deadline the engine should honour on
// its own.
type Engine interface {
	Search(ctx context.Context, req Request) (Outcome, error)
}

// Request carries everything one search needs. Position is owned by the
// search for its lifetime.
type Request struct {
	Position *chess.Position
	// Budget is the time allotted to the search; zero means search until
	// cancelled or until Depth is reached.
	Budget time.Duration
	// Depth limits the nominal search depth; zero means the engine default.
	Depth int
	// Cache is the shared transposition cache; nil disables caching.
	Cache *cache.Handle
	// Progress receives intermediate results; nil discards them.
	Progress func(Info)
}

// Report forwards info to the request's progress callback if there is one.
func (r Request) Report(info Info) {
	if r.Progress != nil {
		r.Progress(info)
	}
}

// Info is an intermediate search report.
type Info struct {
	Depth   int
	Score   int
	Mate    int
	Nodes   int64
	Elapsed time.Duration
	PV      []string
}

// String renders info as the body of a UCI "info" line.
func (i Info) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "depth %d", i.Depth)
	if i.Mate != 0 {
		fmt.Fprintf(&b, " score mate %d", i.Mate)
	} else {
		fmt.Fprintf(&b, " score cp %d", i.Score)
	}
	fmt.Fprintf(&b, " nodes %d time %d", i.Nodes, i.Elapsed.Milliseconds())
	if len(i.PV) > 0 {
		b.WriteString(" pv ")
		b.WriteString(strings.Join(i.PV, " "))
	}
	return b.String()
}

// Outcome is the result of one search.
type Outcome struct {
	// Move is the chosen move in UCI notation; empty when the side to move
	// has no legal move.
	Move    string
	Ponder  string
	Score   int
	Depth   int
	Nodes   int64
	Elapsed time.Duration
	// Stopped is set when the search ended because ctx was cancelled.
	Stopped bool
}

// BestMove returns Move, or NullMove when there is none.
func (o Outcome) BestMove() string {
	if o.Move == "" {
		return NullMove
	}
	return o.Move
}
