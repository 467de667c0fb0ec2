// Package builtin is the default in-process decision engine: iterative
// deepening alpha-beta over notnil/chess with a capture-only quiescence
// search, backed by the shared transposition cache.
package builtin

import (
	"context"
	"sort"
	"time"

	"github.com/notnil/chess"
	"github.com/shallowred/shallowred/pkg/cache"
	"github.com/shallowred/shallowred/pkg/engine"
)

const (
	// DefaultMaxDepth bounds iterative deepening when the request sets no depth.
	DefaultMaxDepth = 64

	mateScore     = 100000
	mateThreshold = mateScore - 1000
	infinity      = mateScore + 1
	quiescenceCap = 4
	nodesPerCheck = 1024
)

// Config tunes the searcher.
type Config struct {
	MaxDepth int
}

// Searcher implements engine.Engine. A Searcher holds no per-search state and
// may be shared by concurrent searches.
type Searcher struct {
	maxDepth int
}

// New returns a searcher.
func New(cfg Config) *Searcher {
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = DefaultMaxDepth
	}
	return &Searcher{maxDepth: cfg.MaxDepth}
}

var _ engine.Engine = (*Searcher)(nil)

type run struct {
	ctx      context.Context
	cache    *cache.Handle
	start    time.Time
	deadline time.Time
	nodes    int64
	aborted  bool
}

func (r *run) checkAbort() bool {
	if r.aborted {
		return true
	}
	if r.nodes%nodesPerCheck != 0 {
		return false
	}
	if r.ctx.Err() != nil || (!r.deadline.IsZero() && time.Now().After(r.deadline)) {
		r.aborted = true
	}
	return r.aborted
}

// Search runs iterative deepening until the budget, the depth limit or ctx
// ends it, and returns the best move of the deepest completed iteration.
func (s *Searcher) Search(ctx context.Context, req engine.Request) (engine.Outcome, error) {
	r := &run{ctx: ctx, cache: req.Cache, start: time.Now()}
	if req.Budget > 0 {
		r.deadline = r.start.Add(req.Budget)
	}
	limit := s.maxDepth
	if req.Depth > 0 && req.Depth < limit {
		limit = req.Depth
	}

	pos := req.Position
	moves := r.orderMoves(pos, pos.ValidMoves(), "")
	if len(moves) == 0 {
		return engine.Outcome{Elapsed: time.Since(r.start)}, nil
	}

	var notation chess.UCINotation
	out := engine.Outcome{Move: notation.Encode(pos, moves[0])}
	for depth := 1; depth <= limit; depth++ {
		best, score, ok := r.root(pos, moves, depth)
		if !ok {
			break
		}
		out.Move = notation.Encode(pos, best)
		out.Score = score
		out.Depth = depth
		out.Nodes = r.nodes
		out.Elapsed = time.Since(r.start)

		info := engine.Info{Depth: depth, Score: score, Nodes: r.nodes, Elapsed: out.Elapsed}
		info.Mate = mateIn(score)
		info.PV = r.principalVariation(pos, best, depth)
		req.Report(info)
		if len(info.PV) > 1 {
			out.Ponder = info.PV[1]
		}

		// Put the best move first so the next iteration searches it first.
		moves = promote(moves, best)
		if info.Mate != 0 {
			break
		}
		// The next iteration would take longer than what is left.
		if !r.deadline.IsZero() && time.Since(r.start) > req.Budget/2 {
			break
		}
	}
	out.Nodes = r.nodes
	out.Elapsed = time.Since(r.start)
	out.Stopped = ctx.Err() != nil
	return out, nil
}

func (r *run) root(pos *chess.Position, moves []*chess.Move, depth int) (*chess.Move, int, bool) {
	alpha, beta := -infinity, infinity
	var best *chess.Move
	for _, m := range moves {
		score := -r.negamax(pos.Update(m), depth-1, -beta, -alpha, 1)
		if r.aborted {
			return nil, 0, false
		}
		if best == nil || score > alpha {
			alpha = score
			best = m
		}
	}
	r.store(pos, depth, alpha, cache.BoundExact, best)
	return best, alpha, true
}

func (r *run) negamax(pos *chess.Position, depth, alpha, beta, ply int) int {
	r.nodes++
	if r.checkAbort() {
		return 0
	}

	moves := pos.ValidMoves()
	if len(moves) == 0 {
		if pos.Status() == chess.Checkmate {
			return -mateScore + ply
		}
		return 0
	}
	if depth <= 0 {
		return r.quiesce(pos, alpha, beta, quiescenceCap)
	}

	origAlpha := alpha
	hashMove := ""
	if r.cache != nil {
		if e, ok := r.cache.Lookup(cache.KeyOf(pos)); ok {
			hashMove = e.Move
			if e.Depth >= depth {
				switch e.Bound {
				case cache.BoundExact:
					return e.Score
				case cache.BoundLower:
					alpha = max(alpha, e.Score)
				case cache.BoundUpper:
					beta = min(beta, e.Score)
				}
				if alpha >= beta {
					return e.Score
				}
			}
		}
	}

	var best *chess.Move
	bestScore := -infinity
	for _, m := range r.orderMoves(pos, moves, hashMove) {
		score := -r.negamax(pos.Update(m), depth-1, -beta, -alpha, ply+1)
		if r.aborted {
			return 0
		}
		if score > bestScore {
			bestScore, best = score, m
		}
		alpha = max(alpha, score)
		if alpha >= beta {
			break
		}
	}

	bound := cache.BoundExact
	switch {
	case bestScore <= origAlpha:
		bound = cache.BoundUpper
	case bestScore >= beta:
		bound = cache.BoundLower
	}
	r.store(pos, depth, bestScore, bound, best)
	return bestScore
}

func (r *run) quiesce(pos *chess.Position, alpha, beta, depth int) int {
	r.nodes++
	if r.checkAbort() {
		return 0
	}
	stand := evaluate(pos)
	if stand >= beta {
		return beta
	}
	alpha = max(alpha, stand)
	if depth == 0 {
		return alpha
	}
	for _, m := range r.orderMoves(pos, pos.ValidMoves(), "") {
		if !m.HasTag(chess.Capture) && m.Promo() == chess.NoPieceType {
			continue
		}
		score := -r.quiesce(pos.Update(m), -beta, -alpha, depth-1)
		if r.aborted {
			return 0
		}
		if score >= beta {
			return beta
		}
		alpha = max(alpha, score)
	}
	return alpha
}

func (r *run) store(pos *chess.Position, depth, score int, bound cache.Bound, best *chess.Move) {
	if r.cache == nil || best == nil {
		return
	}
	var notation chess.UCINotation
	r.cache.Store(cache.Entry{
		Key:   cache.KeyOf(pos),
		Depth: depth,
		Score: score,
		Bound: bound,
		Move:  notation.Encode(pos, best),
	})
}

// orderMoves sorts the hash move first, then captures by most valuable victim
// and least valuable attacker, then promotions.
func (r *run) orderMoves(pos *chess.Position, moves []*chess.Move, hashMove string) []*chess.Move {
	var notation chess.UCINotation
	board := pos.Board()
	ordered := make([]*chess.Move, len(moves))
	copy(ordered, moves)
	weight := make(map[*chess.Move]int, len(moves))
	for _, m := range ordered {
		w := 0
		if hashMove != "" && notation.Encode(pos, m) == hashMove {
			w = 1 << 20
		}
		if m.HasTag(chess.Capture) {
			victim := board.Piece(m.S2()).Type()
			if m.HasTag(chess.EnPassant) {
				victim = chess.Pawn
			}
			w += 10*pieceValue(victim) - pieceValue(board.Piece(m.S1()).Type())/10 + 10000
		}
		if m.Promo() != chess.NoPieceType {
			w += pieceValue(m.Promo())
		}
		weight[m] = w
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return weight[ordered[i]] > weight[ordered[j]]
	})
	return ordered
}

// principalVariation follows cached best moves from the root.
func (r *run) principalVariation(pos *chess.Position, best *chess.Move, depth int) []string {
	var notation chess.UCINotation
	pv := []string{notation.Encode(pos, best)}
	if r.cache == nil {
		return pv
	}
	cur := pos.Update(best)
	for len(pv) < depth {
		e, ok := r.cache.Lookup(cache.KeyOf(cur))
		if !ok || e.Move == "" {
			break
		}
		var next *chess.Move
		for _, m := range cur.ValidMoves() {
			if notation.Encode(cur, m) == e.Move {
				next = m
				break
			}
		}
		if next == nil {
			break
		}
		pv = append(pv, e.Move)
		cur = cur.Update(next)
	}
	return pv
}

func promote(moves []*chess.Move, best *chess.Move) []*chess.Move {
	out := make([]*chess.Move, 0, len(moves))
	out = append(out, best)
	for _, m := range moves {
		if m != best {
			out = append(out, m)
		}
	}
	return out
}

// mateIn converts a score to UCI "mate N" moves, or 0 when it is not a mate.
func mateIn(score int) int {
	switch {
	case score > mateThreshold:
		return (mateScore - score + 1) / 2
	case score < -mateThreshold:
		return -(mateScore + score + 1) / 2
	}
	return 0
}
