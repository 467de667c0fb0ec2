// Package search runs engine invocations in the background and reports their
// results on the protocol output.
package search

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/notnil/chess"
	"github.com/shallowred/shallowred/pkg/cache"
	"github.com/shallowred/shallowred/pkg/engine"
	srlog "github.com/shallowred/shallowred/pkg/log"
	"github.com/shallowred/shallowred/pkg/transcript"
)

// LineWriter writes protocol lines. A single call must be written atomically.
type LineWriter interface {
	WriteLines(lines ...string) error
}

// EngineFailure wraps an engine error or panic. It never escapes the search
// goroutine other than through Handle.Result.
type EngineFailure struct {
	Err error
}

func (e *EngineFailure) Error() string {
	return fmt.Sprintf("engine failure: %v", e.Err)
}

func (e *EngineFailure) Unwrap() error {
	return e.Err
}

// Request describes one search.
type Request struct {
	Position    *chess.Position
	Budget      time.Duration
	Depth       int
	MovesPlayed int
	// Infinite holds the bestmove line back until the search is cancelled.
	Infinite bool
}

// Result is what a finished search produced.
type Result struct {
	Outcome engine.Outcome
	Err     error
}

// Controller starts searches on an engine and reports each one's bestmove
// through a LineWriter, feeding the position cache and transcript on the way.
type Controller struct {
	engine     engine.Engine
	out        LineWriter
	cache      *cache.Handle
	transcript *transcript.Writer
}

// NewController creates a controller. cache and tr may be nil.
func NewController(eng engine.Engine, out LineWriter, c *cache.Handle, tr *transcript.Writer) *Controller {
	return &Controller{engine: eng, out: out, cache: c, transcript: tr}
}

// Handle is the session's side of a running search.
type Handle struct {
	cancel context.CancelFunc
	done   chan struct{}
	result Result
}

// Cancel asks the search to stop. It does not wait and is safe to call more
// than once.
func (h *Handle) Cancel() {
	h.cancel()
}

// Done is closed once the bestmove line has been written.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Finished reports whether Done is closed.
func (h *Handle) Finished() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the search has finished and returns its result.
func (h *Handle) Wait() Result {
	<-h.done
	return h.result
}

// Spawn starts req in a new goroutine and returns immediately. The goroutine
// performs exactly one engine call and writes exactly one bestmove line.
func (c *Controller) Spawn(req Request) *Handle {
	ctx, cancel := context.WithCancel(context.Background())
	h := &Handle{cancel: cancel, done: make(chan struct{})}

	if err := c.transcript.Write(transcript.Record{
		Kind:        transcript.KindSearchStart,
		FEN:         req.Position.String(),
		MovesPlayed: req.MovesPlayed,
		BudgetMS:    req.Budget.Milliseconds(),
		Depth:       req.Depth,
	}); err != nil {
		srlog.Warn("failed to record search start", "error", err)
	}
	srlog.Debug("search started", "budget", req.Budget, "depth", req.Depth, "infinite", req.Infinite)

	go func() {
		defer close(h.done)
		defer cancel()

		outcome, err := c.invoke(ctx, req)
		if req.Infinite && err == nil {
			<-ctx.Done()
		}
		h.result = Result{Outcome: outcome, Err: err}
		c.finish(h.result)
	}()
	return h
}

func (c *Controller) invoke(ctx context.Context, req Request) (outcome engine.Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			outcome = engine.Outcome{}
			err = &EngineFailure{Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	outcome, err = c.engine.Search(ctx, engine.Request{
		Position: req.Position,
		Budget:   req.Budget,
		Depth:    req.Depth,
		Cache:    c.cache,
		Progress: func(info engine.Info) {
			if err := c.out.WriteLines("info " + info.String()); err != nil {
				srlog.Warn("failed to write info line", "error", err)
			}
		},
	})
	if err != nil {
		return engine.Outcome{}, &EngineFailure{Err: err}
	}
	return outcome, nil
}

func (c *Controller) finish(res Result) {
	rec := transcript.Record{
		Kind:      transcript.KindSearchResult,
		BestMove:  res.Outcome.BestMove(),
		Score:     res.Outcome.Score,
		Depth:     res.Outcome.Depth,
		Nodes:     res.Outcome.Nodes,
		ElapsedMS: res.Outcome.Elapsed.Milliseconds(),
		Stopped:   res.Outcome.Stopped,
	}
	if res.Err != nil {
		rec.Error = res.Err.Error()
		srlog.Error("search failed", "error", res.Err)
	} else {
		srlog.Debug("search finished", "bestmove", rec.BestMove, "depth", rec.Depth, "nodes", rec.Nodes, "stopped", rec.Stopped)
	}
	if err := c.transcript.Write(rec); err != nil {
		srlog.Warn("failed to record search result", "error", err)
	}

	if err := c.out.WriteLines(BestMoveLine(res.Outcome)); err != nil {
		srlog.Error("failed to write bestmove", "error", err)
	}
}

// BestMoveLine renders the final line of a search.
func BestMoveLine(o engine.Outcome) string {
	var b strings.Builder
	b.WriteString("bestmove ")
	b.WriteString(o.BestMove())
	if o.Move != "" && o.Ponder != "" {
		b.WriteString(" ponder ")
		b.WriteString(o.Ponder)
	}
	return b.String()
}
