// Package uci implements the command side of the Universal Chess Interface:
// it reads GUI commands, keeps the game state and drives background searches.
package uci

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/notnil/chess"
	"github.com/shallowred/shallowred/pkg/cache"
	srlog "github.com/shallowred/shallowred/pkg/log"
	"github.com/shallowred/shallowred/pkg/position"
	"github.com/shallowred/shallowred/pkg/search"
	"github.com/shallowred/shallowred/pkg/timecontrol"
	"github.com/shallowred/shallowred/pkg/transcript"
)

// Hash option bounds, in megabytes. One megabyte buys 1024 cache entries.
const (
	DefaultHashMB  = 1024
	MaxHashMB      = 1 << 16
	entriesPerMB   = 1024
	maxLineLength  = 1024 * 1024
	initialLineBuf = 4 * 1024
)

// ShutdownGrace bounds how long quit waits for a cancelled search.
var ShutdownGrace = 5 * time.Second

// Options configures a Session.
type Options struct {
	Name       string
	Version    string
	Cache      *cache.Handle
	Transcript *transcript.Writer
}

// Reply is the synchronous result of one command.
type Reply struct {
	Lines []string
	Quit  bool
}

// Session owns the game state. It is driven by a single goroutine; searches
// it spawns only see a copy of the position.
type Session struct {
	tracker     *position.Tracker
	movesPlayed int
	active      *search.Handle

	controller *search.Controller
	out        search.LineWriter
	cache      *cache.Handle
	transcript *transcript.Writer
	name       string
	version    string

	// awaitingState is set after a bare debuginternal; the next line is a FEN.
	awaitingState bool
}

// NewSession returns a session at the starting position with no search running.
func NewSession(controller *search.Controller, out search.LineWriter, opts Options) *Session {
	return &Session{
		tracker:    position.NewTracker(),
		controller: controller,
		out:        out,
		cache:      opts.Cache,
		transcript: opts.Transcript,
		name:       opts.Name,
		version:    opts.Version,
	}
}

// MovesPlayed is the number of go commands since the last uci or ucinewgame.
func (s *Session) MovesPlayed() int {
	return s.movesPlayed
}

// FEN returns the current position.
func (s *Session) FEN() string {
	return s.tracker.FEN()
}

// Searching reports whether a search may still be outstanding.
func (s *Session) Searching() bool {
	s.reap()
	return s.active != nil
}

// Run reads commands from r until quit, end of input or ctx is done. End of
// input is treated as quit. Malformed commands are logged and skipped.
func (s *Session) Run(ctx context.Context, r io.Reader) error {
	done := make(chan struct{})
	defer close(done)
	lines, readErr := readLines(r, done)
	for {
		select {
		case <-ctx.Done():
			s.shutdown(ctx)
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				s.shutdown(ctx)
				if err := <-readErr; err != nil {
					return fmt.Errorf("failed to read commands: %w", err)
				}
				return nil
			}
			reply, err := s.Handle(ctx, line)
			if err != nil {
				srlog.Warn("command rejected", "error", err)
			}
			if err := s.out.WriteLines(reply.Lines...); err != nil {
				s.shutdown(ctx)
				return err
			}
			if reply.Quit {
				return nil
			}
		}
	}
}

// readLines scans r on its own goroutine so that Run can watch ctx while no
// input arrives. The goroutine exits at the end of r, or at its next line once
// done is closed; a read already blocked in r cannot be interrupted.
func readLines(r io.Reader, done <-chan struct{}) (<-chan string, <-chan error) {
	lines := make(chan string)
	errc := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, initialLineBuf), maxLineLength)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-done:
				return
			}
		}
		errc <- scanner.Err()
	}()
	return lines, errc
}

// Handle executes one input line. The returned error is always recoverable;
// the session stays usable after it.
func (s *Session) Handle(ctx context.Context, line string) (Reply, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return Reply{}, nil
	}
	srlog.Debug("received", "line", line)
	if err := s.transcript.Received(line); err != nil {
		srlog.Warn("failed to record received line", "error", err)
	}
	s.reap()

	if s.awaitingState {
		s.awaitingState = false
		return Reply{}, s.loadState(line)
	}

	cmd, ok := ParseCommand(line)
	if !ok {
		return Reply{}, nil
	}

	switch cmd.Kind {
	case Handshake:
		s.movesPlayed = 0
		return Reply{Lines: []string{
			fmt.Sprintf("id name %s %s", s.name, s.version),
			"uciok",
		}}, nil

	case ReadyCheck:
		return Reply{Lines: []string{"readyok"}}, nil

	case NewGame:
		s.tracker.Reset()
		s.movesPlayed = 0
		if s.cache != nil {
			s.cache.Clear()
		}
		return Reply{}, nil

	case SetPosition:
		if err := s.tracker.Apply(cmd.Args); err != nil {
			return Reply{}, fmt.Errorf("position rejected: %w", err)
		}
		return Reply{}, nil

	case BeginThinking:
		return Reply{}, s.beginThinking(ctx, cmd.Args)

	case CancelThinking:
		if s.active != nil {
			s.active.Cancel()
		}
		return Reply{}, nil

	case Shutdown:
		s.shutdown(ctx)
		return Reply{Quit: true}, nil

	case DebugLoad:
		if len(cmd.Args) == 0 {
			s.awaitingState = true
			return Reply{}, nil
		}
		return Reply{}, s.loadState(strings.Join(cmd.Args, " "))

	case SetOption:
		return Reply{}, s.setOption(cmd.Args)

	default:
		srlog.Debug("ignoring unrecognized command", "command", cmd.Name)
		return Reply{}, nil
	}
}

func (s *Session) beginThinking(ctx context.Context, args []string) error {
	params, err := ParseGoParams(args)
	if err != nil {
		return err
	}

	req := search.Request{
		Depth:       params.Depth,
		MovesPlayed: s.movesPlayed,
		Infinite:    params.Infinite,
	}
	switch {
	case params.Infinite:
	case params.MoveTime > 0:
		req.Budget = params.MoveTime
	default:
		remaining, field := params.WTime, "wtime"
		if s.tracker.SideToMove() == chess.Black {
			remaining, field = params.BTime, "btime"
		}
		if remaining != nil {
			req.Budget = timecontrol.Allocate(s.movesPlayed, *remaining)
		} else if params.Depth == 0 {
			return &ProtocolError{Command: "go", Field: field, Err: errMissingValue}
		}
	}

	// Cancel and replace: at most one search runs, and the previous one's
	// bestmove is written before the new one starts.
	if err := s.stopActive(ctx); err != nil {
		return err
	}

	req.Position = s.tracker.Snapshot()
	srlog.Info("thinking",
		"moves_played", s.movesPlayed,
		"budget", req.Budget,
		"depth", req.Depth,
		"movestogo", params.MovesToGo,
		"infinite", req.Infinite,
	)
	s.active = s.controller.Spawn(req)
	s.movesPlayed++
	return nil
}

func (s *Session) loadState(fen string) error {
	if err := s.tracker.Load(fen); err != nil {
		return fmt.Errorf("debuginternal rejected: %w", err)
	}
	return nil
}

func (s *Session) setOption(args []string) error {
	name, value, err := ParseSetOption(args)
	if err != nil {
		return err
	}
	switch strings.ToLower(name) {
	case "hash":
		mb, err := strconv.Atoi(value)
		if err != nil {
			return &ProtocolError{Command: "setoption", Field: "Hash", Err: err}
		}
		if mb < 1 || mb > MaxHashMB {
			return &ProtocolError{Command: "setoption", Field: "Hash", Err: fmt.Errorf("%d out of range 1..%d", mb, MaxHashMB)}
		}
		if s.cache != nil {
			s.cache.Resize(mb * entriesPerMB)
		}
		srlog.Info("hash resized", "mb", mb)
	case "clear hash":
		if s.cache != nil {
			s.cache.Clear()
		}
	default:
		srlog.Debug("ignoring unknown option", "name", name)
	}
	return nil
}

// stopActive cancels the outstanding search, if any, and waits for its
// bestmove to be written.
func (s *Session) stopActive(ctx context.Context) error {
	if s.active == nil {
		return nil
	}
	s.active.Cancel()
	select {
	case <-s.active.Done():
		s.active = nil
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// shutdown waits for the final bestmove even when ctx is already done, but
// not indefinitely.
func (s *Session) shutdown(ctx context.Context) {
	waitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ShutdownGrace)
	defer cancel()
	if err := s.stopActive(waitCtx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			srlog.Warn("search ignored cancellation at shutdown", "grace", ShutdownGrace)
			return
		}
		srlog.Warn("failed to stop search at shutdown", "error", err)
	}
}

// reap drops the handle of a search that has finished on its own.
func (s *Session) reap() {
	if s.active != nil && s.active.Finished() {
		s.active = nil
	}
}
