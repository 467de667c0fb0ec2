// Package uciproc drives an external UCI engine over its standard streams and
// exposes it as an engine.Engine.
package uciproc

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shallowred/shallowred/pkg/engine"
	srlog "github.com/shallowred/shallowred/pkg/log"
)

// DefaultStopGrace is how long a stopped engine gets to answer with bestmove.
const DefaultStopGrace = 2 * time.Second

// ErrNotReady is returned when the engine never completed the handshake or
// stopped answering.
var ErrNotReady = errors.New("engine not ready")

// Client speaks UCI to one engine. Searches are serialised.
type Client struct {
	mu        sync.Mutex
	in        *bufio.Writer
	out       *bufio.Scanner
	closeFn   func() error
	ready     bool
	name      string
	stopGrace time.Duration
}

var _ engine.Engine = (*Client)(nil)

// NewClient performs the uci/isready handshake on the given streams. closeFn
// is called by Close after "quit" has been sent; it may be nil.
func NewClient(ctx context.Context, w io.Writer, r io.Reader, closeFn func() error) (*Client, error) {
	c := &Client{
		in:        bufio.NewWriter(w),
		out:       bufio.NewScanner(r),
		closeFn:   closeFn,
		stopGrace: DefaultStopGrace,
	}

	done := make(chan error, 1)
	go func() {
		done <- c.handshake()
	}()
	select {
	case err := <-done:
		if err != nil {
			return nil, fmt.Errorf("uci handshake failed: %w", err)
		}
	case <-ctx.Done():
		return nil, fmt.Errorf("uci handshake failed: %w", ctx.Err())
	}
	c.ready = true
	srlog.Info("external engine ready", "name", c.name)
	return c, nil
}

func (c *Client) handshake() error {
	if err := c.send("uci"); err != nil {
		return err
	}
	if err := c.waitFor("uciok"); err != nil {
		return err
	}
	if err := c.send("isready"); err != nil {
		return err
	}
	return c.waitFor("readyok")
}

func (c *Client) waitFor(token string) error {
	for c.out.Scan() {
		line := strings.TrimSpace(c.out.Text())
		if name, ok := strings.CutPrefix(line, "id name "); ok {
			c.name = name
		}
		if line == token {
			return nil
		}
	}
	if err := c.out.Err(); err != nil {
		return err
	}
	return io.ErrUnexpectedEOF
}

// Name returns the engine's self-reported name.
func (c *Client) Name() string {
	return c.name
}

// Search sends the position and a go command, forwards info lines to the
// request's progress callback and returns the engine's bestmove. Cancelling
// ctx sends "stop".
func (c *Client) Search(ctx context.Context, req engine.Request) (engine.Outcome, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.ready {
		return engine.Outcome{}, ErrNotReady
	}
	start := time.Now()
	if err := c.send("position fen " + req.Position.String()); err != nil {
		return engine.Outcome{}, err
	}
	if err := c.send(goCommand(req)); err != nil {
		return engine.Outcome{}, err
	}

	var (
		out  engine.Outcome
		last engine.Info
	)
	readDone := make(chan error, 1)
	go func() {
		for c.out.Scan() {
			line := strings.TrimSpace(c.out.Text())
			if rest, ok := strings.CutPrefix(line, "info "); ok {
				if info, ok := parseInfo(rest); ok {
					last = info
					req.Report(info)
				}
				continue
			}
			if rest, ok := strings.CutPrefix(line, "bestmove"); ok {
				out.Move, out.Ponder = parseBestMove(rest)
				readDone <- nil
				return
			}
		}
		if err := c.out.Err(); err != nil {
			readDone <- err
			return
		}
		readDone <- io.ErrUnexpectedEOF
	}()

	var err error
	select {
	case err = <-readDone:
	case <-ctx.Done():
		out.Stopped = true
		if sendErr := c.send("stop"); sendErr != nil {
			srlog.Warn("failed to send stop to engine", "error", sendErr)
		}
		select {
		case err = <-readDone:
		case <-time.After(c.stopGrace):
			// The reader goroutine still owns the scanner.
			c.ready = false
			err = fmt.Errorf("engine did not answer stop within %s: %w", c.stopGrace, ErrNotReady)
		}
	}
	if err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			c.ready = false
		}
		return engine.Outcome{}, err
	}

	out.Score = last.Score
	out.Depth = last.Depth
	out.Nodes = last.Nodes
	out.Elapsed = time.Since(start)
	return out, nil
}

// Close asks the engine to quit and releases its streams.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.send("quit")
	c.ready = false
	if c.closeFn != nil {
		return c.closeFn()
	}
	return nil
}

func (c *Client) send(cmd string) error {
	if _, err := fmt.Fprintln(c.in, cmd); err != nil {
		return err
	}
	return c.in.Flush()
}

func goCommand(req engine.Request) string {
	switch {
	case req.Depth > 0 && req.Budget > 0:
		return fmt.Sprintf("go depth %d movetime %d", req.Depth, req.Budget.Milliseconds())
	case req.Depth > 0:
		return fmt.Sprintf("go depth %d", req.Depth)
	case req.Budget > 0:
		return fmt.Sprintf("go movetime %d", req.Budget.Milliseconds())
	default:
		return "go infinite"
	}
}

// parseBestMove parses the remainder of a "bestmove" line.
func parseBestMove(rest string) (move, ponder string) {
	fields := strings.Fields(rest)
	if len(fields) == 0 || fields[0] == "(none)" || fields[0] == engine.NullMove {
		return "", ""
	}
	move = fields[0]
	if len(fields) >= 3 && fields[1] == "ponder" {
		ponder = fields[2]
	}
	return move, ponder
}

// parseInfo parses the body of an "info" line. Lines without a depth (for
// example "info string ...") are rejected.
func parseInfo(rest string) (engine.Info, bool) {
	var info engine.Info
	fields := strings.Fields(rest)
	hasDepth := false
	for i := 0; i < len(fields); i++ {
		next := func() (int64, bool) {
			if i+1 >= len(fields) {
				return 0, false
			}
			i++
			n, err := strconv.ParseInt(fields[i], 10, 64)
			return n, err == nil
		}
		switch fields[i] {
		case "string":
			return engine.Info{}, false
		case "depth":
			n, ok := next()
			if !ok {
				return engine.Info{}, false
			}
			info.Depth, hasDepth = int(n), true
		case "nodes":
			n, _ := next()
			info.Nodes = n
		case "time":
			n, _ := next()
			info.Elapsed = time.Duration(n) * time.Millisecond
		case "score":
			if i+1 >= len(fields) {
				continue
			}
			kind := fields[i+1]
			i++
			n, _ := next()
			switch kind {
			case "cp":
				info.Score = int(n)
			case "mate":
				info.Mate = int(n)
			}
		case "pv":
			info.PV = append([]string(nil), fields[i+1:]...)
			i = len(fields)
		}
	}
	return info, hasDepth
}
