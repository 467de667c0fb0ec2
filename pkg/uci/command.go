package uci

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Kind classifies an input line.
type Kind int

const (
	Unrecognized Kind = iota
	Handshake
	ReadyCheck
	NewGame
	SetPosition
	BeginThinking
	CancelThinking
	Shutdown
	DebugLoad
	SetOption
)

var commandKinds = map[string]Kind{
	"uci":           Handshake,
	"isready":       ReadyCheck,
	"ucinewgame":    NewGame,
	"position":      SetPosition,
	"go":            BeginThinking,
	"stop":          CancelThinking,
	"quit":          Shutdown,
	"debuginternal": DebugLoad,
	"setoption":     SetOption,
}

func (k Kind) String() string {
	for name, kind := range commandKinds {
		if kind == k {
			return name
		}
	}
	return "unrecognized"
}

// Command is one parsed input line.
type Command struct {
	Kind Kind
	Name string
	Args []string
}

// ParseCommand splits line into a command word and its arguments. ok is false
// for a line with no tokens.
func ParseCommand(line string) (cmd Command, ok bool) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Command{}, false
	}
	return Command{
		Kind: commandKinds[fields[0]],
		Name: fields[0],
		Args: fields[1:],
	}, true
}

// ProtocolError reports a malformed or missing command field.
type ProtocolError struct {
	Command string
	Field   string
	Err     error
}

func (e *ProtocolError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("malformed %s command: %v", e.Command, e.Err)
	}
	return fmt.Sprintf("malformed %s command: field %s: %v", e.Command, e.Field, e.Err)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

var (
	errMissingValue = errors.New("missing value")
	errNegative     = errors.New("must not be negative")
)

// GoParams holds the fields of a go command. Times are nil when absent.
type GoParams struct {
	WTime     *time.Duration
	BTime     *time.Duration
	WInc      time.Duration
	BInc      time.Duration
	MovesToGo int
	MoveTime  time.Duration
	Depth     int
	Infinite  bool
}

// ParseGoParams parses the arguments of a go command. Unknown keywords are
// skipped so that newer GUIs keep working.
func ParseGoParams(args []string) (GoParams, error) {
	var p GoParams
	for i := 0; i < len(args); i++ {
		key := args[i]
		switch key {
		case "infinite":
			p.Infinite = true
			continue
		case "ponder":
			continue
		case "wtime", "btime", "winc", "binc", "movestogo", "movetime", "depth", "nodes", "mate":
		default:
			continue
		}

		if i+1 >= len(args) {
			return GoParams{}, &ProtocolError{Command: "go", Field: key, Err: errMissingValue}
		}
		i++
		n, err := strconv.ParseInt(args[i], 10, 64)
		if err != nil {
			return GoParams{}, &ProtocolError{Command: "go", Field: key, Err: err}
		}

		switch key {
		case "wtime":
			d := clampMillis(n)
			p.WTime = &d
		case "btime":
			d := clampMillis(n)
			p.BTime = &d
		case "winc":
			p.WInc = clampMillis(n)
		case "binc":
			p.BInc = clampMillis(n)
		case "movestogo":
			p.MovesToGo = int(n)
		case "movetime":
			if n < 0 {
				return GoParams{}, &ProtocolError{Command: "go", Field: key, Err: errNegative}
			}
			p.MoveTime = millis(n)
		case "depth":
			if n < 0 {
				return GoParams{}, &ProtocolError{Command: "go", Field: key, Err: errNegative}
			}
			p.Depth = int(n)
		}
	}
	return p, nil
}

// clampMillis converts a clock reading to a duration. GUIs report a flagged
// clock as a negative number, which counts as no time left.
func clampMillis(ms int64) time.Duration {
	if ms < 0 {
		return 0
	}
	return millis(ms)
}

// millis converts a non-negative millisecond count, saturating at the
// largest representable duration.
func millis(ms int64) time.Duration {
	if ms > maxMillis {
		ms = maxMillis
	}
	return time.Duration(ms) * time.Millisecond
}

const maxMillis = math.MaxInt64 / int64(time.Millisecond)

// ParseSetOption splits "name <id...> [value <x...>]". Option names may
// contain spaces.
func ParseSetOption(args []string) (name, value string, err error) {
	if len(args) == 0 || args[0] != "name" {
		return "", "", &ProtocolError{Command: "setoption", Field: "name", Err: errMissingValue}
	}
	rest := args[1:]
	for i, tok := range rest {
		if tok == "value" {
			name = strings.Join(rest[:i], " ")
			value = strings.Join(rest[i+1:], " ")
			break
		}
	}
	if name == "" && value == "" {
		name = strings.Join(rest, " ")
	}
	if name == "" {
		return "", "", &ProtocolError{Command: "setoption", Field: "name", Err: errMissingValue}
	}
	return name, value, nil
}
