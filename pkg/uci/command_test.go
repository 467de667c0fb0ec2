package uci

import (
	"errors"
	"testing"
	"time"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		line string
		kind Kind
		args int
		ok   bool
	}{
		{"uci", Handshake, 0, true},
		{"  isready  ", ReadyCheck, 0, true},
		{"position startpos moves e2e4 e7e5", SetPosition, 4, true},
		{"go wtime 1000 btime 1000", BeginThinking, 4, true},
		{"debuginternal", DebugLoad, 0, true},
		{"setoption name Hash value 32", SetOption, 4, true},
		{"register later", Unrecognized, 1, true},
		{"", Unrecognized, 0, false},
		{" \t ", Unrecognized, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			cmd, ok := ParseCommand(tt.line)
			if ok != tt.ok {
				t.Fatalf("ParseCommand(%q) ok = %v, want %v", tt.line, ok, tt.ok)
			}
			if cmd.Kind != tt.kind || len(cmd.Args) != tt.args {
				t.Fatalf("ParseCommand(%q) = %+v", tt.line, cmd)
			}
		})
	}
}

func TestParseGoParams(t *testing.T) {
	p, err := ParseGoParams([]string{"wtime", "300000", "btime", "-20", "winc", "2000", "binc", "2000", "movestogo", "12", "ponder", "nodes", "5000"})
	if err != nil {
		t.Fatalf("ParseGoParams failed: %v", err)
	}
	if p.WTime == nil || *p.WTime != 300*time.Second {
		t.Errorf("unexpected wtime: %v", p.WTime)
	}
	if p.BTime == nil || *p.BTime != 0 {
		t.Errorf("negative btime should clamp to zero, got %v", p.BTime)
	}
	if p.WInc != 2*time.Second || p.MovesToGo != 12 {
		t.Errorf("unexpected params: %+v", p)
	}

	p, err = ParseGoParams([]string{"movetime", "1500", "depth", "6"})
	if err != nil {
		t.Fatalf("ParseGoParams failed: %v", err)
	}
	if p.MoveTime != 1500*time.Millisecond || p.Depth != 6 || p.WTime != nil {
		t.Errorf("unexpected params: %+v", p)
	}

	p, err = ParseGoParams([]string{"infinite"})
	if err != nil || !p.Infinite {
		t.Errorf("expected infinite, got %+v, %v", p, err)
	}
}

func TestParseGoParamsHugeValuesSaturate(t *testing.T) {
	limit := time.Duration(maxMillis) * time.Millisecond
	tests := []struct {
		name string
		args []string
		get  func(GoParams) time.Duration
	}{
		{"wtime", []string{"wtime", "9999999999999"}, func(p GoParams) time.Duration { return *p.WTime }},
		{"btime", []string{"btime", "9223372036854775807"}, func(p GoParams) time.Duration { return *p.BTime }},
		{"winc", []string{"winc", "9999999999999"}, func(p GoParams) time.Duration { return p.WInc }},
		{"movetime", []string{"movetime", "9223372036854775807"}, func(p GoParams) time.Duration { return p.MoveTime }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := ParseGoParams(tt.args)
			if err != nil {
				t.Fatalf("ParseGoParams failed: %v", err)
			}
			if got := tt.get(p); got != limit {
				t.Errorf("expected %v to saturate at %v, got %v", tt.args, limit, got)
			}
		})
	}

	p, err := ParseGoParams([]string{"wtime", "9223372036853"})
	if err != nil {
		t.Fatalf("ParseGoParams failed: %v", err)
	}
	if want := 9223372036853 * time.Millisecond; *p.WTime != want {
		t.Errorf("expected %v just under the limit, got %v", want, *p.WTime)
	}
}

func TestParseGoParamsErrors(t *testing.T) {
	tests := []struct {
		name  string
		args  []string
		field string
	}{
		{"non numeric wtime", []string{"wtime", "lots", "btime", "1000"}, "wtime"},
		{"missing btime value", []string{"wtime", "1000", "btime"}, "btime"},
		{"negative movetime", []string{"movetime", "-1"}, "movetime"},
		{"negative depth", []string{"depth", "-3"}, "depth"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseGoParams(tt.args)
			var perr *ProtocolError
			if !errors.As(err, &perr) {
				t.Fatalf("expected ProtocolError, got %v", err)
			}
			if perr.Command != "go" || perr.Field != tt.field {
				t.Fatalf("unexpected error: %+v", perr)
			}
		})
	}
}

func TestParseSetOption(t *testing.T) {
	tests := []struct {
		args  []string
		name  string
		value string
		err   bool
	}{
		{[]string{"name", "Hash", "value", "64"}, "Hash", "64", false},
		{[]string{"name", "Clear", "Hash"}, "Clear Hash", "", false},
		{[]string{"name", "Skill", "Level", "value", "20"}, "Skill Level", "20", false},
		{[]string{"Hash", "64"}, "", "", true},
		{[]string{"name"}, "", "", true},
	}

	for _, tt := range tests {
		name, value, err := ParseSetOption(tt.args)
		if (err != nil) != tt.err {
			t.Fatalf("ParseSetOption(%q) error = %v, want error %v", tt.args, err, tt.err)
		}
		if name != tt.name || value != tt.value {
			t.Errorf("ParseSetOption(%q) = %q, %q", tt.args, name, value)
		}
	}
}
