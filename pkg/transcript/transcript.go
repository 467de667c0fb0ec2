// Package transcript records a session as newline-delimited JSON: every
// protocol line received and emitted, and every search started and finished.
package transcript

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"
)

// Kind identifies a transcript record.
type Kind string

const (
	KindReceived     Kind = "recv"
	KindEmitted      Kind = "send"
	KindSearchStart  Kind = "search_start"
	KindSearchResult Kind = "search_result"
)

// Record is one transcript line. Fields that do not apply to a kind are
// omitted.
type Record struct {
	Time        time.Time `json:"time"`
	Kind        Kind      `json:"kind"`
	Line        string    `json:"line,omitempty"`
	FEN         string    `json:"fen,omitempty"`
	MovesPlayed int       `json:"moves_played,omitempty"`
	BudgetMS    int64     `json:"budget_ms,omitempty"`
	Depth       int       `json:"depth,omitempty"`
	BestMove    string    `json:"bestmove,omitempty"`
	Score       int       `json:"score,omitempty"`
	Nodes       int64     `json:"nodes,omitempty"`
	ElapsedMS   int64     `json:"elapsed_ms,omitempty"`
	Stopped     bool      `json:"stopped,omitempty"`
	Error       string    `json:"error,omitempty"`
}

// Writer appends records to a file. A nil *Writer discards everything, so
// callers never need to check whether a transcript was requested.
type Writer struct {
	mu   sync.Mutex
	file *os.File
	enc  *json.Encoder
	now  func() time.Time
}

// Open opens path for appending.
func Open(path string) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open transcript file %q: %w", path, err)
	}
	enc := json.NewEncoder(f)
	enc.SetEscapeHTML(false)
	return &Writer{file: f, enc: enc, now: time.Now}, nil
}

// Write stamps and appends a record.
func (w *Writer) Write(rec Record) error {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if rec.Time.IsZero() {
		rec.Time = w.now().UTC()
	}
	if err := w.enc.Encode(rec); err != nil {
		return fmt.Errorf("failed to write transcript entry: %w", err)
	}
	return nil
}

func (w *Writer) Received(line string) error {
	return w.Write(Record{Kind: KindReceived, Line: line})
}

func (w *Writer) Emitted(line string) error {
	return w.Write(Record{Kind: KindEmitted, Line: line})
}

func (w *Writer) Close() error {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("failed to close transcript file: %w", err)
	}
	return nil
}

// Read loads every record in a transcript file.
func Read(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open transcript file %q: %w", path, err)
	}
	defer f.Close()

	var records []Record
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for n := 1; scanner.Scan(); n++ {
		if len(bytes.TrimSpace(scanner.Bytes())) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			return nil, fmt.Errorf("failed to parse transcript line %d: %w", n, err)
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read transcript file %q: %w", path, err)
	}
	return records, nil
}

// Summary aggregates a transcript.
type Summary struct {
	Received int
	Emitted  int
	Searches int
	Stopped  int
	Failures int
	Nodes    int64
	Elapsed  time.Duration
}

func Summarize(records []Record) Summary {
	var s Summary
	for _, rec := range records {
		switch rec.Kind {
		case KindReceived:
			s.Received++
		case KindEmitted:
			s.Emitted++
		case KindSearchResult:
			s.Searches++
			s.Nodes += rec.Nodes
			s.Elapsed += time.Duration(rec.ElapsedMS) * time.Millisecond
			if rec.Stopped {
				s.Stopped++
			}
			if rec.Error != "" {
				s.Failures++
			}
		}
	}
	return s
}

// Format renders a record as one human-readable line.
func Format(rec Record) string {
	ts := rec.Time.Format("15:04:05.000")
	switch rec.Kind {
	case KindReceived:
		return fmt.Sprintf("%s > %s", ts, rec.Line)
	case KindEmitted:
		return fmt.Sprintf("%s < %s", ts, rec.Line)
	case KindSearchStart:
		return fmt.Sprintf("%s * search moves_played=%d budget=%dms depth=%d fen=%q", ts, rec.MovesPlayed, rec.BudgetMS, rec.Depth, rec.FEN)
	case KindSearchResult:
		line := fmt.Sprintf("%s * result bestmove=%s depth=%d nodes=%d time=%dms", ts, rec.BestMove, rec.Depth, rec.Nodes, rec.ElapsedMS)
		if rec.Stopped {
			line += " stopped"
		}
		if rec.Error != "" {
			line += " error=" + strconv.Quote(rec.Error)
		}
		return line
	default:
		return fmt.Sprintf("%s ? %s", ts, rec.Kind)
	}
}
