package uci

import (
	"fmt"
	"io"
	"strings"
	"sync"

	srlog "github.com/shallowred/shallowred/pkg/log"
	"github.com/shallowred/shallowred/pkg/transcript"
)

// Output is the protocol's single writer. Search goroutines and the command
// loop share it; each WriteLines call reaches the GUI as one write.
type Output struct {
	mu         sync.Mutex
	w          io.Writer
	transcript *transcript.Writer
}

// NewOutput wraps w. tr may be nil.
func NewOutput(w io.Writer, tr *transcript.Writer) *Output {
	return &Output{w: w, transcript: tr}
}

func (o *Output) WriteLines(lines ...string) error {
	if len(lines) == 0 {
		return nil
	}
	o.mu.Lock()
	defer o.mu.Unlock()

	var b strings.Builder
	for _, line := range lines {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	if _, err := io.WriteString(o.w, b.String()); err != nil {
		return fmt.Errorf("failed to write protocol output: %w", err)
	}
	for _, line := range lines {
		srlog.Debug("sent", "line", line)
		if err := o.transcript.Emitted(line); err != nil {
			srlog.Warn("failed to record emitted line", "error", err)
		}
	}
	return nil
}
