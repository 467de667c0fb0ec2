package preflight

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	srlog "github.com/shallowred/shallowred/pkg/log"
)

// CheckLevel represents the severity level of a preflight check
type CheckLevel int

const (
	// LevelError indicates a failure that prevents the session from starting
	LevelError CheckLevel = iota
	// LevelWarn indicates a problem that degrades the session but doesn't block it
	LevelWarn
	// LevelInfo indicates informational output
	LevelInfo
)

// CheckResult represents the result of a single preflight check
type CheckResult struct {
	Name    string     // Check name
	Level   CheckLevel // Severity level
	Message string     // Human-readable message
	Error   error      // Underlying error (if any)
}

// Check represents a single preflight check
type Check interface {
	// Name returns the check name
	Name() string
	// Run executes the check and returns a CheckResult
	Run(ctx context.Context) CheckResult
}

// Pinger is anything that can tell whether the container daemon answers.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Checker runs a collection of preflight checks
type Checker struct {
	checks  []Check
	skipped bool
	quiet   bool
}

// Config configures the preflight checker. Empty fields disable their check.
type Config struct {
	// Skip skips all preflight checks
	Skip bool
	// Quiet suppresses info-level messages
	Quiet bool
	// EnginePath is the external engine binary (process backend)
	EnginePath string
	// Docker is pinged when the container backend is selected
	Docker Pinger
	// SnapshotPath is the cache snapshot file
	SnapshotPath string
	// LogFile is the diagnostic log file
	LogFile string
	// TranscriptPath is the session transcript file
	TranscriptPath string
}

// NewChecker creates a new preflight checker with the given configuration
func NewChecker(cfg Config) *Checker {
	c := &Checker{
		skipped: cfg.Skip,
		quiet:   cfg.Quiet,
	}

	if cfg.EnginePath != "" {
		c.checks = append(c.checks, &EngineBinaryCheck{Path: cfg.EnginePath})
	}
	if cfg.Docker != nil {
		c.checks = append(c.checks, &DockerCheck{Daemon: cfg.Docker})
	}
	if cfg.SnapshotPath != "" {
		// A missing or unwritable snapshot only costs a cold cache.
		c.checks = append(c.checks, &FileDirCheck{CheckName: "cache-snapshot", Path: cfg.SnapshotPath, Level: LevelWarn})
	}
	if cfg.LogFile != "" {
		c.checks = append(c.checks, &FileDirCheck{CheckName: "log-file", Path: cfg.LogFile, Level: LevelError})
	}
	if cfg.TranscriptPath != "" {
		c.checks = append(c.checks, &FileDirCheck{CheckName: "transcript", Path: cfg.TranscriptPath, Level: LevelError})
	}

	return c
}

// Checks returns the registered checks.
func (c *Checker) Checks() []Check {
	return c.checks
}

// Run executes all registered checks and returns an error if any critical checks fail
func (c *Checker) Run(ctx context.Context) error {
	if c.skipped {
		srlog.Info("preflight checks skipped")
		return nil
	}

	var errs []error
	warnings := 0

	for _, check := range c.checks {
		result := check.Run(ctx)

		switch result.Level {
		case LevelError:
			srlog.Error("preflight check failed", "check", result.Name, "message", result.Message)
			if result.Error != nil {
				errs = append(errs, fmt.Errorf("%s: %w", result.Name, result.Error))
			} else {
				errs = append(errs, fmt.Errorf("%s: %s", result.Name, result.Message))
			}
		case LevelWarn:
			srlog.Warn("preflight check warning", "check", result.Name, "message", result.Message)
			warnings++
		case LevelInfo:
			if !c.quiet {
				srlog.Info("preflight check", "check", result.Name, "message", result.Message)
			}
		}
	}

	if warnings > 0 {
		srlog.Info("preflight warnings", "count", warnings)
	}

	if len(errs) > 0 {
		msgs := make([]string, 0, len(errs))
		for _, err := range errs {
			msgs = append(msgs, err.Error())
		}
		return fmt.Errorf("preflight checks failed:\n  - %s", strings.Join(msgs, "\n  - "))
	}

	srlog.Debug("preflight checks passed", "count", len(c.checks))
	return nil
}

// EngineBinaryCheck checks that an external engine resolves to an executable
type EngineBinaryCheck struct {
	Path string
}

func (c *EngineBinaryCheck) Name() string {
	return "engine-binary"
}

func (c *EngineBinaryCheck) Run(ctx context.Context) CheckResult {
	resolved, err := exec.LookPath(c.Path)
	if err != nil {
		return CheckResult{
			Name:    c.Name(),
			Level:   LevelError,
			Message: fmt.Sprintf("engine binary %q not found or not executable", c.Path),
			Error:   err,
		}
	}
	return CheckResult{
		Name:    c.Name(),
		Level:   LevelInfo,
		Message: fmt.Sprintf("engine binary found at %s", resolved),
	}
}

// DockerCheck checks that the container daemon is reachable
type DockerCheck struct {
	Daemon Pinger
}

func (c *DockerCheck) Name() string {
	return "docker"
}

func (c *DockerCheck) Run(ctx context.Context) CheckResult {
	// Use a timeout context to avoid hanging
	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := c.Daemon.Ping(checkCtx); err != nil {
		return CheckResult{
			Name:    c.Name(),
			Level:   LevelError,
			Message: "docker daemon is not running or not accessible",
			Error:   err,
		}
	}
	return CheckResult{
		Name:    c.Name(),
		Level:   LevelInfo,
		Message: "docker daemon is reachable",
	}
}

// FileDirCheck checks that the directory holding Path exists and that a file
// can be created in it.
type FileDirCheck struct {
	CheckName string
	Path      string
	// Level is reported on failure
	Level CheckLevel
}

func (c *FileDirCheck) Name() string {
	return c.CheckName
}

func (c *FileDirCheck) Run(ctx context.Context) CheckResult {
	absPath, err := filepath.Abs(c.Path)
	if err != nil {
		return c.fail(fmt.Sprintf("invalid path %q", c.Path), err)
	}
	dir := filepath.Dir(absPath)

	info, err := os.Stat(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return c.fail(fmt.Sprintf("directory %s does not exist", dir), err)
		}
		return c.fail(fmt.Sprintf("cannot access directory %s", dir), err)
	}
	if !info.IsDir() {
		return c.fail(fmt.Sprintf("%s is not a directory", dir), nil)
	}

	scratch, err := os.CreateTemp(dir, ".shallowred-preflight-*")
	if err != nil {
		return c.fail(fmt.Sprintf("directory %s is not writable", dir), err)
	}
	scratch.Close()
	os.Remove(scratch.Name())

	return CheckResult{
		Name:    c.Name(),
		Level:   LevelInfo,
		Message: fmt.Sprintf("%s is writable", dir),
	}
}

func (c *FileDirCheck) fail(msg string, err error) CheckResult {
	return CheckResult{
		Name:    c.Name(),
		Level:   c.Level,
		Message: msg,
		Error:   err,
	}
}
