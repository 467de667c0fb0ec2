package integration

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/rogpeppe/go-internal/testscript"
)

func TestMain(m *testing.M) {
	// 1. Compile the binary
	_, filename, _, _ := runtime.Caller(0)
	projectRoot := filepath.Join(filepath.Dir(filename), "../..")
	binDir := filepath.Join(projectRoot, "bin")
	if err := os.MkdirAll(binDir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "failed to create bin dir: %v\n", err)
		os.Exit(1)
	}

	binPath := filepath.Join(binDir, "shallowred")
	if runtime.GOOS == "windows" {
		binPath += ".exe"
	}

	cmd := exec.Command("go", "build", "-o", binPath, "./cmd/shallowred")
	cmd.Dir = projectRoot
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to build shallowred: %v\n", err)
		os.Exit(1)
	}

	// 2. Run the tests. The scripts exec the built binary from PATH.
	os.Exit(testscript.RunMain(m, map[string]func() int{}))
}

func TestScript(t *testing.T) {
	_, filename, _, _ := runtime.Caller(0)
	projectRoot := filepath.Join(filepath.Dir(filename), "../..")
	binDir := filepath.Join(projectRoot, "bin")

	testscript.Run(t, testscript.Params{
		Dir: "testdata",
		Setup: func(env *testscript.Env) error {
			env.Vars = append(env.Vars, fmt.Sprintf("PATH=%s%c%s", binDir, filepath.ListSeparator, os.Getenv("PATH")))
			// Keep a developer's local settings out of the scripts.
			env.Vars = append(env.Vars, "SHALLOWRED_LOG_LEVEL=warn")
			return nil
		},
	})
}
