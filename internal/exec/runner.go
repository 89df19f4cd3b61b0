package exec

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

// Result holds the output of one script invocation
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
}

// ScriptRunner executes inference scripts. Satisfied by *Runner; strategies
// depend on the interface so tests can substitute a fake.
type ScriptRunner interface {
	RunScript(ctx context.Context, script string, args ...string) (*Result, error)
}

// Runner executes the Python inference scripts (demucs, basic-pitch)
// with context support.
type Runner struct {
	PythonPath string
	ScriptsDir string
}

// NewRunner creates a runner. An empty pythonPath falls back to the
// scripts directory's virtualenv, then to python3 on PATH.
func NewRunner(pythonPath, scriptsDir string) *Runner {
	if pythonPath == "" {
		venvPython := filepath.Join(scriptsDir, ".venv", "bin", "python")
		if _, err := os.Stat(venvPython); err == nil {
			pythonPath = venvPython
		} else {
			pythonPath = "python3"
		}
	}
	return &Runner{
		PythonPath: pythonPath,
		ScriptsDir: scriptsDir,
	}
}

// RunScript executes a script from the scripts directory with arguments.
// The returned Result is non-nil even on failure so callers can inspect
// stderr and the exit code.
func (r *Runner) RunScript(ctx context.Context, script string, args ...string) (*Result, error) {
	scriptPath := filepath.Join(r.ScriptsDir, script)
	start := time.Now()

	cmd := exec.CommandContext(ctx, r.PythonPath, append([]string{scriptPath}, args...)...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	result := &Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	if exitErr, ok := err.(*exec.ExitError); ok {
		result.ExitCode = exitErr.ExitCode()
	}

	if err != nil {
		if ctx.Err() != nil {
			return result, fmt.Errorf("script %s: %w", script, ctx.Err())
		}
		return result, fmt.Errorf("script %s failed: %w", script, err)
	}

	return result, nil
}
