package tool

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"time"
)

const (
	defaultPythonTimeout = 30 * time.Second
	maxPythonTimeout     = 5 * time.Minute
)

// PythonTool runs Python code in a subprocess with a hard timeout.
type PythonTool struct {
	interpreter    string
	defaultTimeout time.Duration
	logger         *slog.Logger
}

// PythonOption configures a PythonTool.
type PythonOption func(*PythonTool)

// WithInterpreter overrides the interpreter binary (default "python3").
func WithInterpreter(path string) PythonOption {
	return func(t *PythonTool) {
		t.interpreter = path
	}
}

// WithDefaultTimeout overrides the default execution timeout.
func WithDefaultTimeout(d time.Duration) PythonOption {
	return func(t *PythonTool) {
		t.defaultTimeout = d
	}
}

// WithPythonLogger sets a structured logger.
func WithPythonLogger(l *slog.Logger) PythonOption {
	return func(t *PythonTool) {
		t.logger = l
	}
}

// NewPythonTool creates a PythonTool with the given options.
func NewPythonTool(opts ...PythonOption) *PythonTool {
	t := &PythonTool{
		interpreter:    "python3",
		defaultTimeout: defaultPythonTimeout,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *PythonTool) Name() string { return "python_execute" }

func (t *PythonTool) Description() string {
	return "Execute Python code in a subprocess and return its output."
}

func (t *PythonTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"code": map[string]any{
				"type":        "string",
				"description": "The Python code to execute.",
			},
			"timeout_ms": map[string]any{
				"type":        "integer",
				"description": "Execution timeout in milliseconds. Default: 30000.",
			},
		},
		"required": []string{"code"},
	}
}

// Execute writes the code to a temp file, runs the interpreter, and formats
// a report keyed off the exit code. The process is always killed or waited
// on before the temp file is removed; removal failures are ignored.
func (t *PythonTool) Execute(ctx context.Context, args Args) (string, error) {
	code := args.String("code", "")
	if code == "" {
		return "", fmt.Errorf("code argument is required")
	}

	timeout := t.defaultTimeout
	if ms := args.Int("timeout_ms", 0); ms > 0 {
		timeout = time.Duration(ms) * time.Millisecond
		if timeout > maxPythonTimeout {
			timeout = maxPythonTimeout
		}
	}

	tmp, err := os.CreateTemp("", "coxswain-*.py")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.WriteString(code); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("write temp file: %w", err)
	}
	tmp.Close()
	defer os.Remove(tmpPath) // best effort; process has exited by then

	var stdout, stderr bytes.Buffer
	cmd := exec.Command(t.interpreter, tmpPath)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("start %s: %w", t.interpreter, err)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var waitErr error
	timedOut := false
	select {
	case waitErr = <-done:
	case <-timer.C:
		timedOut = true
		_ = cmd.Process.Kill()
		<-done
	case <-ctx.Done():
		_ = cmd.Process.Kill()
		<-done
		return "", ctx.Err()
	}

	elapsed := time.Since(start)
	t.logger.Debug("python execution finished",
		"duration", elapsed,
		"timed_out", timedOut,
		"exit_code", cmd.ProcessState.ExitCode(),
	)

	if timedOut {
		return fmt.Sprintf("Execution timed out after %d ms. The process was killed.\nPartial output:\n%s",
			timeout.Milliseconds(), combineOutput(stdout.String(), stderr.String())), nil
	}

	exitCode := cmd.ProcessState.ExitCode()
	switch {
	case exitCode == 0 && stderr.Len() == 0:
		return fmt.Sprintf("Execution succeeded:\n%s", stdout.String()), nil
	case exitCode == 0:
		return fmt.Sprintf("Execution completed with warnings:\n%s\nWarnings:\n%s", stdout.String(), stderr.String()), nil
	case exitCode < 0 && waitErr != nil:
		// Process did not produce an exit code (signal, I/O failure).
		return "", fmt.Errorf("wait for %s: %w", t.interpreter, waitErr)
	default:
		return fmt.Sprintf("Execution failed with exit code %d:\n%s", exitCode, combineOutput(stdout.String(), stderr.String())), nil
	}
}

func combineOutput(stdout, stderr string) string {
	switch {
	case stdout == "":
		return stderr
	case stderr == "":
		return stdout
	default:
		return stdout + "\n" + stderr
	}
}
