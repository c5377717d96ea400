package main

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/rhuss/codechat/pkg/sandbox"
)

//go:embed sitecustomize.py
var siteCustomize []byte

// runner executes code inside a working directory.
type runner interface {
	Run(ctx context.Context, dir, code string, timeout time.Duration) (*sandbox.Execution, error)
}

// pythonRunner runs each snippet as a fresh interpreter process.
type pythonRunner struct {
	python  string
	siteDir string
}

// newPythonRunner writes the sitecustomize hook into a private directory
// that is put on PYTHONPATH for every run.
func newPythonRunner(python string) (*pythonRunner, error) {
	siteDir, err := os.MkdirTemp("", "sandbox-site-*")
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(filepath.Join(siteDir, "sitecustomize.py"), siteCustomize, 0o644); err != nil {
		_ = os.RemoveAll(siteDir)
		return nil, err
	}
	return &pythonRunner{python: python, siteDir: siteDir}, nil
}

func (p *pythonRunner) Close() error {
	return os.RemoveAll(p.siteDir)
}

func (p *pythonRunner) Run(ctx context.Context, dir, code string, timeout time.Duration) (*sandbox.Execution, error) {
	outDir, err := os.MkdirTemp(dir, ".output-*")
	if err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	defer os.RemoveAll(outDir)

	script := filepath.Join(dir, "main.py")
	if err := os.WriteFile(script, []byte(code), 0o644); err != nil {
		return nil, fmt.Errorf("write code: %w", err)
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, p.python, "-u", script)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(),
		"PYTHONPATH="+p.siteDir,
		"MPLBACKEND=Agg",
		"CODECHAT_OUTPUT_DIR="+outDir,
	)
	cmd.WaitDelay = 2 * time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()

	result := &sandbox.Execution{
		Logs: sandbox.Logs{Stdout: splitLines(stdout.String())},
	}

	switch {
	case runErr == nil:
		result.Logs.Stderr = splitLines(stderr.String())
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		result.Logs.Stderr = splitLines(stderr.String())
		result.Error = &sandbox.ExecutionError{
			Name:  "TimeoutError",
			Value: fmt.Sprintf("execution exceeded %s", timeout),
		}
	case ctx.Err() != nil:
		return nil, ctx.Err()
	default:
		var exitErr *exec.ExitError
		if !errors.As(runErr, &exitErr) {
			return nil, fmt.Errorf("start python: %w", runErr)
		}
		logs, execErr := parseFailure(stderr.String(), exitErr.ExitCode())
		result.Logs.Stderr = splitLines(logs)
		result.Error = execErr
	}

	results, err := collectResults(outDir)
	if err != nil {
		return nil, err
	}
	result.Results = results
	return result, nil
}

// splitLines splits s into lines that keep their trailing newline.
func splitLines(s string) []string {
	lines := strings.SplitAfter(s, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

var exceptionLine = regexp.MustCompile(`^([A-Za-z_][\w.]*)(?::\s?(.*))?$`)

const tracebackHeader = "Traceback (most recent call last):"

// parseFailure separates the final traceback from the rest of stderr and
// reads the exception name and value from its last line.
func parseFailure(stderr string, exitCode int) (string, *sandbox.ExecutionError) {
	logs, traceback := stderr, ""
	if i := strings.LastIndex(stderr, tracebackHeader); i >= 0 {
		logs, traceback = stderr[:i], stderr[i:]
	}

	if traceback != "" {
		if m := exceptionLine.FindStringSubmatch(lastLine(traceback)); m != nil {
			return logs, &sandbox.ExecutionError{Name: m[1], Value: m[2], Traceback: strings.TrimRight(traceback, "\n")}
		}
	}

	// Syntax errors are reported without a traceback header.
	if m := exceptionLine.FindStringSubmatch(lastLine(stderr)); m != nil && strings.HasSuffix(m[1], "Error") {
		return "", &sandbox.ExecutionError{Name: m[1], Value: m[2], Traceback: strings.TrimRight(stderr, "\n")}
	}

	value := lastLine(stderr)
	if value == "" {
		value = fmt.Sprintf("process exited with status %d", exitCode)
	}
	return logs, &sandbox.ExecutionError{Name: "Error", Value: value, Traceback: strings.TrimRight(traceback, "\n")}
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}

// collectResults turns the files in dir into result items in name order.
func collectResults(dir string) ([]json.RawMessage, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read output dir: %w", err)
	}

	results := []json.RawMessage{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read output %s: %w", entry.Name(), err)
		}

		var item map[string]string
		b64 := base64.StdEncoding.EncodeToString(data)
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".png":
			item = map[string]string{"png": b64}
		case ".jpg", ".jpeg":
			item = map[string]string{"jpeg": b64}
		case ".txt":
			item = map[string]string{"text": string(data)}
		default:
			item = map[string]string{"name": entry.Name(), "data": b64}
		}

		raw, err := json.Marshal(item)
		if err != nil {
			return nil, err
		}
		results = append(results, raw)
	}
	return results, nil
}
