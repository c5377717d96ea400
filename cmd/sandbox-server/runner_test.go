package main

import (
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func TestSplitLines(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", []string{}},
		{"a\n", []string{"a\n"}},
		{"a\nb\n", []string{"a\n", "b\n"}},
		{"a\nb", []string{"a\n", "b"}},
		{"\n\n", []string{"\n", "\n"}},
	}
	for _, tt := range tests {
		if got := splitLines(tt.in); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("splitLines(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseFailure(t *testing.T) {
	tests := []struct {
		name      string
		stderr    string
		wantLogs  string
		wantName  string
		wantValue string
	}{
		{
			name:      "traceback",
			stderr:    "warning: noisy\nTraceback (most recent call last):\n  File \"main.py\", line 1, in <module>\n    1/0\nZeroDivisionError: division by zero\n",
			wantLogs:  "warning: noisy\n",
			wantName:  "ZeroDivisionError",
			wantValue: "division by zero",
		},
		{
			name:     "exception without message",
			stderr:   "Traceback (most recent call last):\n  File \"main.py\", line 1, in <module>\nKeyboardInterrupt\n",
			wantName: "KeyboardInterrupt",
		},
		{
			name:      "syntax error",
			stderr:    "  File \"main.py\", line 1\n    1/\n      ^\nSyntaxError: invalid syntax\n",
			wantName:  "SyntaxError",
			wantValue: "invalid syntax",
		},
		{
			name:      "plain stderr",
			stderr:    "killed by signal\n",
			wantLogs:  "killed by signal\n",
			wantName:  "Error",
			wantValue: "killed by signal",
		},
		{
			name:      "no output",
			wantName:  "Error",
			wantValue: "process exited with status 3",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logs, got := parseFailure(tt.stderr, 3)
			if logs != tt.wantLogs {
				t.Errorf("logs = %q, want %q", logs, tt.wantLogs)
			}
			if got.Name != tt.wantName || got.Value != tt.wantValue {
				t.Errorf("error = %s: %q, want %s: %q", got.Name, got.Value, tt.wantName, tt.wantValue)
			}
		})
	}
}

func TestCollectResults(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"a.png": "PNG",
		"b.jpg": "JPG",
		"c.txt": "hello",
		"d.csv": "x,y",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	got, err := collectResults(dir)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{
		`{"png":"UE5H"}`,
		`{"jpeg":"SlBH"}`,
		`{"text":"hello"}`,
		`{"data":"eCx5","name":"d.csv"}`,
	}
	if len(got) != len(want) {
		t.Fatalf("got %d results, want %d", len(got), len(want))
	}
	for i := range want {
		if string(got[i]) != want[i] {
			t.Errorf("result[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func newTestPythonRunner(t *testing.T) *pythonRunner {
	t.Helper()
	if _, err := exec.LookPath("python3"); err != nil {
		t.Skip("python3 not available")
	}
	r, err := newPythonRunner("python3")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func TestPythonRunner(t *testing.T) {
	r := newTestPythonRunner(t)

	tests := []struct {
		name       string
		code       string
		timeout    time.Duration
		wantStdout []string
		wantError  string
	}{
		{"print", "print('hi')\nprint('there')", 10 * time.Second, []string{"hi\n", "there\n"}, ""},
		{"exception", "print('before')\n1/0", 10 * time.Second, []string{"before\n"}, "ZeroDivisionError"},
		{"timeout", "import time\ntime.sleep(10)", 300 * time.Millisecond, []string{}, "TimeoutError"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Run(context.Background(), t.TempDir(), tt.code, tt.timeout)
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			if !reflect.DeepEqual(got.Logs.Stdout, tt.wantStdout) {
				t.Errorf("stdout = %q, want %q", got.Logs.Stdout, tt.wantStdout)
			}
			gotError := ""
			if got.Error != nil {
				gotError = got.Error.Name
			}
			if gotError != tt.wantError {
				t.Errorf("error = %q, want %q", gotError, tt.wantError)
			}
		})
	}
}

func TestPythonRunner_OutputFiles(t *testing.T) {
	r := newTestPythonRunner(t)

	code := "import os\nopen(os.path.join(os.environ['CODECHAT_OUTPUT_DIR'], 'note.txt'), 'w').write('saved')"
	got, err := r.Run(context.Background(), t.TempDir(), code, 10*time.Second)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(got.Results) != 1 {
		t.Fatalf("got %d results, want 1", len(got.Results))
	}
	var item map[string]string
	if err := json.Unmarshal(got.Results[0], &item); err != nil {
		t.Fatal(err)
	}
	if item["text"] != "saved" {
		t.Errorf("result = %v, want text \"saved\"", item)
	}
}
