//go:build !windows

package tactile

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}

func TestDirectExecutor_Execute(t *testing.T) {
	executor := NewDirectExecutor()

	result, err := executor.Execute(context.Background(), Command{
		Binary:    "echo",
		Arguments: []string{"hello"},
	})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if !result.Success {
		t.Errorf("Expected success, got failure: %s", result.Error)
	}
	if result.ExitCode != 0 {
		t.Errorf("Expected exit code 0, got %d", result.ExitCode)
	}
	if result.TimedOut {
		t.Errorf("Expected no timeout")
	}
	if !strings.Contains(result.Stdout, "hello") {
		t.Errorf("Expected stdout to contain 'hello', got: %q", result.Stdout)
	}
}

func TestDirectExecutor_SeparatesStreams(t *testing.T) {
	dir := t.TempDir()
	script := writeScript(t, dir, "streams", `echo out; echo err 1>&2; exit 3`)

	result, err := NewDirectExecutor().Execute(context.Background(), Command{Binary: script})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if result.ExitCode != 3 {
		t.Errorf("Expected exit code 3, got %d", result.ExitCode)
	}
	if !result.IsNonZeroExit() {
		t.Errorf("Expected IsNonZeroExit")
	}
	if strings.TrimSpace(result.Stdout) != "out" {
		t.Errorf("stdout = %q", result.Stdout)
	}
	if strings.TrimSpace(result.Stderr) != "err" {
		t.Errorf("stderr = %q", result.Stderr)
	}
	if result.Output() != result.Stdout+"\n"+result.Stderr {
		t.Errorf("Output() = %q", result.Output())
	}
}

func TestDirectExecutor_Timeout(t *testing.T) {
	executor := NewDirectExecutor()

	cmd := Command{
		Binary:    "sleep",
		Arguments: []string{"10"},
		Limits: &ResourceLimits{
			TimeoutMs: 500,
		},
	}

	start := time.Now()
	result, err := executor.Execute(context.Background(), cmd)
	elapsed := time.Since(start)

	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if !result.TimedOut || !result.Killed {
		t.Errorf("Expected command to be killed on timeout, got %+v", result)
	}
	if !strings.Contains(result.KillReason, "timeout") {
		t.Errorf("Expected kill reason to mention timeout, got: %s", result.KillReason)
	}
	if elapsed > 3*time.Second {
		t.Errorf("Timeout took too long: %s", elapsed)
	}
}

func TestDirectExecutor_TimeoutKillsDescendants(t *testing.T) {
	dir := t.TempDir()
	pidFile := filepath.Join(dir, "child.pid")
	// The shell forks a sleeper into the background and then waits on it,
	// so the sleeper is a grandchild of the executor.
	script := writeScript(t, dir, "spawner",
		`sleep 30 &
echo $! > "`+pidFile+`"
wait`)

	result, err := NewDirectExecutor().Execute(context.Background(), Command{
		Binary: script,
		Limits: &ResourceLimits{TimeoutMs: 700},
	})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if !result.TimedOut {
		t.Fatalf("Expected timeout, got %+v", result)
	}

	data, err := os.ReadFile(pidFile)
	if err != nil {
		t.Fatalf("read pid file: %v", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		t.Fatalf("parse pid: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for {
		if processGone(pid) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("descendant %d still alive after timeout", pid)
		}
		time.Sleep(50 * time.Millisecond)
	}
}

// processGone treats zombies as dead: the reparented sleeper may not be
// reaped promptly when the test runs as a container's init child.
func processGone(pid int) bool {
	if err := syscall.Kill(pid, 0); err != nil {
		return true
	}
	stat, err := os.ReadFile(filepath.Join("/proc", strconv.Itoa(pid), "stat"))
	if err != nil {
		return false
	}
	// Format: pid (comm) state ...
	s := string(stat)
	if i := strings.LastIndexByte(s, ')'); i >= 0 && i+2 < len(s) {
		return s[i+2] == 'Z'
	}
	return false
}

func TestDirectExecutor_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(200 * time.Millisecond)
		cancel()
	}()

	result, err := NewDirectExecutor().Execute(ctx, Command{
		Binary:    "sleep",
		Arguments: []string{"10"},
		Limits:    &ResourceLimits{TimeoutMs: 10000},
	})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if !result.Killed {
		t.Errorf("Expected killed on cancel")
	}
	if result.TimedOut {
		t.Errorf("Cancellation must not be reported as timeout")
	}
}

func TestDirectExecutor_MissingBinary(t *testing.T) {
	result, err := NewDirectExecutor().Execute(context.Background(), Command{
		Binary: filepath.Join(t.TempDir(), "does-not-exist"),
	})
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if result.Success {
		t.Errorf("Expected infrastructure failure")
	}
	if !result.IsError() {
		t.Errorf("Expected IsError")
	}
}

func TestDirectExecutor_Validate(t *testing.T) {
	executor := NewDirectExecutor()

	if err := executor.Validate(Command{}); err == nil {
		t.Error("Expected error for empty binary")
	}
	if err := executor.Validate(Command{Binary: "z3", Limits: &ResourceLimits{TimeoutMs: -1}}); err == nil {
		t.Error("Expected error for negative timeout")
	}
	if err := executor.Validate(Command{Binary: "z3"}); err != nil {
		t.Errorf("Unexpected error: %v", err)
	}

	if _, err := executor.Execute(context.Background(), Command{}); err == nil {
		t.Error("Execute should surface validation errors")
	}
}

func TestDirectExecutor_OutputTruncation(t *testing.T) {
	cfg := DefaultExecutorConfig()
	cfg.MaxOutputBytes = 16
	executor := NewDirectExecutorWithConfig(cfg)

	result, err := executor.Execute(context.Background(), Command{
		Binary:    "echo",
		Arguments: []string{strings.Repeat("x", 64)},
	})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if !result.Truncated {
		t.Errorf("Expected truncation")
	}
	if len(result.Stdout) != 16 {
		t.Errorf("Expected 16 bytes of stdout, got %d", len(result.Stdout))
	}
	if result.TruncatedBytes == 0 {
		t.Errorf("Expected discarded byte count")
	}
}

func TestDirectExecutor_Environment(t *testing.T) {
	t.Setenv("PROVER_SECRET_TOKEN", "leak")

	result, err := NewDirectExecutor().Execute(context.Background(), Command{
		Binary:      "sh",
		Arguments:   []string{"-c", `echo "[$PROVER_SECRET_TOKEN][$EXTRA]"`},
		Environment: []string{"EXTRA=yes"},
	})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if strings.TrimSpace(result.Stdout) != "[][yes]" {
		t.Errorf("Unexpected environment: %q", result.Stdout)
	}
}

func TestDirectExecutor_WorkingDirectory(t *testing.T) {
	dir := t.TempDir()
	result, err := NewDirectExecutor().Execute(context.Background(), Command{
		Binary:           "pwd",
		WorkingDirectory: dir,
	})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	want, _ := filepath.EvalSymlinks(dir)
	got, _ := filepath.EvalSymlinks(strings.TrimSpace(result.Stdout))
	if got != want {
		t.Errorf("pwd = %q, want %q", got, want)
	}
}

func TestDirectExecutor_AuditCallback(t *testing.T) {
	executor := NewDirectExecutor()

	var mu sync.Mutex
	var events []AuditEventType
	executor.SetAuditCallback(func(e AuditEvent) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, e.Type)
	})

	if _, err := executor.Execute(context.Background(), Command{Binary: "true"}); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if _, err := executor.Execute(context.Background(), Command{
		Binary:    "sleep",
		Arguments: []string{"5"},
		Limits:    &ResourceLimits{TimeoutMs: 200},
	}); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	want := []AuditEventType{AuditEventStart, AuditEventComplete, AuditEventStart, AuditEventKilled}
	if len(events) != len(want) {
		t.Fatalf("events = %v, want %v", events, want)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Errorf("event %d = %s, want %s", i, events[i], want[i])
		}
	}
}

func TestExecutorConfig_Merge(t *testing.T) {
	cfg := DefaultExecutorConfig()
	cfg.DefaultWorkingDir = "/work"
	cfg.MaxTimeout = 5 * time.Second

	merged := cfg.Merge(Command{Binary: "z3"})
	if merged.WorkingDirectory != "/work" {
		t.Errorf("working dir = %q", merged.WorkingDirectory)
	}
	if merged.Limits.TimeoutMs != 5000 {
		t.Errorf("timeout should be capped at MaxTimeout, got %dms", merged.Limits.TimeoutMs)
	}
	if merged.Limits.MaxOutputBytes != cfg.MaxOutputBytes {
		t.Errorf("max output = %d", merged.Limits.MaxOutputBytes)
	}

	merged = cfg.Merge(Command{Binary: "z3", Limits: &ResourceLimits{TimeoutMs: 100}})
	if merged.Limits.TimeoutMs != 100 {
		t.Errorf("explicit timeout lost: %d", merged.Limits.TimeoutMs)
	}
}

func TestLimitedWriter(t *testing.T) {
	var buf bytes.Buffer
	lw := &limitedWriter{w: &buf, max: 5}

	n, err := lw.Write([]byte("abc"))
	if err != nil || n != 3 {
		t.Fatalf("first write: n=%d err=%v", n, err)
	}
	n, err = lw.Write([]byte("defgh"))
	if err != nil || n != 5 {
		t.Fatalf("second write: n=%d err=%v", n, err)
	}
	if buf.String() != "abcde" {
		t.Errorf("buffer = %q", buf.String())
	}
	if !lw.truncated || lw.discarded != 3 {
		t.Errorf("truncated=%v discarded=%d", lw.truncated, lw.discarded)
	}
}
