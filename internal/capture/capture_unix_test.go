//go:build unix

package capture

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"testing"
	"time"
)

func TestRunSignalExitCode(t *testing.T) {
	tests := []struct {
		sig  string
		want int
	}{
		{"SEGV", 128 + int(syscall.SIGSEGV)},
		{"KILL", 128 + int(syscall.SIGKILL)},
	}
	for _, tt := range tests {
		t.Run(tt.sig, func(t *testing.T) {
			cc := fakeCompiler(t, "echo 'internal compiler error' >&2; kill -"+tt.sig+" $$")
			d, err := Run(context.Background(), []string{cc}, Options{Stdin: strings.NewReader("")})
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			if d.ExitCode != tt.want {
				t.Errorf("ExitCode = %d, want %d", d.ExitCode, tt.want)
			}
			if !d.Failed() {
				t.Error("a compiler killed by a signal must count as failed")
			}
		})
	}
}

// alive reports whether pid is still running. Zombies waiting for a reaper
// count as gone.
func alive(pid int) bool {
	if err := syscall.Kill(pid, 0); err != nil {
		return false
	}
	stat, err := os.ReadFile("/proc/" + strconv.Itoa(pid) + "/stat")
	if err != nil {
		return true
	}
	// The state follows the parenthesized command name.
	s := string(stat)
	if i := strings.LastIndexByte(s, ')'); i >= 0 && i+2 < len(s) {
		return s[i+2] != 'Z'
	}
	return true
}

func TestRunCancelKillsGrandchildren(t *testing.T) {
	pidFile := filepath.Join(t.TempDir(), "pid")
	cc := fakeCompiler(t, "sleep 30 &\necho $! > "+pidFile+"\nwait")
	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		for range 100 {
			if _, err := os.Stat(pidFile); err == nil {
				break
			}
			time.Sleep(20 * time.Millisecond)
		}
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()
	_, err := Run(ctx, []string{cc}, Options{Stdin: strings.NewReader(""), WaitDelay: 500 * time.Millisecond})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}

	data, err := os.ReadFile(pidFile)
	if err != nil {
		t.Fatalf("read pid file: %v", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		t.Fatalf("parse pid %q: %v", data, err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for alive(pid) {
		if time.Now().After(deadline) {
			syscall.Kill(pid, syscall.SIGKILL)
			t.Fatalf("grandchild %d survived cancellation", pid)
		}
		time.Sleep(20 * time.Millisecond)
	}
}
