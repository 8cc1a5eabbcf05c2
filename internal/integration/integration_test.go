//go:build integration

// Package integration provides end-to-end tests that exercise the compiled
// cwhy binary. Tests in this package are excluded from normal `go test ./...`
// runs and require the build tag: go test -tags integration ./internal/integration/
//
// TestMain builds the cwhy binary once into a temporary directory and makes it
// available via cwhyBin for all tests. Each test creates an isolated cwhyEnv
// with its own HOME, project directory, and fake compiler.
package integration

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"sync/atomic"
	"testing"
)

// cwhyBin holds the path to the compiled cwhy binary, set once in TestMain.
var cwhyBin string

// TestMain builds the cwhy binary and runs all integration tests.
func TestMain(m *testing.M) {
	tmp, err := os.MkdirTemp("", "cwhy-integration-*")
	if err != nil {
		fmt.Fprintf(os.Stderr, "integration: create temp dir: %v\n", err)
		os.Exit(1)
	}
	defer os.RemoveAll(tmp)

	bin := filepath.Join(tmp, "cwhy")
	cmd := exec.Command("go", "build", "-o", bin, "./cmd/cwhy")
	cmd.Dir = modRoot()
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "integration: build cwhy binary: %v\n", err)
		os.Exit(1)
	}

	cwhyBin = bin
	os.Exit(m.Run())
}

// modRoot returns the module root directory by walking up from the package
// directory until go.mod is found.
func modRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		panic(fmt.Sprintf("integration: getwd: %v", err))
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			panic("integration: could not find go.mod in any parent directory")
		}
		dir = parent
	}
}

const brokenC = `#include <stdio.h>

int main(void) {
    int x = 1
    return x;
}
`

const brokenDiag = "broken.c:4:14: error: expected ';' before 'return'"

// cwhyEnv is an isolated test environment. The project directory holds
// broken.c; cc is a fake compiler that rejects it.
type cwhyEnv struct {
	t       *testing.T
	home    string
	project string
	cc      string
	vars    map[string]string
}

// newEnv creates an isolated cwhyEnv for a single test.
func newEnv(t *testing.T) *cwhyEnv {
	t.Helper()
	home := t.TempDir()
	project := t.TempDir()
	if err := os.WriteFile(filepath.Join(project, "broken.c"), []byte(brokenC), 0o644); err != nil {
		t.Fatalf("write broken.c: %v", err)
	}
	cc := filepath.Join(t.TempDir(), "gcc")
	script := "#!/bin/sh\necho \"" + brokenDiag + "\" >&2\nexit 1\n"
	if err := os.WriteFile(cc, []byte(script), 0o755); err != nil {
		t.Fatalf("write fake compiler: %v", err)
	}
	return &cwhyEnv{t: t, home: home, project: project, cc: cc, vars: map[string]string{}}
}

// cfgPath is the default config file location inside the sandboxed HOME.
func (e *cwhyEnv) cfgPath() string {
	return filepath.Join(e.home, ".cwhy", "config.toml")
}

// writeConfig writes ~/.cwhy/config.toml in the sandboxed HOME.
func (e *cwhyEnv) writeConfig(content string) {
	e.t.Helper()
	if err := os.MkdirAll(filepath.Dir(e.cfgPath()), 0o755); err != nil {
		e.t.Fatalf("create config dir: %v", err)
	}
	if err := os.WriteFile(e.cfgPath(), []byte(content), 0o644); err != nil {
		e.t.Fatalf("write config: %v", err)
	}
}

// environ returns a minimal environment so no real API key leaks into the
// child process.
func (e *cwhyEnv) environ() []string {
	env := []string{
		"PATH=" + os.Getenv("PATH"),
		"HOME=" + e.home,
		"TMPDIR=" + e.home,
	}
	for k, v := range e.vars {
		env = append(env, k+"="+v)
	}
	return env
}

// run executes `cwhy <args>` in the project directory and returns stdout,
// stderr and the exit code.
func (e *cwhyEnv) run(stdin []byte, args ...string) (stdout, stderr string, code int) {
	e.t.Helper()
	cmd := exec.Command(cwhyBin, args...)
	cmd.Dir = e.project
	cmd.Env = e.environ()
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}
	var outBuf, errBuf bytes.Buffer
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf
	err := cmd.Run()
	return outBuf.String(), errBuf.String(), exitCode(err)
}

// mustRun is like run but calls t.Fatal unless the exit code is want.
func (e *cwhyEnv) mustRun(want int, stdin []byte, args ...string) (stdout, stderr string) {
	e.t.Helper()
	stdout, stderr, code := e.run(stdin, args...)
	if code != want {
		e.t.Fatalf("cwhy %v exited %d, want %d\nstdout: %s\nstderr: %s", args, code, want, stdout, stderr)
	}
	return stdout, stderr
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

// provider is a fake OpenAI-compatible endpoint.
type provider struct {
	calls atomic.Int32
	url   string
}

// newProvider starts a provider answering every chat completion with reply
// and points e at it.
func (e *cwhyEnv) newProvider(reply string) *provider {
	e.t.Helper()
	p := &provider{}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /chat/completions", func(w http.ResponseWriter, r *http.Request) {
		p.calls.Add(1)
		var req struct {
			Model string `json:"model"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"model":   req.Model,
			"choices": []any{map[string]any{"message": map[string]string{"role": "assistant", "content": reply}}},
			"usage":   map[string]int{"prompt_tokens": 42, "completion_tokens": 7},
		})
	})
	ts := httptest.NewServer(mux)
	e.t.Cleanup(ts.Close)
	p.url = ts.URL
	e.vars["OPENAI_API_KEY"] = "sk-integration"
	e.vars["OPENAI_BASE_URL"] = ts.URL
	return p
}
