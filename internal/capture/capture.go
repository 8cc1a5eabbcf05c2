// Package capture runs a compiler as a child process and records its output
// and exit code.
package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/scbrown/cwhy/internal/model"
)

// ErrEmptyCommand is returned when there is no command to run.
var ErrEmptyCommand = errors.New("no command to run")

// LaunchError reports that the compiler could not be started at all. It is
// distinct from a compiler that ran and failed.
type LaunchError struct {
	Command string
	Err     error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("cannot launch %s: %v", e.Command, e.Err)
}

func (e *LaunchError) Unwrap() error {
	return e.Err
}

// Options controls how the child process is run.
type Options struct {
	// Stdout and Stderr, when set, receive the child's streams live in
	// addition to the captured copy.
	Stdout io.Writer
	Stderr io.Writer
	// Stdin is inherited by the child only when it is an *os.File, so no
	// input is consumed on the child's behalf and a caller can keep reading
	// the same stream afterwards. Any other reader leaves the child's stdin
	// on the null device. Nil means os.Stdin.
	Stdin io.Reader
	Dir   string
	Env   []string
	// WaitDelay bounds how long Run waits for output pipes after the child
	// exits or is killed. Zero means 2 seconds.
	WaitDelay time.Duration
}

// Run executes argv and returns its captured output. A non-zero exit status
// is reported in Diagnostic.ExitCode, not as an error. The only errors are
// ErrEmptyCommand, a *LaunchError, or the context's error when the run was
// cancelled.
func Run(ctx context.Context, argv []string, opts Options) (model.Diagnostic, error) {
	d := model.Diagnostic{Command: append(model.Invocation(nil), argv...)}
	if len(argv) == 0 {
		return d, ErrEmptyCommand
	}

	path, err := exec.LookPath(argv[0])
	if err != nil {
		return d, &LaunchError{Command: argv[0], Err: err}
	}

	var stdout, stderr bytes.Buffer
	combined := &lockedBuffer{}

	cmd := exec.CommandContext(ctx, path, argv[1:]...)
	cmd.Args[0] = argv[0]
	cmd.Dir = opts.Dir
	cmd.Env = opts.Env
	cmd.Stdin = childStdin(opts.Stdin)
	cmd.Stdout = tee(&stdout, combined, opts.Stdout)
	cmd.Stderr = tee(&stderr, combined, opts.Stderr)
	killProcessGroup(cmd)
	cmd.WaitDelay = opts.WaitDelay
	if cmd.WaitDelay == 0 {
		cmd.WaitDelay = 2 * time.Second
	}

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return d, &LaunchError{Command: argv[0], Err: err}
	}
	err = cmd.Wait()
	d.Duration = time.Since(start)
	d.Stdout = stdout.String()
	d.Stderr = stderr.String()
	d.Text = combined.String()

	if ctxErr := ctx.Err(); ctxErr != nil {
		d.ExitCode = exitCode(cmd.ProcessState)
		return d, fmt.Errorf("compiler interrupted: %w", ctxErr)
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		d.ExitCode = 0
	case errors.As(err, &exitErr):
		d.ExitCode = exitCode(exitErr.ProcessState)
	case errors.Is(err, exec.ErrWaitDelay):
		d.ExitCode = exitCode(cmd.ProcessState)
	default:
		return d, fmt.Errorf("waiting for %s: %w", argv[0], err)
	}
	return d, nil
}

// childStdin returns what the child reads as stdin.
func childStdin(r io.Reader) io.Reader {
	if r == nil {
		return os.Stdin
	}
	if f, ok := r.(*os.File); ok {
		return f
	}
	return nil
}

// exitCode follows the shell convention of 128+signal for a child killed by
// a signal, where ProcessState.ExitCode reports -1.
func exitCode(ps *os.ProcessState) int {
	if code := ps.ExitCode(); code >= 0 {
		return code
	}
	if ws, ok := ps.Sys().(interface {
		Signaled() bool
		Signal() syscall.Signal
	}); ok && ws.Signaled() {
		return 128 + int(ws.Signal())
	}
	return -1
}

// tee fans one stream out to its own buffer, the combined buffer, and an
// optional live writer.
func tee(own *bytes.Buffer, combined *lockedBuffer, live io.Writer) io.Writer {
	if live == nil {
		return io.MultiWriter(own, combined)
	}
	return io.MultiWriter(own, combined, live)
}

// lockedBuffer is written by the stdout and stderr copy goroutines at once.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
