// Package wrapper writes the executable shim used in compiler-wrapper mode.
// A build system invokes the shim in place of the compiler; the shim runs
// cwhy with its bound flags, which in turn runs the real compiler.
package wrapper

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/alessio/shellescape"
)

// Shim describes the launcher to write.
type Shim struct {
	// Self is the absolute path of the cwhy executable.
	Self string
	// Args are cwhy's own arguments, bound into the shim before the
	// command separator.
	Args []string
	// Compiler is the compiler the shim stands in for.
	Compiler string
}

// Script returns the shell script for s. The compiler receives the shim's
// arguments unchanged via "$@", and exec hands the exit status of cwhy
// straight back to the caller.
func (s Shim) Script() string {
	argv := append([]string{s.Self}, s.Args...)
	argv = append(argv, "---", s.Compiler)

	var b strings.Builder
	b.WriteString("#!/bin/sh\n")
	fmt.Fprintf(&b, "# Generated by cwhy: runs %s and explains its diagnostics.\n", s.Compiler)
	fmt.Fprintf(&b, "exec %s \"$@\"\n", shellescape.QuoteCommand(argv))
	return b.String()
}

// Write creates the shim as a new executable file in dir (the system
// temporary directory when dir is empty) and returns its path.
func Write(dir string, s Shim) (string, error) {
	if s.Self == "" {
		return "", errors.New("wrapper: missing cwhy executable path")
	}
	if s.Compiler == "" {
		return "", errors.New("wrapper: missing compiler")
	}
	f, err := os.CreateTemp(dir, "cwhy-wrapper-*")
	if err != nil {
		return "", fmt.Errorf("creating wrapper: %w", err)
	}
	name := f.Name()
	if _, err := f.WriteString(s.Script()); err != nil {
		f.Close()
		os.Remove(name)
		return "", fmt.Errorf("writing wrapper: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(name)
		return "", fmt.Errorf("writing wrapper: %w", err)
	}
	if err := os.Chmod(name, 0o755); err != nil {
		os.Remove(name)
		return "", fmt.Errorf("making wrapper executable: %w", err)
	}
	return name, nil
}
