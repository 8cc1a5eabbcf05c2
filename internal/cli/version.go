package cli

import (
	"fmt"
	"io"
	"runtime/debug"

	"github.com/spf13/cobra"
)

// Version and Commit are set at build time via -ldflags.
//
//	go build -ldflags "-X github.com/scbrown/cwhy/internal/cli.Version=v0.2.0
//	  -X github.com/scbrown/cwhy/internal/cli.Commit=48cae1d"
var (
	Version = ""
	Commit  = ""
)

func (a *app) newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version and commit hash",
		Long: `Print the cwhy version string. Same as cwhy --version.

When built from a tagged release, shows the release version; otherwise
the module version recorded by go install, or "dev". The git commit hash
is included when known.

Examples:
  cwhy version v0.2.0 (48cae1d)
  cwhy version dev (48cae1d)`,
		Args: noArgs,
		Run: func(cmd *cobra.Command, args []string) {
			printVersion(a.env.Stdout)
		},
	}
}

// printVersion writes the version line to w.
func printVersion(w io.Writer) {
	v := Version
	if v == "" {
		v = versionFromBuildInfo()
	}

	c := Commit
	if c == "" {
		c = commitFromBuildInfo()
	}

	if c != "" {
		fmt.Fprintf(w, "cwhy version %s (%s)\n", v, shortCommit(c))
	} else {
		fmt.Fprintf(w, "cwhy version %s\n", v)
	}
}

// versionFromBuildInfo returns the main module version recorded by
// go install, or "dev" for local builds.
func versionFromBuildInfo() string {
	info, ok := debug.ReadBuildInfo()
	if !ok || info.Main.Version == "" || info.Main.Version == "(devel)" {
		return "dev"
	}
	return info.Main.Version
}

// commitFromBuildInfo extracts vcs.revision from Go's embedded build info.
func commitFromBuildInfo() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, s := range info.Settings {
		if s.Key == "vcs.revision" {
			return s.Value
		}
	}
	return ""
}

// shortCommit returns the first 7 characters of a commit hash.
func shortCommit(c string) string {
	if len(c) > 7 {
		return c[:7]
	}
	return c
}
