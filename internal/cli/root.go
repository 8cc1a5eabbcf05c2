// Package cli defines the cobra command tree for the cwhy CLI.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/scbrown/cwhy/internal/capture"
	"github.com/scbrown/cwhy/internal/llm"
	"github.com/scbrown/cwhy/internal/model"
	"github.com/scbrown/cwhy/internal/suggest"
)

// Separator ends cwhy's own arguments; everything after it is the compiler
// command line.
const Separator = "---"

// Exit codes other than the compiler's own.
const (
	ExitOK     = 0
	ExitError  = 1
	ExitLaunch = 127
)

// Env is the process environment a run sees.
type Env struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	Getenv func(string) string
	// Dir is the working directory for the compiler and for resolving
	// source paths; empty means the current directory.
	Dir string
	// HTTPClient is used for provider requests; nil uses a default client.
	HTTPClient *http.Client
}

// OSEnv returns the Env of the running process.
func OSEnv() Env {
	return Env{
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
		Getenv: os.Getenv,
	}
}

// UsageError reports bad or conflicting arguments. The usage text is printed
// with it and nothing else happens.
type UsageError struct {
	Err error
}

func (e *UsageError) Error() string { return e.Err.Error() }

func (e *UsageError) Unwrap() error { return e.Err }

func usageErrorf(format string, args ...any) error {
	return &UsageError{Err: fmt.Errorf(format, args...)}
}

// flags holds the values bound to the command-line flags of one run.
type flags struct {
	llm             string
	timeout         int
	maxErrorTokens  int
	maxCodeTokens   int
	showPrompt      bool
	compilerWrapper string
	tokenizer       string
	historyDB       string
	contextLines    int
	configPath      string
	verbose         bool
	version         bool
	interactive     bool
}

// app carries everything one run needs. It is built per call to Run so that
// no state outlives a run.
type app struct {
	env     Env
	command []string
	flags   flags
	logger  *log.Logger
	// exitCode is returned when the command finishes without error.
	exitCode int
}

// Run executes cwhy with args (without the program name) and returns the
// process exit code.
func Run(ctx context.Context, args []string, env Env) int {
	if env.Getenv == nil {
		env.Getenv = func(string) string { return "" }
	}
	if env.Stdin == nil {
		env.Stdin = strings.NewReader("")
	}
	own, command := splitCommand(args)

	a := &app{
		env:     env,
		command: command,
		logger: log.NewWithOptions(env.Stderr, log.Options{
			Prefix: "cwhy",
			Level:  log.WarnLevel,
		}),
	}

	if wantsVersion(own) {
		printVersion(env.Stdout)
		return ExitOK
	}

	root := a.newRootCmd()
	root.SetArgs(own)
	cmd, err := root.ExecuteContextC(ctx)
	if cmd == nil {
		cmd = root
	}
	return a.exit(cmd, err)
}

// exit converts the outcome of a command into a message and exit code.
func (a *app) exit(cmd *cobra.Command, err error) int {
	if err == nil {
		return a.exitCode
	}
	prefix := color.New(color.FgRed, color.Bold)
	if isTTY(a.env.Stderr) {
		prefix.EnableColor()
	} else {
		prefix.DisableColor()
	}
	w := a.env.Stderr

	var ue *UsageError
	var le *capture.LaunchError
	var pe *llm.ProviderError
	switch {
	case errors.As(err, &ue):
		fmt.Fprintf(w, "%s %v\n\n", prefix.Sprint("Error:"), ue.Err)
		fmt.Fprint(w, cmd.UsageString())
		return ExitError
	case errors.As(err, &le):
		fmt.Fprintf(w, "%s %v\n", prefix.Sprint("Error:"), le)
		return ExitLaunch
	case errors.Is(err, llm.ErrMissingCredentials):
		fmt.Fprintf(w, "%s configuration: %v\n", prefix.Sprint("Error:"), err)
		return ExitError
	case errors.As(err, &pe):
		fmt.Fprintf(w, "%s %v\n", prefix.Sprint("Error:"), pe)
		return ExitError
	case errors.Is(err, context.Canceled):
		fmt.Fprintf(w, "%s interrupted\n", prefix.Sprint("Error:"))
		return ExitError
	default:
		fmt.Fprintf(w, "%s %v\n", prefix.Sprint("Error:"), err)
		return ExitError
	}
}

// splitCommand separates cwhy's arguments from the compiler command line at
// the first Separator.
func splitCommand(args []string) (own, command []string) {
	for i, a := range args {
		if a == Separator {
			return args[:i], args[i+1:]
		}
	}
	return args, nil
}

// wantsVersion reports whether --version appears among cwhy's own arguments.
func wantsVersion(own []string) bool {
	for _, a := range own {
		if a == "--version" || a == "--version=true" {
			return true
		}
	}
	return false
}

func (a *app) newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "cwhy [explain|fix|diff|extract-sources] [flags] --- <command...>",
		Short: "Explain and fix compiler diagnostics with a language model",
		Long: `cwhy runs a compiler, and when it fails, sends the diagnostics and the
source lines they point at to a language model for an explanation or a fix.

Everything after --- is the compiler command line; it runs unchanged and its
output is shown as usual. When the compiler succeeds nothing else happens.
cwhy exits with the compiler's exit code.

Instead of a command, --compiler-wrapper <compiler> writes an executable shim
that can be used in place of the compiler in a build (e.g. CC=$(cwhy
--compiler-wrapper gcc)).

The API key is read from OPENAI_API_KEY, or ANTHROPIC_API_KEY for claude-*
models. Defaults can be stored in ~/.cwhy/config.toml (see cwhy config).`,
		Example: `  # Explain why a file does not compile
  cwhy --- gcc -c broken.c

  # Ask for a fix using a different model
  cwhy fix --llm gpt-4 --- clang++ -std=c++20 main.cpp

  # Propose a patch and keep asking follow-up questions
  cwhy diff --interactive --- cc -c broken.c

  # Print the prompt without contacting the model
  cwhy --show-prompt --- gcc -c broken.c

  # Explain every failure in a build
  make CC="$(cwhy --compiler-wrapper gcc)"`,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return nil
			}
			return unknownCommand(cmd, args[0])
		},
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if a.flags.verbose {
				a.logger.SetLevel(log.DebugLevel)
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runCompile(cmd, model.Explain)
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.SetIn(a.env.Stdin)
	root.SetOut(a.env.Stdout)
	root.SetErr(a.env.Stderr)
	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return &UsageError{Err: err}
	})

	f := &a.flags
	pf := root.PersistentFlags()
	pf.StringVar(&f.llm, "llm", defaultSettings.LLM, "the language model to use, e.g. gpt-4 or claude-3-5-sonnet-latest")
	pf.IntVar(&f.timeout, "timeout", int(defaultSettings.Timeout.Seconds()), "timeout for API calls in seconds")
	pf.IntVar(&f.maxErrorTokens, "max-error-tokens", defaultSettings.MaxErrorTokens, "maximum number of tokens from the compiler output to send")
	pf.IntVar(&f.maxCodeTokens, "max-code-tokens", defaultSettings.MaxCodeTokens, "maximum number of tokens of source code to send")
	pf.BoolVar(&f.showPrompt, "show-prompt", false, "print the prompt and exit without contacting the model")
	pf.StringVar(&f.compilerWrapper, "compiler-wrapper", "", "write a shim that wraps `compiler` and print its path")
	pf.StringVar(&f.tokenizer, "tokenizer", defaultSettings.Tokenizer, "token counting method: approx or tiktoken")
	pf.StringVar(&f.historyDB, "history-db", "", "record explanations in this SQLite database (\"default\" for ~/.cwhy/history.db)")
	pf.IntVar(&f.contextLines, "context-lines", defaultSettings.ContextLines, "source lines shown around each referenced location")
	pf.StringVar(&f.configPath, "config", "", "path to the config file (default ~/.cwhy/config.toml)")
	pf.BoolVarP(&f.verbose, "verbose", "v", false, "log debug output to stderr")
	pf.BoolVar(&f.version, "version", false, "print the version of cwhy and exit")

	root.AddCommand(
		a.newCompileCmd(model.Explain, "Explain the compiler diagnostics (default)"),
		a.newCompileCmd(model.Fix, "Suggest code that fixes the diagnostics"),
		a.newDiffCmd(),
		a.newCompileCmd(model.ExtractSources, "Print the source lines the diagnostics refer to"),
		a.newConfigCmd(),
		a.newHistoryCmd(),
		a.newVersionCmd(),
	)
	return root
}

// unknownCommand builds the usage error for a positional argument that is
// not a subcommand, with a "did you mean" hint when one is close.
func unknownCommand(cmd *cobra.Command, name string) error {
	var known []string
	for _, c := range cmd.Commands() {
		if c.IsAvailableCommand() {
			known = append(known, c.Name())
		}
	}
	if near := suggest.Names(name, known); len(near) > 0 {
		return usageErrorf("unknown command %q (did you mean %s?); put the compiler command after %s",
			name, strings.Join(near, " or "), Separator)
	}
	return usageErrorf("unknown command %q; put the compiler command after %s", name, Separator)
}

// noArgs rejects positional arguments as a usage error.
func noArgs(cmd *cobra.Command, args []string) error {
	if len(args) > 0 {
		return usageErrorf("%s takes no arguments; put the compiler command after %s", cmd.Name(), Separator)
	}
	return nil
}
