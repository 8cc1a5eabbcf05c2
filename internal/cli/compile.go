package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/scbrown/cwhy/internal/capture"
	"github.com/scbrown/cwhy/internal/config"
	"github.com/scbrown/cwhy/internal/llm"
	"github.com/scbrown/cwhy/internal/model"
	"github.com/scbrown/cwhy/internal/patch"
	"github.com/scbrown/cwhy/internal/prompt"
	"github.com/scbrown/cwhy/internal/record"
	"github.com/scbrown/cwhy/internal/store"
	"github.com/scbrown/cwhy/internal/wrapper"
)

// diffContext is the number of unchanged lines shown around each change.
const diffContext = 3

func (a *app) newCompileCmd(sub model.Subcommand, short string) *cobra.Command {
	return &cobra.Command{
		Use:   string(sub) + " [flags] --- <command...>",
		Short: short,
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runCompile(cmd, sub)
		},
	}
}

func (a *app) newDiffCmd() *cobra.Command {
	cmd := a.newCompileCmd(model.Diff, "Propose the fix as a diff against the source files")
	cmd.Long = `Ask the model for line modifications that fix the diagnostics and show
them as a unified diff. Nothing is written to disk.

With --interactive, follow-up questions are read from standard input after
the first proposal; every question is sent with the whole conversation so
far. Type exit or quit, or end the input, to stop.`
	cmd.Flags().BoolVar(&a.flags.interactive, "interactive", false, "keep asking follow-up questions after the first proposal")
	return cmd
}

// runCompile is the workflow shared by the compiler subcommands: run the
// compiler, build the prompt, ask the model and render the answer.
func (a *app) runCompile(cmd *cobra.Command, sub model.Subcommand) error {
	ctx := cmd.Context()
	if (a.flags.compilerWrapper == "") == (len(a.command) == 0) {
		return usageErrorf("Please specify either a command to run (using %s) or --compiler-wrapper, but not both.", Separator)
	}
	s, err := a.settings(cmd)
	if err != nil {
		return err
	}
	if a.flags.compilerWrapper != "" {
		return a.writeWrapper(sub, s)
	}

	diag, err := capture.Run(ctx, a.command, capture.Options{
		Stdin:  a.env.Stdin,
		Stdout: a.env.Stdout,
		Stderr: a.env.Stderr,
		Dir:    a.env.Dir,
	})
	if err != nil {
		return err
	}
	a.logger.Debug("compiler finished", "command", diag.Command.String(),
		"exit_code", diag.ExitCode, "duration", diag.Duration)
	a.exitCode = diag.ExitCode
	if !diag.Failed() {
		return nil
	}

	excerpts := prompt.Extractor{Dir: a.env.Dir, Context: s.ContextLines}.Extract(diag.Text)
	a.logger.Debug("source excerpts", "count", len(excerpts))
	if sub == model.ExtractSources {
		fmt.Fprint(a.env.Stdout, prompt.RenderExcerpts(excerpts))
		return nil
	}

	counter, err := prompt.NewCounter(s.Tokenizer, a.logger)
	if err != nil {
		return err
	}
	p := prompt.Builder{
		Counter:        counter,
		MaxErrorTokens: s.MaxErrorTokens,
		MaxCodeTokens:  s.MaxCodeTokens,
		Logger:         a.logger,
	}.Build(sub, diag.Text, excerpts)

	if a.flags.showPrompt {
		fmt.Fprint(a.env.Stdout, p.String())
		a.exitCode = ExitOK
		return nil
	}

	cfg := llm.ConfigFromEnv(a.env.Getenv)
	cfg.Timeout = s.Timeout
	cfg.HTTPClient = a.env.HTTPClient
	client, err := llm.New(s.LLM, cfg)
	if err != nil {
		return err
	}

	session := &llm.Session{Client: client, Conv: model.Conversation{Model: s.LLM, JSON: sub == model.Diff}}
	session.Conv.Append(model.RoleSystem, prompt.SystemMessage)
	exp, err := session.Send(ctx, p.String())
	if err != nil {
		return err
	}
	a.logger.Debug("model replied", "model", exp.Model,
		"input_tokens", exp.InputTokens, "output_tokens", exp.OutputTokens)

	render := a.renderText
	if sub == model.Diff {
		render = a.renderDiff
	}
	fmt.Fprintln(a.env.Stdout, banner(a.env.Stdout, fmt.Sprintf("cwhy %s (%s)", sub, s.LLM)))
	render(a.env.Stdout, exp)

	a.recordHistory(ctx, s, record.Entry(sub, diag, s.LLM, p, exp.Text))

	if sub == model.Diff && a.flags.interactive {
		return session.Loop(ctx, llm.LoopOptions{
			In:     a.env.Stdin,
			Out:    a.env.Stdout,
			Prompt: "> ",
			Render: a.renderDiff,
		})
	}
	return nil
}

// renderText prints a plain explanation.
func (a *app) renderText(w io.Writer, exp model.Explanation) {
	fmt.Fprintln(w, exp.Text)
}

// renderDiff prints a proposal as a unified diff followed by its
// explanation. A reply that cannot be decoded is printed as is.
func (a *app) renderDiff(w io.Writer, exp model.Explanation) {
	p, err := patch.Parse(exp.Text)
	switch {
	case errors.Is(err, patch.ErrNoModifications):
		a.logger.Warn("the model proposed no modifications")
	case err != nil:
		a.logger.Warn("could not decode the proposed modifications; showing the raw reply", "err", err)
		fmt.Fprintln(w, exp.Text)
		return
	default:
		if err := patch.Render(w, p, patch.Options{Dir: a.env.Dir, Context: diffContext, Color: isTTY(w)}); err != nil {
			a.logger.Warn("could not render the proposed modifications; showing the raw reply", "err", err)
			fmt.Fprintln(w, exp.Text)
			return
		}
	}
	if p.Explanation != "" {
		fmt.Fprintln(w)
		fmt.Fprintln(w, p.Explanation)
	}
}

// recordHistory stores the explanation when a history database is
// configured. Failures are logged; they never change the outcome of a run.
func (a *app) recordHistory(ctx context.Context, s config.Settings, e model.HistoryEntry) {
	if s.HistoryDB == "" {
		return
	}
	st, err := store.New(s.HistoryDB)
	if err != nil {
		a.logger.Warn("history disabled for this run", "err", err)
		return
	}
	defer st.Close()
	if a.env.Dir != "" {
		e.CWD = a.env.Dir
	}
	saved, err := record.Record(ctx, st, e)
	if err != nil {
		a.logger.Warn("could not record history", "err", err)
		return
	}
	a.logger.Debug("recorded history entry", "id", saved.ID)
}

// writeWrapper writes the shim for --compiler-wrapper and prints its path.
// The resolved settings are bound into the shim so every compiler run in
// the build behaves the same.
func (a *app) writeWrapper(sub model.Subcommand, s config.Settings) error {
	self, err := os.Executable()
	if err != nil {
		return fmt.Errorf("locating cwhy executable: %w", err)
	}
	path, err := wrapper.Write("", wrapper.Shim{
		Self:     self,
		Args:     shimArgs(sub, s, a.flags.showPrompt),
		Compiler: a.flags.compilerWrapper,
	})
	if err != nil {
		return err
	}
	if a.flags.interactive {
		a.logger.Warn("--interactive is ignored in compiler wrapper mode")
	}
	fmt.Fprintln(a.env.Stdout, path)
	return nil
}

// shimArgs returns the arguments a shim passes to cwhy before the separator.
func shimArgs(sub model.Subcommand, s config.Settings, showPrompt bool) []string {
	args := []string{
		string(sub),
		"--llm", s.LLM,
		"--timeout", strconv.Itoa(int(s.Timeout.Seconds())),
		"--max-error-tokens", strconv.Itoa(s.MaxErrorTokens),
		"--max-code-tokens", strconv.Itoa(s.MaxCodeTokens),
		"--tokenizer", s.Tokenizer,
		"--context-lines", strconv.Itoa(s.ContextLines),
	}
	if s.HistoryDB != "" {
		args = append(args, "--history-db", s.HistoryDB)
	}
	if showPrompt {
		args = append(args, "--show-prompt")
	}
	return args
}
