package llm

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/scbrown/cwhy/internal/model"
)

// Session is a multi-turn conversation about one diagnostic. Every turn is
// an independent request carrying the whole history.
type Session struct {
	Client Client
	Conv   model.Conversation
}

// Send appends content as a user turn, completes the conversation, and
// appends the reply. On failure the user turn is dropped so the history
// stays well-formed for the next attempt.
func (s *Session) Send(ctx context.Context, content string) (model.Explanation, error) {
	s.Conv.Append(model.RoleUser, content)
	exp, err := s.Client.Complete(ctx, s.Conv)
	if err != nil {
		s.Conv.Messages = s.Conv.Messages[:len(s.Conv.Messages)-1]
		return exp, err
	}
	s.Conv.Append(model.RoleAssistant, exp.Text)
	return exp, nil
}

// LoopOptions configures Loop.
type LoopOptions struct {
	In     io.Reader
	Out    io.Writer
	Prompt string // printed before reading each line
	// Render prints a reply; defaults to writing the text and a newline.
	Render func(w io.Writer, exp model.Explanation)
}

// Loop reads follow-up questions line by line until the user types "exit"
// or "quit" or input ends. Provider errors are reported and the loop keeps
// waiting for input; cancellation of ctx ends it.
func (s *Session) Loop(ctx context.Context, opts LoopOptions) error {
	render := opts.Render
	if render == nil {
		render = func(w io.Writer, exp model.Explanation) { fmt.Fprintln(w, exp.Text) }
	}

	sc := bufio.NewScanner(opts.In)
	for {
		if opts.Prompt != "" {
			fmt.Fprint(opts.Out, opts.Prompt)
		}
		if !sc.Scan() {
			if err := sc.Err(); err != nil {
				return fmt.Errorf("reading input: %w", err)
			}
			fmt.Fprintln(opts.Out)
			return nil
		}
		line := strings.TrimSpace(sc.Text())
		switch strings.ToLower(line) {
		case "":
			continue
		case "exit", "quit":
			return nil
		}

		exp, err := s.Send(ctx, line)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			var pe *ProviderError
			if !errors.As(err, &pe) {
				return err
			}
			fmt.Fprintf(opts.Out, "error: %v\n", err)
			continue
		}
		render(opts.Out, exp)
	}
}
