// Package prompt turns captured compiler diagnostics into a token-budgeted
// prompt: it extracts the source lines a diagnostic refers to, estimates
// token counts, and truncates each section to its own budget.
package prompt

import (
	"github.com/charmbracelet/log"

	"github.com/scbrown/cwhy/internal/model"
)

// DefaultMaxTokens is the default budget for each of the diagnostic and code
// sections. A 4096-token context keeps 256 tokens for the rest of the
// prompt and splits the remainder between the two sections.
const DefaultMaxTokens = 1920

// Preamble opens every prompt.
const Preamble = "I ran a compiler and it reported the diagnostics below. " +
	"Where available, the source code the diagnostics refer to is included, " +
	"with line numbers in the left column.\n\n"

// SystemMessage sets up the model for every conversation.
const SystemMessage = "You are an expert in compilers and programming languages. " +
	"You explain compiler diagnostics to programmers clearly and concisely, " +
	"and you only propose changes you are confident compile."

var instructions = map[model.Subcommand]string{
	model.Explain: "What's the problem? If you can, point to the line of code that causes it " +
		"and explain clearly and concisely why the compiler rejects it. Don't suggest a fix.",
	model.Fix: "Suggest code to fix the problem. Surround the code in backticks (```). " +
		"After the code, explain in a few sentences why the change fixes the problem.",
	model.Diff: "Fix the problem by modifying the code shown above. Reply with only a JSON object of the form " +
		`{"modifications": [{"filename": string, "start_line": int, "remove_lines": int, "replacement": [string]}], "explanation": string}. ` +
		"Line numbers are 1-based and refer to the numbers shown in the left column. " +
		"Each modification removes remove_lines lines starting at start_line and inserts the replacement lines in their place.",
}

// Instruction returns the closing request for a subcommand, or "" when the
// subcommand does not talk to a model.
func Instruction(sub model.Subcommand) string {
	return instructions[sub]
}

// Builder assembles prompts under two independent token budgets.
type Builder struct {
	Counter        Counter
	MaxErrorTokens int
	MaxCodeTokens  int
	// Logger receives a warning whenever a section is truncated.
	Logger *log.Logger
}

// Build assembles the prompt for sub from the diagnostic text and the source
// excerpts it refers to. Each section is truncated to its own budget;
// building again from the returned sections yields the same prompt.
func (b Builder) Build(sub model.Subcommand, diagnostic string, excerpts []model.SourceExcerpt) model.Prompt {
	return b.BuildText(sub, diagnostic, RenderExcerpts(excerpts))
}

// BuildText is Build for code that is already rendered.
func (b Builder) BuildText(sub model.Subcommand, diagnostic, code string) model.Prompt {
	c := b.counter()
	diag, diagTrimmed := TruncateMiddle(c, diagnostic, b.MaxErrorTokens)
	excerpt, codeTrimmed := TruncateHead(c, code, b.MaxCodeTokens)

	if b.Logger != nil {
		if diagTrimmed {
			b.Logger.Warn("compiler output exceeds the token budget; the model sees a truncated copy",
				"tokens", c.Count(diagnostic), "max_error_tokens", b.MaxErrorTokens)
		}
		if codeTrimmed {
			b.Logger.Warn("source excerpts exceed the token budget; the model sees a truncated copy",
				"tokens", c.Count(code), "max_code_tokens", b.MaxCodeTokens)
		}
	}

	return model.Prompt{
		Subcommand:        sub,
		Preamble:          Preamble,
		Code:              excerpt,
		Diagnostic:        diag,
		Instruction:       Instruction(sub),
		DiagnosticTrimmed: diagTrimmed,
		CodeTrimmed:       codeTrimmed,
	}
}

func (b Builder) counter() Counter {
	if b.Counter == nil {
		return Approx{}
	}
	return b.Counter
}
