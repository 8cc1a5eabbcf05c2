// Package model defines core types for cwhy: compiler invocations, captured
// diagnostics, prompts, conversations with a language model, and history
// entries.
package model

import (
	"strings"
	"time"
)

// Subcommand names the action cwhy takes on a failed compilation.
type Subcommand string

const (
	Explain        Subcommand = "explain"
	Fix            Subcommand = "fix"
	Diff           Subcommand = "diff"
	ExtractSources Subcommand = "extract-sources"
)

// Subcommands lists every subcommand in the order they are documented.
func Subcommands() []Subcommand {
	return []Subcommand{Explain, Fix, Diff, ExtractSources}
}

// NeedsModel reports whether the subcommand sends a request to a language model.
func (s Subcommand) NeedsModel() bool {
	return s != ExtractSources
}

// Invocation is the original compiler command line, argv[0] first.
type Invocation []string

// String renders the command line for display. It is not shell-quoted.
func (inv Invocation) String() string {
	return strings.Join(inv, " ")
}

// Diagnostic is the output of one compiler run.
type Diagnostic struct {
	Command  Invocation    `json:"command"`
	Text     string        `json:"text"` // stdout and stderr interleaved in arrival order
	Stdout   string        `json:"stdout,omitempty"`
	Stderr   string        `json:"stderr,omitempty"`
	ExitCode int           `json:"exit_code"`
	Duration time.Duration `json:"duration"`
}

// Failed reports whether the compiler exited non-zero.
func (d Diagnostic) Failed() bool {
	return d.ExitCode != 0
}

// SourceExcerpt is a contiguous run of lines read from a file referenced by a diagnostic.
type SourceExcerpt struct {
	Path      string   `json:"path"`
	FirstLine int      `json:"first_line"` // 1-based
	Lines     []string `json:"lines"`
}

// LastLine returns the 1-based number of the final line in the excerpt.
func (e SourceExcerpt) LastLine() int {
	return e.FirstLine + len(e.Lines) - 1
}

// Prompt is the payload sent to the model, kept in sections so it can be
// rebuilt or inspected without re-parsing.
type Prompt struct {
	Subcommand        Subcommand `json:"subcommand"`
	Preamble          string     `json:"preamble"`
	Code              string     `json:"code,omitempty"`
	Diagnostic        string     `json:"diagnostic"`
	Instruction       string     `json:"instruction,omitempty"`
	DiagnosticTrimmed bool       `json:"diagnostic_trimmed,omitempty"`
	CodeTrimmed       bool       `json:"code_trimmed,omitempty"`
}

// String renders the prompt text.
func (p Prompt) String() string {
	var b strings.Builder
	b.WriteString(p.Preamble)
	if p.Code != "" {
		b.WriteString("This is my code:\n\n```\n")
		b.WriteString(p.Code)
		b.WriteString("\n```\n\n")
	}
	b.WriteString("This is my error:\n\n```\n")
	b.WriteString(p.Diagnostic)
	b.WriteString("\n```\n")
	if p.Instruction != "" {
		b.WriteString("\n")
		b.WriteString(p.Instruction)
		b.WriteString("\n")
	}
	return b.String()
}

// Role identifies the author of a conversation message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single turn in a conversation.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Conversation is the accumulated history sent with every request.
type Conversation struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	// JSON asks the provider for a JSON object response when it supports it.
	JSON bool `json:"json,omitempty"`
}

// Append adds a message to the conversation.
func (c *Conversation) Append(role Role, content string) {
	c.Messages = append(c.Messages, Message{Role: role, Content: content})
}

// Explanation is a model response.
type Explanation struct {
	Model        string `json:"model"`
	Text         string `json:"text"`
	InputTokens  int    `json:"input_tokens,omitempty"`
	OutputTokens int    `json:"output_tokens,omitempty"`
}

// HistoryEntry is an explanation persisted to the optional history database.
type HistoryEntry struct {
	ID         string     `json:"id"`
	Timestamp  time.Time  `json:"timestamp"`
	Subcommand Subcommand `json:"subcommand"`
	Command    string     `json:"command"`
	ExitCode   int        `json:"exit_code"`
	Model      string     `json:"model"`
	Prompt     string     `json:"prompt"`
	Response   string     `json:"response"`
	CWD        string     `json:"cwd,omitempty"`
}
