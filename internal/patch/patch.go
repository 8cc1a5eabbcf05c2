// Package patch decodes the line modifications a model proposes for the
// diff subcommand and renders them as a unified diff.
package patch

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fatih/color"
)

// Modification replaces RemoveLines lines starting at StartLine (1-based)
// with Replacement.
type Modification struct {
	Filename    string   `json:"filename"`
	StartLine   int      `json:"start_line"`
	RemoveLines int      `json:"remove_lines"`
	Replacement []string `json:"replacement"`
}

// Proposal is the model's full reply.
type Proposal struct {
	Modifications []Modification `json:"modifications"`
	Explanation   string         `json:"explanation"`
}

// ErrNoModifications is returned when a reply proposes no changes.
var ErrNoModifications = errors.New("the model proposed no modifications")

// Parse decodes a proposal from a model reply. The JSON object may be wrapped
// in a fenced code block or surrounded by prose.
func Parse(reply string) (Proposal, error) {
	var p Proposal
	body := extractJSON(reply)
	if body == "" {
		return p, fmt.Errorf("no JSON object in reply")
	}
	if err := json.Unmarshal([]byte(body), &p); err != nil {
		return p, fmt.Errorf("parsing proposal: %w", err)
	}
	if len(p.Modifications) == 0 {
		return p, ErrNoModifications
	}
	for i, m := range p.Modifications {
		if m.Filename == "" {
			return p, fmt.Errorf("modification %d: missing filename", i)
		}
		if m.StartLine < 1 {
			return p, fmt.Errorf("modification %d: start_line must be >= 1, got %d", i, m.StartLine)
		}
		if m.RemoveLines < 0 {
			return p, fmt.Errorf("modification %d: remove_lines must be >= 0, got %d", i, m.RemoveLines)
		}
	}
	return p, nil
}

// extractJSON returns the outermost {...} span of s.
func extractJSON(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end < start {
		return ""
	}
	return s[start : end+1]
}

// Options controls rendering.
type Options struct {
	// Dir resolves relative filenames.
	Dir string
	// Context is the number of unchanged lines shown around each change.
	Context int
	// Color enables ANSI colors for added and removed lines.
	Color bool
}

// Render writes a unified diff for every modification in p. Modifications
// are grouped by file and applied bottom-up so earlier line numbers stay
// valid.
func Render(w io.Writer, p Proposal, opts Options) error {
	add := color.New(color.FgGreen)
	del := color.New(color.FgRed)
	hdr := color.New(color.Bold)
	hunk := color.New(color.FgCyan)
	for _, c := range []*color.Color{add, del, hdr, hunk} {
		if opts.Color {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}

	var order []string
	byFile := make(map[string][]Modification)
	for _, m := range p.Modifications {
		if _, ok := byFile[m.Filename]; !ok {
			order = append(order, m.Filename)
		}
		byFile[m.Filename] = append(byFile[m.Filename], m)
	}

	for _, name := range order {
		path := name
		if !filepath.IsAbs(path) && opts.Dir != "" {
			path = filepath.Join(opts.Dir, path)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", name, err)
		}
		lines := splitLines(string(data))

		mods := byFile[name]
		sort.SliceStable(mods, func(i, j int) bool { return mods[i].StartLine < mods[j].StartLine })

		hdr.Fprintf(w, "--- a/%s\n", name)
		hdr.Fprintf(w, "+++ b/%s\n", name)
		shift := 0
		for _, m := range mods {
			if m.StartLine-1 > len(lines) {
				return fmt.Errorf("%s: start_line %d is past the end of the file (%d lines)", name, m.StartLine, len(lines))
			}
			from := m.StartLine - 1
			to := min(from+m.RemoveLines, len(lines))
			before := max(0, from-opts.Context)
			after := min(len(lines), to+opts.Context)

			oldLen := after - before
			newLen := oldLen - (to - from) + len(m.Replacement)
			hunk.Fprintf(w, "@@ -%s +%s @@\n", span(before+1, oldLen), span(before+1+shift, newLen))
			for _, l := range lines[before:from] {
				fmt.Fprintf(w, " %s\n", l)
			}
			for _, l := range lines[from:to] {
				del.Fprintf(w, "-%s\n", l)
			}
			for _, l := range m.Replacement {
				add.Fprintf(w, "+%s\n", l)
			}
			for _, l := range lines[to:after] {
				fmt.Fprintf(w, " %s\n", l)
			}
			shift += len(m.Replacement) - (to - from)
		}
	}
	return nil
}

// span formats a hunk range the way diff(1) does.
func span(start, n int) string {
	if n == 1 {
		return fmt.Sprintf("%d", start)
	}
	if n == 0 {
		start--
	}
	return fmt.Sprintf("%d,%d", start, n)
}

func splitLines(s string) []string {
	s = strings.TrimSuffix(s, "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}
