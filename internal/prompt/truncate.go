package prompt

import (
	"fmt"
	"strings"
)

// Markers inserted where text was cut. They are plain lines so the model
// reads them as part of the excerpt.
const (
	diagnosticMarker = "[... %d lines omitted to fit the token budget ...]"
	codeMarker       = "[... %d lines of code omitted to fit the token budget ...]"
	lineCutMarker    = "[... output truncated to fit the token budget ...]"
)

// TruncateMiddle fits text into budget tokens by keeping lines from both
// ends and replacing the middle with a marker line. The first lines of a
// compiler diagnostic usually name the root error and the last lines
// summarize it, so both ends are worth more than the middle.
//
// The result always fits the budget, and text that already fits is returned
// unchanged, so TruncateMiddle is idempotent. The bool reports whether
// anything was removed.
func TruncateMiddle(c Counter, text string, budget int) (string, bool) {
	return truncate(c, text, budget, true, diagnosticMarker)
}

// TruncateHead fits text into budget tokens by keeping its leading lines and
// appending a marker line. Like TruncateMiddle it is idempotent.
func TruncateHead(c Counter, text string, budget int) (string, bool) {
	return truncate(c, text, budget, false, codeMarker)
}

func truncate(c Counter, text string, budget int, keepTail bool, marker string) (string, bool) {
	if c.Count(text) <= budget {
		return text, false
	}
	if budget <= 0 {
		return "", true
	}

	lines := strings.Split(text, "\n")
	n := len(lines)
	build := func(keep int) string {
		return assemble(lines, keep, keepTail, fmt.Sprintf(marker, n-keep))
	}

	// Largest number of kept lines that fits. Token counts grow with kept
	// lines, so a binary search finds the boundary; the linear step below
	// covers counters where that is only approximately true.
	lo, hi := 0, n-1
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if c.Count(build(mid)) <= budget {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	for k := lo; k > 0; k-- {
		if s := build(k); c.Count(s) <= budget {
			return s, true
		}
	}

	// Not even one whole line fits: keep a prefix of the first line.
	if s, ok := cutLine(c, lines[0], budget); ok {
		return s, true
	}
	if s := fmt.Sprintf(marker, n); c.Count(s) <= budget {
		return s, true
	}
	return cutRunes(c, lineCutMarker, budget), true
}

// assemble joins the kept head and tail lines around the marker.
func assemble(lines []string, keep int, keepTail bool, marker string) string {
	head := keep
	tail := 0
	if keepTail {
		head = (keep + 1) / 2
		tail = keep - head
	}
	parts := make([]string, 0, keep+1)
	parts = append(parts, lines[:head]...)
	parts = append(parts, marker)
	parts = append(parts, lines[len(lines)-tail:]...)
	return strings.Join(parts, "\n")
}

// cutLine keeps the longest rune prefix of line that fits together with
// lineCutMarker.
func cutLine(c Counter, line string, budget int) (string, bool) {
	runes := []rune(line)
	fits := func(r int) bool {
		return c.Count(string(runes[:r])+"\n"+lineCutMarker) <= budget
	}
	if len(runes) == 0 || !fits(1) {
		return "", false
	}
	lo, hi := 1, len(runes)
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if fits(mid) {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	for r := lo; r > 0; r-- {
		if fits(r) {
			return string(runes[:r]) + "\n" + lineCutMarker, true
		}
	}
	return "", false
}

// cutRunes returns the longest rune prefix of s that fits the budget.
func cutRunes(c Counter, s string, budget int) string {
	runes := []rune(s)
	for r := len(runes); r > 0; r-- {
		if c.Count(string(runes[:r])) <= budget {
			return string(runes[:r])
		}
	}
	return ""
}
