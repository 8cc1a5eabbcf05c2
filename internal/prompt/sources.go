package prompt

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/scbrown/cwhy/internal/model"
)

// DefaultContextLines is how many lines around each referenced line are shown.
const DefaultContextLines = 5

// locationRE matches file:line and file:line:col references as printed by
// GCC, Clang, rustc ("--> src/main.rs:3:5") and most other compilers. The
// path must carry an extension so that "error:3" is not taken for a file.
var locationRE = regexp.MustCompile(`([^\s:'"()\[\]<>,]+\.[A-Za-z0-9+_]+):(\d+)(?::(\d+))?`)

// Location is a source position referenced by a diagnostic.
type Location struct {
	Path   string
	Line   int
	Column int
}

// FindLocations returns the file locations mentioned in text, in order of
// first appearance, without duplicates.
func FindLocations(text string) []Location {
	var locs []Location
	seen := make(map[Location]bool)
	for _, m := range locationRE.FindAllStringSubmatch(text, -1) {
		line, err := strconv.Atoi(m[2])
		if err != nil || line <= 0 {
			continue
		}
		loc := Location{Path: m[1], Line: line}
		if m[3] != "" {
			loc.Column, _ = strconv.Atoi(m[3])
		}
		key := Location{Path: loc.Path, Line: loc.Line}
		if seen[key] {
			continue
		}
		seen[key] = true
		locs = append(locs, loc)
	}
	return locs
}

// Extractor reads the source lines surrounding diagnostic locations.
type Extractor struct {
	// Dir resolves relative paths; empty means the working directory.
	Dir string
	// Context is the number of lines shown before and after each location.
	Context int
}

// Extract returns one excerpt per merged window, grouped by file in order of
// first reference. References to files that do not exist or cannot be read
// are skipped.
func (x Extractor) Extract(diagnostic string) []model.SourceExcerpt {
	type window struct{ from, to int }

	var order []string
	windows := make(map[string][]window)
	for _, loc := range FindLocations(diagnostic) {
		path := loc.Path
		if _, ok := windows[path]; !ok {
			order = append(order, path)
		}
		windows[path] = append(windows[path], window{
			from: max(1, loc.Line-x.Context),
			to:   loc.Line + x.Context,
		})
	}

	var excerpts []model.SourceExcerpt
	for _, path := range order {
		lines, err := readLines(x.resolve(path))
		if err != nil {
			continue
		}
		ws := windows[path]
		sort.Slice(ws, func(i, j int) bool { return ws[i].from < ws[j].from })

		var merged []window
		for _, w := range ws {
			if w.from > len(lines) {
				continue
			}
			w.to = min(w.to, len(lines))
			if n := len(merged); n > 0 && w.from <= merged[n-1].to+1 {
				merged[n-1].to = max(merged[n-1].to, w.to)
				continue
			}
			merged = append(merged, w)
		}
		for _, w := range merged {
			excerpts = append(excerpts, model.SourceExcerpt{
				Path:      path,
				FirstLine: w.from,
				Lines:     append([]string(nil), lines[w.from-1:w.to]...),
			})
		}
	}
	return excerpts
}

func (x Extractor) resolve(path string) string {
	if filepath.IsAbs(path) || x.Dir == "" {
		return path
	}
	return filepath.Join(x.Dir, path)
}

func readLines(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%s is not a regular file", path)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return lines, nil
}

// RenderExcerpts formats excerpts with a file header and a line-number gutter.
func RenderExcerpts(excerpts []model.SourceExcerpt) string {
	var b strings.Builder
	prev := ""
	for i, e := range excerpts {
		if e.Path != prev {
			if i > 0 {
				b.WriteString("\n")
			}
			fmt.Fprintf(&b, "File `%s`:\n", e.Path)
			prev = e.Path
		} else {
			b.WriteString("...\n")
		}
		width := len(strconv.Itoa(e.LastLine()))
		for j, line := range e.Lines {
			fmt.Fprintf(&b, "%*d %s\n", width, e.FirstLine+j, line)
		}
	}
	return strings.TrimSuffix(b.String(), "\n")
}
