package suggest

import (
	"math"
	"testing"
)

var subcommands = []string{"explain", "fix", "diff", "extract-sources", "config", "history", "version"}

func TestSuggestExactMatch(t *testing.T) {
	results := Suggest("explain", subcommands)
	if len(results) == 0 {
		t.Fatal("expected at least one suggestion for exact match")
	}
	if results[0].Name != "explain" || results[0].Score != 1.0 {
		t.Errorf("got %+v, want explain with score 1.0", results[0])
	}
}

func TestSuggestTypos(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"explian", "explain"},
		{"expain", "explain"},
		{"fixx", "fix"},
		{"dif", "diff"},
		{"extract-source", "extract-sources"},
		{"extract_sources", "extract-sources"},
		{"hist", "history"},
		{"verison", "version"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			results := Suggest(tt.input, subcommands)
			if len(results) == 0 {
				t.Fatalf("no suggestions for %q", tt.input)
			}
			if results[0].Name != tt.want {
				t.Errorf("top suggestion = %q, want %q (all: %+v)", results[0].Name, tt.want, results)
			}
		})
	}
}

func TestSuggestNormalizesSeparators(t *testing.T) {
	keys := []string{"max_error_tokens", "max_code_tokens", "history_db"}
	for _, in := range []string{"max-error-tokens", "maxErrorTokens", "MAX_ERROR_TOKENS"} {
		results := Suggest(in, keys)
		if len(results) == 0 || results[0].Name != "max_error_tokens" {
			t.Errorf("Suggest(%q) = %+v, want max_error_tokens first", in, results)
			continue
		}
		if in != "MAX_ERROR_TOKENS" && results[0].Score != 1.0 {
			t.Errorf("Suggest(%q) score = %f, want 1.0", in, results[0].Score)
		}
	}
}

func TestSuggestBelowThreshold(t *testing.T) {
	if results := Suggest("zzzzzzzz", subcommands); len(results) != 0 {
		t.Errorf("expected no suggestions, got %+v", results)
	}
}

func TestSuggestEmpty(t *testing.T) {
	if results := Suggest("", subcommands); results != nil {
		t.Errorf("expected nil for empty name, got %v", results)
	}
	if results := Suggest("fix", nil); results != nil {
		t.Errorf("expected nil for nil known, got %v", results)
	}
}

func TestSuggestNTopN(t *testing.T) {
	known := []string{"aa", "ab", "ac", "ad"}
	results := SuggestN("a", known, 2, 0)
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	// Equal scores keep input order.
	if results[0].Name != "aa" || results[1].Name != "ab" {
		t.Errorf("got %+v, want aa then ab", results)
	}
}

func TestSimilarityRange(t *testing.T) {
	pairs := [][2]string{{"a", "b"}, {"explain", "fix"}, {"héllo", "hello"}, {"x", "xxxxxxxxxxxx"}}
	for _, p := range pairs {
		s := similarity(p[0], p[1])
		if s < 0 || s > 1 || math.IsNaN(s) {
			t.Errorf("similarity(%q, %q) = %f out of range", p[0], p[1], s)
		}
	}
}

func TestNames(t *testing.T) {
	got := Names("fi", []string{"fix", "version"})
	if len(got) != 1 || got[0] != "fix" {
		t.Errorf("Names = %v, want [fix]", got)
	}
}
