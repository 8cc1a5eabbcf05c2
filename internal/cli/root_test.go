package cli

import (
	"strings"
	"testing"
)

func TestSplitCommand(t *testing.T) {
	tests := []struct {
		name        string
		args        []string
		wantOwn     string
		wantCommand string
	}{
		{"no separator", []string{"fix", "--llm", "gpt-4"}, "fix --llm gpt-4", ""},
		{"separator", []string{"fix", "---", "gcc", "-c", "a.c"}, "fix", "gcc -c a.c"},
		{"only command", []string{"---", "cc"}, "", "cc"},
		{"second separator belongs to the command", []string{"---", "cc", "---", "x"}, "", "cc --- x"},
		{"empty command", []string{"explain", "---"}, "explain", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			own, command := splitCommand(tt.args)
			if got := strings.Join(own, " "); got != tt.wantOwn {
				t.Errorf("own = %q, want %q", got, tt.wantOwn)
			}
			if got := strings.Join(command, " "); got != tt.wantCommand {
				t.Errorf("command = %q, want %q", got, tt.wantCommand)
			}
		})
	}
}

func TestUnknownSubcommandSuggests(t *testing.T) {
	r := runCLI(t, t.TempDir(), nil, "", "explian", "---", "cc")
	if r.code != ExitError {
		t.Fatalf("exit code = %d, want %d", r.code, ExitError)
	}
	if !strings.Contains(r.stderr, `unknown command "explian"`) || !strings.Contains(r.stderr, "did you mean explain") {
		t.Errorf("stderr missing suggestion:\n%s", r.stderr)
	}
}

func TestHelp(t *testing.T) {
	r := runCLI(t, t.TempDir(), nil, "", "--help")
	if r.code != 0 {
		t.Fatalf("exit code = %d (stderr: %s)", r.code, r.stderr)
	}
	for _, want := range []string{"explain", "fix", "diff", "extract-sources", "--max-error-tokens", "--compiler-wrapper", "--show-prompt"} {
		if !strings.Contains(r.stdout, want) {
			t.Errorf("help missing %q", want)
		}
	}
	r = runCLI(t, t.TempDir(), nil, "", "diff", "--help")
	if !strings.Contains(r.stdout, "--interactive") {
		t.Errorf("diff help missing --interactive:\n%s", r.stdout)
	}
}

func TestInteractiveOnlyOnDiff(t *testing.T) {
	r := runCLI(t, t.TempDir(), nil, "", "explain", "--interactive", "---", "cc")
	if r.code != ExitError || !strings.Contains(r.stderr, "unknown flag: --interactive") {
		t.Errorf("code %d, stderr:\n%s", r.code, r.stderr)
	}
}
