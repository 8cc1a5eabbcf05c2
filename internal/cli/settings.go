package cli

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/scbrown/cwhy/internal/config"
	"github.com/scbrown/cwhy/internal/prompt"
)

var defaultSettings = config.Defaults()

// loadConfig reads the config file named by --config, or the default one.
func (a *app) loadConfig() (*config.Config, error) {
	if a.flags.configPath == "" {
		return config.Load()
	}
	return config.LoadFrom(a.flags.configPath)
}

// saveConfig writes cfg to the file named by --config, or the default one.
func (a *app) saveConfig(cfg *config.Config) error {
	if a.flags.configPath == "" {
		return cfg.Save()
	}
	return cfg.SaveTo(a.flags.configPath)
}

// settings resolves defaults, the config file and the flags the user set,
// in increasing order of precedence.
func (a *app) settings(cmd *cobra.Command) (config.Settings, error) {
	cfg, err := a.loadConfig()
	if err != nil {
		return config.Settings{}, fmt.Errorf("load config: %w", err)
	}
	s := cfg.Resolve()

	f := a.flags
	changed := cmd.Flags().Changed
	if changed("llm") {
		s.LLM = f.llm
	}
	if changed("timeout") {
		if f.timeout <= 0 {
			return s, usageErrorf("--timeout must be positive, got %d", f.timeout)
		}
		s.Timeout = time.Duration(f.timeout) * time.Second
	}
	if changed("max-error-tokens") {
		if f.maxErrorTokens <= 0 {
			return s, usageErrorf("--max-error-tokens must be positive, got %d", f.maxErrorTokens)
		}
		s.MaxErrorTokens = f.maxErrorTokens
	}
	if changed("max-code-tokens") {
		if f.maxCodeTokens <= 0 {
			return s, usageErrorf("--max-code-tokens must be positive, got %d", f.maxCodeTokens)
		}
		s.MaxCodeTokens = f.maxCodeTokens
	}
	if changed("tokenizer") {
		if !slices.Contains(prompt.Tokenizers(), f.tokenizer) {
			return s, usageErrorf("--tokenizer must be one of %s, got %q", strings.Join(prompt.Tokenizers(), ", "), f.tokenizer)
		}
		s.Tokenizer = f.tokenizer
	}
	if changed("history-db") {
		s.HistoryDB = config.ExpandPath(f.historyDB)
	}
	if changed("context-lines") {
		if f.contextLines < 0 {
			return s, usageErrorf("--context-lines must not be negative, got %d", f.contextLines)
		}
		s.ContextLines = f.contextLines
	}
	if s.LLM == "" {
		return s, usageErrorf("--llm must not be empty")
	}
	a.logger.Debug("settings resolved", "llm", s.LLM, "timeout", s.Timeout,
		"max_error_tokens", s.MaxErrorTokens, "max_code_tokens", s.MaxCodeTokens,
		"tokenizer", s.Tokenizer, "history_db", s.HistoryDB)
	return s, nil
}
