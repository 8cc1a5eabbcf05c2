// Package config handles reading and writing the cwhy configuration file
// (~/.cwhy/config.toml) and resolving it into the Settings each run uses.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/scbrown/cwhy/internal/prompt"
	"github.com/scbrown/cwhy/internal/suggest"
)

// Defaults applied when neither the config file nor a flag sets a value.
const (
	DefaultLLM     = "gpt-3.5-turbo"
	DefaultTimeout = 60 * time.Second
)

// Config holds the settings stored in the config file. Unset fields are nil
// or empty so that defaults and flags can be layered over them.
type Config struct {
	LLM            string `toml:"llm,omitempty" json:"llm,omitempty"`
	Timeout        *int   `toml:"timeout,omitempty" json:"timeout,omitempty"` // seconds
	MaxErrorTokens *int   `toml:"max_error_tokens,omitempty" json:"max_error_tokens,omitempty"`
	MaxCodeTokens  *int   `toml:"max_code_tokens,omitempty" json:"max_code_tokens,omitempty"`
	Tokenizer      string `toml:"tokenizer,omitempty" json:"tokenizer,omitempty"`
	HistoryDB      string `toml:"history_db,omitempty" json:"history_db,omitempty"`
	ContextLines   *int   `toml:"context_lines,omitempty" json:"context_lines,omitempty"`
}

// ValidKeys returns the sorted list of valid configuration keys.
func ValidKeys() []string {
	return []string{"context_lines", "history_db", "llm", "max_code_tokens", "max_error_tokens", "timeout", "tokenizer"}
}

// Dir returns the cwhy data directory (~/.cwhy).
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".cwhy")
	}
	return filepath.Join(home, ".cwhy")
}

// Path returns the default config file path (~/.cwhy/config.toml).
func Path() string {
	return filepath.Join(Dir(), "config.toml")
}

// DefaultHistoryPath is where history is kept when history_db is set to "default".
func DefaultHistoryPath() string {
	return filepath.Join(Dir(), "history.db")
}

// Load reads the config from the default path.
func Load() (*Config, error) {
	return LoadFrom(Path())
}

// LoadFrom reads the config from a specific path. Returns an empty Config if
// the file does not exist.
func LoadFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}
	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return &cfg, nil
}

// Save writes the config to the default path.
func (c *Config) Save() error {
	return c.SaveTo(Path())
}

// SaveTo writes the config to a specific path, creating parent directories as needed.
func (c *Config) SaveTo(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// unknownKey builds the error for a key that is not in ValidKeys.
func unknownKey(key string) error {
	if near := suggest.Names(key, ValidKeys()); len(near) > 0 {
		return fmt.Errorf("unknown config key %q (did you mean %s?)", key, strings.Join(near, ", "))
	}
	return fmt.Errorf("unknown config key %q (valid keys: %s)", key, strings.Join(ValidKeys(), ", "))
}

// Get returns the string value of a configuration key. Unset keys return "".
func (c *Config) Get(key string) (string, error) {
	switch key {
	case "llm":
		return c.LLM, nil
	case "timeout":
		return intString(c.Timeout), nil
	case "max_error_tokens":
		return intString(c.MaxErrorTokens), nil
	case "max_code_tokens":
		return intString(c.MaxCodeTokens), nil
	case "tokenizer":
		return c.Tokenizer, nil
	case "history_db":
		return c.HistoryDB, nil
	case "context_lines":
		return intString(c.ContextLines), nil
	default:
		return "", unknownKey(key)
	}
}

// Set assigns a value to a configuration key. An empty value unsets it.
func (c *Config) Set(key, value string) error {
	var err error
	switch key {
	case "llm":
		c.LLM = value
	case "timeout":
		c.Timeout, err = parsePositive(key, value)
	case "max_error_tokens":
		c.MaxErrorTokens, err = parsePositive(key, value)
	case "max_code_tokens":
		c.MaxCodeTokens, err = parsePositive(key, value)
	case "tokenizer":
		if value != "" && !slices.Contains(prompt.Tokenizers(), value) {
			return fmt.Errorf("tokenizer must be one of %s, got %q", strings.Join(prompt.Tokenizers(), ", "), value)
		}
		c.Tokenizer = value
	case "history_db":
		c.HistoryDB = value
	case "context_lines":
		var n *int
		n, err = parseInt(key, value)
		if err == nil && n != nil && *n < 0 {
			err = fmt.Errorf("context_lines must not be negative, got %d", *n)
		}
		if err == nil {
			c.ContextLines = n
		}
	default:
		return unknownKey(key)
	}
	return err
}

// validate checks values read from a file the same way Set does.
func (c *Config) validate() error {
	for _, key := range ValidKeys() {
		v, err := c.Get(key)
		if err != nil {
			return err
		}
		probe := *c
		if err := probe.Set(key, v); err != nil {
			return err
		}
	}
	return nil
}

func intString(p *int) string {
	if p == nil {
		return ""
	}
	return strconv.Itoa(*p)
}

func parseInt(key, value string) (*int, error) {
	if value == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("%s must be an integer, got %q", key, value)
	}
	return &n, nil
}

func parsePositive(key, value string) (*int, error) {
	n, err := parseInt(key, value)
	if err != nil || n == nil {
		return n, err
	}
	if *n <= 0 {
		return nil, fmt.Errorf("%s must be positive, got %d", key, *n)
	}
	return n, nil
}

// Settings is the fully resolved configuration for one run.
type Settings struct {
	LLM            string
	Timeout        time.Duration
	MaxErrorTokens int
	MaxCodeTokens  int
	Tokenizer      string
	HistoryDB      string // empty: history disabled
	ContextLines   int
}

// Defaults returns the built-in settings.
func Defaults() Settings {
	return Settings{
		LLM:            DefaultLLM,
		Timeout:        DefaultTimeout,
		MaxErrorTokens: prompt.DefaultMaxTokens,
		MaxCodeTokens:  prompt.DefaultMaxTokens,
		Tokenizer:      prompt.TokenizerApprox,
		ContextLines:   prompt.DefaultContextLines,
	}
}

// Resolve layers the config file over the defaults. Flags are applied on top
// by the caller.
func (c *Config) Resolve() Settings {
	s := Defaults()
	if c == nil {
		return s
	}
	if c.LLM != "" {
		s.LLM = c.LLM
	}
	if c.Timeout != nil {
		s.Timeout = time.Duration(*c.Timeout) * time.Second
	}
	if c.MaxErrorTokens != nil {
		s.MaxErrorTokens = *c.MaxErrorTokens
	}
	if c.MaxCodeTokens != nil {
		s.MaxCodeTokens = *c.MaxCodeTokens
	}
	if c.Tokenizer != "" {
		s.Tokenizer = c.Tokenizer
	}
	if c.HistoryDB != "" {
		s.HistoryDB = ExpandPath(c.HistoryDB)
	}
	if c.ContextLines != nil {
		s.ContextLines = *c.ContextLines
	}
	return s
}

// ExpandPath resolves "default" to DefaultHistoryPath and a leading "~/" to
// the home directory.
func ExpandPath(p string) string {
	if p == "default" {
		return DefaultHistoryPath()
	}
	if rest, ok := strings.CutPrefix(p, "~/"); ok {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, rest)
		}
	}
	return p
}
