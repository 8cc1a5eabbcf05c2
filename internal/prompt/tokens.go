package prompt

import (
	"fmt"
	"unicode/utf8"

	"github.com/charmbracelet/log"
	tiktoken "github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"
)

// Counter estimates how many model tokens a string occupies.
type Counter interface {
	Count(s string) int
}

// Tokenizer names accepted by NewCounter.
const (
	TokenizerApprox   = "approx"
	TokenizerTiktoken = "tiktoken"
)

// Tokenizers returns the accepted tokenizer names.
func Tokenizers() []string {
	return []string{TokenizerApprox, TokenizerTiktoken}
}

// DefaultCharsPerToken is the ratio Approx uses when CharsPerToken is unset.
const DefaultCharsPerToken = 4

// Approx estimates tokens as runes divided by CharsPerToken, rounded up.
type Approx struct {
	CharsPerToken int
}

// Count implements Counter.
func (a Approx) Count(s string) int {
	cpt := a.CharsPerToken
	if cpt <= 0 {
		cpt = DefaultCharsPerToken
	}
	n := utf8.RuneCountInString(s)
	return (n + cpt - 1) / cpt
}

// Tiktoken counts tokens with the cl100k_base encoding. The BPE ranks are
// embedded, so no network access is needed.
type Tiktoken struct {
	enc *tiktoken.Tiktoken
}

// NewTiktoken loads the cl100k_base encoding.
func NewTiktoken() (*Tiktoken, error) {
	tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, fmt.Errorf("tokenizer: get encoding: %w", err)
	}
	return &Tiktoken{enc: enc}, nil
}

// Count implements Counter.
func (t *Tiktoken) Count(s string) int {
	return len(t.enc.Encode(s, nil, nil))
}

// NewCounter returns the counter for a tokenizer name. When the tiktoken
// encoding cannot be loaded it logs a warning and falls back to Approx.
func NewCounter(name string, logger *log.Logger) (Counter, error) {
	switch name {
	case "", TokenizerApprox:
		return Approx{}, nil
	case TokenizerTiktoken:
		tk, err := NewTiktoken()
		if err != nil {
			if logger != nil {
				logger.Warn("falling back to approximate token counts", "err", err)
			}
			return Approx{}, nil
		}
		return tk, nil
	default:
		return nil, fmt.Errorf("unknown tokenizer %q (expected %q or %q)", name, TokenizerApprox, TokenizerTiktoken)
	}
}
