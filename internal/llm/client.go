// Package llm sends prompts to a language-model provider and returns the
// response text. Each Complete call is exactly one blocking HTTP request;
// nothing is retried.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/scbrown/cwhy/internal/model"
)

// Sentinel errors for the failures a caller handles differently.
var (
	ErrTimeout            = errors.New("request timed out")
	ErrAuth               = errors.New("authentication failed")
	ErrRateLimit          = errors.New("rate limit exceeded")
	ErrMissingCredentials = errors.New("missing API credentials")
)

// ProviderError is a failed request to a provider. Err is one of the
// sentinels above when the failure is classified, so callers use errors.Is.
type ProviderError struct {
	Provider string
	Status   int    // HTTP status, 0 when no response was received
	Message  string // provider's own message, when it sent one
	Err      error
}

func (e *ProviderError) Error() string {
	var b strings.Builder
	b.WriteString(e.Provider)
	if e.Status != 0 {
		fmt.Fprintf(&b, " (%d)", e.Status)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	return b.String()
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Client completes a conversation.
type Client interface {
	Complete(ctx context.Context, conv model.Conversation) (model.Explanation, error)
}

// Config holds provider credentials and endpoints.
type Config struct {
	Timeout          time.Duration
	OpenAIKey        string
	OpenAIBaseURL    string
	AnthropicKey     string
	AnthropicBaseURL string
	// HTTPClient overrides the default client; its Timeout is not used,
	// the deadline comes from Timeout.
	HTTPClient *http.Client
}

// Environment variables read by ConfigFromEnv.
const (
	EnvOpenAIKey        = "OPENAI_API_KEY"
	EnvOpenAIBaseURL    = "OPENAI_BASE_URL"
	EnvAnthropicKey     = "ANTHROPIC_API_KEY"
	EnvAnthropicBaseURL = "ANTHROPIC_BASE_URL"
)

// ConfigFromEnv reads credentials with getenv (usually os.Getenv).
func ConfigFromEnv(getenv func(string) string) Config {
	return Config{
		OpenAIKey:        getenv(EnvOpenAIKey),
		OpenAIBaseURL:    getenv(EnvOpenAIBaseURL),
		AnthropicKey:     getenv(EnvAnthropicKey),
		AnthropicBaseURL: getenv(EnvAnthropicBaseURL),
	}
}

// IsAnthropic reports whether a model id is served by Anthropic.
func IsAnthropic(modelID string) bool {
	return strings.HasPrefix(strings.ToLower(modelID), "claude")
}

// New returns the client for modelID's provider. It fails with
// ErrMissingCredentials before any network access when the provider's key
// is not set.
func New(modelID string, cfg Config) (Client, error) {
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	if IsAnthropic(modelID) {
		if cfg.AnthropicKey == "" {
			return nil, fmt.Errorf("%w: set %s to use %s", ErrMissingCredentials, EnvAnthropicKey, modelID)
		}
		return &Anthropic{
			baseURL: strings.TrimRight(orDefault(cfg.AnthropicBaseURL, DefaultAnthropicBaseURL), "/"),
			apiKey:  cfg.AnthropicKey,
			timeout: cfg.Timeout,
			client:  hc,
		}, nil
	}
	if cfg.OpenAIKey == "" {
		return nil, fmt.Errorf("%w: set %s to use %s", ErrMissingCredentials, EnvOpenAIKey, modelID)
	}
	return &OpenAI{
		baseURL: strings.TrimRight(orDefault(cfg.OpenAIBaseURL, DefaultOpenAIBaseURL), "/"),
		apiKey:  cfg.OpenAIKey,
		timeout: cfg.Timeout,
		client:  hc,
	}, nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// post sends body as JSON and decodes a 200 response into dst. Non-200
// responses are turned into a *ProviderError by decodeError.
func post(ctx context.Context, hc *http.Client, provider, url string, headers map[string]string, timeout time.Duration, body, dst any, decodeError func([]byte) string) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := hc.Do(req)
	if err != nil {
		return transportError(ctx, provider, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return transportError(ctx, provider, err)
	}
	if resp.StatusCode != http.StatusOK {
		return &ProviderError{
			Provider: provider,
			Status:   resp.StatusCode,
			Message:  decodeError(raw),
			Err:      classifyStatus(resp.StatusCode),
		}
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return &ProviderError{Provider: provider, Status: resp.StatusCode, Err: fmt.Errorf("decoding response: %w", err)}
	}
	return nil
}

// transportError reports a request that got no complete response. Deadline
// expiry becomes ErrTimeout; cancellation by the caller is passed through.
func transportError(ctx context.Context, provider string, err error) error {
	if errors.Is(ctx.Err(), context.Canceled) {
		return ctx.Err()
	}
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		return &ProviderError{Provider: provider, Err: ErrTimeout}
	}
	return &ProviderError{Provider: provider, Err: fmt.Errorf("request failed: %w", err)}
}

func classifyStatus(status int) error {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrAuth
	case http.StatusTooManyRequests:
		return ErrRateLimit
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return ErrTimeout
	default:
		return errors.New(http.StatusText(status))
	}
}
