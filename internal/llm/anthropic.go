package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/scbrown/cwhy/internal/model"
)

// DefaultAnthropicBaseURL is used when ANTHROPIC_BASE_URL is unset.
const DefaultAnthropicBaseURL = "https://api.anthropic.com/v1"

const (
	anthropicVersion   = "2023-06-01"
	anthropicMaxTokens = 4096
)

// Anthropic talks to the Anthropic messages endpoint.
type Anthropic struct {
	baseURL string
	apiKey  string
	timeout time.Duration
	client  *http.Client
}

type anthropicRequest struct {
	Model     string          `json:"model"`
	MaxTokens int             `json:"max_tokens"`
	System    string          `json:"system,omitempty"`
	Messages  []model.Message `json:"messages"`
}

type anthropicResponse struct {
	Model   string `json:"model"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// Complete implements Client. System messages are lifted into the request's
// system field; the messages API only accepts user and assistant turns.
func (a *Anthropic) Complete(ctx context.Context, conv model.Conversation) (model.Explanation, error) {
	req := anthropicRequest{Model: conv.Model, MaxTokens: anthropicMaxTokens}
	var system []string
	for _, m := range conv.Messages {
		if m.Role == model.RoleSystem {
			system = append(system, m.Content)
			continue
		}
		req.Messages = append(req.Messages, m)
	}
	req.System = strings.Join(system, "\n\n")

	headers := map[string]string{
		"x-api-key":         a.apiKey,
		"anthropic-version": anthropicVersion,
	}

	var resp anthropicResponse
	if err := post(ctx, a.client, "anthropic", a.baseURL+"/messages", headers, a.timeout, req, &resp, anthropicErrorMessage); err != nil {
		return model.Explanation{}, err
	}

	var text strings.Builder
	for _, c := range resp.Content {
		if c.Type == "text" {
			text.WriteString(c.Text)
		}
	}
	m := resp.Model
	if m == "" {
		m = conv.Model
	}
	return model.Explanation{
		Model:        m,
		Text:         text.String(),
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
	}, nil
}

func anthropicErrorMessage(body []byte) string {
	var e struct {
		Error struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &e) == nil && e.Error.Message != "" {
		return e.Error.Message
	}
	return strings.TrimSpace(string(body))
}
