package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/scbrown/cwhy/internal/model"
)

// DefaultOpenAIBaseURL is used when OPENAI_BASE_URL is unset.
const DefaultOpenAIBaseURL = "https://api.openai.com/v1"

// OpenAI talks to an OpenAI-compatible chat completions endpoint.
type OpenAI struct {
	baseURL string
	apiKey  string
	timeout time.Duration
	client  *http.Client
}

type openAIRequest struct {
	Model          string          `json:"model"`
	Messages       []model.Message `json:"messages"`
	ResponseFormat *openAIFormat   `json:"response_format,omitempty"`
}

type openAIFormat struct {
	Type string `json:"type"`
}

type openAIResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// Complete implements Client.
func (o *OpenAI) Complete(ctx context.Context, conv model.Conversation) (model.Explanation, error) {
	req := openAIRequest{Model: conv.Model, Messages: conv.Messages}
	if conv.JSON {
		req.ResponseFormat = &openAIFormat{Type: "json_object"}
	}
	headers := map[string]string{"Authorization": "Bearer " + o.apiKey}

	var resp openAIResponse
	if err := post(ctx, o.client, "openai", o.baseURL+"/chat/completions", headers, o.timeout, req, &resp, openAIErrorMessage); err != nil {
		return model.Explanation{}, err
	}

	var text strings.Builder
	for i, c := range resp.Choices {
		if i > 0 {
			text.WriteString("\n")
		}
		text.WriteString(c.Message.Content)
	}
	m := resp.Model
	if m == "" {
		m = conv.Model
	}
	return model.Explanation{
		Model:        m,
		Text:         text.String(),
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}, nil
}

func openAIErrorMessage(body []byte) string {
	var e struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &e) == nil && e.Error.Message != "" {
		return e.Error.Message
	}
	return strings.TrimSpace(string(body))
}
