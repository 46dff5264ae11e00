package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// openAIChatCompletionsURL is a var, not a const, so tests can point it at
// an httptest.Server.
var openAIChatCompletionsURL = "https://api.openai.com/v1/chat/completions"

type openAIRequest struct {
	Model     string    `json:"model"`
	Messages  []Message `json:"messages"`
	MaxTokens int       `json:"max_tokens"`
}

type openAIErrorBody struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// callOpenAI builds {model, messages, max_tokens} and POSTs it with bearer
// authorization (spec.md §4.5 "OpenAI dialect"). The response is expected
// to contain choices[0].message.content, which is exactly NormalizedReply's
// own shape, so no re-mapping is needed on success.
func callOpenAI(ctx context.Context, key string, messages []Message, model string) (NormalizedReply, error) {
	if model == "" {
		model = DefaultModel(OpenAI)
	}
	reqBody := openAIRequest{Model: model, Messages: messages, MaxTokens: MaxTokens}

	data, status, err := postJSON(ctx, openAIChatCompletionsURL, map[string]string{
		"Authorization": "Bearer " + key,
	}, reqBody)
	if err != nil {
		return NormalizedReply{}, &UpstreamError{Provider: OpenAI, Err: err}
	}

	if status < 200 || status >= 300 {
		var errBody openAIErrorBody
		_ = json.Unmarshal(data, &errBody)
		if errBody.Error.Message != "" {
			return NormalizedReply{}, &UpstreamError{Provider: OpenAI, Err: fmt.Errorf("status %d: %s", status, errBody.Error.Message)}
		}
		return NormalizedReply{}, &UpstreamError{Provider: OpenAI, Err: fmt.Errorf("status %d: %s", status, http.StatusText(status))}
	}

	var reply NormalizedReply
	if err := json.Unmarshal(data, &reply); err != nil {
		return NormalizedReply{}, &UpstreamError{Provider: OpenAI, Err: fmt.Errorf("parse response (status %d): %w", status, err)}
	}
	return reply, nil
}
