package provider

import (
	"context"
	"fmt"
	"net/http"

	"github.com/tidwall/gjson"
)

// anthropicMessagesURL is a var, not a const, so tests can point it at an
// httptest.Server.
var anthropicMessagesURL = "https://api.anthropic.com/v1/messages"

const anthropicAPIVersion = "2023-06-01"

type anthropicRequest struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	System    string    `json:"system,omitempty"`
	Messages  []Message `json:"messages"`
}

// callAnthropic extracts the first system message's content into a
// top-level `system` field; every other message flows in `messages`
// (spec.md §4.5 "Anthropic dialect"). The reply's content is at
// content[0].text. A non-2xx status is always an UpstreamError, using
// error.message when the body is provider-shaped and falling back to the
// raw status otherwise (a proxy 502/503 won't be JSON at all, let alone
// carry error.message). gjson resolves missing paths to an empty Result
// rather than an error, which only governs field extraction on a 2xx body
// (spec.md §4.5's "missing fields → fallback, not hard failure").
func callAnthropic(ctx context.Context, key string, messages []Message, model string) (NormalizedReply, error) {
	if model == "" {
		model = DefaultModel(Anthropic)
	}

	var system string
	rest := make([]Message, 0, len(messages))
	systemTaken := false
	for _, m := range messages {
		if !systemTaken && m.Role == RoleSystem {
			system = m.Content
			systemTaken = true
			continue
		}
		rest = append(rest, m)
	}

	reqBody := anthropicRequest{Model: model, MaxTokens: MaxTokens, System: system, Messages: rest}

	data, status, err := postJSON(ctx, anthropicMessagesURL, map[string]string{
		"x-api-key":         key,
		"anthropic-version": anthropicAPIVersion,
	}, reqBody)
	if err != nil {
		return NormalizedReply{}, &UpstreamError{Provider: Anthropic, Err: err}
	}

	if status < 200 || status >= 300 {
		errMsg := gjson.GetBytes(data, "error.message")
		if errMsg.Exists() {
			return NormalizedReply{}, &UpstreamError{Provider: Anthropic, Err: fmt.Errorf("status %d: %s", status, errMsg.String())}
		}
		return NormalizedReply{}, &UpstreamError{Provider: Anthropic, Err: fmt.Errorf("status %d: %s", status, http.StatusText(status))}
	}

	parsed := gjson.ParseBytes(data)
	text := parsed.Get("content.0.text").String()
	reply := NormalizedReply{}
	reply.Choices = make([]struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
	}, 1)
	reply.Choices[0].Message.Role = RoleAssistant
	reply.Choices[0].Message.Content = text
	return reply, nil
}
