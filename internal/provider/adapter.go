package provider

import (
	"context"

	"github.com/rs/zerolog"
)

// HTTPAdapter is the production Adapter: it dispatches to the OpenAI or
// Anthropic dialect over net/http (spec.md §1: "Upstream-provider network
// transport details beyond the JSON contract" is explicitly out of the
// core's scope, so this stays a thin dispatcher, not a retrying client).
type HTTPAdapter struct {
	log zerolog.Logger
}

// NewHTTPAdapter returns a ready HTTPAdapter.
func NewHTTPAdapter(log zerolog.Logger) *HTTPAdapter {
	return &HTTPAdapter{log: log.With().Str("component", "provider.HTTPAdapter").Logger()}
}

var _ Adapter = (*HTTPAdapter)(nil)

// Call dispatches to the selected dialect. No retries happen here; the
// orchestrator decides what to do with an UpstreamError (spec.md §4.5, §7).
func (a *HTTPAdapter) Call(ctx context.Context, name Name, key string, messages []Message, model string) (NormalizedReply, error) {
	if key == "" {
		return NormalizedReply{}, ErrMissingAPIKey
	}

	var (
		reply NormalizedReply
		err   error
	)
	switch name {
	case Anthropic:
		reply, err = callAnthropic(ctx, key, messages, model)
	default:
		reply, err = callOpenAI(ctx, key, messages, model)
	}
	if err != nil {
		a.log.Error().Err(err).Str("provider", string(name)).Msg("upstream call failed")
		return NormalizedReply{}, err
	}
	return reply, nil
}
