package engine

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"

	"github.com/xenlix/visibility-engine/internal/model"
	"github.com/xenlix/visibility-engine/internal/resilience"
	"github.com/xenlix/visibility-engine/pkg/perplexity"
)

// Perplexity asks the Perplexity API, which grounds its answers and
// returns an explicit citation list.
type Perplexity struct {
	client perplexity.Client
}

// NewPerplexity creates a Perplexity engine over an existing client.
func NewPerplexity(client perplexity.Client) *Perplexity {
	return &Perplexity{client: client}
}

func (p *Perplexity) Name() string { return NamePerplexity }

func (p *Perplexity) Ask(ctx context.Context, prompt string) (*Answer, error) {
	resp, err := p.client.ChatCompletion(ctx, perplexity.ChatCompletionRequest{
		Messages: []perplexity.Message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return nil, classifyStatusErr(err, "perplexity: chat completion")
	}

	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return nil, &resilience.ParseError{
			Engine: NamePerplexity,
			Err:    errors.New("empty completion"),
		}
	}

	return &Answer{
		Text:      resp.Choices[0].Message.Content,
		Citations: perplexityCitations(resp),
	}, nil
}

// perplexityCitations merges the bare citation URL list with the richer
// search_results entries, preserving the engine's citation order.
func perplexityCitations(resp *perplexity.ChatCompletionResponse) []model.EngineCitation {
	titles := make(map[string]string, len(resp.SearchResults))
	for _, sr := range resp.SearchResults {
		titles[sr.URL] = sr.Title
	}

	urls := resp.Citations
	if len(urls) == 0 {
		for _, sr := range resp.SearchResults {
			urls = append(urls, sr.URL)
		}
	}

	citations := make([]model.EngineCitation, 0, len(urls))
	for _, u := range urls {
		citations = append(citations, model.EngineCitation{URL: u, Title: titles[u]})
	}
	return citations
}

// classifyStatusErr maps a perplexity.StatusError onto the failure
// taxonomy: retryable statuses become transient, client mistakes become
// validation errors, anything else passes through wrapped.
func classifyStatusErr(err error, msg string) error {
	var se *perplexity.StatusError
	if errors.As(err, &se) {
		if resilience.IsTransientHTTPStatus(se.Code) {
			return resilience.NewTransientError(se, se.Code)
		}
		if se.Code == 400 || se.Code == 422 {
			return resilience.NewValidationError(se.Error())
		}
	}
	return eris.Wrap(err, msg)
}
