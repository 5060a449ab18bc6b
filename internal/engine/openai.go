package engine

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"
	openai "github.com/sashabaranov/go-openai"

	"github.com/xenlix/visibility-engine/internal/resilience"
)

// OpenAI asks an OpenAI-compatible chat completions endpoint. These
// answers carry no engine-provided citation list.
type OpenAI struct {
	client *openai.Client
	model  string
}

// NewOpenAI creates an OpenAI engine. An empty baseURL uses the public
// API endpoint.
func NewOpenAI(apiKey, baseURL, modelName string) *OpenAI {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if modelName == "" {
		modelName = openai.GPT4o
	}
	return &OpenAI{client: openai.NewClientWithConfig(cfg), model: modelName}
}

func (o *OpenAI) Name() string { return NameOpenAI }

func (o *OpenAI) Ask(ctx context.Context, prompt string) (*Answer, error) {
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			if resilience.IsTransientHTTPStatus(apiErr.HTTPStatusCode) {
				return nil, resilience.NewTransientError(err, apiErr.HTTPStatusCode)
			}
			if apiErr.HTTPStatusCode == 400 || apiErr.HTTPStatusCode == 422 {
				return nil, resilience.NewValidationError(apiErr.Error())
			}
		}
		return nil, eris.Wrap(err, "openai: chat completion")
	}

	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return nil, &resilience.ParseError{
			Engine: NameOpenAI,
			Err:    errors.New("no choices in response"),
		}
	}

	return &Answer{Text: resp.Choices[0].Message.Content}, nil
}
