package engine

import (
	"context"
	"errors"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"

	"github.com/xenlix/visibility-engine/internal/resilience"
)

const anthropicMaxTokens = 1024

// Anthropic asks the Anthropic messages API. No engine-provided
// citation list without the search tool, so answers come back bare.
type Anthropic struct {
	client sdk.Client
	model  string
}

// NewAnthropic creates an Anthropic engine. An empty baseURL uses the
// public API endpoint.
func NewAnthropic(apiKey, baseURL, modelName string) *Anthropic {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if modelName == "" {
		modelName = string(sdk.ModelClaudeSonnet4_5)
	}
	return &Anthropic{client: sdk.NewClient(opts...), model: modelName}
}

func (a *Anthropic) Name() string { return NameAnthropic }

func (a *Anthropic) Ask(ctx context.Context, prompt string) (*Answer, error) {
	msg, err := a.client.Messages.New(ctx, sdk.MessageNewParams{
		Model:     sdk.Model(a.model),
		MaxTokens: anthropicMaxTokens,
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		var apiErr *sdk.Error
		if errors.As(err, &apiErr) {
			if resilience.IsTransientHTTPStatus(apiErr.StatusCode) {
				return nil, resilience.NewTransientError(err, apiErr.StatusCode)
			}
			if apiErr.StatusCode == 400 || apiErr.StatusCode == 422 {
				return nil, resilience.NewValidationError(apiErr.Error())
			}
		}
		return nil, eris.Wrap(err, "anthropic: create message")
	}

	var text string
	for _, block := range msg.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	if text == "" {
		return nil, &resilience.ParseError{
			Engine: NameAnthropic,
			Err:    errors.New("no text blocks in response"),
		}
	}

	return &Answer{Text: text}, nil
}
