package engine

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"
	"google.golang.org/genai"

	"github.com/xenlix/visibility-engine/internal/model"
	"github.com/xenlix/visibility-engine/internal/resilience"
)

// Gemini asks the Gemini API. When search grounding is active, the
// response carries grounding chunks that map onto citations.
type Gemini struct {
	client *genai.Client
	model  string
}

// NewGemini creates a Gemini engine over the API-key backend.
func NewGemini(ctx context.Context, apiKey, modelName string) (*Gemini, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, eris.Wrap(err, "gemini: create client")
	}
	if modelName == "" {
		modelName = "gemini-2.5-flash"
	}
	return &Gemini{client: client, model: modelName}, nil
}

// NewGeminiFromClient wraps an existing genai client, for tests.
func NewGeminiFromClient(client *genai.Client, modelName string) *Gemini {
	return &Gemini{client: client, model: modelName}
}

func (g *Gemini) Name() string { return NameGemini }

func (g *Gemini) Ask(ctx context.Context, prompt string) (*Answer, error) {
	result, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), nil)
	if err != nil {
		return nil, classifyGeminiErr(err)
	}

	if len(result.Candidates) == 0 ||
		result.Candidates[0].Content == nil ||
		len(result.Candidates[0].Content.Parts) == 0 {
		return nil, &resilience.ParseError{
			Engine: NameGemini,
			Err:    errors.New("empty candidates"),
		}
	}

	cand := result.Candidates[0]
	var text string
	for _, part := range cand.Content.Parts {
		text += part.Text
	}
	if text == "" {
		return nil, &resilience.ParseError{
			Engine: NameGemini,
			Err:    errors.New("no text parts"),
		}
	}

	return &Answer{Text: text, Citations: geminiCitations(cand)}, nil
}

// geminiCitations extracts web grounding chunks in the order the engine
// listed them.
func geminiCitations(cand *genai.Candidate) []model.EngineCitation {
	if cand.GroundingMetadata == nil {
		return nil
	}
	var citations []model.EngineCitation
	for _, chunk := range cand.GroundingMetadata.GroundingChunks {
		if chunk == nil || chunk.Web == nil || chunk.Web.URI == "" {
			continue
		}
		citations = append(citations, model.EngineCitation{
			URL:   chunk.Web.URI,
			Title: chunk.Web.Title,
		})
	}
	return citations
}

func classifyGeminiErr(err error) error {
	code := 0
	var ae genai.APIError
	var aep *genai.APIError
	switch {
	case errors.As(err, &aep):
		code = aep.Code
	case errors.As(err, &ae):
		code = ae.Code
	}
	if code != 0 {
		if resilience.IsTransientHTTPStatus(code) {
			return resilience.NewTransientError(err, code)
		}
		if code == 400 || code == 422 {
			return resilience.NewValidationError(err.Error())
		}
	}
	return eris.Wrap(err, "gemini: generate content")
}
