package engine

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenlix/visibility-engine/internal/resilience"
	"github.com/xenlix/visibility-engine/pkg/perplexity"
)

func TestPerplexity_AskWithCitations(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id": "resp-1",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "Acme is the leading CRM."}}],
			"citations": ["https://acme.example/reviews", "https://top10crm.example"],
			"search_results": [
				{"title": "Acme Reviews", "url": "https://acme.example/reviews"},
				{"title": "Top 10 CRMs", "url": "https://top10crm.example"}
			]
		}`))
	}))
	defer srv.Close()

	eng := NewPerplexity(perplexity.NewClient("test-key", perplexity.WithBaseURL(srv.URL)))

	ans, err := eng.Ask(context.Background(), "best CRM?")
	require.NoError(t, err)
	assert.Equal(t, "Acme is the leading CRM.", ans.Text)
	require.Len(t, ans.Citations, 2)
	assert.Equal(t, "https://acme.example/reviews", ans.Citations[0].URL)
	assert.Equal(t, "Acme Reviews", ans.Citations[0].Title)
	assert.Equal(t, "Top 10 CRMs", ans.Citations[1].Title)
}

func TestPerplexity_EmptyCompletionIsParseError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id": "resp-2", "choices": []}`))
	}))
	defer srv.Close()

	eng := NewPerplexity(perplexity.NewClient("test-key", perplexity.WithBaseURL(srv.URL)))

	_, err := eng.Ask(context.Background(), "best CRM?")
	require.Error(t, err)
	assert.True(t, resilience.IsParse(err))
}

func TestPerplexity_StatusClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		check  func(t *testing.T, err error)
	}{
		{"503 is transient", http.StatusServiceUnavailable, func(t *testing.T, err error) {
			assert.True(t, resilience.IsTransient(err))
		}},
		{"429 is transient", http.StatusTooManyRequests, func(t *testing.T, err error) {
			assert.True(t, resilience.IsTransient(err))
		}},
		{"400 is validation", http.StatusBadRequest, func(t *testing.T, err error) {
			assert.True(t, resilience.IsValidation(err))
		}},
		{"401 passes through", http.StatusUnauthorized, func(t *testing.T, err error) {
			assert.False(t, resilience.IsTransient(err))
			assert.False(t, resilience.IsValidation(err))
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", tt.status)
			}))
			defer srv.Close()

			eng := NewPerplexity(perplexity.NewClient("test-key", perplexity.WithBaseURL(srv.URL)))
			_, err := eng.Ask(context.Background(), "q")
			require.Error(t, err)
			tt.check(t, err)
		})
	}
}
