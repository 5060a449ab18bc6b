// Package engine contains the answer-engine collectors: one adapter per
// external free-text source, plus the Collector wrapper that enforces
// per-source rate limits, timeouts and retries around them.
package engine

import (
	"context"
	"sort"
	"sync"

	"github.com/xenlix/visibility-engine/internal/model"
)

// Well-known engine names.
const (
	NamePerplexity = "perplexity"
	NameOpenAI     = "openai"
	NameGemini     = "gemini"
	NameAnthropic  = "anthropic"
)

// Answer is the raw material one engine returned for one prompt: prose
// plus the engine's own ordered citation list. Engines that do not
// expose citations return an empty list.
type Answer struct {
	Text      string
	Citations []model.EngineCitation
}

// Engine submits one prompt to one external answer source. Ask performs
// a single network call with no retry or limit logic of its own; the
// Collector owns that.
type Engine interface {
	Name() string
	Ask(ctx context.Context, prompt string) (*Answer, error)
}

// Registry holds the configured collectors keyed by engine name.
type Registry struct {
	mu         sync.RWMutex
	collectors map[string]*Collector
}

// NewRegistry creates an empty collector registry.
func NewRegistry() *Registry {
	return &Registry{collectors: make(map[string]*Collector)}
}

// Register adds a collector under its engine name, replacing any
// previous registration.
func (r *Registry) Register(c *Collector) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.collectors[c.Name()] = c
}

// Get returns the collector for an engine name, or nil.
func (r *Registry) Get(name string) *Collector {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.collectors[name]
}

// Names returns all registered engine names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.collectors))
	for name := range r.collectors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
