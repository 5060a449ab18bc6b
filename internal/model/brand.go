package model

import (
	"strings"
	"time"
)

// Brand is a tracked entity whose visibility across answer engines is
// measured. Everything except the alias list is immutable after creation.
type Brand struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Aliases   []string  `json:"aliases,omitempty"`
	Domain    string    `json:"domain"`
	CreatedAt time.Time `json:"created_at"`
}

// Terms returns the canonical name plus all aliases, the full set of
// strings the parser matches against answer text.
func (b Brand) Terms() []string {
	terms := make([]string, 0, len(b.Aliases)+1)
	if b.Name != "" {
		terms = append(terms, b.Name)
	}
	for _, a := range b.Aliases {
		if a != "" {
			terms = append(terms, a)
		}
	}
	return terms
}

// NormalizedDomain returns the primary domain lowercased with any
// leading "www." stripped, the form used for citation matching.
func (b Brand) NormalizedDomain() string {
	return NormalizeDomain(b.Domain)
}

// NormalizeDomain lowercases a domain and strips a leading "www.".
func NormalizeDomain(domain string) string {
	d := strings.ToLower(strings.TrimSpace(domain))
	return strings.TrimPrefix(d, "www.")
}

// Prompt is a natural-language query submitted to answer engines on
// behalf of a brand. One prompt is queried against many engines over time.
type Prompt struct {
	ID        string    `json:"id"`
	BrandID   string    `json:"brand_id"`
	Text      string    `json:"text"`
	Keywords  []string  `json:"keywords,omitempty"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}
