package model

import "time"

// Run groups the answers collected in one batch execution.
type Run struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
}

// EngineCitation is a source reference exactly as returned by an answer
// engine, before any brand matching. Order within an answer is the
// engine's own citation order.
type EngineCitation struct {
	URL   string `json:"url"`
	Title string `json:"title,omitempty"`
}

// Answer is the raw response text one engine returned for one prompt.
// Immutable once written; mentions and citations derive from it.
type Answer struct {
	ID        string           `json:"id"`
	RunID     string           `json:"run_id"`
	PromptID  string           `json:"prompt_id"`
	Engine    string           `json:"engine"`
	Text      string           `json:"text"`
	Citations []EngineCitation `json:"citations,omitempty"`
	LatencyMS int64            `json:"latency_ms"`
	CreatedAt time.Time        `json:"created_at"`
}

// Mention records whether a brand appears in one answer, with position
// and sentiment signals. At most one Mention exists per (answer, brand).
type Mention struct {
	AnswerID     string  `json:"answer_id"`
	BrandID      string  `json:"brand_id"`
	Mentioned    bool    `json:"mentioned"`
	FirstOffset  int     `json:"first_offset"`  // byte offset of earliest match, -1 when absent
	PositionTerm float64 `json:"position_term"` // [0,1], 1.0 = opening of the answer
	Sentiment    float64 `json:"sentiment"`     // [0,1], 0 when not mentioned
}

// Citation is a URL referenced by an answer, optionally attributed to a
// brand when its domain matches that brand's primary domain.
type Citation struct {
	ID        string `json:"id"`
	AnswerID  string `json:"answer_id"`
	URL       string `json:"url"`
	Domain    string `json:"domain"`
	Rank      int    `json:"rank"` // 1-based citation order from the engine
	Title     string `json:"title,omitempty"`
	IsPrimary bool   `json:"is_primary"`
	BrandID   string `json:"brand_id,omitempty"`
}

// ComponentScores holds the four named, individually bounded score
// components. Each value already includes its weight: mentioned is 0 or
// 0.50, primary citation 0 or 0.30, position in [0,0.15], sentiment in
// [0,0.05].
type ComponentScores struct {
	Mentioned       float64 `json:"mentioned"`
	PrimaryCitation float64 `json:"primary_citation"`
	PositionTerm    float64 `json:"position_term"`
	Sentiment       float64 `json:"sentiment"`
}

// VisibilityMetric is the scored result for one (answer, brand) pair.
// Derived data: always recomputed from the source answer, never edited.
type VisibilityMetric struct {
	ID         string            `json:"id"`
	AnswerID   string            `json:"answer_id"`
	BrandID    string            `json:"brand_id"`
	Components ComponentScores   `json:"components"`
	FinalScore float64           `json:"final_score"` // [0,1]
	Detail     map[string]string `json:"detail,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
}
