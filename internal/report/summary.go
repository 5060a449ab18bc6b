// Package report builds the read-side aggregates: visibility summaries
// with coverage and competitive comparison, and top-cited-source
// rankings with an authority heuristic.
package report

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/xenlix/visibility-engine/internal/model"
	"github.com/xenlix/visibility-engine/internal/scorer"
	"github.com/xenlix/visibility-engine/internal/store"
)

// Reporter reads persisted metrics and citations and aggregates them.
type Reporter struct {
	store store.Store
}

// New creates a Reporter over a store.
func New(st store.Store) *Reporter {
	return &Reporter{store: st}
}

// BrandSummary is one brand's windowed standing.
type BrandSummary struct {
	BrandID   string       `json:"brand_id"`
	BrandName string       `json:"brand_name"`
	Index     float64      `json:"index"`
	Trend     scorer.Trend `json:"trend"`
	Answers   int          `json:"answers"`
	Mentions  int          `json:"mentions"`
}

// Coverage reports how much of the active prompt set has recent data.
type Coverage struct {
	ActivePrompts      int     `json:"active_prompts"`
	PromptsWithAnswers int     `json:"prompts_with_answers"`
	Percentage         float64 `json:"percentage"`
}

// Competitive names the strongest brand in the window.
type Competitive struct {
	DominantBrand string  `json:"dominant_brand"`
	DominantIndex float64 `json:"dominant_index"`
}

// Summary is the full visibility report for a window.
type Summary struct {
	Index       float64        `json:"ai_visibility_index"`
	Trend       scorer.Trend   `json:"trend"`
	WindowDays  int            `json:"window_days"`
	Brands      []BrandSummary `json:"brand_summaries"`
	Coverage    Coverage       `json:"coverage"`
	Competitive Competitive    `json:"competitive_analysis"`
}

// Summarize computes the windowed visibility index, per-brand summaries,
// coverage and the dominant brand. An empty brandID covers every tracked
// brand; the headline index is then the mean of the brand indexes.
// Brands with no data in the window report index 0 and a stable trend
// rather than failing the response.
func (r *Reporter) Summarize(ctx context.Context, brandID string, windowDays int, engines []string) (*Summary, error) {
	since := time.Now().UTC().AddDate(0, 0, -windowDays)

	brands, err := r.selectBrands(ctx, brandID)
	if err != nil {
		return nil, err
	}

	summary := &Summary{WindowDays: windowDays, Trend: scorer.TrendStable}
	for _, b := range brands {
		metrics, err := r.store.ListMetrics(ctx, store.MetricFilter{BrandID: b.ID, Since: since, Engines: engines})
		if err != nil {
			return nil, eris.Wrapf(err, "report: metrics for brand %s", b.ID)
		}

		index, trend := scorer.Index(metrics)
		bs := BrandSummary{
			BrandID:   b.ID,
			BrandName: b.Name,
			Index:     index,
			Trend:     trend,
			Answers:   len(metrics),
		}
		for _, m := range metrics {
			if m.Components.Mentioned > 0 {
				bs.Mentions++
			}
		}
		summary.Brands = append(summary.Brands, bs)

		if bs.Index >= summary.Competitive.DominantIndex && bs.Answers > 0 {
			summary.Competitive = Competitive{DominantBrand: b.Name, DominantIndex: bs.Index}
		}
	}

	summary.Index, summary.Trend = headline(summary.Brands, brandID)

	cov, err := r.coverage(ctx, brandID, since, engines)
	if err != nil {
		return nil, err
	}
	summary.Coverage = cov

	return summary, nil
}

func (r *Reporter) selectBrands(ctx context.Context, brandID string) ([]model.Brand, error) {
	if brandID != "" {
		b, err := r.store.GetBrand(ctx, brandID)
		if err != nil {
			return nil, eris.Wrapf(err, "report: get brand %s", brandID)
		}
		if b == nil {
			return nil, nil
		}
		return []model.Brand{*b}, nil
	}

	brands, err := r.store.ListBrands(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "report: list brands")
	}
	return brands, nil
}

// headline picks the top-level index and trend: the requested brand's
// own numbers, or the mean index across brands when no brand was named.
func headline(brands []BrandSummary, brandID string) (float64, scorer.Trend) {
	if len(brands) == 0 {
		return 0, scorer.TrendStable
	}
	if brandID != "" {
		return brands[0].Index, brands[0].Trend
	}

	var sum float64
	for _, b := range brands {
		sum += b.Index
	}
	return sum / float64(len(brands)), scorer.TrendStable
}

func (r *Reporter) coverage(ctx context.Context, brandID string, since time.Time, engines []string) (Coverage, error) {
	prompts, err := r.store.ListPrompts(ctx, store.PromptFilter{BrandID: brandID, ActiveOnly: true})
	if err != nil {
		return Coverage{}, eris.Wrap(err, "report: list prompts")
	}

	withAnswers, err := r.store.CountPromptsWithAnswers(ctx, brandID, since, engines)
	if err != nil {
		return Coverage{}, eris.Wrap(err, "report: count prompts with answers")
	}

	cov := Coverage{ActivePrompts: len(prompts), PromptsWithAnswers: withAnswers}
	if cov.ActivePrompts > 0 {
		cov.Percentage = float64(cov.PromptsWithAnswers) / float64(cov.ActivePrompts) * 100
		if cov.Percentage > 100 {
			cov.Percentage = 100
		}
	}
	return cov, nil
}
