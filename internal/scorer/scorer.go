// Package scorer converts mention and citation records into weighted
// visibility metrics and aggregates them into a windowed 0-100 index
// with a trend classification. All functions are pure.
package scorer

import (
	"sort"
	"strconv"

	"github.com/xenlix/visibility-engine/internal/model"
)

// Component weights. They sum to 1.0, so the final score is bounded to
// [0,1] by construction.
const (
	WeightMentioned       = 0.50
	WeightPrimaryCitation = 0.30
	WeightPosition        = 0.15
	WeightSentiment       = 0.05
)

// Trend classifies the direction of a brand's score sequence.
type Trend string

const (
	TrendUp     Trend = "up"
	TrendDown   Trend = "down"
	TrendStable Trend = "stable"
)

// trendThreshold is the relative change in windowed means below which
// the trend reads as stable.
const trendThreshold = 0.05

// Score computes one VisibilityMetric per mention record. The citation
// slice covers the same answers; a brand earns the primary-citation
// component when any citation on the mention's answer is attributed to
// that brand. IDs and timestamps are left for the caller to stamp.
func Score(mentions []model.Mention, citations []model.Citation) []model.VisibilityMetric {
	primary := make(map[string]bool, len(citations))
	for _, c := range citations {
		if c.IsPrimary && c.BrandID != "" {
			primary[c.AnswerID+"|"+c.BrandID] = true
		}
	}

	metrics := make([]model.VisibilityMetric, 0, len(mentions))
	for _, m := range mentions {
		metrics = append(metrics, scoreOne(m, primary[m.AnswerID+"|"+m.BrandID]))
	}
	return metrics
}

func scoreOne(m model.Mention, hasPrimary bool) model.VisibilityMetric {
	var c model.ComponentScores
	if m.Mentioned {
		c.Mentioned = WeightMentioned
		c.PositionTerm = WeightPosition * clamp01(m.PositionTerm)
		c.Sentiment = WeightSentiment * clamp01(m.Sentiment)
	}
	if hasPrimary {
		c.PrimaryCitation = WeightPrimaryCitation
	}

	return model.VisibilityMetric{
		AnswerID:   m.AnswerID,
		BrandID:    m.BrandID,
		Components: c,
		FinalScore: clamp01(c.Mentioned + c.PrimaryCitation + c.PositionTerm + c.Sentiment),
		Detail: map[string]string{
			"position_input":  formatFloat(m.PositionTerm),
			"sentiment_input": formatFloat(m.Sentiment),
		},
	}
}

// Index aggregates a brand's metrics within a window into a 0-100 index
// and a trend. The index is the mean final score scaled to 0-100. The
// trend compares the recent half of the time-ordered sequence against
// the older half with a 5% relative threshold. Fewer than two metrics,
// or an empty window, reads as stable.
func Index(metrics []model.VisibilityMetric) (float64, Trend) {
	if len(metrics) == 0 {
		return 0, TrendStable
	}

	ordered := make([]model.VisibilityMetric, len(metrics))
	copy(ordered, metrics)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].CreatedAt.Before(ordered[j].CreatedAt)
	})

	scores := make([]float64, len(ordered))
	var sum float64
	for i, m := range ordered {
		scores[i] = m.FinalScore
		sum += m.FinalScore
	}

	index := sum / float64(len(scores)) * 100
	return index, classifyTrend(scores)
}

func classifyTrend(scores []float64) Trend {
	if len(scores) < 2 {
		return TrendStable
	}

	mid := len(scores) / 2
	older := mean(scores[:mid])
	recent := mean(scores[mid:])

	switch {
	case older == 0 && recent == 0:
		return TrendStable
	case older == 0:
		return TrendUp
	case recent > older*(1+trendThreshold):
		return TrendUp
	case recent < older*(1-trendThreshold):
		return TrendDown
	default:
		return TrendStable
	}
}

func mean(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	var sum float64
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
