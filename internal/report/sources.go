package report

import (
	"context"
	"sort"
	"time"

	"github.com/rotisserie/eris"

	"github.com/xenlix/visibility-engine/internal/store"
)

// SourceStat is one URL's (or domain's) aggregated citation standing.
type SourceStat struct {
	URL             string  `json:"url,omitempty"`
	Domain          string  `json:"domain"`
	Title           string  `json:"title,omitempty"`
	Citations       int     `json:"citations"`
	AvgRank         float64 `json:"avg_rank"`
	DistinctEngines int     `json:"distinct_engines"`
	Authority       float64 `json:"authority"`
}

// SourcesSummary totals the window the ranking was built from.
type SourcesSummary struct {
	TotalCitations  int `json:"total_citations"`
	DistinctURLs    int `json:"distinct_urls"`
	DistinctDomains int `json:"distinct_domains"`
	WindowDays      int `json:"window_days"`
}

// Sources is the top-cited-source report.
type Sources struct {
	TopURLs          []SourceStat   `json:"top_urls"`
	TopDomains       []SourceStat   `json:"top_domains"`
	PrimaryCitations map[string]int `json:"competitive_insights"` // brand id -> primary citation count
	Summary          SourcesSummary `json:"summary"`
}

// TopSources ranks the most cited URLs and domains within a window.
// Results are sorted by citation count descending, ties broken by better
// (lower) average rank, truncated to limit. Sources cited fewer than
// minCitations times are dropped.
func (r *Reporter) TopSources(ctx context.Context, windowDays, minCitations, limit int, brandID, engineName string) (*Sources, error) {
	since := time.Now().UTC().AddDate(0, 0, -windowDays)

	facts, err := r.store.ListCitationFacts(ctx, store.CitationFilter{
		Since:   since,
		BrandID: brandID,
		Engine:  engineName,
	})
	if err != nil {
		return nil, eris.Wrap(err, "report: list citation facts")
	}

	out := &Sources{
		TopURLs:          rankSources(facts, byURL, minCitations, limit),
		TopDomains:       rankSources(facts, byDomain, minCitations, limit),
		PrimaryCitations: make(map[string]int),
		Summary:          SourcesSummary{TotalCitations: len(facts), WindowDays: windowDays},
	}

	urls := make(map[string]bool)
	domains := make(map[string]bool)
	for _, f := range facts {
		urls[f.URL] = true
		if f.Domain != "" {
			domains[f.Domain] = true
		}
		if f.IsPrimary && f.BrandID != "" {
			out.PrimaryCitations[f.BrandID]++
		}
	}
	out.Summary.DistinctURLs = len(urls)
	out.Summary.DistinctDomains = len(domains)

	return out, nil
}

type groupKey int

const (
	byURL groupKey = iota
	byDomain
)

type sourceAccum struct {
	stat    SourceStat
	rankSum int
	engines map[string]bool
}

// rankSources groups citation facts by URL or domain and computes the
// bounded authority heuristic: citation frequency, average rank and
// engine diversity, weighted 0.5/0.3/0.2.
func rankSources(facts []store.CitationFact, key groupKey, minCitations, limit int) []SourceStat {
	groups := make(map[string]*sourceAccum)
	var order []string

	for _, f := range facts {
		k := f.URL
		if key == byDomain {
			k = f.Domain
		}
		if k == "" {
			continue
		}

		acc, ok := groups[k]
		if !ok {
			acc = &sourceAccum{engines: make(map[string]bool)}
			acc.stat.Domain = f.Domain
			if key == byURL {
				acc.stat.URL = f.URL
				acc.stat.Title = f.Title
			}
			groups[k] = acc
			order = append(order, k)
		}
		acc.stat.Citations++
		acc.rankSum += f.Rank
		acc.engines[f.Engine] = true
		if key == byURL && acc.stat.Title == "" {
			acc.stat.Title = f.Title
		}
	}

	stats := make([]SourceStat, 0, len(groups))
	for _, k := range order {
		acc := groups[k]
		if acc.stat.Citations < minCitations {
			continue
		}
		acc.stat.AvgRank = float64(acc.rankSum) / float64(acc.stat.Citations)
		acc.stat.DistinctEngines = len(acc.engines)
		acc.stat.Authority = authority(acc.stat)
		stats = append(stats, acc.stat)
	}

	sort.SliceStable(stats, func(i, j int) bool {
		if stats[i].Citations != stats[j].Citations {
			return stats[i].Citations > stats[j].Citations
		}
		return stats[i].AvgRank < stats[j].AvgRank
	})

	if limit > 0 && len(stats) > limit {
		stats = stats[:limit]
	}
	return stats
}

// authority maps a source's citation frequency, average rank and engine
// diversity onto [0,1]. Ten citations saturate the frequency component;
// four engines saturate diversity.
func authority(s SourceStat) float64 {
	freq := float64(s.Citations) / 10
	if freq > 1 {
		freq = 1
	}

	rank := 0.0
	if s.AvgRank >= 1 {
		rank = 1 / s.AvgRank
	}

	div := float64(s.DistinctEngines) / 4
	if div > 1 {
		div = 1
	}

	return 0.5*freq + 0.3*rank + 0.2*div
}
