// Package parser turns raw engine answers into structured mention and
// citation records for the configured brands. Everything here is pure:
// no I/O, no clocks, no randomness, so the same answer always parses to
// the same records.
package parser

import (
	"net/url"
	"sort"
	"unicode"
	"unicode/utf8"

	"github.com/xenlix/visibility-engine/internal/model"
)

// Result holds the records extracted from one answer: one mention per
// tracked brand (mentioned or not) and one citation per engine-provided
// source.
type Result struct {
	Mentions  []model.Mention
	Citations []model.Citation
}

// Parser scans answers for brand mentions and attributes citations. The
// sentiment function is pluggable; NewParser installs the lexicon
// heuristic when none is given.
type Parser struct {
	sentiment SentimentFunc
}

// Option configures the parser.
type Option func(*Parser)

// WithSentiment replaces the default sentiment heuristic.
func WithSentiment(fn SentimentFunc) Option {
	return func(p *Parser) {
		p.sentiment = fn
	}
}

// NewParser creates a parser with the default lexicon sentiment.
func NewParser(opts ...Option) *Parser {
	p := &Parser{sentiment: LexiconSentiment}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Parse extracts mentions and citations from one answer against the
// given brand set. Every brand yields exactly one Mention record; a
// brand that never appears gets Mentioned=false, FirstOffset=-1 and
// zero position and sentiment terms. Record IDs are left empty for the
// persistence layer to assign.
func (p *Parser) Parse(answer model.Answer, brands []model.Brand) Result {
	res := Result{
		Mentions:  make([]model.Mention, 0, len(brands)),
		Citations: parseCitations(answer, brands),
	}

	for _, brand := range brands {
		res.Mentions = append(res.Mentions, p.parseMention(answer, brand))
	}
	return res
}

func (p *Parser) parseMention(answer model.Answer, brand model.Brand) model.Mention {
	offsets := matchOffsets(answer.Text, brand.Terms())
	m := model.Mention{
		AnswerID:    answer.ID,
		BrandID:     brand.ID,
		FirstOffset: -1,
	}
	if len(offsets) == 0 {
		return m
	}

	m.Mentioned = true
	m.FirstOffset = offsets[0]
	m.PositionTerm = positionTerm(offsets[0], len(answer.Text))
	m.Sentiment = clamp01(p.sentiment(answer.Text, offsets))
	return m
}

// matchOffsets returns the byte offsets in text of every
// case-insensitive occurrence of any term, sorted ascending and
// deduplicated. Matching folds rune by rune against the original text,
// so offsets stay exact even where lowercasing would change a rune's
// encoded length.
func matchOffsets(text string, terms []string) []int {
	seen := make(map[int]bool)
	var offsets []int
	for _, term := range terms {
		if term == "" {
			continue
		}
		for at := 0; at < len(text); {
			n := foldMatchLen(text[at:], term)
			if n > 0 {
				if !seen[at] {
					seen[at] = true
					offsets = append(offsets, at)
				}
				at += n
				continue
			}
			_, size := utf8.DecodeRuneInString(text[at:])
			at += size
		}
	}
	sort.Ints(offsets)
	return offsets
}

// foldMatchLen reports how many bytes at the start of s match term under
// rune-wise case folding, or 0 when they do not.
func foldMatchLen(s, term string) int {
	n := 0
	for _, tr := range term {
		r, size := utf8.DecodeRuneInString(s[n:])
		if size == 0 {
			return 0
		}
		if unicode.ToLower(r) != unicode.ToLower(tr) {
			return 0
		}
		n += size
	}
	return n
}

// positionTerm maps the earliest match offset to [0,1]: an opening
// mention scores 1.0, decaying linearly toward 0 at the end of the text.
func positionTerm(offset, textLen int) float64 {
	if textLen <= 0 {
		return 0
	}
	return clamp01(1 - float64(offset)/float64(textLen))
}

// parseCitations converts the engine's ordered citation list into
// records, attributing each to a brand whose primary domain matches the
// citation's host. A URL that does not parse still yields a citation
// with an empty domain; it just cannot match any brand.
func parseCitations(answer model.Answer, brands []model.Brand) []model.Citation {
	if len(answer.Citations) == 0 {
		return nil
	}

	domains := make(map[string]string, len(brands))
	for _, b := range brands {
		if d := b.NormalizedDomain(); d != "" {
			domains[d] = b.ID
		}
	}

	citations := make([]model.Citation, 0, len(answer.Citations))
	for i, ec := range answer.Citations {
		c := model.Citation{
			AnswerID: answer.ID,
			URL:      ec.URL,
			Domain:   citationDomain(ec.URL),
			Rank:     i + 1,
			Title:    ec.Title,
		}
		if brandID, ok := domains[c.Domain]; ok {
			c.IsPrimary = true
			c.BrandID = brandID
		}
		citations = append(citations, c)
	}
	return citations
}

// citationDomain extracts the normalized host from a citation URL, or
// "" when the URL is malformed.
func citationDomain(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return ""
	}
	return model.NormalizeDomain(u.Hostname())
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
