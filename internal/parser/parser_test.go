package parser

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenlix/visibility-engine/internal/model"
)

func acme() model.Brand {
	return model.Brand{
		ID:      "brand-acme",
		Name:    "Acme CRM",
		Aliases: []string{"Acme", "AcmeCRM"},
		Domain:  "www.Acme.example",
	}
}

func TestParse_CaseInsensitiveMention(t *testing.T) {
	p := NewParser()
	ans := model.Answer{
		ID:   "a1",
		Text: "Many teams pick ACME crm for its pipeline view.",
	}

	res := p.Parse(ans, []model.Brand{acme()})
	require.Len(t, res.Mentions, 1)

	m := res.Mentions[0]
	assert.True(t, m.Mentioned)
	assert.Equal(t, "a1", m.AnswerID)
	assert.Equal(t, "brand-acme", m.BrandID)
	assert.Equal(t, strings.Index(strings.ToLower(ans.Text), "acme"), m.FirstOffset)
}

func TestParse_EarliestOffsetAcrossAliases(t *testing.T) {
	p := NewParser()
	ans := model.Answer{
		ID:   "a1",
		Text: "AcmeCRM, also sold as Acme CRM, is widely deployed.",
	}

	res := p.Parse(ans, []model.Brand{acme()})
	require.Len(t, res.Mentions, 1)
	// The alias at offset 0 wins over the canonical name later on.
	assert.Equal(t, 0, res.Mentions[0].FirstOffset)
	assert.InDelta(t, 1.0, res.Mentions[0].PositionTerm, 1e-9)
}

func TestParse_MultibyteTextKeepsExactOffsets(t *testing.T) {
	p := NewParser()
	// U+0130 grows by a byte under strings.ToLower, which would shift
	// every later offset if matching ran over a lowercased copy.
	ans := model.Answer{
		ID:   "a1",
		Text: "İstanbul İçin rehber: acme crm önerilir.",
	}

	res := p.Parse(ans, []model.Brand{acme()})
	require.Len(t, res.Mentions, 1)

	m := res.Mentions[0]
	assert.True(t, m.Mentioned)
	assert.Equal(t, strings.Index(ans.Text, "acme"), m.FirstOffset)
	assert.InDelta(t, 1-float64(m.FirstOffset)/float64(len(ans.Text)), m.PositionTerm, 1e-9)
}

func TestParse_NoMention(t *testing.T) {
	p := NewParser()
	ans := model.Answer{ID: "a1", Text: "Initech remains a niche player."}

	res := p.Parse(ans, []model.Brand{acme()})
	require.Len(t, res.Mentions, 1)

	m := res.Mentions[0]
	assert.False(t, m.Mentioned)
	assert.Equal(t, -1, m.FirstOffset)
	assert.Zero(t, m.PositionTerm)
	assert.Zero(t, m.Sentiment)
}

func TestParse_PositionTermDecays(t *testing.T) {
	p := NewParser()
	early := model.Answer{ID: "a1", Text: "Acme is mentioned first. " + strings.Repeat("filler ", 50)}
	late := model.Answer{ID: "a2", Text: strings.Repeat("filler ", 50) + "Finally, Acme appears."}

	mEarly := p.Parse(early, []model.Brand{acme()}).Mentions[0]
	mLate := p.Parse(late, []model.Brand{acme()}).Mentions[0]

	assert.Greater(t, mEarly.PositionTerm, mLate.PositionTerm)
	assert.Greater(t, mLate.PositionTerm, 0.0)
	assert.LessOrEqual(t, mEarly.PositionTerm, 1.0)
}

func TestParse_CitationsPrimaryDomain(t *testing.T) {
	p := NewParser()
	ans := model.Answer{
		ID:   "a1",
		Text: "Acme tops most comparisons.",
		Citations: []model.EngineCitation{
			{URL: "https://WWW.acme.example/pricing", Title: "Acme Pricing"},
			{URL: "https://reviews.example/crm-roundup"},
			{URL: "://not a url"},
		},
	}

	res := p.Parse(ans, []model.Brand{acme()})
	require.Len(t, res.Citations, 3)

	first := res.Citations[0]
	assert.Equal(t, "acme.example", first.Domain)
	assert.Equal(t, 1, first.Rank)
	assert.True(t, first.IsPrimary)
	assert.Equal(t, "brand-acme", first.BrandID)
	assert.Equal(t, "Acme Pricing", first.Title)

	second := res.Citations[1]
	assert.Equal(t, "reviews.example", second.Domain)
	assert.Equal(t, 2, second.Rank)
	assert.False(t, second.IsPrimary)
	assert.Empty(t, second.BrandID)

	// Malformed URLs degrade to a record with no domain.
	third := res.Citations[2]
	assert.Empty(t, third.Domain)
	assert.Equal(t, 3, third.Rank)
	assert.False(t, third.IsPrimary)
}

func TestParse_MultipleBrands(t *testing.T) {
	p := NewParser()
	initech := model.Brand{ID: "brand-initech", Name: "Initech", Domain: "initech.example"}
	ans := model.Answer{ID: "a1", Text: "Acme outsells Initech in every region."}

	res := p.Parse(ans, []model.Brand{acme(), initech})
	require.Len(t, res.Mentions, 2)
	assert.True(t, res.Mentions[0].Mentioned)
	assert.True(t, res.Mentions[1].Mentioned)
	assert.Less(t, res.Mentions[0].FirstOffset, res.Mentions[1].FirstOffset)
}

func TestParse_Deterministic(t *testing.T) {
	p := NewParser()
	ans := model.Answer{
		ID:   "a1",
		Text: "Acme CRM is the best choice; acme also offers a free tier.",
		Citations: []model.EngineCitation{
			{URL: "https://acme.example"},
		},
	}
	brands := []model.Brand{acme()}

	first := p.Parse(ans, brands)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, p.Parse(ans, brands))
	}
}

func TestParse_CustomSentiment(t *testing.T) {
	p := NewParser(WithSentiment(func(text string, offsets []int) float64 {
		return 2.5 // out of range on purpose
	}))
	ans := model.Answer{ID: "a1", Text: "Acme ships."}

	m := p.Parse(ans, []model.Brand{acme()}).Mentions[0]
	assert.Equal(t, 1.0, m.Sentiment) // clamped
}
