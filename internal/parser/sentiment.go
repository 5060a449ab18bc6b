package parser

import "strings"

// SentimentFunc scores the tone of the contexts around brand mentions.
// It receives the full answer text and the byte offsets of every match,
// and returns a value in [0,1] where 0.5 is neutral. The parser clamps
// the result, so implementations may be sloppy at the edges.
type SentimentFunc func(text string, offsets []int) float64

// sentimentWindow is how many bytes around a mention the lexicon
// heuristic inspects.
const sentimentWindow = 120

var positiveWords = map[string]bool{
	"best": true, "leading": true, "top": true, "excellent": true,
	"great": true, "strong": true, "popular": true, "recommended": true,
	"reliable": true, "trusted": true, "innovative": true, "powerful": true,
	"robust": true, "favorite": true, "outstanding": true, "impressive": true,
	"easy": true, "intuitive": true, "affordable": true, "fast": true,
}

var negativeWords = map[string]bool{
	"worst": true, "poor": true, "weak": true, "expensive": true,
	"slow": true, "limited": true, "outdated": true, "buggy": true,
	"unreliable": true, "difficult": true, "confusing": true, "lacking": true,
	"complaints": true, "avoid": true, "declining": true, "clunky": true,
	"overpriced": true, "frustrating": true,
}

// LexiconSentiment is the default sentiment heuristic: count positive
// and negative lexicon words within a window around each mention and map
// the balance onto [0,1]. No lexicon hits at all reads as neutral (0.5).
func LexiconSentiment(text string, offsets []int) float64 {
	var pos, neg int
	for _, off := range offsets {
		lo := off - sentimentWindow
		if lo < 0 {
			lo = 0
		}
		hi := off + sentimentWindow
		if hi > len(text) {
			hi = len(text)
		}
		for _, w := range strings.Fields(strings.ToLower(text[lo:hi])) {
			w = strings.Trim(w, ".,;:!?()[]\"'")
			if positiveWords[w] {
				pos++
			}
			if negativeWords[w] {
				neg++
			}
		}
	}
	if pos+neg == 0 {
		return 0.5
	}
	return 0.5 + 0.5*float64(pos-neg)/float64(pos+neg)
}
