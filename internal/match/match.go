// Package match scores recognized utterances against the expected phrases
// and intents of a voice-input action.
//
// Similarity scoring combines two stages:
//
//  1. Jaro-Winkler similarity on the normalized full strings, which handles
//     near-miss transcriptions ("thee big bad wolf" vs "the big bad wolf").
//
//  2. A Double Metaphone check: when any token of the utterance is
//     phonetically equal to a token of the phrase, the per-token best
//     Jaro-Winkler score is also considered. This rescues recognizer
//     misspellings that sound right but read wrong.
//
// Intent matching is exact on the intent label plus a subset rule on
// entities: an option matches when every required entity appears in the
// recognized entity set.
package match

import (
	"strings"

	"github.com/antzucaro/matchr"
)

// Scorer computes utterance/phrase similarity. It is read-only after
// construction and safe for concurrent use.
type Scorer struct{}

// NewScorer returns a Scorer.
func NewScorer() *Scorer {
	return &Scorer{}
}

// Score returns the similarity between the recognized utterance and an
// expected phrase in [0,1]. Empty input on either side scores zero.
func (s *Scorer) Score(utterance, phrase string) float64 {
	u := normalize(utterance)
	p := normalize(phrase)
	if u == "" || p == "" {
		return 0
	}

	score := matchr.JaroWinkler(u, p, false)

	// Phonetic rescue: only trust per-token scores when the tokens actually
	// sound alike, otherwise short tokens inflate the score.
	uTokens := strings.Fields(u)
	pTokens := strings.Fields(p)
	if codesOverlap(codesForTokens(uTokens), codesForTokens(pTokens)) {
		if ts := bestTokenScore(uTokens, pTokens); ts > score {
			score = ts
		}
	}
	return score
}

// BestOption scores utterance against every phrase and returns the index and
// score of the best one. Ties break deterministically in favor of the
// earliest phrase (first-seen-wins). Returns (-1, 0) for an empty phrase
// list.
func (s *Scorer) BestOption(utterance string, phrases []string) (int, float64) {
	if len(phrases) == 0 {
		return -1, 0
	}
	best := 0
	bestScore := s.Score(utterance, phrases[0])
	for i := 1; i < len(phrases); i++ {
		// Strict greater-than keeps the earliest index on equal scores.
		if score := s.Score(utterance, phrases[i]); score > bestScore {
			best = i
			bestScore = score
		}
	}
	return best, bestScore
}

// IntentMatches reports whether a recognized intent and entity set satisfy
// an option's intent and required entities. The required set must be a
// subset of the recognized set; extra recognized entities are fine.
func IntentMatches(wantIntent string, required []string, gotIntent string, got []string) bool {
	if wantIntent == "" || !strings.EqualFold(wantIntent, gotIntent) {
		return false
	}

	recognized := make(map[string]struct{}, len(got))
	for _, e := range got {
		recognized[strings.ToLower(strings.TrimSpace(e))] = struct{}{}
	}
	for _, e := range required {
		if _, ok := recognized[strings.ToLower(strings.TrimSpace(e))]; !ok {
			return false
		}
	}
	return true
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// codesForTokens computes the Double Metaphone code set for a token list.
// Both primary and secondary codes are included.
func codesForTokens(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		p, s := matchr.DoubleMetaphone(t)
		if p != "" {
			codes[p] = struct{}{}
		}
		if s != "" {
			codes[s] = struct{}{}
		}
	}
	return codes
}

func codesOverlap(a, b map[string]struct{}) bool {
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}

// bestTokenScore returns the highest Jaro-Winkler score across all token
// pairs. Used only when a phonetic overlap exists.
func bestTokenScore(uTokens, pTokens []string) float64 {
	best := 0.0
	for _, ut := range uTokens {
		for _, pt := range pTokens {
			if s := matchr.JaroWinkler(ut, pt, false); s > best {
				best = s
			}
		}
	}
	return best
}
