package news

import (
	"sort"
	"strings"
	"unicode/utf8"
)

// ContentRule is the minimum-content bar. MinChars is the hard threshold;
// MinWords and MinParagraphs let terse but complete articles through.
type ContentRule struct {
	MinChars      int
	MinParagraphs int
	MinWords      int
}

// DefaultContentRule mirrors what the bot has always used in production.
var DefaultContentRule = ContentRule{MinChars: 600, MinParagraphs: 3, MinWords: 120}

// Accepts reports whether text carries enough content to summarize.
func (r ContentRule) Accepts(text string) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return false
	}
	if utf8.RuneCountInString(text) >= r.MinChars {
		return true
	}
	words := len(strings.Fields(text))
	if r.MinWords > 0 && words >= r.MinWords {
		return true
	}
	if r.MinParagraphs > 0 && countParagraphs(text) >= r.MinParagraphs && words >= r.MinWords/2 {
		return true
	}
	return false
}

func countParagraphs(text string) int {
	n := 0
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) != "" {
			n++
		}
	}
	return n
}

// Seen is the set of fingerprints already processed.
type Seen interface {
	Has(Fingerprint) bool
}

// FingerprintSet is an in-memory Seen.
type FingerprintSet map[Fingerprint]struct{}

func (s FingerprintSet) Has(fp Fingerprint) bool {
	_, ok := s[fp]
	return ok
}

func (s FingerprintSet) Add(fp Fingerprint) {
	s[fp] = struct{}{}
}

// FingerprintFunc derives the identity of a candidate.
type FingerprintFunc func(c Candidate, u NormalizedURL) Fingerprint

// ByURL is the default identity: the hash of the normalized URL.
func ByURL(_ Candidate, u NormalizedURL) Fingerprint {
	return FingerprintOf(u)
}

// ByTopic hashes the title together with the normalized URL.
func ByTopic(c Candidate, u NormalizedURL) Fingerprint {
	return TopicFingerprint(c.Title, u)
}

// Keyed is a candidate with its derived identity.
type Keyed struct {
	Candidate
	Normalized  NormalizedURL
	Fingerprint Fingerprint
}

// Result describes one selection pass.
type Result struct {
	Selected   *Keyed
	Invalid    int
	Duplicates int
	TooShort   int
}

// Selector implements freshest-unique selection.
type Selector struct {
	Rule        ContentRule
	Fingerprint FingerprintFunc
}

// NewSelector returns a selector using URL fingerprints.
func NewSelector(rule ContentRule) Selector {
	return Selector{Rule: rule, Fingerprint: ByURL}
}

// Key normalizes and fingerprints every candidate, dropping the ones whose
// URL cannot be normalized. Output is sorted freshest first, ties broken by
// normalized URL.
func (s Selector) Key(cands []Candidate) ([]Keyed, int) {
	fp := s.Fingerprint
	if fp == nil {
		fp = ByURL
	}
	keyed := make([]Keyed, 0, len(cands))
	invalid := 0
	for _, c := range cands {
		u, err := Normalize(c.URL)
		if err != nil {
			invalid++
			continue
		}
		keyed = append(keyed, Keyed{Candidate: c, Normalized: u, Fingerprint: fp(c, u)})
	}
	sort.SliceStable(keyed, func(i, j int) bool {
		a, b := keyed[i], keyed[j]
		if !a.PublishedAt.Equal(b.PublishedAt) {
			return a.PublishedAt.After(b.PublishedAt)
		}
		return a.Normalized < b.Normalized
	})
	return keyed, invalid
}

// Select walks candidates freshest first and returns the first one that is
// neither processed nor too short. Candidates sharing a fingerprint are
// evaluated independently, so a short copy does not hide a complete one.
func (s Selector) Select(cands []Candidate, seen Seen) Result {
	keyed, invalid := s.Key(cands)
	res := s.SelectKeyed(keyed, seen)
	res.Invalid = invalid
	return res
}

// SelectKeyed is Select over candidates already keyed by Key, in that order.
// Fingerprints are not recomputed.
func (s Selector) SelectKeyed(keyed []Keyed, seen Seen) Result {
	var res Result
	for i := range keyed {
		k := keyed[i]
		if seen != nil && seen.Has(k.Fingerprint) {
			res.Duplicates++
			continue
		}
		if !s.Rule.Accepts(k.Text()) {
			res.TooShort++
			continue
		}
		res.Selected = &k
		return res
	}
	return res
}

// Pick returns the freshest unique candidate, or false when none qualifies.
func Pick(cands []Candidate, seen Seen, rule ContentRule) (Keyed, bool) {
	res := NewSelector(rule).Select(cands, seen)
	if res.Selected == nil {
		return Keyed{}, false
	}
	return *res.Selected, true
}
