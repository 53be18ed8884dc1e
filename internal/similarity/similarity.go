// Package similarity provides the pure string and number helpers the
// detectors score with. Every function is deterministic.
package similarity

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/agnivade/levenshtein"
)

var yearRe = regexp.MustCompile(`(1[5-9]\d{2}|20\d{2})`)

// interior-token abbreviations expanded by TokenNormalize
var placeAbbreviations = map[string]string{
	"st": "street",
	"mt": "mount",
	"co": "county",
}

// NormalizeName lower-cases s, drops punctuation and collapses whitespace.
func NormalizeName(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r), r == '-', r == '/':
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// NameSimilarity returns the Ratcliff/Obershelp ratio of the normalized
// names in [0,1]. Empty input on either side scores 0. Arguments are
// ordered before matching so the result does not depend on call order.
func NameSimilarity(a, b string) float64 {
	na, nb := NormalizeName(a), NormalizeName(b)
	if na > nb {
		na, nb = nb, na
	}
	return Ratio(na, nb)
}

// Ratio is the Ratcliff/Obershelp similarity 2*M/T, where M counts the
// characters in recursively matched longest common blocks.
func Ratio(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 || len(rb) == 0 {
		return 0
	}
	m := matchingCharacters(ra, rb)
	return 2 * float64(m) / float64(len(ra)+len(rb))
}

func matchingCharacters(a, b []rune) int {
	type span struct{ alo, ahi, blo, bhi int }
	total := 0
	queue := []span{{0, len(a), 0, len(b)}}
	for len(queue) > 0 {
		s := queue[len(queue)-1]
		queue = queue[:len(queue)-1]
		i, j, k := longestMatch(a, b, s.alo, s.ahi, s.blo, s.bhi)
		if k == 0 {
			continue
		}
		total += k
		if s.alo < i && s.blo < j {
			queue = append(queue, span{s.alo, i, s.blo, j})
		}
		if i+k < s.ahi && j+k < s.bhi {
			queue = append(queue, span{i + k, s.ahi, j + k, s.bhi})
		}
	}
	return total
}

// longestMatch finds the longest common block in a[alo:ahi] and b[blo:bhi],
// preferring the earliest start in a, then in b.
func longestMatch(a, b []rune, alo, ahi, blo, bhi int) (besti, bestj, bestk int) {
	besti, bestj = alo, blo
	prev := make([]int, bhi-blo+1)
	cur := make([]int, bhi-blo+1)
	for i := alo; i < ahi; i++ {
		for j := blo; j < bhi; j++ {
			if a[i] != b[j] {
				cur[j-blo+1] = 0
				continue
			}
			k := prev[j-blo] + 1
			cur[j-blo+1] = k
			if k > bestk {
				besti, bestj, bestk = i-k+1, j-k+1, k
			}
		}
		prev, cur = cur, prev
		for x := range cur {
			cur[x] = 0
		}
	}
	return besti, bestj, bestk
}

// EditSimilarity is 1 - levenshtein(a,b)/max(len) over lower-cased input.
func EditSimilarity(a, b string) float64 {
	a, b = strings.ToLower(strings.TrimSpace(a)), strings.ToLower(strings.TrimSpace(b))
	la, lb := len([]rune(a)), len([]rune(b))
	longest := max(la, lb)
	if longest == 0 {
		return 0
	}
	d := levenshtein.ComputeDistance(a, b)
	return 1 - float64(d)/float64(longest)
}

// TokenNormalize turns a free-text place into a stable cluster key:
// lower-case, punctuation stripped, interior st/mt/co expanded, tokens
// joined by single spaces in their original order.
func TokenNormalize(place string) string {
	var b strings.Builder
	b.Grow(len(place))
	for _, r := range strings.ToLower(place) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}
	tokens := strings.Fields(b.String())
	for i := 1; i < len(tokens); i++ {
		if full, ok := placeAbbreviations[tokens[i]]; ok {
			tokens[i] = full
		}
	}
	return strings.Join(tokens, " ")
}

// ExtractYear returns the first plausible 4-digit year (1500-2099) in s.
func ExtractYear(s string) (int, bool) {
	m := yearRe.FindString(s)
	if m == "" {
		return 0, false
	}
	y, err := strconv.Atoi(m)
	if err != nil {
		return 0, false
	}
	return y, true
}

// YearDelta is the absolute difference between the years found in a and b.
// ok is false when either side has no year.
func YearDelta(a, b string) (delta int, ok bool) {
	ya, okA := ExtractYear(a)
	yb, okB := ExtractYear(b)
	if !okA || !okB {
		return 0, false
	}
	if ya > yb {
		return ya - yb, true
	}
	return yb - ya, true
}
