package matching

import (
	"sort"
	"strings"
	"unicode"
)

// TokenSetRatio scores the similarity of two names on a 0-100 scale.
// Names are lowercased, stripped of punctuation and split into token sets;
// the score is the best pairwise ratio between the sorted intersection and
// each full sorted token string. Token order and repeated words do not
// affect the score, which suits supplier names like
// "Болт М8х40 оцинкованный" vs "Оцинкованный болт м8х40".
func TokenSetRatio(a, b string) float64 {
	tokensA := tokenize(a)
	tokensB := tokenize(b)
	if len(tokensA) == 0 || len(tokensB) == 0 {
		return 0
	}

	setA := toSet(tokensA)
	setB := toSet(tokensB)

	var intersection, diffA, diffB []string
	for token := range setA {
		if _, ok := setB[token]; ok {
			intersection = append(intersection, token)
		} else {
			diffA = append(diffA, token)
		}
	}
	for token := range setB {
		if _, ok := setA[token]; !ok {
			diffB = append(diffB, token)
		}
	}
	sort.Strings(intersection)
	sort.Strings(diffA)
	sort.Strings(diffB)

	base := strings.Join(intersection, " ")
	fullA := strings.TrimSpace(base + " " + strings.Join(diffA, " "))
	fullB := strings.TrimSpace(base + " " + strings.Join(diffB, " "))

	best := ratio(base, fullA)
	if r := ratio(base, fullB); r > best {
		best = r
	}
	if r := ratio(fullA, fullB); r > best {
		best = r
	}
	return best
}

// ratio is normalized Levenshtein similarity on a 0-100 scale:
// 100 * (1 - distance / max(len(a), len(b)))
func ratio(a, b string) float64 {
	if a == b {
		return 100
	}
	ra, rb := []rune(a), []rune(b)
	longest := len(ra)
	if len(rb) > longest {
		longest = len(rb)
	}
	if longest == 0 {
		return 100
	}
	distance := levenshtein(ra, rb)
	return 100 * (1 - float64(distance)/float64(longest))
}

func levenshtein(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min3(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}

// tokenize lowercases and splits on anything that is not a letter or digit
func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func toSet(tokens []string) map[string]struct{} {
	set := make(map[string]struct{}, len(tokens))
	for _, token := range tokens {
		set[token] = struct{}{}
	}
	return set
}
