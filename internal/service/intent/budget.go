package intent

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Budget patterns run on normalized text. Thousands use "." and decimals ","
// as written in Brazil: "R$ 5.000,00", "5 mil", "5000 reais".
var (
	currencyAmount = regexp.MustCompile(`r\$\s*(\d{1,3}(?:\.\d{3})+|\d+)(?:,(\d{1,2}))?`)
	milAmount      = regexp.MustCompile(`(\d+(?:[.,]\d+)?)\s*mil\b`)
	reaisAmount    = regexp.MustCompile(`(\d{1,3}(?:\.\d{3})+|\d+)(?:,(\d{1,2}))?\s*reais\b`)
	upToMarker     = regexp.MustCompile(`\b(?:ate|no maximo|maximo de)\b`)
	fromMarker     = regexp.MustCompile(`\b(?:a partir de|acima de|mais de|no minimo)\b`)
)

// extractBudget returns the budget bounds mentioned in text. A single amount
// is an upper bound unless phrased as a floor ("a partir de"); two or more
// amounts give a range.
func extractBudget(text string) (floor, ceiling *float64) {
	amounts := findAmounts(text)
	if len(amounts) == 0 {
		return nil, nil
	}
	if len(amounts) == 1 {
		v := amounts[0]
		if fromMarker.MatchString(text) && !upToMarker.MatchString(text) {
			return &v, nil
		}
		return nil, &v
	}
	sort.Float64s(amounts)
	lo, hi := amounts[0], amounts[len(amounts)-1]
	return &lo, &hi
}

// ExtractAmounts returns every currency amount written in message, in reais.
func ExtractAmounts(message string) []float64 {
	return findAmounts(Normalize(message))
}

type span struct{ start, end int }

func findAmounts(text string) []float64 {
	var (
		out  []float64
		seen []span
	)
	overlaps := func(s, e int) bool {
		for _, sp := range seen {
			if s < sp.end && e > sp.start {
				return true
			}
		}
		return false
	}

	for _, m := range milAmount.FindAllStringSubmatchIndex(text, -1) {
		n, err := strconv.ParseFloat(strings.Replace(text[m[2]:m[3]], ",", ".", 1), 64)
		if err != nil {
			continue
		}
		out = append(out, n*1000)
		seen = append(seen, span{m[0], m[1]})
	}
	for _, re := range []*regexp.Regexp{currencyAmount, reaisAmount} {
		for _, m := range re.FindAllStringSubmatchIndex(text, -1) {
			if overlaps(m[0], m[1]) {
				continue
			}
			n, ok := parseBRL(text[m[2]:m[3]], submatch(text, m, 2))
			if !ok {
				continue
			}
			out = append(out, n)
			seen = append(seen, span{m[0], m[1]})
		}
	}
	return out
}

func submatch(text string, m []int, group int) string {
	if len(m) <= 2*group+1 || m[2*group] < 0 {
		return ""
	}
	return text[m[2*group]:m[2*group+1]]
}

func parseBRL(whole, cents string) (float64, bool) {
	s := strings.ReplaceAll(whole, ".", "")
	if cents != "" {
		s += "." + cents
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
