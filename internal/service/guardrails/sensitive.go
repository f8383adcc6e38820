package guardrails

import "regexp"

// Sensitive data kinds reported as evidence.
const (
	KindCPF        = "cpf"
	KindCardNumber = "card_number"
	KindCVV        = "cvv"
	KindPassword   = "password"
)

var sensitivePatterns = []struct {
	kind string
	re   *regexp.Regexp
}{
	{KindCPF, regexp.MustCompile(`\b\d{3}\.\d{3}\.\d{3}-\d{2}\b`)},
	{KindCardNumber, regexp.MustCompile(`\b(?:\d[ -]?){15}\d\b`)},
	// Only labelled codes count; a bare three-digit number is usually a price
	// or a quantity.
	{KindCVV, regexp.MustCompile(`(?i)\b(?:cvv|cvc|c[oó]digo de seguran[cç]a)\b\D{0,12}\d{3,4}\b`)},
	{KindPassword, regexp.MustCompile(`(?i)\b(?:senhas?|passwords?)\b`)},
}

// DetectSensitive returns the kinds of sensitive data found in text, in a
// fixed order, or nil.
func DetectSensitive(text string) []string {
	var kinds []string
	for _, p := range sensitivePatterns {
		if p.re.MatchString(text) {
			kinds = append(kinds, p.kind)
		}
	}
	return kinds
}
