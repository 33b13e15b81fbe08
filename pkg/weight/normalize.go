package weight

import (
	"regexp"
	"strconv"
	"strings"
)

// confusables maps letters OCR commonly returns in place of digits.
var confusables = map[rune]rune{
	'O': '0', 'o': '0',
	'l': '1', 'I': '1',
	'S': '5', 's': '5',
}

var (
	wordRE     = regexp.MustCompile(`[\p{L}\p{N}]+`)
	fractionRE = regexp.MustCompile(`[.,]\d{1,2}$`)
)

var unitSuffixes = []string{"kgs", "kg", "кг"}

// fixConfusables rewrites look-alike letters inside tokens that already hold a
// digit and consist only of digits and confusable letters, optionally followed
// by a unit. Plain words such as "BRUTTO" or "Sola" are left alone.
func fixConfusables(text string) string {
	return wordRE.ReplaceAllStringFunc(text, func(w string) string {
		core, suffix := w, ""
		low := strings.ToLower(w)
		for _, u := range unitSuffixes {
			if strings.HasSuffix(low, u) && len(low) > len(u) {
				core, suffix = w[:len(w)-len(u)], w[len(w)-len(u):]
				break
			}
		}
		if !hasDigit(core) {
			return w
		}
		var b strings.Builder
		for _, r := range core {
			switch {
			case r >= '0' && r <= '9':
				b.WriteRune(r)
			case confusables[r] != 0:
				b.WriteRune(confusables[r])
			default:
				return w
			}
		}
		return b.String() + suffix
	})
}

// parseNumber turns a matched numeric substring into kilograms. Grouping
// separators are removed; a trailing one or two digit fraction after an
// integer part of three or more digits is dropped (23450,00 -> 23450).
func parseNumber(found string) (float64, bool) {
	s := strings.TrimSpace(found)
	if s == "" {
		return 0, false
	}
	if loc := fractionRE.FindStringIndex(s); loc != nil && len(onlyDigits(s[:loc[0]])) >= 3 {
		s = s[:loc[0]]
	}
	d := onlyDigits(s)
	if d == "" {
		return 0, false
	}
	v, err := strconv.ParseInt(d, 10, 64)
	if err != nil {
		return 0, false
	}
	return float64(v), true
}
