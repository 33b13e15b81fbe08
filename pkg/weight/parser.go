package weight

import (
	"regexp"
	"strings"
)

// Tier is the rule family that produced a weight. Lower values take precedence.
type Tier int

const (
	TierNone Tier = iota
	TierLabeled
	TierUnit
	TierContext
	TierFallback
)

func (t Tier) String() string {
	switch t {
	case TierLabeled:
		return "labeled"
	case TierUnit:
		return "unit"
	case TierContext:
		return "context"
	case TierFallback:
		return "fallback"
	default:
		return "none"
	}
}

// labelWords is ordered longest first so compound labels win over their prefixes.
var labelWords = []string{
	"gross weight", "total weight", "net weight", "tare weight",
	"brutto", "netto", "gross", "tare", "tara",
	"брутто", "нетто", "тара", "вес", "итого",
}

var genericLabels = []string{"weight", "mass", "масса", "wt"}

const (
	labelNumber = `(\d{1,2}[ .,]\d{3}|\d{3,5})`
	labelDelim  = `[\s:=\-]*`
)

var (
	labeledRE = regexp.MustCompile(`(?i)(?:^|[^\p{L}])(` + alternation(labelWords) + `)` + labelDelim + labelNumber + `(\d?)`)
	genericRE = regexp.MustCompile(`(?i)(?:^|[^\p{L}])(?:` + alternation(genericLabels) + `)` + labelDelim + `(\d{1,3}(?:[ .,]\d{3})+|\d{3,6})`)
	unitRE    = regexp.MustCompile(`(?i)(\d{1,3}(?:[ .,]\d{3})+|\d+)(?:[.,]\d{1,2})?\s*(?:kgs|kg|кг)`)
	digitRun  = regexp.MustCompile(`\d+`)
	joinedRun = regexp.MustCompile(`\d[\d., ]*\d`)
)

func alternation(words []string) string {
	q := make([]string, len(words))
	for i, w := range words {
		q[i] = strings.ReplaceAll(regexp.QuoteMeta(w), " ", `\s+`)
	}
	return strings.Join(q, "|")
}

// Parsed is the outcome of one parse. Candidates holds the in-range values
// found at the deciding tier; Rejected holds every out-of-range value seen.
type Parsed struct {
	Value      float64
	Found      bool
	Tier       Tier
	Pattern    string
	Candidates []float64
	Rejected   []float64
}

// Parser extracts a weight from recognized text within [Min, Max] kilograms.
type Parser struct {
	Min, Max float64
}

// NewParser returns a parser for the inclusive range [min, max].
func NewParser(min, max int) Parser {
	return Parser{Min: float64(min), Max: float64(max)}
}

func (p Parser) inRange(v float64) bool { return v >= p.Min && v <= p.Max }

// Parse runs the tiers in order. The labeled tier takes its first in-range
// match; the other tiers take the largest in-range value they collect.
func (p Parser) Parse(text string) Parsed {
	res := Parsed{Candidates: []float64{}}
	text = fixConfusables(normalizeOCRText(text))
	if text == "" {
		return res
	}

	// labeled
	for _, m := range labeledRE.FindAllStringSubmatch(text, -1) {
		if m[3] != "" {
			continue // the number runs on past five digits
		}
		v, ok := parseNumber(m[2])
		if !ok {
			continue
		}
		if !p.inRange(v) {
			res.Rejected = append(res.Rejected, v)
			continue
		}
		res.Value, res.Found, res.Tier = v, true, TierLabeled
		res.Pattern = "label:" + strings.ToLower(strings.Join(strings.Fields(m[1]), " "))
		res.Candidates = []float64{v}
		return res
	}

	// unit-marked or generic label
	var vals []float64
	for _, m := range unitRE.FindAllStringSubmatch(text, -1) {
		vals = append(vals, p.collect(&res, m[1])...)
	}
	for _, m := range genericRE.FindAllStringSubmatch(text, -1) {
		vals = append(vals, p.collect(&res, m[1])...)
	}
	if p.pickMax(&res, vals, TierUnit, "unit") {
		return res
	}

	// bare 4-5 digit runs
	vals = vals[:0]
	for _, run := range digitRun.FindAllString(text, -1) {
		if n := len(run); n >= 4 && n <= 5 {
			vals = append(vals, p.collect(&res, run)...)
		}
	}
	if p.pickMax(&res, vals, TierContext, "digits4-5") {
		return res
	}

	// any long run, including runs split by separators
	vals = vals[:0]
	for _, run := range digitRun.FindAllString(text, -1) {
		if len(run) >= 4 {
			vals = append(vals, p.collect(&res, run)...)
		}
	}
	for _, run := range joinedRun.FindAllString(text, -1) {
		if len(onlyDigits(run)) >= 4 {
			vals = append(vals, p.collect(&res, strings.NewReplacer(".", "", ",", "", " ", "").Replace(run))...)
		}
	}
	p.pickMax(&res, vals, TierFallback, "digits")
	return res
}

// collect parses raw and returns it when in range, recording it as rejected otherwise.
func (p Parser) collect(res *Parsed, raw string) []float64 {
	v, ok := parseNumber(raw)
	if !ok {
		return nil
	}
	if !p.inRange(v) {
		if !containsFloat(res.Rejected, v) {
			res.Rejected = append(res.Rejected, v)
		}
		return nil
	}
	return []float64{v}
}

func (p Parser) pickMax(res *Parsed, vals []float64, tier Tier, pattern string) bool {
	if len(vals) == 0 {
		return false
	}
	best := vals[0]
	for _, v := range vals[1:] {
		if v > best {
			best = v
		}
	}
	res.Value, res.Found, res.Tier, res.Pattern = best, true, tier, pattern
	res.Candidates = append([]float64(nil), vals...)
	return true
}

func containsFloat(xs []float64, v float64) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}
