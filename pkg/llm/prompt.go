// Package llm holds the text-only disambiguators that pick a weight out of
// noisy OCR output. They never see pixels.
package llm

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const systemPrompt = "You extract a single integer weight in kg from noisy OCR text. Reply with the integer only or NONE."

func userPrompt(text string, min, max int) string {
	return fmt.Sprintf("OCR text from a truck scale display:\n%s\n\nReturn the single most probable weight integer between %d and %d, or NONE.", text, min, max)
}

var intRE = regexp.MustCompile(`\d+`)

// parseAnswer reads the model reply. NONE or no in-range integer yields ok=false;
// several integers resolve to the largest in range.
func parseAnswer(answer string, min, max int) (float64, bool) {
	a := strings.TrimSpace(answer)
	if a == "" || strings.EqualFold(a, "none") {
		return 0, false
	}
	if v, ok := maxInRange(a, min, max); ok {
		return v, true
	}
	// "23 450" style grouping
	return maxInRange(strings.NewReplacer(" ", "", ",", "").Replace(a), min, max)
}

func maxInRange(s string, min, max int) (float64, bool) {
	best := -1
	for _, d := range intRE.FindAllString(s, -1) {
		v, err := strconv.Atoi(d)
		if err != nil || v < min || v > max {
			continue
		}
		if v > best {
			best = v
		}
	}
	if best < 0 {
		return 0, false
	}
	return float64(best), true
}

// backoff waits before retry attempt+1. It returns false when ctx ends first.
func backoff(ctx context.Context, attempt int) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(time.Duration(attempt) * 300 * time.Millisecond):
		return true
	}
}
