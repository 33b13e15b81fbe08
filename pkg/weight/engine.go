package weight

import (
	"context"
	"fmt"
	"image"
	"strings"
)

// Segment is one unit of recognized text. Confidence is in [0,1]; zero means
// the backend did not report one.
type Segment struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// Scope tells an engine what kind of raster it is looking at so it can pick
// a suitable layout mode.
type Scope int

const (
	ScopePage Scope = iota
	ScopeRegion
	ScopeGlyph
)

func (s Scope) String() string {
	switch s {
	case ScopeRegion:
		return "region"
	case ScopeGlyph:
		return "glyph"
	default:
		return "page"
	}
}

// Engine is an OCR backend. Implementations must be safe for concurrent use or
// serialize access internally.
type Engine interface {
	Name() string
	Recognize(ctx context.Context, img image.Image, scope Scope) ([]Segment, error)
}

// Disambiguator picks the single most probable weight from noisy OCR text.
// ok is false when the backend answered that no weight is present.
type Disambiguator interface {
	Name() string
	Disambiguate(ctx context.Context, text string, min, max int) (value float64, ok bool, err error)
}

// safeRecognize calls e and converts a panic into ErrBackend.
func safeRecognize(ctx context.Context, e Engine, img image.Image, scope Scope) (segs []Segment, err error) {
	defer func() {
		if r := recover(); r != nil {
			segs = nil
			err = fmt.Errorf("%w: %s panicked: %v", ErrBackend, e.Name(), r)
		}
	}()
	segs, err = e.Recognize(ctx, img, scope)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrBackend, e.Name(), err)
	}
	return segs, nil
}

func safeDisambiguate(ctx context.Context, d Disambiguator, text string, min, max int) (v float64, ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			v, ok, err = 0, false, fmt.Errorf("%s panicked: %v", d.Name(), r)
		}
	}()
	return d.Disambiguate(ctx, text, min, max)
}

func joinSegments(segs []Segment) string {
	parts := make([]string, 0, len(segs))
	for _, s := range segs {
		if t := strings.TrimSpace(s.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return normalizeOCRText(strings.Join(parts, " "))
}
