// Package tesseract adapts gosseract clients to the weight.Engine interface.
package tesseract

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"strings"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/otiai10/gosseract/v2"

	"weighbot/pkg/weight"
)

const digitWhitelist = "0123456789"

type Config struct {
	TessdataPrefix string
	Languages      []string
}

// Engine owns one tesseract handle. A tesseract handle is not safe for
// concurrent use, so every call holds mu.
type Engine struct {
	mu        sync.Mutex
	client    *gosseract.Client
	name      string
	whitelist string
	words     bool
}

// NewPrimary returns the multilingual engine. It reports word confidences.
func NewPrimary(cfg Config) (*Engine, error) {
	langs := cfg.Languages
	if len(langs) == 0 {
		langs = []string{"eng", "rus"}
	}
	return newEngine("tesseract", cfg.TessdataPrefix, langs, "", true)
}

// NewDigits returns the lightweight digits-only engine. It reports no confidences.
func NewDigits(cfg Config) (*Engine, error) {
	return newEngine("tesseract-digits", cfg.TessdataPrefix, []string{"eng"}, digitWhitelist, false)
}

func newEngine(name, prefix string, langs []string, whitelist string, words bool) (*Engine, error) {
	client := gosseract.NewClient()
	if prefix != "" {
		if err := client.SetTessdataPrefix(prefix); err != nil {
			client.Close()
			return nil, fmt.Errorf("%s: tessdata prefix: %w", name, err)
		}
	}
	if err := client.SetLanguage(langs...); err != nil {
		client.Close()
		return nil, fmt.Errorf("%s: set language: %w", name, err)
	}
	if whitelist != "" {
		if err := client.SetWhitelist(whitelist); err != nil {
			client.Close()
			return nil, fmt.Errorf("%s: set whitelist: %w", name, err)
		}
	}
	// display readouts are not dictionary words
	_ = client.SetVariable("load_system_dawg", "false")
	_ = client.SetVariable("load_freq_dawg", "false")
	return &Engine{client: client, name: name, whitelist: whitelist, words: words}, nil
}

func (e *Engine) Name() string { return e.name }

func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.client == nil {
		return nil
	}
	err := e.client.Close()
	e.client = nil
	return err
}

func pageSegMode(scope weight.Scope) gosseract.PageSegMode {
	switch scope {
	case weight.ScopeRegion:
		return gosseract.PSM_SINGLE_LINE
	case weight.ScopeGlyph:
		return gosseract.PSM_SINGLE_CHAR
	default:
		return gosseract.PSM_SPARSE_TEXT
	}
}

// Recognize runs tesseract over img.
func (e *Engine) Recognize(ctx context.Context, img image.Image, scope weight.Scope) ([]weight.Segment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.client == nil {
		return nil, fmt.Errorf("%s: closed", e.name)
	}
	if err := e.client.SetPageSegMode(pageSegMode(scope)); err != nil {
		return nil, fmt.Errorf("set psm: %w", err)
	}
	if err := e.client.SetImageFromBytes(buf.Bytes()); err != nil {
		return nil, fmt.Errorf("set image: %w", err)
	}

	if !e.words || scope == weight.ScopeGlyph {
		text, err := e.client.Text()
		if err != nil {
			return nil, fmt.Errorf("text: %w", err)
		}
		text = strings.Join(strings.Fields(text), " ")
		if text == "" {
			return nil, nil
		}
		return []weight.Segment{{Text: text}}, nil
	}

	boxes, err := e.client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return nil, fmt.Errorf("boxes: %w", err)
	}
	segs := make([]weight.Segment, 0, len(boxes))
	for _, b := range boxes {
		w := strings.TrimSpace(b.Word)
		if w == "" {
			continue
		}
		segs = append(segs, weight.Segment{Text: w, Confidence: b.Confidence / 100})
	}
	return segs, nil
}
