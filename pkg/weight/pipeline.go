package weight

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// User-facing statuses.
const (
	StatusNotFound = "❌ Файл фото не найден"
	StatusDecode   = "❌ Не удалось открыть фото"
	StatusNoWeight = "❌ Не удалось автоматически определить вес\n\n" +
		"💡 Пожалуйста:\n" +
		"1. Отправьте *новое фото* - более четкое табло весов\n" +
		"2. ИЛИ введите вес *вручную* (например: 22380)\n\n" +
		"⚠️ Совет: фото должно быть четким и ярким, табло видно полностью"
	statusCrashPrefix = "❌ Ошибка обработки фото: "
)

// Config bounds the pipeline. Zero fields fall back to DefaultConfig values.
type Config struct {
	MinWeight            int
	MaxWeight            int
	MinSegmentConfidence float64
	DisambiguatorTimeout time.Duration
	SkipOrientation      bool
	MaxGlyphs            int
}

func DefaultConfig() Config {
	return Config{
		MinWeight:            100,
		MaxWeight:            150000,
		MinSegmentConfidence: 0.35,
		DisambiguatorTimeout: 15 * time.Second,
		MaxGlyphs:            24,
	}
}

// Attempt records one (variant, engine) pass or the disambiguator call.
type Attempt struct {
	Method  string   `json:"method"`
	Weight  *float64 `json:"weight"`
	RawText string   `json:"raw_text"`
}

type Diagnostics struct {
	Method         string    `json:"method"`
	RecognizedText string    `json:"recognized_text"`
	Candidates     []float64 `json:"candidates"`
	Rejected       []float64 `json:"rejected,omitempty"`
	Attempts       []Attempt `json:"attempts"`
	Error          string    `json:"error,omitempty"`
	Angle          int       `json:"angle"`
	RequestID      string    `json:"request_id"`
}

// Result is the outcome of one extraction. Status is empty on success and a
// message meant for the user otherwise.
type Result struct {
	Weight      float64     `json:"weight"`
	Found       bool        `json:"found"`
	Status      string      `json:"status"`
	Diagnostics Diagnostics `json:"diagnostics"`
	err         error
}

// Err returns nil on success, otherwise an error wrapping one of the package
// sentinels.
func (r Result) Err() error {
	if r.Found {
		return nil
	}
	if r.err != nil {
		return r.err
	}
	return ErrNoCandidate
}

type Option func(*Pipeline)

// WithDisambiguator enables the language-model tier.
func WithDisambiguator(d Disambiguator) Option {
	return func(p *Pipeline) { p.disamb = d }
}

func WithLogger(l zerolog.Logger) Option {
	return func(p *Pipeline) { p.log = l }
}

// Pipeline is safe for concurrent use as long as its engines are.
type Pipeline struct {
	cfg     Config
	parser  Parser
	engines []Engine
	disamb  Disambiguator
	log     zerolog.Logger
}

// New builds a pipeline over engines, which are tried in order for every variant.
func New(cfg Config, engines []Engine, opts ...Option) *Pipeline {
	def := DefaultConfig()
	if cfg.MinWeight <= 0 {
		cfg.MinWeight = def.MinWeight
	}
	if cfg.MaxWeight <= 0 {
		cfg.MaxWeight = def.MaxWeight
	}
	if cfg.MinSegmentConfidence <= 0 {
		cfg.MinSegmentConfidence = def.MinSegmentConfidence
	}
	if cfg.DisambiguatorTimeout <= 0 {
		cfg.DisambiguatorTimeout = def.DisambiguatorTimeout
	}
	if cfg.MaxGlyphs <= 0 {
		cfg.MaxGlyphs = def.MaxGlyphs
	}
	p := &Pipeline{
		cfg:     cfg,
		parser:  NewParser(cfg.MinWeight, cfg.MaxWeight),
		engines: engines,
		log:     log.Logger,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Extract loads the photo at path and returns the best weight reading.
// It never panics and never returns an error value; failures are described
// by Result.Status and Result.Diagnostics.
func (p *Pipeline) Extract(ctx context.Context, path string) (res Result) {
	diag := p.newDiagnostics()
	l := p.log.With().Str("req_id", diag.RequestID).Str("path", path).Logger()
	defer p.recoverInto(&res, &diag, l)

	img, err := Load(path)
	if err != nil {
		diag.Error = err.Error()
		status := StatusDecode
		if errors.Is(err, ErrNotFound) {
			status = StatusNotFound
		}
		l.Warn().Err(err).Msg("weight: load failed")
		return Result{Status: status, Diagnostics: diag, err: err}
	}
	return p.run(ctx, img, &diag, l)
}

func (p *Pipeline) newDiagnostics() Diagnostics {
	return Diagnostics{
		Method:     "none",
		Candidates: []float64{},
		Attempts:   []Attempt{},
		RequestID:  uuid.NewString(),
	}
}

func (p *Pipeline) recoverInto(res *Result, diag *Diagnostics, l zerolog.Logger) {
	r := recover()
	if r == nil {
		return
	}
	err := fmt.Errorf("%w: %v", ErrBackend, r)
	diag.Error = fmt.Sprint(r)
	diag.Candidates = []float64{}
	l.Error().Err(err).Msg("weight: pipeline panicked")
	*res = Result{Status: statusCrashPrefix + diag.Error, Diagnostics: *diag, err: err}
}

// run fills diag in place so a recovered panic still reports the attempts made.
func (p *Pipeline) run(ctx context.Context, img image.Image, diag *Diagnostics, l zerolog.Logger) Result {
	start := time.Now()
	if !p.cfg.SkipOrientation && len(p.engines) > 0 {
		img, diag.Angle = Orient(ctx, img, p.engines[0])
		if diag.Angle != 0 {
			l.Debug().Int("angle", diag.Angle).Msg("weight: rotated")
		}
	}

	var texts []string
	for _, r := range recipes {
		v, ok := buildVariant(r, img, p.cfg.MaxGlyphs)
		if !ok {
			continue
		}
		for _, e := range p.engines {
			method := v.Tag + "/" + e.Name()
			text, confident, err := p.recognizeVariant(ctx, e, v)
			if err != nil {
				l.Warn().Err(err).Str("method", method).Msg("weight: backend failed")
				diag.Attempts = append(diag.Attempts, Attempt{Method: method})
				continue
			}
			if text != "" {
				texts = append(texts, text)
			}
			parsed := p.parser.Parse(text)
			// low-confidence segments are dropped only when that does not cost a tier
			if confident != "" && confident != text {
				conf := p.parser.Parse(confident)
				if conf.Found && (!parsed.Found || conf.Tier <= parsed.Tier) {
					p.record(diag, method, "+conf", confident, conf)
					return p.success(*diag, conf.Value, texts, l, start)
				}
			}
			if p.record(diag, method, "", text, parsed) {
				return p.success(*diag, parsed.Value, texts, l, start)
			}
		}
	}

	aggregated := aggregate(texts)
	diag.RecognizedText = aggregated
	if p.disamb != nil && hasDigit(aggregated) {
		if v, ok := p.disambiguate(ctx, aggregated, diag, l); ok {
			return p.success(*diag, v, texts, l, start)
		}
	}

	diag.Method = "none"
	diag.Candidates = []float64{}
	l.Info().
		Str("text", snippet(aggregated, 160)).
		Int("attempts", len(diag.Attempts)).
		Dur("took", time.Since(start)).
		Msg("weight: no candidate")
	return Result{Status: StatusNoWeight, Diagnostics: *diag, err: ErrNoCandidate}
}

// record appends an attempt and reports whether it produced a weight. The
// suffix marks the text source and goes after the tier.
func (p *Pipeline) record(diag *Diagnostics, method, suffix, text string, parsed Parsed) bool {
	for _, v := range parsed.Rejected {
		if !containsFloat(diag.Rejected, v) {
			diag.Rejected = append(diag.Rejected, v)
		}
	}
	a := Attempt{Method: method + suffix, RawText: text}
	if parsed.Found {
		w := parsed.Value
		a.Weight = &w
		a.Method = method + "/" + parsed.Tier.String() + suffix
		diag.Method = a.Method
		diag.Candidates = parsed.Candidates
	}
	diag.Attempts = append(diag.Attempts, a)
	return parsed.Found
}

func (p *Pipeline) success(diag Diagnostics, v float64, texts []string, l zerolog.Logger, start time.Time) Result {
	diag.RecognizedText = aggregate(texts)
	l.Info().
		Float64("weight", v).
		Str("method", diag.Method).
		Dur("took", time.Since(start)).
		Msg("weight: detected")
	return Result{Weight: v, Found: true, Diagnostics: diag}
}

func (p *Pipeline) disambiguate(ctx context.Context, text string, diag *Diagnostics, l zerolog.Logger) (float64, bool) {
	method := "llm/" + p.disamb.Name()
	cctx, cancel := context.WithTimeout(ctx, p.cfg.DisambiguatorTimeout)
	defer cancel()
	v, ok, err := safeDisambiguate(cctx, p.disamb, text, p.cfg.MinWeight, p.cfg.MaxWeight)
	if err != nil {
		l.Warn().Err(fmt.Errorf("%w: %v", ErrTransport, err)).Str("method", method).Msg("weight: disambiguator failed")
		diag.Attempts = append(diag.Attempts, Attempt{Method: method, RawText: text})
		return 0, false
	}
	a := Attempt{Method: method, RawText: text}
	if ok && !p.parser.inRange(v) {
		diag.Rejected = append(diag.Rejected, v)
		ok = false
	}
	if ok {
		w := v
		a.Weight = &w
		diag.Method = method
		diag.Candidates = []float64{v}
	}
	diag.Attempts = append(diag.Attempts, a)
	return v, ok
}

// recognizeVariant returns the full text and the text of confident segments.
// Glyph variants are read one crop at a time: crops on the same row are
// concatenated, rows are separated by a space.
func (p *Pipeline) recognizeVariant(ctx context.Context, e Engine, v Variant) (string, string, error) {
	if v.Scope != ScopeGlyph {
		segs, err := safeRecognize(ctx, e, v.Images[0], v.Scope)
		if err != nil {
			return "", "", err
		}
		return joinSegments(segs), p.confidentText(segs), nil
	}
	var b strings.Builder
	var lastErr error
	okCalls := 0
	for i, img := range v.Images {
		segs, err := safeRecognize(ctx, e, img, ScopeGlyph)
		if err != nil {
			lastErr = err
			continue
		}
		okCalls++
		if i > 0 && v.Rows[i] != v.Rows[i-1] {
			b.WriteByte(' ')
		}
		b.WriteString(strings.ReplaceAll(joinSegments(segs), " ", ""))
	}
	if okCalls == 0 && lastErr != nil {
		return "", "", lastErr
	}
	return normalizeOCRText(b.String()), "", nil
}

func (p *Pipeline) confidentText(segs []Segment) string {
	var parts []string
	for _, s := range segs {
		if s.Confidence >= p.cfg.MinSegmentConfidence {
			parts = append(parts, strings.TrimSpace(s.Text))
		}
	}
	return normalizeOCRText(strings.Join(parts, " "))
}

// buildVariant runs one recipe, treating a panic as a skipped variant.
func buildVariant(r recipe, img image.Image, maxGlyphs int) (v Variant, ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Warn().Str("variant", r.tag).Interface("panic", rec).Msg("weight: preprocessing failed")
			v, ok = Variant{}, false
		}
	}()
	v, ok = r.build(img, maxGlyphs)
	if ok && len(v.Images) == 0 {
		ok = false
	}
	return v, ok
}

// aggregate joins attempt texts, skipping duplicates and keeping first-seen order.
func aggregate(texts []string) string {
	seen := map[string]bool{}
	var out []string
	for _, t := range texts {
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return strings.Join(out, " | ")
}
