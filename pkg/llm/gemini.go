package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/rs/zerolog/log"
	"google.golang.org/api/option"
)

// Gemini asks a Gemini text model. A client is created per call.
type Gemini struct {
	APIKey string
	Model  string
}

func NewGemini(apiKey, model string) *Gemini {
	if strings.TrimSpace(model) == "" {
		model = "gemini-1.5-flash"
	}
	return &Gemini{APIKey: strings.TrimSpace(apiKey), Model: strings.TrimSpace(model)}
}

func (g *Gemini) Name() string { return "gemini" }

func (g *Gemini) Disambiguate(ctx context.Context, text string, min, max int) (float64, bool, error) {
	if g.APIKey == "" {
		return 0, false, errors.New("GEMINI_API_KEY is empty")
	}
	cl, err := genai.NewClient(ctx, option.WithAPIKey(g.APIKey))
	if err != nil {
		return 0, false, err
	}
	defer cl.Close()

	m := cl.GenerativeModel(g.Model)
	if m == nil {
		return 0, false, fmt.Errorf("gemini: model is nil")
	}
	m.GenerationConfig = genai.GenerationConfig{
		Temperature:     ptrFloat32(0),
		MaxOutputTokens: ptrInt32(30),
	}
	m.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(systemPrompt)}}

	var lastErr error
	for attempt := 1; attempt <= 3; attempt++ {
		resp, err := m.GenerateContent(ctx, genai.Text(userPrompt(text, min, max)))
		if err != nil {
			lastErr = err
			if attempt == 3 || !backoff(ctx, attempt) {
				break
			}
			continue
		}
		answer := strings.TrimSpace(firstText(resp))
		v, ok := parseAnswer(answer, min, max)
		log.Info().Str("answer", answer).Bool("ok", ok).Msg("llm.gemini.ok")
		return v, ok, nil
	}
	return 0, false, fmt.Errorf("gemini: %w", lastErr)
}

func firstText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	for _, c := range resp.Candidates {
		if c == nil || c.Content == nil {
			continue
		}
		for _, p := range c.Content.Parts {
			if t, ok := p.(genai.Text); ok {
				return string(t)
			}
		}
	}
	return ""
}

func ptrFloat32(v float32) *float32 { return &v }
func ptrInt32(v int32) *int32       { return &v }
