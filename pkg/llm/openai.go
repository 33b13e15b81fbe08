package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type OpenAIConfig struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int
	Timeout   time.Duration
}

// OpenAI calls an OpenAI-compatible chat/completions endpoint.
type OpenAI struct {
	cfg        OpenAIConfig
	httpClient *http.Client
}

func NewOpenAI(cfg OpenAIConfig) *OpenAI {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 30
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &OpenAI{cfg: cfg, httpClient: &http.Client{Timeout: cfg.Timeout}}
}

func (c *OpenAI) Name() string { return "openai" }

// Disambiguate implements weight.Disambiguator.
func (c *OpenAI) Disambiguate(ctx context.Context, text string, min, max int) (float64, bool, error) {
	rid := uuid.NewString()
	start := time.Now()
	body := map[string]any{
		"model":       c.cfg.Model,
		"temperature": 0,
		"max_tokens":  c.cfg.MaxTokens,
		"messages": []map[string]string{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": userPrompt(text, min, max)},
		},
	}
	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"

	var raw []byte
	var err error
	for attempt := 1; attempt <= 3; attempt++ {
		var retry bool
		raw, retry, err = c.post(ctx, endpoint, body)
		if err == nil || !retry || attempt == 3 || !backoff(ctx, attempt) {
			break
		}
	}
	if err != nil {
		log.Warn().Str("req_id", rid).Err(err).Dur("took", time.Since(start)).Msg("llm.openai.http_error")
		return 0, false, err
	}

	var cc struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &cc); err != nil {
		return 0, false, fmt.Errorf("decode openai response: %w", err)
	}
	if len(cc.Choices) == 0 {
		return 0, false, fmt.Errorf("no choices in openai response")
	}
	answer := strings.TrimSpace(cc.Choices[0].Message.Content)
	v, ok := parseAnswer(answer, min, max)
	log.Info().Str("req_id", rid).Str("answer", answer).Bool("ok", ok).Dur("took", time.Since(start)).Msg("llm.openai.ok")
	return v, ok, nil
}

// post returns the response body; retry reports whether the failure looks transient.
func (c *OpenAI) post(ctx context.Context, url string, body map[string]any) ([]byte, bool, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, false, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, true, fmt.Errorf("openai http error: %w", err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests,
			fmt.Errorf("openai status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	return data, false, nil
}
