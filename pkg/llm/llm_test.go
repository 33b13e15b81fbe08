package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestParseAnswer(t *testing.T) {
	cases := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"23450", 23450, true},
		{" NONE ", 0, false},
		{"none", 0, false},
		{"23 450", 23450, true},
		{"12000 or 23450", 23450, true},
		{"999999", 0, false},
		{"", 0, false},
	}
	for _, c := range cases {
		got, ok := parseAnswer(c.in, 1000, 150000)
		if ok != c.ok || got != c.want {
			t.Fatalf("parseAnswer(%q) = %v,%v want %v,%v", c.in, got, ok, c.want, c.ok)
		}
	}
}

func TestOpenAIDisambiguate(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer k" {
			t.Errorf("missing auth header")
		}
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"23450"}}]}`))
	}))
	defer srv.Close()

	c := NewOpenAI(OpenAIConfig{APIKey: "k", BaseURL: srv.URL + "/"})
	v, ok, err := c.Disambiguate(context.Background(), "BRUT 2345O", 100, 150000)
	if err != nil || !ok || v != 23450 {
		t.Fatalf("expected 23450 got %v %v %v", v, ok, err)
	}
	msgs, _ := gotBody["messages"].([]any)
	if len(msgs) != 2 {
		t.Fatalf("expected system and user messages got %v", gotBody["messages"])
	}
	user, _ := msgs[1].(map[string]any)
	if !strings.Contains(user["content"].(string), "BRUT 2345O") {
		t.Fatalf("OCR text missing from prompt")
	}
	if gotBody["max_tokens"].(float64) != 30 {
		t.Fatalf("expected max_tokens 30 got %v", gotBody["max_tokens"])
	}
}

func TestOpenAIRetriesServerErrors(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 2 {
			http.Error(w, "busy", http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"NONE"}}]}`))
	}))
	defer srv.Close()

	c := NewOpenAI(OpenAIConfig{APIKey: "k", BaseURL: srv.URL})
	_, ok, err := c.Disambiguate(context.Background(), "x", 100, 150000)
	if err != nil || ok {
		t.Fatalf("expected NONE after retry got ok=%v err=%v", ok, err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 calls got %d", calls)
	}
}

func TestOpenAIClientErrorIsNotRetried(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "bad key", http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewOpenAI(OpenAIConfig{APIKey: "k", BaseURL: srv.URL})
	if _, _, err := c.Disambiguate(context.Background(), "x", 100, 150000); err == nil {
		t.Fatalf("expected error")
	}
	if calls != 1 {
		t.Fatalf("expected a single call got %d", calls)
	}
}

func TestGeminiRequiresKey(t *testing.T) {
	if _, _, err := NewGemini("", "").Disambiguate(context.Background(), "x", 1, 2); err == nil {
		t.Fatalf("expected error without key")
	}
}

func TestBackoffStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	if backoff(ctx, 3) {
		t.Fatalf("backoff must report a cancelled context")
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Fatalf("backoff slept despite cancellation")
	}
	if !backoff(context.Background(), 1) {
		t.Fatalf("backoff with a live context must return true")
	}
}
