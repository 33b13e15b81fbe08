package greenapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestChatID(t *testing.T) {
	cases := map[string]string{
		"79001234567":       "79001234567@c.us",
		"79001234567@c.us":  "79001234567@c.us",
		"120363000000@g.us": "120363000000@g.us",
		" 79001234567 ":     "79001234567@c.us",
	}
	for in, want := range cases {
		if got := ChatID(in); got != want {
			t.Fatalf("ChatID(%q) = %q want %q", in, got, want)
		}
	}
}

type captured struct {
	path string
	body map[string]any
}

func newGateway(t *testing.T, status int) (*httptest.Server, *[]captured) {
	t.Helper()
	var calls []captured
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		calls = append(calls, captured{path: r.URL.Path, body: body})
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"idMessage":"BAE5F4886F6F2D05"}`))
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestSendText(t *testing.T) {
	srv, calls := newGateway(t, http.StatusOK)
	c := NewClient(Config{BaseURL: srv.URL, IDInstance: "1101", TokenInstance: "tok"})
	resp, err := c.SendText(context.Background(), "79001234567", "привет")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if resp.IDMessage != "BAE5F4886F6F2D05" {
		t.Fatalf("unexpected id %q", resp.IDMessage)
	}
	got := (*calls)[0]
	if got.path != "/waInstance1101/sendMessage/tok" {
		t.Fatalf("unexpected path %q", got.path)
	}
	if got.body["chatId"] != "79001234567@c.us" || got.body["message"] != "привет" {
		t.Fatalf("unexpected body %v", got.body)
	}
}

func TestSendFileByURLStatusError(t *testing.T) {
	srv, calls := newGateway(t, http.StatusForbidden)
	c := NewClient(Config{BaseURL: srv.URL, IDInstance: "1101", TokenInstance: "tok"})
	_, err := c.SendFileByURL(context.Background(), "120363000000@g.us", "https://m/1.jpg", "report.jpg", "cap")
	if !errors.Is(err, ErrStatus) {
		t.Fatalf("expected ErrStatus got %v", err)
	}
	got := (*calls)[0]
	if got.path != "/waInstance1101/sendFileByUrl/tok" || got.body["caption"] != "cap" || got.body["chatId"] != "120363000000@g.us" {
		t.Fatalf("unexpected call %+v", got)
	}
}

func TestGroupReporterFallsBackToText(t *testing.T) {
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		if strings.Contains(r.URL.Path, "sendFileByUrl") {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"idMessage":"x"}`))
	}))
	defer srv.Close()
	rep := GroupReporter{Client: NewClient(Config{BaseURL: srv.URL, IDInstance: "1", TokenInstance: "t"}), GroupID: "g@g.us"}
	if err := rep.Report(context.Background(), "report", "https://m/1.jpg"); err != nil {
		t.Fatalf("report: %v", err)
	}
	if len(paths) != 2 || !strings.Contains(paths[1], "sendMessage") {
		t.Fatalf("unexpected calls %v", paths)
	}
}

func decodeWebhook(t *testing.T, raw string) *Webhook {
	t.Helper()
	var w Webhook
	if err := json.Unmarshal([]byte(raw), &w); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return &w
}

func TestWebhookMessage(t *testing.T) {
	text := decodeWebhook(t, `{"typeWebhook":"incomingMessageReceived","idMessage":"A1",
		"senderData":{"chatId":"79001234567@c.us"},
		"messageData":{"typeMessage":"textMessage","textMessageData":{"textMessage":"1"}}}`)
	msg, ok := text.Message()
	if !ok || msg.ChatID != "79001234567" || msg.Text != "1" || msg.HasMedia {
		t.Fatalf("unexpected text message %+v %v", msg, ok)
	}

	ext := decodeWebhook(t, `{"typeWebhook":"incomingMessageReceived",
		"senderData":{"chatId":"79001234567@c.us"},
		"messageData":{"extendedTextMessageData":{"text":"да"}}}`)
	if msg, ok := ext.Message(); !ok || msg.Text != "да" {
		t.Fatalf("unexpected extended message %+v", msg)
	}

	img := decodeWebhook(t, `{"typeWebhook":"incomingMessageReceived",
		"senderData":{"chatId":"79001234567@c.us"},
		"messageData":{"typeMessage":"imageMessage","fileMessageData":{"downloadUrl":"https://do.green-api.com/1.jpg"}}}`)
	msg, ok = img.Message()
	if !ok || !msg.HasMedia || msg.PhotoURL != "https://do.green-api.com/1.jpg" {
		t.Fatalf("unexpected image message %+v", msg)
	}

	status := decodeWebhook(t, `{"typeWebhook":"outgoingMessageStatus"}`)
	if _, ok := status.Message(); ok {
		t.Fatalf("status notifications must be ignored")
	}
	sticker := decodeWebhook(t, `{"typeWebhook":"incomingMessageReceived",
		"senderData":{"chatId":"79001234567@c.us"},"messageData":{"typeMessage":"stickerMessage"}}`)
	if _, ok := sticker.Message(); ok {
		t.Fatalf("unknown message kinds must be ignored")
	}
}
