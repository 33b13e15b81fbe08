// Package greenapi talks to the Green API WhatsApp gateway: outgoing messages
// through its REST methods and incoming messages through its webhook payloads.
package greenapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// ErrStatus is returned when the gateway answers with a non-2xx status.
var ErrStatus = errors.New("green api: unexpected status")

type Config struct {
	BaseURL       string
	IDInstance    string
	TokenInstance string
	Timeout       time.Duration
}

type Client struct {
	cfg        Config
	httpClient *http.Client
}

func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.green-api.com"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{cfg: cfg, httpClient: &http.Client{Timeout: cfg.Timeout}}
}

// ChatID turns a bare phone number into a personal chat id. Ids that already
// carry a personal (@c.us) or group (@g.us) suffix are returned unchanged.
func ChatID(id string) string {
	id = strings.TrimSpace(id)
	if strings.HasSuffix(id, "@c.us") || strings.HasSuffix(id, "@g.us") {
		return id
	}
	return id + "@c.us"
}

// SendResponse is the gateway's answer to a send method.
type SendResponse struct {
	IDMessage string `json:"idMessage"`
}

func (c *Client) SendText(ctx context.Context, chatID, text string) (*SendResponse, error) {
	return c.call(ctx, "sendMessage", map[string]any{
		"chatId":  ChatID(chatID),
		"message": text,
	})
}

// SendFileByURL sends a file the gateway downloads from url, with an optional caption.
func (c *Client) SendFileByURL(ctx context.Context, chatID, url, fileName, caption string) (*SendResponse, error) {
	body := map[string]any{
		"chatId":   ChatID(chatID),
		"urlFile":  url,
		"fileName": fileName,
	}
	if caption != "" {
		body["caption"] = caption
	}
	return c.call(ctx, "sendFileByUrl", body)
}

func (c *Client) endpoint(method string) string {
	return fmt.Sprintf("%s/waInstance%s/%s/%s", strings.TrimRight(c.cfg.BaseURL, "/"), c.cfg.IDInstance, method, c.cfg.TokenInstance)
}

func (c *Client) call(ctx context.Context, method string, body map[string]any) (*SendResponse, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(method), bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("green api %s: %w", method, err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: %s %d: %s", ErrStatus, method, resp.StatusCode, strings.TrimSpace(string(data)))
	}
	var out SendResponse
	if len(data) > 0 {
		if err := json.Unmarshal(data, &out); err != nil {
			return nil, fmt.Errorf("green api %s: decode: %w", method, err)
		}
	}
	log.Debug().Str("method", method).Str("chat_id", fmt.Sprint(body["chatId"])).
		Str("id_message", out.IDMessage).Dur("took", time.Since(start)).Msg("greenapi: sent")
	return &out, nil
}

// GroupReporter posts weighing reports to one WhatsApp group.
type GroupReporter struct {
	Client  *Client
	GroupID string
}

// Report sends the photo with text as caption when photoURL is set and falls
// back to a plain text message when that fails.
func (g GroupReporter) Report(ctx context.Context, text, photoURL string) error {
	if photoURL != "" {
		_, err := g.Client.SendFileByURL(ctx, g.GroupID, photoURL, "report.jpg", text)
		if err == nil {
			return nil
		}
		log.Warn().Err(err).Msg("greenapi: photo report failed, sending text")
	}
	_, err := g.Client.SendText(ctx, g.GroupID, text)
	return err
}
