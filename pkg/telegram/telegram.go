// Package telegram connects the driver dialog to a Telegram bot through long polling.
package telegram

import (
	"context"
	"errors"
	"net"
	"regexp"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"

	"weighbot/pkg/dialog"
)

// API is the part of *tgbotapi.BotAPI the poller uses.
type API interface {
	GetUpdates(config tgbotapi.UpdateConfig) ([]tgbotapi.Update, error)
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetFileDirectURL(fileID string) (string, error)
}

// Handler answers one dialog message. *dialog.Bot implements it.
type Handler interface {
	Handle(ctx context.Context, msg dialog.Message) string
}

// Connect authorizes token against the Bot API.
func Connect(token string) (*tgbotapi.BotAPI, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	log.Info().Str("bot", bot.Self.UserName).Msg("telegram: authorized")
	return bot, nil
}

type Poller struct {
	api     API
	handler Handler
	// BaseDelay and MaxDelay bound the wait after a failed GetUpdates.
	BaseDelay time.Duration
	MaxDelay  time.Duration
	Idle      time.Duration
}

func NewPoller(api API, h Handler) *Poller {
	return &Poller{api: api, handler: h, BaseDelay: time.Second, MaxDelay: 15 * time.Second, Idle: 200 * time.Millisecond}
}

// Run polls until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	offset := 0
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("telegram: polling stopped")
			return
		default:
		}

		u := tgbotapi.NewUpdate(offset)
		u.Timeout = 30

		updates, err := p.api.GetUpdates(u)
		if err != nil {
			d := retryDelayFromError(err)
			if d < p.BaseDelay {
				d = p.BaseDelay
			}
			if d > p.MaxDelay {
				d = p.MaxDelay
			}
			log.Warn().Err(err).Dur("retry_in", d).Msg("telegram: polling error")
			sleep(ctx, d)
			continue
		}

		for _, upd := range updates {
			if upd.UpdateID >= offset {
				offset = upd.UpdateID + 1
			}
			p.handle(ctx, upd)
		}
		if len(updates) == 0 {
			sleep(ctx, p.Idle)
		}
	}
}

func (p *Poller) handle(ctx context.Context, upd tgbotapi.Update) {
	msg, ok := p.toDialog(upd)
	if !ok {
		return
	}
	reply := p.handler.Handle(ctx, msg)
	if reply == "" {
		return
	}
	if _, err := p.api.Send(tgbotapi.NewMessage(upd.Message.Chat.ID, reply)); err != nil {
		log.Error().Err(err).Str("chat_id", msg.ChatID).Msg("telegram: reply failed")
	}
}

// toDialog maps text and photo messages; everything else is ignored.
func (p *Poller) toDialog(upd tgbotapi.Update) (dialog.Message, bool) {
	m := upd.Message
	if m == nil || m.Chat == nil {
		return dialog.Message{}, false
	}
	msg := dialog.Message{ChatID: strconv.FormatInt(m.Chat.ID, 10)}

	fileID := ""
	switch {
	case len(m.Photo) > 0:
		fileID = m.Photo[len(m.Photo)-1].FileID // largest size last
	case m.Document != nil && strings.HasPrefix(m.Document.MimeType, "image/"):
		fileID = m.Document.FileID
	}
	if fileID != "" {
		msg.HasMedia = true
		url, err := p.api.GetFileDirectURL(fileID)
		if err != nil {
			log.Warn().Err(err).Str("chat_id", msg.ChatID).Msg("telegram: file url")
		}
		msg.PhotoURL = url
		return msg, true
	}

	msg.Text = m.Text
	if strings.TrimSpace(msg.Text) == "" {
		return msg, false
	}
	return msg, true
}

// GroupReporter posts weighing reports to a Telegram group.
type GroupReporter struct {
	API     API
	GroupID int64
}

func (g GroupReporter) Report(_ context.Context, text, photoURL string) error {
	if photoURL != "" {
		photo := tgbotapi.NewPhoto(g.GroupID, tgbotapi.FileURL(photoURL))
		photo.Caption = text
		_, err := g.API.Send(photo)
		if err == nil {
			return nil
		}
		log.Warn().Err(err).Msg("telegram: photo report failed, sending text")
	}
	m := tgbotapi.NewMessage(g.GroupID, text)
	_, err := g.API.Send(m)
	return err
}

var reRetryAfter = regexp.MustCompile(`(?i)retry after\s+(\d+)`)

func retryDelayFromError(err error) time.Duration {
	if err == nil {
		return 0
	}
	s := strings.ToLower(err.Error())
	if strings.Contains(s, "too many requests") {
		if m := reRetryAfter.FindStringSubmatch(s); len(m) == 2 {
			if n, _ := strconv.Atoi(m[1]); n > 0 {
				return time.Duration(n) * time.Second
			}
		}
		return 3 * time.Second
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return 2 * time.Second
	}
	return time.Second
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
