package greenapi

import (
	"strings"

	"weighbot/pkg/dialog"
)

const TypeIncomingMessage = "incomingMessageReceived"

// Webhook is the subset of a Green API notification the bot reads.
type Webhook struct {
	TypeWebhook string      `json:"typeWebhook"`
	IDMessage   string      `json:"idMessage"`
	Timestamp   int64       `json:"timestamp"`
	SenderData  SenderData  `json:"senderData"`
	MessageData MessageData `json:"messageData"`
}

type SenderData struct {
	ChatID     string `json:"chatId"`
	Sender     string `json:"sender"`
	SenderName string `json:"senderName"`
}

type MessageData struct {
	TypeMessage             string               `json:"typeMessage"`
	TextMessageData         *TextMessageData     `json:"textMessageData,omitempty"`
	ExtendedTextMessageData *ExtendedTextMessage `json:"extendedTextMessageData,omitempty"`
	ImageMessageData        *FileMessageData     `json:"imageMessageData,omitempty"`
	PhotoMessageData        *FileMessageData     `json:"photoMessageData,omitempty"`
	DocumentMessageData     *FileMessageData     `json:"documentMessageData,omitempty"`
	FileMessageData         *FileMessageData     `json:"fileMessageData,omitempty"`
}

type TextMessageData struct {
	TextMessage string `json:"textMessage"`
}

type ExtendedTextMessage struct {
	Text string `json:"text"`
}

type FileMessageData struct {
	DownloadURL string `json:"downloadUrl"`
	URL         string `json:"url"`
	Caption     string `json:"caption"`
	FileName    string `json:"fileName"`
	MimeType    string `json:"mimeType"`
}

func (f *FileMessageData) link() string {
	if f.DownloadURL != "" {
		return f.DownloadURL
	}
	return f.URL
}

// Message maps an incoming message notification to a dialog message. ok is
// false for other notification types and for message kinds the bot ignores.
// The chat id is the sender's phone number without the @c.us suffix.
func (w *Webhook) Message() (msg dialog.Message, ok bool) {
	if w.TypeWebhook != TypeIncomingMessage {
		return msg, false
	}
	chat := w.SenderData.ChatID
	if i := strings.IndexByte(chat, '@'); i >= 0 {
		chat = chat[:i]
	}
	if chat == "" {
		return msg, false
	}
	msg.ChatID = chat

	md := w.MessageData
	switch {
	case md.TextMessageData != nil:
		msg.Text = md.TextMessageData.TextMessage
	case md.ExtendedTextMessageData != nil:
		msg.Text = md.ExtendedTextMessageData.Text
	default:
		for _, f := range []*FileMessageData{md.ImageMessageData, md.PhotoMessageData, md.FileMessageData, md.DocumentMessageData} {
			if f != nil {
				msg.HasMedia = true
				msg.PhotoURL = f.link()
				break
			}
		}
		if !msg.HasMedia {
			return msg, false
		}
	}
	if !msg.HasMedia && strings.TrimSpace(msg.Text) == "" {
		return msg, false
	}
	return msg, true
}
