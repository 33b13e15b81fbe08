package main

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"weighbot/pkg/greenapi"
)

// webhookHandler receives Green API notifications. Anything that is not a
// new incoming message is acknowledged and dropped.
func webhookHandler(c *gin.Context) {
	if tok := cfg.GreenAPI.WebhookToken; tok != "" {
		if c.GetHeader("Authorization") != "Bearer "+tok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid webhook token"})
			return
		}
	}
	var hook greenapi.Webhook
	if err := c.ShouldBindJSON(&hook); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": err.Error()})
		return
	}
	msg, ok := hook.Message()
	if !ok {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
		return
	}
	ctx := c.Request.Context()
	if hook.IDMessage != "" {
		dup, err := seen.Seen(ctx, hook.IDMessage)
		if err != nil {
			log.Warn().Err(err).Msg("webhook: dedup lookup failed")
		}
		if dup {
			log.Info().Str("id_message", hook.IDMessage).Msg("webhook: duplicate delivery ignored")
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
			return
		}
	}

	l := log.With().Str("chat_id", msg.ChatID).Str("id_message", hook.IDMessage).Logger()
	l.Info().Bool("photo", msg.HasMedia).Str("text", strings.TrimSpace(msg.Text)).Msg("webhook: message")
	reply := bot.Handle(ctx, msg)
	if reply != "" && whatsapp != nil {
		if _, err := whatsapp.SendText(ctx, msg.ChatID, reply); err != nil {
			l.Error().Err(err).Msg("webhook: reply failed")
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
