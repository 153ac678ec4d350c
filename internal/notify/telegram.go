// Package notify delivers human-facing messages over Telegram and runs
// the admin command bot. Delivery is best effort: the engine's
// bookkeeping must never fail because a notification could not be sent.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/wonny/autoinvest/pkg/config"
	"github.com/wonny/autoinvest/pkg/httputil"
	"github.com/wonny/autoinvest/pkg/logger"
)

const telegramAPI = "https://api.telegram.org"

// MessageLog tracks recently sent texts so notifications can be rate
// limited and deduplicated across restarts.
type MessageLog interface {
	RecentMessages(ctx context.Context, since time.Time) ([]string, error)
	RecordMessage(ctx context.Context, text string, at time.Time) error
}

// Telegram sends messages to the admin chat. With no token configured
// it degrades to logging only, which keeps development setups working.
type Telegram struct {
	http       *httputil.Client
	baseURL    string
	token      string
	chatID     int64
	maxPerHour int
	msgLog     MessageLog
	log        *logger.Logger
	now        func() time.Time
}

// NewTelegram creates the notifier.
func NewTelegram(cfg config.TelegramConfig, client *httputil.Client, msgLog MessageLog, log *logger.Logger) *Telegram {
	return &Telegram{
		http:       client,
		baseURL:    telegramAPI,
		token:      cfg.Token,
		chatID:     cfg.AdminChatID,
		maxPerHour: cfg.MaxMessagesPerHour,
		msgLog:     msgLog,
		log:        log,
		now:        time.Now,
	}
}

// Send delivers one message, subject to the hourly cap and duplicate
// suppression. All failure paths log and return; there is nothing the
// caller could do about them mid-transaction.
func (t *Telegram) Send(ctx context.Context, text string) {
	t.log.WithField("text", text).Info("Notification")

	if t.token == "" || t.chatID == 0 {
		return
	}

	recent, err := t.msgLog.RecentMessages(ctx, t.now().Add(-time.Hour))
	if err != nil {
		t.log.WithError(err).Error("Failed to read message log, skipping notification")
		return
	}
	for _, prev := range recent {
		if prev == text {
			t.log.Debug("Duplicate notification suppressed")
			return
		}
	}
	if len(recent) >= t.maxPerHour {
		t.log.WithField("max_per_hour", t.maxPerHour).Warn("Notification cap reached, dropping message")
		return
	}

	if err := t.sendMessage(ctx, t.chatID, text); err != nil {
		t.log.WithError(err).Error("Failed to send Telegram message")
		return
	}

	if err := t.msgLog.RecordMessage(ctx, text, t.now()); err != nil {
		t.log.WithError(err).Error("Failed to record sent message")
	}
}

// sendMessage calls the Bot API directly, without the rate limit. Bot
// command replies use it too; they answer an explicit human request.
func (t *Telegram) sendMessage(ctx context.Context, chatID int64, text string) error {
	body, err := json.Marshal(map[string]interface{}{
		"chat_id": chatID,
		"text":    text,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal sendMessage body: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram API returned status %d", resp.StatusCode)
	}
	return nil
}
