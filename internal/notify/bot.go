package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/wonny/autoinvest/pkg/logger"
)

// ControlStore is the slice of the store the bot needs to answer
// commands.
type ControlStore interface {
	Enabled(ctx context.Context) (bool, error)
	Enable(ctx context.Context) error
	Disable(ctx context.Context) error
	NextExecution(ctx context.Context) (*time.Time, error)
	ScheduledOrderCount(ctx context.Context) (int, error)
}

// Bot long-polls the Telegram getUpdates endpoint and answers admin
// commands. Messages from any other chat are ignored.
type Bot struct {
	telegram *Telegram
	store    ControlStore
	tz       *time.Location
	log      *logger.Logger

	offset int64
}

// NewBot creates the command bot on top of an existing notifier.
func NewBot(telegram *Telegram, store ControlStore, tz *time.Location, log *logger.Logger) *Bot {
	return &Bot{
		telegram: telegram,
		store:    store,
		tz:       tz,
		log:      log,
	}
}

type update struct {
	UpdateID int64 `json:"update_id"`
	Message  struct {
		Text string `json:"text"`
		Chat struct {
			ID int64 `json:"id"`
		} `json:"chat"`
	} `json:"message"`
}

type updatesResponse struct {
	OK     bool     `json:"ok"`
	Result []update `json:"result"`
}

// Run polls until the context is cancelled. Poll errors are logged and
// retried after a pause; the bot is a convenience, not a dependency of
// the engine.
func (b *Bot) Run(ctx context.Context) {
	if b.telegram.token == "" {
		b.log.Info("No Telegram token configured, command bot disabled")
		return
	}

	b.log.Info("Telegram command bot started")
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		updates, err := b.poll(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			b.log.WithError(err).Warn("Failed to poll Telegram updates")
			select {
			case <-ctx.Done():
				return
			case <-time.After(10 * time.Second):
			}
			continue
		}

		for _, u := range updates {
			b.offset = u.UpdateID + 1
			b.handle(ctx, u)
		}
	}
}

func (b *Bot) poll(ctx context.Context) ([]update, error) {
	url := fmt.Sprintf("%s/bot%s/getUpdates?timeout=30&offset=%d",
		b.telegram.baseURL, b.telegram.token, b.offset)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := b.telegram.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var parsed updatesResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode updates: %w", err)
	}
	if !parsed.OK {
		return nil, fmt.Errorf("telegram getUpdates returned ok=false")
	}
	return parsed.Result, nil
}

func (b *Bot) handle(ctx context.Context, u update) {
	if u.Message.Chat.ID != b.telegram.chatID {
		return
	}

	command := strings.TrimSpace(u.Message.Text)
	reply, err := b.execute(ctx, command)
	if err != nil {
		b.log.WithError(err).WithField("command", command).Error("Bot command failed")
		reply = "Something went wrong, check the logs."
	}
	if reply == "" {
		return
	}

	if err := b.telegram.sendMessage(ctx, u.Message.Chat.ID, reply); err != nil {
		b.log.WithError(err).Error("Failed to send bot reply")
	}
}

func (b *Bot) execute(ctx context.Context, command string) (string, error) {
	switch command {
	case "/start":
		return "Auto-invest control:\n/status - engine state\n/enable - start placing orders\n/disable - stop placing orders", nil

	case "/status":
		return b.statusReply(ctx)

	case "/enable":
		if err := b.store.Enable(ctx); err != nil {
			return "", err
		}
		return "Auto-invest enabled.", nil

	case "/disable":
		if err := b.store.Disable(ctx); err != nil {
			return "", err
		}
		return "Auto-invest disabled. The timetable will be cleared on the next cycle.", nil

	default:
		return "", nil
	}
}

func (b *Bot) statusReply(ctx context.Context) (string, error) {
	enabled, err := b.store.Enabled(ctx)
	if err != nil {
		return "", err
	}
	if !enabled {
		return "Auto-invest is disabled.", nil
	}

	count, err := b.store.ScheduledOrderCount(ctx)
	if err != nil {
		return "", err
	}
	next, err := b.store.NextExecution(ctx)
	if err != nil {
		return "", err
	}

	if next == nil {
		return "Auto-invest is enabled. No orders scheduled yet.", nil
	}
	return fmt.Sprintf("Auto-invest is enabled. %d orders scheduled, next at %s.",
		count, next.In(b.tz).Format("2006-01-02 15:04")), nil
}
