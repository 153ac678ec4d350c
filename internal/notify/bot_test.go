package notify

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/autoinvest/internal/contracts"
	"github.com/wonny/autoinvest/internal/store"
	"github.com/wonny/autoinvest/pkg/logger"
)

func adminUpdate(text string) update {
	var u update
	u.UpdateID = 1
	u.Message.Text = text
	u.Message.Chat.ID = 42
	return u
}

func newTestBot(t *testing.T, mem *store.Memory, sent *[]sentMessage) *Bot {
	t.Helper()
	tg := newTestTelegram(t, mem, sent)
	return NewBot(tg, mem, time.UTC, logger.NewNop())
}

func TestBot_IgnoresForeignChats(t *testing.T) {
	mem := store.NewMemory()
	var sent []sentMessage
	bot := newTestBot(t, mem, &sent)

	u := adminUpdate("/disable")
	u.Message.Chat.ID = 7

	bot.handle(context.Background(), u)

	assert.Empty(t, sent)
	enabled, err := mem.Enabled(context.Background())
	require.NoError(t, err)
	assert.True(t, enabled)
}

func TestBot_EnableDisable(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	var sent []sentMessage
	bot := newTestBot(t, mem, &sent)

	bot.handle(ctx, adminUpdate("/disable"))
	enabled, err := mem.Enabled(ctx)
	require.NoError(t, err)
	assert.False(t, enabled)

	bot.handle(ctx, adminUpdate("/enable"))
	enabled, err = mem.Enabled(ctx)
	require.NoError(t, err)
	assert.True(t, enabled)

	require.Len(t, sent, 2)
	assert.Contains(t, sent[0].Text, "disabled")
	assert.Contains(t, sent[1].Text, "enabled")
}

func TestBot_Status(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	require.NoError(t, mem.PutScheduledOrders(ctx, []contracts.ScheduledOrder{{
		Ticker:    "AAPL_US_EQ",
		Currency:  "USD",
		Amount:    decimal.RequireFromString("50"),
		ExecuteAt: time.Date(2024, 1, 8, 15, 30, 0, 0, time.UTC),
	}}))

	var sent []sentMessage
	bot := newTestBot(t, mem, &sent)

	bot.handle(ctx, adminUpdate("/status"))

	require.Len(t, sent, 1)
	assert.Contains(t, sent[0].Text, "1 orders scheduled")
	assert.Contains(t, sent[0].Text, "2024-01-08 15:30")
}

func TestBot_UnknownCommandIsSilent(t *testing.T) {
	mem := store.NewMemory()
	var sent []sentMessage
	bot := newTestBot(t, mem, &sent)

	bot.handle(context.Background(), adminUpdate("what's up"))

	assert.Empty(t, sent)
}
