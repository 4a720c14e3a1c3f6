package notify

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/alejandrodnm/polypilot/internal/application/engine"
	"github.com/alejandrodnm/polypilot/internal/domain"
)

func TestConsole_FollowPrintsTrades(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsoleWriter(&buf)
	hub := NewActivityHub()
	defer hub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		c.Follow(ctx, hub)
	}()

	buy := domain.NewLogEntry("w1", domain.ActionBuy)
	buy.Question = "Will it rain tomorrow?"
	buy.Price = 0.55
	buy.Size = 40
	buy.Reason = "auto-buy VALUE: edge 10.0%"
	hub.Publish(ctx, buy)

	skip := domain.NewLogEntry("w1", domain.ActionSkip)
	skip.Reason = "skip: cooldown active for market"
	hub.Publish(ctx, skip)

	sell := domain.NewLogEntry("w1", domain.ActionSell)
	sell.Question = "Will it rain tomorrow?"
	sell.Price = 0.62
	sell.RealizedPnL = 2.80
	sell.Reason = "take profit: +12.7% >= 10.0%"
	hub.Publish(ctx, sell)

	// let the consumer drain before stopping
	time.Sleep(50 * time.Millisecond)
	cancel()
	<-done

	out := buf.String()
	assert.Contains(t, out, "BUY")
	assert.Contains(t, out, "SELL")
	assert.Contains(t, out, "Will it rain tomorrow?")
	assert.Contains(t, out, "take profit")
	// skips stay out of the console
	assert.NotContains(t, out, "cooldown")
}

func TestConsole_PrintStatus(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsoleWriter(&buf)

	c.PrintStatus([]engine.WalletStatus{
		{WalletID: "main", Enabled: true, AutoBuyEnabled: true, OpenPositions: 3, TotalExposure: 75.5, DailyPnL: -4.2},
		{WalletID: "spare", BreakerTripped: true},
	})

	out := buf.String()
	assert.Contains(t, out, "main")
	assert.Contains(t, out, "spare")
	assert.Contains(t, out, "TRIPPED")
	assert.Contains(t, out, "$75.50")
}

func TestConsole_PrintStatusEmpty(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsoleWriter(&buf)
	c.PrintStatus(nil)
	assert.Contains(t, buf.String(), "no wallets registered")
}

func TestConsole_PrintRecentTruncatesLongQuestions(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsoleWriter(&buf)

	e := domain.NewLogEntry("w1", domain.ActionBuy)
	e.Question = "Will this extremely long market question get cut down to size?"
	c.PrintRecent([]domain.AutoTradeLogEntry{e})

	assert.Contains(t, buf.String(), "...")
	assert.NotContains(t, buf.String(), "cut down to size")
}
