package polymarket

// stream.go — ports.PriceStream from the CLOB market websocket channel.
//
// The feed maintains one connection subscribed to the outcome tokens of all
// open positions, re-resolving the watchlist periodically, and rebroadcasts
// ticks through a multi-subscriber hub.

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alejandrodnm/polypilot/internal/domain"
	"github.com/alejandrodnm/polypilot/internal/stream"
)

const (
	defaultWSBase     = "wss://ws-subscriptions-clob.polymarket.com/ws/market"
	watchlistInterval = 30 * time.Second
	reconnectWait     = 5 * time.Second
	pingInterval      = 10 * time.Second
	readTimeout       = 30 * time.Second
)

// WatchlistFunc returns the outcome token ids the feed should subscribe to.
type WatchlistFunc func(ctx context.Context) ([]string, error)

// PriceFeed implements ports.PriceStream over the CLOB websocket.
type PriceFeed struct {
	wsURL     string
	watchlist WatchlistFunc
	hub       *stream.Hub[domain.PriceUpdate]
}

// NewPriceFeed creates the feed (production websocket URL when empty).
func NewPriceFeed(wsURL string, watchlist WatchlistFunc) *PriceFeed {
	if wsURL == "" {
		wsURL = defaultWSBase
	}
	return &PriceFeed{
		wsURL:     wsURL,
		watchlist: watchlist,
		hub:       stream.NewHub[domain.PriceUpdate](256),
	}
}

// Subscribe attaches a new consumer to the tick broadcast.
func (f *PriceFeed) Subscribe() (<-chan domain.PriceUpdate, func()) {
	return f.hub.Subscribe()
}

// Run maintains the websocket connection until ctx is cancelled, reconnecting
// with a flat wait and refreshing the watchlist between sessions.
func (f *PriceFeed) Run(ctx context.Context) error {
	defer f.hub.Close()

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		assets, err := f.watchlist(ctx)
		if err != nil {
			slog.Warn("pricefeed: watchlist failed", "err", err)
		}
		if len(assets) == 0 {
			// Nothing to watch yet; poll again shortly.
			if !sleepCtx(ctx, reconnectWait) {
				return ctx.Err()
			}
			continue
		}

		if err := f.session(ctx, assets); err != nil && ctx.Err() == nil {
			slog.Warn("pricefeed: session ended", "err", err)
			if !sleepCtx(ctx, reconnectWait) {
				return ctx.Err()
			}
		}
	}
}

type wsSubscribeMsg struct {
	AssetIDs []string `json:"assets_ids"`
	Type     string   `json:"type"`
}

type wsMarketEvent struct {
	EventType string `json:"event_type"`
	AssetID   string `json:"asset_id"`
	Market    string `json:"market"` // condition id
	Price     string `json:"price"`
	Timestamp string `json:"timestamp"` // unix millis
}

// session runs one websocket connection until error, cancellation, or the
// watchlist refresh interval elapses (forcing a re-subscribe).
func (f *PriceFeed) session(ctx context.Context, assets []string) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.wsURL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := conn.WriteJSON(wsSubscribeMsg{AssetIDs: assets, Type: "market"}); err != nil {
		return err
	}
	slog.Info("pricefeed: subscribed", "assets", len(assets))

	sctx, cancel := context.WithTimeout(ctx, watchlistInterval)
	defer cancel()

	// Keepalive pings; closing the connection unblocks ReadMessage.
	go func() {
		t := time.NewTicker(pingInterval)
		defer t.Stop()
		for {
			select {
			case <-sctx.Done():
				conn.Close()
				return
			case <-t.C:
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					conn.Close()
					return
				}
			}
		}
	}()

	for {
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, data, err := conn.ReadMessage()
		if err != nil {
			if sctx.Err() != nil {
				return nil // planned re-subscribe or shutdown
			}
			return err
		}
		f.dispatch(data)
	}
}

// dispatch parses one websocket payload (single event or event array) and
// publishes the price ticks.
func (f *PriceFeed) dispatch(data []byte) {
	var events []wsMarketEvent
	if err := json.Unmarshal(data, &events); err != nil {
		var single wsMarketEvent
		if err := json.Unmarshal(data, &single); err != nil {
			slog.Debug("pricefeed: unparseable message", "err", err)
			return
		}
		events = []wsMarketEvent{single}
	}

	for _, ev := range events {
		if ev.EventType != "price_change" && ev.EventType != "last_trade_price" {
			continue
		}
		price, err := strconv.ParseFloat(ev.Price, 64)
		if err != nil || price <= 0 {
			continue
		}

		at := time.Now().UTC()
		if ms, err := strconv.ParseInt(ev.Timestamp, 10, 64); err == nil && ms > 0 {
			at = time.UnixMilli(ms).UTC()
		}

		f.hub.Publish(domain.PriceUpdate{
			ConditionID: ev.Market,
			TokenID:     ev.AssetID,
			Price:       price,
			At:          at,
		})
	}
}

// sleepCtx waits d, returning false if ctx ended first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
