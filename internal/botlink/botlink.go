package botlink

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nem-pay/conciliare/internal/models"
	"github.com/nem-pay/conciliare/pkg/logger"
)

const reconnectDelay = 5 * time.Second

// BotLink is the websocket connection to the external payment-watching bot.
// Outbound it opens per-invoice watch channels; inbound it receives raw
// status-update payloads from an untrusted, possibly duplicating source and
// hands them to the forwarder.
type BotLink struct {
	logger *logger.Logger

	url       string
	forwarder models.ForwarderService

	mu   sync.Mutex
	conn *websocket.Conn
}

type botEnvelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// NewBotLink creates a new BotLink instance.
func NewBotLink(url string, forwarder models.ForwarderService, logger *logger.Logger) *BotLink {
	return &BotLink{url: url, forwarder: forwarder, logger: logger}
}

// Run dials the bot and consumes inbound payloads until the context is
// cancelled, reconnecting after failures.
func (b *BotLink) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, b.url, nil)
		if err != nil {
			b.logger.Error("Failed to connect to payment bot ", "url ", b.url, " error ", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(reconnectDelay):
			}
			continue
		}
		b.logger.Info("Connected to payment bot ", "url ", b.url)
		b.setConn(conn)
		b.readLoop(ctx, conn)
		b.setConn(nil)
		conn.Close()
		b.logger.Error("Payment bot connection closed, restarting")
		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectDelay):
		}
	}
}

func (b *BotLink) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var env botEnvelope
		if err := json.Unmarshal(raw, &env); err != nil {
			b.logger.Warn("Dropping malformed bot message ", "error ", err)
			continue
		}
		if env.Event != models.EventStatusUpdate {
			b.logger.Debug("Ignoring bot event ", "event ", env.Event)
			continue
		}
		if err := b.forwarder.HandleStatusUpdate(ctx, "", env.Data); err != nil {
			b.logger.Warn("Failed to handle bot status update ", "error ", err)
		}
	}
}

func (b *BotLink) setConn(conn *websocket.Conn) {
	b.mu.Lock()
	b.conn = conn
	b.mu.Unlock()
}

// OpenChannel asks the bot to watch the chain for a single invoice.
func (b *BotLink) OpenChannel(ctx context.Context, req *models.OpenChannelRequest) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn == nil {
		return fmt.Errorf("bot link is not connected")
	}
	msg := struct {
		Event string                     `json:"event"`
		Data  *models.OpenChannelRequest `json:"data"`
	}{Event: models.EventOpenChannel, Data: req}
	if err := b.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("failed to open bot channel: %w", err)
	}
	return nil
}
