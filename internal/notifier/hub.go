package notifier

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/nem-pay/conciliare/pkg/logger"
	"github.com/nem-pay/conciliare/pkg/validation"
)

const (
	// sessionBuffer is the per-client event queue; sends beyond it are dropped.
	sessionBuffer = 64
	pingInterval  = 25 * time.Second
	writeTimeout  = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// WatchHandler is invoked when a client asks to watch an invoice over its
// channel.
type WatchHandler func(ctx context.Context, invoiceNumber, channelID string) error

type envelope struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

// clientRequest is one inbound message on a client channel.
type clientRequest struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

type watchParams struct {
	Number string `json:"number"`
}

type session struct {
	id      string
	conn    *websocket.Conn
	eventCh chan envelope
}

// Hub owns the duplex per-client publish channels and the invoice to channel
// registry. Delivery is best-effort: a slow client loses events rather than
// blocking the senders.
type Hub struct {
	logger *logger.Logger

	watch WatchHandler

	mu       sync.RWMutex
	sessions map[string]*session
	// registry maps invoice numbers to the channels watching them.
	// Append-only for the process lifetime.
	registry map[string][]string
}

// NewHub creates a new Hub instance.
func NewHub(logger *logger.Logger) *Hub {
	return &Hub{
		logger:   logger,
		sessions: make(map[string]*session),
		registry: make(map[string][]string),
	}
}

// SetWatchHandler installs the callback for watch_invoice requests.
func (h *Hub) SetWatchHandler(fn WatchHandler) {
	h.watch = fn
}

// HandleConnection upgrades an HTTP request to a client channel and serves it
// until the client disconnects.
func (h *Hub) HandleConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("Failed to upgrade connection ", "error ", err)
		return
	}

	s := &session{
		id:      uuid.NewString(),
		conn:    conn,
		eventCh: make(chan envelope, sessionBuffer),
	}
	h.mu.Lock()
	h.sessions[s.id] = s
	h.mu.Unlock()

	ctx, cancel := context.WithCancel(r.Context())
	go h.writePump(ctx, s)
	h.readLoop(ctx, s)
	cancel()

	h.mu.Lock()
	delete(h.sessions, s.id)
	h.mu.Unlock()
	conn.Close()
}

func (h *Hub) readLoop(ctx context.Context, s *session) {
	// The channel id is handed to the client first so it can correlate bot
	// webhook calls with its channel.
	s.eventCh <- envelope{Event: "channel_open", Data: map[string]string{"channel": s.id}}

	for {
		var req clientRequest
		if err := s.conn.ReadJSON(&req); err != nil {
			h.logger.Debug("Client channel closed ", "channel ", s.id, " error ", err)
			return
		}
		switch req.Method {
		case "watch_invoice":
			var params watchParams
			if err := json.Unmarshal(req.Params, &params); err != nil {
				s.push(envelope{Event: "error", Data: "invalid watch_invoice params"})
				continue
			}
			if h.watch == nil {
				s.push(envelope{Event: "error", Data: "watching is not available"})
				continue
			}
			if err := h.watch(ctx, params.Number, s.id); err != nil {
				h.logger.Warn("Failed to watch invoice ", "number ", params.Number, " error ", err)
				s.push(envelope{Event: "error", Data: err.Error()})
				continue
			}
			s.push(envelope{Event: "watch_ok", Data: map[string]string{"invoice": validation.NormalizeInvoiceNumber(params.Number)}})
		default:
			s.push(envelope{Event: "error", Data: "unknown method: " + req.Method})
		}
	}
}

func (h *Hub) writePump(ctx context.Context, s *session) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-s.eventCh:
			s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := s.conn.WriteJSON(e); err != nil {
				h.logger.Debug("Failed to write event ", "channel ", s.id, " error ", err)
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *session) push(e envelope) {
	select {
	case s.eventCh <- e:
	default:
		// Queue full; the event is lost, which is acceptable at this layer.
	}
}

// Send delivers an event to a single client channel. Unknown channels and
// full queues drop the event silently.
func (h *Hub) Send(channelID, event string, payload interface{}) {
	h.mu.RLock()
	s, ok := h.sessions[channelID]
	h.mu.RUnlock()
	if !ok {
		h.logger.Debug("Dropping event for unknown channel ", "channel ", channelID, " event ", event)
		return
	}
	s.push(envelope{Event: event, Data: payload})
}

// RegisterInvoiceChannel records that a channel watches an invoice.
func (h *Hub) RegisterInvoiceChannel(invoiceNumber, channelID string) {
	number := validation.NormalizeInvoiceNumber(invoiceNumber)
	h.mu.Lock()
	h.registry[number] = append(h.registry[number], channelID)
	h.mu.Unlock()
}

// Broadcast delivers an event to every channel registered for an invoice.
func (h *Hub) Broadcast(invoiceNumber, event string, payload interface{}) {
	number := validation.NormalizeInvoiceNumber(invoiceNumber)
	h.mu.RLock()
	channels := make([]string, len(h.registry[number]))
	copy(channels, h.registry[number])
	h.mu.RUnlock()
	for _, channelID := range channels {
		h.Send(channelID, event, payload)
	}
}
