package notifier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nem-pay/conciliare/pkg/logger"
)

type testEnvelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func dialHub(t *testing.T, hub *Hub) (*websocket.Conn, string) {
	t.Helper()
	ws := httptest.NewServer(http.HandlerFunc(hub.HandleConnection))
	t.Cleanup(ws.Close)

	url := "ws" + strings.TrimPrefix(ws.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	var hello testEnvelope
	require.NoError(t, conn.ReadJSON(&hello))
	require.Equal(t, "channel_open", hello.Event)

	var data map[string]string
	require.NoError(t, json.Unmarshal(hello.Data, &data))
	require.NotEmpty(t, data["channel"])
	return conn, data["channel"]
}

func TestHandshakeDeliversChannelID(t *testing.T) {
	hub := NewHub(logger.NewNop())
	_, channelID := dialHub(t, hub)
	assert.NotEmpty(t, channelID)
}

func TestWatchInvoiceInvokesHandler(t *testing.T) {
	hub := NewHub(logger.NewNop())

	var gotNumber, gotChannel string
	hub.SetWatchHandler(func(ctx context.Context, invoiceNumber, channelID string) error {
		gotNumber = invoiceNumber
		gotChannel = channelID
		hub.RegisterInvoiceChannel(invoiceNumber, channelID)
		return nil
	})

	conn, channelID := dialHub(t, hub)
	require.NoError(t, conn.WriteJSON(map[string]interface{}{
		"method": "watch_invoice",
		"params": map[string]string{"number": "INV7"},
	}))

	var reply testEnvelope
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, "watch_ok", reply.Event)
	assert.Equal(t, "INV7", gotNumber)
	assert.Equal(t, channelID, gotChannel)
}

func TestUnknownMethodReturnsError(t *testing.T) {
	hub := NewHub(logger.NewNop())
	conn, _ := dialHub(t, hub)

	require.NoError(t, conn.WriteJSON(map[string]interface{}{"method": "bogus"}))

	var reply testEnvelope
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, "error", reply.Event)
}

func TestSendReachesSingleChannel(t *testing.T) {
	hub := NewHub(logger.NewNop())
	conn, channelID := dialHub(t, hub)

	hub.Send(channelID, "payment_status_update", map[string]string{"invoice": "INV7"})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var reply testEnvelope
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, "payment_status_update", reply.Event)
}

func TestSendToUnknownChannelIsSilent(t *testing.T) {
	hub := NewHub(logger.NewNop())
	assert.NotPanics(t, func() {
		hub.Send("no-such-channel", "payment_status_update", nil)
	})
}

func TestBroadcastReachesRegisteredWatchers(t *testing.T) {
	hub := NewHub(logger.NewNop())
	connA, channelA := dialHub(t, hub)
	connB, channelB := dialHub(t, hub)
	connC, _ := dialHub(t, hub)

	hub.RegisterInvoiceChannel("inv7", channelA)
	hub.RegisterInvoiceChannel("INV7", channelB)

	hub.Broadcast("INV7", "payment_success", map[string]string{"invoice": "INV7"})

	for _, conn := range []*websocket.Conn{connA, connB} {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var reply testEnvelope
		require.NoError(t, conn.ReadJSON(&reply))
		assert.Equal(t, "payment_success", reply.Event)
	}

	connC.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	var reply testEnvelope
	assert.Error(t, connC.ReadJSON(&reply), "unregistered channel receives nothing")
}
