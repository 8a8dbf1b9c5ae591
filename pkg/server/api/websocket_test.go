package api

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StrathCole/oracle-resolver/pkg/server/aggregator"
)

func dialEvents(t *testing.T, ts *testServer) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readJSON(t *testing.T, conn *websocket.Conn, v interface{}) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(v))
}

func TestWebSocket_FilteredEvents(t *testing.T) {
	ts := newTestServer(t, Config{})
	conn := dialEvents(t, ts)

	require.NoError(t, conn.WriteJSON(WebSocketMessage{Type: "subscribe", Assets: []string{"weth"}}))
	var ack map[string]string
	readJSON(t, conn, &ack)
	require.Equal(t, "subscribed", ack["type"])

	require.NoError(t, ts.agg.UpdateRiskConfig("manager", "USDC", aggregator.RiskConfig{MaxDeviationBps: 10}))
	require.NoError(t, ts.agg.UpdateRiskConfig("manager", "WETH", aggregator.RiskConfig{MaxDeviationBps: 10}))

	var msg EventMessage
	readJSON(t, conn, &msg)
	assert.Equal(t, "event", msg.Type)
	assert.Equal(t, string(aggregator.EventRiskUpdated), msg.Event)
	assert.Equal(t, "WETH", msg.Asset)
	assert.Equal(t, "manager", msg.Actor)
	assert.NotEmpty(t, msg.ID)
}

func TestWebSocket_PriceEvents(t *testing.T) {
	ts := newTestServer(t, Config{})
	conn := dialEvents(t, ts)

	require.NoError(t, conn.WriteJSON(WebSocketMessage{Type: "ping"}))
	var pong map[string]string
	readJSON(t, conn, &pong)
	require.Equal(t, "pong", pong["type"])

	_, err := ts.agg.RecordLastGood(context.Background(), "manager", "WETH")
	require.NoError(t, err)

	var msg EventMessage
	readJSON(t, conn, &msg)
	assert.Equal(t, string(aggregator.EventLastGoodRecorded), msg.Event)
	assert.Equal(t, "chainlink", msg.Provider)
	assert.Equal(t, "2500", msg.Price)
	assert.Equal(t, 1, ts.ws.ClientCount())
}
