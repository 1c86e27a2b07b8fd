package eventgw_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/ehsaniara/ovdbridge/internal/bridge/eventgw"
	"github.com/ehsaniara/ovdbridge/internal/bridge/ovdapp"
	"github.com/ehsaniara/ovdbridge/internal/bridge/pubsub"
	"github.com/ehsaniara/ovdbridge/pkg/logger"
)

type recordingSender struct {
	mu   sync.Mutex
	sent []string
}

func (s *recordingSender) SendEvent(ctx context.Context, hexData string) (int, error) {
	if _, err := ovdapp.Decode(hexData); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, hexData)
	return 1, nil
}

func (s *recordingSender) Sent() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.sent...)
}

func startGateway(t *testing.T) (*eventgw.Gateway, pubsub.PubSub[ovdapp.Event], *recordingSender) {
	t.Helper()
	bus := pubsub.NewPubSub[ovdapp.Event]()
	t.Cleanup(func() { _ = bus.Close() })

	sender := &recordingSender{}
	log := logger.NewWithConfig(logger.Config{Level: logger.ERROR, Output: io.Discard})
	gw := eventgw.New("127.0.0.1:0", bus, sender, log)
	require.NoError(t, gw.Start())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = gw.Stop(ctx)
	})
	return gw, bus, sender
}

func dial(t *testing.T, ctx context.Context, gw *eventgw.Gateway) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.Dial(ctx, "ws://"+gw.Addr()+"/events", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func TestHealthz(t *testing.T) {
	gw, _, _ := startGateway(t)

	resp, err := http.Get("http://" + gw.Addr() + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
}

func TestEventsAreStreamedAsJSON(t *testing.T) {
	gw, bus, _ := startGateway(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dial(t, ctx, gw)

	want := ovdapp.Event{ID: "e-1", Class: ovdapp.EventClass, Data: "00ff", Timestamp: time.Now().UTC().Truncate(time.Second)}
	require.NoError(t, bus.Publish(ctx, ovdapp.Topic, want))

	var got ovdapp.Event
	require.NoError(t, wsjson.Read(ctx, conn, &got))
	assert.Equal(t, want.ID, got.ID)
	assert.Equal(t, "ovdapp", got.Class)
	assert.Equal(t, 0, got.Type)
	assert.Equal(t, "00ff", got.Data)
	assert.True(t, want.Timestamp.Equal(got.Timestamp))
}

func TestOutgoingEventsAreForwarded(t *testing.T) {
	gw, _, sender := startGateway(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dial(t, ctx, gw)

	require.NoError(t, wsjson.Write(ctx, conn, eventgw.OutgoingEvent{Data: "6869"}))
	var result eventgw.SendResult
	require.NoError(t, wsjson.Read(ctx, conn, &result))
	assert.Equal(t, eventgw.SendResult{Sent: 1}, result)
	assert.Equal(t, []string{"6869"}, sender.Sent())

	require.NoError(t, wsjson.Write(ctx, conn, eventgw.OutgoingEvent{Data: "xyz"}))
	result = eventgw.SendResult{}
	require.NoError(t, wsjson.Read(ctx, conn, &result))
	assert.Zero(t, result.Sent)
	assert.Contains(t, result.Error, "malformed hex")
	assert.Len(t, sender.Sent(), 1)
}

func TestStopClosesStreams(t *testing.T) {
	gw, _, _ := startGateway(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dial(t, ctx, gw)
	require.NoError(t, gw.Stop(ctx))

	var ev ovdapp.Event
	err := wsjson.Read(ctx, conn, &ev)
	require.Error(t, err)
	assert.Equal(t, websocket.StatusNormalClosure, websocket.CloseStatus(err))
}
