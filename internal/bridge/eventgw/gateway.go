package eventgw

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/julienschmidt/httprouter"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/ehsaniara/ovdbridge/internal/bridge/ovdapp"
	"github.com/ehsaniara/ovdbridge/internal/bridge/pubsub"
	"github.com/ehsaniara/ovdbridge/pkg/logger"
)

// EventSender delivers an outgoing hex event to the remote sessions.
type EventSender interface {
	SendEvent(ctx context.Context, hexData string) (int, error)
}

// OutgoingEvent is what the local application writes on the websocket.
type OutgoingEvent struct {
	Data string `json:"data"`
}

// SendResult answers every OutgoingEvent.
type SendResult struct {
	Sent  int    `json:"sent"`
	Error string `json:"error,omitempty"`
}

// Gateway exposes the event channel to the local client application over
// a websocket.
type Gateway struct {
	addr   string
	bus    pubsub.PubSub[ovdapp.Event]
	sender EventSender
	logger *logger.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
}

func New(addr string, bus pubsub.PubSub[ovdapp.Event], sender EventSender, log *logger.Logger) *Gateway {
	if log == nil {
		log = logger.New()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Gateway{
		addr:   addr,
		bus:    bus,
		sender: sender,
		logger: log.WithField("component", "event-gateway"),
		ctx:    ctx,
		cancel: cancel,
	}
}

func (g *Gateway) Handler() http.Handler {
	router := httprouter.New()
	router.GET("/healthz", g.healthz)
	router.GET("/events", g.events)
	return router
}

// Start listens on the configured address and serves in the background.
func (g *Gateway) Start() error {
	listener, err := net.Listen("tcp", g.addr)
	if err != nil {
		return fmt.Errorf("listening TCP: %w", err)
	}

	server := &http.Server{Handler: g.Handler(), ReadHeaderTimeout: 10 * time.Second}
	g.mu.Lock()
	g.listener = listener
	g.server = server
	g.mu.Unlock()

	g.logger.Info("event gateway listening", "address", listener.Addr().String())
	go func() {
		if err := server.Serve(listener); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			g.logger.Error("event gateway stopped", "error", err)
		}
	}()
	return nil
}

// Addr is the bound address once started, else the configured one.
func (g *Gateway) Addr() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.listener != nil {
		return g.listener.Addr().String()
	}
	return g.addr
}

// Stop ends every websocket stream and shuts the HTTP server down.
func (g *Gateway) Stop(ctx context.Context) error {
	g.cancel()

	g.mu.Lock()
	server := g.server
	g.mu.Unlock()
	if server == nil {
		return nil
	}
	return server.Shutdown(ctx)
}

func (g *Gateway) healthz(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	stats := g.bus.Stats(ovdapp.Topic)
	response := struct {
		Status      string `json:"status"`
		Subscribers int    `json:"subscribers"`
		Events      int64  `json:"events"`
		Dropped     int64  `json:"dropped"`
	}{
		Status:      "ok",
		Subscribers: stats.SubscriberCount,
		Events:      stats.MessageCount,
		Dropped:     stats.DroppedCount,
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		g.logger.Debug("error writing health response", "error", err)
	}
}

// events streams incoming events to the client and forwards the client's
// outgoing events until either side goes away.
func (g *Gateway) events(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	stop := context.AfterFunc(g.ctx, cancel)
	defer stop()

	// subscribe before the handshake completes so the client sees every
	// event published after Dial returns
	events, unsubscribe, err := g.bus.Subscribe(ctx, ovdapp.Topic)
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	defer unsubscribe()

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		CompressionMode: websocket.CompressionContextTakeover,
	})
	if err != nil {
		g.logger.Debug("websocket accept error", "error", err)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "")

	log := g.logger.WithField("remote", r.RemoteAddr)
	log.Info("event stream opened")

	go g.readOutgoing(ctx, cancel, conn, log)

	for {
		select {
		case <-ctx.Done():
			_ = conn.Close(websocket.StatusNormalClosure, "")
			log.Info("event stream closed")
			return
		case msg, ok := <-events:
			if !ok {
				_ = conn.Close(websocket.StatusGoingAway, "event bus closed")
				return
			}
			if err := wsjson.Write(ctx, conn, msg.Payload); err != nil {
				log.Debug("error writing event", "error", err)
				return
			}
		}
	}
}

func (g *Gateway) readOutgoing(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, log *logger.Logger) {
	defer cancel()

	for {
		var out OutgoingEvent
		err := wsjson.Read(ctx, conn, &out)
		if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
			return
		}
		if err != nil {
			if ctx.Err() == nil {
				log.Debug("error reading outgoing event", "error", err)
			}
			return
		}

		n, err := g.sender.SendEvent(ctx, out.Data)
		result := SendResult{Sent: n}
		if err != nil {
			log.Warn("outgoing event failed", "error", err, "sessions", n)
			result.Error = err.Error()
		}
		if err := wsjson.Write(ctx, conn, result); err != nil {
			log.Debug("error writing send result", "error", err)
			return
		}
	}
}
