package ovdapp

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/ehsaniara/ovdbridge/internal/bridge/channel"
	"github.com/ehsaniara/ovdbridge/pkg/errors"
	"github.com/ehsaniara/ovdbridge/pkg/logger"
)

// Hub tracks the connected event channels so that outgoing events from the
// local application reach every remote session.
type Hub struct {
	logger *logger.Logger

	mu      sync.Mutex
	seq     uint64
	senders map[uint64]channel.Sender
}

func NewHub(log *logger.Logger) *Hub {
	if log == nil {
		log = logger.New()
	}
	return &Hub{
		logger:  log.WithField("component", "ovdapp-hub"),
		senders: make(map[uint64]channel.Sender),
	}
}

func (h *Hub) add(s channel.Sender) uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seq++
	h.senders[h.seq] = s
	return h.seq
}

func (h *Hub) remove(id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.senders, id)
}

// Sessions is the number of connected event channels.
func (h *Hub) Sessions() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.senders)
}

// SendEvent decodes hexData and sends it to every connected session. It
// returns how many sessions took the payload. Malformed input is rejected
// before anything is sent.
func (h *Hub) SendEvent(ctx context.Context, hexData string) (int, error) {
	payload, err := Outgoing(hexData)
	if err != nil {
		return 0, err
	}

	h.mu.Lock()
	ids := make([]uint64, 0, len(h.senders))
	senders := make(map[uint64]channel.Sender, len(h.senders))
	for id, s := range h.senders {
		ids = append(ids, id)
		senders[id] = s
	}
	h.mu.Unlock()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var errs []error
	sent := 0
	for _, id := range ids {
		if err := senders[id].Send(ctx, payload); err != nil {
			h.logger.Warn("failed to send event", "session", id, "error", err)
			errs = append(errs, fmt.Errorf("session %d: %w", id, err))
			continue
		}
		sent++
	}
	h.logger.Debug("event sent", "bytes", len(payload), "sessions", sent)
	return sent, errors.JoinErrors(errs...)
}
