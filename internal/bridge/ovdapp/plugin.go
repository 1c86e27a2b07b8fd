package ovdapp

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ehsaniara/ovdbridge/internal/bridge/channel"
	"github.com/ehsaniara/ovdbridge/internal/bridge/pubsub"
	"github.com/ehsaniara/ovdbridge/pkg/logger"
)

// Plugin is the event channel of one session. Incoming bytes become hex
// events on the bus; outgoing events arrive through the Hub.
type Plugin struct {
	sender channel.Sender
	bus    pubsub.PubSub[Event]
	hub    *Hub
	logger *logger.Logger

	id uint64
}

func NewFactory(bus pubsub.PubSub[Event], hub *Hub, log *logger.Logger) channel.PluginFactory {
	return func(sender channel.Sender) channel.Plugin {
		return NewPlugin(sender, bus, hub, log)
	}
}

func NewPlugin(sender channel.Sender, bus pubsub.PubSub[Event], hub *Hub, log *logger.Logger) *Plugin {
	if log == nil {
		log = logger.New()
	}
	return &Plugin{
		sender: sender,
		bus:    bus,
		hub:    hub,
		logger: log.WithField("component", "ovdapp"),
	}
}

func (p *Plugin) OnConnect(ctx context.Context) error {
	if p.hub != nil {
		p.id = p.hub.add(p.sender)
	}
	p.logger.Info("event channel connected", "session", p.id)
	return nil
}

func (p *Plugin) OnReceive(ctx context.Context, data []byte) error {
	ev := Event{
		ID:        uuid.NewString(),
		Class:     EventClass,
		Type:      0,
		Data:      Encode(data),
		Session:   p.id,
		Timestamp: time.Now(),
	}
	if err := p.bus.Publish(ctx, Topic, ev); err != nil {
		p.logger.Warn("failed to publish event", "error", err, "bytes", len(data))
		return err
	}
	p.logger.Debug("event received", "id", ev.ID, "bytes", len(data))
	return nil
}

func (p *Plugin) OnTerminate(ctx context.Context) error {
	if p.hub != nil && p.id != 0 {
		p.hub.remove(p.id)
	}
	p.logger.Info("event channel terminated", "session", p.id)
	return nil
}
