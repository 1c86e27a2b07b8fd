package ovdapp

import "time"

const (
	// ChannelName is the virtual channel carrying application events.
	ChannelName = "ovdapp"

	// EventClass tags every event produced by this channel.
	EventClass = "ovdapp"

	// Topic is the bus topic incoming events are published on.
	Topic = "ovdapp.incoming"
)

// Event is one payload received from the remote session, hex encoded.
type Event struct {
	ID        string    `json:"id"`
	Class     string    `json:"class"`
	Type      int       `json:"type"`
	Data      string    `json:"data"`
	Session   uint64    `json:"session,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
