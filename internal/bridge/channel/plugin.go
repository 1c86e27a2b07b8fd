package channel

//go:generate go run github.com/maxbrunsfeld/counterfeiter/v6 -generate

import "context"

// Plugin is one end of a named virtual channel inside a session. Callbacks
// for a session are invoked from a single goroutine in frame order.
type Plugin interface {
	OnConnect(ctx context.Context) error
	OnReceive(ctx context.Context, data []byte) error
	OnTerminate(ctx context.Context) error
}

// Sender delivers bytes to the remote end of a channel.
//
//counterfeiter:generate . Sender
type Sender interface {
	Send(ctx context.Context, data []byte) error
}

// PluginFactory builds the plugin for a newly connected channel.
type PluginFactory func(Sender) Plugin
