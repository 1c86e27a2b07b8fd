package modes

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ehsaniara/ovdbridge/internal/bridge/channel"
	"github.com/ehsaniara/ovdbridge/internal/bridge/eventgw"
	"github.com/ehsaniara/ovdbridge/internal/bridge/health"
	"github.com/ehsaniara/ovdbridge/internal/bridge/ovdapp"
	"github.com/ehsaniara/ovdbridge/internal/bridge/pubsub"
	"github.com/ehsaniara/ovdbridge/internal/bridge/rdpdr"
	"github.com/ehsaniara/ovdbridge/pkg/config"
	"github.com/ehsaniara/ovdbridge/pkg/errors"
	"github.com/ehsaniara/ovdbridge/pkg/logger"
)

const shutdownTimeout = 10 * time.Second

// Bridge wires the channel server to the print and event channels, the
// event gateway and the health service.
type Bridge struct {
	cfg    *config.Config
	logger *logger.Logger

	bus     pubsub.PubSub[ovdapp.Event]
	hub     *ovdapp.Hub
	channel *channel.Server
	gateway *eventgw.Gateway
	health  *health.Service
}

func NewBridge(cfg *config.Config, log *logger.Logger) *Bridge {
	if log == nil {
		log = logger.New()
	}
	b := &Bridge{
		cfg:    cfg,
		logger: log,
		bus:    pubsub.NewPubSub[ovdapp.Event](pubsub.WithBufferSize[ovdapp.Event](cfg.Events.BufferSize)),
		hub:    ovdapp.NewHub(log),
	}

	var reporter rdpdr.StatusReporter
	if cfg.Server.HealthSocket != "" {
		b.health = health.New(cfg.Server.HealthSocket, log)
		reporter = b.health
	}

	b.channel = channel.NewServer(cfg.Server.ChannelSocket, cfg.Server.MaxFrameSize, log)
	b.channel.Register(rdpdr.ChannelName, rdpdr.NewFactory(cfg.Printer, reporter, log))
	b.channel.Register(ovdapp.ChannelName, ovdapp.NewFactory(b.bus, b.hub, log))

	if cfg.Events.GatewayAddress != "" {
		b.gateway = eventgw.New(cfg.Events.GatewayAddress, b.bus, b.hub, log)
	}
	return b
}

// Start brings every component up. On failure the ones already running
// are stopped again.
func (b *Bridge) Start(ctx context.Context) (err error) {
	defer func() {
		if err != nil {
			_ = b.Stop(context.Background())
		}
	}()

	if b.health != nil {
		if err := b.health.Start(); err != nil {
			return fmt.Errorf("failed to start health service: %w", err)
		}
	}
	if err := b.channel.Start(ctx); err != nil {
		return fmt.Errorf("failed to start channel server: %w", err)
	}
	if b.gateway != nil {
		if err := b.gateway.Start(); err != nil {
			return fmt.Errorf("failed to start event gateway: %w", err)
		}
	}
	return nil
}

// Stop shuts the components down in reverse order. Open print jobs are
// force-closed when their sessions terminate.
func (b *Bridge) Stop(ctx context.Context) error {
	var errs []error
	if b.gateway != nil {
		if err := b.gateway.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("event gateway: %w", err))
		}
	}
	if err := b.channel.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("channel server: %w", err))
	}
	if b.health != nil {
		b.health.Stop()
	}
	if err := b.bus.Close(); err != nil {
		errs = append(errs, fmt.Errorf("event bus: %w", err))
	}
	return errors.JoinErrors(errs...)
}

func (b *Bridge) ChannelAddr() string {
	return b.channel.Addr()
}

// GatewayAddr is empty when the gateway is disabled.
func (b *Bridge) GatewayAddr() string {
	if b.gateway == nil {
		return ""
	}
	return b.gateway.Addr()
}

// RunServer runs the bridge until SIGINT or SIGTERM.
func RunServer(cfg *config.Config, log *logger.Logger) error {
	log = log.WithField("mode", "serve")
	log.Info("starting ovdbridge",
		"channelSocket", cfg.Server.ChannelSocket,
		"healthSocket", cfg.Server.HealthSocket,
		"gateway", cfg.Events.GatewayAddress,
		"printers", len(cfg.Printer.Devices))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bridge := NewBridge(cfg, log)
	if err := bridge.Start(ctx); err != nil {
		return err
	}
	log.Info("ovdbridge started", "channelSocket", bridge.ChannelAddr(), "gateway", bridge.GatewayAddr())

	<-ctx.Done()
	log.Info("received shutdown signal, stopping ovdbridge...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := bridge.Stop(shutdownCtx); err != nil {
		log.Error("error during shutdown", "error", err)
		return err
	}
	log.Info("ovdbridge stopped gracefully")
	return nil
}

// NewLogger builds the process logger from the logging section. The
// returned closer releases a log file when one is configured.
func NewLogger(cfg config.LoggingConfig, mode string) (*logger.Logger, io.Closer, error) {
	level, err := logger.ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, err
	}

	var out io.Writer
	var closer io.Closer = nopCloser{}
	switch cfg.Output {
	case "", "stdout":
		out = os.Stdout
	case "stderr":
		out = os.Stderr
	default:
		if err := os.MkdirAll(filepath.Dir(cfg.Output), 0o755); err != nil {
			return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file: %w", err)
		}
		out, closer = f, f
	}

	return logger.NewWithConfig(logger.Config{
		Level:  level,
		Output: out,
		Format: cfg.Format,
		Mode:   mode,
	}), closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
