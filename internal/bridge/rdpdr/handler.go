package rdpdr

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/ehsaniara/ovdbridge/internal/bridge/channel"
	"github.com/ehsaniara/ovdbridge/internal/bridge/printer"
	"github.com/ehsaniara/ovdbridge/pkg/config"
	"github.com/ehsaniara/ovdbridge/pkg/errors"
	"github.com/ehsaniara/ovdbridge/pkg/logger"
)

// ChannelName is the virtual channel the print protocol runs on.
const ChannelName = "rdpdr"

// StatusReporter is told about every device state change.
type StatusReporter interface {
	SetPrinterStatus(name string, state printer.DeviceState)
}

// Handler runs the print protocol for one channel session. It owns the
// session's printer registry from OnConnect until OnTerminate.
type Handler struct {
	sender   channel.Sender
	cfg      config.PrinterConfig
	reporter StatusReporter
	logger   *logger.Logger
	opts     []printer.Option

	registry *printer.Registry
}

// NewFactory returns a plugin factory for the print channel.
// opts are passed to every session's printer registry.
func NewFactory(cfg config.PrinterConfig, reporter StatusReporter, log *logger.Logger, opts ...printer.Option) channel.PluginFactory {
	return func(sender channel.Sender) channel.Plugin {
		return NewHandler(sender, cfg, reporter, log, opts...)
	}
}

func NewHandler(sender channel.Sender, cfg config.PrinterConfig, reporter StatusReporter, log *logger.Logger, opts ...printer.Option) *Handler {
	if log == nil {
		log = logger.New()
	}
	return &Handler{
		sender:   sender,
		cfg:      cfg,
		reporter: reporter,
		logger:   log.WithField("component", "rdpdr"),
		opts:     opts,
	}
}

// Registry exposes the session's registry; nil before OnConnect.
func (h *Handler) Registry() *printer.Registry {
	return h.registry
}

// OnConnect sets up the printers and announces them to the remote. Devices
// whose deferred init fails are still announced, as not ready. A failed
// connect gets no OnTerminate, so the registry is torn down here.
func (h *Handler) OnConnect(ctx context.Context) (err error) {
	opts := append([]printer.Option{printer.WithLogger(h.logger)}, h.opts...)
	h.registry = printer.NewRegistry(opts...)
	defer func() {
		if err != nil {
			_ = h.teardown()
		}
	}()

	devices := h.cfg.Devices
	if len(devices) == 0 && h.cfg.Enumerate {
		builtin := h.registry.EnumeratePrinters()[0]
		devices = []config.PrinterDeviceConfig{h.cfg.BuiltinDevice(builtin.Name(), builtin.Driver())}
	}

	for _, dc := range devices {
		dev := h.registry.GetOrCreatePrinter(dc.Name)
		if dc.Driver != "" && dc.Driver != dev.Driver() {
			h.logger.Debug("ignoring configured driver", "printer", dc.Name, "driver", dc.Driver)
		}
		if err := h.registry.DeferredInit(dev, dc.FIFOPath, dc.SpoolDirectory); err != nil {
			errors.LogError(h.logger, err, "printer unavailable")
		}
		if dc.Default {
			if err = h.registry.SetDefault(dc.Name); err != nil {
				return err
			}
		}
		h.report(dev)
	}

	for _, dev := range h.registry.Printers() {
		announce := &Message{
			Op:        OpAnnounce,
			Printer:   dev.Name(),
			PrinterID: dev.ID(),
			Driver:    dev.Driver(),
			Default:   dev.IsDefault(),
		}
		if dev.State() != printer.DeviceReady {
			announce.Status = StatusDeviceNotReady
			announce.Detail = dev.State().String()
		}
		if sendErr := h.send(ctx, announce); sendErr != nil {
			return fmt.Errorf("failed to announce printer %q: %w", dev.Name(), sendErr)
		}
	}

	h.logger.Info("print channel connected", "printers", len(h.registry.Printers()))
	return nil
}

// OnReceive handles one request and always answers with a reply. Only a
// failure to send the reply is returned.
func (h *Handler) OnReceive(ctx context.Context, data []byte) error {
	req, err := UnmarshalMessage(data)
	if err != nil {
		h.logger.Warn("malformed print request", "error", err, "bytes", len(data))
		return h.send(ctx, &Message{Op: OpReply, Status: StatusBadRequest, Detail: err.Error()})
	}

	return h.send(ctx, h.handle(req))
}

func (h *Handler) handle(req *Message) *Message {
	reply := &Message{Op: OpReply, Printer: req.Printer, JobID: req.JobID}

	if h.registry == nil {
		return rejected(reply, StatusDeviceNotReady, "channel not connected")
	}

	dev := h.resolve(req.Printer)
	if dev == nil {
		return rejected(reply, StatusPrinterNotFound, fmt.Sprintf("printer %q not found", req.Printer))
	}
	reply.Printer = dev.Name()
	reply.PrinterID = dev.ID()

	switch req.Op {
	case OpCreate:
		if _, err := dev.CreateJob(req.JobID); err != nil {
			return h.failed(reply, err)
		}

	case OpWrite:
		job := dev.FindJob(req.JobID)
		if job == nil {
			return rejected(reply, StatusJobNotFound, fmt.Sprintf("job %d is not open", req.JobID))
		}
		err := job.Write(req.Data)
		reply.BytesWritten = job.BytesWritten()
		if err != nil {
			return h.failed(reply, err)
		}

	case OpClose:
		job := dev.FindJob(req.JobID)
		if job == nil {
			return rejected(reply, StatusJobNotFound, fmt.Sprintf("job %d is not open", req.JobID))
		}
		err := job.Close()
		reply.BytesWritten = job.BytesWritten()
		if err != nil {
			return h.failed(reply, err)
		}
		reply.Detail = job.Path()

	default:
		return rejected(reply, StatusBadRequest, fmt.Sprintf("unexpected %s request", req.Op))
	}
	return reply
}

// resolve finds the device for a request; an empty name means the default.
func (h *Handler) resolve(name string) *printer.PrinterDevice {
	if name == "" {
		return h.registry.Default()
	}
	dev, _ := h.registry.Printer(name)
	return dev
}

func (h *Handler) failed(reply *Message, err error) *Message {
	errors.LogError(h.logger, err, fmt.Sprintf("%s request failed", reply.Printer))
	return rejected(reply, StatusFromError(err), err.Error())
}

func rejected(reply *Message, status Status, detail string) *Message {
	reply.Status = status
	reply.Detail = detail
	return reply
}

// OnTerminate tears the registry down, force-closing any open job.
func (h *Handler) OnTerminate(ctx context.Context) error {
	if h.registry == nil {
		return nil
	}
	err := h.teardown()
	h.logger.Info("print channel terminated")
	return err
}

// teardown destroys every device and reports the final states.
func (h *Handler) teardown() error {
	err := h.registry.Close()
	for _, dev := range h.registry.Printers() {
		h.report(dev)
	}
	return err
}

func (h *Handler) report(dev *printer.PrinterDevice) {
	if h.reporter != nil {
		h.reporter.SetPrinterStatus(dev.Name(), dev.State())
	}
}

func (h *Handler) send(ctx context.Context, m *Message) error {
	return h.sender.Send(ctx, m.Marshal())
}

// StatusFromError maps an error from the printer core onto a reply status.
func StatusFromError(err error) Status {
	if err == nil {
		return StatusOK
	}
	switch errors.GetCategory(err) {
	case errors.CategorySpool:
		return StatusSpoolUnavailable
	case errors.CategoryWrite:
		return StatusSpoolWrite
	case errors.CategoryConflict:
		return StatusJobInProgress
	case errors.CategoryNotification:
		return StatusNotificationChannel
	case errors.CategoryState:
		return StatusDeviceNotReady
	case errors.CategoryNotFound:
		if stderrors.Is(err, errors.ErrPrinterNotFound) {
			return StatusPrinterNotFound
		}
		return StatusJobNotFound
	default:
		return StatusBadRequest
	}
}
