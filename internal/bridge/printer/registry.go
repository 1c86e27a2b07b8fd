package printer

import (
	"fmt"
	"sort"
	"sync"

	"github.com/ehsaniara/ovdbridge/pkg/errors"
	"github.com/ehsaniara/ovdbridge/pkg/logger"
)

// BuiltinPrinterName is the single printer returned by EnumeratePrinters.
const BuiltinPrinterName = "Ulteo OVD Printer"

// Registry is the catalog of printer devices for one channel session.
// Device ids come from a sequence starting at 1 that is never reused.
type Registry struct {
	store  *SpoolStore
	open   SinkOpener
	logger *logger.Logger

	mu         sync.Mutex
	idSequence uint32
	devices    map[string]*PrinterDevice
}

type Option func(*Registry)

// WithLogger sets the parent logger for the registry and its devices.
func WithLogger(log *logger.Logger) Option {
	return func(r *Registry) {
		r.logger = log
	}
}

// WithSinkOpener replaces the FIFO opener used by DeferredInit.
func WithSinkOpener(open SinkOpener) Option {
	return func(r *Registry) {
		r.open = open
	}
}

func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		idSequence: 1,
		devices:    make(map[string]*PrinterDevice),
	}
	for _, opt := range opts {
		opt(r)
	}

	if r.logger == nil {
		r.logger = logger.New()
	}
	r.logger = r.logger.WithField("component", "printer")
	if r.store == nil {
		r.store = NewSpoolStore(r.logger)
	}
	if r.open == nil {
		r.open = OpenFIFONotifier
	}
	return r
}

// caller must hold r.mu
func (r *Registry) newDevice(name string, isDefault bool) *PrinterDevice {
	dev := newPrinterDevice(r.idSequence, name, isDefault, r.store, r.open, r.logger)
	r.idSequence++
	r.devices[name] = dev
	r.logger.Debug("printer created", "printer", name, "printerId", dev.id, "default", isDefault)
	return dev
}

// EnumeratePrinters returns the built-in printer, marked default.
// It is created on the first call and returned as is afterwards.
func (r *Registry) EnumeratePrinters() []*PrinterDevice {
	r.mu.Lock()
	defer r.mu.Unlock()

	if dev, ok := r.devices[BuiltinPrinterName]; ok {
		return []*PrinterDevice{dev}
	}
	return []*PrinterDevice{r.newDevice(BuiltinPrinterName, true)}
}

// GetOrCreatePrinter returns the device called name, creating it when it
// does not exist yet. A new device is the default only when it is the
// first device this registry ever created.
func (r *Registry) GetOrCreatePrinter(name string) *PrinterDevice {
	r.mu.Lock()
	defer r.mu.Unlock()

	if dev, ok := r.devices[name]; ok {
		return dev
	}
	return r.newDevice(name, r.idSequence == 1)
}

// SetDefault makes name the only default device.
func (r *Registry) SetDefault(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.devices[name]; !ok {
		return fmt.Errorf("%w: %q", errors.ErrPrinterNotFound, name)
	}
	for devName, dev := range r.devices {
		dev.setDefault(devName == name)
	}
	return nil
}

// DeferredInit runs the second setup phase of dev once its FIFO path is known.
func (r *Registry) DeferredInit(dev *PrinterDevice, fifoPath, spoolDirectory string) error {
	return dev.DeferredInit(fifoPath, spoolDirectory)
}

// Printer looks a device up by name.
func (r *Registry) Printer(name string) (*PrinterDevice, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	dev, ok := r.devices[name]
	return dev, ok
}

// Default returns the default device, or nil when none is marked.
func (r *Registry) Default() *PrinterDevice {
	for _, dev := range r.Printers() {
		if dev.IsDefault() {
			return dev
		}
	}
	return nil
}

// Printers returns a snapshot of all devices ordered by id.
func (r *Registry) Printers() []*PrinterDevice {
	r.mu.Lock()
	devices := make([]*PrinterDevice, 0, len(r.devices))
	for _, dev := range r.devices {
		devices = append(devices, dev)
	}
	r.mu.Unlock()

	sort.Slice(devices, func(i, j int) bool { return devices[i].id < devices[j].id })
	return devices
}

// Close destroys every device. Devices stay in the catalog as Destroyed.
func (r *Registry) Close() error {
	var errs []error
	for _, dev := range r.Printers() {
		if err := dev.Destroy(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.JoinErrors(errs...)
}
