package printer

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/ehsaniara/ovdbridge/pkg/errors"
	"github.com/ehsaniara/ovdbridge/pkg/logger"
)

// DriverName is reported for every device of this driver.
const DriverName = "Ulteo TS Printer Driver"

type DeviceState int

const (
	DeviceUninitialized DeviceState = iota
	DeviceReady
	DeviceFailed
	DeviceDestroyed
)

func (s DeviceState) String() string {
	switch s {
	case DeviceUninitialized:
		return "uninitialized"
	case DeviceReady:
		return "ready"
	case DeviceFailed:
		return "failed"
	case DeviceDestroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}

// PrinterDevice accepts at most one print job at a time. It becomes usable
// once DeferredInit has opened its notifier and checked the spool directory.
type PrinterDevice struct {
	id     uint32
	name   string
	driver string
	store  *SpoolStore
	open   SinkOpener
	logger *logger.Logger

	mu             sync.Mutex
	state          DeviceState
	isDefault      bool
	spoolDirectory string
	sink           Notifier
	activeJob      *PrintJob
}

func newPrinterDevice(id uint32, name string, isDefault bool, store *SpoolStore, open SinkOpener, log *logger.Logger) *PrinterDevice {
	return &PrinterDevice{
		id:        id,
		name:      name,
		driver:    DriverName,
		isDefault: isDefault,
		store:     store,
		open:      open,
		logger:    log.WithFields("printer", name, "printerId", id),
		state:     DeviceUninitialized,
	}
}

func (d *PrinterDevice) ID() uint32 {
	return d.id
}

func (d *PrinterDevice) Name() string {
	return d.name
}

func (d *PrinterDevice) Driver() string {
	return d.driver
}

func (d *PrinterDevice) IsDefault() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.isDefault
}

func (d *PrinterDevice) setDefault(v bool) {
	d.mu.Lock()
	d.isDefault = v
	d.mu.Unlock()
}

func (d *PrinterDevice) State() DeviceState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

func (d *PrinterDevice) SpoolDirectory() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.spoolDirectory
}

// ActiveJob returns the job in flight, or nil.
func (d *PrinterDevice) ActiveJob() *PrintJob {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.activeJob
}

// DeferredInit opens the notifier at fifoPath and settles the spool
// directory: spoolDirectory when given, else the FIFO's parent directory.
// Any failure leaves the device Failed.
func (d *PrinterDevice) DeferredInit(fifoPath, spoolDirectory string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state != DeviceUninitialized {
		return errors.WrapPrintJobError(d.name, 0, "init",
			fmt.Errorf("%w: device is %s", errors.ErrDeviceNotReady, d.state))
	}

	if fifoPath == "" {
		d.state = DeviceFailed
		return errors.NewNotificationChannelError(fifoPath, "open", os.ErrNotExist)
	}
	if abs, err := filepath.Abs(fifoPath); err == nil {
		fifoPath = abs
	}

	sink, err := d.open(fifoPath)
	if err != nil {
		d.state = DeviceFailed
		d.logger.Error("notification channel unavailable", "fifo", fifoPath, "error", err)
		return err
	}

	dir := spoolDirectory
	if dir == "" {
		dir = filepath.Dir(fifoPath)
	} else if abs, err := filepath.Abs(dir); err == nil {
		dir = abs
	}

	if err := d.store.VerifyWritable(dir); err != nil {
		_ = sink.Close()
		d.state = DeviceFailed
		d.logger.Error("spool directory unavailable", "spoolDirectory", dir, "error", err)
		return err
	}

	d.sink = sink
	d.spoolDirectory = dir
	d.state = DeviceReady
	d.logger.Info("printer ready", "fifo", fifoPath, "spoolDirectory", dir)
	return nil
}

// CreateJob opens a new job. It is refused unless the device is Ready, the
// spool directory is writable and no other job is in flight.
func (d *PrinterDevice) CreateJob(id uint32) (*PrintJob, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state != DeviceReady {
		return nil, errors.WrapPrintJobError(d.name, id, "create",
			fmt.Errorf("%w: device is %s", errors.ErrDeviceNotReady, d.state))
	}
	if err := d.store.VerifyWritable(d.spoolDirectory); err != nil {
		return nil, errors.WrapPrintJobError(d.name, id, "create", err)
	}
	if d.activeJob != nil {
		return nil, errors.NewJobInProgressError(d.name, d.activeJob.id, id)
	}

	job := newPrintJob(id, d)
	d.activeJob = job
	d.logger.Info("job created", "jobId", id, "path", job.path)
	return job, nil
}

// FindJob returns the active job when its id matches, else nil.
func (d *PrinterDevice) FindJob(id uint32) *PrintJob {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.activeJob != nil && d.activeJob.id == id {
		return d.activeJob
	}
	return nil
}

// Destroy force-closes the active job, then releases the notifier.
// Repeated calls are no-ops.
func (d *PrinterDevice) Destroy() error {
	d.mu.Lock()
	if d.state == DeviceDestroyed {
		d.mu.Unlock()
		return nil
	}
	d.state = DeviceDestroyed
	job := d.activeJob
	d.mu.Unlock()

	var jobErr error
	if job != nil {
		d.logger.Warn("force-closing open job", "jobId", job.id)
		jobErr = job.Close()
	}

	d.mu.Lock()
	sink := d.sink
	d.sink = nil
	d.mu.Unlock()

	var sinkErr error
	if sink != nil {
		sinkErr = sink.Close()
	}

	d.logger.Debug("printer destroyed")
	return errors.JoinErrors(jobErr, sinkErr)
}

func (d *PrinterDevice) notify(path string) error {
	d.mu.Lock()
	sink := d.sink
	d.mu.Unlock()

	if sink == nil {
		return errors.NewNotificationChannelError(path, "write", os.ErrClosed)
	}
	return sink.Notify(path)
}

// release clears activeJob if it still points at job.
func (d *PrinterDevice) release(job *PrintJob) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.activeJob == job {
		d.activeJob = nil
	}
}
