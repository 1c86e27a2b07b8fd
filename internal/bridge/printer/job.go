package printer

import (
	"sync"

	"github.com/ehsaniara/ovdbridge/pkg/errors"
)

type JobState int

const (
	JobOpen JobState = iota
	JobClosed
)

func (s JobState) String() string {
	switch s {
	case JobOpen:
		return "open"
	case JobClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// PrintJob is one document transfer. Chunks go straight to the spool file;
// Close hands the file to the device's notifier and frees the device.
type PrintJob struct {
	id     uint32
	path   string
	device *PrinterDevice

	mu           sync.Mutex
	state        JobState
	bytesWritten uint64
}

func newPrintJob(id uint32, device *PrinterDevice) *PrintJob {
	return &PrintJob{
		id:     id,
		path:   ResolveJobPath(device.spoolDirectory, id),
		device: device,
		state:  JobOpen,
	}
}

func (j *PrintJob) ID() uint32 {
	return j.id
}

// Path is the spool file of this job.
func (j *PrintJob) Path() string {
	return j.path
}

func (j *PrintJob) State() JobState {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

func (j *PrintJob) BytesWritten() uint64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.bytesWritten
}

// Write appends data to the spool file. A failed write leaves the job open.
func (j *PrintJob) Write(data []byte) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.state == JobClosed {
		return errors.WrapPrintJobError(j.device.name, j.id, "write", errors.ErrJobClosed)
	}
	if err := j.device.store.AppendChunk(j.path, data); err != nil {
		return errors.WrapPrintJobError(j.device.name, j.id, "write", err)
	}
	j.bytesWritten += uint64(len(data))
	return nil
}

// Close moves the job to Closed and notifies the consumer of its spool file.
// Only the first call has any effect. A notification failure is returned
// but the job stays closed and the device is released regardless.
func (j *PrintJob) Close() error {
	j.mu.Lock()
	if j.state == JobClosed {
		j.mu.Unlock()
		return nil
	}
	j.state = JobClosed
	written := j.bytesWritten
	j.mu.Unlock()

	defer j.device.release(j)

	if err := j.device.notify(j.path); err != nil {
		j.device.logger.Warn("job closed without notification", "jobId", j.id, "path", j.path, "error", err)
		return errors.WrapPrintJobError(j.device.name, j.id, "close", err)
	}

	j.device.logger.Info("job completed", "jobId", j.id, "path", j.path, "bytes", written)
	return nil
}
