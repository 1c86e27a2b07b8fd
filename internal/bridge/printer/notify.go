package printer

//go:generate go run github.com/maxbrunsfeld/counterfeiter/v6 -generate

import (
	"fmt"
	"io"
	"os"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/ehsaniara/ovdbridge/pkg/errors"
)

// Notifier delivers one completion message per finished print job.
//
//counterfeiter:generate . Notifier
type Notifier interface {
	Notify(message string) error
	Close() error
}

// SinkOpener opens the notifier for a device during deferred init.
type SinkOpener func(path string) (Notifier, error)

// FIFOSink is a write-only handle on a named pipe watched by an external
// consumer. Each message is written followed by a single NUL byte.
type FIFOSink struct {
	path string

	mu   sync.Mutex
	file *os.File
}

var _ Notifier = (*FIFOSink)(nil)

// OpenFIFO opens an existing named pipe for writing. The open does not
// block: it fails with ENXIO when no reader has the pipe open.
func OpenFIFO(path string) (*FIFOSink, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.NewNotificationChannelError(path, "open", err)
	}
	if info.Mode()&os.ModeNamedPipe == 0 {
		return nil, errors.NewNotificationChannelError(path, "open", fmt.Errorf("not a fifo (mode %s)", info.Mode()))
	}

	fd, err := unix.Open(path, unix.O_WRONLY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, errors.NewNotificationChannelError(path, "open", err)
	}

	return &FIFOSink{path: path, file: os.NewFile(uintptr(fd), path)}, nil
}

// OpenFIFONotifier adapts OpenFIFO to a SinkOpener.
func OpenFIFONotifier(path string) (Notifier, error) {
	sink, err := OpenFIFO(path)
	if err != nil {
		return nil, err
	}
	return sink, nil
}

func (s *FIFOSink) Path() string {
	return s.path
}

// Notify writes message plus the terminating NUL in a single write.
func (s *FIFOSink) Notify(message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return errors.NewNotificationChannelError(s.path, "write", os.ErrClosed)
	}

	buf := make([]byte, 0, len(message)+1)
	buf = append(buf, message...)
	buf = append(buf, 0)

	n, err := s.file.Write(buf)
	if err != nil {
		return errors.NewNotificationChannelError(s.path, "write", err)
	}
	if n != len(buf) {
		return errors.NewNotificationChannelError(s.path, "write",
			fmt.Errorf("%w: wrote %d of %d bytes", io.ErrShortWrite, n, len(buf)))
	}
	return nil
}

// Close releases the pipe handle. Calling it again is a no-op.
func (s *FIFOSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	if err != nil {
		return errors.NewNotificationChannelError(s.path, "close", err)
	}
	return nil
}
