package printer

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"golang.org/x/sys/unix"

	"github.com/ehsaniara/ovdbridge/pkg/constants"
	"github.com/ehsaniara/ovdbridge/pkg/errors"
	"github.com/ehsaniara/ovdbridge/pkg/logger"
)

// SpoolStore keeps the output files of in-flight print jobs on the local
// filesystem. It holds no open handles between calls.
type SpoolStore struct {
	logger *logger.Logger
}

func NewSpoolStore(log *logger.Logger) *SpoolStore {
	if log == nil {
		log = logger.New()
	}
	return &SpoolStore{logger: log.WithField("component", "spool")}
}

// ResolveJobPath returns "<spoolDirectory>/<jobID>.pdf".
func ResolveJobPath(spoolDirectory string, jobID uint32) string {
	return filepath.Join(spoolDirectory, strconv.FormatUint(uint64(jobID), 10)+".pdf")
}

// AppendChunk appends data to the file at path, creating it if needed.
// The file is closed again before returning.
func (s *SpoolStore) AppendChunk(path string, data []byte) (err error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, constants.SpoolFileMode)
	if err != nil {
		return errors.NewSpoolWriteError(path, "open", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = errors.NewSpoolWriteError(path, "close", cerr)
		}
	}()

	n, err := f.Write(data)
	if err != nil {
		return errors.NewSpoolWriteError(path, "write", err)
	}
	if n != len(data) {
		return errors.NewSpoolWriteError(path, "write", fmt.Errorf("%w: wrote %d of %d bytes", io.ErrShortWrite, n, len(data)))
	}

	s.logger.Debug("spool chunk appended", "path", path, "bytes", n)
	return nil
}

// VerifyWritable checks that directory exists, is a directory and that new
// files can be created in it.
func (s *SpoolStore) VerifyWritable(directory string) error {
	info, err := os.Stat(directory)
	if err != nil {
		return errors.NewSpoolUnavailableError(directory, err)
	}
	if !info.IsDir() {
		return errors.NewSpoolUnavailableError(directory, fmt.Errorf("not a directory"))
	}
	if err := unix.Access(directory, unix.W_OK|unix.X_OK); err != nil {
		return errors.NewSpoolUnavailableError(directory, err)
	}
	return nil
}
