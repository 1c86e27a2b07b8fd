package errors

import (
	stderr "errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpoolError(t *testing.T) {
	cause := os.ErrPermission
	err := &SpoolError{Path: "/spool/7.pdf", Operation: "append", Err: cause}

	assert.Equal(t, "spool /spool/7.pdf: operation append: permission denied", err.Error())
	assert.Same(t, cause, err.Unwrap())
}

func TestPrintJobError(t *testing.T) {
	err := NewJobInProgressError("Ulteo OVD Printer", 7, 8)

	assert.True(t, IsJobInProgress(err))
	assert.Contains(t, err.Error(), `printer "Ulteo OVD Printer" job 8: operation create`)
	assert.Contains(t, err.Error(), "job 7 is still open")

	id, ok := GetJobID(err)
	require.True(t, ok)
	assert.Equal(t, uint32(8), id)
}

func TestConstructorsKeepSentinels(t *testing.T) {
	cause := stderr.New("boom")

	tests := []struct {
		name  string
		err   error
		check func(error) bool
	}{
		{"spool unavailable", NewSpoolUnavailableError("/spool", cause), IsSpoolUnavailable},
		{"spool write", NewSpoolWriteError("/spool/1.pdf", "write", cause), IsSpoolWrite},
		{"notification", NewNotificationChannelError("/spool/fifo", "open", cause), IsNotificationError},
		{"config", NewConfigError("server", "channelSocket", cause), IsConfigError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, tt.check(tt.err))
			assert.Contains(t, tt.err.Error(), "boom")
		})
	}
}

func TestWrapNil(t *testing.T) {
	assert.NoError(t, WrapSpoolError("/spool", "verify", nil))
	assert.NoError(t, WrapPrintJobError("p", 1, "write", nil))
	assert.NoError(t, WrapNotificationError("/spool/fifo", "write", nil))
	assert.NoError(t, WrapConfigError("server", "", nil))
}

func TestTypedErrorsMatchWithAs(t *testing.T) {
	err := WrapPrintJobError("p", 3, "write", NewSpoolWriteError("/spool/3.pdf", "write", os.ErrClosed))

	var spoolErr *SpoolError
	require.True(t, stderr.As(err, &spoolErr))
	assert.Equal(t, "/spool/3.pdf", spoolErr.Path)

	var jobErr *PrintJobError
	require.True(t, stderr.As(err, &jobErr))
	assert.Equal(t, "write", jobErr.Operation)
	assert.True(t, IsSpoolWrite(err))
}

func TestJoinErrors(t *testing.T) {
	assert.NoError(t, JoinErrors(nil, nil))

	single := stderr.New("only")
	assert.Same(t, single, JoinErrors(nil, single))

	a := NewNotificationChannelError("/spool/fifo", "write", os.ErrClosed)
	b := WrapPrintJobError("p", 1, "close", ErrJobNotFound)
	joined := JoinErrors(a, nil, b)

	require.Error(t, joined)
	assert.Equal(t, a.Error()+"; "+b.Error(), joined.Error())
	assert.True(t, IsNotificationError(joined))
	assert.True(t, stderr.Is(joined, ErrJobNotFound))
}

func TestConfigErrorMessage(t *testing.T) {
	withField := &ConfigError{Component: "server", Field: "maxFrameSize", Err: stderr.New("must be positive")}
	assert.Equal(t, "config server.maxFrameSize: must be positive", withField.Error())

	noField := &ConfigError{Component: "printer", Err: stderr.New("no devices")}
	assert.Equal(t, "config printer: no devices", noField.Error())
}
