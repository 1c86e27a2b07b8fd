package printer_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ehsaniara/ovdbridge/internal/bridge/printer"
	"github.com/ehsaniara/ovdbridge/pkg/errors"
)

func TestFIFOSinkNotify(t *testing.T) {
	path, reader := makeFIFO(t, t.TempDir())

	sink, err := printer.OpenFIFO(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sink.Close() })
	assert.Equal(t, path, sink.Path())

	require.NoError(t, sink.Notify("/spool/7.pdf"))
	assert.Equal(t, "/spool/7.pdf\x00", readMessage(t, reader))

	require.NoError(t, sink.Notify("/spool/8.pdf"))
	assert.Equal(t, "/spool/8.pdf\x00", readMessage(t, reader))
}

func TestFIFOSinkClose(t *testing.T) {
	path, _ := makeFIFO(t, t.TempDir())

	sink, err := printer.OpenFIFO(path)
	require.NoError(t, err)

	require.NoError(t, sink.Close())
	require.NoError(t, sink.Close())

	err = sink.Notify("/spool/1.pdf")
	require.Error(t, err)
	assert.True(t, errors.IsNotificationError(err))
}

func TestFIFOSinkReaderGone(t *testing.T) {
	path, reader := makeFIFO(t, t.TempDir())

	sink, err := printer.OpenFIFO(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sink.Close() })

	require.NoError(t, reader.Close())

	err = sink.Notify("/spool/1.pdf")
	require.Error(t, err)
	assert.True(t, errors.IsNotificationError(err))
}

func TestOpenFIFORejectsRegularFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plain")
	require.NoError(t, os.WriteFile(path, nil, 0o600))

	_, err := printer.OpenFIFO(path)
	require.Error(t, err)
	assert.True(t, errors.IsNotificationError(err))
	assert.Contains(t, err.Error(), "not a fifo")
}
