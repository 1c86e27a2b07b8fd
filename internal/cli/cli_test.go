package cli

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/ehsaniara/ovdbridge/internal/bridge/channel"
	"github.com/ehsaniara/ovdbridge/internal/bridge/health"
	"github.com/ehsaniara/ovdbridge/internal/bridge/printer"
	"github.com/ehsaniara/ovdbridge/internal/bridge/printer/printerfakes"
	"github.com/ehsaniara/ovdbridge/internal/bridge/rdpdr"
	"github.com/ehsaniara/ovdbridge/pkg/config"
	"github.com/ehsaniara/ovdbridge/pkg/errors"
	"github.com/ehsaniara/ovdbridge/pkg/logger"
)

func quietLogger() *logger.Logger {
	return logger.NewWithConfig(logger.Config{Level: logger.ERROR, Output: io.Discard})
}

func shortTempDir(t *testing.T) string {
	t.Helper()
	// unix socket paths are limited to ~108 bytes
	dir, err := os.MkdirTemp("", "ovdcli")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	return dir
}

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	t.Setenv(config.EnvConfigPath, "")
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestHexCommands(t *testing.T) {
	out, err := run(t, "", "hex", "encode", "hi")
	require.NoError(t, err)
	assert.Equal(t, "6869\n", out)

	out, err = run(t, "\x01\xff", "hex", "encode")
	require.NoError(t, err)
	assert.Equal(t, "01ff\n", out)

	out, err = run(t, "", "hex", "decode", "6869")
	require.NoError(t, err)
	assert.Equal(t, "hi", out)

	out, err = run(t, "6869\n", "hex", "decode", "--terminate")
	require.NoError(t, err)
	assert.Equal(t, "hi\x00", out)

	_, err = run(t, "", "hex", "decode", "abc")
	assert.ErrorIs(t, err, errors.ErrMalformedHex)
}

func TestVersionCommand(t *testing.T) {
	out, err := run(t, "", "version")
	require.NoError(t, err)
	assert.Contains(t, out, "ovdbridge version")
}

func TestWatchNotifications(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, watchNotifications(strings.NewReader("/spool/1.pdf\x00/spool/2.pdf\x00tail"), &out, false))
	assert.Equal(t, "/spool/1.pdf\n/spool/2.pdf\ntail\n", out.String())

	out.Reset()
	require.NoError(t, watchNotifications(strings.NewReader("/spool/1.pdf\x00/spool/2.pdf\x00"), &out, true))
	assert.Equal(t, "/spool/1.pdf\n", out.String())
}

func TestWatchCommandCreatesFIFO(t *testing.T) {
	fifo := filepath.Join(t.TempDir(), "fifo")

	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"watch", "--create", "--once", fifo})

	done := make(chan error, 1)
	go func() { done <- cmd.Execute() }()

	// the device side opens non-blocking and fails until a reader is attached
	var sink *printer.FIFOSink
	require.Eventually(t, func() bool {
		s, err := printer.OpenFIFO(fifo)
		if err != nil {
			return false
		}
		sink = s
		return true
	}, 5*time.Second, 20*time.Millisecond)
	defer sink.Close()

	require.NoError(t, sink.Notify("/spool/3.pdf"))

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not exit")
	}
	assert.Equal(t, "/spool/3.pdf\n", out.String())
}

func TestWatchRejectsRegularFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plain")
	require.NoError(t, os.WriteFile(path, nil, 0o600))

	_, err := run(t, "", "watch", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a fifo")
}

// startPrintServer runs a channel server with a single "pdf" printer whose
// notifier is a fake.
func startPrintServer(t *testing.T) (string, string, *printerfakes.FakeNotifier) {
	t.Helper()
	spool := t.TempDir()
	fake := &printerfakes.FakeNotifier{}
	cfg := config.PrinterConfig{Devices: []config.PrinterDeviceConfig{
		{Name: "pdf", FIFOPath: filepath.Join(spool, "fifo")},
	}}

	srv := channel.NewServer(filepath.Join(shortTempDir(t), "ch.sock"), 0, quietLogger())
	srv.Register(rdpdr.ChannelName, rdpdr.NewFactory(cfg, nil, quietLogger(),
		printer.WithSinkOpener(func(string) (printer.Notifier, error) { return fake, nil })))
	require.NoError(t, srv.Start(context.Background()))
	t.Cleanup(func() { _ = srv.Stop() })
	return srv.Addr(), spool, fake
}

func TestPrintCommand(t *testing.T) {
	socket, spool, fake := startPrintServer(t)

	doc := filepath.Join(t.TempDir(), "doc.pdf")
	require.NoError(t, os.WriteFile(doc, []byte("%PDF-1.4\n%%"), 0o600))

	out, err := run(t, "", "print", "--socket", socket, "--job-id", "9", "--chunk-size", "3", doc)
	require.NoError(t, err)

	want := filepath.Join(spool, "9.pdf")
	assert.Equal(t, "job 9 spooled to "+want+" (11 bytes)\n", out)

	content, err := os.ReadFile(want)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4\n%%", string(content))

	require.Eventually(t, func() bool { return fake.NotifyCallCount() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, want, fake.NotifyArgsForCall(0))
}

func TestPrintCommandUnknownPrinter(t *testing.T) {
	socket, spool, _ := startPrintServer(t)

	doc := filepath.Join(t.TempDir(), "doc.pdf")
	require.NoError(t, os.WriteFile(doc, []byte("x"), 0o600))

	_, err := run(t, "", "print", "--socket", socket, "--printer", "nope", doc)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "printer-not-found")
	assert.NoFileExists(t, filepath.Join(spool, "1.pdf"))
}

func TestStatusCommand(t *testing.T) {
	socket := filepath.Join(shortTempDir(t), "health.sock")
	svc := health.New(socket, quietLogger())
	require.NoError(t, svc.Start())
	defer svc.Stop()
	svc.SetPrinterStatus("pdf", printer.DeviceReady)
	svc.SetPrinterStatus("broken", printer.DeviceFailed)

	out, err := run(t, "", "status", "--socket", socket, "pdf", "broken", "ghost")
	require.NoError(t, err)

	rows := map[string]string{}
	for _, line := range strings.Split(strings.TrimSpace(out), "\n")[1:] {
		fields := strings.Fields(line)
		require.Len(t, fields, 2)
		rows[fields[0]] = fields[1]
	}
	assert.Equal(t, map[string]string{
		"ovdbridge":      "SERVING",
		"printer/pdf":    "SERVING",
		"printer/broken": "NOT_SERVING",
		"printer/ghost":  "SERVICE_UNKNOWN",
	}, rows)
}

func TestConfiguredPrinters(t *testing.T) {
	assert.Equal(t, []string{printer.BuiltinPrinterName}, configuredPrinters(config.PrinterConfig{Enumerate: true}))
	assert.Nil(t, configuredPrinters(config.PrinterConfig{}))
	assert.Equal(t, []string{"a", "b"}, configuredPrinters(config.PrinterConfig{
		Devices: []config.PrinterDeviceConfig{{Name: "a"}, {Name: "b"}},
	}))
}

func TestWatchCreateToleratesExistingFIFO(t *testing.T) {
	fifo := filepath.Join(t.TempDir(), "fifo")
	require.NoError(t, unix.Mkfifo(fifo, 0o600))

	ctx, cancel := context.WithCancel(context.Background())
	cmd := NewRootCmd()
	cmd.SetOut(io.Discard)
	cmd.SetArgs([]string{"watch", "--create", fifo})

	done := make(chan error, 1)
	go func() { done <- cmd.ExecuteContext(ctx) }()

	require.Eventually(t, func() bool {
		s, err := printer.OpenFIFO(fifo)
		if err != nil {
			return false
		}
		_ = s.Close()
		return true
	}, 5*time.Second, 20*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop on cancel")
	}
}

func TestCommandFlags(t *testing.T) {
	root := NewRootCmd()

	tests := map[string][]string{
		"print":  {"chunk-size", "job-id", "printer", "socket", "timeout"},
		"watch":  {"create", "once"},
		"status": {"socket"},
		"serve":  nil,
	}
	for name, want := range tests {
		t.Run(name, func(t *testing.T) {
			cmd, _, err := root.Find([]string{name})
			require.NoError(t, err)

			var got []string
			cmd.LocalNonPersistentFlags().VisitAll(func(flag *pflag.Flag) {
				if flag.Name != "help" {
					got = append(got, flag.Name)
				}
			})
			assert.Equal(t, want, got)
		})
	}

	printCmd, _, err := root.Find([]string{"print"})
	require.NoError(t, err)
	assert.Equal(t, "p", printCmd.Flags().Lookup("printer").Shorthand)
}
