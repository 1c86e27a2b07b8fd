package constants

// Values shared by the bridge components and the CLI.

const (
	// DefaultChunkSize is the write size used when sending a document
	// through the print channel.
	DefaultChunkSize = 32 * 1024

	// DefaultPollInterval in milliseconds, used to back off after a
	// transient accept error.
	DefaultPollInterval = 50

	// DefaultTimeout in seconds for one-shot CLI requests.
	DefaultTimeout = 10
)

// File permissions and modes
const (
	SpoolFileMode = 0o644 // spool files are read by the consumer process
	SocketMode    = 0o600
	FIFOMode      = 0o600
	DirMode       = 0o755
)
