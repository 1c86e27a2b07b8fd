package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ehsaniara/ovdbridge/pkg/errors"
)

const (
	EnvConfigPath    = "OVDBRIDGE_CONFIG_PATH"
	EnvChannelSocket = "OVDBRIDGE_CHANNEL_SOCKET"
	EnvLogLevel      = "OVDBRIDGE_LOG_LEVEL"
	EnvLogFormat     = "OVDBRIDGE_LOG_FORMAT"

	maxFrameSizeLimit = 64 << 20
)

// Config holds the complete bridge configuration
type Config struct {
	Version string        `yaml:"version" json:"version"`
	Server  ServerConfig  `yaml:"server" json:"server"`
	Printer PrinterConfig `yaml:"printer" json:"printer"`
	Events  EventsConfig  `yaml:"events" json:"events"`
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// ServerConfig covers the virtual-channel listener and the health endpoint.
type ServerConfig struct {
	ChannelSocket string `yaml:"channelSocket" json:"channelSocket"`
	MaxFrameSize  int    `yaml:"maxFrameSize" json:"maxFrameSize"`
	// HealthSocket is the unix socket of the gRPC health service; empty disables it.
	HealthSocket string `yaml:"healthSocket" json:"healthSocket"`
}

type PrinterConfig struct {
	Devices []PrinterDeviceConfig `yaml:"devices" json:"devices"`
	// Enumerate announces the built-in printer when no devices are listed.
	Enumerate bool `yaml:"enumerate" json:"enumerate"`
	// FIFO and SpoolDirectory apply to the built-in printer only.
	FIFO           string `yaml:"fifo" json:"fifo"`
	SpoolDirectory string `yaml:"spoolDirectory" json:"spoolDirectory"`
}

type EventsConfig struct {
	// GatewayAddress is the listen address of the websocket gateway; empty disables it.
	GatewayAddress string `yaml:"gatewayAddress" json:"gatewayAddress"`
	BufferSize     int    `yaml:"bufferSize" json:"bufferSize"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
	Output string `yaml:"output" json:"output"`
}

var DefaultConfig = Config{
	Version: "1.0",
	Server: ServerConfig{
		ChannelSocket: "/run/ovdbridge/channel.sock",
		MaxFrameSize:  4 << 20,
		HealthSocket:  "/run/ovdbridge/health.sock",
	},
	Printer: PrinterConfig{
		Enumerate: true,
		FIFO:      "/var/spool/ovdbridge/fifo",
	},
	Events: EventsConfig{
		GatewayAddress: "127.0.0.1:7780",
		BufferSize:     64,
	},
	Logging: LoggingConfig{
		Level:  "INFO",
		Format: "text",
		Output: "stdout",
	},
}

// Load builds the configuration from the first file found on the search path:
//
//  1. explicitPath (from --config); it must exist when given
//  2. $OVDBRIDGE_CONFIG_PATH
//  3. ./ovdbridge.yml
//  4. /etc/ovdbridge/ovdbridge.yml
//
// Environment overrides are applied afterwards and the result is validated.
// The returned string names the source of the configuration.
func Load(explicitPath string) (*Config, string, error) {
	config := DefaultConfig
	config.Printer.Devices = nil

	path, err := loadFromFile(&config, explicitPath)
	if err != nil {
		return nil, "", fmt.Errorf("failed to load config file: %w", err)
	}

	if val := os.Getenv(EnvChannelSocket); val != "" {
		config.Server.ChannelSocket = val
	}
	if val := os.Getenv(EnvLogLevel); val != "" {
		config.Logging.Level = val
	}
	if val := os.Getenv(EnvLogFormat); val != "" {
		config.Logging.Format = val
	}

	if e := config.Validate(); e != nil {
		return nil, "", fmt.Errorf("configuration validation failed: %w", e)
	}

	return &config, path, nil
}

func loadFromFile(config *Config, explicitPath string) (string, error) {
	if explicitPath != "" {
		if err := decodeFile(explicitPath, config); err != nil {
			return "", err
		}
		return explicitPath, nil
	}

	configPaths := []string{
		os.Getenv(EnvConfigPath),
		"./ovdbridge.yml",
		"/etc/ovdbridge/ovdbridge.yml",
	}

	for _, path := range configPaths {
		if path == "" {
			continue
		}

		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue
		}

		if err := decodeFile(path, config); err != nil {
			return "", err
		}
		return path, nil
	}

	return "built-in defaults (no config file found)", nil
}

func decodeFile(path string, config *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// Validate checks every section and returns the first problem found.
func (c *Config) Validate() error {
	if c.Server.ChannelSocket == "" {
		return errors.NewConfigError("server", "channelSocket", fmt.Errorf("must not be empty"))
	}
	if c.Server.MaxFrameSize <= 0 || c.Server.MaxFrameSize > maxFrameSizeLimit {
		return errors.NewConfigError("server", "maxFrameSize",
			fmt.Errorf("must be between 1 and %d, got %d", maxFrameSizeLimit, c.Server.MaxFrameSize))
	}

	seen := make(map[string]bool, len(c.Printer.Devices))
	defaults := 0
	for i, dev := range c.Printer.Devices {
		if err := dev.Validate(); err != nil {
			return errors.WrapConfigError("printer", fmt.Sprintf("devices[%d]", i), err)
		}
		if seen[dev.Name] {
			return errors.NewConfigError("printer", "devices", fmt.Errorf("duplicate printer name %q", dev.Name))
		}
		seen[dev.Name] = true
		if dev.Default {
			defaults++
		}
	}
	if defaults > 1 {
		return errors.NewConfigError("printer", "devices", fmt.Errorf("%d devices marked default, at most one allowed", defaults))
	}
	if len(c.Printer.Devices) == 0 && c.Printer.Enumerate && c.Printer.FIFO == "" {
		return errors.NewConfigError("printer", "fifo", fmt.Errorf("required for the built-in printer"))
	}

	if c.Events.BufferSize < 1 {
		return errors.NewConfigError("events", "bufferSize", fmt.Errorf("must be positive, got %d", c.Events.BufferSize))
	}

	switch strings.ToUpper(c.Logging.Level) {
	case "DEBUG", "INFO", "WARN", "ERROR":
	default:
		return errors.NewConfigError("logging", "level", fmt.Errorf("unknown level %q", c.Logging.Level))
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "text", "json":
	default:
		return errors.NewConfigError("logging", "format", fmt.Errorf("unknown format %q", c.Logging.Format))
	}

	return nil
}

// BuiltinDevice returns the device config used for the enumerated printer.
func (p PrinterConfig) BuiltinDevice(name, driver string) PrinterDeviceConfig {
	return PrinterDeviceConfig{
		Name:           name,
		Driver:         driver,
		FIFOPath:       p.FIFO,
		SpoolDirectory: p.SpoolDirectory,
		Default:        true,
	}
}
