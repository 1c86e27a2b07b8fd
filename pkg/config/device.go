package config

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ehsaniara/ovdbridge/pkg/errors"
)

// deviceKind is the first positional argument of every printer device.
const deviceKind = "printer"

// PrinterDeviceConfig describes one redirected printer as handed over by the
// host loader.
type PrinterDeviceConfig struct {
	Name     string `yaml:"name" json:"name"`
	Driver   string `yaml:"driver" json:"driver"`
	FIFOPath string `yaml:"fifo" json:"fifo"`
	// SpoolDirectory overrides the default of the FIFO's parent directory.
	SpoolDirectory string `yaml:"spoolDirectory,omitempty" json:"spoolDirectory,omitempty"`
	// Default forces this device to be announced as the default printer.
	Default bool `yaml:"default,omitempty" json:"default,omitempty"`
}

// ParseDeviceArgs converts the positional device parameters
// ("printer", name, driver, fifoPath) into a typed device config.
// Extra trailing arguments are ignored.
func ParseDeviceArgs(args []string) (PrinterDeviceConfig, error) {
	if len(args) < 4 {
		return PrinterDeviceConfig{}, fmt.Errorf("%w: want 4 arguments (printer, name, driver, fifo), got %d",
			errors.ErrInvalidDeviceArgs, len(args))
	}
	if args[0] != deviceKind {
		return PrinterDeviceConfig{}, fmt.Errorf("%w: unsupported device kind %q", errors.ErrInvalidDeviceArgs, args[0])
	}

	dev := PrinterDeviceConfig{
		Name:     args[1],
		Driver:   args[2],
		FIFOPath: args[3],
	}
	if err := dev.Validate(); err != nil {
		return PrinterDeviceConfig{}, err
	}
	return dev, nil
}

// ParseCompactDevice accepts the "printer:<name>:<driver>:<fifo>" form.
// The FIFO path is the remainder, so it may itself contain colons.
func ParseCompactDevice(s string) (PrinterDeviceConfig, error) {
	return ParseDeviceArgs(strings.SplitN(s, ":", 4))
}

func (d PrinterDeviceConfig) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return fmt.Errorf("%w: printer name is empty", errors.ErrInvalidDeviceArgs)
	}
	if d.FIFOPath == "" {
		return fmt.Errorf("%w: printer %q has no fifo path", errors.ErrInvalidDeviceArgs, d.Name)
	}
	return nil
}

// UnmarshalYAML lets a device entry be either the compact string form or a
// mapping with named fields.
func (d *PrinterDeviceConfig) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		var compact string
		if err := value.Decode(&compact); err != nil {
			return err
		}
		parsed, err := ParseCompactDevice(compact)
		if err != nil {
			return fmt.Errorf("line %d: %w", value.Line, err)
		}
		*d = parsed
		return nil
	case yaml.MappingNode:
		type plain PrinterDeviceConfig
		var p plain
		if err := value.Decode(&p); err != nil {
			return err
		}
		*d = PrinterDeviceConfig(p)
		return nil
	default:
		return fmt.Errorf("line %d: %w: device entry must be a string or a mapping", value.Line, errors.ErrInvalidDeviceArgs)
	}
}
