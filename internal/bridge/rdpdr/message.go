package rdpdr

import (
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/ehsaniara/ovdbridge/pkg/errors"
)

// Op is the operation carried by a print channel message.
type Op uint32

const (
	OpCreate   Op = 1
	OpWrite    Op = 2
	OpClose    Op = 3
	OpAnnounce Op = 4
	OpReply    Op = 5
)

func (o Op) String() string {
	switch o {
	case OpCreate:
		return "create"
	case OpWrite:
		return "write"
	case OpClose:
		return "close"
	case OpAnnounce:
		return "announce"
	case OpReply:
		return "reply"
	default:
		return fmt.Sprintf("op(%d)", uint32(o))
	}
}

// Status is the outcome reported in reply and announce messages.
type Status uint32

const (
	StatusOK                  Status = 0
	StatusSpoolUnavailable    Status = 1
	StatusSpoolWrite          Status = 2
	StatusJobInProgress       Status = 3
	StatusNotificationChannel Status = 4
	StatusJobNotFound         Status = 5
	StatusDeviceNotReady      Status = 6
	StatusBadRequest          Status = 7
	StatusPrinterNotFound     Status = 8
)

var statusNames = map[Status]string{
	StatusOK:                  "ok",
	StatusSpoolUnavailable:    "spool-unavailable",
	StatusSpoolWrite:          "spool-write",
	StatusJobInProgress:       "job-in-progress",
	StatusNotificationChannel: "notification-channel",
	StatusJobNotFound:         "job-not-found",
	StatusDeviceNotReady:      "device-not-ready",
	StatusBadRequest:          "bad-request",
	StatusPrinterNotFound:     "printer-not-found",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("status(%d)", uint32(s))
}

const (
	fieldOp           protowire.Number = 1
	fieldPrinter      protowire.Number = 2
	fieldJobID        protowire.Number = 3
	fieldData         protowire.Number = 4
	fieldStatus       protowire.Number = 5
	fieldDetail       protowire.Number = 6
	fieldBytesWritten protowire.Number = 7
	fieldPrinterID    protowire.Number = 8
	fieldDriver       protowire.Number = 9
	fieldDefault      protowire.Number = 10
)

// Message is the single message type of the print channel, used in both
// directions. Zero-valued fields are left off the wire.
type Message struct {
	Op           Op
	Printer      string
	JobID        uint32
	Data         []byte
	Status       Status
	Detail       string
	BytesWritten uint64
	PrinterID    uint32
	Driver       string
	Default      bool
}

func (m *Message) Marshal() []byte {
	b := make([]byte, 0, 32+len(m.Printer)+len(m.Data)+len(m.Detail)+len(m.Driver))
	b = protowire.AppendTag(b, fieldOp, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(m.Op))
	b = appendString(b, fieldPrinter, m.Printer)
	b = appendVarint(b, fieldJobID, uint64(m.JobID))
	if len(m.Data) > 0 {
		b = protowire.AppendTag(b, fieldData, protowire.BytesType)
		b = protowire.AppendBytes(b, m.Data)
	}
	b = appendVarint(b, fieldStatus, uint64(m.Status))
	b = appendString(b, fieldDetail, m.Detail)
	b = appendVarint(b, fieldBytesWritten, m.BytesWritten)
	b = appendVarint(b, fieldPrinterID, uint64(m.PrinterID))
	b = appendString(b, fieldDriver, m.Driver)
	if m.Default {
		b = appendVarint(b, fieldDefault, protowire.EncodeBool(true))
	}
	return b
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

// UnmarshalMessage decodes a print channel message. Unknown fields are
// skipped so newer peers can add fields.
func UnmarshalMessage(b []byte) (*Message, error) {
	m := &Message{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("%w: %v", errors.ErrBadMessage, protowire.ParseError(n))
		}
		b = b[n:]

		switch typ {
		case protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, fmt.Errorf("%w: field %d: %v", errors.ErrBadMessage, num, protowire.ParseError(n))
			}
			b = b[n:]
			if err := m.setVarint(num, v); err != nil {
				return nil, err
			}
		case protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, fmt.Errorf("%w: field %d: %v", errors.ErrBadMessage, num, protowire.ParseError(n))
			}
			b = b[n:]
			m.setBytes(num, v)
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, fmt.Errorf("%w: field %d: %v", errors.ErrBadMessage, num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}

	if m.Op < OpCreate || m.Op > OpReply {
		return nil, fmt.Errorf("%w: unknown %s", errors.ErrBadMessage, m.Op)
	}
	return m, nil
}

func (m *Message) setVarint(num protowire.Number, v uint64) error {
	switch num {
	case fieldOp:
		if v > math.MaxUint32 {
			return fmt.Errorf("%w: op %d out of range", errors.ErrBadMessage, v)
		}
		m.Op = Op(v)
	case fieldJobID:
		if v > math.MaxUint32 {
			return fmt.Errorf("%w: job id %d out of range", errors.ErrBadMessage, v)
		}
		m.JobID = uint32(v)
	case fieldStatus:
		m.Status = Status(v)
	case fieldBytesWritten:
		m.BytesWritten = v
	case fieldPrinterID:
		if v > math.MaxUint32 {
			return fmt.Errorf("%w: printer id %d out of range", errors.ErrBadMessage, v)
		}
		m.PrinterID = uint32(v)
	case fieldDefault:
		m.Default = protowire.DecodeBool(v)
	}
	return nil
}

func (m *Message) setBytes(num protowire.Number, v []byte) {
	switch num {
	case fieldPrinter:
		m.Printer = string(v)
	case fieldData:
		m.Data = append([]byte(nil), v...)
	case fieldDetail:
		m.Detail = string(v)
	case fieldDriver:
		m.Driver = string(v)
	}
}
