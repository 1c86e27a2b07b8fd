package channel

import (
	"encoding/binary"
	"fmt"
	"io"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/ehsaniara/ovdbridge/pkg/errors"
)

// Kind is the type of a virtual-channel frame.
type Kind uint8

const (
	KindConnect   Kind = 1
	KindData      Kind = 2
	KindTerminate Kind = 3
)

func (k Kind) String() string {
	switch k {
	case KindConnect:
		return "connect"
	case KindData:
		return "data"
	case KindTerminate:
		return "terminate"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// DefaultMaxFrameSize bounds a frame payload when no limit is configured.
const DefaultMaxFrameSize = 4 << 20

const (
	fieldChannel protowire.Number = 1
	fieldKind    protowire.Number = 2
	fieldData    protowire.Number = 3
)

// Frame is one unit on the wire: a 4-byte big-endian length followed by
// the protobuf-encoded {channel, kind, data}.
type Frame struct {
	Channel string
	Kind    Kind
	Data    []byte
}

func (f Frame) Marshal() []byte {
	b := make([]byte, 0, len(f.Channel)+len(f.Data)+12)
	b = protowire.AppendTag(b, fieldChannel, protowire.BytesType)
	b = protowire.AppendString(b, f.Channel)
	b = protowire.AppendTag(b, fieldKind, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(f.Kind))
	if len(f.Data) > 0 {
		b = protowire.AppendTag(b, fieldData, protowire.BytesType)
		b = protowire.AppendBytes(b, f.Data)
	}
	return b
}

// UnmarshalFrame decodes a frame payload. Unknown fields are skipped.
func UnmarshalFrame(b []byte) (Frame, error) {
	var f Frame
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return Frame{}, fmt.Errorf("%w: %v", errors.ErrBadMessage, protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case num == fieldChannel && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return Frame{}, fmt.Errorf("%w: channel: %v", errors.ErrBadMessage, protowire.ParseError(n))
			}
			f.Channel = v
			b = b[n:]
		case num == fieldKind && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return Frame{}, fmt.Errorf("%w: kind: %v", errors.ErrBadMessage, protowire.ParseError(n))
			}
			f.Kind = Kind(v)
			b = b[n:]
		case num == fieldData && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return Frame{}, fmt.Errorf("%w: data: %v", errors.ErrBadMessage, protowire.ParseError(n))
			}
			f.Data = append([]byte(nil), v...)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return Frame{}, fmt.Errorf("%w: field %d: %v", errors.ErrBadMessage, num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}

	if f.Channel == "" {
		return Frame{}, fmt.Errorf("%w: frame without channel name", errors.ErrBadMessage)
	}
	switch f.Kind {
	case KindConnect, KindData, KindTerminate:
	default:
		return Frame{}, fmt.Errorf("%w: unknown frame %s", errors.ErrBadMessage, f.Kind)
	}
	return f, nil
}

// WriteFrame writes f with its length prefix in a single Write call.
func WriteFrame(w io.Writer, f Frame, maxSize int) error {
	payload := f.Marshal()
	if len(payload) > maxSize {
		return fmt.Errorf("%w: %d > %d", errors.ErrFrameTooLarge, len(payload), maxSize)
	}

	buf := make([]byte, 4+len(payload))
	binary.BigEndian.PutUint32(buf, uint32(len(payload)))
	copy(buf[4:], payload)

	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}
	return nil
}

// ReadFrame reads one frame. io.EOF is returned unwrapped when the stream
// ends cleanly between frames.
func ReadFrame(r io.Reader, maxSize int) (Frame, error) {
	var lengthBuf [4]byte
	if _, err := io.ReadFull(r, lengthBuf[:]); err != nil {
		return Frame{}, err
	}

	length := binary.BigEndian.Uint32(lengthBuf[:])
	if uint64(length) > uint64(maxSize) {
		return Frame{}, fmt.Errorf("%w: %d > %d", errors.ErrFrameTooLarge, length, maxSize)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return Frame{}, fmt.Errorf("failed to read frame payload: %w", err)
	}
	return UnmarshalFrame(payload)
}
