package ovdapp

import (
	"encoding/hex"
	"fmt"

	"github.com/ehsaniara/ovdbridge/pkg/errors"
)

// Encode renders channel bytes as lowercase hex, two digits per byte.
func Encode(data []byte) string {
	return hex.EncodeToString(data)
}

// Decode parses an event's hex string. Odd-length input and non-hex
// digits are rejected with ErrMalformedHex.
func Decode(s string) ([]byte, error) {
	if len(s)%2 != 0 {
		return nil, fmt.Errorf("%w: odd length %d", errors.ErrMalformedHex, len(s))
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrMalformedHex, err)
	}
	return b, nil
}

// Outgoing decodes s and appends the zero terminator the remote expects.
func Outgoing(s string) ([]byte, error) {
	b, err := Decode(s)
	if err != nil {
		return nil, err
	}
	return append(b, 0x00), nil
}
