package rdpdr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/ehsaniara/ovdbridge/pkg/errors"
)

func TestMessageRoundTrip(t *testing.T) {
	msgs := []*Message{
		{Op: OpCreate, Printer: "Ulteo OVD Printer", JobID: 7},
		{Op: OpWrite, JobID: 7, Data: []byte{0x25, 0x50, 0x44, 0x46}},
		{Op: OpClose, JobID: 7},
		{Op: OpAnnounce, Printer: "pdf", PrinterID: 1, Driver: "Ulteo TS Printer Driver", Default: true},
		{Op: OpReply, Printer: "pdf", JobID: 7, Status: StatusNotificationChannel, Detail: "broken pipe", BytesWritten: 4096},
	}

	for _, want := range msgs {
		t.Run(want.Op.String(), func(t *testing.T) {
			got, err := UnmarshalMessage(want.Marshal())
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}

func TestUnmarshalMessageSkipsUnknownFields(t *testing.T) {
	b := (&Message{Op: OpCreate, JobID: 3}).Marshal()
	b = protowire.AppendTag(b, 42, protowire.Fixed64Type)
	b = protowire.AppendFixed64(b, 1)
	b = protowire.AppendTag(b, 43, protowire.BytesType)
	b = protowire.AppendString(b, "later")

	m, err := UnmarshalMessage(b)
	require.NoError(t, err)
	assert.Equal(t, OpCreate, m.Op)
	assert.Equal(t, uint32(3), m.JobID)
}

func TestUnmarshalMessageRejects(t *testing.T) {
	hugeJob := protowire.AppendTag(nil, fieldOp, protowire.VarintType)
	hugeJob = protowire.AppendVarint(hugeJob, uint64(OpCreate))
	hugeJob = protowire.AppendTag(hugeJob, fieldJobID, protowire.VarintType)
	hugeJob = protowire.AppendVarint(hugeJob, 1<<40)

	// op 1<<32 | 3 would read as close if truncated
	hugeOp := protowire.AppendTag(nil, fieldOp, protowire.VarintType)
	hugeOp = protowire.AppendVarint(hugeOp, 1<<32|uint64(OpClose))

	hugePrinter := (&Message{Op: OpAnnounce, Printer: "pdf"}).Marshal()
	hugePrinter = protowire.AppendTag(hugePrinter, fieldPrinterID, protowire.VarintType)
	hugePrinter = protowire.AppendVarint(hugePrinter, 1<<32|1)

	tests := map[string][]byte{
		"empty":               nil,
		"unknown op":          (&Message{Op: 9}).Marshal(),
		"truncated":           {0x12, 0x10, 'a'},
		"job id overflow":     hugeJob,
		"op overflow":         hugeOp,
		"printer id overflow": hugePrinter,
	}
	for name, payload := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := UnmarshalMessage(payload)
			assert.ErrorIs(t, err, errors.ErrBadMessage)
		})
	}
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "ok", StatusOK.String())
	assert.Equal(t, "job-in-progress", StatusJobInProgress.String())
	assert.Equal(t, "status(99)", Status(99).String())
	assert.Equal(t, "op(0)", Op(0).String())
}
