// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package recording

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func tsPacket(pid uint16, cc uint8) []byte {
	p := make([]byte, tsPacketSize)
	p[0] = tsSyncByte
	p[1] = byte(pid>>8) & 0x1f
	p[2] = byte(pid)
	p[3] = 0x10 | cc&0x0f
	return p
}

func packets(pid uint16, ccs ...uint8) []byte {
	var b bytes.Buffer
	for _, cc := range ccs {
		b.Write(tsPacket(pid, cc))
	}
	return b.Bytes()
}

func TestPacketCounter(t *testing.T) {
	teiPacket := tsPacket(0x100, 3)
	teiPacket[1] |= 0x80

	discontinuity := tsPacket(0x100, 9)
	discontinuity[3] = 0x30 | 9
	discontinuity[4] = 1
	discontinuity[5] = 0x80

	tests := []struct {
		name  string
		input []byte
		want  PacketStats
	}{
		{"continuous", packets(0x100, 0, 1, 2, 3), PacketStats{Packets: 4}},
		{"counter wraps", packets(0x100, 14, 15, 0, 1), PacketStats{Packets: 4}},
		{"gap is a drop", packets(0x100, 0, 1, 5, 6), PacketStats{Packets: 4, Drops: 1}},
		{"duplicate allowed", packets(0x100, 0, 1, 1, 2), PacketStats{Packets: 4}},
		{"pids tracked separately", append(packets(0x100, 0, 1), packets(0x200, 7, 8)...), PacketStats{Packets: 4}},
		{"null packets ignored", append(packets(0x100, 0), append(packets(tsNullPID, 5, 9), packets(0x100, 1)...)...), PacketStats{Packets: 4}},
		{"transport error", append(packets(0x100, 0, 1, 2), teiPacket...), PacketStats{Packets: 4, Errors: 1}},
		{"discontinuity indicator", append(packets(0x100, 0, 1), append(discontinuity, packets(0x100, 10)...)...), PacketStats{Packets: 4}},
		{"lost sync", append(append(packets(0x100, 0), 0x00, 0x01, 0x02), packets(0x100, 1)...), PacketStats{Packets: 2, Errors: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newPacketCounter()
			n, err := c.Write(tt.input)
			assert.NoError(t, err)
			assert.Equal(t, len(tt.input), n)
			assert.Equal(t, tt.want, c.Stats())
		})
	}
}

func TestPacketCounter_SplitWrites(t *testing.T) {
	data := packets(0x100, 0, 1, 2, 4)
	c := newPacketCounter()
	for _, chunk := range [][]byte{data[:100], data[100:101], data[101:500], data[500:]} {
		_, _ = c.Write(chunk)
	}
	assert.Equal(t, PacketStats{Packets: 4, Drops: 1}, c.Stats())
}
