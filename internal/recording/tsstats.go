// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package recording

import "sync/atomic"

const (
	tsPacketSize = 188
	tsSyncByte   = 0x47
	tsNullPID    = 0x1fff
)

// PacketStats is the MPEG-TS accounting of one recording.
type PacketStats struct {
	Packets int64 `json:"packets"`
	Drops   int64 `json:"drops"`
	Errors  int64 `json:"errors"`
}

// packetCounter is an io.Writer that parses the transport stream passing
// through it. A packet with the transport error indicator set counts as an
// error; a continuity counter gap counts as a drop. Lost sync counts as one
// error per resync.
type packetCounter struct {
	packets atomic.Int64
	drops   atomic.Int64
	errors  atomic.Int64

	cc      map[uint16]uint8
	partial []byte
	synced  bool
}

func newPacketCounter() *packetCounter {
	return &packetCounter{cc: make(map[uint16]uint8), synced: true}
}

func (c *packetCounter) Write(p []byte) (int, error) {
	n := len(p)
	if len(c.partial) > 0 {
		need := tsPacketSize - len(c.partial)
		if len(p) < need {
			c.partial = append(c.partial, p...)
			return n, nil
		}
		c.partial = append(c.partial, p[:need]...)
		p = p[need:]
		c.packet(c.partial)
		c.partial = c.partial[:0]
	}

	for len(p) > 0 {
		if p[0] != tsSyncByte {
			if c.synced {
				c.errors.Add(1)
				c.synced = false
			}
			p = p[1:]
			continue
		}
		if len(p) < tsPacketSize {
			c.partial = append(c.partial, p...)
			break
		}
		c.packet(p[:tsPacketSize])
		p = p[tsPacketSize:]
	}
	return n, nil
}

func (c *packetCounter) packet(pkt []byte) {
	if pkt[0] != tsSyncByte {
		c.errors.Add(1)
		c.synced = false
		return
	}
	c.synced = true
	c.packets.Add(1)

	if pkt[1]&0x80 != 0 {
		c.errors.Add(1)
		return
	}
	pid := uint16(pkt[1]&0x1f)<<8 | uint16(pkt[2])
	if pid == tsNullPID {
		return
	}

	afc := (pkt[3] >> 4) & 0x3
	cc := pkt[3] & 0x0f
	hasPayload := afc&0x1 != 0

	// Discontinuity indicator: the counter restarts legitimately.
	if afc&0x2 != 0 && pkt[4] > 0 && pkt[5]&0x80 != 0 {
		c.cc[pid] = cc
		return
	}

	prev, seen := c.cc[pid]
	c.cc[pid] = cc
	if !seen {
		return
	}
	if !hasPayload {
		if cc != prev {
			c.drops.Add(1)
		}
		return
	}
	// One duplicate packet is allowed.
	if cc != prev && cc != (prev+1)&0x0f {
		c.drops.Add(1)
	}
}

// Stats is safe to call while the session writes.
func (c *packetCounter) Stats() PacketStats {
	return PacketStats{
		Packets: c.packets.Load(),
		Drops:   c.drops.Load(),
		Errors:  c.errors.Load(),
	}
}
