// Copyright © 2019-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package icsseth

import (
	"encoding/binary"
	"fmt"

	"github.com/platinasystems/icsseth/layout"
	"github.com/platinasystems/icsseth/shm"
)

// TxQueue picks the transmit queue for frame. The switch images
// schedule by 802.1p priority; the emac image runs one service level
// per port, so everything rides the default queue there.
func (d *Dev) TxQueue(frame []byte) layout.Queue {
	if !d.mode.HasSwitch() {
		return layout.Queue4
	}
	if len(frame) < 16 || binary.BigEndian.Uint16(frame[12:]) != 0x8100 {
		return layout.Queue4
	}
	pcp := int(binary.BigEndian.Uint16(frame[14:]) >> 13)
	return layout.DefaultPcpTxQueue(pcp)
}

// Send enqueues one frame on a transmit ring of p. Short frames are
// padded to the Ethernet minimum before being measured against the
// ring. In the switch modes a ring the firmware holds busy falls back
// to the port's collision queue; ErrBusy means that was taken too and
// the frame is dropped. ErrNoBufferSpace leaves nothing consumed and
// is worth retrying after a Kick.
func (d *Dev) Send(frame []byte, p layout.Port, q layout.Queue) error {
	if !p.Line() || !q.Valid() {
		return ErrInvalidPort
	}
	if !d.Link(p) {
		return ErrLinkDown
	}
	if len(frame) > d.mode.MaxFrameLen() {
		return ErrFrameTooLong
	}
	if len(frame) < layout.MinFrameLen {
		pad := make([]byte, layout.MinFrameLen)
		copy(pad, frame)
		frame = pad
	}

	pl := d.plan
	qi := pl.Queues[layout.TxSet(p)][q]
	var bdr *shm.Region
	var qd layout.QueueDesc
	if d.mode.HasSwitch() {
		bdr = d.mem[shm.SharedCtl]
		qd = layout.QueueDesc{R: d.mem[shm.Data1], Off: uint(pl.DescOffset(p, q))}
	} else {
		dram := d.dataRegion(p)
		bdr = dram
		qd = layout.QueueDesc{R: dram, Off: uint(pl.DescOffset(p, q))}
	}

	stats := &d.ports[p].stats
	colq := false
	if d.mode.HasSwitch() {
		colStatus := uint(layout.CollisionStatus) + uint(p)
		if qd.Status()&layout.QStatusBusyM != 0 {
			stats.TxCollisions.Inc()
			if d.mem[shm.Data1].R8(colStatus) != 0 {
				stats.TxCollisionDrops.Inc()
				stats.TxDropped.Inc()
				return ErrBusy
			}
			colq = true
		} else {
			qd.SetBusyS(1)
			if qd.Status()&layout.QStatusBusyM != 0 {
				// Firmware claimed the ring between the
				// check and our claim; back off.
				qd.SetBusyS(0)
				stats.TxCollisions.Inc()
				colq = true
			}
		}
		if colq {
			qi = pl.TxCol[p]
			qd = layout.QueueDesc{R: d.mem[shm.Data1], Off: uint(pl.Basis[p].ColDesc)}
		}
	}

	count := int(qi.BDEnd-qi.BD)/layout.BDSize + 1
	rd := qd.RdPtr()
	wr := qd.WrPtr()
	readBlock := ringBlock(qi, rd)
	writeBlock := ringBlock(qi, wr)

	var free int
	switch {
	case writeBlock > readBlock:
		free = count - writeBlock + readBlock
	case writeBlock < readBlock:
		free = readBlock - writeBlock
	default:
		// Equal pointers: an all-free and an all-full ring look
		// alike. The descriptor word under the pointer breaks
		// the tie; consumers zero what they retire.
		if bdr.R32(uint(wr)) != 0 {
			free = 0
		} else {
			free = count
		}
	}
	if layout.Blocks(len(frame)) > free {
		// Releasing busy_s is harmless where it was never set.
		qd.SetBusyS(0)
		return ErrNoBufferSpace
	}

	update := writeBlock + layout.Blocks(len(frame))
	wrapped := false
	if update >= count {
		update %= count
		wrapped = true
	}

	pool := d.mem[shm.PktPool]
	dst := uint(qi.Buffer) + uint(writeBlock)*layout.BlockSize
	if wrapped {
		n := (count - writeBlock) * layout.BlockSize
		if len(frame) < n {
			n = len(frame)
		}
		pool.CopyIn(dst, frame[:n])
		if colq {
			// The collision buffer is drained whole, not as
			// a ring; the tail continues in place.
			pool.CopyIn(dst+uint(n), frame[n:])
		} else {
			pool.CopyIn(uint(qi.Buffer), frame[n:])
		}
	} else {
		pool.CopyIn(dst, frame)
	}

	bdr.W32(uint(wr), layout.TxBD(len(frame), d.mode))

	// The firmware polls wr_ptr; this write starts transmission.
	qd.SetWrPtr(qi.BD + uint16(update)*layout.BDSize)
	qd.SetBusyS(0)

	if colq {
		d.mem[shm.Data1].W8(uint(layout.CollisionStatus)+uint(p),
			uint8(q)<<1|1)
	}

	stats.TxPackets.Inc()
	stats.TxBytes.Add(uint64(len(frame)))
	return nil
}

// ringBlock maps a ring pointer to its block index. The pointers are
// firmware-written state; one outside the planned range means the two
// sides no longer agree on the memory map and no recovery is safe.
func ringBlock(qi layout.QueueInfo, ptr uint16) int {
	if ptr < qi.BD || ptr > qi.BDEnd || (ptr-qi.BD)%layout.BDSize != 0 {
		panic(fmt.Sprintf("ring pointer %#x outside bd [%#x, %#x]",
			ptr, qi.BD, qi.BDEnd))
	}
	return int(ptr-qi.BD) / layout.BDSize
}
