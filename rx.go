// Copyright © 2019-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package icsseth

import (
	"github.com/platinasystems/icsseth/layout"
	"github.com/platinasystems/icsseth/shm"
)

// emacRxOrder lists each port's host queues, highest priority first.
// The emac image splits the four host queues between the two ports.
var emacRxOrder = [layout.NPorts][]layout.Queue{
	layout.PortA: {layout.Queue1, layout.Queue2},
	layout.PortB: {layout.Queue3, layout.Queue4},
}

// Drain hands up to quota received frames to the handler and reports
// how many were delivered. In the switch modes the host queues are
// shared and frames are attributed to their source port, so a Drain
// on either port serves both. A handler error aborts the call; the
// frame it rejected is already consumed and is not redelivered.
func (d *Dev) Drain(p layout.Port, quota int) (int, error) {
	if !p.Line() {
		return 0, ErrInvalidPort
	}
	order := emacRxOrder[p]
	if d.mode.HasSwitch() {
		order = d.swRxOrder
	}

	shared := d.mem[shm.SharedCtl]
	used := 0
	for _, q := range order {
		qd := d.rxQueueDesc(q)
		qi := d.plan.Queues[layout.HostQueues][q]

		// Overflow accounting. On shared queues the drops
		// cannot be attributed, so both ports get charged.
		if qd.Status()&layout.QStatusOverflow != 0 {
			d.ports[p].stats.RxOverflows.Inc()
			if d.mode.HasSwitch() {
				d.ports[p.Other()].stats.RxOverflows.Inc()
			}
			qd.SetStatus(qd.Status() &^ layout.QStatusOverflow)
		}
		if n := qd.OverflowCnt(); n > 0 {
			d.ports[p].stats.RxOverErrors.Add(uint64(n))
			if d.mode.HasSwitch() {
				d.ports[p.Other()].stats.RxOverErrors.Add(uint64(n))
			}
			qd.SetOverflowCnt(0)
		}

		rd := qd.RdPtr()
		wr := qd.WrPtr()
		for rd != wr || shared.R32(uint(rd)) != 0 {
			pi := layout.ParseBD(shared.R32(uint(rd)), d.mode)

			dst := p
			bad := pi.Length == 0 || pi.Length > d.mode.MaxFrameLen()
			if d.mode.HasSwitch() {
				if pi.Port.Line() {
					dst = pi.Port
				} else {
					bad = true
				}
			}
			if bad {
				// A descriptor like this would either
				// wedge the ring or walk the pointer off
				// it. Drop the queue's whole backlog and
				// realign on the firmware write pointer.
				d.ports[p].stats.RxLengthErrors.Inc()
				shared.W32(uint(rd), 0)
				qd.SetRdPtr(wr)
				break
			}

			update := rd
			frame := d.rxFrame(&update, pi, qi)

			// Clear the consumed descriptor so a stale one
			// can never pass for a fresh frame.
			shared.W32(uint(rd), 0)
			qd.SetRdPtr(update)
			rd = update

			if pi.Shadow {
				// The frame sat in the collision buffer;
				// hand the buffer back.
				cqd := d.hostColqDesc()
				cqd.SetWrPtr(cqd.RdPtr())
				d.mem[shm.Data1].W8(layout.CollisionStatus, 0)
			}

			if err := d.handler(dst, frame); err != nil {
				return used, err
			}
			d.ports[dst].stats.RxPackets.Inc()
			d.ports[dst].stats.RxBytes.Add(uint64(pi.Length))
			used++
			if used >= quota {
				return used, nil
			}
		}
	}
	return used, nil
}

// rxFrame copies one frame out of the pool and advances rd past it.
// Shadow frames sit flat in the host collision buffer; only their
// ring positions wrap.
func (d *Dev) rxFrame(rd *uint16, pi layout.PacketInfo, qi layout.QueueInfo) []byte {
	count := int(qi.BDEnd-qi.BD)/layout.BDSize + 1
	readBlock := ringBlock(qi, *rd)
	update := readBlock + layout.Blocks(pi.Length)
	wrapped := false
	if update >= count {
		update %= count
		wrapped = true
	}
	*rd = qi.BD + uint16(update)*layout.BDSize

	start := 0
	if pi.StartOffset {
		start = layout.RedTagSize
	}
	frame := make([]byte, pi.Length-start)

	pool := d.mem[shm.PktPool]
	var src uint
	if pi.Shadow {
		src = uint(d.plan.Basis[layout.Host].ColBuffer)
	} else {
		src = uint(qi.Buffer) + uint(readBlock)*layout.BlockSize
	}
	src += uint(start)

	if !wrapped {
		pool.CopyOut(src, frame)
		return frame
	}
	n := (count - readBlock) * layout.BlockSize
	if pi.Length < n {
		n = pi.Length
	}
	n -= start
	pool.CopyOut(src, frame[:n])
	if pi.Shadow {
		pool.CopyOut(src+uint(n), frame[n:])
	} else {
		pool.CopyOut(uint(qi.Buffer), frame[n:])
	}
	return frame
}

func (d *Dev) rxQueueDesc(q layout.Queue) layout.QueueDesc {
	r := d.mem[shm.SharedCtl]
	if d.mode.HasSwitch() {
		r = d.mem[shm.Data1]
	}
	return layout.QueueDesc{R: r, Off: uint(d.plan.DescOffset(layout.Host, q))}
}

func (d *Dev) hostColqDesc() layout.QueueDesc {
	return layout.QueueDesc{
		R:   d.mem[shm.Data1],
		Off: uint(d.plan.Basis[layout.Host].ColDesc),
	}
}
