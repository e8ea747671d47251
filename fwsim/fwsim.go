// Copyright © 2019-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package fwsim plays the firmware half of the shared-memory protocol
// from plain Go, so the host side can be exercised against a live
// peer without PRU hardware. The peer derives its own memory plan
// from the same inputs; that the two sides then meet over the wire is
// most of what the tests establish.
package fwsim

import (
	"errors"
	"fmt"

	"github.com/platinasystems/icsseth"
	"github.com/platinasystems/icsseth/layout"
	"github.com/platinasystems/icsseth/shm"
)

var (
	ErrBusy      = errors.New("host owns the ring")
	ErrEmpty     = errors.New("ring empty")
	ErrNoSpace   = errors.New("ring full")
	ErrTableFull = errors.New("node table full")
)

// Peer is one simulated firmware instance over a device's regions.
// It is not safe for concurrent use; the protocol it speaks is the
// only synchronization between it and the host side.
type Peer struct {
	mode layout.Mode
	plan *layout.Plan
	mem  *icsseth.Mem

	booted [layout.NPorts]bool
	hsrSeq uint16
	nodes  int
}

// New derives the peer's own memory plan. A nil qs takes the mode's
// defaults, matching what the host side does.
func New(mem *icsseth.Mem, mode layout.Mode, qs *layout.QueueSizes) (*Peer, error) {
	sizes := layout.DefaultQueueSizes(mode)
	if qs != nil {
		sizes = *qs
	}
	pl, err := layout.NewPlan(mode, sizes)
	if err != nil {
		return nil, err
	}
	return &Peer{mode: mode, plan: pl, mem: mem}, nil
}

// Plan exposes the peer's independently derived memory plan.
func (p *Peer) Plan() *layout.Plan { return p.plan }

// Boot lets the peer stand in for the firmware loader. It fails when
// the host configuration the firmware loads at start is not in place
// yet, which pins the configure-before-boot ordering.
func (p *Peer) Boot(port layout.Port) error {
	if p.hostQueue(layout.Queue1).RdPtr() == 0 {
		return fmt.Errorf("%s: boot before configuration", port)
	}
	p.booted[port] = true
	return nil
}

func (p *Peer) Halt(port layout.Port) error {
	p.booted[port] = false
	return nil
}

// Booted reports whether the port's core is up.
func (p *Peer) Booted(port layout.Port) bool { return p.booted[port] }

// Enabled reads the port control byte the host flips around boot and
// halt.
func (p *Peer) Enabled(port layout.Port) bool {
	return p.dram(port).R8(layout.PortControl) != 0
}

// Mac reads the station address the config writer planted.
func (p *Peer) Mac(port layout.Port) (mac [6]byte) {
	p.dram(port).CopyOut(layout.PortMac, mac[:])
	return
}

// TimerFlags reads the maintenance trigger word the supervisor
// refreshes each tick.
func (p *Peer) TimerFlags() uint32 {
	return p.mem[shm.Data1].R32(layout.TimerCheckFlags)
}

// ConsumeTx takes one frame off a transmit ring the way the firmware
// does: claim the ring, recheck the host's claim, then retire the
// head descriptor. ErrBusy means the host won the claim race.
func (p *Peer) ConsumeTx(port layout.Port, q layout.Queue) ([]byte, error) {
	qi := p.plan.Queues[layout.TxSet(port)][q]
	bdr, qd := p.txQueue(port, q)

	qd.SetStatus(qd.Status() | layout.QStatusBusyM)
	if qd.BusyS() != 0 {
		qd.SetStatus(qd.Status() &^ layout.QStatusBusyM)
		return nil, ErrBusy
	}

	rd := qd.RdPtr()
	word := bdr.R32(uint(rd))
	if rd == qd.WrPtr() && word == 0 {
		qd.SetStatus(qd.Status() &^ layout.QStatusBusyM)
		return nil, ErrEmpty
	}

	pi := layout.ParseBD(word, p.mode)
	frame, update := p.readFrame(rd, pi.Length, qi, false)
	bdr.W32(uint(rd), 0)
	qd.SetRdPtr(update)
	qd.SetStatus(qd.Status() &^ layout.QStatusBusyM)
	return frame, nil
}

// ConsumeCollision drains the port's collision queue: one frame,
// flat at the buffer base. The queue is handed back by snapping its
// write pointer and clearing the pending signal, the same way the
// host hands back its own collision queue.
func (p *Peer) ConsumeCollision(port layout.Port) ([]byte, layout.Queue, error) {
	sig := p.mem[shm.Data1].R8(uint(layout.CollisionStatus) + uint(port))
	if sig&1 == 0 {
		return nil, 0, ErrEmpty
	}
	q := layout.Queue(sig >> 1)

	qi := p.plan.TxCol[port]
	qd := layout.QueueDesc{
		R:   p.mem[shm.Data1],
		Off: uint(p.plan.Basis[port].ColDesc),
	}
	bdr := p.mem[shm.SharedCtl]

	rd := qd.RdPtr()
	word := bdr.R32(uint(rd))
	if rd == qd.WrPtr() && word == 0 {
		return nil, 0, ErrEmpty
	}
	pi := layout.ParseBD(word, p.mode)
	frame, _ := p.readFrame(rd, pi.Length, qi, true)
	bdr.W32(uint(rd), 0)
	qd.SetWrPtr(rd)
	p.mem[shm.Data1].W8(uint(layout.CollisionStatus)+uint(port), 0)
	return frame, q, nil
}

// SetTxBusy asserts or drops the firmware's claim on a transmit
// ring, forcing the host onto its collision path.
func (p *Peer) SetTxBusy(port layout.Port, q layout.Queue, on bool) {
	_, qd := p.txQueue(port, q)
	if on {
		qd.SetStatus(qd.Status() | layout.QStatusBusyM)
	} else {
		qd.SetStatus(qd.Status() &^ layout.QStatusBusyM)
	}
}

// RxOpts qualifies a produced frame.
type RxOpts struct {
	Port      layout.Port // source line port, switch maps
	Broadcast bool
	Error     bool
	HsrTag    bool // prepend a redundancy tag, flagged start-offset
	Shadow    bool // payload rides the host collision buffer
}

// ProduceRx fills one host receive slot. A full ring is recorded the
// way the firmware records drops, on the queue's overflow status and
// counter, before ErrNoSpace comes back.
func (p *Peer) ProduceRx(q layout.Queue, frame []byte, o RxOpts) error {
	if len(frame) == 0 {
		return fmt.Errorf("empty frame")
	}
	if o.HsrTag && p.mode != layout.Hsr {
		return fmt.Errorf("hsr tag in %s mode", p.mode)
	}
	if p.mode.HasSwitch() && !o.Port.Line() {
		return fmt.Errorf("%s: not a line port", o.Port)
	}
	payload := frame
	if o.HsrTag {
		payload = append(p.hsrTag(len(frame)), frame...)
	}
	if len(payload) > p.mode.MaxFrameLen() {
		return fmt.Errorf("frame length %d over %s limit",
			len(payload), p.mode)
	}

	qi := p.plan.Queues[layout.HostQueues][q]
	qd := p.hostQueue(q)
	bdr := p.mem[shm.SharedCtl]

	need := layout.Blocks(len(payload))
	if need > ringFree(bdr, qd, qi) {
		qd.SetStatus(qd.Status() | layout.QStatusOverflow)
		qd.SetOverflowCnt(qd.OverflowCnt() + 1)
		return ErrNoSpace
	}

	wr := qd.WrPtr()
	if o.Shadow {
		p.mem[shm.PktPool].CopyIn(
			uint(p.plan.Basis[layout.Host].ColBuffer), payload)
		c := p.plan.ColRx[layout.Host]
		cqi := layout.QueueInfo{BD: c.BD, BDEnd: c.BDEnd}
		cd := p.hostColQueue()
		cd.SetWrPtr(advance(cd.WrPtr(), need, cqi))
		p.mem[shm.Data1].W8(layout.CollisionStatus, uint8(q)<<1|1)
	} else {
		p.writeFrame(wr, payload, qi)
	}

	pi := layout.PacketInfo{
		StartOffset: o.HsrTag,
		Shadow:      o.Shadow,
		Port:        o.Port,
		Length:      len(payload),
		Broadcast:   o.Broadcast,
		Error:       o.Error,
	}
	bdr.W32(uint(wr), pi.Word())
	qd.SetWrPtr(advance(wr, need, qi))
	return nil
}

// ProduceRxRaw plants an arbitrary descriptor word and advances the
// write pointer blocks positions, bypassing all payload handling, so
// tests can present corrupt descriptors.
func (p *Peer) ProduceRxRaw(q layout.Queue, word uint32, blocks int) {
	qi := p.plan.Queues[layout.HostQueues][q]
	qd := p.hostQueue(q)
	wr := qd.WrPtr()
	p.mem[shm.SharedCtl].W32(uint(wr), word)
	qd.SetWrPtr(advance(wr, blocks, qi))
}

// InjectOverflow marks n receive drops on a host queue.
func (p *Peer) InjectOverflow(q layout.Queue, n uint8) {
	qd := p.hostQueue(q)
	qd.SetStatus(qd.Status() | layout.QStatusOverflow)
	qd.SetOverflowCnt(qd.OverflowCnt() + n)
}

// hsrTag builds a plausible six byte tag: ethertype, path and size,
// then a running sequence number.
func (p *Peer) hsrTag(n int) []byte {
	p.hsrSeq++
	size := n + layout.RedTagSize
	return []byte{0x89, 0x2f, byte(size >> 8 & 0xf), byte(size),
		byte(p.hsrSeq >> 8), byte(p.hsrSeq)}
}

// readFrame copies length bytes out of the ring at rd and returns the
// advanced read pointer. Flat sources, the collision buffers, run
// past the ring end instead of wrapping.
func (p *Peer) readFrame(rd uint16, length int, qi layout.QueueInfo, flat bool) ([]byte, uint16) {
	count := int(qi.BDEnd-qi.BD)/layout.BDSize + 1
	block := int(rd-qi.BD) / layout.BDSize
	frame := make([]byte, length)
	pool := p.mem[shm.PktPool]
	src := uint(qi.Buffer) + uint(block)*layout.BlockSize
	n := (count - block) * layout.BlockSize
	if flat || length <= n {
		pool.CopyOut(src, frame)
	} else {
		pool.CopyOut(src, frame[:n])
		pool.CopyOut(uint(qi.Buffer), frame[n:])
	}
	return frame, advance(rd, layout.Blocks(length), qi)
}

// writeFrame copies payload into the ring at the wr block, wrapping
// to the buffer base.
func (p *Peer) writeFrame(wr uint16, payload []byte, qi layout.QueueInfo) {
	count := int(qi.BDEnd-qi.BD)/layout.BDSize + 1
	block := int(wr-qi.BD) / layout.BDSize
	pool := p.mem[shm.PktPool]
	dst := uint(qi.Buffer) + uint(block)*layout.BlockSize
	n := (count - block) * layout.BlockSize
	if len(payload) <= n {
		pool.CopyIn(dst, payload)
		return
	}
	pool.CopyIn(dst, payload[:n])
	pool.CopyIn(uint(qi.Buffer), payload[n:])
}

// ringFree reports writable blocks. Equal pointers fall back to the
// descriptor word under them: consumers zero what they retire, so
// nonzero means full.
func ringFree(bdr *shm.Region, qd layout.QueueDesc, qi layout.QueueInfo) int {
	count := int(qi.BDEnd-qi.BD)/layout.BDSize + 1
	rb := int(qd.RdPtr()-qi.BD) / layout.BDSize
	wb := int(qd.WrPtr()-qi.BD) / layout.BDSize
	switch {
	case wb > rb:
		return count - wb + rb
	case wb < rb:
		return rb - wb
	}
	if bdr.R32(uint(qd.WrPtr())) != 0 {
		return 0
	}
	return count
}

// advance moves a ring pointer by blocks positions.
func advance(ptr uint16, blocks int, qi layout.QueueInfo) uint16 {
	count := int(qi.BDEnd-qi.BD)/layout.BDSize + 1
	b := (int(ptr-qi.BD)/layout.BDSize + blocks) % count
	return qi.BD + uint16(b)*layout.BDSize
}

func (p *Peer) txQueue(port layout.Port, q layout.Queue) (*shm.Region, layout.QueueDesc) {
	off := uint(p.plan.DescOffset(port, q))
	if p.mode.HasSwitch() {
		return p.mem[shm.SharedCtl],
			layout.QueueDesc{R: p.mem[shm.Data1], Off: off}
	}
	dram := p.dram(port)
	return dram, layout.QueueDesc{R: dram, Off: off}
}

func (p *Peer) hostQueue(q layout.Queue) layout.QueueDesc {
	r := p.mem[shm.SharedCtl]
	if p.mode.HasSwitch() {
		r = p.mem[shm.Data1]
	}
	return layout.QueueDesc{R: r, Off: uint(p.plan.DescOffset(layout.Host, q))}
}

func (p *Peer) hostColQueue() layout.QueueDesc {
	return layout.QueueDesc{
		R:   p.mem[shm.Data1],
		Off: uint(p.plan.Basis[layout.Host].ColDesc),
	}
}

func (p *Peer) dram(port layout.Port) *shm.Region {
	if port == layout.PortB {
		return p.mem[shm.Data1]
	}
	return p.mem[shm.Data0]
}
