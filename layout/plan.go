// Copyright © 2019-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package layout

import "fmt"

// BadOffset is returned by offset lookups for out-of-range arguments.
// It can never be a real offset: every planned structure ends below
// the highest region limit.
const BadOffset = 0xffff

// PortBasis anchors one port's geometry. Everything else the plan
// derives follows from these values and the queue sizes.
type PortBasis struct {
	QueueSize    [NumQueues]uint16 // ring depths in blocks
	ColQueueSize uint16            // zero outside switch maps

	Queue1Buffer uint16 // first buffer block, PktPool
	Queue1BD     uint16 // first buffer descriptor
	Queue1Desc   uint16 // queue descriptor table

	ColBuffer uint16
	ColBD     uint16
	ColDesc   uint16
}

// QueueInfo is the geometry record the config writer copies into
// shared memory, one per queue. The firmware walks rings from these
// four values alone.
//
// Desc is overloaded the way the firmware expects: for host and
// firmware-receive sets it locates the queue descriptor; for transmit
// sets it holds the inclusive end of the buffer range instead, which
// is what the transmit microcode wraps on.
type QueueInfo struct {
	Buffer uint16
	Desc   uint16
	BD     uint16
	BDEnd  uint16 // inclusive: BD + (depth-1)*BDSize
}

// ColTxContext and ColRxContext are the fixed-size collision context
// records for one port.
type ColTxContext struct {
	Buffer    uint16
	Buffer2   uint16
	BufferEnd uint16 // inclusive
}

type ColRxContext struct {
	Buffer  uint16
	Buffer2 uint16
	Desc    uint16
	BD      uint16
	BDEnd   uint16
}

// EmacShared locates the emac-only records appended to shared control
// memory after the descriptor end marker: two firmware release words,
// the host receive contexts, the three geometry lookup tables and the
// host queue descriptor table.
type EmacShared struct {
	FwRelease1     uint16
	FwRelease2     uint16
	HostRxContext  uint16 // four 8-byte contexts
	DescOffsetTab  uint16
	BufOffsetTab   uint16
	SizeTab        uint16
	HostQueueDescs uint16 // four 8-byte descriptors
	End            uint16 // exclusive
}

// Plan is a fully derived memory map for one mode and one set of
// queue sizes. All state is per value; two devices with different
// sizes plan independently.
type Plan struct {
	Mode  Mode
	Sizes QueueSizes

	Basis  [NPorts]PortBasis
	Queues [NQueueSets][NumQueues]QueueInfo

	// Collision geometry, switch maps only. TxCol is indexed by
	// line port; ColRx covers the host as well.
	TxCol [NPorts]QueueInfo
	ColTx [NPorts]ColTxContext
	ColRx [NPorts]ColRxContext

	// InitBD holds the reset read/write pointer per queue slot,
	// the collision slot last. Emac leaves the collision slot 0.
	InitBD [NPorts][NumQueues + 1]uint16

	// BDEof marks the first byte past the regular descriptor
	// arrays. Switch maps place collision descriptors there; emac
	// maps place the EmacShared appendix.
	BDEof uint16

	Emac EmacShared
}

// NewPlan derives the memory map. It fails if any depth is zero or
// the aggregate geometry does not fit the fixed region limits; a
// plan that constructs is guaranteed in bounds everywhere.
func NewPlan(m Mode, qs QueueSizes) (*Plan, error) {
	pl := &Plan{Mode: m, Sizes: qs}

	for p := Host; p < NPorts; p++ {
		pb := &pl.Basis[p]
		pb.QueueSize = *qs.of(p)
		if m.HasSwitch() {
			pb.ColQueueSize = ColQueueDepth
		}
		for q := Queue1; q <= Queue4; q++ {
			if pb.QueueSize[q] == 0 {
				return nil, fmt.Errorf("%s %s: zero ring depth", p, q)
			}
		}
	}

	// Regular rings pack contiguously in port then queue order,
	// descriptors from BDBase and buffers from BufferBase. The
	// whole derivation is this one pass; nothing later may move
	// an earlier ring.
	bd, buf := BDBase, BufferBase
	for p := Host; p < NPorts; p++ {
		pb := &pl.Basis[p]
		pb.Queue1BD = uint16(bd)
		pb.Queue1Buffer = uint16(buf)
		for q := Queue1; q <= Queue4; q++ {
			pl.InitBD[p][q] = uint16(bd)
			bd += int(pb.QueueSize[q]) * BDSize
			buf += int(pb.QueueSize[q]) * BlockSize
		}
	}
	pl.BDEof = uint16(bd)

	if m.HasSwitch() {
		if err := pl.fixupSwitch(bd, buf); err != nil {
			return nil, err
		}
	} else {
		if err := pl.fixupEmac(bd, buf); err != nil {
			return nil, err
		}
	}

	pl.initQueues()
	if m.HasSwitch() {
		pl.initCol()
	}
	return pl, nil
}

func (pl *Plan) fixupSwitch(bd, buf int) error {
	if end := bd + int(NPorts)*ColQueueDepth*BDSize; end > BDLimit {
		return fmt.Errorf("descriptors end %#x past limit %#x", end, BDLimit)
	}
	if buf > ColBufferBase {
		return fmt.Errorf("buffers end %#x past collision pool %#x",
			buf, ColBufferBase)
	}

	pb := &pl.Basis[Host]
	pb.Queue1Desc = SwQueueDescBase
	pb.ColBuffer = uint16(ColBufferBase)
	pb.ColBD = pl.BDEof
	pb.ColDesc = SwColQueueDescBase

	for p := PortA; p <= PortB; p++ {
		prev := &pl.Basis[p-1]
		pb := &pl.Basis[p]
		pb.Queue1Desc = prev.Queue1Desc + NumQueues*QDescSize
		pb.ColBuffer = prev.ColBuffer + prev.ColQueueSize*BlockSize
		pb.ColBD = prev.ColBD + prev.ColQueueSize*BDSize
		pb.ColDesc = prev.ColDesc + QDescSize
	}

	for p := Host; p < NPorts; p++ {
		pl.InitBD[p][ColQ] = pl.Basis[p].ColBD
	}
	return nil
}

func (pl *Plan) fixupEmac(bd, buf int) error {
	if buf > PktPoolSize {
		return fmt.Errorf("buffers end %#x past pool %#x", buf, PktPoolSize)
	}

	// Appendix records walk upward from the end marker.
	e := &pl.Emac
	loc := bd
	e.FwRelease1 = uint16(loc)
	loc += 4
	e.FwRelease2 = uint16(loc)
	loc += 4
	e.HostRxContext = uint16(loc)
	loc += 4 * 8
	e.DescOffsetTab = uint16(loc)
	loc += 8
	e.BufOffsetTab = uint16(loc)
	loc += 8
	e.SizeTab = uint16(loc)
	loc += 16
	e.HostQueueDescs = uint16(loc)
	loc += (NumQueues + 1) * QDescSize
	e.End = uint16(loc)
	if loc > BDLimit {
		return fmt.Errorf("descriptors end %#x past limit %#x", loc, BDLimit)
	}

	pl.Basis[Host].Queue1Desc = e.HostQueueDescs
	pl.Basis[PortA].Queue1Desc = PortQueueDescBase
	pl.Basis[PortB].Queue1Desc = PortQueueDescBase
	return nil
}

func (pl *Plan) initQueues() {
	for q := Queue1; q <= Queue4; q++ {
		qi := &pl.Queues[HostQueues][q]
		qi.Buffer = pl.BufferOffset(Host, q)
		qi.Desc = pl.DescOffset(Host, q)
		qi.BD = pl.BDOffset(Host, q)
		qi.BDEnd = qi.BD + (pl.QueueSize(Host, q)-1)*BDSize
	}
	for p := PortA; p <= PortB; p++ {
		for q := Queue1; q <= Queue4; q++ {
			qi := &pl.Queues[TxSet(p)][q]
			qi.Buffer = pl.BufferOffset(p, q)
			qi.Desc = qi.Buffer + (pl.QueueSize(p, q)-1)*BlockSize
			qi.BD = pl.BDOffset(p, q)
			qi.BDEnd = qi.BD + (pl.QueueSize(p, q)-1)*BDSize
		}
	}
	if !pl.Mode.HasSwitch() {
		return
	}
	// Firmware receive sets share the transmit rings but carry a
	// real descriptor offset where the transmit sets carry the
	// buffer end.
	for p := PortA; p <= PortB; p++ {
		for q := Queue1; q <= Queue4; q++ {
			qi := pl.Queues[TxSet(p)][q]
			qi.Desc = pl.DescOffset(p, q)
			pl.Queues[RxSet(p)][q] = qi
		}
	}
}

func (pl *Plan) initCol() {
	for p := Host; p < NPorts; p++ {
		pb := &pl.Basis[p]
		pl.ColRx[p] = ColRxContext{
			Buffer:  pb.ColBuffer,
			Buffer2: pb.ColBuffer,
			Desc:    pb.ColDesc,
			BD:      pb.ColBD,
			BDEnd:   pb.ColBD + (pb.ColQueueSize-1)*BDSize,
		}
		if p == Host {
			continue
		}
		pl.TxCol[p] = QueueInfo{
			Buffer: pb.ColBuffer,
			Desc:   pb.ColDesc,
			BD:     pb.ColBD,
			BDEnd:  pb.ColBD + (pb.ColQueueSize-1)*BDSize,
		}
		pl.ColTx[p] = ColTxContext{
			Buffer:    pb.ColBuffer,
			Buffer2:   pb.ColBuffer,
			BufferEnd: pb.ColBuffer + (pb.ColQueueSize-1)*BlockSize,
		}
	}
}

// QueueSize returns the ring depth in blocks, or BadOffset when the
// port or queue is out of range.
func (pl *Plan) QueueSize(p Port, q Queue) uint16 {
	if !p.Valid() || !q.Valid() {
		return BadOffset
	}
	return pl.Basis[p].QueueSize[q]
}

// BufferOffset returns the PktPool offset of the ring's first block.
func (pl *Plan) BufferOffset(p Port, q Queue) uint16 {
	if !p.Valid() || !q.Valid() {
		return BadOffset
	}
	off := pl.Basis[p].Queue1Buffer
	for i := Queue1; i < q; i++ {
		off += pl.Basis[p].QueueSize[i] * BlockSize
	}
	return off
}

// BDOffset returns the offset of the ring's first buffer descriptor.
func (pl *Plan) BDOffset(p Port, q Queue) uint16 {
	if !p.Valid() || !q.Valid() {
		return BadOffset
	}
	off := pl.Basis[p].Queue1BD
	for i := Queue1; i < q; i++ {
		off += pl.Basis[p].QueueSize[i] * BDSize
	}
	return off
}

// DescOffset returns the offset of the ring's queue descriptor.
func (pl *Plan) DescOffset(p Port, q Queue) uint16 {
	if !p.Valid() || !q.Valid() {
		return BadOffset
	}
	return pl.Basis[p].Queue1Desc + uint16(q)*QDescSize
}

// QueueTableOffset returns the base of the port's queue descriptor
// table; the four descriptors follow at QDescSize strides.
func (pl *Plan) QueueTableOffset(p Port) uint16 {
	if !p.Valid() {
		return BadOffset
	}
	return pl.Basis[p].Queue1Desc
}

// Blocks returns the whole number of pool blocks a frame of n bytes
// occupies.
func Blocks(n int) int {
	return (n + BlockSize - 1) / BlockSize
}
