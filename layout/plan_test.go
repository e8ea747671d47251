// Copyright © 2019-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package layout

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSwitchDefaultPlan(t *testing.T) {
	pl, err := NewPlan(Switch, DefaultQueueSizes(Switch))
	require.NoError(t, err)

	// 776 host + 2*388 transmit blocks of descriptors after BDBase.
	assert.Equal(t, uint16(0x0400), pl.Basis[Host].Queue1BD)
	assert.Equal(t, uint16(0x1020), pl.Basis[PortA].Queue1BD)
	assert.Equal(t, uint16(0x1630), pl.Basis[PortB].Queue1BD)
	assert.Equal(t, uint16(0x1c40), pl.BDEof)

	// Collision descriptors fill the space up to the limit exactly.
	assert.Equal(t, uint16(0x1c40), pl.Basis[Host].ColBD)
	assert.Equal(t, uint16(0x1d00), pl.Basis[PortA].ColBD)
	assert.Equal(t, uint16(0x1dc0), pl.Basis[PortB].ColBD)
	assert.Equal(t, BDLimit,
		int(pl.Basis[PortB].ColBD)+ColQueueDepth*BDSize)

	assert.Equal(t, uint16(0x0000), pl.Basis[Host].Queue1Buffer)
	assert.Equal(t, uint16(0x6100), pl.Basis[PortA].Queue1Buffer)
	assert.Equal(t, uint16(0x9180), pl.Basis[PortB].Queue1Buffer)

	// Collision buffers fill the top of the pool.
	assert.Equal(t, uint16(0xee00), pl.Basis[Host].ColBuffer)
	assert.Equal(t, uint16(0xf400), pl.Basis[PortA].ColBuffer)
	assert.Equal(t, uint16(0xfa00), pl.Basis[PortB].ColBuffer)
	assert.Equal(t, PktPoolSize,
		int(pl.Basis[PortB].ColBuffer)+ColQueueDepth*BlockSize)

	assert.Equal(t, uint16(SwQueueDescBase), pl.Basis[Host].Queue1Desc)
	assert.Equal(t, uint16(0x0370), pl.Basis[PortA].Queue1Desc)
	assert.Equal(t, uint16(0x0390), pl.Basis[PortB].Queue1Desc)
	assert.Equal(t, uint16(SwColQueueDescBase), pl.Basis[Host].ColDesc)
	assert.Equal(t, uint16(0x03b8), pl.Basis[PortA].ColDesc)
	assert.Equal(t, uint16(0x03c0), pl.Basis[PortB].ColDesc)

	for p := Host; p < NPorts; p++ {
		assert.Equal(t, pl.Basis[p].ColBD, pl.InitBD[p][ColQ])
	}

	// Transmit sets carry the buffer end where receive sets carry
	// the descriptor offset; geometry is otherwise shared.
	txq1 := pl.Queues[PortATx][Queue1]
	assert.Equal(t, uint16(0x6100), txq1.Buffer)
	assert.Equal(t, uint16(0x6d00), txq1.Desc)
	rxq1 := pl.Queues[PortARx][Queue1]
	assert.Equal(t, txq1.Buffer, rxq1.Buffer)
	assert.Equal(t, txq1.BD, rxq1.BD)
	assert.Equal(t, pl.DescOffset(PortA, Queue1), rxq1.Desc)
}

func TestEmacDefaultPlan(t *testing.T) {
	pl, err := NewPlan(Emac, DefaultQueueSizes(Emac))
	require.NoError(t, err)

	assert.Equal(t, uint16(0x1c40), pl.BDEof)

	e := pl.Emac
	assert.Equal(t, uint16(0x1c40), e.FwRelease1)
	assert.Equal(t, uint16(0x1c44), e.FwRelease2)
	assert.Equal(t, uint16(0x1c48), e.HostRxContext)
	assert.Equal(t, uint16(0x1c68), e.DescOffsetTab)
	assert.Equal(t, uint16(0x1c70), e.BufOffsetTab)
	assert.Equal(t, uint16(0x1c78), e.SizeTab)
	assert.Equal(t, uint16(0x1c88), e.HostQueueDescs)
	assert.Equal(t, uint16(0x1cb0), e.End)
	assert.LessOrEqual(t, int(e.End), BDLimit)

	assert.Equal(t, e.HostQueueDescs, pl.Basis[Host].Queue1Desc)
	assert.Equal(t, uint16(PortQueueDescBase), pl.Basis[PortA].Queue1Desc)
	assert.Equal(t, uint16(PortQueueDescBase), pl.Basis[PortB].Queue1Desc)

	// No collision geometry outside the switch maps.
	assert.Zero(t, pl.Basis[Host].ColQueueSize)
	assert.Zero(t, pl.Basis[PortA].ColBD)
	assert.Zero(t, pl.InitBD[PortA][ColQ])
}

// The packing invariant: descriptor and buffer ranges are contiguous
// in port then queue order, so consecutive offsets differ by exactly
// the prior ring's extent and nothing can overlap.
func TestPlanOffsetsContiguous(t *testing.T) {
	for _, m := range []Mode{Emac, Switch, Hsr, Prp} {
		qs := DefaultQueueSizes(m)
		pl, err := NewPlan(m, qs)
		require.NoError(t, err, m)

		bd, buf := BDBase, BufferBase
		for p := Host; p < NPorts; p++ {
			for q := Queue1; q <= Queue4; q++ {
				assert.Equal(t, uint16(bd), pl.BDOffset(p, q),
					"%s %s %s", m, p, q)
				assert.Equal(t, uint16(buf), pl.BufferOffset(p, q),
					"%s %s %s", m, p, q)
				assert.Equal(t, uint16(bd), pl.InitBD[p][q])
				n := int(pl.QueueSize(p, q))
				bd += n * BDSize
				buf += n * BlockSize
			}
		}
		assert.Equal(t, uint16(bd), pl.BDEof, m)
	}
}

func TestPlanRejectsBadGeometry(t *testing.T) {
	qs := DefaultQueueSizes(Switch)
	qs.PortA[2] = 0
	_, err := NewPlan(Switch, qs)
	assert.Error(t, err)

	// The switch defaults use the descriptor space exactly; one
	// more block pushes the collision arrays past the limit.
	qs = DefaultQueueSizes(Switch)
	qs.Host[0]++
	_, err = NewPlan(Switch, qs)
	assert.Error(t, err)

	// Emac keeps its appendix below the same limit.
	qs = DefaultQueueSizes(Emac)
	qs.Host[0] = 311
	_, err = NewPlan(Emac, qs)
	assert.Error(t, err)
	qs.Host[0] = 310
	_, err = NewPlan(Emac, qs)
	assert.NoError(t, err)
}

func TestPlanOutOfRangeSentinel(t *testing.T) {
	pl, err := NewPlan(Switch, DefaultQueueSizes(Switch))
	require.NoError(t, err)

	assert.Equal(t, uint16(BadOffset), pl.BufferOffset(NPorts, Queue1))
	assert.Equal(t, uint16(BadOffset), pl.BDOffset(Port(-1), Queue1))
	assert.Equal(t, uint16(BadOffset), pl.DescOffset(Host, ColQ))
	assert.Equal(t, uint16(BadOffset), pl.QueueSize(Host, Queue(7)))
	assert.Equal(t, uint16(BadOffset), pl.QueueTableOffset(Port(9)))
	assert.NotEqual(t, uint16(BadOffset), pl.DescOffset(PortB, Queue4))
}

func TestBlocks(t *testing.T) {
	assert.Equal(t, 1, Blocks(1))
	assert.Equal(t, 1, Blocks(32))
	assert.Equal(t, 2, Blocks(33))
	assert.Equal(t, 2, Blocks(MinFrameLen))
	assert.Equal(t, 48, Blocks(MaxFrameLenRed))
}
