// Copyright © 2019-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package icsseth_test

import (
	"testing"

	"github.com/platinasystems/icsseth"
	"github.com/platinasystems/icsseth/fwsim"
	"github.com/platinasystems/icsseth/layout"
	"github.com/platinasystems/icsseth/shm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRxRoundTrip(t *testing.T) {
	h := newHarness(t, layout.Emac, nil)
	h.open(layout.PortA, layout.PortB)

	_, err := h.dev.Drain(layout.Host, 8)
	assert.Equal(t, icsseth.ErrInvalidPort, err)

	f1 := frame(100, 1)
	f2 := frame(60, 2)
	f3 := frame(layout.MaxFrameLen, 3)
	require.NoError(t, h.peer.ProduceRx(layout.Queue1, f1, fwsim.RxOpts{}))
	require.NoError(t, h.peer.ProduceRx(layout.Queue1, f2, fwsim.RxOpts{}))
	require.NoError(t, h.peer.ProduceRx(layout.Queue2, f3, fwsim.RxOpts{}))

	n, err := h.dev.Drain(layout.PortA, 8)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, [][]byte{f1, f2, f3}, h.rx)
	assert.Equal(t, []layout.Port{layout.PortA, layout.PortA,
		layout.PortA}, h.rxPort)

	// The other port's queues are untouched.
	n, err = h.dev.Drain(layout.PortB, 8)
	require.NoError(t, err)
	assert.Zero(t, n)

	f4 := frame(80, 4)
	require.NoError(t, h.peer.ProduceRx(layout.Queue3, f4, fwsim.RxOpts{}))
	n, err = h.dev.Drain(layout.PortB, 8)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, f4, h.rx[3])
	assert.Equal(t, layout.PortB, h.rxPort[3])

	a := h.dev.Counters(layout.PortA)
	assert.Equal(t, uint64(3), a.RxPackets.Count())
	assert.Equal(t, uint64(100+60+layout.MaxFrameLen), a.RxBytes.Count())
	b := h.dev.Counters(layout.PortB)
	assert.Equal(t, uint64(1), b.RxPackets.Count())
	assert.Equal(t, uint64(80), b.RxBytes.Count())
}

func TestRxQuota(t *testing.T) {
	h := newHarness(t, layout.Emac, nil)
	h.open(layout.PortA)

	var want [][]byte
	for i := 0; i < 5; i++ {
		f := frame(60, byte(i))
		require.NoError(t, h.peer.ProduceRx(layout.Queue1, f, fwsim.RxOpts{}))
		want = append(want, f)
	}

	n, err := h.dev.Drain(layout.PortA, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	n, err = h.dev.Drain(layout.PortA, 8)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, want, h.rx)
}

func TestRxSwitchAttribution(t *testing.T) {
	h := newHarness(t, layout.Switch, nil)
	h.open(layout.PortA, layout.PortB)

	fb := frame(90, 1)
	fa := frame(70, 2)
	require.NoError(t, h.peer.ProduceRx(layout.Queue1, fb,
		fwsim.RxOpts{Port: layout.PortB, Broadcast: true}))
	require.NoError(t, h.peer.ProduceRx(layout.Queue4, fa,
		fwsim.RxOpts{Port: layout.PortA}))

	// Shared host queues: one drain serves both ports, and each
	// frame is charged to its source.
	n, err := h.dev.Drain(layout.PortA, 8)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []layout.Port{layout.PortB, layout.PortA}, h.rxPort)
	assert.Equal(t, [][]byte{fb, fa}, h.rx)

	assert.Equal(t, uint64(1),
		h.dev.Counters(layout.PortA).RxPackets.Count())
	assert.Equal(t, uint64(1),
		h.dev.Counters(layout.PortB).RxPackets.Count())
	assert.Equal(t, uint64(90),
		h.dev.Counters(layout.PortB).RxBytes.Count())
}

func TestRxHsrTagStripped(t *testing.T) {
	h := newHarness(t, layout.Hsr, nil)
	h.open(layout.PortA)

	f := frame(100, 5)
	require.NoError(t, h.peer.ProduceRx(layout.Queue1, f,
		fwsim.RxOpts{Port: layout.PortA, HsrTag: true}))
	n, err := h.dev.Drain(layout.PortA, 8)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, f, h.rx[0])

	// The wire length includes the tag.
	c := h.dev.Counters(layout.PortA)
	assert.Equal(t, uint64(100+layout.RedTagSize), c.RxBytes.Count())

	// Untagged frames pass through unchanged even under HSR.
	f2 := frame(60, 6)
	require.NoError(t, h.peer.ProduceRx(layout.Queue1, f2,
		fwsim.RxOpts{Port: layout.PortA}))
	_, err = h.dev.Drain(layout.PortA, 8)
	require.NoError(t, err)
	assert.Equal(t, f2, h.rx[1])
}

func TestRxShadow(t *testing.T) {
	h := newHarness(t, layout.Switch, nil)
	h.open(layout.PortA, layout.PortB)
	ctl := h.mem[shm.Data1]
	cqd := layout.QueueDesc{R: ctl, Off: layout.SwColQueueDescBase}

	f := frame(200, 6)
	require.NoError(t, h.peer.ProduceRx(layout.Queue2, f,
		fwsim.RxOpts{Port: layout.PortA, Shadow: true}))
	assert.NotEqual(t, cqd.RdPtr(), cqd.WrPtr())
	assert.Equal(t, uint8(layout.Queue2)<<1|1,
		ctl.R8(layout.CollisionStatus))

	n, err := h.dev.Drain(layout.PortA, 8)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, f, h.rx[0])

	// The collision buffer is handed back.
	assert.Equal(t, cqd.RdPtr(), cqd.WrPtr())
	assert.Zero(t, ctl.R8(layout.CollisionStatus))

	f2 := frame(1518, 7)
	require.NoError(t, h.peer.ProduceRx(layout.Queue2, f2,
		fwsim.RxOpts{Port: layout.PortB, Shadow: true}))
	n, err = h.dev.Drain(layout.PortA, 8)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, f2, h.rx[1])
	assert.Equal(t, layout.PortB, h.rxPort[1])
}

func TestRxDesync(t *testing.T) {
	h := newHarness(t, layout.Emac, nil)
	h.open(layout.PortA)
	c := h.dev.Counters(layout.PortA)

	// A descriptor claiming an impossible length costs the whole
	// backlog behind it: the ring realigns on the write pointer.
	f1 := frame(60, 1)
	require.NoError(t, h.peer.ProduceRx(layout.Queue1, f1, fwsim.RxOpts{}))
	h.peer.ProduceRxRaw(layout.Queue1, layout.PacketInfo{Length: 2000}.Word(), 1)
	require.NoError(t, h.peer.ProduceRx(layout.Queue1, frame(60, 2),
		fwsim.RxOpts{}))

	n, err := h.dev.Drain(layout.PortA, 8)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, uint64(1), c.RxLengthErrors.Count())

	// Realigned: fresh traffic flows again.
	f3 := frame(60, 3)
	require.NoError(t, h.peer.ProduceRx(layout.Queue1, f3, fwsim.RxOpts{}))
	n, err = h.dev.Drain(layout.PortA, 8)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, [][]byte{f1, f3}, h.rx)

	// An empty descriptor where the pointers promise backlog is
	// the same defect.
	h.peer.ProduceRxRaw(layout.Queue1, 0, 1)
	n, err = h.dev.Drain(layout.PortA, 8)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, uint64(2), c.RxLengthErrors.Count())
}

func TestRxDesyncBadPort(t *testing.T) {
	h := newHarness(t, layout.Switch, nil)
	h.open(layout.PortA, layout.PortB)

	// Switch descriptors must name a line port as the source.
	word := layout.PacketInfo{Port: layout.Host, Length: 64}.Word()
	h.peer.ProduceRxRaw(layout.Queue1, word, 2)
	n, err := h.dev.Drain(layout.PortA, 8)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, uint64(1),
		h.dev.Counters(layout.PortA).RxLengthErrors.Count())
}

func TestRxOverflowAccounting(t *testing.T) {
	h := newHarness(t, layout.Emac, nil)
	h.open(layout.PortA)
	c := h.dev.Counters(layout.PortA)

	h.peer.InjectOverflow(layout.Queue1, 3)
	n, err := h.dev.Drain(layout.PortA, 8)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, uint64(1), c.RxOverflows.Count())
	assert.Equal(t, uint64(3), c.RxOverErrors.Count())

	// Acknowledged: a later drain adds nothing.
	_, err = h.dev.Drain(layout.PortA, 8)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), c.RxOverflows.Count())
	assert.Equal(t, uint64(3), c.RxOverErrors.Count())
}

func TestRxOverflowShared(t *testing.T) {
	h := newHarness(t, layout.Switch, nil)
	h.open(layout.PortA, layout.PortB)

	// Drops on a shared queue cannot be attributed; both ports
	// are charged.
	h.peer.InjectOverflow(layout.Queue2, 2)
	_, err := h.dev.Drain(layout.PortA, 8)
	require.NoError(t, err)
	for _, p := range []layout.Port{layout.PortA, layout.PortB} {
		c := h.dev.Counters(p)
		assert.Equal(t, uint64(1), c.RxOverflows.Count(), p)
		assert.Equal(t, uint64(2), c.RxOverErrors.Count(), p)
	}
	_, err = h.dev.Drain(layout.PortB, 8)
	require.NoError(t, err)
	assert.Equal(t, uint64(1),
		h.dev.Counters(layout.PortB).RxOverflows.Count())
}

func TestRxNaturalOverflow(t *testing.T) {
	qs := layout.DefaultQueueSizes(layout.Emac)
	qs.Host = [layout.NumQueues]uint16{8, 8, 8, 8}
	h := newHarness(t, layout.Emac, &qs)
	h.open(layout.PortA)

	var want [][]byte
	for i := 0; i < 4; i++ {
		f := frame(60, byte(i))
		require.NoError(t, h.peer.ProduceRx(layout.Queue1, f, fwsim.RxOpts{}))
		want = append(want, f)
	}
	err := h.peer.ProduceRx(layout.Queue1, frame(60, 9), fwsim.RxOpts{})
	assert.Equal(t, fwsim.ErrNoSpace, err)

	n, err := h.dev.Drain(layout.PortA, 8)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, want, h.rx)
	c := h.dev.Counters(layout.PortA)
	assert.Equal(t, uint64(1), c.RxOverflows.Count())
	assert.Equal(t, uint64(1), c.RxOverErrors.Count())

	// The freed ring takes the retry.
	require.NoError(t, h.peer.ProduceRx(layout.Queue1, frame(60, 9),
		fwsim.RxOpts{}))
	n, err = h.dev.Drain(layout.PortA, 8)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRxHandlerError(t *testing.T) {
	h := newHarness(t, layout.Emac, nil)
	h.open(layout.PortA)

	f1 := frame(60, 1)
	f3 := frame(60, 3)
	require.NoError(t, h.peer.ProduceRx(layout.Queue1, f1, fwsim.RxOpts{}))
	require.NoError(t, h.peer.ProduceRx(layout.Queue1, frame(60, 2),
		fwsim.RxOpts{}))
	require.NoError(t, h.peer.ProduceRx(layout.Queue1, f3, fwsim.RxOpts{}))

	// The rejected frame is consumed but not redelivered.
	h.failOn = 2
	n, err := h.dev.Drain(layout.PortA, 8)
	assert.Equal(t, errReject, err)
	assert.Equal(t, 1, n)

	h.failOn = 0
	n, err = h.dev.Drain(layout.PortA, 8)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, [][]byte{f1, f3}, h.rx)
	assert.Equal(t, uint64(2),
		h.dev.Counters(layout.PortA).RxPackets.Count())
}

func TestRxWraparound(t *testing.T) {
	qs := layout.DefaultQueueSizes(layout.Emac)
	qs.Host = [layout.NumQueues]uint16{8, 8, 8, 8}
	h := newHarness(t, layout.Emac, &qs)
	h.open(layout.PortA)

	for i, n := range []int{96, 96, 128, 60} {
		f := frame(n, byte(0x50+i))
		require.NoError(t, h.peer.ProduceRx(layout.Queue1, f, fwsim.RxOpts{}))
		got, err := h.dev.Drain(layout.PortA, 8)
		require.NoError(t, err)
		assert.Equal(t, 1, got)
		assert.Equal(t, f, h.rx[i], "frame %d", i)
	}
}
