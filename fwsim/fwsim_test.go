// Copyright © 2019-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fwsim_test

import (
	"testing"

	"github.com/platinasystems/icsseth"
	"github.com/platinasystems/icsseth/fwsim"
	"github.com/platinasystems/icsseth/layout"
	"github.com/platinasystems/icsseth/lre"
	"github.com/platinasystems/icsseth/shm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPeer(t *testing.T, mode layout.Mode) (*icsseth.Mem, *fwsim.Peer, *lre.Supervisor) {
	t.Helper()
	mem := icsseth.HeapMem()
	peer, err := fwsim.New(mem, mode, nil)
	require.NoError(t, err)
	sup := lre.New(mem[shm.SharedCtl], mem[shm.Data0], mem[shm.Data1], mode)
	return mem, peer, sup
}

func TestBootOrdering(t *testing.T) {
	mem, peer, _ := newPeer(t, layout.Switch)

	// Booting over unconfigured memory must fail.
	require.Error(t, peer.Boot(layout.PortA))
	assert.False(t, peer.Booted(layout.PortA))

	// The host queue descriptors are the first state the firmware
	// loads; planting the first one stands for configuration.
	qd := layout.QueueDesc{R: mem[shm.Data1], Off: layout.SwQueueDescBase}
	qd.Init(peer.Plan().Queues[layout.HostQueues][layout.Queue1].BD)

	require.NoError(t, peer.Boot(layout.PortA))
	assert.True(t, peer.Booted(layout.PortA))
	require.NoError(t, peer.Halt(layout.PortA))
	assert.False(t, peer.Booted(layout.PortA))
}

func TestAddNodeRoundTrip(t *testing.T) {
	_, peer, sup := newPeer(t, layout.Hsr)
	sup.InitTables(layout.HsrModeH)
	assert.Empty(t, sup.Nodes())

	n1 := lre.Node{
		Mac:        [6]byte{0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff},
		Type:       lre.Dan,
		Hsr:        true,
		Dup:        1,
		RxA:        100,
		RxB:        90,
		SupRxA:     7,
		SupRxB:     6,
		SeenSup:    3,
		SeenA:      1,
		SeenB:      2,
		LineIdErrB: 4,
	}
	idx, err := peer.AddNode(n1)
	require.NoError(t, err)
	assert.Equal(t, 1, idx)

	n2 := lre.Node{Mac: [6]byte{2, 0x46, 0x8a, 0, 0, 1}, Type: lre.SanA}
	idx, err = peer.AddNode(n2)
	require.NoError(t, err)
	assert.Equal(t, 2, idx)

	n1.Index, n2.Index = 1, 2
	assert.Equal(t, []lre.Node{n1, n2}, sup.Nodes())
	assert.Equal(t, uint32(2), sup.Stats().Nodes)
}

func TestAddNodeTableFull(t *testing.T) {
	_, peer, sup := newPeer(t, layout.Prp)
	sup.InitTables(0)

	for i := 0; i < layout.NodeTableMax; i++ {
		n := lre.Node{
			Mac:  [6]byte{2, 0, 0, 0, byte(i >> 8), byte(i)},
			Type: lre.Dan,
		}
		idx, err := peer.AddNode(n)
		require.NoError(t, err)
		require.Equal(t, i+1, idx)
	}
	_, err := peer.AddNode(lre.Node{Mac: [6]byte{2, 0, 0, 0, 0xff, 0xff}})
	assert.Equal(t, fwsim.ErrTableFull, err)

	st := sup.Stats()
	assert.Equal(t, uint32(layout.NodeTableMax), st.Nodes)
	assert.Equal(t, uint32(1), st.NodeTableFull)
	assert.Len(t, sup.Nodes(), layout.NodeTableMax)
}

func TestCountRx(t *testing.T) {
	_, peer, sup := newPeer(t, layout.Hsr)
	sup.InitTables(layout.HsrModeH)

	peer.CountRx(layout.PortA)
	peer.CountRx(layout.PortA)
	peer.CountRx(layout.PortB)

	st := sup.Stats()
	assert.Equal(t, uint32(2), st.RxA)
	assert.Equal(t, uint32(1), st.RxB)
}
