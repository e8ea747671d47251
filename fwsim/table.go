// Copyright © 2019-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fwsim

import (
	"github.com/platinasystems/icsseth/layout"
	"github.com/platinasystems/icsseth/lre"
	"github.com/platinasystems/icsseth/shm"
)

// macSwizzle maps display byte order to the resident entry order; it
// is its own inverse.
var macSwizzle = [6]int{3, 2, 1, 0, 5, 4}

// AddNode plants one remote station entry the way the firmware
// learner does: the resident record, an index array slot ahead of
// the trailing guard, and the node count. The assigned index is
// returned. n.Index is ignored; the peer allocates upward from 1.
func (p *Peer) AddNode(n lre.Node) (int, error) {
	sram := p.mem[shm.SharedCtl]
	if p.nodes >= layout.NodeTableMax {
		sram.W32(layout.LreCntTableFull,
			sram.R32(layout.LreCntTableFull)+1)
		return 0, ErrTableFull
	}
	p.nodes++
	idx := p.nodes

	off := uint(layout.NodeTableBase + idx*layout.NodeTableEntrySize)
	for i, b := range n.Mac {
		sram.W8(off+uint(macSwizzle[i]), b)
	}
	sram.W8(off+6, 1)
	status := n.Dup&0x3 | uint8(n.Type)<<2&0x1c
	if n.Hsr {
		status |= 1 << 5
	}
	sram.W8(off+7, status)
	sram.W32(off+8, n.RxA)
	sram.W32(off+12, n.RxB)
	sram.W16(off+16, n.SupRxA)
	sram.W16(off+18, n.SupRxB)
	sram.W16(off+20, n.SeenSup)
	sram.W16(off+22, n.SeenA)
	sram.W16(off+24, n.SeenB)
	sram.W16(off+26, n.LineIdErrA)
	sram.W16(off+28, n.LineIdErrB)

	sram.W8(uint(layout.IndexArrayBase)+uint(idx), uint8(idx))
	sram.W8(uint(layout.IndexArrayBase)+uint(idx)+1,
		uint8(layout.NodeTableMax+1))
	sram.W32(layout.LreCntNodes, sram.R32(layout.LreCntNodes)+1)
	return idx, nil
}

// CountRx bumps a lane receive counter for accepted line traffic.
func (p *Peer) CountRx(port layout.Port) {
	off := uint(layout.LreCntRxA)
	if port == layout.PortB {
		off += 4
	}
	sram := p.mem[shm.SharedCtl]
	sram.W32(off, sram.R32(off)+1)
}
