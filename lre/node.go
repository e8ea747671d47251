// Copyright © 2019-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package lre

import (
	"fmt"

	"github.com/platinasystems/icsseth/layout"
)

// NodeType classifies a remote station by how it attaches to the
// redundant network.
type NodeType int

const (
	SanA NodeType = iota // singly attached, lane A
	SanB                 // singly attached, lane B
	SanAB                // singly attached, seen on both lanes
	Dan                  // doubly attached
	RedBox               // redundancy box
	Vdan                 // virtual node behind a redbox
)

var nodeTypeStrings = map[NodeType]string{
	SanA:   "san-a",
	SanB:   "san-b",
	SanAB:  "san-ab",
	Dan:    "dan",
	RedBox: "redbox",
	Vdan:   "vdan",
}

func (t NodeType) String() string {
	if s, ok := nodeTypeStrings[t]; ok {
		return s
	}
	return fmt.Sprintf("node-type(%d)", int(t))
}

// Node is one live remote station entry from the firmware's table.
// The host only ever reads these; learning, aging and eviction all
// happen on the firmware side.
type Node struct {
	Index int
	Mac   [6]byte

	Type NodeType
	Hsr  bool  // learned from tagged HSR traffic
	Dup  uint8 // duplicate handling observed for this station

	// Per-lane frame counts and supervision frame counts.
	RxA, RxB       uint32
	SupRxA, SupRxB uint16

	// Last-seen ages in maintenance ticks.
	SeenSup, SeenA, SeenB uint16

	// PRP frames whose trailer named the wrong lane.
	LineIdErrA, LineIdErrB uint16
}

func (n Node) String() string {
	return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x %s rx %d/%d",
		n.Mac[0], n.Mac[1], n.Mac[2], n.Mac[3], n.Mac[4], n.Mac[5],
		n.Type, n.RxA, n.RxB)
}

// macSwizzle maps entry byte positions to display order. The firmware
// stores the address word-swapped; the mapping is its own inverse, so
// it also serves for writing entries.
var macSwizzle = [6]int{3, 2, 1, 0, 5, 4}

// Nodes decodes the live node table in index order. The index array
// brackets its sorted entries with a zero guard in front and a
// past-the-end guard behind; entries not marked valid are skipped.
func (s *Supervisor) Nodes() []Node {
	var nodes []Node
	for i := uint(0); i < layout.IndexArrayBytes; i++ {
		idx := int(s.sram.R8(layout.IndexArrayBase + i))
		if idx == 0 {
			continue
		}
		if idx > layout.NodeTableMax {
			break
		}
		if n, ok := s.node(idx); ok {
			nodes = append(nodes, n)
		}
	}
	return nodes
}

func (s *Supervisor) node(idx int) (Node, bool) {
	off := uint(layout.NodeTableBase + idx*layout.NodeTableEntrySize)
	if s.sram.R8(off+6)&1 == 0 {
		return Node{}, false
	}
	var n Node
	n.Index = idx
	for i := range n.Mac {
		n.Mac[i] = s.sram.R8(off + uint(macSwizzle[i]))
	}
	status := s.sram.R8(off + 7)
	n.Dup = status & 0x3
	n.Type = NodeType(status >> 2 & 0x7)
	n.Hsr = status&(1<<5) != 0
	n.RxA = s.sram.R32(off + 8)
	n.RxB = s.sram.R32(off + 12)
	n.SupRxA = s.sram.R16(off + 16)
	n.SupRxB = s.sram.R16(off + 18)
	n.SeenSup = s.sram.R16(off + 20)
	n.SeenA = s.sram.R16(off + 22)
	n.SeenB = s.sram.R16(off + 24)
	n.LineIdErrA = s.sram.R16(off + 26)
	n.LineIdErrB = s.sram.R16(off + 28)
	return n, true
}
