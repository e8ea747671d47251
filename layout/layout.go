// Copyright © 2019-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package layout derives the shared-memory map an ICSS PRU Ethernet
// firmware and its host must agree on. The firmware carries the same
// offsets compiled in; there is no runtime negotiation, so the
// recurrence implemented here is a binary compatibility contract.
package layout

import "fmt"

// Port is a logical endpoint of the subsystem. Host is the ARM side;
// PortA and PortB are the two line ports, each served by one PRU core.
type Port int

const (
	Host Port = iota
	PortA
	PortB
	NPorts
)

var portStrings = [NPorts]string{"host", "port-a", "port-b"}

func (p Port) String() string {
	if !p.Valid() {
		return fmt.Sprintf("port(%d)", int(p))
	}
	return portStrings[p]
}

func (p Port) Valid() bool { return p >= Host && p < NPorts }

// Line reports whether p is one of the two line ports.
func (p Port) Line() bool { return p == PortA || p == PortB }

// Other returns the companion line port. Shared host queues attribute
// some counters to both line ports; this picks the peer.
func (p Port) Other() Port {
	switch p {
	case PortA:
		return PortB
	case PortB:
		return PortA
	}
	return p
}

// Queue is a priority queue id. Queue1 is the highest priority and is
// visited first on receive; Queue4 is the default lowest priority.
// ColQ indexes the collision queue slot in descriptor tables.
type Queue int

const (
	Queue1 Queue = iota
	Queue2
	Queue3
	Queue4
	ColQ

	NumQueues = 4
)

func (q Queue) String() string {
	if q == ColQ {
		return "colq"
	}
	return fmt.Sprintf("q%d", int(q)+1)
}

func (q Queue) Valid() bool { return q >= Queue1 && q <= Queue4 }

// Mode selects the firmware personality.
type Mode int

const (
	Emac   Mode = iota // two independent MACs
	Switch             // cut-through switch
	Hsr                // IEC 62439-3 clause 5 ring redundancy
	Prp                // IEC 62439-3 clause 4 parallel redundancy
)

var modeStrings = map[Mode]string{
	Emac:   "emac",
	Switch: "switch",
	Hsr:    "hsr",
	Prp:    "prp",
}

func (m Mode) String() string {
	if s, ok := modeStrings[m]; ok {
		return s
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// ModeByName maps a configuration string to a Mode.
func ModeByName(s string) (Mode, error) {
	for m, name := range modeStrings {
		if s == name {
			return m, nil
		}
	}
	return 0, fmt.Errorf("unknown mode %q", s)
}

// HasSwitch reports whether the mode runs the switch memory map:
// shared host receive queues and collision contexts.
func (m Mode) HasSwitch() bool { return m != Emac }

// HasRed reports whether the mode runs a redundancy protocol.
func (m Mode) HasRed() bool { return m == Hsr || m == Prp }

// MaxFrameLen is the longest frame the mode carries. Redundancy modes
// allow slack for the protocol trailer and tag.
func (m Mode) MaxFrameLen() int {
	if m.HasRed() {
		return MaxFrameLenRed
	}
	return MaxFrameLen
}

// QueueSet names one group of four queue geometries. The host set
// serves host receive; the per-port tx sets serve host transmit; the
// per-port rx sets exist only in switch maps and are consumed by the
// firmware alone; the host writes their geometry at config time and
// never touches them again.
type QueueSet int

const (
	HostQueues QueueSet = iota
	PortATx
	PortBTx
	PortARx
	PortBRx
	NQueueSets
)

// TxSet maps a line port to its transmit queue set.
func TxSet(p Port) QueueSet {
	if p == PortB {
		return PortBTx
	}
	return PortATx
}

// RxSet maps a line port to its firmware receive queue set.
func RxSet(p Port) QueueSet {
	if p == PortB {
		return PortBRx
	}
	return PortARx
}

const (
	// BlockSize is the frame pool granularity: rings advance in
	// whole blocks and every length is rounded up to it.
	BlockSize = 32
	// BDSize is one buffer descriptor word.
	BDSize = 4
	// QDescSize is one queue descriptor record.
	QDescSize = 8

	// NumVlanPcp is the number of 802.1p priority code points.
	NumVlanPcp = 8

	MinFrameLen    = 60
	MaxFrameLen    = 1518
	MaxFrameLenRed = 1528

	// RedTagSize is the redundancy tag length skipped on receive
	// when the descriptor start-offset flag is set.
	RedTagSize = 6

	// ColQueueDepth is the fixed collision ring depth in blocks.
	ColQueueDepth = 48
)

// QueueSizes configures ring depths in blocks. Host entries size the
// host receive queues; PortA/PortB entries size that port's transmit
// queues. Collision queues are fixed at ColQueueDepth.
type QueueSizes struct {
	Host  [NumQueues]uint16
	PortA [NumQueues]uint16
	PortB [NumQueues]uint16
}

func (qs *QueueSizes) of(p Port) *[NumQueues]uint16 {
	switch p {
	case PortA:
		return &qs.PortA
	case PortB:
		return &qs.PortB
	}
	return &qs.Host
}

// DefaultQueueSizes returns the stock depths for a mode. The switch
// host defaults weight the outer priorities; the emac host defaults
// split evenly because each line port owns two of the four queues.
func DefaultQueueSizes(m Mode) QueueSizes {
	tx := [NumQueues]uint16{97, 97, 97, 97}
	qs := QueueSizes{PortA: tx, PortB: tx}
	if m.HasSwitch() {
		qs.Host = [NumQueues]uint16{254, 134, 134, 254}
	} else {
		qs.Host = [NumQueues]uint16{194, 194, 194, 194}
	}
	return qs
}

// DefaultPcpTxQueue maps an 802.1p priority to a transmit queue.
func DefaultPcpTxQueue(pcp int) Queue {
	switch {
	case pcp >= 6:
		return Queue1
	case pcp >= 4:
		return Queue2
	case pcp >= 2:
		return Queue3
	}
	return Queue4
}
