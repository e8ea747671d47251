// Copyright © 2019-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package layout

import "github.com/platinasystems/icsseth/shm"

// Buffer descriptor word. One 32-bit word describes one occupied ring
// position; frames spanning several blocks carry a descriptor only at
// their first position.
//
//   [0]     start-offset: payload begins after the redundancy tag
//   [4]     hsr frame
//   [14]    shadow: payload sits in the collision buffer
//   [17:16] source port
//   [28:18] length in bytes
//   [29]    broadcast
//   [30]    error
const (
	bdStartFlag   = 1 << 0
	bdHsrFrame    = 1 << 4
	bdShadow      = 1 << 14
	bdPortShift   = 16
	bdPortMask    = 0x3 << bdPortShift
	bdLengthShift = 18
	bdLengthMask  = 0x7ff << bdLengthShift
	bdBroadcast   = 1 << 29
	bdError       = 1 << 30
)

// PacketInfo is a decoded buffer descriptor.
type PacketInfo struct {
	StartOffset bool
	Shadow      bool
	Port        Port // source line port on shared queues
	Length      int
	Broadcast   bool
	Error       bool
}

// ParseBD decodes word. The start-offset flag is only meaningful under
// HSR; other modes never tag the payload, so the bit is ignored there.
func ParseBD(word uint32, mode Mode) PacketInfo {
	pi := PacketInfo{
		Shadow:    word&bdShadow != 0,
		Port:      Port(word & bdPortMask >> bdPortShift),
		Length:    int(word & bdLengthMask >> bdLengthShift),
		Broadcast: word&bdBroadcast != 0,
		Error:     word&bdError != 0,
	}
	if mode == Hsr {
		pi.StartOffset = word&bdStartFlag != 0
	}
	return pi
}

// TxBD encodes the descriptor the host writes for an outbound frame.
func TxBD(length int, mode Mode) uint32 {
	word := uint32(length) << bdLengthShift & bdLengthMask
	if mode == Hsr {
		word |= bdHsrFrame
	}
	return word
}

// Word encodes pi as the firmware would for an inbound frame.
func (pi PacketInfo) Word() uint32 {
	word := uint32(pi.Length) << bdLengthShift & bdLengthMask
	word |= uint32(pi.Port) << bdPortShift & bdPortMask
	if pi.StartOffset {
		word |= bdStartFlag
	}
	if pi.Shadow {
		word |= bdShadow
	}
	if pi.Broadcast {
		word |= bdBroadcast
	}
	if pi.Error {
		word |= bdError
	}
	return word
}

// Queue descriptor status bits. BusyM is the peer's write-ownership
// claim; the host's own claim is the separate busy_s byte so that
// neither side needs an atomic to assert its half.
const (
	QStatusBusyM     = 1 << 0
	QStatusCollision = 1 << 1
	QStatusOverflow  = 1 << 2
)

// Queue descriptor record layout.
const (
	qdRdPtr       = 0
	qdWrPtr       = 2
	qdBusyS       = 4
	qdStatus      = 5
	qdMaxFill     = 6
	qdOverflowCnt = 7
)

// QueueDesc accesses one queue descriptor record in place. It carries
// no state beyond the location; every call goes to shared memory.
type QueueDesc struct {
	R   *shm.Region
	Off uint
}

func (d QueueDesc) RdPtr() uint16          { return d.R.R16(d.Off + qdRdPtr) }
func (d QueueDesc) SetRdPtr(v uint16)      { d.R.W16(d.Off+qdRdPtr, v) }
func (d QueueDesc) WrPtr() uint16          { return d.R.R16(d.Off + qdWrPtr) }
func (d QueueDesc) SetWrPtr(v uint16)      { d.R.W16(d.Off+qdWrPtr, v) }
func (d QueueDesc) BusyS() uint8           { return d.R.R8(d.Off + qdBusyS) }
func (d QueueDesc) SetBusyS(v uint8)       { d.R.W8(d.Off+qdBusyS, v) }
func (d QueueDesc) Status() uint8          { return d.R.R8(d.Off + qdStatus) }
func (d QueueDesc) SetStatus(v uint8)      { d.R.W8(d.Off+qdStatus, v) }
func (d QueueDesc) OverflowCnt() uint8     { return d.R.R8(d.Off + qdOverflowCnt) }
func (d QueueDesc) SetOverflowCnt(v uint8) { d.R.W8(d.Off+qdOverflowCnt, v) }

// Init writes the reset state: both pointers at the descriptor array
// base, status clear.
func (d QueueDesc) Init(bd uint16) {
	d.SetRdPtr(bd)
	d.SetWrPtr(bd)
	d.R.W32(d.Off+4, 0)
}
