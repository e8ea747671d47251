// Copyright © 2019-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package icsseth

import (
	"fmt"

	"github.com/platinasystems/icsseth/layout"
	"github.com/platinasystems/icsseth/shm"
)

// Mem collects the shared regions, indexed by shm.ID.
type Mem [shm.NRegions]*shm.Region

// RegionSizes are the fixed region sizes the firmware images are
// linked against.
var RegionSizes = [shm.NRegions]int{
	shm.SharedCtl: layout.SharedCtlSize,
	shm.Data0:     layout.DataSize,
	shm.Data1:     layout.DataSize,
	shm.PktPool:   layout.PktPoolSize,
	shm.TimerCtl:  layout.TimerCtlSize,
	shm.LinkCtl:   layout.LinkCtlSize,
}

// HeapMem returns a full set of heap-backed regions. The tests and the
// firmware simulator run the whole protocol against these.
func HeapMem() *Mem {
	var m Mem
	for id := shm.ID(0); id < shm.NRegions; id++ {
		m[id] = shm.New(id, RegionSizes[id])
	}
	return &m
}

func (m *Mem) check() error {
	for id := shm.ID(0); id < shm.NRegions; id++ {
		if m[id] == nil {
			return fmt.Errorf("%s: no region", id)
		}
		if m[id].Size() < RegionSizes[id] {
			return fmt.Errorf("%s: size %#x, need %#x",
				id, m[id].Size(), RegionSizes[id])
		}
	}
	return nil
}

// Booter starts and stops the firmware core serving a line port. The
// regions are mapped, zeroed and fully configured before Boot is
// called; a Booter must not touch shared memory itself.
type Booter interface {
	Boot(layout.Port) error
	Halt(layout.Port) error
}

// Handler takes delivery of one drained frame. The buffer is owned by
// the receiver. A non-nil return aborts the drain call that delivered
// it; the frame's ring slot is already consumed either way.
type Handler func(port layout.Port, frame []byte) error

// Config describes one device.
type Config struct {
	Mode layout.Mode

	MacA [6]byte
	MacB [6]byte

	// QueueSizes overrides the mode defaults when non-nil.
	QueueSizes *layout.QueueSizes

	// PcpRxqMap maps 802.1p priorities to host receive queues in
	// the redundancy modes; nil derives the default map from the
	// configured queue depths.
	PcpRxqMap *[layout.NumVlanPcp]uint8

	// HsrMode is the HSR forwarding submode, HsrModeH when zero.
	HsrMode int

	Handler Handler
	Booter  Booter
}

// defaultPcpRxqMap pairs priorities to receive queues, highest PCP on
// the highest-priority usable queue, two PCPs per queue. A queue too
// shallow for even a minimum frame gets no mapping.
func defaultPcpRxqMap(qs *layout.QueueSizes) (m [layout.NumVlanPcp]uint8) {
	next := layout.NumVlanPcp - 1
	for q := layout.Queue1; q <= layout.Queue4; q++ {
		if qs.Host[q] < 2 {
			continue
		}
		for j := next; j >= 0; j-- {
			m[j] = uint8(q)
		}
		next -= 2
	}
	return
}

// rxQueueOrder lists the host queues the firmware can actually fill
// under map m, in priority order. Queue4 is always scanned; it is the
// untagged default.
func rxQueueOrder(m [layout.NumVlanPcp]uint8) []layout.Queue {
	mask := uint(1) << uint(layout.Queue4)
	for _, q := range m {
		mask |= 1 << uint(q)
	}
	var order []layout.Queue
	for q := layout.Queue1; q <= layout.Queue4; q++ {
		if mask&(1<<uint(q)) != 0 {
			order = append(order, q)
		}
	}
	return order
}
