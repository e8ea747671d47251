// Copyright © 2019-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package icsseth drives the dual EMAC / switch / HSR / PRP Ethernet
// subsystem implemented by ICSS PRU firmware. The host and firmware
// share a set of small memories holding buffer descriptor rings,
// queue descriptors, frame buffers and redundancy tables; this
// package plans that layout, writes the configuration the firmware
// expects, and runs the host side of the transmit and receive
// protocols. Firmware load and start is delegated to a Booter.
package icsseth

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/platinasystems/icsseth/layout"
	"github.com/platinasystems/icsseth/lre"
	"github.com/platinasystems/icsseth/shm"
)

type portState struct {
	mac   [6]byte
	link  uint32
	kick  chan struct{}
	stats Counters
	saved PortStats
}

// Dev is one ICSS Ethernet subsystem: two line ports sharing a
// firmware memory plan. Send and Drain may be called concurrently
// for distinct ports; per-port calls are not reentrant.
type Dev struct {
	mode      layout.Mode
	plan      *layout.Plan
	mem       *Mem
	handler   Handler
	booter    Booter
	hsrMode   int
	pcpRxqMap [layout.NumVlanPcp]uint8
	swRxOrder []layout.Queue
	sup       *lre.Supervisor
	lreSaved  lre.Stats

	mu         sync.Mutex
	configured uint8
	ports      [layout.NPorts]portState
}

// New plans the shared memory layout and binds it to mem. Nothing is
// written to the regions until Open.
func New(mem *Mem, cfg *Config) (*Dev, error) {
	if cfg.Handler == nil {
		return nil, fmt.Errorf("no frame handler")
	}
	if err := mem.check(); err != nil {
		return nil, err
	}
	qs := layout.DefaultQueueSizes(cfg.Mode)
	if cfg.QueueSizes != nil {
		qs = *cfg.QueueSizes
	}
	plan, err := layout.NewPlan(cfg.Mode, qs)
	if err != nil {
		return nil, err
	}
	hsrMode := cfg.HsrMode
	if hsrMode == 0 {
		hsrMode = layout.HsrModeH
	}
	if hsrMode < layout.HsrModeH || hsrMode > layout.HsrModeM {
		return nil, fmt.Errorf("hsr mode %d: out of range", hsrMode)
	}
	d := &Dev{
		mode:    cfg.Mode,
		plan:    plan,
		mem:     mem,
		handler: cfg.Handler,
		booter:  cfg.Booter,
		hsrMode: hsrMode,
	}
	d.ports[layout.PortA].mac = cfg.MacA
	d.ports[layout.PortB].mac = cfg.MacB
	for p := layout.PortA; p < layout.NPorts; p++ {
		d.ports[p].kick = make(chan struct{}, 1)
	}
	if cfg.PcpRxqMap != nil {
		for pcp, q := range cfg.PcpRxqMap {
			if q > uint8(layout.Queue4) {
				return nil, fmt.Errorf(
					"pcp %d: rx queue %d: out of range",
					pcp, q)
			}
		}
		d.pcpRxqMap = *cfg.PcpRxqMap
	} else {
		d.pcpRxqMap = defaultPcpRxqMap(&qs)
	}
	d.swRxOrder = rxQueueOrder(d.pcpRxqMap)
	if cfg.Mode.HasRed() {
		d.sup = lre.New(mem[shm.SharedCtl], mem[shm.Data0],
			mem[shm.Data1], cfg.Mode)
	}
	return d, nil
}

func (d *Dev) Mode() layout.Mode    { return d.mode }
func (d *Dev) Plan() *layout.Plan   { return d.plan }
func (d *Dev) Mem() *Mem            { return d.mem }
func (d *Dev) Lre() *lre.Supervisor { return d.sup }

// Counters returns the host-side counters of p. They accumulate until
// the device itself is dropped; Close does not reset them.
func (d *Dev) Counters(p layout.Port) *Counters {
	if !p.Line() {
		return nil
	}
	return &d.ports[p].stats
}

// Mac returns the station address configured for p.
func (d *Dev) Mac(p layout.Port) [6]byte {
	if !p.Line() {
		return [6]byte{}
	}
	return d.ports[p].mac
}

// SetLink records the carrier state of p. Send fails with ErrLinkDown
// while the link is down; nothing else is gated.
func (d *Dev) SetLink(p layout.Port, up bool) error {
	if !p.Line() {
		return ErrInvalidPort
	}
	var v uint32
	if up {
		v = 1
	}
	atomic.StoreUint32(&d.ports[p].link, v)
	return nil
}

// Link reports the carrier state of p.
func (d *Dev) Link(p layout.Port) bool {
	return p.Line() && atomic.LoadUint32(&d.ports[p].link) != 0
}

// Open configures p and starts its firmware. The first Open writes
// the host configuration shared by both ports; in the switch modes it
// boots both cores, since they run a single switching image.
func (d *Dev) Open(p layout.Port) error {
	if !p.Line() {
		return ErrInvalidPort
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.configured&(1<<uint(p)) != 0 {
		return fmt.Errorf("%s: already open", p)
	}
	first := d.configured == 0
	if first {
		d.hostInit()
	}
	d.portConfig(p)
	if first && d.mode.HasRed() {
		d.pcpRxqMapConfig()
		d.sup.InitTables(d.hsrMode)
		d.sup.SetStats(&d.lreSaved)
	}
	d.writePortStats(p, &d.ports[p].saved)
	if err := d.boot(p, first); err != nil {
		return err
	}
	d.portEnable(p, true)
	if first && d.sup != nil {
		d.sup.Start()
	}
	d.configured |= 1 << uint(p)
	return nil
}

// Close disables p and halts its firmware. The last Close stops the
// redundancy supervisor and snapshots the firmware statistics so a
// later Open continues the counts.
func (d *Dev) Close(p layout.Port) error {
	if !p.Line() {
		return ErrInvalidPort
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.configured&(1<<uint(p)) == 0 {
		return fmt.Errorf("%s: not open", p)
	}
	atomic.StoreUint32(&d.ports[p].link, 0)
	d.portEnable(p, false)
	d.configured &^= 1 << uint(p)
	last := d.configured == 0
	err := d.halt(p, last)
	if last && d.sup != nil {
		d.sup.Stop()
		d.lreSaved = d.sup.Stats()
	}
	d.ports[p].saved = d.readPortStats(p)
	return err
}

func (d *Dev) boot(p layout.Port, first bool) error {
	if d.booter == nil {
		return nil
	}
	if d.mode.HasSwitch() {
		// One switching image spans both cores.
		if !first {
			return nil
		}
		if err := d.booter.Boot(layout.PortA); err != nil {
			return err
		}
		if err := d.booter.Boot(layout.PortB); err != nil {
			d.booter.Halt(layout.PortA)
			return err
		}
		return nil
	}
	return d.booter.Boot(p)
}

func (d *Dev) halt(p layout.Port, last bool) error {
	if d.booter == nil {
		return nil
	}
	if d.mode.HasSwitch() {
		if !last {
			return nil
		}
		err := d.booter.Halt(layout.PortA)
		if e := d.booter.Halt(layout.PortB); err == nil {
			err = e
		}
		return err
	}
	return d.booter.Halt(p)
}

// Kick requests a transmit retry on p. It never blocks; coalesced
// kicks are fine, the consumer drains the reason, not the count.
func (d *Dev) Kick(p layout.Port) {
	if !p.Line() {
		return
	}
	select {
	case d.ports[p].kick <- struct{}{}:
	default:
	}
}

// Kicks is the retry channel of p, for a sender to select on after
// ErrBusy or ErrNoBufferSpace.
func (d *Dev) Kicks(p layout.Port) <-chan struct{} {
	if !p.Line() {
		return nil
	}
	return d.ports[p].kick
}

func (d *Dev) dataRegion(p layout.Port) *shm.Region {
	if p == layout.PortB {
		return d.mem[shm.Data1]
	}
	return d.mem[shm.Data0]
}
