// Copyright © 2019-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package lre runs the host side of the HSR/PRP redundancy support:
// table initialization, the periodic maintenance trigger the firmware
// acts on, the policy control words, and read access to the node
// table and statistics blocks the firmware maintains.
package lre

import (
	"sync"
	"time"

	"github.com/platinasystems/icsseth/layout"
	"github.com/platinasystems/icsseth/shm"
)

// Supervisor owns the redundancy tables of one device. The firmware
// does all table maintenance itself; the host asserts a trigger word
// every tick telling it which checks to run.
type Supervisor struct {
	sram  *shm.Region // shared control: node table, stats
	data0 *shm.Region // duplicate host table, debug block
	ctl   *shm.Region // control words, trigger, port tables
	mode  layout.Mode
	base  uint32

	mu      sync.Mutex
	mask    uint32
	clear   bool
	stop    chan struct{}
	wg      sync.WaitGroup
	running bool
}

// New binds a supervisor to the shared regions. Nothing is written
// until InitTables.
func New(sram, data0, ctl *shm.Region, mode layout.Mode) *Supervisor {
	base := uint32(layout.TimerNodeTableCheck | layout.TimerHostTableCheck)
	if mode == layout.Hsr {
		base |= layout.TimerPortTableCheck
	}
	return &Supervisor{
		sram:  sram,
		data0: data0,
		ctl:   ctl,
		mode:  mode,
		base:  base,
	}
}

// InitTables writes the reset state of every redundancy structure.
// Runs with the firmware halted, before it is booted.
func (s *Supervisor) InitTables(hsrMode int) {
	s.hostTableInit()
	s.nodeTableInit()
	s.portTableInit()
	s.lreInit()
	s.dbgInit()
	s.protocolInit(hsrMode)
}

func (s *Supervisor) hostTableInit() {
	s.data0.ZeroRange(layout.HostDupTable, layout.HostDupTableBytes)
	s.ctl.W32(layout.HostDupTableSizeWord, layout.HostDupTableSizeInit)
	s.ctl.W32(layout.HostCheckReso, layout.TableCheckResoTicks)
	s.ctl.W32(layout.HostArbitration, layout.ArbitrationClear)
}

func (s *Supervisor) nodeTableInit() {
	// Seed the free address queue with every usable entry index.
	val := uint32(layout.FreeAddrQueueInit)
	for i := uint(0); i < layout.FreeAddrQueueBytes; i += 4 {
		s.data0.W32(layout.FreeAddrQueue+i, val)
		val += layout.FreeAddrQueueStep
	}
	s.data0.W32(layout.FreeAddrPointers, layout.FreeAddrPointersInit)

	s.sram.W32(layout.IndexArrayBase, layout.IndexArrayInit)
	s.sram.ZeroRange(layout.NodeTableBase, layout.NodeTableBytes)

	// Guard entries bracket the table for the firmware's search.
	s.sram.W32(layout.NodeTableBase, layout.NodeTableGuard0Lo)
	s.sram.W32(layout.NodeTableBase+4, layout.NodeTableGuard0Hi)
	s.sram.W32(layout.NodeTableEnd, layout.NodeTableGuard1Lo)
	s.sram.W32(layout.NodeTableEnd+4, layout.NodeTableGuard1Hi)

	s.ctl.W32(layout.NodeTableSizeWord, layout.NodeTableMax)
	s.ctl.W32(layout.NodeTableArbitration, layout.ArbitrationClear)
	s.ctl.W32(layout.NodeForgetTimeWord, layout.NodeForgetTimeInit)
	s.ctl.W32(layout.NodeTableCheckReso, layout.TableCheckResoTicks)
}

func (s *Supervisor) portTableInit() {
	if s.mode == layout.Hsr {
		s.ctl.ZeroRange(layout.PortDupTable0, layout.PortDupTableBytes)
		s.ctl.ZeroRange(layout.PortDupTable1, layout.PortDupTableBytes)
		s.ctl.W32(layout.PortDupTableSizeWord, layout.PortDupTableSizeInit)
	} else {
		// PRP discards duplicates at the host table only.
		s.ctl.W32(layout.PortDupTableSizeWord, 0)
	}
	s.ctl.W32(layout.PortCheckReso, layout.TableCheckResoTicks)
}

func (s *Supervisor) lreInit() {
	s.sram.ZeroRange(layout.LreBase, 4+layout.LreStatsWords*4)
	s.sram.W32(layout.LreDupDiscard, layout.DupDiscard)
	s.sram.W32(layout.LreTransparentRx, layout.TrRemoveRct)
}

func (s *Supervisor) dbgInit() {
	s.data0.ZeroRange(layout.DbgCounters, layout.DbgCounterBytes)
}

func (s *Supervisor) protocolInit(hsrMode int) {
	if s.mode == layout.Hsr {
		s.data0.W16(layout.HsrModeWord, uint16(hsrMode))
	}
	s.ctl.W32(layout.DupForgetTimeWord, layout.DupForgetTimeInit)
	s.ctl.W32(layout.SupAddrHi, layout.SupAddrHiVal)
	s.ctl.W32(layout.SupAddrLo, layout.SupAddrLoVal)
}

// Start asserts the maintenance trigger word and arms the tick that
// keeps it fresh. Safe to call on a running supervisor.
func (s *Supervisor) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.mask = s.base
	s.clear = false
	s.ctl.W32(layout.TimerCheckFlags, s.mask)
	s.stop = make(chan struct{})
	s.running = true
	s.wg.Add(1)
	go s.run(s.stop)
}

// Stop halts the tick and waits for it; when Stop returns no further
// shared memory writes can come from the supervisor.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stop)
	s.mu.Unlock()
	s.wg.Wait()
}

// RequestNodeTableClear schedules a node table flush. The clear bit
// rides the trigger word for exactly one tick.
func (s *Supervisor) RequestNodeTableClear() {
	s.mu.Lock()
	s.clear = true
	s.mu.Unlock()
}

func (s *Supervisor) run(stop chan struct{}) {
	defer s.wg.Done()
	t := time.NewTicker(layout.TickMs * time.Millisecond)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			s.tick()
		}
	}
}

func (s *Supervisor) tick() {
	s.mu.Lock()
	if s.clear {
		s.mask |= layout.TimerNodeTableClear
		s.clear = false
	} else {
		s.mask &^= layout.TimerNodeTableClear
	}
	mask := s.mask
	s.mu.Unlock()
	s.ctl.W32(layout.TimerCheckFlags, mask)
}
