// Copyright © 2019-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package lre

import (
	"fmt"

	"github.com/platinasystems/icsseth/layout"
)

// The policy words are plain shared memory; the firmware reads them
// per frame. Every setter validates before touching the word, so the
// firmware never observes a value outside its tables.

// DupDiscard returns the duplicate-discard policy word.
func (s *Supervisor) DupDiscard() uint32 {
	return s.sram.R32(layout.LreDupDiscard)
}

func (s *Supervisor) SetDupDiscard(v uint32) error {
	if v != layout.DupAccept && v != layout.DupDiscard {
		return fmt.Errorf("duplicate discard %#x: want %#x or %#x",
			v, layout.DupAccept, layout.DupDiscard)
	}
	s.sram.W32(layout.LreDupDiscard, v)
	return nil
}

// TransparentReception returns the RCT handling policy word.
func (s *Supervisor) TransparentReception() uint32 {
	return s.sram.R32(layout.LreTransparentRx)
}

func (s *Supervisor) SetTransparentReception(v uint32) error {
	if v != layout.TrRemoveRct && v != layout.TrPassRct {
		return fmt.Errorf("transparent reception %#x: want %#x or %#x",
			v, layout.TrRemoveRct, layout.TrPassRct)
	}
	s.sram.W32(layout.LreTransparentRx, v)
	return nil
}

// HsrMode returns the forwarding submode word.
func (s *Supervisor) HsrMode() int {
	return int(s.data0.R16(layout.HsrModeWord))
}

func (s *Supervisor) SetHsrMode(m int) error {
	if s.mode != layout.Hsr {
		return fmt.Errorf("hsr mode: %s device", s.mode)
	}
	if m < layout.HsrModeH || m > layout.HsrModeM {
		return fmt.Errorf("hsr mode %d: out of range", m)
	}
	s.data0.W16(layout.HsrModeWord, uint16(m))
	return nil
}

// ForgetTime returns the duplicate forget time in milliseconds.
func (s *Supervisor) ForgetTime() int {
	return int(s.ctl.R32(layout.DupForgetTimeWord)) * layout.TickMs
}

// SetForgetTime sets the duplicate forget time. The firmware keeps it
// in maintenance ticks, so ms rounds down to a whole tick.
func (s *Supervisor) SetForgetTime(ms int) error {
	if ms < layout.TickMs {
		return fmt.Errorf("forget time %dms: under one %dms tick",
			ms, layout.TickMs)
	}
	s.ctl.W32(layout.DupForgetTimeWord, uint32(ms/layout.TickMs))
	return nil
}

// NodeForgetTime returns the node aging time in milliseconds.
func (s *Supervisor) NodeForgetTime() int {
	return int(s.ctl.R32(layout.NodeForgetTimeWord)) * layout.TickMs
}

func (s *Supervisor) SetNodeForgetTime(ms int) error {
	if ms < layout.TickMs {
		return fmt.Errorf("node forget time %dms: under one %dms tick",
			ms, layout.TickMs)
	}
	s.ctl.W32(layout.NodeForgetTimeWord, uint32(ms/layout.TickMs))
	return nil
}
