// Copyright © 2019-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package icsseth

import "github.com/platinasystems/icsseth/layout"

// PortStats is the statistics block the firmware maintains in a line
// port's data region. The firmware counts on the wire side; the
// host-side Counters cover what this block cannot see.
type PortStats struct {
	TxBcast, TxMcast, TxUcast, TxOctets uint32
	RxBcast, RxMcast, RxUcast, RxOctets uint32

	Tx64, Tx65_127, Tx128_255, Tx256_511, Tx512_1023, Tx1024 uint32
	Rx64, Rx65_127, Rx128_255, Rx256_511, Rx512_1023, Rx1024 uint32

	LateColl, SingleColl, MultiColl, ExcessColl uint32

	RxMisalign, StormPrev, MacRxError, SfdError uint32

	DefTx, MacTxError uint32

	RxOversized, RxUndersized, RxCrc, Dropped uint32

	TxHwqOverflow, TxHwqUnderflow uint32
}

// fields lists the block in firmware word order.
func (s *PortStats) fields() [layout.PortStatsLen / 4]*uint32 {
	return [...]*uint32{
		&s.TxBcast, &s.TxMcast, &s.TxUcast, &s.TxOctets,
		&s.RxBcast, &s.RxMcast, &s.RxUcast, &s.RxOctets,
		&s.Tx64, &s.Tx65_127, &s.Tx128_255,
		&s.Tx256_511, &s.Tx512_1023, &s.Tx1024,
		&s.Rx64, &s.Rx65_127, &s.Rx128_255,
		&s.Rx256_511, &s.Rx512_1023, &s.Rx1024,
		&s.LateColl, &s.SingleColl, &s.MultiColl, &s.ExcessColl,
		&s.RxMisalign, &s.StormPrev, &s.MacRxError, &s.SfdError,
		&s.DefTx, &s.MacTxError, &s.RxOversized, &s.RxUndersized,
		&s.RxCrc, &s.Dropped, &s.TxHwqOverflow, &s.TxHwqUnderflow,
	}
}

// PortStats returns the firmware statistics block of p. Open restores
// the previous snapshot into firmware memory, so the block reads as
// continuous across restarts.
func (d *Dev) PortStats(p layout.Port) (PortStats, error) {
	if !p.Line() {
		return PortStats{}, ErrInvalidPort
	}
	return d.readPortStats(p), nil
}

func (d *Dev) readPortStats(p layout.Port) (s PortStats) {
	r := d.dataRegion(p)
	for i, f := range s.fields() {
		*f = r.R32(layout.PortStatsBase + uint(i)*4)
	}
	return
}

func (d *Dev) writePortStats(p layout.Port, s *PortStats) {
	r := d.dataRegion(p)
	for i, f := range s.fields() {
		r.W32(layout.PortStatsBase+uint(i)*4, *f)
	}
}
