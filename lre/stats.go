// Copyright © 2019-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package lre

import "github.com/platinasystems/icsseth/layout"

// Stats is the firmware's redundancy counter block in its resident
// word order. Lane C counts cover the host-facing interlink.
type Stats struct {
	TxA, TxB, TxC uint32

	ErrWrongLanA, ErrWrongLanB, ErrWrongLanC uint32

	RxA, RxB, RxC uint32

	ErrorsA, ErrorsB, ErrorsC uint32

	Nodes, ProxyNodes uint32

	UniqueRxA, UniqueRxB, UniqueRxC uint32

	DuplicateRxA, DuplicateRxB, DuplicateRxC uint32

	MultiRxA, MultiRxB, MultiRxC uint32

	OwnRxA, OwnRxB uint32

	// Policy words, not counters. SetStats keeps the firmware's
	// live values instead of the snapshot's.
	DuplicateDiscard, TransparentReception uint32

	NtLookupErrA, NtLookupErrB uint32

	NodeTableFull uint32
}

func (st *Stats) fields() [layout.LreStatsWords]*uint32 {
	return [...]*uint32{
		&st.TxA, &st.TxB, &st.TxC,
		&st.ErrWrongLanA, &st.ErrWrongLanB, &st.ErrWrongLanC,
		&st.RxA, &st.RxB, &st.RxC,
		&st.ErrorsA, &st.ErrorsB, &st.ErrorsC,
		&st.Nodes, &st.ProxyNodes,
		&st.UniqueRxA, &st.UniqueRxB, &st.UniqueRxC,
		&st.DuplicateRxA, &st.DuplicateRxB, &st.DuplicateRxC,
		&st.MultiRxA, &st.MultiRxB, &st.MultiRxC,
		&st.OwnRxA, &st.OwnRxB,
		&st.DuplicateDiscard, &st.TransparentReception,
		&st.NtLookupErrA, &st.NtLookupErrB,
		&st.NodeTableFull,
	}
}

// Stats snapshots the redundancy counters.
func (s *Supervisor) Stats() Stats {
	var st Stats
	for i, f := range st.fields() {
		*f = s.sram.R32(layout.LreStats + uint(i)*4)
	}
	return st
}

// SetStats writes a counter snapshot back, normally one taken at the
// last close, so counts run continuously across firmware reloads.
// The policy words in st are first overwritten with the firmware's
// current values so the write does not change policy.
func (s *Supervisor) SetStats(st *Stats) {
	st.DuplicateDiscard = s.sram.R32(layout.LreDupDiscard)
	st.TransparentReception = s.sram.R32(layout.LreTransparentRx)
	for i, f := range st.fields() {
		s.sram.W32(layout.LreStats+uint(i)*4, *f)
	}
}
