// Copyright © 2019-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package icsseth

import (
	"github.com/platinasystems/icsseth/layout"
	"github.com/platinasystems/icsseth/shm"
)

// hostInit zeroes the shared memories and writes everything both
// ports depend on: host queue configuration, line interface setup and
// the maintenance counter. Runs once, on the first Open.
func (d *Dev) hostInit() {
	d.mem[shm.SharedCtl].Zero()
	d.mem[shm.PktPool].Zero()
	d.mem[shm.Data0].Zero()
	d.mem[shm.Data1].Zero()

	if d.mode.HasSwitch() {
		d.swHostConfig()
	} else {
		d.emacHostConfig()
	}

	d.linkInit()

	// Maintenance counter enable, low half only; the upper half
	// holds compensation state.
	t := d.mem[shm.TimerCtl]
	t.W32(layout.TimerGlobalCfg,
		t.R32(layout.TimerGlobalCfg)&^0xffff|layout.TimerGlobalCfgVal)
}

func (d *Dev) portConfig(p layout.Port) {
	if d.mode.HasSwitch() {
		d.swPortConfig(p)
	} else {
		d.emacPortConfig(p)
	}
}

// swHostConfig writes the host's slice of the switch configuration:
// receive contexts, the geometry lookup tables and the host queue
// descriptors, all in the switch config data region.
func (d *Dev) swHostConfig() {
	pl := d.plan
	dram := d.mem[shm.Data1]

	writeQueueInfos(dram, layout.HostRxContext, &pl.Queues[layout.HostQueues])
	writeColRx(dram, layout.ColRxContextHost, pl.ColRx[layout.Host])

	writeTableSlice(dram, layout.QueueDescOffsetTable, layout.Host,
		offsets(pl.BDOffset, layout.Host))
	writeTableSlice(dram, layout.QueueOffsetTable, layout.Host,
		offsets(pl.BufferOffset, layout.Host))
	writeTableSlice(dram, layout.QueueSizeTable, layout.Host,
		offsets(pl.QueueSize, layout.Host))

	pb := &pl.Basis[layout.Host]
	layout.QueueDesc{R: dram, Off: uint(pb.ColDesc)}.Init(pb.ColBD)
	d.initQueueDescs(dram, layout.Host)
}

// emacHostConfig writes the host queue records appended to shared
// control memory past the descriptor arrays. The two firmware release
// words there belong to the firmware and are left alone.
func (d *Dev) emacHostConfig() {
	pl := d.plan
	sram := d.mem[shm.SharedCtl]
	e := &pl.Emac

	for q := layout.Queue1; q <= layout.Queue4; q++ {
		sram.W16(uint(e.SizeTab)+uint(q)*2,
			pl.QueueSize(layout.Host, q))
	}
	writeQueueInfos(sram, uint(e.HostRxContext), &pl.Queues[layout.HostQueues])
	for q := layout.Queue1; q <= layout.Queue4; q++ {
		sram.W16(uint(e.BufOffsetTab)+uint(q)*2,
			pl.BufferOffset(layout.Host, q))
		sram.W16(uint(e.DescOffsetTab)+uint(q)*2,
			pl.BDOffset(layout.Host, q))
	}
	d.initQueueDescs(sram, layout.Host)
}

// swPortConfig writes one line port's switch configuration. Only the
// station address lands in the port's own data region; the rest goes
// to the switch config region.
func (d *Dev) swPortConfig(p layout.Port) {
	pl := d.plan
	d.dataRegion(p).CopyIn(layout.PortMac, d.ports[p].mac[:])

	dram := d.mem[shm.Data1]
	var txCtx, colTxCtx, rxCtx, colRxCtx uint
	if p == layout.PortB {
		txCtx, colTxCtx = layout.PortBTxContext, layout.ColTxContextPortB
		rxCtx, colRxCtx = layout.PortBRxContext, layout.ColRxContextPortB
	} else {
		txCtx, colTxCtx = layout.PortATxContext, layout.ColTxContextPortA
		rxCtx, colRxCtx = layout.PortARxContext, layout.ColRxContextPortA
	}

	writeQueueInfos(dram, txCtx, &pl.Queues[layout.TxSet(p)])
	writeColTx(dram, colTxCtx, pl.ColTx[p])
	writeQueueInfos(dram, rxCtx, &pl.Queues[layout.RxSet(p)])
	writeColRx(dram, colRxCtx, pl.ColRx[p])

	writeTableSlice(dram, layout.QueueDescOffsetTable, p, offsets(pl.BDOffset, p))
	writeTableSlice(dram, layout.QueueOffsetTable, p, offsets(pl.BufferOffset, p))
	writeTableSlice(dram, layout.QueueSizeTable, p, offsets(pl.QueueSize, p))

	pb := &pl.Basis[p]
	layout.QueueDesc{R: dram, Off: uint(pb.ColDesc)}.Init(pb.ColBD)
	d.initQueueDescs(dram, p)
}

// emacPortConfig writes one line port's standalone configuration into
// its own data region, which it first clears; a reopened port starts
// from a clean slate without disturbing its sibling.
func (d *Dev) emacPortConfig(p layout.Port) {
	pl := d.plan
	dram := d.dataRegion(p)
	dram.Zero()
	dram.CopyIn(layout.PortMac, d.ports[p].mac[:])
	writeQueueInfos(dram, layout.EmacTxContext, &pl.Queues[layout.TxSet(p)])
	d.initQueueDescs(dram, p)
}

// pcpRxqMapConfig packs the priority to receive-queue map into its
// two configuration words.
func (d *Dev) pcpRxqMapConfig() {
	sram := d.mem[shm.SharedCtl]
	pcp := layout.NumVlanPcp / 2
	for i := 0; i < 2; i++ {
		var val uint32
		for j := 0; j < pcp; j++ {
			val |= uint32(d.pcpRxqMap[i*pcp+j]) << (j * 8)
		}
		sram.W32(layout.PcpRxqMapBase+uint(i)*4, val)
	}
}

func (d *Dev) portEnable(p layout.Port, on bool) {
	var v uint8
	if on {
		v = 1
	}
	d.dataRegion(p).W8(layout.PortControl, v)
}

// linkInit writes the line interface configuration for both ports.
// The transmit mux select crosses over between the switch and emac
// images; everything else is fixed.
func (d *Dev) linkInit() {
	r := d.mem[shm.LinkCtl]

	rx := uint32(layout.LinkRxEnable | layout.LinkRxDataRdyModeDis |
		layout.LinkRxL2Enable | layout.LinkRxCutPreamble |
		layout.LinkRxL2EofSclrDis)
	r.W32(layout.LinkRxCfg0, rx)
	r.W32(layout.LinkRxCfg1, rx|layout.LinkRxMuxSel)

	r.W32(layout.LinkTxIpg0, layout.LinkTxMinIpg)
	r.W32(layout.LinkTxIpg1, layout.LinkTxMinIpg)

	tx := uint32(layout.LinkTxEnable | layout.LinkTxAutoPreamble |
		layout.LinkTx32ModeEn |
		layout.LinkTxStartDelay<<layout.LinkTxStartDelayShift |
		layout.LinkTxClkDelay<<layout.LinkTxClkDelayShift)
	tx0, tx1 := tx, tx
	if d.mode.HasSwitch() {
		tx0 |= layout.LinkTxMuxSel
	} else {
		tx1 |= layout.LinkTxMuxSel
	}
	r.W32(layout.LinkTxCfg0, tx0)
	r.W32(layout.LinkTxCfg1, tx1)

	if d.mode.HasRed() {
		frms := uint32(d.mode.MaxFrameLen())<<layout.LinkRxFrmsMaxShift |
			layout.LinkRxMinFrm<<layout.LinkRxFrmsMinShift
		r.W32(layout.LinkRxFrms0, frms)
		r.W32(layout.LinkRxFrms1, frms)
	}
}

func (d *Dev) initQueueDescs(r *shm.Region, p layout.Port) {
	for q := layout.Queue1; q <= layout.Queue4; q++ {
		qd := layout.QueueDesc{R: r, Off: uint(d.plan.DescOffset(p, q))}
		qd.Init(d.plan.InitBD[p][q])
	}
}

func writeQueueInfo(r *shm.Region, off uint, qi layout.QueueInfo) {
	r.W16(off+0, qi.Buffer)
	r.W16(off+2, qi.Desc)
	r.W16(off+4, qi.BD)
	r.W16(off+6, qi.BDEnd)
}

func writeQueueInfos(r *shm.Region, off uint, qis *[layout.NumQueues]layout.QueueInfo) {
	for i, qi := range qis {
		writeQueueInfo(r, off+uint(i)*8, qi)
	}
}

func writeColTx(r *shm.Region, off uint, c layout.ColTxContext) {
	r.W16(off+0, c.Buffer)
	r.W16(off+2, c.Buffer2)
	r.W16(off+4, c.BufferEnd)
}

func writeColRx(r *shm.Region, off uint, c layout.ColRxContext) {
	r.W16(off+0, c.Buffer)
	r.W16(off+2, c.Buffer2)
	r.W16(off+4, c.Desc)
	r.W16(off+6, c.BD)
	r.W16(off+8, c.BDEnd)
}

// writeTableSlice writes one port's slice of a geometry lookup table.
func writeTableSlice(r *shm.Region, base uint, p layout.Port, v [layout.NumQueues]uint16) {
	off := base + uint(p)*layout.NumQueues*2
	for i, x := range v {
		r.W16(off+uint(i)*2, x)
	}
}

// offsets gathers one plan lookup across a port's four queues.
func offsets(f func(layout.Port, layout.Queue) uint16, p layout.Port) (v [layout.NumQueues]uint16) {
	for q := layout.Queue1; q <= layout.Queue4; q++ {
		v[q] = f(p, q)
	}
	return
}
