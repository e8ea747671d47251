// Copyright © 2019-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package layout

// Region sizes. The firmware images are linked against the same
// values; none of them is tunable at runtime.
const (
	SharedCtlSize = 0x3000
	DataSize      = 0x2000
	PktPoolSize   = 0x10000
	TimerCtlSize  = 0x100
	LinkCtlSize   = 0x100
)

// SharedCtl map. Buffer descriptor arrays grow upward from BDBase and
// must stay below BDLimit; the fixed redundancy structures sit above.
const (
	BDBase  = 0x0400
	BDLimit = NodeTableBase

	// Remote node table: one 32-byte guard entry, NodeTableMax
	// usable entries, one trailing guard entry.
	NodeTableBase      = 0x1e80
	NodeTableEntrySize = 32
	NodeTableMax       = 128
	NodeTableEnd       = NodeTableBase + (NodeTableMax+1)*NodeTableEntrySize
	NodeTableBytes     = (NodeTableMax + 2) * NodeTableEntrySize

	// Redundancy (LRE) block: version word, then LreStatsWords
	// firmware-maintained words. The duplicate-discard and
	// transparent-reception policy words live inside the block.
	LreBase       = 0x2ec0
	LreStats      = LreBase + 4
	LreStatsWords = 30

	LreCntRxA        = LreStats + 6*4
	LreCntNodes      = LreStats + 12*4
	LreDupDiscard    = LreStats + 25*4
	LreTransparentRx = LreStats + 26*4
	LreCntTableFull  = LreStats + 29*4

	// Index array sorting the node table; one byte per entry plus
	// the two guards.
	IndexArrayBase  = 0x2f40
	IndexArrayBytes = NodeTableMax + 2

	PcpRxqMapBase = 0x2fc8
)

// PktPool map. Frame blocks grow upward from BufferBase; the three
// fixed collision buffers fill the top of the pool exactly.
const (
	BufferBase    = 0x0000
	ColBufferBase = PktPoolSize - int(NPorts)*ColQueueDepth*BlockSize
)

// Per-port data region map (Data0 for PortA, Data1 for PortB).
const (
	PortControl = 0x0084
	PortMac     = 0x0090

	// Emac map only: per-port tx queue contexts and descriptors.
	EmacTxContext     = 0x0100
	PortQueueDescBase = 0x0140

	PortStatsBase = 0x1f00
	PortStatsLen  = 36 * 4
)

// Data0 redundancy structures.
const (
	HostDupTable      = 0x0200
	HostDupTableBytes = 0x1000

	FreeAddrQueue      = 0x1200
	FreeAddrQueueBytes = NodeTableMax * 4
	FreeAddrPointers   = 0x1400

	DbgCounters     = 0x1500
	DbgCounterBytes = 0x100
	HsrModeWord     = 0x1e76
)

// Data1 switch configuration map. The queue-geometry tables written
// here are what the firmware loads at start; the queue descriptor
// tables are live protocol state.
const (
	HostRxContext     = 0x0200
	ColRxContextHost  = 0x0220
	PortARxContext    = 0x0230
	ColRxContextPortA = 0x0250
	PortBRxContext    = 0x0260
	ColRxContextPortB = 0x0280
	PortATxContext    = 0x0290
	ColTxContextPortA = 0x02b0
	PortBTxContext    = 0x02c0
	ColTxContextPortB = 0x02e0

	QueueDescOffsetTable = 0x02f0
	QueueOffsetTable     = 0x0310
	QueueSizeTable       = 0x0330

	// One status byte per port, indexed by Port.
	CollisionStatus = 0x0348

	SwQueueDescBase    = 0x0350
	SwColQueueDescBase = 0x03b0

	SupAddrHi = 0x03c8
	SupAddrLo = 0x03cc

	TimerCheckFlags      = 0x03d0
	HostArbitration      = 0x03d4
	NodeTableArbitration = 0x03d8
	HostDupTableSizeWord = 0x03dc
	NodeTableSizeWord    = 0x03e0
	PortDupTableSizeWord = 0x03e4
	HostCheckReso        = 0x03e8
	NodeTableCheckReso   = 0x03ec
	PortCheckReso        = 0x03f0
	NodeForgetTimeWord   = 0x03f4
	DupForgetTimeWord    = 0x03f8

	PortDupTable0     = 0x0400
	PortDupTable1     = 0x1000
	PortDupTableBytes = 0x0c00
)

// Maintenance trigger word bits (TimerCheckFlags).
const (
	TimerNodeTableCheck = 1 << 0
	TimerHostTableCheck = 1 << 1
	TimerPortTableCheck = 1<<2 | 1<<3
	TimerNodeTableClear = 1 << 4
)

// Redundancy control word values and conversions.
const (
	DupAccept  = 0x01
	DupDiscard = 0x02

	TrRemoveRct = 0x01
	TrPassRct   = 0x02

	HsrModeH = 1
	HsrModeN = 2
	HsrModeT = 3
	HsrModeU = 4
	HsrModeM = 5

	// Forget times are stored in maintenance ticks.
	TickMs              = 10
	NodeForgetTimeInit  = 60000 / TickMs
	DupForgetTimeInit   = 400 / TickMs
	TableCheckResoTicks = 1

	HostDupTableSizeInit = 128
	PortDupTableSizeInit = 64
	ArbitrationClear     = 0

	// Free address queue seed: node indexes 1..NodeTableMax.
	FreeAddrQueueInit    = 1
	FreeAddrQueueStep    = 1
	FreeAddrPointersInit = 0x00800000

	// Index array guards: a leading 0 and a trailing max+1.
	IndexArrayInit = 0x00008100

	// Supervision address 01:15:4e:00:01:00, packed for two
	// little-endian word writes.
	SupAddrHiVal = 0x004e1501
	SupAddrLoVal = 0x00000100
)

// Node table guard words.
const (
	NodeTableGuard0Lo = 0
	NodeTableGuard0Hi = 0x00010000
	NodeTableGuard1Lo = 0xffffffff
	NodeTableGuard1Hi = 0x0001ffff
)

// TimerCtl map.
const (
	TimerGlobalCfg    = 0x00
	TimerGlobalCfgVal = 0x0111
)

// LinkCtl map: line interface configuration registers.
const (
	LinkRxCfg0  = 0x00
	LinkRxCfg1  = 0x04
	LinkTxCfg0  = 0x10
	LinkTxCfg1  = 0x14
	LinkTxIpg0  = 0x30
	LinkTxIpg1  = 0x34
	LinkRxFrms0 = 0x38
	LinkRxFrms1 = 0x3c
)

// LinkCtl register fields.
const (
	LinkRxEnable         = 1 << 0
	LinkRxDataRdyModeDis = 1 << 1
	LinkRxMuxSel         = 1 << 2
	LinkRxL2Enable       = 1 << 3
	LinkRxCutPreamble    = 1 << 4
	LinkRxL2EofSclrDis   = 1 << 5

	LinkTxEnable       = 1 << 0
	LinkTxAutoPreamble = 1 << 1
	LinkTxMuxSel       = 1 << 2
	LinkTx32ModeEn     = 1 << 3

	LinkTxStartDelayShift = 8
	LinkTxClkDelayShift   = 16

	LinkTxMinIpg     = 0xb8
	LinkTxStartDelay = 0x40
	LinkTxClkDelay   = 6

	// On-wire receive length gate, including the frame check
	// sequence the pool blocks never hold.
	LinkRxMinFrm = 64

	LinkRxFrmsMinShift = 0
	LinkRxFrmsMaxShift = 16
)
