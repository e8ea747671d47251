// Copyright © 2019-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package layout

import (
	"testing"

	"github.com/platinasystems/icsseth/shm"
	"github.com/stretchr/testify/assert"
)

func TestBDRoundTrip(t *testing.T) {
	pi := PacketInfo{
		StartOffset: true,
		Shadow:      true,
		Port:        PortB,
		Length:      1518,
		Broadcast:   true,
		Error:       true,
	}
	assert.Equal(t, pi, ParseBD(pi.Word(), Hsr))

	// Only HSR tags payload, so only HSR sees the flag.
	got := ParseBD(pi.Word(), Prp)
	assert.False(t, got.StartOffset)
	got.StartOffset = true
	assert.Equal(t, pi, got)

	assert.Equal(t, PacketInfo{Port: PortA, Length: 60},
		ParseBD(PacketInfo{Port: PortA, Length: 60}.Word(), Switch))
}

func TestTxBD(t *testing.T) {
	assert.Equal(t, uint32(256)<<18, TxBD(256, Switch))
	assert.Equal(t, uint32(256)<<18|1<<4, TxBD(256, Hsr))
	assert.Equal(t, TxBD(256, Switch), TxBD(256, Prp))
	assert.Equal(t, 256, ParseBD(TxBD(256, Hsr), Hsr).Length)
	assert.False(t, ParseBD(TxBD(256, Hsr), Hsr).StartOffset)
}

func TestQueueDesc(t *testing.T) {
	r := shm.New(shm.SharedCtl, 0x100)
	d := QueueDesc{R: r, Off: 0x40}

	d.SetStatus(QStatusOverflow)
	d.SetOverflowCnt(9)
	d.Init(0x4a0)
	assert.Equal(t, uint16(0x4a0), d.RdPtr())
	assert.Equal(t, uint16(0x4a0), d.WrPtr())
	assert.Zero(t, d.BusyS())
	assert.Zero(t, d.Status())
	assert.Zero(t, d.OverflowCnt())

	d.SetWrPtr(0x4a8)
	d.SetBusyS(1)
	d.SetStatus(QStatusBusyM | QStatusCollision)
	assert.Equal(t, uint16(0x4a0), d.RdPtr())
	assert.Equal(t, uint16(0x4a8), d.WrPtr())
	assert.Equal(t, uint8(1), d.BusyS())
	assert.Equal(t, uint8(3), d.Status())

	// Neighboring record untouched.
	assert.Zero(t, r.R32(0x48))
}
