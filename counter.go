// Copyright © 2019-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package icsseth

import "sync/atomic"

type Counter uint64

func (count *Counter) Count() uint64 {
	return atomic.LoadUint64((*uint64)(count))
}

func (count *Counter) Reset() {
	atomic.StoreUint64((*uint64)(count), 0)
}

func (count *Counter) Inc() {
	atomic.AddUint64((*uint64)(count), 1)
}

func (count *Counter) Add(n uint64) {
	atomic.AddUint64((*uint64)(count), n)
}

// Counters are the host-side per-port counts. The firmware maintains
// its own statistics block separately; see Dev.PortStats.
type Counters struct {
	TxPackets Counter
	TxBytes   Counter
	TxDropped Counter
	RxPackets Counter
	RxBytes   Counter

	RxLengthErrors Counter
	RxOverErrors   Counter
	RxOverflows    Counter

	TxCollisions     Counter
	TxCollisionDrops Counter
}
