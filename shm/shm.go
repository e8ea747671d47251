// Copyright © 2019-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package shm gives byte-offset access to the memories an ICSS PRU
// Ethernet firmware shares with the host. A Region has no lock and no
// cache of its contents; the host and the firmware cores coordinate
// through the queue protocol alone, so every accessor goes straight to
// the backing bytes. All multi-byte accessors are little-endian, the
// byte order both PRU cores and the ARM host use.
package shm

import (
	"encoding/binary"
	"fmt"
	"os"
	"syscall"
)

// ID names one of the shared memories of the ICSS subsystem.
type ID int

const (
	SharedCtl ID = iota // shared control RAM: descriptors, tables
	Data0               // port A data RAM
	Data1               // port B and switch-config data RAM
	PktPool             // frame block pool
	TimerCtl            // maintenance timer block
	LinkCtl             // line interface config block
	NRegions
)

var idStrings = [NRegions]string{
	SharedCtl: "shared-ctl",
	Data0:     "data0",
	Data1:     "data1",
	PktPool:   "pkt-pool",
	TimerCtl:  "timer-ctl",
	LinkCtl:   "link-ctl",
}

func (id ID) String() string {
	if id < 0 || id >= NRegions {
		return fmt.Sprintf("region(%d)", int(id))
	}
	return idStrings[id]
}

// Region is one directly addressed shared memory segment.
type Region struct {
	id     ID
	b      []byte
	mapped bool
}

// New returns a heap-backed region. The firmware simulator and the
// tests run the full queue protocol against these.
func New(id ID, size int) *Region {
	return &Region{id: id, b: make([]byte, size)}
}

// Map maps size bytes of the device file at path, starting at off.
// off and size must observe the page granularity of the kernel.
func Map(id ID, path string, off int64, size int) (*Region, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_SYNC, 0)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", id, err)
	}
	defer f.Close()
	b, err := syscall.Mmap(int(f.Fd()), off, size,
		syscall.PROT_READ|syscall.PROT_WRITE, syscall.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("%s: mmap %s: %w", id, path, err)
	}
	return &Region{id: id, b: b, mapped: true}, nil
}

// Unmap releases a mapped region. Heap regions ignore it.
func (r *Region) Unmap() error {
	if !r.mapped {
		return nil
	}
	b := r.b
	r.b = nil
	r.mapped = false
	return syscall.Munmap(b)
}

func (r *Region) ID() ID    { return r.id }
func (r *Region) Size() int { return len(r.b) }

func (r *Region) check(off, n uint) {
	if off+n > uint(len(r.b)) {
		panic(fmt.Sprintf("%s: access [%#x,%#x) beyond size %#x",
			r.id, off, off+n, len(r.b)))
	}
}

func (r *Region) R8(off uint) uint8 {
	r.check(off, 1)
	return r.b[off]
}

func (r *Region) W8(off uint, v uint8) {
	r.check(off, 1)
	r.b[off] = v
}

func (r *Region) R16(off uint) uint16 {
	r.check(off, 2)
	return binary.LittleEndian.Uint16(r.b[off:])
}

func (r *Region) W16(off uint, v uint16) {
	r.check(off, 2)
	binary.LittleEndian.PutUint16(r.b[off:], v)
}

func (r *Region) R32(off uint) uint32 {
	r.check(off, 4)
	return binary.LittleEndian.Uint32(r.b[off:])
}

func (r *Region) W32(off uint, v uint32) {
	r.check(off, 4)
	binary.LittleEndian.PutUint32(r.b[off:], v)
}

// CopyIn copies src into the region at off.
func (r *Region) CopyIn(off uint, src []byte) {
	r.check(off, uint(len(src)))
	copy(r.b[off:], src)
}

// CopyOut fills dst from the region at off.
func (r *Region) CopyOut(off uint, dst []byte) {
	r.check(off, uint(len(dst)))
	copy(dst, r.b[off:])
}

// ZeroRange clears n bytes at off.
func (r *Region) ZeroRange(off, n uint) {
	r.check(off, n)
	b := r.b[off : off+n]
	for i := range b {
		b[i] = 0
	}
}

// Zero clears the whole region.
func (r *Region) Zero() { r.ZeroRange(0, uint(len(r.b))) }
