// Copyright © 2019-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// icssethd drives the PRU-ICSS Ethernet firmware pair. It maps the
// shared memories, boots the cores through remoteproc, and publishes
// port, host, and redundancy counters to redis on a fixed period.
// Control fields come back through an @icssethd rpc socket assigned
// to the "icsseth." hash prefix.
package main

import (
	"encoding/binary"
	"fmt"
	"io/ioutil"
	"net"
	"net/rpc"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/jpillora/backoff"
	"github.com/platinasystems/atsock"
	"github.com/platinasystems/fdt"
	"github.com/platinasystems/flags"
	"github.com/platinasystems/icsseth"
	"github.com/platinasystems/icsseth/layout"
	"github.com/platinasystems/icsseth/lre"
	"github.com/platinasystems/icsseth/shm"
	"github.com/platinasystems/log"
	"github.com/platinasystems/parms"
	"github.com/platinasystems/redis"
	"github.com/platinasystems/redis/publisher"
	"github.com/platinasystems/redis/rpc/args"
	"github.com/platinasystems/redis/rpc/reply"
)

const usage = `usage: icssethd [-mem DIR] [-dtb FILE] [-mode MODE] [OPTIONS]...

	-mem DIR	region backing files (shared-ctl, data0, ...)
	-dtb FILE	device tree blob, default /boot/linux.dtb
	-mode MODE	emac | switch | hsr | prp, overrides the dtb
	-pub SECONDS	publish period, default 5
	-hsr-mode N	hsr forwarding submode 1..5
	-mac-a MAC	port A address, overrides the dtb
	-mac-b MAC	port B address, overrides the dtb
	-rproc-a DIR	port A remoteproc, default .../remoteproc1
	-rproc-b DIR	port B remoteproc, default .../remoteproc2`

const (
	defaultDtb    = "/boot/linux.dtb"
	defaultRprocA = "/sys/class/remoteproc/remoteproc1"
	defaultRprocB = "/sys/class/remoteproc/remoteproc2"

	pubPrefix = "icsseth."
	rxQuota   = 64
)

var portKey = [layout.NPorts]string{
	layout.PortA: "a",
	layout.PortB: "b",
}

type Command struct {
	Info
}

type Info struct {
	mutex sync.Mutex
	dev   *icsseth.Dev
	rpc   *atsock.RpcServer
	pub   *publisher.Publisher
	stop  chan struct{}
	lasts map[string]string
	drops *log.RateLimited
}

func main() {
	if err := Main(os.Args[1:]...); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func Main(cmdargs ...string) error {
	flag, cmdargs := flags.New(cmdargs, "-h", "-help")
	parm, cmdargs := parms.New(cmdargs, "-mem", "-dtb", "-mode",
		"-pub", "-hsr-mode", "-mac-a", "-mac-b",
		"-rproc-a", "-rproc-b")
	if flag.ByName["-h"] || flag.ByName["-help"] {
		fmt.Println(usage)
		return nil
	}
	if len(cmdargs) > 0 {
		return fmt.Errorf("%v: unexpected", cmdargs)
	}

	memDir := parm.ByName["-mem"]
	if len(memDir) == 0 {
		return fmt.Errorf("missing -mem DIR")
	}

	dc, err := readDtb(parm.ByName["-dtb"])
	if err != nil {
		return err
	}

	cfg, err := devConfig(dc, parm)
	if err != nil {
		return err
	}

	period := 5 * time.Second
	if s := parm.ByName["-pub"]; len(s) > 0 {
		sec, err := strconv.Atoi(s)
		if err != nil || sec <= 0 {
			return fmt.Errorf("-pub %s: invalid", s)
		}
		period = time.Duration(sec) * time.Second
	}

	rproc := &remoteproc{}
	rproc.dir[layout.PortA] = defaultRprocA
	rproc.dir[layout.PortB] = defaultRprocB
	if s := parm.ByName["-rproc-a"]; len(s) > 0 {
		rproc.dir[layout.PortA] = s
	}
	if s := parm.ByName["-rproc-b"]; len(s) > 0 {
		rproc.dir[layout.PortB] = s
	}
	cfg.Booter = rproc

	mem, err := mapRegions(memDir)
	if err != nil {
		return err
	}
	defer func() {
		for _, r := range mem {
			if r != nil {
				r.Unmap()
			}
		}
	}()

	c := &Command{}
	cfg.Handler = c.handle
	c.dev, err = icsseth.New(mem, cfg)
	if err != nil {
		return err
	}
	c.stop = make(chan struct{})
	c.lasts = make(map[string]string)
	c.drops = log.NewRateLimited(4, time.Minute)
	defer c.drops.Close()

	// The redis server comes up in its own time after boot.
	b := &backoff.Backoff{
		Min:    1 * time.Second,
		Max:    60 * time.Second,
		Factor: 2,
		Jitter: false,
	}
	for redis.IsReady() != nil {
		time.Sleep(b.Duration())
	}

	if c.pub, err = publisher.New(); err != nil {
		return err
	}
	defer c.pub.Close()

	if c.rpc, err = atsock.NewRpcServer("icssethd"); err != nil {
		return err
	}
	defer c.rpc.Close()
	rpc.Register(&c.Info)
	err = redis.Assign(redis.DefaultHash+":"+pubPrefix, "icssethd",
		"Info")
	if err != nil {
		return err
	}

	if err = c.dev.Open(layout.PortA); err != nil {
		return err
	}
	if err = c.dev.Open(layout.PortB); err != nil {
		c.dev.Close(layout.PortA)
		return err
	}
	c.dev.SetLink(layout.PortA, true)
	c.dev.SetLink(layout.PortB, true)
	log.Print("daemon", "info", cfg.Mode, " ports open")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		log.Print("daemon", "info", "stopping")
		close(c.stop)
	}()

	go c.drain()

	t := time.NewTicker(period)
	defer t.Stop()
	for {
		select {
		case <-c.stop:
			err = c.dev.Close(layout.PortA)
			if e := c.dev.Close(layout.PortB); err == nil {
				err = e
			}
			c.pub.Print("delete: ", pubPrefix)
			log.Print("daemon", "info", "done")
			return err
		case <-t.C:
			if err = c.update(); err != nil {
				log.Print("daemon", "err", err)
			}
		}
	}
}

// Frames terminate here. The daemon is a control and statistics
// surface; the host network path belongs to whoever embeds the
// driver.
func (i *Info) handle(layout.Port, []byte) error { return nil }

// drain polls the host receive rings. The firmware has no doorbell
// toward the host, so the poll period bounds delivery latency.
func (c *Command) drain() {
	t := time.NewTicker(time.Millisecond)
	defer t.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-t.C:
			for p := layout.PortA; p <= layout.PortB; p++ {
				if _, err := c.dev.Drain(p, rxQuota); err != nil {
					c.drops.Print("daemon", "err",
						portKey[p], ": ", err)
				}
			}
		}
	}
}

func (c *Command) update() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	for p := layout.PortA; p <= layout.PortB; p++ {
		pre := pubPrefix + portKey[p] + "."
		c.pub1(pre+"link", fmt.Sprint(c.dev.Link(p)))
		st, err := c.dev.PortStats(p)
		if err != nil {
			return err
		}
		for _, f := range portStatFields(&st) {
			c.pub1(pre+f.name, strconv.FormatUint(f.count, 10))
		}
		for _, f := range counterFields(c.dev.Counters(p)) {
			c.pub1(pre+f.name, strconv.FormatUint(f.count, 10))
		}
	}
	sup := c.dev.Lre()
	if sup == nil {
		return nil
	}
	st := sup.Stats()
	for _, f := range lreStatFields(&st) {
		c.pub1(pubPrefix+"lre."+f.name,
			strconv.FormatUint(f.count, 10))
	}
	seen := make(map[string]bool)
	for _, n := range sup.Nodes() {
		k := fmt.Sprintf("%slre.node.%02x:%02x:%02x:%02x:%02x:%02x",
			pubPrefix, n.Mac[0], n.Mac[1], n.Mac[2],
			n.Mac[3], n.Mac[4], n.Mac[5])
		seen[k] = true
		c.pub1(k, fmt.Sprint(n.Type, " rx ", n.RxA, "/", n.RxB))
	}
	for k := range c.lasts {
		if strings.HasPrefix(k, pubPrefix+"lre.node.") && !seen[k] {
			c.pub.Print("delete: ", k)
			delete(c.lasts, k)
		}
	}
	return nil
}

func (c *Command) pub1(k, v string) {
	if v != c.lasts[k] {
		c.pub.Print(k, ": ", v)
		c.lasts[k] = v
	}
}

func (i *Info) Hset(a args.Hset, r *reply.Hset) error {
	i.mutex.Lock()
	defer i.mutex.Unlock()
	v := string(a.Value)
	var err error
	switch strings.TrimPrefix(a.Field, pubPrefix) {
	case "a.link":
		err = i.setLink(layout.PortA, v)
	case "b.link":
		err = i.setLink(layout.PortB, v)
	case "lre.nt-clear":
		if sup := i.dev.Lre(); sup != nil {
			sup.RequestNodeTableClear()
		} else {
			err = fmt.Errorf("%s device", i.dev.Mode())
		}
	case "lre.hsr-mode":
		err = i.setLre(v, func(sup *lre.Supervisor, n int) error {
			return sup.SetHsrMode(n)
		})
	case "lre.forget-time":
		err = i.setLre(v, func(sup *lre.Supervisor, n int) error {
			return sup.SetForgetTime(n)
		})
	case "lre.node-forget-time":
		err = i.setLre(v, func(sup *lre.Supervisor, n int) error {
			return sup.SetNodeForgetTime(n)
		})
	case "lre.duplicate-discard":
		err = i.setLre(v, func(sup *lre.Supervisor, n int) error {
			return sup.SetDupDiscard(uint32(n))
		})
	case "lre.transparent-reception":
		err = i.setLre(v, func(sup *lre.Supervisor, n int) error {
			return sup.SetTransparentReception(uint32(n))
		})
	default:
		err = fmt.Errorf("cannot hset: %s", a.Field)
	}
	if err != nil {
		return err
	}
	*r = 1
	return nil
}

func (i *Info) setLink(p layout.Port, v string) error {
	up, err := strconv.ParseBool(v)
	if err != nil {
		switch v {
		case "up":
			up = true
		case "down":
			up = false
		default:
			return fmt.Errorf("link %q: want up or down", v)
		}
	}
	return i.dev.SetLink(p, up)
}

func (i *Info) setLre(v string, set func(*lre.Supervisor, int) error) error {
	sup := i.dev.Lre()
	if sup == nil {
		return fmt.Errorf("%s device", i.dev.Mode())
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return err
	}
	return set(sup, n)
}

// remoteproc boots and halts a PRU core through its sysfs state file.
type remoteproc struct {
	dir [layout.NPorts]string
}

func (r *remoteproc) Boot(p layout.Port) error { return r.set(p, "start") }
func (r *remoteproc) Halt(p layout.Port) error { return r.set(p, "stop") }

func (r *remoteproc) set(p layout.Port, state string) error {
	fn := filepath.Join(r.dir[p], "state")
	if err := ioutil.WriteFile(fn, []byte(state), 0644); err != nil {
		return fmt.Errorf("%s: %s: %w", p, state, err)
	}
	return nil
}

func mapRegions(dir string) (*icsseth.Mem, error) {
	mem := new(icsseth.Mem)
	for id := shm.ID(0); id < shm.NRegions; id++ {
		r, err := shm.Map(id, filepath.Join(dir, id.String()), 0,
			icsseth.RegionSizes[id])
		if err != nil {
			for _, m := range mem {
				if m != nil {
					m.Unmap()
				}
			}
			return nil, err
		}
		mem[id] = r
	}
	return mem, nil
}

// dtbConfig is what the pruss-eth device tree node provides.
type dtbConfig struct {
	mode      string
	rxSizes   []uint32
	txSizes   []uint32
	pcpRxqMap []byte
	mac       [layout.NPorts][]byte
}

func readDtb(fn string) (*dtbConfig, error) {
	explicit := len(fn) > 0
	if !explicit {
		fn = defaultDtb
	}
	dc := new(dtbConfig)
	b, err := ioutil.ReadFile(fn)
	if err != nil {
		if explicit {
			return nil, err
		}
		return dc, nil
	}
	t := &fdt.Tree{Debug: false, IsLittleEndian: false}
	t.Parse(b)
	t.MatchNode("pruss-eth", func(n *fdt.Node) {
		if p, ok := n.Properties["mode"]; ok {
			dc.mode = strings.TrimRight(string(p), "\x00")
		}
		dc.rxSizes = propCells(n.Properties["rx-queue-size"])
		dc.txSizes = propCells(n.Properties["tx-queue-size"])
		dc.pcpRxqMap = n.Properties["pcp-rxq-map"]
		for _, child := range n.Children {
			mac, ok := child.Properties["local-mac-address"]
			if !ok || len(mac) != 6 {
				continue
			}
			switch {
			case strings.HasPrefix(child.Name, "ethernet-mii0"):
				dc.mac[layout.PortA] = mac
			case strings.HasPrefix(child.Name, "ethernet-mii1"):
				dc.mac[layout.PortB] = mac
			}
		}
	})
	return dc, nil
}

// propCells decodes a device tree cell array. Cells are big-endian
// regardless of the host.
func propCells(b []byte) []uint32 {
	cells := make([]uint32, 0, len(b)/4)
	for i := 0; i+4 <= len(b); i += 4 {
		cells = append(cells, binary.BigEndian.Uint32(b[i:]))
	}
	return cells
}

func devConfig(dc *dtbConfig, parm *parms.Parms) (*icsseth.Config, error) {
	name := dc.mode
	if s := parm.ByName["-mode"]; len(s) > 0 {
		name = s
	}
	if len(name) == 0 {
		name = "emac"
	}
	mode, err := layout.ModeByName(name)
	if err != nil {
		return nil, err
	}
	cfg := &icsseth.Config{Mode: mode}

	if s := parm.ByName["-hsr-mode"]; len(s) > 0 {
		if cfg.HsrMode, err = strconv.Atoi(s); err != nil {
			return nil, fmt.Errorf("-hsr-mode %s: invalid", s)
		}
	}

	if len(dc.rxSizes) > 0 || len(dc.txSizes) > 0 {
		qs := layout.DefaultQueueSizes(mode)
		for i, v := range dc.rxSizes {
			if i >= layout.NumQueues {
				break
			}
			qs.Host[i] = uint16(v)
		}
		for i, v := range dc.txSizes {
			if i >= layout.NumQueues {
				break
			}
			qs.PortA[i] = uint16(v)
			qs.PortB[i] = uint16(v)
		}
		cfg.QueueSizes = &qs
	}

	if len(dc.pcpRxqMap) == layout.NumVlanPcp {
		m := new([layout.NumVlanPcp]uint8)
		copy(m[:], dc.pcpRxqMap)
		cfg.PcpRxqMap = m
	}

	if cfg.MacA, err = portMac(layout.PortA, dc,
		parm.ByName["-mac-a"]); err != nil {
		return nil, err
	}
	if cfg.MacB, err = portMac(layout.PortB, dc,
		parm.ByName["-mac-b"]); err != nil {
		return nil, err
	}
	return cfg, nil
}

func portMac(p layout.Port, dc *dtbConfig, s string) (mac [6]byte, err error) {
	if len(s) > 0 {
		hw, err := net.ParseMAC(s)
		if err != nil || len(hw) != 6 {
			return mac, fmt.Errorf("%s: mac %q: invalid", p, s)
		}
		copy(mac[:], hw)
		return mac, nil
	}
	if b := dc.mac[p]; len(b) == 6 {
		copy(mac[:], b)
		return mac, nil
	}
	return mac, fmt.Errorf("%s: no mac address", p)
}

type stat struct {
	name  string
	count uint64
}

func counterFields(c *icsseth.Counters) []stat {
	return []stat{
		{"tx-packets", c.TxPackets.Count()},
		{"tx-bytes", c.TxBytes.Count()},
		{"tx-dropped", c.TxDropped.Count()},
		{"rx-packets", c.RxPackets.Count()},
		{"rx-bytes", c.RxBytes.Count()},
		{"rx-length-errors", c.RxLengthErrors.Count()},
		{"rx-over-errors", c.RxOverErrors.Count()},
		{"rx-overflows", c.RxOverflows.Count()},
		{"tx-collisions", c.TxCollisions.Count()},
		{"tx-collision-drops", c.TxCollisionDrops.Count()},
	}
}

func portStatFields(s *icsseth.PortStats) []stat {
	u := func(v uint32) uint64 { return uint64(v) }
	return []stat{
		{"tx-bcast", u(s.TxBcast)},
		{"tx-mcast", u(s.TxMcast)},
		{"tx-ucast", u(s.TxUcast)},
		{"tx-octets", u(s.TxOctets)},
		{"rx-bcast", u(s.RxBcast)},
		{"rx-mcast", u(s.RxMcast)},
		{"rx-ucast", u(s.RxUcast)},
		{"rx-octets", u(s.RxOctets)},
		{"tx-64", u(s.Tx64)},
		{"tx-65-127", u(s.Tx65_127)},
		{"tx-128-255", u(s.Tx128_255)},
		{"tx-256-511", u(s.Tx256_511)},
		{"tx-512-1023", u(s.Tx512_1023)},
		{"tx-1024", u(s.Tx1024)},
		{"rx-64", u(s.Rx64)},
		{"rx-65-127", u(s.Rx65_127)},
		{"rx-128-255", u(s.Rx128_255)},
		{"rx-256-511", u(s.Rx256_511)},
		{"rx-512-1023", u(s.Rx512_1023)},
		{"rx-1024", u(s.Rx1024)},
		{"late-coll", u(s.LateColl)},
		{"single-coll", u(s.SingleColl)},
		{"multi-coll", u(s.MultiColl)},
		{"excess-coll", u(s.ExcessColl)},
		{"rx-misalign", u(s.RxMisalign)},
		{"storm-prev", u(s.StormPrev)},
		{"mac-rx-error", u(s.MacRxError)},
		{"sfd-error", u(s.SfdError)},
		{"def-tx", u(s.DefTx)},
		{"mac-tx-error", u(s.MacTxError)},
		{"rx-oversized", u(s.RxOversized)},
		{"rx-undersized", u(s.RxUndersized)},
		{"rx-crc", u(s.RxCrc)},
		{"dropped", u(s.Dropped)},
		{"tx-hwq-overflow", u(s.TxHwqOverflow)},
		{"tx-hwq-underflow", u(s.TxHwqUnderflow)},
	}
}

func lreStatFields(st *lre.Stats) []stat {
	u := func(v uint32) uint64 { return uint64(v) }
	return []stat{
		{"tx-a", u(st.TxA)},
		{"tx-b", u(st.TxB)},
		{"tx-c", u(st.TxC)},
		{"err-wrong-lan-a", u(st.ErrWrongLanA)},
		{"err-wrong-lan-b", u(st.ErrWrongLanB)},
		{"err-wrong-lan-c", u(st.ErrWrongLanC)},
		{"rx-a", u(st.RxA)},
		{"rx-b", u(st.RxB)},
		{"rx-c", u(st.RxC)},
		{"errors-a", u(st.ErrorsA)},
		{"errors-b", u(st.ErrorsB)},
		{"errors-c", u(st.ErrorsC)},
		{"nodes", u(st.Nodes)},
		{"proxy-nodes", u(st.ProxyNodes)},
		{"unique-rx-a", u(st.UniqueRxA)},
		{"unique-rx-b", u(st.UniqueRxB)},
		{"unique-rx-c", u(st.UniqueRxC)},
		{"duplicate-rx-a", u(st.DuplicateRxA)},
		{"duplicate-rx-b", u(st.DuplicateRxB)},
		{"duplicate-rx-c", u(st.DuplicateRxC)},
		{"multi-rx-a", u(st.MultiRxA)},
		{"multi-rx-b", u(st.MultiRxB)},
		{"multi-rx-c", u(st.MultiRxC)},
		{"own-rx-a", u(st.OwnRxA)},
		{"own-rx-b", u(st.OwnRxB)},
		{"duplicate-discard", u(st.DuplicateDiscard)},
		{"transparent-reception", u(st.TransparentReception)},
		{"nt-lookup-err-a", u(st.NtLookupErrA)},
		{"nt-lookup-err-b", u(st.NtLookupErrB)},
		{"node-table-full", u(st.NodeTableFull)},
	}
}
