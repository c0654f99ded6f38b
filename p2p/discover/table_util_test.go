//版权所有2018 Go Ethereum作者
//此文件是Go以太坊库的一部分。
//
//Go-Ethereum库是免费软件：您可以重新分发它和/或修改
//根据GNU发布的较低通用公共许可证的条款
//自由软件基金会，或者许可证的第3版，或者
//（由您选择）任何更高版本。
//
//Go以太坊图书馆的发行目的是希望它会有用，
//但没有任何保证；甚至没有
//适销性或特定用途的适用性。见
//GNU较低的通用公共许可证，了解更多详细信息。
//
//你应该收到一份GNU较低级别的公共许可证副本
//以及Go以太坊图书馆。如果没有，请参见<http://www.gnu.org/licenses/>。

package discover

import (
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common/mclock"
	"github.com/ethereum/go-ethereum/log"
	"github.com/zacstewart/comm/p2p/address"
)

func hexID(s string) address.Address {
	return address.MustFromHex(s)
}

func intIP(i int) net.IP {
	return net.IP{10, 0, byte(i >> 8), byte(i)}
}

func testNode(id address.Address, i int) *Node {
	return NewNode(id, Endpoint{Protocol: UDP, IP: intIP(i), Port: 30303})
}

func randomID(rnd *rand.Rand) (id address.Address) {
	rnd.Read(id[:])
	return id
}

func newTestTable(self address.Address, k int) (*Table, *mclock.Simulated) {
	clock := new(mclock.Simulated)
	tab := NewTable(self, TableConfig{K: k, Clock: clock, Log: log.New()}, nil)
	return tab, clock
}

//checktable验证桶覆盖整个空间、首尾相接，并且每个节点在正确的桶里。
func checkTable(t *testing.T, tab *Table) {
	t.Helper()
	if len(tab.buckets) > address.Bits {
		t.Fatalf("too many buckets: %d", len(tab.buckets))
	}
	if low := tab.buckets[0].rng.Low(); !low.IsNull() {
		t.Fatalf("first bucket starts at %x", low)
	}
	if last := tab.buckets[len(tab.buckets)-1].rng.Last(); last != address.Full().Last() {
		t.Fatalf("last bucket ends at %x", last)
	}
	for i, b := range tab.buckets {
		if i > 0 {
			prev := tab.buckets[i-1].rng.Last()
			if next := increment(prev); next != b.rng.Low() {
				t.Fatalf("gap between bucket %d and %d: %x .. %x", i-1, i, prev, b.rng.Low())
			}
		}
		if len(b.entries) > tab.cfg.K {
			t.Fatalf("bucket %d has %d entries, k=%d", i, len(b.entries), tab.cfg.K)
		}
		for _, n := range b.nodes(&tab.store) {
			if !b.covers(n.ID) {
				t.Fatalf("node %x in bucket %d %v", n.ID, i, b.rng)
			}
		}
	}
	if hasDuplicates(tab.Nodes()) {
		t.Fatal("table contains duplicates")
	}
}

func increment(a address.Address) address.Address {
	for i := len(a) - 1; i >= 0; i-- {
		a[i]++
		if a[i] != 0 {
			break
		}
	}
	return a
}

func hasDuplicates(slice []*Node) bool {
	seen := make(map[address.Address]bool)
	for i, e := range slice {
		if e == nil {
			panic(fmt.Sprintf("nil *Node at %d", i))
		}
		if seen[e.ID] {
			return true
		}
		seen[e.ID] = true
	}
	return false
}

func contains(ns []*Node, id address.Address) bool {
	for _, n := range ns {
		if n.ID == id {
			return true
		}
	}
	return false
}

func sortedByDistanceTo(distbase address.Address, slice []*Node) bool {
	var last address.Address
	for i, e := range slice {
		if i > 0 && address.DistCmp(distbase, e.ID, last) < 0 {
			return false
		}
		last = e.ID
	}
	return true
}

//simnet是内存中的数据报网络。
type simNet struct {
	mu    sync.Mutex
	conns map[string]*simConn
	dead  map[string]bool
}

type simPacket struct {
	data []byte
	from *net.UDPAddr
}

type simConn struct {
	net       *simNet
	addr      *net.UDPAddr
	in        chan simPacket
	closing   chan struct{}
	closeOnce sync.Once
}

func newSimNet() *simNet {
	return &simNet{conns: make(map[string]*simConn), dead: make(map[string]bool)}
}

func (sn *simNet) listen(port int) *simConn {
	c := &simConn{
		net:     sn,
		addr:    &net.UDPAddr{IP: net.IP{127, 0, 0, 1}, Port: port},
		in:      make(chan simPacket, 512),
		closing: make(chan struct{}),
	}
	sn.mu.Lock()
	sn.conns[c.addr.String()] = c
	sn.mu.Unlock()
	return c
}

//setdead使发往addr的数据包被丢弃。
func (sn *simNet) setDead(addr net.Addr, dead bool) {
	sn.mu.Lock()
	sn.dead[addr.String()] = dead
	sn.mu.Unlock()
}

func (c *simConn) WriteToUDP(b []byte, to *net.UDPAddr) (int, error) {
	select {
	case <-c.closing:
		return 0, errors.New("closed")
	default:
	}
	c.net.mu.Lock()
	dst, dead := c.net.conns[to.String()], c.net.dead[to.String()]
	c.net.mu.Unlock()
	if dst == nil || dead {
		return len(b), nil
	}
	msg := make([]byte, len(b))
	copy(msg, b)
	select {
	case dst.in <- simPacket{data: msg, from: c.addr}:
	default:
	}
	return len(b), nil
}

func (c *simConn) ReadFromUDP(b []byte) (int, *net.UDPAddr, error) {
	select {
	case p := <-c.in:
		return copy(b, p.data), p.from, nil
	case <-c.closing:
		return 0, nil, io.EOF
	}
}

//readtimeout读取一个数据包，超时时返回nil。
func (c *simConn) readTimeout(d time.Duration) ([]byte, *net.UDPAddr) {
	select {
	case p := <-c.in:
		return p.data, p.from
	case <-time.After(d):
		return nil, nil
	}
}

func (c *simConn) Close() error {
	c.closeOnce.Do(func() {
		close(c.closing)
		c.net.mu.Lock()
		delete(c.net.conns, c.addr.String())
		c.net.mu.Unlock()
	})
	return nil
}

func (c *simConn) LocalAddr() net.Addr { return c.addr }

func testConfig() Config {
	return Config{
		RespTimeout:        100 * time.Millisecond,
		ExpireInterval:     10 * time.Millisecond,
		RevalidateInterval: time.Hour,
		RefreshInterval:    time.Hour,
		Log:                log.New(),
	}
}

func startTestNetwork(t *testing.T, sn *simNet, i int, cfg Config) *Network {
	t.Helper()
	self := address.ForContent([]byte(fmt.Sprintf("node-%d", i)))
	nw, err := ListenUDP(sn.listen(40000+i), self, cfg)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(nw.Close)
	return nw
}
