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
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common/mclock"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/p2p/netutil"
	"github.com/zacstewart/comm/p2p/address"
	"github.com/zacstewart/comm/p2p/discover/wire"
)

//超时和间隔
const (
	respTimeout        = 500 * time.Millisecond
	expireInterval     = 100 * time.Millisecond
	revalidateInterval = 10 * time.Second
	refreshInterval    = 30 * time.Minute

	maxRounds  = 8
	maxPending = 1024
)

type conn interface {
	ReadFromUDP(b []byte) (n int, addr *net.UDPAddr, err error)
	WriteToUDP(b []byte, addr *net.UDPAddr) (n int, err error)
	Close() error
	LocalAddr() net.Addr
}

//packet是收到的应用层有效负载。
type Packet struct {
	From    *Node
	Payload []byte
}

//配置保存网络相关的设置。
type Config struct {
	//这些设置是可选的：
	K                  int              //桶容量
	Alpha              int              //查找并发度
	MaxRounds          int              //一次查找最多的轮数
	MaxPending         int              //最多同时挂起的事务
	RespTimeout        time.Duration    //查询等待答复的时间
	Retries            int              //超时后重发的次数
	ExpireInterval     time.Duration    //检查过期事务的间隔
	RevalidateInterval time.Duration    //探测可疑节点的间隔
	RefreshInterval    time.Duration    //自查找的间隔
	Policy             Policy           //活跃度策略
	Bootnodes          []*net.UDPAddr   //引导路由器，身份未知
	Announce           []*net.UDPAddr   //公布的端点，默认为本地地址
	NetRestrict        *netutil.Netlist //网络白名单
	Packets            chan<- Packet    //在此通道上发送收到的有效负载
	Clock              mclock.Clock
	Log                log.Logger
}

func (cfg Config) withDefaults() Config {
	if cfg.K <= 0 {
		cfg.K = bucketSize
	}
	if cfg.Alpha <= 0 {
		cfg.Alpha = alpha
	}
	if cfg.MaxRounds <= 0 {
		cfg.MaxRounds = maxRounds
	}
	if cfg.MaxPending <= 0 {
		cfg.MaxPending = maxPending
	}
	if cfg.RespTimeout <= 0 {
		cfg.RespTimeout = respTimeout
	}
	if cfg.ExpireInterval <= 0 {
		cfg.ExpireInterval = expireInterval
	}
	if cfg.RevalidateInterval <= 0 {
		cfg.RevalidateInterval = revalidateInterval
	}
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = refreshInterval
	}
	if cfg.Policy == (Policy{}) {
		cfg.Policy = DefaultPolicy()
	}
	if cfg.Clock == nil {
		cfg.Clock = mclock.System{}
	}
	if cfg.Log == nil {
		cfg.Log = log.Root()
	}
	return cfg
}

//network实现发现协议。
//
//路由表、事务表和正在进行的查找都归loop goroutine所有。
//readloop在自己的goroutine中解码数据包并交给loop。公共方法通过
//calls通道在loop中执行，因此是并发安全的。
type Network struct {
	conn    conn
	self    address.Address
	cfg     Config
	log     log.Logger
	ourNode wire.Node

	tab *Table
	txs *txTable

	gotpacket chan inbound
	calls     chan func()
	closing   chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

type inbound struct {
	from *net.UDPAddr
	txid uint32
	msg  wire.Message
}

//listenudp在c上启动发现协议。
func ListenUDP(c conn, self address.Address, cfg Config) (*Network, error) {
	if self.IsNull() {
		return nil, errors.New("null address is reserved for routers")
	}
	cfg = cfg.withDefaults()
	t := &Network{
		conn:      c,
		self:      self,
		cfg:       cfg,
		log:       cfg.Log.New("self", self.TerminalString()),
		gotpacket: make(chan inbound),
		calls:     make(chan func()),
		closing:   make(chan struct{}),
	}
	routers := make([]*Node, 0, len(cfg.Bootnodes))
	for _, addr := range cfg.Bootnodes {
		routers = append(routers, NewNode(address.Null(), UDPEndpoint(addr)))
	}
	t.tab = NewTable(self, TableConfig{K: cfg.K, Policy: cfg.Policy, Clock: cfg.Clock, Log: t.log}, routers)
	t.txs = newTxTable(cfg.Clock, cfg.MaxPending)
	t.ourNode = t.makeOurNode()

	t.wg.Add(2)
	go t.loop()
	go t.readLoop()
	return t, nil
}

func (t *Network) makeOurNode() wire.Node {
	addrs := t.cfg.Announce
	if len(addrs) == 0 {
		if la, ok := t.conn.LocalAddr().(*net.UDPAddr); ok {
			addrs = []*net.UDPAddr{la}
		}
	}
	n := wire.Node{ID: t.self.Hex()}
	for _, a := range addrs {
		ep := UDPEndpoint(a)
		n.Transports = append(n.Transports, wire.Transport{Type: wire.TransportUDP, IP: ep.IP, Port: ep.Port})
	}
	return n
}

//self返回我们的标识符。
func (t *Network) Self() address.Address { return t.self }

//localaddr返回套接字的本地地址。
func (t *Network) LocalAddr() net.Addr { return t.conn.LocalAddr() }

//close关闭套接字并等待goroutine退出。
//挂起的事务以ErrClosed结束。
func (t *Network) Close() {
	t.closeOnce.Do(func() {
		close(t.closing)
		t.conn.Close()
		t.wg.Wait()
	})
}

//loop在自己的goroutine中运行。它拥有路由表和事务表。
func (t *Network) loop() {
	defer t.wg.Done()
	if t.cfg.Packets != nil {
		defer close(t.cfg.Packets)
	}

	var (
		expire     = time.NewTicker(t.cfg.ExpireInterval)
		revalidate = time.NewTicker(t.cfg.RevalidateInterval)
		refresh    = time.NewTicker(t.cfg.RefreshInterval)
	)
	defer expire.Stop()
	defer revalidate.Stop()
	defer refresh.Stop()

	if len(t.tab.Routers()) > 0 {
		t.refresh()
	}
	for {
		select {
		case <-t.closing:
			t.txs.closeAll(ErrClosed)
			return

		case p := <-t.gotpacket:
			t.handlePacket(p)

		case f := <-t.calls:
			f()

		case <-expire.C:
			if expired := t.txs.expire(t.cfg.Clock.Now()); len(expired) > 0 {
				t.log.Trace("Expired transactions", "count", len(expired), "pending", t.txs.len())
			}

		case <-revalidate.C:
			t.revalidate()

		case <-refresh.C:
			t.refresh()
		}
	}
}

//refresh查找我们自己的标识符以填充路由表。
func (t *Network) refresh() {
	newLookup(context.Background(), t, t.self, func(res []*Node) {
		t.log.Debug("Refreshed table", "found", len(res), "size", t.tab.Len())
	}).run()
}

//revalidate ping所有可疑节点。失败太多的节点被删除。
func (t *Network) revalidate() {
	for _, n := range t.tab.Questionable() {
		id := n.ID
		err := t.query(n.copy(), &wire.PingQuery{Origin: t.ourNode}, func(_ *reply, err error) {
			if err == nil {
				return
			}
			if cur := t.tab.Find(id); cur != nil && cur.fails >= t.cfg.Policy.EvictFails {
				t.tab.Remove(id)
				evictionMeter.Mark(1)
				t.log.Debug("Removed dead node", "id", id.TerminalString(), "fails", cur.fails)
			}
		})
		if err != nil {
			t.log.Debug("Revalidation stopped", "err", err)
			return
		}
	}
}

//readloop在自己的goroutine中运行。它处理传入的UDP数据包。
func (t *Network) readLoop() {
	defer t.wg.Done()

	buf := make([]byte, wire.MaxPacketSize)
	for {
		nbytes, from, err := t.conn.ReadFromUDP(buf)
		if netutil.IsTemporaryError(err) {
			//忽略临时读取错误。
			t.log.Debug("Temporary UDP read error", "err", err)
			continue
		} else if err != nil {
			//关闭永久错误循环。
			t.log.Debug("UDP read error", "err", err)
			return
		}
		ingressTrafficMeter.Mark(int64(nbytes))
		txid, msg, err := wire.Decode(buf[:nbytes])
		if err != nil {
			malformedMeter.Mark(1)
			t.log.Debug("Bad discovery packet", "addr", from, "err", err)
			continue
		}
		t.log.Trace("<< "+msg.Kind().String(), "addr", from, "txid", txid)
		select {
		case t.gotpacket <- inbound{from: from, txid: txid, msg: msg}:
		case <-t.closing:
			return
		}
	}
}

func (t *Network) handlePacket(p inbound) {
	if t.cfg.NetRestrict != nil && !t.cfg.NetRestrict.Contains(p.from.IP) {
		t.log.Trace("Packet from outside netrestrict", "addr", p.from)
		return
	}
	origin, err := originFromWire(p.from, p.msg.Sender())
	if err != nil {
		malformedMeter.Mark(1)
		t.log.Debug("Invalid packet origin", "addr", p.from, "err", err)
		return
	}
	if origin.ID == t.self {
		return
	}

	switch req := p.msg.(type) {
	case *wire.PingQuery:
		t.tab.Insert(origin)
		t.send(p.from, p.txid, &wire.PingResponse{Origin: t.ourNode})

	case *wire.FindNodeQuery:
		target, err := address.FromHex(req.Target)
		if err != nil {
			t.log.Debug("Invalid FindNode target", "addr", p.from, "err", err)
			return
		}
		closest := t.tab.NearestTo(target, false)
		resp := &wire.FindNodeResponse{Origin: t.ourNode}
		for _, n := range closest {
			if n.ID == origin.ID {
				continue
			}
			if rn, ok := nodeToWire(p.from, n); ok {
				resp.Nodes = append(resp.Nodes, rn)
			}
		}
		t.tab.Insert(origin)
		packet, err := encodeNeighbors(p.txid, resp)
		if err != nil {
			t.log.Error("Can't encode discovery packet", "type", resp.Kind(), "err", err)
			return
		}
		t.write(p.from, resp.Kind().String(), packet)

	case *wire.PacketQuery:
		t.tab.Insert(origin.copy())
		if t.deliver(origin, req.Payload) {
			t.send(p.from, p.txid, &wire.PacketResponse{Origin: t.ourNode})
		}

	default:
		r := &reply{from: p.from, origin: origin, msg: p.msg}
		if !t.txs.complete(p.txid, r) {
			unsolicitedMeter.Mark(1)
			t.log.Trace("Dropped reply", "type", p.msg.Kind(), "txid", p.txid, "addr", p.from, "err", errUnsolicitedReply)
			return
		}
		t.tab.Insert(origin.copy())
	}
}

//deliver把有效负载交给应用。接收方忙时丢弃，发送方会超时。
func (t *Network) deliver(from *Node, payload []byte) bool {
	if t.cfg.Packets == nil {
		t.log.Debug("No packet receiver", "from", from)
		return false
	}
	select {
	case t.cfg.Packets <- Packet{From: from, Payload: payload}:
		return true
	default:
		droppedPacketMeter.Mark(1)
		t.log.Warn("Dropping inbound packet, receiver busy", "from", from, "size", len(payload))
		return false
	}
}

//query向节点发送查询，并在答复到达或超时后调用cb。
//超时会增加节点的失败计数。
func (t *Network) query(to *Node, msg wire.Message, cb func(*reply, error)) error {
	tx, err := t.txs.begin(to.ID, msg.Kind().ResponseType(), t.cfg.RespTimeout, func(r *reply, err error) {
		if err == ErrTimeout && !to.IsRouter() {
			t.tab.Fail(to.ID)
		}
		cb(r, err)
	})
	if err != nil {
		return err
	}
	packet, err := wire.Encode(tx.id, msg)
	if err != nil {
		t.txs.cancel(tx.id)
		t.log.Error("Can't encode discovery packet", "type", msg.Kind(), "err", err)
		return err
	}
	what := msg.Kind().String()
	if err := t.writeTo(to, what, packet); err == errNoEndpoint {
		t.txs.cancel(tx.id)
		return err
	}
	tx.retries = t.cfg.Retries
	tx.resend = func() { t.writeTo(to, what, packet) }
	return nil
}

//findnode向节点请求离target最近的节点。
func (t *Network) findnode(to *Node, target address.Address, cb func(origin *Node, nodes []*Node, err error)) error {
	req := &wire.FindNodeQuery{Origin: t.ourNode, Target: target.Hex()}
	return t.query(to, req, func(r *reply, err error) {
		if err != nil {
			cb(nil, nil, err)
			return
		}
		resp := r.msg.(*wire.FindNodeResponse)
		nodes := make([]*Node, 0, len(resp.Nodes))
		for _, rn := range resp.Nodes {
			if len(nodes) >= t.cfg.K {
				break
			}
			n, err := t.nodeFromWire(r.from, rn)
			if err != nil {
				t.log.Trace("Invalid neighbor node received", "id", rn.ID, "addr", r.from, "err", err)
				continue
			}
			nodes = append(nodes, n)
		}
		cb(r.origin, nodes, nil)
	})
}

//encodeneighbors编码findnode答复。答复超过MaxPacketSize时从最远的节点开始丢弃。
func encodeNeighbors(txid uint32, resp *wire.FindNodeResponse) ([]byte, error) {
	for {
		packet, err := wire.Encode(txid, resp)
		if err == wire.ErrPacketTooLarge && len(resp.Nodes) > 0 {
			resp.Nodes = resp.Nodes[:len(resp.Nodes)-1]
			continue
		}
		return packet, err
	}
}

func (t *Network) send(toaddr *net.UDPAddr, txid uint32, msg wire.Message) error {
	packet, err := wire.Encode(txid, msg)
	if err != nil {
		t.log.Error("Can't encode discovery packet", "type", msg.Kind(), "err", err)
		return err
	}
	return t.write(toaddr, msg.Kind().String(), packet)
}

//writeto把数据包发送到节点的第一个可用端点。
func (t *Network) writeTo(n *Node, what string, packet []byte) error {
	for _, ep := range n.Endpoints {
		switch ep.Protocol {
		case UDP:
			return t.write(ep.udpAddr(), what, packet)
		default:
			t.log.Trace("Skipping unsupported endpoint", "node", n, "endpoint", ep)
		}
	}
	return errNoEndpoint
}

func (t *Network) write(toaddr *net.UDPAddr, what string, packet []byte) error {
	nbytes, err := t.conn.WriteToUDP(packet, toaddr)
	egressTrafficMeter.Mark(int64(nbytes))
	t.log.Trace(">> "+what, "addr", toaddr, "err", err)
	return err
}

//originfromwire使用数据包的源地址作为发送者的端点。
func originFromWire(from *net.UDPAddr, rn wire.Node) (*Node, error) {
	id, err := address.FromHex(rn.ID)
	if err != nil {
		return nil, err
	}
	if id.IsNull() {
		return nil, errors.New("null origin")
	}
	return NewNode(id, UDPEndpoint(from)), nil
}

func (t *Network) nodeFromWire(sender *net.UDPAddr, rn wire.Node) (*Node, error) {
	id, err := address.FromHex(rn.ID)
	if err != nil {
		return nil, err
	}
	if id.IsNull() {
		return nil, errors.New("null address")
	}
	n := NewNode(id)
	for _, tr := range rn.Transports {
		if len(n.Endpoints) >= maxEndpoints {
			break
		}
		ep, err := t.endpointFromWire(sender, tr)
		if err != nil {
			t.log.Trace("Skipping relayed endpoint", "id", id.TerminalString(), "ip", tr.IP, "err", err)
			continue
		}
		n.Endpoints = append(n.Endpoints, ep)
	}
	if len(n.Endpoints) == 0 {
		return nil, errNoEndpoint
	}
	return n, nil
}

func (t *Network) endpointFromWire(sender *net.UDPAddr, tr wire.Transport) (Endpoint, error) {
	switch Protocol(tr.Type) {
	case UDP:
		if tr.Port == 0 {
			return Endpoint{}, errors.New("zero port")
		}
		if err := netutil.CheckRelayIP(sender.IP, tr.IP); err != nil {
			return Endpoint{}, err
		}
		if t.cfg.NetRestrict != nil && !t.cfg.NetRestrict.Contains(tr.IP) {
			return Endpoint{}, errors.New("not contained in netrestrict whitelist")
		}
		return UDPEndpoint(&net.UDPAddr{IP: tr.IP, Port: int(tr.Port)}), nil
	default:
		return Endpoint{}, fmt.Errorf("unknown transport type %d", tr.Type)
	}
}

//nodetowire编码n，只保留可以转发给requester的端点。
func nodeToWire(requester *net.UDPAddr, n *Node) (wire.Node, bool) {
	rn := wire.Node{ID: n.ID.Hex()}
	for _, ep := range n.Endpoints {
		if len(rn.Transports) >= maxEndpoints {
			break
		}
		if netutil.CheckRelayIP(requester.IP, ep.IP) != nil {
			continue
		}
		rn.Transports = append(rn.Transports, wire.Transport{Type: uint8(ep.Protocol), IP: ep.IP, Port: ep.Port})
	}
	return rn, len(rn.Transports) > 0
}
