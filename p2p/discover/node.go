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
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common/mclock"
	"github.com/zacstewart/comm/p2p/address"
)

//protocol标识端点的传输类型。
type Protocol uint8

const (
	UDP Protocol = 1 //与线路上的传输类型相同
)

func (p Protocol) String() string {
	switch p {
	case UDP:
		return "udp"
	default:
		return "proto(" + strconv.Itoa(int(p)) + ")"
	}
}

//maxendpoints是一个节点记录保存的端点上限。
const maxEndpoints = 4

//endpoint是节点可以联系到的一个地址。
type Endpoint struct {
	Protocol Protocol
	IP       net.IP
	Port     uint16
}

//udpendpoint从UDP地址创建端点。
func UDPEndpoint(addr *net.UDPAddr) Endpoint {
	ip := addr.IP
	if ip4 := ip.To4(); ip4 != nil {
		ip = ip4
	}
	return Endpoint{Protocol: UDP, IP: ip, Port: uint16(addr.Port)}
}

func (e Endpoint) String() string {
	return e.Protocol.String() + "://" + net.JoinHostPort(e.IP.String(), strconv.Itoa(int(e.Port)))
}

func (e Endpoint) equal(o Endpoint) bool {
	return e.Protocol == o.Protocol && e.Port == o.Port && e.IP.Equal(o.IP)
}

func (e Endpoint) udpAddr() *net.UDPAddr {
	return &net.UDPAddr{IP: e.IP, Port: int(e.Port)}
}

//policy决定节点何时被视为可疑，以及何时被逐出。
type Policy struct {
	MaxFails   int           //失败次数超过此值时节点可疑
	StaleAfter time.Duration //超过此时长未联系时节点可疑
	EvictFails int           //重新验证时连续失败达到此值则删除节点
}

//defaultpolicy返回默认的活跃度设置。
func DefaultPolicy() Policy {
	return Policy{
		MaxFails:   1,
		StaleAfter: 15 * time.Minute,
		EvictFails: 5,
	}
}

//node是路由表中的一个对等记录。
//
//ID和端点在线路上公布。其余字段记录活跃度，
//只能由拥有路由表的goroutine修改。
type Node struct {
	ID        address.Address
	Endpoints []Endpoint

	addedAt  mclock.AbsTime
	lastSeen mclock.AbsTime
	fails    int
}

//newnode创建一个新的节点记录。
func NewNode(id address.Address, endpoints ...Endpoint) *Node {
	return &Node{ID: id, Endpoints: endpoints}
}

//isrouter报告节点是否是身份未知的引导路由器。
func (n *Node) IsRouter() bool { return n.ID.IsNull() }

func (n *Node) AddedAt() mclock.AbsTime  { return n.addedAt }
func (n *Node) LastSeen() mclock.AbsTime { return n.lastSeen }
func (n *Node) Fails() int               { return n.fails }

//questionable报告节点是否应该被探测。
func (n *Node) Questionable(now mclock.AbsTime, p Policy) bool {
	return n.fails > p.MaxFails || time.Duration(now-n.lastSeen) > p.StaleAfter
}

func (n *Node) String() string {
	if n.IsRouter() && len(n.Endpoints) > 0 {
		return "router@" + n.Endpoints[0].String()
	}
	return n.ID.TerminalString()
}

//touch在成功交互后刷新时间戳并清除失败计数。
func (n *Node) touch(now mclock.AbsTime) {
	n.lastSeen = now
	n.fails = 0
}

//mergeendpoints添加尚未知道的端点。记录最多保存maxEndpoints个端点：
//列表满时前面的端点保持不变，新端点替换最后一个。
func (n *Node) mergeEndpoints(eps []Endpoint) {
outer:
	for _, ep := range eps {
		for _, have := range n.Endpoints {
			if have.equal(ep) {
				continue outer
			}
		}
		if len(n.Endpoints) < maxEndpoints {
			n.Endpoints = append(n.Endpoints, ep)
		} else {
			n.Endpoints[maxEndpoints-1] = ep
		}
	}
}

func (n *Node) copy() *Node {
	cpy := *n
	cpy.Endpoints = append([]Endpoint(nil), n.Endpoints...)
	return &cpy
}

//handle是存储中节点记录的稳定引用。
type handle struct {
	idx int32
	gen uint32
}

func (h handle) String() string { return fmt.Sprintf("%d/%d", h.idx, h.gen) }
