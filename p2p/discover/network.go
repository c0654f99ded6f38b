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
	"net"

	"github.com/zacstewart/comm/p2p/address"
	"github.com/zacstewart/comm/p2p/discover/wire"
)

//do在事件循环中执行f。
func (t *Network) do(ctx context.Context, f func()) error {
	select {
	case t.calls <- f:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-t.closing:
		return ErrClosed
	}
}

//inspect在事件循环中执行f并等待它返回。网络关闭时返回false。
func (t *Network) inspect(f func()) bool {
	done := make(chan struct{})
	select {
	case t.calls <- func() { f(); close(done) }:
		<-done
		return true
	case <-t.closing:
		return false
	}
}

//await在事件循环中调用start，并等待它发出的结果。
func (t *Network) await(ctx context.Context, start func(errc chan<- error) error) error {
	errc := make(chan error, 1)
	err := t.do(ctx, func() {
		if err := start(errc); err != nil {
			errc <- err
		}
	})
	if err != nil {
		return err
	}
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-t.closing:
		return ErrClosed
	}
}

func copyNodes(ns []*Node) []*Node {
	cpy := make([]*Node, len(ns))
	for i, n := range ns {
		cpy[i] = n.copy()
	}
	return cpy
}

//peers返回路由表中所有节点的副本。
func (t *Network) Peers() []*Node {
	var ns []*Node
	t.inspect(func() { ns = copyNodes(t.tab.Nodes()) })
	return ns
}

//questionable返回可疑节点的副本。
func (t *Network) Questionable() []*Node {
	var ns []*Node
	t.inspect(func() { ns = copyNodes(t.tab.Questionable()) })
	return ns
}

//nearestto返回表中离target最近的节点，不包括路由器。
func (t *Network) NearestTo(target address.Address) []*Node {
	var ns []*Node
	t.inspect(func() { ns = copyNodes(t.tab.NearestTo(target, false)) })
	return ns
}

//buckets描述路由表的桶。
func (t *Network) Buckets() []BucketInfo {
	var bs []BucketInfo
	t.inspect(func() { bs = t.tab.Buckets() })
	return bs
}

//lookup执行一次迭代查找，返回离target最近的已应答节点。
func (t *Network) Lookup(ctx context.Context, target address.Address) ([]*Node, error) {
	resc := make(chan []*Node, 1)
	err := t.do(ctx, func() {
		newLookup(ctx, t, target, func(res []*Node) { resc <- res }).run()
	})
	if err != nil {
		return nil, err
	}
	select {
	case res := <-resc:
		return res, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-t.closing:
		return nil, ErrClosed
	}
}

//bootstrap通过查找我们自己的标识符填充路由表。
func (t *Network) Bootstrap(ctx context.Context) error {
	_, err := t.Lookup(ctx, t.self)
	return err
}

//resolve在路由表中查找id，找不到时执行一次查找。
func (t *Network) Resolve(ctx context.Context, id address.Address) (*Node, error) {
	var n *Node
	if !t.inspect(func() {
		if found := t.tab.Find(id); found != nil {
			n = found.copy()
		}
	}) {
		return nil, ErrClosed
	}
	if n != nil {
		return n, nil
	}
	res, err := t.Lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	for _, r := range res {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, ErrNotFound
}

//ping向表中的节点发送ping并等待答复。
func (t *Network) Ping(ctx context.Context, id address.Address) error {
	var n *Node
	if !t.inspect(func() {
		if found := t.tab.Find(id); found != nil {
			n = found.copy()
		}
	}) {
		return ErrClosed
	}
	if n == nil {
		return ErrNotFound
	}
	return t.await(ctx, func(errc chan<- error) error {
		return t.query(n, &wire.PingQuery{Origin: t.ourNode}, func(_ *reply, err error) { errc <- err })
	})
}

//pingaddr向身份未知的端点发送ping，返回应答者的标识符。
func (t *Network) PingAddr(ctx context.Context, addr *net.UDPAddr) (address.Address, error) {
	var id address.Address
	router := NewNode(address.Null(), UDPEndpoint(addr))
	err := t.await(ctx, func(errc chan<- error) error {
		return t.query(router, &wire.PingQuery{Origin: t.ourNode}, func(r *reply, err error) {
			if err == nil {
				id = r.origin.ID
			}
			errc <- err
		})
	})
	if err != nil {
		return address.Address{}, err
	}
	return id, nil
}

//sendpacket把有效负载交给dest，并等待确认。
func (t *Network) SendPacket(ctx context.Context, dest address.Address, payload []byte) error {
	n, err := t.Resolve(ctx, dest)
	if err != nil {
		return err
	}
	return t.await(ctx, func(errc chan<- error) error {
		req := &wire.PacketQuery{Origin: t.ourNode, Payload: payload}
		return t.query(n, req, func(_ *reply, err error) { errc <- err })
	})
}
