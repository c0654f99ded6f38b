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
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/zacstewart/comm/p2p/address"
	"github.com/zacstewart/comm/p2p/discover/wire"
)

func TestNetwork_pingAddr(t *testing.T) {
	sn := newSimNet()
	a := startTestNetwork(t, sn, 1, testConfig())
	b := startTestNetwork(t, sn, 2, testConfig())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	id, err := a.PingAddr(ctx, b.LocalAddr().(*net.UDPAddr))
	require.NoError(t, err)
	require.Equal(t, b.Self(), id)

	require.True(t, contains(a.Peers(), b.Self()))
	require.True(t, contains(b.Peers(), a.Self()))
	require.NoError(t, a.Ping(ctx, b.Self()))
}

func TestNetwork_pingTimeout(t *testing.T) {
	sn := newSimNet()
	a := startTestNetwork(t, sn, 1, testConfig())
	b := startTestNetwork(t, sn, 2, testConfig())
	ctx := context.Background()

	_, err := a.PingAddr(ctx, b.LocalAddr().(*net.UDPAddr))
	require.NoError(t, err)

	sn.setDead(b.LocalAddr(), true)
	require.Equal(t, ErrTimeout, a.Ping(ctx, b.Self()))
	peers := a.Peers()
	require.Len(t, peers, 1)
	require.Equal(t, 1, peers[0].Fails())

	sn.setDead(b.LocalAddr(), false)
	require.NoError(t, a.Ping(ctx, b.Self()))
	require.Equal(t, 0, a.Peers()[0].Fails())

	require.Equal(t, ErrNotFound, a.Ping(ctx, address.ForContent([]byte("nobody"))))
}

func TestNetwork_unsolicitedReply(t *testing.T) {
	sn := newSimNet()
	nw := startTestNetwork(t, sn, 1, testConfig())
	raw := sn.listen(50000)
	defer raw.Close()

	stranger := address.ForContent([]byte("stranger"))
	packet, err := wire.Encode(777, &wire.PingResponse{Origin: wire.Node{ID: stranger.Hex()}})
	require.NoError(t, err)
	raw.WriteToUDP(packet, nw.LocalAddr().(*net.UDPAddr))

	//后面的查询在未请求的答复之后处理。
	asker := address.ForContent([]byte("asker"))
	packet, err = wire.Encode(5, &wire.PingQuery{Origin: wire.Node{ID: asker.Hex()}})
	require.NoError(t, err)
	raw.WriteToUDP(packet, nw.LocalAddr().(*net.UDPAddr))

	resp, _ := raw.readTimeout(5 * time.Second)
	require.NotNil(t, resp, "no pong received")
	txid, msg, err := wire.Decode(resp)
	require.NoError(t, err)
	require.Equal(t, uint32(5), txid)
	require.Equal(t, wire.PingResponseMsg, msg.Kind())
	require.Equal(t, nw.Self().Hex(), msg.Sender().ID)

	peers := nw.Peers()
	require.True(t, contains(peers, asker))
	require.False(t, contains(peers, stranger))
}

func TestNetwork_findNodeHandler(t *testing.T) {
	sn := newSimNet()
	nw := startTestNetwork(t, sn, 1, testConfig())
	ctx := context.Background()
	for i := 2; i < 12; i++ {
		other := startTestNetwork(t, sn, i, testConfig())
		_, err := other.PingAddr(ctx, nw.LocalAddr().(*net.UDPAddr))
		require.NoError(t, err)
	}

	raw := sn.listen(50000)
	defer raw.Close()
	target := address.ForContent([]byte("target"))
	asker := address.ForContent([]byte("asker"))
	packet, _ := wire.Encode(9, &wire.FindNodeQuery{Origin: wire.Node{ID: asker.Hex()}, Target: target.Hex()})
	raw.WriteToUDP(packet, nw.LocalAddr().(*net.UDPAddr))

	data, _ := raw.readTimeout(5 * time.Second)
	require.NotNil(t, data)
	txid, msg, err := wire.Decode(data)
	require.NoError(t, err)
	require.Equal(t, uint32(9), txid)

	resp := msg.(*wire.FindNodeResponse)
	require.Len(t, resp.Nodes, 10)
	var ids []*Node
	for _, rn := range resp.Nodes {
		id, err := address.FromHex(rn.ID)
		require.NoError(t, err)
		require.Len(t, rn.Transports, 1)
		ids = append(ids, NewNode(id))
	}
	require.True(t, sortedByDistanceTo(target, ids))
	require.False(t, hasDuplicates(ids))
}

func TestNetwork_lookup(t *testing.T) {
	sn := newSimNet()
	boot := startTestNetwork(t, sn, 0, testConfig())
	bootaddr := boot.LocalAddr().(*net.UDPAddr)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	var nodes []*Network
	for i := 1; i <= 24; i++ {
		cfg := testConfig()
		cfg.Bootnodes = []*net.UDPAddr{bootaddr}
		nw := startTestNetwork(t, sn, i, cfg)
		require.NoError(t, nw.Bootstrap(ctx))
		nodes = append(nodes, nw)
	}
	//第二轮让较早的节点也认识后来的节点。
	for _, nw := range nodes {
		require.NoError(t, nw.Bootstrap(ctx))
	}

	for _, pair := range [][2]int{{0, 20}, {5, 17}, {23, 2}} {
		src, dst := nodes[pair[0]], nodes[pair[1]]
		res, err := src.Lookup(ctx, dst.Self())
		require.NoError(t, err)
		require.NotEmpty(t, res)
		require.Equal(t, dst.Self(), res[0].ID, "lookup %d -> %d", pair[0], pair[1])
		require.True(t, sortedByDistanceTo(dst.Self(), res))
		require.False(t, hasDuplicates(res))
		for _, n := range res {
			require.False(t, n.IsRouter())
		}
	}
}

func TestNetwork_lookupDeadRouter(t *testing.T) {
	sn := newSimNet()
	cfg := testConfig()
	cfg.Bootnodes = []*net.UDPAddr{{IP: net.IP{127, 0, 0, 1}, Port: 49999}}
	nw := startTestNetwork(t, sn, 1, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	res, err := nw.Lookup(ctx, address.ForContent([]byte("x")))
	require.NoError(t, err)
	require.Empty(t, res)

	_, err = nw.Resolve(ctx, address.ForContent([]byte("x")))
	require.Equal(t, ErrNotFound, err)
}

func TestNetwork_lookupCancelled(t *testing.T) {
	sn := newSimNet()
	cfg := testConfig()
	cfg.RespTimeout = time.Hour
	cfg.Bootnodes = []*net.UDPAddr{{IP: net.IP{127, 0, 0, 1}, Port: 49999}}
	nw := startTestNetwork(t, sn, 1, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := nw.Lookup(ctx, address.ForContent([]byte("x")))
	require.Equal(t, context.DeadlineExceeded, err)
}

func TestNetwork_sendPacket(t *testing.T) {
	sn := newSimNet()
	packets := make(chan Packet, 1)
	cfg := testConfig()
	cfg.Packets = packets
	a := startTestNetwork(t, sn, 1, cfg)
	b := startTestNetwork(t, sn, 2, testConfig())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := b.PingAddr(ctx, a.LocalAddr().(*net.UDPAddr))
	require.NoError(t, err)

	require.NoError(t, b.SendPacket(ctx, a.Self(), []byte("hello")))
	select {
	case p := <-packets:
		require.Equal(t, b.Self(), p.From.ID)
		require.Equal(t, []byte("hello"), p.Payload)
	case <-ctx.Done():
		t.Fatal("packet not delivered")
	}

	//接收方忙时不确认。
	packets <- Packet{}
	require.Equal(t, ErrTimeout, b.SendPacket(ctx, a.Self(), []byte("again")))

	//没有接收方的节点也不确认。
	require.NoError(t, a.Ping(ctx, b.Self()))
	require.Equal(t, ErrTimeout, a.SendPacket(ctx, b.Self(), []byte("nobody listens")))
}

func TestNetwork_revalidateEvicts(t *testing.T) {
	sn := newSimNet()
	cfg := testConfig()
	cfg.RevalidateInterval = 20 * time.Millisecond
	cfg.RespTimeout = 20 * time.Millisecond
	cfg.Policy = Policy{MaxFails: 0, StaleAfter: time.Hour, EvictFails: 2}
	a := startTestNetwork(t, sn, 1, cfg)
	b := startTestNetwork(t, sn, 2, testConfig())
	ctx := context.Background()

	_, err := a.PingAddr(ctx, b.LocalAddr().(*net.UDPAddr))
	require.NoError(t, err)
	sn.setDead(b.LocalAddr(), true)
	require.Equal(t, ErrTimeout, a.Ping(ctx, b.Self()))

	require.Eventually(t, func() bool { return len(a.Peers()) == 0 }, 5*time.Second, 20*time.Millisecond)
}

func TestNetwork_close(t *testing.T) {
	sn := newSimNet()
	packets := make(chan Packet)
	cfg := testConfig()
	cfg.Packets = packets
	nw := startTestNetwork(t, sn, 1, cfg)
	nw.Close()
	nw.Close()

	_, ok := <-packets
	require.False(t, ok)
	_, err := nw.Lookup(context.Background(), nw.Self())
	require.Equal(t, ErrClosed, err)
	require.Nil(t, nw.Peers())
}

func TestListenUDP_nullSelf(t *testing.T) {
	_, err := ListenUDP(newSimNet().listen(1), address.Null(), testConfig())
	require.Error(t, err)
}

func TestEncodeNeighbors_trimsToPacketSize(t *testing.T) {
	resp := &wire.FindNodeResponse{Origin: wire.Node{ID: oneID.Hex()}}
	for i := 0; i < 300; i++ {
		rn := wire.Node{ID: address.ForContent([]byte{byte(i), byte(i >> 8)}).Hex()}
		for j := 0; j < maxEndpoints; j++ {
			rn.Transports = append(rn.Transports, wire.Transport{Type: wire.TransportUDP, IP: intIP(i*maxEndpoints + j), Port: 30303})
		}
		resp.Nodes = append(resp.Nodes, rn)
	}
	first := resp.Nodes[0].ID

	packet, err := encodeNeighbors(7, resp)
	require.NoError(t, err)
	require.True(t, len(packet) <= wire.MaxPacketSize)
	require.True(t, len(resp.Nodes) < 300)

	txid, msg, err := wire.Decode(packet)
	require.NoError(t, err)
	require.Equal(t, uint32(7), txid)
	decoded := msg.(*wire.FindNodeResponse)
	require.Len(t, decoded.Nodes, len(resp.Nodes))
	require.Equal(t, first, decoded.Nodes[0].ID)
}
