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
	"net"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common/mclock"
	"github.com/zacstewart/comm/p2p/address"
	"github.com/zacstewart/comm/p2p/discover/wire"
)

//错误
var (
	ErrTimeout             = errors.New("RPC timeout")
	ErrClosed              = errors.New("socket closed")
	ErrNotFound            = errors.New("node not found")
	errTooManyTransactions = errors.New("too many pending transactions")
	errUnsolicitedReply    = errors.New("unsolicited reply")
	errNoEndpoint          = errors.New("node has no usable endpoint")
)

//reply是收到的答复及其来源。
type reply struct {
	from   *net.UDPAddr
	origin *Node
	msg    wire.Message
}

//transaction是一个等待答复的查询。
type transaction struct {
	id       uint32
	dest     address.Address //空地址接受任何应答者
	expect   wire.MsgType
	timeout  time.Duration
	deadline mclock.AbsTime

	//重发状态
	retries int
	resend  func()

	//答复到达、超时或关闭时只调用一次。
	cont func(*reply, error)
}

//txtable按ID跟踪挂起的事务。
//ID在挂起期间不会重复使用。它不是并发安全的。
type txTable struct {
	clock   mclock.Clock
	limit   int
	next    uint32
	pending map[uint32]*transaction
	closed  bool
}

func newTxTable(clock mclock.Clock, limit int) *txTable {
	return &txTable{
		clock:   clock,
		limit:   limit,
		pending: make(map[uint32]*transaction),
	}
}

//begin注册一个新事务。调用方在发送查询后可以设置重发状态。
func (tt *txTable) begin(dest address.Address, expect wire.MsgType, timeout time.Duration, cont func(*reply, error)) (*transaction, error) {
	if tt.closed {
		return nil, ErrClosed
	}
	if len(tt.pending) >= tt.limit {
		return nil, errTooManyTransactions
	}
	tx := &transaction{
		id:       tt.nextID(),
		dest:     dest,
		expect:   expect,
		timeout:  timeout,
		deadline: tt.clock.Now().Add(timeout),
		cont:     cont,
	}
	tt.pending[tx.id] = tx
	pendingGauge.Update(int64(len(tt.pending)))
	return tx, nil
}

//nextid返回下一个未被占用的ID。零保留。
func (tt *txTable) nextID() uint32 {
	for {
		tt.next++
		if tt.next == 0 {
			continue
		}
		if _, used := tt.pending[tt.next]; !used {
			return tt.next
		}
	}
}

//complete把答复交给等待的事务。如果ID未知，或者答复的类型或
//发送者不匹配，返回false，事务保持不变。
func (tt *txTable) complete(id uint32, r *reply) bool {
	tx, ok := tt.pending[id]
	if !ok || r.msg.Kind() != tx.expect {
		return false
	}
	if !tx.dest.IsNull() && tx.dest != r.origin.ID {
		return false
	}
	tt.remove(id)
	tx.cont(r, nil)
	return true
}

//cancel删除事务而不调用其后续处理。
func (tt *txTable) cancel(id uint32) {
	tt.remove(id)
}

//expire处理已经超过期限的事务。还有重发次数的事务会被重发，
//其余的以ErrTimeout结束。返回过期的ID，按升序排列。
func (tt *txTable) expire(now mclock.AbsTime) []uint32 {
	var expired []uint32
	for id, tx := range tt.pending {
		if now < tx.deadline {
			continue
		}
		if tx.retries > 0 && tx.resend != nil {
			tx.retries--
			tx.deadline = now.Add(tx.timeout)
			tx.resend()
			continue
		}
		expired = append(expired, id)
	}
	sort.Slice(expired, func(i, j int) bool { return expired[i] < expired[j] })

	txs := make([]*transaction, len(expired))
	for i, id := range expired {
		txs[i] = tt.pending[id]
		tt.remove(id)
	}
	//后续处理可能开始新的事务，所以在遍历完成之后才调用。
	for _, tx := range txs {
		timeoutMeter.Mark(1)
		tx.cont(nil, ErrTimeout)
	}
	return expired
}

//closeall以err结束所有挂起的事务，之后begin总是失败。
func (tt *txTable) closeAll(err error) {
	tt.closed = true
	txs := make([]*transaction, 0, len(tt.pending))
	for _, tx := range tt.pending {
		txs = append(txs, tx)
	}
	tt.pending = make(map[uint32]*transaction)
	pendingGauge.Update(0)
	for _, tx := range txs {
		tx.cont(nil, err)
	}
}

func (tt *txTable) remove(id uint32) {
	delete(tt.pending, id)
	pendingGauge.Update(int64(len(tt.pending)))
}

func (tt *txTable) len() int { return len(tt.pending) }
