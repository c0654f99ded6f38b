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
	"github.com/ethereum/go-ethereum/common/mclock"
	"github.com/zacstewart/comm/p2p/address"
)

//insertoutcome描述插入节点的结果。
type InsertOutcome int

const (
	Ignored   InsertOutcome = iota //节点是我们自己
	Inserted                       //添加了新记录
	Updated                        //刷新了已有记录
	Discarded                      //桶已满，节点被丢弃
)

func (o InsertOutcome) String() string {
	switch o {
	case Ignored:
		return "ignored"
	case Inserted:
		return "inserted"
	case Updated:
		return "updated"
	case Discarded:
		return "discarded"
	default:
		return "unknown"
	}
}

//桶包含标识符区间内最多k个节点，按加入顺序排列。
type bucket struct {
	rng     address.Range
	k       int
	entries []handle
}

func newBucket(rng address.Range, k int) *bucket {
	return &bucket{rng: rng, k: k}
}

func (b *bucket) covers(id address.Address) bool { return b.rng.Contains(id) }

func (b *bucket) isFull() bool { return len(b.entries) >= b.k }

//insert添加或刷新n。调用方保证b覆盖n.id。
//插入时存储取得n的所有权。
func (b *bucket) insert(st *nodeStore, n *Node, now mclock.AbsTime) InsertOutcome {
	if have := b.find(st, n.ID); have != nil {
		have.mergeEndpoints(n.Endpoints)
		have.touch(now)
		return Updated
	}
	if b.isFull() {
		return Discarded
	}
	n.addedAt = now
	n.touch(now)
	b.entries = append(b.entries, st.put(n))
	return Inserted
}

//split在中点拆分桶。每个句柄移动到覆盖其节点的一半，顺序不变。
func (b *bucket) split(st *nodeStore) (lo, hi *bucket) {
	lorng, hirng := b.rng.Split()
	lo, hi = newBucket(lorng, b.k), newBucket(hirng, b.k)
	for _, h := range b.entries {
		if n := st.get(h); lo.covers(n.ID) {
			lo.entries = append(lo.entries, h)
		} else {
			hi.entries = append(hi.entries, h)
		}
	}
	return lo, hi
}

func (b *bucket) find(st *nodeStore, id address.Address) *Node {
	for _, h := range b.entries {
		if n := st.get(h); n.ID == id {
			return n
		}
	}
	return nil
}

//remove删除id的记录并释放其槽。
func (b *bucket) remove(st *nodeStore, id address.Address) *Node {
	for i, h := range b.entries {
		if n := st.get(h); n.ID == id {
			b.entries = append(b.entries[:i], b.entries[i+1:]...)
			st.release(h)
			return n
		}
	}
	return nil
}

func (b *bucket) nodes(st *nodeStore) []*Node {
	ns := make([]*Node, 0, len(b.entries))
	for _, h := range b.entries {
		ns = append(ns, st.get(h))
	}
	return ns
}

func (b *bucket) questionable(st *nodeStore, now mclock.AbsTime, p Policy) []*Node {
	var ns []*Node
	for _, h := range b.entries {
		if n := st.get(h); n.Questionable(now, p) {
			ns = append(ns, n)
		}
	}
	return ns
}
