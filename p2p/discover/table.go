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

//包discover实现了类kademlia的节点发现和路由。
//
//路由表把标识符空间划分为若干桶。开始时只有一个覆盖整个空间的桶，
//当包含我们自己标识符的桶满了时，它在中点一分为二。离我们远的
//桶满了以后丢弃新节点。查询在一个goroutine中按事务ID关联，
//查找过程并行询问alpha个最近的节点，直到不再接近目标。
package discover

import (
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common/mclock"
	"github.com/ethereum/go-ethereum/log"
	"github.com/zacstewart/comm/p2p/address"
)

const (
	bucketSize = 20 //默认的k
	alpha      = 3  //查找并发度
)

//routinginvariantviolation表示没有桶覆盖某个标识符。
//这是编程错误，路由表会以它为值panic。
type RoutingInvariantViolation struct {
	ID      address.Address
	Buckets int
}

func (e RoutingInvariantViolation) Error() string {
	return fmt.Sprintf("no bucket covers %x (%d buckets)", e.ID[:], e.Buckets)
}

//tableconfig保存路由表设置。
type TableConfig struct {
	K      int
	Policy Policy
	Clock  mclock.Clock
	Log    log.Logger
}

func (cfg TableConfig) withDefaults() TableConfig {
	if cfg.K <= 0 {
		cfg.K = bucketSize
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

//table是路由表。它不是并发安全的，由网络的事件循环独占。
type Table struct {
	self    address.Address
	cfg     TableConfig
	log     log.Logger
	store   nodeStore
	buckets []*bucket //按区间排序，相邻区间首尾相接
	routers []*Node   //引导路由器，从不进入桶
}

//bucketinfo描述一个桶，用于检查。
type BucketInfo struct {
	Range  address.Range
	Size   int
	Covers bool //桶是否包含我们自己的标识符
}

//newtable创建一个只有一个桶的路由表。
func NewTable(self address.Address, cfg TableConfig, routers []*Node) *Table {
	cfg = cfg.withDefaults()
	tab := &Table{
		self:    self,
		cfg:     cfg,
		log:     cfg.Log,
		buckets: []*bucket{newBucket(address.Full(), cfg.K)},
	}
	for _, r := range routers {
		tab.routers = append(tab.routers, r.copy())
	}
	return tab
}

//self返回我们的标识符。
func (tab *Table) Self() address.Address { return tab.self }

//k返回桶容量。
func (tab *Table) K() int { return tab.cfg.K }

//insert添加或刷新节点。
//
//如果覆盖该节点的桶已满并且包含我们自己，桶会被拆分，然后重试。
//每次拆分都增加桶的数量，而桶数不超过标识符位数，所以循环有界。
func (tab *Table) Insert(n *Node) InsertOutcome {
	if n.ID == tab.self || n.IsRouter() {
		return Ignored
	}
	now := tab.cfg.Clock.Now()
	for {
		i := tab.bucketIndex(n.ID)
		b := tab.buckets[i]
		switch outcome := b.insert(&tab.store, n, now); outcome {
		case Inserted:
			tab.log.Debug("Added node to table", "id", n.ID.TerminalString(), "range", b.rng)
			tableSizeGauge.Update(int64(tab.store.len()))
			return outcome
		case Updated:
			return outcome
		}
		if !b.covers(tab.self) || len(tab.buckets) >= address.Bits {
			tab.log.Trace("Discarded node", "id", n.ID.TerminalString(), "range", b.rng)
			return Discarded
		}
		lo, hi := b.split(&tab.store)
		tab.buckets = append(tab.buckets[:i], append([]*bucket{lo, hi}, tab.buckets[i+1:]...)...)
		tab.log.Trace("Split bucket", "buckets", len(tab.buckets), "lo", len(lo.entries), "hi", len(hi.entries))
	}
}

//find返回id的记录。返回的指针只在事件循环中有效。
func (tab *Table) Find(id address.Address) *Node {
	return tab.bucketFor(id).find(&tab.store, id)
}

//remove删除id的记录。
func (tab *Table) Remove(id address.Address) bool {
	if tab.bucketFor(id).remove(&tab.store, id) == nil {
		return false
	}
	tableSizeGauge.Update(int64(tab.store.len()))
	return true
}

//fail增加节点的失败计数，返回新的计数。
//未知节点返回0。
func (tab *Table) Fail(id address.Address) int {
	n := tab.Find(id)
	if n == nil {
		return 0
	}
	n.fails++
	return n.fails
}

//nearest返回离我们最近的最多limit个节点，不足时用引导路由器补齐。
func (tab *Table) Nearest(limit int) []*Node {
	ns := tab.closest(tab.self, limit)
	return tab.withRouters(ns, limit)
}

//nearestto返回离target最近的最多k个节点。
//includerouters为真时，引导路由器排在所有真实节点之后。
func (tab *Table) NearestTo(target address.Address, includeRouters bool) []*Node {
	ns := tab.closest(target, tab.cfg.K)
	if includeRouters {
		ns = tab.withRouters(ns, tab.cfg.K)
	}
	return ns
}

func (tab *Table) closest(target address.Address, limit int) []*Node {
	res := &nodesByDistance{target: target}
	for _, b := range tab.buckets {
		for _, h := range b.entries {
			res.push(tab.store.get(h), limit)
		}
	}
	return res.entries
}

func (tab *Table) withRouters(ns []*Node, limit int) []*Node {
	for _, r := range tab.routers {
		if len(ns) >= limit {
			break
		}
		ns = append(ns, r)
	}
	return ns
}

//questionable返回所有可疑的节点。
func (tab *Table) Questionable() []*Node {
	var ns []*Node
	now := tab.cfg.Clock.Now()
	for _, b := range tab.buckets {
		ns = append(ns, b.questionable(&tab.store, now, tab.cfg.Policy)...)
	}
	return ns
}

//isquestionable按表的策略判断n。
func (tab *Table) IsQuestionable(n *Node) bool {
	return n.Questionable(tab.cfg.Clock.Now(), tab.cfg.Policy)
}

//nodes返回所有节点，按桶顺序。
func (tab *Table) Nodes() []*Node {
	ns := make([]*Node, 0, tab.store.len())
	for _, b := range tab.buckets {
		ns = append(ns, b.nodes(&tab.store)...)
	}
	return ns
}

//routers返回引导路由器。
func (tab *Table) Routers() []*Node { return tab.routers }

//len返回表中的节点数。
func (tab *Table) Len() int { return tab.store.len() }

func (tab *Table) Buckets() []BucketInfo {
	infos := make([]BucketInfo, len(tab.buckets))
	for i, b := range tab.buckets {
		infos[i] = BucketInfo{Range: b.rng, Size: len(b.entries), Covers: b.covers(tab.self)}
	}
	return infos
}

//bucketfor返回覆盖id的桶。
func (tab *Table) bucketFor(id address.Address) *bucket {
	return tab.buckets[tab.bucketIndex(id)]
}

func (tab *Table) bucketIndex(id address.Address) int {
	i := sort.Search(len(tab.buckets), func(i int) bool {
		last := tab.buckets[i].rng.Last()
		return address.Cmp(last, id) >= 0
	})
	if i == len(tab.buckets) || !tab.buckets[i].covers(id) {
		panic(RoutingInvariantViolation{ID: id, Buckets: len(tab.buckets)})
	}
	return i
}

//nodesbydistance是节点列表，按到目标的距离排序。
type nodesByDistance struct {
	entries []*Node
	target  address.Address
}

//push将给定节点添加到列表中，使总大小保持在maxelems以下。
func (h *nodesByDistance) push(n *Node, maxElems int) {
	ix := sort.Search(len(h.entries), func(i int) bool {
		return address.DistCmp(h.target, h.entries[i].ID, n.ID) > 0
	})
	if len(h.entries) < maxElems {
		h.entries = append(h.entries, n)
	}
	if ix == len(h.entries) {
		//比我们现有的所有节点都要远。
	} else {
		//向下滑动现有条目以腾出空间。
		copy(h.entries[ix+1:], h.entries[ix:])
		h.entries[ix] = n
	}
}
