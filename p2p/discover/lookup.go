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
	"sort"
	"time"

	mapset "github.com/deckarep/golang-set"
	"github.com/zacstewart/comm/p2p/address"
)

type lookupState int

const (
	lookupFresh lookupState = iota
	lookupAsked
	lookupResponded
	lookupFailed
)

type lookupEntry struct {
	node  *Node
	state lookupState
}

//lookup是一次迭代查找。它完全在事件循环中运行：每轮最多向alpha个
//未询问的最近候选节点发送findnode，所有答复或超时到达后再决定是否继续。
type lookup struct {
	t      *Network
	ctx    context.Context
	target address.Address
	done   func([]*Node)

	entries []*lookupEntry //真实节点按距离排序，路由器在最后
	seen    mapset.Set

	round    int
	inflight int
	best     address.Distance //本轮开始时最近候选的距离
	hasBest  bool
	finished bool
	start    time.Time
}

func newLookup(ctx context.Context, t *Network, target address.Address, done func([]*Node)) *lookup {
	l := &lookup{
		t:      t,
		ctx:    ctx,
		target: target,
		done:   done,
		seen:   mapset.NewSet(),
	}
	for _, n := range t.tab.NearestTo(target, true) {
		l.add(n.copy(), lookupFresh)
	}
	return l
}

func (l *lookup) run() {
	l.start = time.Now()
	l.nextRound()
}

func lookupKey(n *Node) string {
	if n.IsRouter() && len(n.Endpoints) > 0 {
		return "router:" + n.Endpoints[0].String()
	}
	return n.ID.Hex()
}

//add把n放入候选列表。已经见过的节点和我们自己被忽略。
func (l *lookup) add(n *Node, state lookupState) *lookupEntry {
	if n.ID == l.t.self {
		return nil
	}
	if !l.seen.Add(lookupKey(n)) {
		return nil
	}
	ix := sort.Search(len(l.entries), func(i int) bool {
		return l.before(n, l.entries[i].node)
	})
	e := &lookupEntry{node: n, state: state}
	l.entries = append(l.entries, nil)
	copy(l.entries[ix+1:], l.entries[ix:])
	l.entries[ix] = e
	return e
}

//before报告a是否应排在b之前。
func (l *lookup) before(a, b *Node) bool {
	if a.IsRouter() != b.IsRouter() {
		return !a.IsRouter()
	}
	if a.IsRouter() {
		return false
	}
	return address.DistCmp(l.target, a.ID, b.ID) < 0
}

//closest返回最近的未失败真实候选的距离。
func (l *lookup) closest() (address.Distance, bool) {
	for _, e := range l.entries {
		if !e.node.IsRouter() && e.state != lookupFailed {
			return address.Xor(l.target, e.node.ID), true
		}
	}
	return address.Distance{}, false
}

func (l *lookup) nextRound() {
	if l.ctx.Err() != nil || l.round >= l.t.cfg.MaxRounds {
		l.finish()
		return
	}
	l.round++
	l.best, l.hasBest = l.closest()
	for _, e := range l.entries {
		if l.inflight >= l.t.cfg.Alpha {
			break
		}
		if e.state == lookupFresh {
			l.query(e)
		}
	}
	if l.inflight == 0 {
		l.finish()
	}
}

func (l *lookup) query(e *lookupEntry) {
	e.state = lookupAsked
	err := l.t.findnode(e.node, l.target, func(origin *Node, nodes []*Node, err error) {
		l.handleReply(e, origin, nodes, err)
	})
	if err != nil {
		l.t.log.Trace("FindNode not sent", "node", e.node, "err", err)
		e.state = lookupFailed
		return
	}
	l.inflight++
}

func (l *lookup) handleReply(e *lookupEntry, origin *Node, nodes []*Node, err error) {
	l.inflight--
	if l.finished {
		return
	}
	if err != nil {
		l.t.log.Trace("FindNode failed", "node", e.node, "err", err)
		e.state = lookupFailed
	} else {
		e.state = lookupResponded
		if e.node.IsRouter() {
			//路由器应答后我们才知道它的标识符。
			if l.add(origin.copy(), lookupResponded) == nil {
				l.markResponded(origin.ID)
			}
		}
		for _, n := range nodes {
			l.t.tab.Insert(n.copy())
			l.add(n, lookupFresh)
		}
	}
	if l.ctx.Err() != nil {
		l.finish()
		return
	}
	if l.inflight > 0 {
		return
	}
	best, ok := l.closest()
	if !ok || (l.hasBest && best.Cmp(l.best) >= 0) {
		l.finish()
		return
	}
	l.nextRound()
}

func (l *lookup) markResponded(id address.Address) {
	for _, e := range l.entries {
		if e.node.ID == id && e.state == lookupFresh {
			e.state = lookupResponded
		}
	}
}

//finish把最近的已应答节点交给调用方。
func (l *lookup) finish() {
	if l.finished {
		return
	}
	l.finished = true
	var res []*Node
	for _, e := range l.entries {
		if len(res) >= l.t.tab.K() {
			break
		}
		if e.state == lookupResponded && !e.node.IsRouter() {
			res = append(res, e.node.copy())
		}
	}
	lookupTimer.UpdateSince(l.start)
	l.t.log.Debug("Lookup finished", "target", l.target.TerminalString(), "rounds", l.round, "found", len(res))
	l.done(res)
}
