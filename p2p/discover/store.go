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

//nodestore拥有路由表中的所有节点记录。桶只保存句柄。
//被释放的槽会增加代数，旧句柄因此失效。
type nodeStore struct {
	slots []storeSlot
	free  []int32
}

type storeSlot struct {
	node *Node
	gen  uint32
}

func (s *nodeStore) put(n *Node) handle {
	if k := len(s.free); k > 0 {
		idx := s.free[k-1]
		s.free = s.free[:k-1]
		s.slots[idx].node = n
		return handle{idx: idx, gen: s.slots[idx].gen}
	}
	s.slots = append(s.slots, storeSlot{node: n})
	return handle{idx: int32(len(s.slots) - 1)}
}

//get返回句柄引用的记录，句柄失效时返回nil。
func (s *nodeStore) get(h handle) *Node {
	if int(h.idx) >= len(s.slots) {
		return nil
	}
	slot := &s.slots[h.idx]
	if slot.gen != h.gen {
		return nil
	}
	return slot.node
}

func (s *nodeStore) release(h handle) {
	slot := &s.slots[h.idx]
	if slot.gen != h.gen {
		return
	}
	slot.node = nil
	slot.gen++
	s.free = append(s.free, h.idx)
}

//len返回存储中的记录数。
func (s *nodeStore) len() int {
	return len(s.slots) - len(s.free)
}
