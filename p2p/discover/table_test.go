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
	"math/rand"
	"reflect"
	"testing"
	"testing/quick"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/stretchr/testify/require"
	"github.com/zacstewart/comm/p2p/address"
)

var (
	zeroID = hexID("0000000000000000000000000000000000000000")
	oneID  = hexID("0000000000000000000000000000000000000001")
)

func TestTable_splitScenario(t *testing.T) {
	tab, _ := newTestTable(zeroID, 2)

	require.Equal(t, Inserted, tab.Insert(testNode(oneID, 1)))
	require.Equal(t, Inserted, tab.Insert(testNode(hexID("ffffffffffffffffffffffffffffffffffffffff"), 2)))
	require.Len(t, tab.buckets, 1)

	//桶已满并且包含我们自己，所以它被拆分。
	require.Equal(t, Inserted, tab.Insert(testNode(hexID("fffffffffffffffffffffffffffffffffffffffe"), 3)))
	require.Len(t, tab.buckets, 2)
	require.Equal(t, hexID("7fffffffffffffffffffffffffffffffffffffff"), tab.buckets[0].rng.Last())
	require.Equal(t, hexID("8000000000000000000000000000000000000000"), tab.buckets[1].rng.Low())
	require.Len(t, tab.buckets[0].entries, 1)
	require.Len(t, tab.buckets[1].entries, 2)

	require.Equal(t, Updated, tab.Insert(testNode(oneID, 1)))
	require.Len(t, tab.buckets, 2)

	require.Equal(t, Inserted, tab.Insert(testNode(hexID("7fffffffffffffffffffffffffffffffffffffff"), 4)))
	require.Equal(t, Inserted, tab.Insert(testNode(hexID("7ffffffffffffffffffffffffffffffffffffffe"), 5)))
	require.Len(t, tab.buckets, 3)

	//离我们远的桶不会拆分。
	for i, id := range []string{
		"fffffffffffffffffffffffffffffffffffffffd",
		"fffffffffffffffffffffffffffffffffffffffc",
		"fffffffffffffffffffffffffffffffffffffffb",
	} {
		require.Equal(t, Discarded, tab.Insert(testNode(hexID(id), 6+i)))
	}
	require.Len(t, tab.buckets, 3)
	require.Equal(t, 5, tab.Len())
	checkTable(t, tab)
}

func TestTable_insertSelf(t *testing.T) {
	self := hexID("8b45e4bd1c6acb88bebf6407d16205f567e62a3e")
	tab, _ := newTestTable(self, 2)
	require.Equal(t, Ignored, tab.Insert(testNode(self, 1)))
	require.Equal(t, Ignored, tab.Insert(NewNode(address.Null())))
	require.Equal(t, 0, tab.Len())
	require.Nil(t, tab.Find(self))
}

func TestTable_updateRefreshes(t *testing.T) {
	tab, clock := newTestTable(zeroID, 2)
	tab.Insert(testNode(oneID, 1))
	require.Equal(t, 1, tab.Fail(oneID))
	require.Equal(t, 2, tab.Fail(oneID))

	clock.Run(time.Minute)
	update := NewNode(oneID, Endpoint{Protocol: UDP, IP: intIP(9), Port: 1})
	require.Equal(t, Updated, tab.Insert(update))

	n := tab.Find(oneID)
	require.NotNil(t, n)
	require.Equal(t, 0, n.Fails())
	require.Equal(t, clock.Now(), n.LastSeen())
	require.Len(t, n.Endpoints, 2)
	require.NotEqual(t, n.AddedAt(), n.LastSeen())
}

func TestTable_splitBound(t *testing.T) {
	tab, _ := newTestTable(zeroID, 1)
	for i := 0; i < address.Bits; i++ {
		var id address.Address
		id[i/8] = 0x80 >> uint(i%8)
		require.Equal(t, Inserted, tab.Insert(testNode(id, i)), "bit %d", i)
	}
	require.Len(t, tab.buckets, address.Bits)
	checkTable(t, tab)

	//包含我们自己的桶只剩下0和1两个标识符。
	own := tab.bucketFor(zeroID)
	require.Equal(t, address.Bits-1, own.rng.Depth())
	require.Equal(t, Updated, tab.Insert(testNode(oneID, 1)))
	require.Len(t, tab.buckets, address.Bits)

	//远处的满桶丢弃新节点。
	far := hexID("c000000000000000000000000000000000000000")
	require.Equal(t, Discarded, tab.Insert(testNode(far, 999)))
	require.Len(t, tab.buckets, address.Bits)
}

func TestTable_coverage(t *testing.T) {
	cfg := &quick.Config{
		MaxCount: 200,
		Rand:     rand.New(rand.NewSource(time.Now().Unix())),
		Values: func(args []reflect.Value, rnd *rand.Rand) {
			ids := make([]address.Address, 50+rnd.Intn(300))
			for i := range ids {
				ids[i] = randomID(rnd)
				//一半的节点靠近我们，迫使桶拆分。
				if i%2 == 0 {
					for j := 0; j < 1+rnd.Intn(6); j++ {
						ids[i][j] = 0
					}
				}
			}
			args[0] = reflect.ValueOf(1 + rnd.Intn(8))
			args[1] = reflect.ValueOf(ids)
		},
	}
	test := func(k int, ids []address.Address) bool {
		tab, _ := newTestTable(zeroID, k)
		for i, id := range ids {
			tab.Insert(testNode(id, i))
		}
		checkTable(t, tab)
		for _, id := range ids {
			covering := 0
			for _, b := range tab.buckets {
				if b.covers(id) {
					covering++
				}
			}
			if covering != 1 {
				t.Logf("%x covered by %d buckets", id, covering)
				return false
			}
		}
		return true
	}
	if err := quick.Check(test, cfg); err != nil {
		t.Error(err)
	}
}

func TestTable_nearestTo(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))
	self := randomID(rnd)
	routers := []*Node{
		NewNode(address.Null(), Endpoint{Protocol: UDP, IP: intIP(200), Port: 6667}),
		NewNode(address.Null(), Endpoint{Protocol: UDP, IP: intIP(201), Port: 6667}),
	}
	tab := NewTable(self, TableConfig{K: 8, Log: testConfig().Log}, routers)

	//表为空时只返回路由器。
	got := tab.NearestTo(randomID(rnd), true)
	require.Len(t, got, 2)
	require.True(t, got[0].IsRouter())
	require.Empty(t, tab.NearestTo(randomID(rnd), false))

	for i := 0; i < 200; i++ {
		tab.Insert(testNode(randomID(rnd), i))
	}
	checkTable(t, tab)

	test := func(target address.Address) bool {
		result := tab.NearestTo(target, false)
		if len(result) != 8 {
			t.Logf("wrong number of results: got %d, want 8", len(result))
			return false
		}
		if hasDuplicates(result) {
			t.Logf("result contains duplicates")
			return false
		}
		if !sortedByDistanceTo(target, result) {
			t.Logf("result is not sorted by distance to target")
			return false
		}
		//没有更近的节点被遗漏。
		farthest := result[len(result)-1].ID
		for _, n := range tab.Nodes() {
			if contains(result, n.ID) {
				continue
			}
			if address.DistCmp(target, n.ID, farthest) < 0 {
				t.Logf("result misses closer node %x:\n%s", n.ID, spew.Sdump(result))
				return false
			}
		}
		return true
	}
	if err := quick.Check(test, &quick.Config{MaxCount: 200, Rand: rnd}); err != nil {
		t.Error(err)
	}
}

func TestTable_routersLast(t *testing.T) {
	router := NewNode(address.Null(), Endpoint{Protocol: UDP, IP: intIP(200), Port: 6667})
	tab := NewTable(zeroID, TableConfig{K: 3, Log: testConfig().Log}, []*Node{router})
	tab.Insert(testNode(oneID, 1))
	tab.Insert(testNode(hexID("0000000000000000000000000000000000000002"), 2))

	got := tab.NearestTo(zeroID, true)
	require.Len(t, got, 3)
	require.Equal(t, oneID, got[0].ID)
	require.True(t, got[2].IsRouter())

	tab.Insert(testNode(hexID("0000000000000000000000000000000000000003"), 3))
	got = tab.NearestTo(zeroID, true)
	require.Len(t, got, 3)
	for _, n := range got {
		require.False(t, n.IsRouter())
	}
	require.Len(t, tab.Nearest(10), 4)
}

func TestTable_questionable(t *testing.T) {
	tab, clock := newTestTable(zeroID, 4)
	a, b, c := oneID, hexID("0000000000000000000000000000000000000002"), hexID("8000000000000000000000000000000000000000")
	tab.Insert(testNode(a, 1))
	tab.Insert(testNode(b, 2))
	require.Empty(t, tab.Questionable())

	tab.Fail(a)
	require.Empty(t, tab.Questionable())
	tab.Fail(a)
	got := tab.Questionable()
	require.Len(t, got, 1)
	require.Equal(t, a, got[0].ID)

	clock.Run(10 * time.Minute)
	tab.Insert(testNode(c, 3))
	clock.Run(6 * time.Minute)
	got = tab.Questionable()
	require.Len(t, got, 2)
	require.False(t, contains(got, c))

	require.Equal(t, Updated, tab.Insert(testNode(a, 1)))
	require.Len(t, tab.Questionable(), 1)
}

func TestTable_remove(t *testing.T) {
	tab, _ := newTestTable(zeroID, 2)
	tab.Insert(testNode(oneID, 1))
	require.True(t, tab.Remove(oneID))
	require.False(t, tab.Remove(oneID))
	require.Nil(t, tab.Find(oneID))
	require.Equal(t, 0, tab.Fail(oneID))
	require.Equal(t, 0, tab.Len())

	//释放的槽被重新使用。
	require.Equal(t, Inserted, tab.Insert(testNode(oneID, 1)))
	require.Len(t, tab.store.slots, 1)
}

func TestTable_bucketForViolation(t *testing.T) {
	tab, _ := newTestTable(zeroID, 2)
	lo, _ := address.Full().Split()
	tab.buckets = []*bucket{newBucket(lo, 2)}

	id := hexID("ffffffffffffffffffffffffffffffffffffffff")
	defer func() {
		v, ok := recover().(RoutingInvariantViolation)
		require.True(t, ok, "expected RoutingInvariantViolation panic")
		require.Equal(t, id, v.ID)
	}()
	tab.bucketFor(id)
}

func TestTable_buckets(t *testing.T) {
	tab, _ := newTestTable(zeroID, 1)
	tab.Insert(testNode(hexID("8000000000000000000000000000000000000000"), 1))
	tab.Insert(testNode(oneID, 2))

	infos := tab.Buckets()
	require.Len(t, infos, 2)
	require.True(t, infos[0].Covers)
	require.False(t, infos[1].Covers)
	require.Equal(t, 1, infos[0].Size)
	require.Equal(t, 1, infos[1].Size)
}

//其他节点报告的端点不会让记录无限增长。
func TestTable_endpointsBounded(t *testing.T) {
	tab, _ := newTestTable(zeroID, 2)
	id := hexID("ff00000000000000000000000000000000000000")
	require.Equal(t, Inserted, tab.Insert(testNode(id, 1)))
	for i := 2; i <= 1000; i++ {
		require.Equal(t, Updated, tab.Insert(testNode(id, i)))
	}
	n := tab.Find(id)
	require.Len(t, n.Endpoints, maxEndpoints)
	require.Equal(t, intIP(1), n.Endpoints[0].IP)
}
