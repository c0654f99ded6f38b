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

package address

import "fmt"

//range是标识符空间中的半开区间[low, high)。
//
//区间总是从整个空间开始，每次在中点一分为二，
//所以它可以用前缀和深度表示：区间包含所有前depth位
//与前缀相同的标识符。
type Range struct {
	prefix Address //depth之后的位为零
	depth  int
}

//full返回覆盖整个标识符空间的区间。
func Full() Range { return Range{} }

//depth返回固定前缀位数。
func (r Range) Depth() int { return r.depth }

//sizelog2返回区间大小的以2为底的对数。
func (r Range) SizeLog2() int { return Bits - r.depth }

//contains报告id是否在区间内。
func (r Range) Contains(id Address) bool {
	return commonPrefixLen(r.prefix, id) >= r.depth
}

//low返回区间中最小的标识符。
func (r Range) Low() Address { return r.prefix }

//last返回区间中最大的标识符，即high-1。
func (r Range) Last() Address {
	last := r.prefix
	for i := r.depth; i < Bits; i++ {
		setBit(&last, i)
	}
	return last
}

//CanSplit报告区间是否包含多于一个标识符。
func (r Range) CanSplit() bool { return r.depth < Bits }

//split在中点把区间分成两半。低的一半在前。
//只含一个标识符的区间不能再分。
func (r Range) Split() (lo, hi Range) {
	if !r.CanSplit() {
		panic(fmt.Sprintf("address: split of single-id range %v", r))
	}
	lo = Range{prefix: r.prefix, depth: r.depth + 1}
	hi = lo
	setBit(&hi.prefix, r.depth)
	return lo, hi
}

func (r Range) String() string {
	return fmt.Sprintf("[%x, %x]", r.Low(), r.Last())
}

func setBit(a *Address, i int) {
	a[i/8] |= 0x80 >> uint(i%8)
}
