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

//包地址实现了覆盖网络中节点和内容的160位标识符。
//
//标识符之间的距离是按位异或，按无符号大端整数比较。
package address

import (
	"bytes"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"math/bits"
)

const (
	Length = 20         //以字节为单位的长度
	Bits   = Length * 8 //标识符空间的位长度
)

//当十六进制形式无法解析时返回errmalformed。
var ErrMalformed = errors.New("malformed address")

//地址是节点或内容的标识符。
type Address [Length]byte

//forcontent返回内容的sha-1摘要作为地址。
func ForContent(content []byte) Address {
	return Address(sha1.Sum(content))
}

//fromhex解析40个十六进制数字，大小写均可。
func FromHex(s string) (Address, error) {
	var a Address
	if len(s) != Length*2 {
		return a, fmt.Errorf("%w: want %d hex digits, got %d", ErrMalformed, Length*2, len(s))
	}
	if _, err := hex.Decode(a[:], []byte(s)); err != nil {
		return a, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return a, nil
}

//mustfromhex解析s，出错时panic。仅用于测试和常量。
func MustFromHex(s string) Address {
	a, err := FromHex(s)
	if err != nil {
		panic(err)
	}
	return a
}

//null返回保留的零地址。引导路由器使用它，因为在联系它们之前
//我们不知道它们的真实标识符。
func Null() Address { return Address{} }

func (a Address) IsNull() bool { return a == Address{} }

//hex返回小写的40位十六进制形式。
func (a Address) Hex() string { return hex.EncodeToString(a[:]) }

func (a Address) String() string { return a.Hex() }

//terminalstring返回用于日志的缩短形式。
func (a Address) TerminalString() string {
	return hex.EncodeToString(a[:4])
}

//marshaltext实现encoding.textmarshaler。
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.Hex()), nil
}

//unmarshaltext实现encoding.textunmarshaler。
func (a *Address) UnmarshalText(text []byte) error {
	dec, err := FromHex(string(text))
	if err != nil {
		return err
	}
	*a = dec
	return nil
}

//cmp按大端无符号整数比较a和b。
func Cmp(a, b Address) int {
	return bytes.Compare(a[:], b[:])
}

//距离是两个地址的异或。
type Distance [Length]byte

//xor返回a和b之间的距离。
func Xor(a, b Address) Distance {
	var d Distance
	for i := range d {
		d[i] = a[i] ^ b[i]
	}
	return d
}

//cmp比较两个距离。
func (d Distance) Cmp(o Distance) int {
	return bytes.Compare(d[:], o[:])
}

func (d Distance) IsZero() bool { return d == Distance{} }

func (d Distance) String() string { return hex.EncodeToString(d[:]) }

//distcmp比较a和b到target的距离。
//如果a更近，返回-1；如果b更近，返回1；相等时返回0。
func DistCmp(target, a, b Address) int {
	for i := range target {
		da := a[i] ^ target[i]
		db := b[i] ^ target[i]
		if da > db {
			return 1
		} else if da < db {
			return -1
		}
	}
	return 0
}

//logdist返回a和b之间的对数距离，即log2(a ^ b)。
func LogDist(a, b Address) int {
	return Bits - commonPrefixLen(a, b)
}

//commonprefixlen返回a和b相同的前导位数。
func commonPrefixLen(a, b Address) int {
	for i := range a {
		if x := a[i] ^ b[i]; x != 0 {
			return i*8 + bits.LeadingZeros8(x)
		}
	}
	return Bits
}
