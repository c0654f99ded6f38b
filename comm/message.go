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

package comm

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/zacstewart/comm/p2p/address"
)

//textmessage是在节点之间传递的文本。
type TextMessage struct {
	Sender address.Address
	Text   string
	Sent   uint64 //unix时间，秒
	Nonce  uint64 //区分内容相同的消息
	Rest   []rlp.RawValue `rlp:"tail"`
}

//newtextmessage创建一条现在发送的消息。
func NewTextMessage(sender address.Address, text string) *TextMessage {
	return &TextMessage{Sender: sender, Text: text, Sent: uint64(time.Now().Unix()), Nonce: newNonce()}
}

func newNonce() uint64 {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic("can't read random nonce: " + err.Error())
	}
	return binary.BigEndian.Uint64(b[:])
}

func (m *TextMessage) String() string {
	return fmt.Sprintf("%s: %q", m.Sender.TerminalString(), m.Text)
}

func encodeMessage(m *TextMessage) ([]byte, error) {
	return rlp.EncodeToBytes(m)
}

func decodeMessage(payload []byte) (*TextMessage, error) {
	m := new(TextMessage)
	if err := rlp.DecodeBytes(payload, m); err != nil {
		return nil, err
	}
	return m, nil
}
