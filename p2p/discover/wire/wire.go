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

//包wire实现了发现协议的数据包编码。
//
//每个数据包由一个类型字节和其后的RLP列表[事务ID，消息体]组成。
//查询和响应通过事务ID关联。
package wire

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"net"

	"github.com/ethereum/go-ethereum/rlp"
)

//消息类型。零保留。
const (
	FindNodeQueryMsg MsgType = iota + 1
	FindNodeResponseMsg
	PingQueryMsg
	PingResponseMsg
	PacketQueryMsg
	PacketResponseMsg
)

//传输类型
const (
	TransportUDP uint8 = 1
)

//maxpacketsize是可以编码或接收的最大数据包。
const MaxPacketSize = 8192

var (
	ErrPacketTooSmall = errors.New("packet too small")
	ErrPacketTooLarge = errors.New("packet too large")
	ErrUnknownType    = errors.New("unknown message type")
)

//msgtype是数据包的第一个字节。
type MsgType byte

func (t MsgType) String() string {
	switch t {
	case FindNodeQueryMsg:
		return "FIND_NODE_QUERY"
	case FindNodeResponseMsg:
		return "FIND_NODE_RESPONSE"
	case PingQueryMsg:
		return "PING_QUERY"
	case PingResponseMsg:
		return "PING_RESPONSE"
	case PacketQueryMsg:
		return "PACKET_QUERY"
	case PacketResponseMsg:
		return "PACKET_RESPONSE"
	default:
		return fmt.Sprintf("MsgType(%d)", byte(t))
	}
}

//isquery报告t是否需要答复。
func (t MsgType) IsQuery() bool {
	return t == FindNodeQueryMsg || t == PingQueryMsg || t == PacketQueryMsg
}

//responsetype返回查询类型对应的答复类型。
func (t MsgType) ResponseType() MsgType {
	switch t {
	case FindNodeQueryMsg:
		return FindNodeResponseMsg
	case PingQueryMsg:
		return PingResponseMsg
	case PacketQueryMsg:
		return PacketResponseMsg
	}
	return 0
}

//message是所有消息体都实现的接口。
type Message interface {
	Kind() MsgType
	Sender() Node
}

type (
	//transport是节点可达的一个端点。
	Transport struct {
		Type uint8
		IP   net.IP //IPv4的len 4或IPv6的len 16
		Port uint16
		//忽略其他字段（为了向前兼容）。
		Rest []rlp.RawValue `rlp:"tail"`
	}

	//node是线路上的节点记录。ID是十六进制形式。
	Node struct {
		ID         string
		Transports []Transport
		Rest       []rlp.RawValue `rlp:"tail"`
	}

	//findnodequery请求接近target的节点。
	FindNodeQuery struct {
		Origin Node
		Target string
		Rest   []rlp.RawValue `rlp:"tail"`
	}

	//findnoderesponse是对findnodequery的答复。
	FindNodeResponse struct {
		Origin Node
		Nodes  []Node
		Rest   []rlp.RawValue `rlp:"tail"`
	}

	PingQuery struct {
		Origin Node
		Rest   []rlp.RawValue `rlp:"tail"`
	}

	PingResponse struct {
		Origin Node
		Rest   []rlp.RawValue `rlp:"tail"`
	}

	//packetquery携带应用层的有效负载。
	PacketQuery struct {
		Origin  Node
		Payload []byte
		Rest    []rlp.RawValue `rlp:"tail"`
	}

	//packetresponse确认收到packetquery。
	PacketResponse struct {
		Origin Node
		Rest   []rlp.RawValue `rlp:"tail"`
	}
)

func (*FindNodeQuery) Kind() MsgType    { return FindNodeQueryMsg }
func (*FindNodeResponse) Kind() MsgType { return FindNodeResponseMsg }
func (*PingQuery) Kind() MsgType        { return PingQueryMsg }
func (*PingResponse) Kind() MsgType     { return PingResponseMsg }
func (*PacketQuery) Kind() MsgType      { return PacketQueryMsg }
func (*PacketResponse) Kind() MsgType   { return PacketResponseMsg }

func (m *FindNodeQuery) Sender() Node    { return m.Origin }
func (m *FindNodeResponse) Sender() Node { return m.Origin }
func (m *PingQuery) Sender() Node        { return m.Origin }
func (m *PingResponse) Sender() Node     { return m.Origin }
func (m *PacketQuery) Sender() Node      { return m.Origin }
func (m *PacketResponse) Sender() Node   { return m.Origin }

//encode对消息进行编码。
func Encode(txid uint32, msg Message) ([]byte, error) {
	b := new(bytes.Buffer)
	b.WriteByte(byte(msg.Kind()))
	if err := rlp.Encode(b, []interface{}{txid, msg}); err != nil {
		return nil, err
	}
	if b.Len() > MaxPacketSize {
		return nil, ErrPacketTooLarge
	}
	return b.Bytes(), nil
}

//decode解码一个数据包。
func Decode(buf []byte) (uint32, Message, error) {
	if len(buf) < 2 {
		return 0, nil, ErrPacketTooSmall
	}
	if len(buf) > MaxPacketSize {
		return 0, nil, ErrPacketTooLarge
	}
	var msg Message
	switch ptype := MsgType(buf[0]); ptype {
	case FindNodeQueryMsg:
		msg = new(FindNodeQuery)
	case FindNodeResponseMsg:
		msg = new(FindNodeResponse)
	case PingQueryMsg:
		msg = new(PingQuery)
	case PingResponseMsg:
		msg = new(PingResponse)
	case PacketQueryMsg:
		msg = new(PacketQuery)
	case PacketResponseMsg:
		msg = new(PacketResponse)
	default:
		return 0, nil, fmt.Errorf("%w: %d", ErrUnknownType, byte(ptype))
	}
	s := rlp.NewStream(bytes.NewReader(buf[1:]), uint64(len(buf)-1))
	if _, err := s.List(); err != nil {
		return 0, nil, err
	}
	txid, err := s.Uint()
	if err != nil {
		return 0, nil, err
	}
	if txid > math.MaxUint32 {
		return 0, nil, fmt.Errorf("transaction id %d out of range", txid)
	}
	if err := s.Decode(msg); err != nil {
		return 0, nil, err
	}
	if err := s.ListEnd(); err != nil {
		return 0, nil, err
	}
	return uint32(txid), msg, nil
}
