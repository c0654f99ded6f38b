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

//包comm实现了基于发现网络的文本消息客户端。
//
//消息通过数据包查询交给接收方。接收方用事件通知应用，
//重复收到的消息只通知一次。
package comm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/event"
	"github.com/ethereum/go-ethereum/log"
	lru "github.com/hashicorp/golang-lru"
	"github.com/zacstewart/comm/p2p/address"
	"github.com/zacstewart/comm/p2p/discover"
)

var (
	ErrQueueFull     = errors.New("delivery queue full")
	ErrClientStopped = errors.New("client stopped")
)

//network是客户端需要的网络功能。
type Network interface {
	Self() address.Address
	SendPacket(ctx context.Context, dest address.Address, payload []byte) error
}

//eventkind区分客户端事件。
type EventKind int

const (
	MessageReceived EventKind = iota
	MessageDelivered
	DeliveryFailed
)

func (k EventKind) String() string {
	switch k {
	case MessageReceived:
		return "received"
	case MessageDelivered:
		return "delivered"
	case DeliveryFailed:
		return "failed"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

//event报告消息的收发。peer是发送者或接收者。
type Event struct {
	Kind    EventKind
	Peer    address.Address
	Message *TextMessage
	Err     error
}

func (ev Event) String() string {
	s := fmt.Sprintf("%s %s %v", ev.Kind, ev.Peer.TerminalString(), ev.Message)
	if ev.Err != nil {
		s += " err=" + ev.Err.Error()
	}
	return s
}

//config保存客户端设置。
type Config struct {
	QueueSize       int           //等待投递的消息数
	Workers         int           //并行投递数
	DedupSize       int           //记住的已收消息数
	DeliveryTimeout time.Duration //每次投递的时限，包括查找
}

//defaultconfig包含默认设置。
var DefaultConfig = Config{
	QueueSize:       64,
	Workers:         2,
	DedupSize:       1024,
	DeliveryTimeout: 10 * time.Second,
}

type task struct {
	recipient address.Address
	msg       *TextMessage
}

type seenKey struct {
	from  address.Address
	nonce uint64
}

//client发送和接收文本消息。
type Client struct {
	cfg     Config
	net     Network
	packets <-chan discover.Packet
	log     log.Logger

	tasks chan task
	seen  *lru.Cache
	feed  event.Feed
	scope event.SubscriptionScope

	quit     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

//new创建客户端。packets是网络交付有效负载的通道。
func New(nw Network, packets <-chan discover.Packet, cfg Config) (*Client, error) {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultConfig.QueueSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultConfig.Workers
	}
	if cfg.DedupSize <= 0 {
		cfg.DedupSize = DefaultConfig.DedupSize
	}
	if cfg.DeliveryTimeout <= 0 {
		cfg.DeliveryTimeout = DefaultConfig.DeliveryTimeout
	}
	seen, err := lru.New(cfg.DedupSize)
	if err != nil {
		return nil, err
	}
	return &Client{
		cfg:     cfg,
		net:     nw,
		packets: packets,
		log:     log.New("self", nw.Self().TerminalString()),
		tasks:   make(chan task, cfg.QueueSize),
		seen:    seen,
		quit:    make(chan struct{}),
	}, nil
}

//start启动接收循环和投递worker。
func (c *Client) Start() {
	c.wg.Add(1 + c.cfg.Workers)
	go c.receiveLoop()
	for i := 0; i < c.cfg.Workers; i++ {
		go c.deliverLoop()
	}
}

//stop停止客户端并结束所有订阅。排队的消息被丢弃。
func (c *Client) Stop() {
	c.stopOnce.Do(func() {
		close(c.quit)
		c.scope.Close()
		c.wg.Wait()
	})
}

//subscribeevents订阅客户端事件。
func (c *Client) SubscribeEvents(ch chan<- Event) event.Subscription {
	return c.scope.Track(c.feed.Subscribe(ch))
}

//schedule把消息放入投递队列，不等待投递。
func (c *Client) Schedule(recipient address.Address, text string) error {
	t := task{recipient: recipient, msg: NewTextMessage(c.net.Self(), text)}
	select {
	case <-c.quit:
		return ErrClientStopped
	default:
	}
	select {
	case c.tasks <- t:
		return nil
	default:
		return ErrQueueFull
	}
}

//send投递消息并等待接收方确认。
func (c *Client) Send(ctx context.Context, recipient address.Address, text string) error {
	return c.deliver(ctx, task{recipient: recipient, msg: NewTextMessage(c.net.Self(), text)})
}

func (c *Client) deliverLoop() {
	defer c.wg.Done()
	for {
		select {
		case t := <-c.tasks:
			ctx, cancel := context.WithTimeout(context.Background(), c.cfg.DeliveryTimeout)
			c.deliver(ctx, t)
			cancel()
		case <-c.quit:
			return
		}
	}
}

func (c *Client) deliver(ctx context.Context, t task) error {
	payload, err := encodeMessage(t.msg)
	if err == nil {
		err = c.net.SendPacket(ctx, t.recipient, payload)
	}
	if err != nil {
		c.log.Debug("Message delivery failed", "to", t.recipient.TerminalString(), "err", err)
		c.feed.Send(Event{Kind: DeliveryFailed, Peer: t.recipient, Message: t.msg, Err: err})
		return err
	}
	c.log.Debug("Delivered message", "to", t.recipient.TerminalString())
	c.feed.Send(Event{Kind: MessageDelivered, Peer: t.recipient, Message: t.msg})
	return nil
}

func (c *Client) receiveLoop() {
	defer c.wg.Done()
	for {
		select {
		case p, ok := <-c.packets:
			if !ok {
				c.log.Debug("Packet channel closed")
				<-c.quit
				return
			}
			c.handlePacket(p)
		case <-c.quit:
			return
		}
	}
}

func (c *Client) handlePacket(p discover.Packet) {
	msg, err := decodeMessage(p.Payload)
	if err != nil {
		c.log.Debug("Invalid message", "from", p.From, "err", err)
		return
	}
	if msg.Sender != p.From.ID {
		c.log.Warn("Message sender mismatch", "from", p.From, "sender", msg.Sender)
		return
	}
	//重发的查询可能被收到多次，它们携带相同的nonce。
	key := seenKey{from: p.From.ID, nonce: msg.Nonce}
	if seen, _ := c.seen.ContainsOrAdd(key, struct{}{}); seen {
		c.log.Trace("Duplicate message", "from", p.From)
		return
	}
	c.feed.Send(Event{Kind: MessageReceived, Peer: p.From.ID, Message: msg})
}
