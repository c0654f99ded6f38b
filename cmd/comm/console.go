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

package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/mattn/go-isatty"
	"github.com/peterh/liner"
	"github.com/zacstewart/comm/comm"
	"github.com/zacstewart/comm/p2p/address"
)

var errUsage = errors.New("usage: <recipient> <text>")

type scheduler interface {
	Schedule(recipient address.Address, text string) error
}

//lineReader读取一行输入。
type lineReader interface {
	readLine() (string, error)
	close()
}

type promptReader struct{ *liner.State }

func (r promptReader) readLine() (string, error) {
	line, err := r.Prompt("> ")
	if err == liner.ErrPromptAborted {
		return "", io.EOF
	}
	if err == nil && strings.TrimSpace(line) != "" {
		r.AppendHistory(line)
	}
	return line, err
}

func (r promptReader) close() { r.Close() }

type scanReader struct{ *bufio.Scanner }

func (r scanReader) readLine() (string, error) {
	if !r.Scan() {
		if err := r.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return r.Text(), nil
}

func (r scanReader) close() {}

//console从标准输入读取要发送的消息，并打印客户端事件。
type console struct {
	client scheduler
	in     lineReader
	out    io.Writer
	outMu  sync.Mutex
	done   chan struct{}
}

func newConsole(client scheduler, in *os.File, out io.Writer) *console {
	var r lineReader
	if isatty.IsTerminal(in.Fd()) && liner.TerminalSupported() {
		state := liner.NewLiner()
		state.SetCtrlCAborts(true)
		r = promptReader{state}
	} else {
		r = scanReader{bufio.NewScanner(in)}
	}
	return &console{client: client, in: r, out: out, done: make(chan struct{})}
}

//run读取输入直到EOF，然后关闭done。
func (c *console) run() {
	defer close(c.done)
	defer c.in.close()
	for {
		line, err := c.in.readLine()
		if err != nil {
			if err != io.EOF {
				c.printf("input error: %v\n", err)
			}
			return
		}
		if err := c.handleLine(line); err != nil {
			c.printf("%v\n", err)
		}
	}
}

//handleline把"<recipient> <text>"形式的一行放入投递队列。
func (c *console) handleLine(line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}
	fields := strings.SplitN(line, " ", 2)
	if len(fields) != 2 {
		return errUsage
	}
	recipient, err := address.FromHex(fields[0])
	if err != nil {
		return err
	}
	return c.client.Schedule(recipient, strings.TrimSpace(fields[1]))
}

func (c *console) printEvent(ev comm.Event) {
	switch ev.Kind {
	case comm.MessageReceived:
		c.printf("%s\n", ev.Message)
	case comm.MessageDelivered:
		c.printf("delivered to %s\n", ev.Peer.TerminalString())
	case comm.DeliveryFailed:
		c.printf("delivery to %s failed: %v\n", ev.Peer.TerminalString(), ev.Err)
	}
}

func (c *console) printf(format string, args ...interface{}) {
	c.outMu.Lock()
	defer c.outMu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}
