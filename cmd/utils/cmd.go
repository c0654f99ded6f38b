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

//包utils包含命令行工具的共用函数。
package utils

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/ethereum/go-ethereum/log"
)

//fatalf将消息格式化为标准错误并退出程序。
//如果标准错误被重定向，消息也会打印到标准输出。
func Fatalf(format string, args ...interface{}) {
	w := io.MultiWriter(os.Stdout, os.Stderr)
	if runtime.GOOS == "windows" {
		w = os.Stdout
	} else {
		outf, _ := os.Stdout.Stat()
		errf, _ := os.Stderr.Stat()
		if outf != nil && errf != nil && os.SameFile(outf, errf) {
			w = os.Stderr
		}
	}
	fmt.Fprintf(w, "Fatal: "+format+"\n", args...)
	os.Exit(1)
}

//waitinterrupt阻塞到收到SIGINT或SIGTERM，或者done被关闭，然后调用stop。
//stop返回之前再收到三次中断会强制退出。
func WaitInterrupt(done <-chan struct{}, stop func()) {
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigc)

	select {
	case <-sigc:
		log.Info("Got interrupt, shutting down...")
	case <-done:
	}
	stopped := make(chan struct{})
	go func() {
		stop()
		close(stopped)
	}()
	for i := 3; i > 0; i-- {
		select {
		case <-stopped:
			return
		case <-sigc:
			if i > 1 {
				log.Warn("Already shutting down, interrupt more to force exit.", "times", i-1)
			}
		}
	}
	Fatalf("Forced exit")
}
