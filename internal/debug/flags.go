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

//包debug提供日志和性能分析相关的命令行标志。
package debug

import (
	"fmt"
	"io"
	"net/http"
	_ "net/http/pprof"
	"os"

	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/metrics"
	"github.com/ethereum/go-ethereum/metrics/exp"
	colorable "github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"gopkg.in/urfave/cli.v1"
)

var (
	verbosityFlag = cli.IntFlag{
		Name:  "verbosity",
		Usage: "Logging verbosity: 0=silent, 1=error, 2=warn, 3=info, 4=debug, 5=detail",
		Value: 3,
	}
	vmoduleFlag = cli.StringFlag{
		Name:  "vmodule",
		Usage: "Per-module verbosity: comma-separated list of <pattern>=<level> (e.g. p2p/discover=5)",
		Value: "",
	}
	debugFlag = cli.BoolFlag{
		Name:  "debug",
		Usage: "Prepends log messages with call-site location (file and line number)",
	}
	pprofFlag = cli.BoolFlag{
		Name:  "pprof",
		Usage: "Enable the pprof HTTP server",
	}
	pprofAddrFlag = cli.StringFlag{
		Name:  "pprofaddr",
		Usage: "pprof HTTP server listening address",
		Value: "127.0.0.1:6060",
	}
)

//flags保存调试所需的所有命令行标志。
var Flags = []cli.Flag{verbosityFlag, vmoduleFlag, debugFlag, pprofFlag, pprofAddrFlag}

var glogger *log.GlogHandler

func init() {
	glogger = log.NewGlogHandler(newStream(os.Stderr))
	glogger.Verbosity(log.LvlInfo)
	log.Root().SetHandler(glogger)
}

func newStream(f *os.File) log.Handler {
	usecolor := (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())) && os.Getenv("TERM") != "dumb"
	output := io.Writer(f)
	if usecolor {
		output = colorable.NewColorable(f)
	}
	return log.StreamHandler(output, log.TerminalFormat(usecolor))
}

//setup根据命令行标志初始化日志和性能分析。
//应该在程序中尽早调用。
func Setup(ctx *cli.Context) error {
	log.PrintOrigins(ctx.GlobalBool(debugFlag.Name))
	glogger.Verbosity(log.Lvl(ctx.GlobalInt(verbosityFlag.Name)))
	if err := glogger.Vmodule(ctx.GlobalString(vmoduleFlag.Name)); err != nil {
		return fmt.Errorf("invalid -%s: %v", vmoduleFlag.Name, err)
	}
	if ctx.GlobalBool(pprofFlag.Name) {
		StartPProf(ctx.GlobalString(pprofAddrFlag.Name))
	}
	return nil
}

//startpprof启动pprof服务器。/debug/metrics通过expvar导出度量。
func StartPProf(address string) {
	exp.Exp(metrics.DefaultRegistry)
	log.Info("Starting pprof server", "addr", fmt.Sprintf("http://%s/debug/pprof", address))
	go func() {
		if err := http.ListenAndServe(address, nil); err != nil {
			log.Error("Failure in running pprof server", "err", err)
		}
	}()
}
