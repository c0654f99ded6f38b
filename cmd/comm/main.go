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

//comm是一个基于Kademlia发现网络的文本消息节点。
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/p2p/nat"
	"github.com/ethereum/go-ethereum/p2p/netutil"
	"github.com/zacstewart/comm/cmd/utils"
	"github.com/zacstewart/comm/comm"
	"github.com/zacstewart/comm/comm/api"
	"github.com/zacstewart/comm/internal/debug"
	"github.com/zacstewart/comm/p2p/address"
	"github.com/zacstewart/comm/p2p/discover"
	cli "gopkg.in/urfave/cli.v1"
)

const bootstrapTimeout = 30 * time.Second

var (
	secretFlag = cli.StringFlag{
		Name:  "secret",
		Usage: "Secret string the node address is derived from",
	}
	listenAddrFlag = cli.StringFlag{
		Name:  "addr",
		Usage: "UDP listening address",
		Value: ":6667",
	}
	bootnodesFlag = cli.StringFlag{
		Name:  "bootnodes",
		Usage: "Comma separated host:port list of bootstrap routers",
	}
	natFlag = cli.StringFlag{
		Name:  "nat",
		Usage: "Port mapping mechanism (any|none|upnp|pmp|extip:<IP>)",
		Value: "none",
	}
	netrestrictFlag = cli.StringFlag{
		Name:  "netrestrict",
		Usage: "Restricts network communication to the given IP networks (CIDR masks)",
	}
	configFileFlag = cli.StringFlag{
		Name:  "config",
		Usage: "TOML configuration file",
	}
	httpFlag = cli.StringFlag{
		Name:  "http",
		Usage: "Listening address of the HTTP inspection API (disabled if empty)",
	}
	httpCorsFlag = cli.StringFlag{
		Name:  "httpcors",
		Usage: "Comma separated list of domains from which to accept cross origin requests",
	}
	kFlag = cli.IntFlag{
		Name:  "k",
		Usage: "Bucket capacity",
		Value: 20,
	}
	alphaFlag = cli.IntFlag{
		Name:  "alpha",
		Usage: "Number of concurrent queries per lookup round",
		Value: 3,
	}
)

var app = cli.NewApp()

func init() {
	app.Name = "comm"
	app.Usage = "message peers over a Kademlia overlay"
	app.Action = run
	app.Flags = []cli.Flag{
		secretFlag,
		listenAddrFlag,
		bootnodesFlag,
		natFlag,
		netrestrictFlag,
		configFileFlag,
		httpFlag,
		httpCorsFlag,
		kFlag,
		alphaFlag,
	}
	app.Flags = append(app.Flags, debug.Flags...)
	app.Commands = []cli.Command{
		{
			Action:      dumpConfig,
			Name:        "dumpconfig",
			Usage:       "Show configuration values",
			Description: `The dumpconfig command shows configuration values.`,
		},
		{
			Action:      printAddress,
			Name:        "address",
			Usage:       "Print the node address derived from the secret",
			Description: `The address command prints the identifier other nodes use to reach this one.`,
		},
	}
	app.Before = func(ctx *cli.Context) error {
		return debug.Setup(ctx)
	}
}

func main() {
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func printAddress(ctx *cli.Context) error {
	cfg, err := buildConfig(ctx)
	if err != nil {
		utils.Fatalf("%v", err)
	}
	if cfg.Secret == "" {
		utils.Fatalf("No secret given (use --%s or %s)", secretFlag.Name, envSecret)
	}
	fmt.Println(address.ForContent([]byte(cfg.Secret)).Hex())
	return nil
}

func run(ctx *cli.Context) error {
	if args := ctx.Args(); len(args) > 0 {
		return fmt.Errorf("invalid command: %q", args[0])
	}
	cfg, err := buildConfig(ctx)
	if err != nil {
		utils.Fatalf("%v", err)
	}
	if cfg.Secret == "" {
		utils.Fatalf("No secret given (use --%s or %s)", secretFlag.Name, envSecret)
	}
	self := address.ForContent([]byte(cfg.Secret))

	dcfg, err := makeDiscoveryConfig(cfg)
	if err != nil {
		utils.Fatalf("%v", err)
	}
	addr, err := net.ResolveUDPAddr("udp", cfg.ListenAddr)
	if err != nil {
		utils.Fatalf("Invalid listen address: %v", err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		utils.Fatalf("Can't listen: %v", err)
	}

	quit := make(chan struct{})
	natm, err := nat.Parse(cfg.NAT)
	if err != nil {
		utils.Fatalf("Invalid -%s: %v", natFlag.Name, err)
	}
	realaddr := conn.LocalAddr().(*net.UDPAddr)
	if natm != nil {
		if !realaddr.IP.IsLoopback() {
			go nat.Map(natm, quit, "udp", realaddr.Port, realaddr.Port, "comm discovery")
		}
		if ext, err := natm.ExternalIP(); err == nil {
			dcfg.Announce = []*net.UDPAddr{{IP: ext, Port: realaddr.Port}}
		}
	}

	packets := make(chan discover.Packet, 64)
	dcfg.Packets = packets
	nw, err := discover.ListenUDP(conn, self, dcfg)
	if err != nil {
		utils.Fatalf("%v", err)
	}
	log.Info("Node started", "id", self, "addr", realaddr)

	client, err := comm.New(nw, packets, cfg.Client)
	if err != nil {
		utils.Fatalf("%v", err)
	}
	client.Start()

	con := newConsole(client, os.Stdin, os.Stdout)
	events := make(chan comm.Event, 16)
	sub := client.SubscribeEvents(events)
	go func() {
		for {
			select {
			case ev := <-events:
				con.printEvent(ev)
			case <-sub.Err():
				return
			}
		}
	}()

	var srv *http.Server
	if cfg.HTTP != "" {
		srv = &http.Server{Addr: cfg.HTTP, Handler: api.NewHandler(nw, client, cfg.HTTPCors)}
		go func() {
			log.Info("HTTP API started", "addr", cfg.HTTP)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("HTTP API failed", "err", err)
			}
		}()
	}

	if len(dcfg.Bootnodes) > 0 {
		go func() {
			bctx, cancel := context.WithTimeout(context.Background(), bootstrapTimeout)
			defer cancel()
			if err := nw.Bootstrap(bctx); err != nil {
				log.Warn("Bootstrap failed", "err", err)
				return
			}
			log.Info("Bootstrap done", "peers", len(nw.Peers()))
		}()
	}

	go con.run()
	utils.WaitInterrupt(con.done, func() {
		if srv != nil {
			srv.Close()
		}
		client.Stop()
		nw.Close()
		close(quit)
	})
	return nil
}

func makeDiscoveryConfig(cfg commConfig) (discover.Config, error) {
	dcfg := discover.Config{
		K:           cfg.Discovery.K,
		Alpha:       cfg.Discovery.Alpha,
		MaxRounds:   cfg.Discovery.MaxRounds,
		RespTimeout: cfg.Discovery.RespTimeout,
		Retries:     cfg.Discovery.Retries,
	}
	for _, s := range cfg.Bootnodes {
		addr, err := net.ResolveUDPAddr("udp", s)
		if err != nil {
			return dcfg, fmt.Errorf("invalid bootnode %q: %v", s, err)
		}
		dcfg.Bootnodes = append(dcfg.Bootnodes, addr)
	}
	if cfg.NetRestrict != "" {
		list, err := netutil.ParseNetlist(cfg.NetRestrict)
		if err != nil {
			return dcfg, fmt.Errorf("invalid -%s: %v", netrestrictFlag.Name, err)
		}
		dcfg.NetRestrict = list
	}
	return dcfg, nil
}
