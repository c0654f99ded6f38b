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
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/joho/godotenv"
	"github.com/naoina/toml"
	"github.com/zacstewart/comm/cmd/utils"
	"github.com/zacstewart/comm/comm"
	cli "gopkg.in/urfave/cli.v1"
)

const (
	envSecret      = "COMM_SECRET"
	envListenAddr  = "COMM_ADDR"
	envBootnodes   = "COMM_BOOTNODES"
	envNAT         = "COMM_NAT"
	envNetRestrict = "COMM_NETRESTRICT"
	envHTTP        = "COMM_HTTP"
	envHTTPCors    = "COMM_HTTP_CORS"
	envK           = "COMM_K"
	envAlpha       = "COMM_ALPHA"
)

//这些设置确保toml键使用与go struct字段相同的名称。
var tomlSettings = toml.Config{
	NormFieldName: func(rt reflect.Type, key string) string {
		return key
	},
	FieldToKey: func(rt reflect.Type, field string) string {
		return field
	},
	MissingField: func(rt reflect.Type, field string) error {
		link := ""
		if unicode.IsUpper(rune(rt.Name()[0])) && rt.PkgPath() != "main" {
			link = fmt.Sprintf(", see %s for available fields", rt.PkgPath())
		}
		return fmt.Errorf("field '%s' is not defined in %s%s", field, rt.String(), link)
	},
}

//discoveryconfig是发现协议的可配置部分。
type discoveryConfig struct {
	K           int
	Alpha       int
	MaxRounds   int
	RespTimeout time.Duration
	Retries     int
}

type commConfig struct {
	Secret      string
	ListenAddr  string
	Bootnodes   []string
	NAT         string
	NetRestrict string
	HTTP        string
	HTTPCors    []string

	Discovery discoveryConfig
	Client    comm.Config
}

func defaultConfig() commConfig {
	return commConfig{
		ListenAddr: ":6667",
		NAT:        "none",
		Discovery: discoveryConfig{
			K:           20,
			Alpha:       3,
			MaxRounds:   8,
			RespTimeout: 500 * time.Millisecond,
		},
		Client: comm.DefaultConfig,
	}
}

//buildconfig依次应用默认值、.env、配置文件、环境变量和命令行标志。
func buildConfig(ctx *cli.Context) (commConfig, error) {
	cfg := defaultConfig()
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return cfg, fmt.Errorf("can't load .env: %v", err)
	}
	if file := ctx.GlobalString(configFileFlag.Name); file != "" {
		if err := loadConfig(file, &cfg); err != nil {
			return cfg, err
		}
	}
	if err := envVarsOverride(&cfg); err != nil {
		return cfg, err
	}
	cmdLineOverride(&cfg, ctx)
	return cfg, nil
}

func loadConfig(file string, cfg *commConfig) error {
	f, err := os.Open(file)
	if err != nil {
		return err
	}
	defer f.Close()

	err = tomlSettings.NewDecoder(f).Decode(cfg)
	//将文件名添加到具有行号的错误中。
	if _, ok := err.(*toml.LineError); ok {
		err = errors.New(file + ", " + err.Error())
	}
	return err
}

func envVarsOverride(cfg *commConfig) error {
	if v := os.Getenv(envSecret); v != "" {
		cfg.Secret = v
	}
	if v := os.Getenv(envListenAddr); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv(envBootnodes); v != "" {
		cfg.Bootnodes = splitList(v)
	}
	if v := os.Getenv(envNAT); v != "" {
		cfg.NAT = v
	}
	if v := os.Getenv(envNetRestrict); v != "" {
		cfg.NetRestrict = v
	}
	if v := os.Getenv(envHTTP); v != "" {
		cfg.HTTP = v
	}
	if v := os.Getenv(envHTTPCors); v != "" {
		cfg.HTTPCors = splitList(v)
	}
	if err := envInt(envK, &cfg.Discovery.K); err != nil {
		return err
	}
	return envInt(envAlpha, &cfg.Discovery.Alpha)
}

func envInt(name string, dst *int) error {
	v := os.Getenv(name)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %v", name, err)
	}
	*dst = n
	return nil
}

func cmdLineOverride(cfg *commConfig, ctx *cli.Context) {
	if ctx.GlobalIsSet(secretFlag.Name) {
		cfg.Secret = ctx.GlobalString(secretFlag.Name)
	}
	if ctx.GlobalIsSet(listenAddrFlag.Name) {
		cfg.ListenAddr = ctx.GlobalString(listenAddrFlag.Name)
	}
	if ctx.GlobalIsSet(bootnodesFlag.Name) {
		cfg.Bootnodes = splitList(ctx.GlobalString(bootnodesFlag.Name))
	}
	if ctx.GlobalIsSet(natFlag.Name) {
		cfg.NAT = ctx.GlobalString(natFlag.Name)
	}
	if ctx.GlobalIsSet(netrestrictFlag.Name) {
		cfg.NetRestrict = ctx.GlobalString(netrestrictFlag.Name)
	}
	if ctx.GlobalIsSet(httpFlag.Name) {
		cfg.HTTP = ctx.GlobalString(httpFlag.Name)
	}
	if ctx.GlobalIsSet(httpCorsFlag.Name) {
		cfg.HTTPCors = splitList(ctx.GlobalString(httpCorsFlag.Name))
	}
	if ctx.GlobalIsSet(kFlag.Name) {
		cfg.Discovery.K = ctx.GlobalInt(kFlag.Name)
	}
	if ctx.GlobalIsSet(alphaFlag.Name) {
		cfg.Discovery.Alpha = ctx.GlobalInt(alphaFlag.Name)
	}
}

func splitList(s string) []string {
	var list []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			list = append(list, item)
		}
	}
	return list
}

func dumpConfig(ctx *cli.Context) error {
	cfg, err := buildConfig(ctx)
	if err != nil {
		utils.Fatalf("%v", err)
	}
	out, err := tomlSettings.Marshal(&cfg)
	if err != nil {
		return err
	}
	os.Stdout.Write(out)
	return nil
}
