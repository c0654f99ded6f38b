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

//包含发现层使用的仪表和计时器。

package discover

import "github.com/ethereum/go-ethereum/metrics"

const (
	MetricsIngressTraffic = "discover/IngressTraffic" //已注册的入站流量表的名称
	MetricsEgressTraffic  = "discover/EgressTraffic"  //已注册的出站流量表的名称
)

var (
	ingressTrafficMeter = metrics.NewRegisteredMeter(MetricsIngressTraffic, nil) //计量累计入口流量
	egressTrafficMeter  = metrics.NewRegisteredMeter(MetricsEgressTraffic, nil)  //计量累计出口流量
	malformedMeter      = metrics.NewRegisteredMeter("discover/Malformed", nil)   //无法解码的数据包
	unsolicitedMeter    = metrics.NewRegisteredMeter("discover/Unsolicited", nil) //没有匹配事务的答复
	timeoutMeter        = metrics.NewRegisteredMeter("discover/Timeouts", nil)    //超时的事务
	droppedPacketMeter  = metrics.NewRegisteredMeter("discover/DroppedPackets", nil)
	evictionMeter       = metrics.NewRegisteredMeter("discover/Evictions", nil)

	lookupTimer    = metrics.NewRegisteredTimer("discover/Lookup", nil)
	tableSizeGauge = metrics.NewRegisteredGauge("discover/TableSize", nil)
	pendingGauge   = metrics.NewRegisteredGauge("discover/Pending", nil)
)
