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

//包api通过HTTP提供节点的检查接口和消息发送。
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io/ioutil"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/metrics"
	"github.com/julienschmidt/httprouter"
	"github.com/rs/cors"
	"github.com/zacstewart/comm/p2p/address"
	"github.com/zacstewart/comm/p2p/discover"
)

const (
	maxBodySize = 4096
	sendTimeout = 15 * time.Second
)

//backend是检查接口读取的网络状态。
type Backend interface {
	Self() address.Address
	Peers() []*discover.Node
	Questionable() []*discover.Node
	NearestTo(target address.Address) []*discover.Node
	Buckets() []discover.BucketInfo
}

//sender投递文本消息。
type Sender interface {
	Send(ctx context.Context, recipient address.Address, text string) error
}

//nodeinfo是节点的JSON表示。
type NodeInfo struct {
	ID        address.Address `json:"id"`
	Endpoints []string        `json:"endpoints"`
	Fails     int             `json:"fails"`
	Router    bool            `json:"router,omitempty"`
}

//bucketinfo是桶的JSON表示。
type BucketInfo struct {
	Range  string `json:"range"`
	Depth  int    `json:"depth"`
	Size   int    `json:"size"`
	Covers bool   `json:"covers"`
}

func nodeInfos(ns []*discover.Node) []NodeInfo {
	infos := make([]NodeInfo, 0, len(ns))
	for _, n := range ns {
		info := NodeInfo{ID: n.ID, Fails: n.Fails(), Router: n.IsRouter()}
		for _, e := range n.Endpoints {
			info.Endpoints = append(info.Endpoints, e.String())
		}
		infos = append(infos, info)
	}
	return infos
}

//服务器处理API请求。
type Server struct {
	router  *httprouter.Router
	backend Backend
	sender  Sender
	log     log.Logger
}

//newserver创建服务器。sender为nil时不提供消息发送。
func NewServer(b Backend, s Sender) *Server {
	srv := &Server{
		router:  httprouter.New(),
		backend: b,
		sender:  s,
		log:     log.New("module", "api"),
	}
	srv.router.GET("/self", srv.GetSelf)
	srv.router.GET("/peers", srv.GetPeers)
	srv.router.GET("/peers/questionable", srv.GetQuestionable)
	srv.router.GET("/buckets", srv.GetBuckets)
	srv.router.GET("/nearest/:target", srv.GetNearest)
	srv.router.GET("/debug/metrics", srv.GetMetrics)
	if s != nil {
		srv.router.POST("/messages/:recipient", srv.PostMessage)
	}
	return srv
}

//newhandler返回带跨源支持的处理程序。origins为空时不发送CORS头。
func NewHandler(b Backend, s Sender, origins []string) http.Handler {
	srv := NewServer(b, s)
	if len(origins) == 0 {
		return srv
	}
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodPost, http.MethodGet},
		MaxAge:         600,
		AllowedHeaders: []string{"*"},
	})
	return c.Handler(srv)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	s.router.ServeHTTP(w, req)
}

func (s *Server) GetSelf(w http.ResponseWriter, req *http.Request, _ httprouter.Params) {
	s.JSON(w, http.StatusOK, map[string]address.Address{"id": s.backend.Self()})
}

func (s *Server) GetPeers(w http.ResponseWriter, req *http.Request, _ httprouter.Params) {
	s.JSON(w, http.StatusOK, nodeInfos(s.backend.Peers()))
}

func (s *Server) GetQuestionable(w http.ResponseWriter, req *http.Request, _ httprouter.Params) {
	s.JSON(w, http.StatusOK, nodeInfos(s.backend.Questionable()))
}

func (s *Server) GetBuckets(w http.ResponseWriter, req *http.Request, _ httprouter.Params) {
	bs := s.backend.Buckets()
	infos := make([]BucketInfo, 0, len(bs))
	for _, b := range bs {
		infos = append(infos, BucketInfo{Range: b.Range.String(), Depth: b.Range.Depth(), Size: b.Size, Covers: b.Covers})
	}
	s.JSON(w, http.StatusOK, infos)
}

//getnearest返回路由表中离目标最近的节点，不包括引导路由器。
func (s *Server) GetNearest(w http.ResponseWriter, req *http.Request, params httprouter.Params) {
	target, err := address.FromHex(params.ByName("target"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.JSON(w, http.StatusOK, nodeInfos(s.backend.NearestTo(target)))
}

//postmessage把请求体作为文本投递给接收方。
func (s *Server) PostMessage(w http.ResponseWriter, req *http.Request, params httprouter.Params) {
	recipient, err := address.FromHex(params.ByName("recipient"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	body, err := ioutil.ReadAll(http.MaxBytesReader(w, req.Body, maxBodySize))
	if err != nil {
		http.Error(w, err.Error(), http.StatusRequestEntityTooLarge)
		return
	}
	ctx, cancel := context.WithTimeout(req.Context(), sendTimeout)
	defer cancel()
	switch err := s.sender.Send(ctx, recipient, string(body)); {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, discover.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, discover.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		http.Error(w, err.Error(), http.StatusGatewayTimeout)
	default:
		s.log.Debug("Message send failed", "to", recipient, "err", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (s *Server) GetMetrics(w http.ResponseWriter, req *http.Request, _ httprouter.Params) {
	w.Header().Set("Content-Type", "application/json")
	metrics.WriteJSONOnce(metrics.DefaultRegistry, w)
}

//json以JSON响应发送data。
func (s *Server) JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Debug("Failed to write response", "err", err)
	}
}
