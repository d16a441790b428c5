package rest

import (
	"net/http"
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/nexuspay/payd/pkg/dex"
	"github.com/nexuspay/payd/pkg/gateway"
	"github.com/nexuspay/payd/pkg/mapping"
	"github.com/nexuspay/payd/pkg/store"
	"go.uber.org/zap"
)

// Server is the merchant-facing HTTP surface: order management, mapping
// registration, and the pass-through routes to the execution network.
type Server struct {
	router    *gin.Engine
	logger    *zap.Logger
	orders    store.Store
	mappings  mapping.Store
	gateway   *gateway.Gateway
	jwtSecret string
}

func NewServer(orders store.Store, mappings mapping.Store, gw *gateway.Gateway, jwtSecret string, logger *zap.Logger) *Server {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowAllOrigins:  false,
		AllowOriginFunc:  func(origin string) bool { return true },
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "Accept"},
		AllowCredentials: true,
	}))

	server := &Server{
		router:    router,
		logger:    logger,
		orders:    orders,
		mappings:  mappings,
		gateway:   gw,
		jwtSecret: jwtSecret,
	}
	server.routes()
	return server
}

func (s *Server) routes() {
	orders := s.router.Group("/orders")
	orders.GET("/health", func(ctx *gin.Context) {
		ctx.String(http.StatusOK, "ok")
	})
	orders.POST("", s.authenticate, s.createOrder)
	orders.GET("", s.authenticate, s.listOrders)
	orders.POST("/mapping", s.registerMapping)
	orders.GET("/public/:uid", s.publicOrder)
	orders.GET("/orderId/:uid", s.authenticate, s.orderByUID)
	orders.GET("/status/orderId/:uid", s.authenticate, s.orderStatus)

	s.router.Any("/dex/same-chain-x/*path", s.routeDex(false, dex.SameChainPrefix))
	s.router.Any("/dex/cross-chain-x/*path", s.routeDex(true, dex.CrossChainPrefix))
}

// routeDex sends execution submissions through the gateway and everything
// else straight to the upstream proxy.
func (s *Server) routeDex(crossChain bool, upstreamPrefix string) gin.HandlerFunc {
	proxy := s.gateway.Proxy(upstreamPrefix)
	return func(ctx *gin.Context) {
		if ctx.Request.Method == http.MethodPost && strings.HasSuffix(ctx.Param("path"), "/relayer/v1.0/submit") {
			if crossChain {
				s.gateway.SubmitCrossChain(ctx)
			} else {
				s.gateway.SubmitSameChain(ctx)
			}
			return
		}
		proxy(ctx)
	}
}

func (s *Server) Router() *gin.Engine {
	return s.router
}

func (s *Server) Run(addr string) error {
	return s.router.Run(addr)
}
