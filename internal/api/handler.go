// Package api 通过 HTTP 暴露 market.Service 的只读视图。
package api

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"market-mirror-go/infrastructure/alert"
	"market-mirror-go/infrastructure/logger"
	"market-mirror-go/market"
)

const (
	maxDepth             = 1000
	defaultFrameInterval = 16 * time.Millisecond
	writeWait            = 5 * time.Second
	defaultStaleAfter    = time.Minute
)

// AlertSource 提供最近的告警
type AlertSource interface {
	Alerts() []alert.Alert
}

// Option 配置 Handler
type Option func(*Handler)

func WithLogger(l *logger.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.log = l
		}
	}
}

func WithFrameInterval(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.frameInterval = d
		}
	}
}

func WithDefaultDepth(n int) Option {
	return func(h *Handler) {
		if n > 0 {
			h.defaultDepth = n
		}
	}
}

func WithAlerts(src AlertSource) Option {
	return func(h *Handler) { h.alerts = src }
}

// WithStaleAfter 超过该时间无更新时 /healthz 返回 503
func WithStaleAfter(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.staleAfter = d
		}
	}
}

// Handler 行情镜像的 HTTP 接口
type Handler struct {
	svc           *market.Service
	log           *logger.Logger
	alerts        AlertSource
	frameInterval time.Duration
	defaultDepth  int
	staleAfter    time.Duration
	upgrader      websocket.Upgrader

	closing   chan struct{}
	closeOnce sync.Once
}

func NewHandler(svc *market.Service, opts ...Option) *Handler {
	h := &Handler{
		svc:           svc,
		log:           logger.NewNop(),
		frameInterval: defaultFrameInterval,
		defaultDepth:  market.DefaultDepth,
		staleAfter:    defaultStaleAfter,
		closing:       make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// StaleAfter 返回 /healthz 判定过期的阈值
func (h *Handler) StaleAfter() time.Duration { return h.staleAfter }

// Close 结束所有 /v1/stream 连接；http.Server.Shutdown 不会关闭已被接管的 websocket。
func (h *Handler) Close() {
	h.closeOnce.Do(func() { close(h.closing) })
}

// Router 返回挂好全部路由的 gin.Engine
func (h *Handler) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	h.RegisterRoutes(r)
	return r
}

func (h *Handler) RegisterRoutes(r gin.IRouter) {
	r.GET("/healthz", h.Healthz)
	v1 := r.Group("/v1")
	{
		v1.GET("/book", h.GetBook)
		v1.GET("/trades", h.GetTrades)
		v1.GET("/flow", h.GetFlow)
		v1.GET("/sync", h.GetSync)
		v1.GET("/pulses", h.GetPulses)
		v1.GET("/snapshot", h.GetSnapshot)
		v1.GET("/stream", h.Stream)
	}
}

func (h *Handler) depthParam(c *gin.Context) (int, bool) {
	raw := c.Query("depth")
	if raw == "" {
		return h.defaultDepth, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 || n > maxDepth {
		c.JSON(http.StatusBadRequest, gin.H{"error": "depth must be an integer in [1, 1000]"})
		return 0, false
	}
	return n, true
}

// GetBook 返回两侧累计深度视图
func (h *Handler) GetBook(c *gin.Context) {
	depth, ok := h.depthParam(c)
	if !ok {
		return
	}
	bids := h.svc.CurrentBidView(depth)
	asks := h.svc.CurrentAskView(depth)
	spread, hasSpread := market.Spread(bids, asks)
	resp := gin.H{
		"symbol": h.svc.Symbol(),
		"depth":  depth,
		"bids":   bids,
		"asks":   asks,
		"maxBid": market.MaxCumulative(bids),
		"maxAsk": market.MaxCumulative(asks),
	}
	if hasSpread {
		resp["spread"] = spread
	} else {
		resp["spread"] = nil
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) GetTrades(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"symbol": h.svc.Symbol(),
		"trades": h.svc.RecentTrades(),
	})
}

func (h *Handler) GetFlow(c *gin.Context) {
	buy, sell := h.svc.FlowRatio()
	c.JSON(http.StatusOK, gin.H{
		"symbol":  h.svc.Symbol(),
		"buyPct":  buy,
		"sellPct": sell,
	})
}

func (h *Handler) GetSync(c *gin.Context) {
	resp := gin.H{
		"symbol": h.svc.Symbol(),
		"status": h.svc.SyncStatus(),
	}
	if h.alerts != nil {
		resp["alerts"] = h.alerts.Alerts()
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) GetPulses(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"symbol":   h.svc.Symbol(),
		"pulses":   h.svc.Pulses(),
		"flashing": h.svc.Flashing(),
	})
}

func (h *Handler) GetSnapshot(c *gin.Context) {
	depth, ok := h.depthParam(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, h.svc.Snapshot(depth))
}

// Healthz 在长时间没有行情更新时返回 503
func (h *Handler) Healthz(c *gin.Context) {
	stale := h.svc.Staleness()
	status := http.StatusOK
	state := "ok"
	if stale > h.staleAfter {
		status = http.StatusServiceUnavailable
		state = "stale"
	}
	c.JSON(status, gin.H{
		"status":      state,
		"symbol":      h.svc.Symbol(),
		"stalenessMs": stale.Milliseconds(),
		"inSync":      h.svc.SyncStatus().InSync,
	})
}
