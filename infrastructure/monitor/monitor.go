package monitor

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"market-mirror-go/market"
)

// Monitor Prometheus监控指标收集器
type Monitor struct {
	registry *prometheus.Registry

	// 行情源指标
	depthUpdates   prometheus.Counter
	tradesTotal    *prometheus.CounterVec
	tradedVolume   prometheus.Counter
	parseErrors    *prometheus.CounterVec
	sequenceGaps   prometheus.Counter
	flowBuyPercent prometheus.Gauge

	// 盘口指标
	bidPrice   prometheus.Gauge
	askPrice   prometheus.Gauge
	spread     prometheus.Gauge
	bookLevels *prometheus.GaugeVec

	// 对账指标
	syncChecks   *prometheus.CounterVec
	syncFailures *prometheus.CounterVec
	inSync       prometheus.Gauge

	// 系统指标
	wsConnections prometheus.Counter
	wsDisconnects prometheus.Counter
	restRequests  *prometheus.CounterVec
	restErrors    *prometheus.CounterVec
	restLatency   *prometheus.HistogramVec
}

// Config 监控配置
type Config struct {
	Namespace string `yaml:"namespace"`
	Subsystem string `yaml:"subsystem"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Namespace: "mirror",
		Subsystem: "feed",
	}
}

// New 创建新的Monitor实例
func New(cfg Config) *Monitor {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	counter := func(name, help string) prometheus.Counter {
		return factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem, Name: name, Help: help,
		})
	}
	gauge := func(name, help string) prometheus.Gauge {
		return factory.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem, Name: name, Help: help,
		})
	}

	m := &Monitor{
		registry: reg,

		depthUpdates: counter("depth_updates_total", "已应用的深度增量条数"),
		tradesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem,
			Name: "trades_total", Help: "按方向统计的成交笔数",
		}, []string{"side"}),
		tradedVolume: counter("traded_volume_total", "累计成交量"),
		parseErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem,
			Name: "parse_errors_total", Help: "被丢弃的无法解析的消息",
		}, []string{"kind"}),
		sequenceGaps:   counter("sequence_gaps_total", "深度序号断档次数"),
		flowBuyPercent: gauge("flow_buy_percent", "成交带中主动买入量占比"),

		bidPrice: gauge("best_bid", "买一价"),
		askPrice: gauge("best_ask", "卖一价"),
		spread:   gauge("spread", "卖一减买一"),
		bookLevels: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem,
			Name: "book_levels", Help: "每一侧的价位数",
		}, []string{"side"}),

		syncChecks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem,
			Name: "sync_checks_total", Help: "对账比对次数",
		}, []string{"check", "result"}),
		syncFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem,
			Name: "sync_fetch_failures_total", Help: "对账拉取失败次数",
		}, []string{"check"}),
		inSync: gauge("in_sync", "最近一次对账结论（1 为一致）"),

		wsConnections: counter("ws_connections_total", "WebSocket连接次数"),
		wsDisconnects: counter("ws_disconnects_total", "WebSocket断开次数"),
		restRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem,
			Name: "rest_requests_total", Help: "REST API请求总数",
		}, []string{"action"}),
		restErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem,
			Name: "rest_errors_total", Help: "REST API错误总数",
		}, []string{"action"}),
		restLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem,
			Name:    "rest_latency_seconds",
			Help:    "REST API延迟分布（秒）",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"action"}),
	}
	m.inSync.Set(1)
	return m
}

// RecordDepthApplied 在一条深度增量应用后刷新盘口指标。
func (m *Monitor) RecordDepthApplied(top market.Top, bidLevels, askLevels int) {
	m.depthUpdates.Inc()
	m.bookLevels.WithLabelValues(market.SideBid.String()).Set(float64(bidLevels))
	m.bookLevels.WithLabelValues(market.SideAsk.String()).Set(float64(askLevels))
	if top.HasBid {
		m.bidPrice.Set(top.Bid.Price.InexactFloat64())
	}
	if top.HasAsk {
		m.askPrice.Set(top.Ask.Price.InexactFloat64())
	}
	if top.HasBid && top.HasAsk {
		m.spread.Set(top.Ask.Price.Sub(top.Bid.Price).InexactFloat64())
	}
}

// RecordTrade 记录成交及当前买入占比
func (m *Monitor) RecordTrade(t market.Trade, buyPct float64) {
	m.tradesTotal.WithLabelValues(string(t.Side)).Inc()
	m.tradedVolume.Add(t.Qty.Abs().InexactFloat64())
	m.flowBuyPercent.Set(buyPct)
}

func (m *Monitor) RecordParseError(kind string) {
	m.parseErrors.WithLabelValues(kind).Inc()
}

func (m *Monitor) RecordSequenceGap() {
	m.sequenceGaps.Inc()
}

// RecordSyncCheck 记录一次完成的比对
func (m *Monitor) RecordSyncCheck(check string, inSync bool) {
	result := "in_sync"
	if !inSync {
		result = "drift"
	}
	m.syncChecks.WithLabelValues(check, result).Inc()
}

func (m *Monitor) RecordSyncFailure(check string) {
	m.syncFailures.WithLabelValues(check).Inc()
}

func (m *Monitor) SetInSync(inSync bool) {
	if inSync {
		m.inSync.Set(1)
		return
	}
	m.inSync.Set(0)
}

// RecordWSConnection 记录WebSocket连接
func (m *Monitor) RecordWSConnection() {
	m.wsConnections.Inc()
}

// RecordWSDisconnect 记录WebSocket断开
func (m *Monitor) RecordWSDisconnect() {
	m.wsDisconnects.Inc()
}

// RecordRESTRequest 记录REST请求
func (m *Monitor) RecordRESTRequest(action string) {
	m.restRequests.WithLabelValues(action).Inc()
}

// RecordRESTError 记录REST错误
func (m *Monitor) RecordRESTError(action string) {
	m.restErrors.WithLabelValues(action).Inc()
}

// RecordRESTLatency 记录REST延迟
func (m *Monitor) RecordRESTLatency(action string, seconds float64) {
	m.restLatency.WithLabelValues(action).Observe(seconds)
}

// Handler 返回HTTP handler用于暴露指标
func (m *Monitor) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry 返回Prometheus注册表
func (m *Monitor) Registry() *prometheus.Registry {
	return m.registry
}
