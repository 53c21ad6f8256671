package container

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"market-mirror-go/config"
	"market-mirror-go/gateway"
	"market-mirror-go/infrastructure/alert"
	"market-mirror-go/infrastructure/logger"
	"market-mirror-go/infrastructure/monitor"
	"market-mirror-go/internal/api"
	cacheredis "market-mirror-go/internal/cache/redis"
	"market-mirror-go/market"
	"market-mirror-go/reconcile"
)

// Container 依赖注入容器，管理所有组件的生命周期
type Container struct {
	cfg        config.AppConfig
	configPath string

	// 基础设施
	logger  *logger.Logger
	monitor *monitor.Monitor
	alerts  *alert.Manager
	recent  *alert.MemoryChannel

	// 行情
	rest       *gateway.BinanceRESTClient
	feed       *gateway.Feed
	svc        *market.Service
	reconciler *reconcile.Monitor

	// 输出
	api   *api.Handler
	redis *cacheredis.Client
	sink  *cacheredis.ViewSink

	apiServer     *httpServerComponent
	metricsServer *httpServerComponent

	lifecycle *LifecycleManager
}

// New 读取配置文件创建 Container
func New(configPath string) (*Container, error) {
	cfg, err := config.LoadWithEnvOverrides(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}
	c := NewWithConfig(cfg)
	c.configPath = configPath
	return c, nil
}

// NewWithConfig 使用已加载的配置
func NewWithConfig(cfg config.AppConfig) *Container {
	return &Container{
		cfg:       cfg,
		lifecycle: NewLifecycleManager(),
	}
}

// Build 构建所有组件
func (c *Container) Build(ctx context.Context) error {
	if err := config.Validate(c.cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if err := c.buildInfrastructure(); err != nil {
		return fmt.Errorf("build infrastructure failed: %w", err)
	}
	c.buildMarket()
	if err := c.buildOutputs(ctx); err != nil {
		return fmt.Errorf("build outputs failed: %w", err)
	}
	c.registerLifecycleComponents()
	c.logger.Info("container built", zap.Strings("components", c.lifecycle.Names()))
	return nil
}

func (c *Container) buildInfrastructure() error {
	var err error
	c.logger, err = logger.New(c.cfg.Log)
	if err != nil {
		return fmt.Errorf("create logger failed: %w", err)
	}
	c.logger = c.logger.WithFields(map[string]interface{}{"symbol": c.cfg.Symbol, "env": c.cfg.Env})

	c.monitor = monitor.New(monitor.Config{
		Namespace: c.cfg.Metrics.Namespace,
		Subsystem: c.cfg.Metrics.Subsystem,
	})

	c.recent = alert.NewMemoryChannel("recent", 50)
	c.alerts = alert.NewManager([]alert.Channel{
		alert.NewLogChannel("log", c.logger.Logger),
		c.recent,
	}, time.Duration(c.cfg.Alert.ThrottleSec)*time.Second)
	return nil
}

func (c *Container) buildMarket() {
	c.svc = market.NewService(c.cfg.Symbol, market.NewPublisher(),
		market.WithCapacity(c.cfg.Tape.Capacity),
		market.WithPulseTTL(c.cfg.Tape.PulseTTL()),
		market.WithFlashTTL(c.cfg.Tape.FlashTTL()),
	)

	limiter := gateway.NewTokenBucketLimiter(c.cfg.Feed.RESTRatePerSec, c.cfg.Feed.RESTBurst)
	c.rest = gateway.NewBinanceRESTClient(c.cfg.Feed.RESTEndpoint, limiter, c.monitor)

	c.feed = gateway.NewFeed(c.cfg.Feed.WSEndpoint, c.rest, c.monitor, c.logger.Logger)
	c.feed.Events = c.logger
	c.feed.DepthStream = c.cfg.Feed.DepthStream
	c.feed.TradeStream = c.cfg.Feed.TradeStream
	c.feed.SnapshotLimit = c.cfg.Feed.SnapshotLimit
	c.feed.ReadTimeout = c.cfg.Feed.ReadTimeout()
	c.feed.ReconnectDelay = c.cfg.Feed.ReconnectDelay()
	c.feed.MaxReconnectDelay = c.cfg.Feed.MaxReconnectDelay()

	c.reconciler = reconcile.NewMonitor(c.cfg.Symbol, c.svc, c.rest,
		reconcile.WithInterval(c.cfg.Reconcile.Interval()),
		reconcile.WithTolerances(TolerancesFromConfig(c.cfg.Reconcile)),
		reconcile.WithRecorder(alert.NewSyncAlerter(c.cfg.Symbol, c.monitor, c.alerts)),
		reconcile.WithLogger(c.logger),
	)
}

func (c *Container) buildOutputs(ctx context.Context) error {
	c.api = api.NewHandler(c.svc,
		api.WithLogger(c.logger),
		api.WithDefaultDepth(c.cfg.Book.Depth),
		api.WithFrameInterval(c.cfg.HTTP.FrameInterval()),
		api.WithAlerts(c.recent),
		api.WithStaleAfter(c.cfg.Feed.StaleAfter()),
	)

	if !c.cfg.Redis.Enabled {
		return nil
	}
	client, err := cacheredis.New(ctx, cacheredis.ClientConfig{
		Addr:     c.cfg.Redis.Addr,
		Password: c.cfg.Redis.Password,
		DB:       c.cfg.Redis.DB,
	})
	if err != nil {
		return err
	}
	c.redis = client
	c.sink = cacheredis.NewViewSink(client, c.svc, cacheredis.SinkConfig{
		KeyPrefix: c.cfg.Redis.KeyPrefix,
		Depth:     c.cfg.Book.Depth,
		TTL:       time.Duration(c.cfg.Redis.TTLSec) * time.Second,
	}, c.logger)
	return nil
}

func (c *Container) registerLifecycleComponents() {
	if c.cfg.Metrics.Enabled {
		c.metricsServer = &httpServerComponent{
			name:    "metrics_server",
			handler: c.monitor.Handler(),
			addr:    c.cfg.Metrics.Addr,
			logger:  c.logger,
		}
		c.lifecycle.Register(c.metricsServer)
	}
	c.lifecycle.Register(&feedComponent{
		feed:       c.feed,
		svc:        c.svc,
		logger:     c.logger,
		staleAfter: c.cfg.Feed.StaleAfter(),
	})
	if c.cfg.Reconcile.Enabled {
		c.lifecycle.Register(&runnerComponent{name: "reconciler", run: c.reconciler.Run, logger: c.logger})
	}
	if c.sink != nil {
		c.lifecycle.Register(&runnerComponent{name: "redis_view_sink", run: c.sink.Run, logger: c.logger})
	}
	if c.configPath != "" {
		w := config.Watcher{
			Path: c.configPath,
			OnError: func(err error) {
				c.logger.LogError(err, map[string]interface{}{"component": "config_watcher"})
			},
		}
		c.lifecycle.Register(&runnerComponent{
			name:   "config_watcher",
			run:    func(ctx context.Context) error { return w.Start(ctx, c.ApplyConfig) },
			logger: c.logger,
		})
	}
	if c.cfg.HTTP.Enabled {
		c.apiServer = &httpServerComponent{
			name:    "api_server",
			handler: c.api.Router(),
			addr:    c.cfg.HTTP.Addr,
			logger:  c.logger,
			onStop:  c.api.Close,
		}
		c.lifecycle.Register(c.apiServer)
	}
}

func (c *Container) Start(ctx context.Context) error {
	c.logger.Info("starting container...")
	if err := c.lifecycle.StartAll(ctx); err != nil {
		return fmt.Errorf("start failed: %w", err)
	}
	c.logger.Info("container started")
	return nil
}

func (c *Container) Stop() error {
	c.logger.Info("stopping container...")
	err := c.lifecycle.StopAll()
	if err != nil {
		c.logger.LogError(err, map[string]interface{}{"action": "stop"})
	}
	if c.redis != nil {
		if cerr := c.redis.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	c.logger.Info("container stopped")
	_ = c.logger.Close()
	return err
}

// Health 检查所有组件
func (c *Container) Health() error {
	return c.lifecycle.CheckHealth()
}

// ApplyConfig 应用热更新：仅对账周期/阈值与日志级别可在运行中修改，
// 其余字段需要重启生效。
func (c *Container) ApplyConfig(cfg config.AppConfig) {
	if err := config.ValidateReconcile(cfg.Reconcile); err == nil {
		c.reconciler.SetTolerances(TolerancesFromConfig(cfg.Reconcile))
		c.reconciler.SetInterval(cfg.Reconcile.Interval())
	}
	if cfg.Log.Level != "" {
		if err := c.logger.SetLevel(cfg.Log.Level); err != nil {
			c.logger.LogError(err, map[string]interface{}{"component": "config_watcher"})
		}
	}
	c.logger.Info("config reloaded",
		zap.Int("reconcile_interval_ms", cfg.Reconcile.IntervalMs),
		zap.String("log_level", c.logger.Level()),
	)
}

func (c *Container) Config() config.AppConfig { return c.cfg }

func (c *Container) Logger() *logger.Logger { return c.logger }

func (c *Container) Service() *market.Service { return c.svc }

func (c *Container) Reconciler() *reconcile.Monitor { return c.reconciler }

func (c *Container) Monitor() *monitor.Monitor { return c.monitor }

// APIAddr 返回 API 实际监听地址，未启用时为空
func (c *Container) APIAddr() string {
	if c.apiServer == nil {
		return ""
	}
	return c.apiServer.Addr()
}

// TolerancesFromConfig 把配置里的浮点阈值转换成比较用的 decimal
func TolerancesFromConfig(r config.ReconcileConfig) reconcile.Tolerances {
	return reconcile.Tolerances{
		BookPrice:  decimal.NewFromFloat(r.BookPriceTolerance),
		TradePrice: decimal.NewFromFloat(r.TradePriceTolerance),
		TradeQty:   decimal.NewFromFloat(r.TradeQtyTolerance),
		TradeTime:  r.TradeTimeTolerance(),
	}
}
