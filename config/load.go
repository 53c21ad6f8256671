package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"market-mirror-go/infrastructure/logger"
)

// AppConfig holds the main runtime configuration.
type AppConfig struct {
	Env       string          `yaml:"env"`
	Symbol    string          `yaml:"symbol"`
	Feed      FeedConfig      `yaml:"feed"`
	Book      BookConfig      `yaml:"book"`
	Tape      TapeConfig      `yaml:"tape"`
	Reconcile ReconcileConfig `yaml:"reconcile"`
	HTTP      HTTPConfig      `yaml:"http"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Redis     RedisConfig     `yaml:"redis"`
	Alert     AlertConfig     `yaml:"alert"`
	Log       logger.Config   `yaml:"log"`
}

// FeedConfig 行情源连接参数
type FeedConfig struct {
	WSEndpoint          string  `yaml:"wsEndpoint"`
	RESTEndpoint        string  `yaml:"restEndpoint"`
	DepthStream         string  `yaml:"depthStream"`         // 例如 depth@100ms
	TradeStream         string  `yaml:"tradeStream"`         // aggTrade 或 trade
	SnapshotLimit       int     `yaml:"snapshotLimit"`       // 重新播种时的 REST 深度档数
	ReadTimeoutMs       int     `yaml:"readTimeoutMs"`       // 超过该时间无消息视为断线
	ReconnectDelayMs    int     `yaml:"reconnectDelayMs"`    // 首次重连等待
	MaxReconnectDelayMs int     `yaml:"maxReconnectDelayMs"` // 指数退避上限
	RESTRatePerSec      float64 `yaml:"restRatePerSec"`
	RESTBurst           int     `yaml:"restBurst"`
}

type BookConfig struct {
	Depth int `yaml:"depth"` // 默认视图档数
}

type TapeConfig struct {
	Capacity   int `yaml:"capacity"`
	PulseTTLMs int `yaml:"pulseTtlMs"`
	FlashTTLMs int `yaml:"flashTtlMs"`
}

// ReconcileConfig 对账参数，可热更新
type ReconcileConfig struct {
	Enabled              bool    `yaml:"enabled"`
	IntervalMs           int     `yaml:"intervalMs"`
	BookPriceTolerance   float64 `yaml:"bookPriceTolerance"`
	TradePriceTolerance  float64 `yaml:"tradePriceTolerance"`
	TradeQtyTolerance    float64 `yaml:"tradeQtyTolerance"`
	TradeTimeToleranceMs int     `yaml:"tradeTimeToleranceMs"`
}

type HTTPConfig struct {
	Enabled         bool   `yaml:"enabled"`
	Addr            string `yaml:"addr"`
	FrameIntervalMs int    `yaml:"frameIntervalMs"` // /v1/stream 推送节流
}

type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Addr      string `yaml:"addr"`
	Namespace string `yaml:"namespace"`
	Subsystem string `yaml:"subsystem"`
}

type RedisConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"keyPrefix"`
	TTLSec    int    `yaml:"ttlSec"`
}

type AlertConfig struct {
	ThrottleSec int `yaml:"throttleSec"`
}

// Defaults 返回可直接运行的默认配置。
func Defaults() AppConfig {
	return AppConfig{
		Env:    "dev",
		Symbol: "BTCUSDT",
		Feed: FeedConfig{
			WSEndpoint:          "wss://stream.binance.com:9443",
			RESTEndpoint:        "https://api.binance.com",
			DepthStream:         "depth@100ms",
			TradeStream:         "aggTrade",
			SnapshotLimit:       1000,
			ReadTimeoutMs:       30000,
			ReconnectDelayMs:    1000,
			MaxReconnectDelayMs: 30000,
			RESTRatePerSec:      5,
			RESTBurst:           5,
		},
		Book: BookConfig{Depth: 30},
		Tape: TapeConfig{Capacity: 50, PulseTTLMs: 1200, FlashTTLMs: 400},
		Reconcile: ReconcileConfig{
			Enabled:              true,
			IntervalMs:           7000,
			BookPriceTolerance:   0.5,
			TradePriceTolerance:  1,
			TradeQtyTolerance:    0.001,
			TradeTimeToleranceMs: 10000,
		},
		HTTP:    HTTPConfig{Enabled: true, Addr: ":8080", FrameIntervalMs: 16},
		Metrics: MetricsConfig{Enabled: true, Addr: ":9101", Namespace: "mirror", Subsystem: "feed"},
		Redis:   RedisConfig{Addr: "127.0.0.1:6379", KeyPrefix: "mirror", TTLSec: 60},
		Alert:   AlertConfig{ThrottleSec: 60},
		Log:     logger.DefaultConfig(),
	}
}

// Load reads YAML config from path on top of Defaults and validates it.
func Load(path string) (AppConfig, error) {
	cfg := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadWithEnvOverrides loads config, then .env files (missing files are ignored),
// then MIRROR_* environment variables.
func LoadWithEnvOverrides(path string, envFiles ...string) (AppConfig, error) {
	cfg, err := Load(path)
	if err != nil {
		return cfg, err
	}
	if err := loadEnvFiles(envFiles...); err != nil {
		return cfg, err
	}
	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, Validate(cfg)
}

func loadEnvFiles(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		// godotenv 不覆盖已存在的环境变量
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load env file %s: %w", f, err)
		}
	}
	return nil
}

func applyEnv(cfg *AppConfig) error {
	setStr := func(key string, dst *string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	setStr("MIRROR_ENV", &cfg.Env)
	setStr("MIRROR_SYMBOL", &cfg.Symbol)
	setStr("MIRROR_WS_ENDPOINT", &cfg.Feed.WSEndpoint)
	setStr("MIRROR_REST_ENDPOINT", &cfg.Feed.RESTEndpoint)
	setStr("MIRROR_HTTP_ADDR", &cfg.HTTP.Addr)
	setStr("MIRROR_METRICS_ADDR", &cfg.Metrics.Addr)
	setStr("MIRROR_REDIS_ADDR", &cfg.Redis.Addr)
	setStr("MIRROR_REDIS_PASSWORD", &cfg.Redis.Password)
	setStr("MIRROR_LOG_LEVEL", &cfg.Log.Level)
	cfg.Symbol = strings.ToUpper(cfg.Symbol)

	if v := os.Getenv("MIRROR_REDIS_ENABLED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("MIRROR_REDIS_ENABLED: %w", err)
		}
		cfg.Redis.Enabled = b
	}
	if v := os.Getenv("MIRROR_RECONCILE_INTERVAL_MS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("MIRROR_RECONCILE_INTERVAL_MS: %w", err)
		}
		cfg.Reconcile.IntervalMs = n
	}
	return nil
}

// Interval 返回对账周期
func (r ReconcileConfig) Interval() time.Duration { return ms(r.IntervalMs) }

func (r ReconcileConfig) TradeTimeTolerance() time.Duration { return ms(r.TradeTimeToleranceMs) }

// FrameInterval 返回推送节流间隔
func (h HTTPConfig) FrameInterval() time.Duration { return ms(h.FrameIntervalMs) }

func (f FeedConfig) ReadTimeout() time.Duration { return ms(f.ReadTimeoutMs) }

func (f FeedConfig) ReconnectDelay() time.Duration { return ms(f.ReconnectDelayMs) }

func (f FeedConfig) MaxReconnectDelay() time.Duration { return ms(f.MaxReconnectDelayMs) }

// StaleAfter 行情多久没有更新视为不健康：读超时加一次最长重连。
func (f FeedConfig) StaleAfter() time.Duration { return f.ReadTimeout() + f.MaxReconnectDelay() }

func (t TapeConfig) PulseTTL() time.Duration { return ms(t.PulseTTLMs) }

func (t TapeConfig) FlashTTL() time.Duration { return ms(t.FlashTTLMs) }

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }
