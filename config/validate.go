package config

import (
	"errors"
	"fmt"

	"go.uber.org/zap/zapcore"
)

// ErrInvalid 用于参数验证错误。
type ErrInvalid string

func (e ErrInvalid) Error() string { return string(e) }

// Validate ensures required fields are present and ranges are sane.
func Validate(cfg AppConfig) error {
	if cfg.Env == "" {
		return errors.New("env is required")
	}
	if cfg.Symbol == "" {
		return errors.New("symbol is required")
	}
	if cfg.Feed.WSEndpoint == "" || cfg.Feed.RESTEndpoint == "" {
		return errors.New("feed.wsEndpoint/restEndpoint is required")
	}
	if cfg.Feed.SnapshotLimit < 0 {
		return ErrInvalid("feed.snapshotLimit must be >= 0")
	}
	if cfg.Feed.ReadTimeoutMs < 0 || cfg.Feed.ReconnectDelayMs < 0 || cfg.Feed.MaxReconnectDelayMs < 0 {
		return ErrInvalid("feed timings must be >= 0")
	}
	if cfg.Feed.MaxReconnectDelayMs > 0 && cfg.Feed.MaxReconnectDelayMs < cfg.Feed.ReconnectDelayMs {
		return ErrInvalid("feed.maxReconnectDelayMs must be >= reconnectDelayMs")
	}
	if cfg.Feed.RESTRatePerSec < 0 || cfg.Feed.RESTBurst < 0 {
		return ErrInvalid("feed rest limiter must be >= 0")
	}
	if cfg.Book.Depth <= 0 {
		return ErrInvalid("book.depth must be > 0")
	}
	if cfg.Tape.Capacity <= 0 {
		return ErrInvalid("tape.capacity must be > 0")
	}
	if cfg.Tape.PulseTTLMs <= 0 || cfg.Tape.FlashTTLMs <= 0 {
		return ErrInvalid("tape.pulseTtlMs/flashTtlMs must be > 0")
	}
	if err := ValidateReconcile(cfg.Reconcile); err != nil {
		return err
	}
	if cfg.HTTP.Enabled && cfg.HTTP.Addr == "" {
		return ErrInvalid("http.addr is required when http is enabled")
	}
	if cfg.HTTP.FrameIntervalMs < 0 {
		return ErrInvalid("http.frameIntervalMs must be >= 0")
	}
	if cfg.Metrics.Enabled && cfg.Metrics.Addr == "" {
		return ErrInvalid("metrics.addr is required when metrics is enabled")
	}
	if cfg.Redis.Enabled && cfg.Redis.Addr == "" {
		return ErrInvalid("redis.addr is required when redis is enabled")
	}
	if cfg.Redis.TTLSec < 0 {
		return ErrInvalid("redis.ttlSec must be >= 0")
	}
	if _, err := zapcore.ParseLevel(cfg.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	return nil
}

// ValidateReconcile 单独校验可热更新的对账参数。
func ValidateReconcile(r ReconcileConfig) error {
	if r.IntervalMs <= 0 {
		return ErrInvalid("reconcile.intervalMs must be > 0")
	}
	if r.BookPriceTolerance <= 0 || r.TradePriceTolerance <= 0 || r.TradeQtyTolerance <= 0 {
		return ErrInvalid("reconcile tolerances must be > 0")
	}
	if r.TradeTimeToleranceMs <= 0 {
		return ErrInvalid("reconcile.tradeTimeToleranceMs must be > 0")
	}
	return nil
}
