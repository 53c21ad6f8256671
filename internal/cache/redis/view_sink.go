package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"market-mirror-go/infrastructure/logger"
	"market-mirror-go/market"
)

// Key schema:
//
//	{prefix}:{symbol}:snapshot - 最新 market.Snapshot 的 JSON
//	{prefix}:{symbol}:updates  - 每次写入后 PUBLISH 同样的 JSON
func SnapshotKey(prefix, symbol string) string { return prefix + ":" + symbol + ":snapshot" }

func UpdatesChannel(prefix, symbol string) string { return prefix + ":" + symbol + ":updates" }

// SinkConfig 配置 ViewSink
type SinkConfig struct {
	KeyPrefix   string
	Depth       int
	TTL         time.Duration
	MinInterval time.Duration // 两次写入之间的最小间隔
}

// ViewSink 订阅 market.Service 的变更，把合并后的最新快照写入 Redis。
type ViewSink struct {
	rdb *redis.Client
	svc *market.Service
	cfg SinkConfig
	log *logger.Logger
}

func NewViewSink(c *Client, svc *market.Service, cfg SinkConfig, log *logger.Logger) *ViewSink {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "mirror"
	}
	if cfg.Depth <= 0 {
		cfg.Depth = market.DefaultDepth
	}
	if cfg.MinInterval <= 0 {
		cfg.MinInterval = 100 * time.Millisecond
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &ViewSink{rdb: c.Underlying(), svc: svc, cfg: cfg, log: log}
}

// Publish 写入一次当前快照并广播。
func (s *ViewSink) Publish(ctx context.Context) error {
	snap := s.svc.Snapshot(s.cfg.Depth)
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("redis: marshal snapshot: %w", err)
	}
	pipe := s.rdb.Pipeline()
	pipe.Set(ctx, SnapshotKey(s.cfg.KeyPrefix, snap.Symbol), payload, s.cfg.TTL)
	pipe.Publish(ctx, UpdatesChannel(s.cfg.KeyPrefix, snap.Symbol), payload)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: publish snapshot: %w", err)
	}
	return nil
}

// Run 阻塞直到 ctx 结束。写入失败只记录日志，下一次变更继续尝试。
func (s *ViewSink) Run(ctx context.Context) error {
	pub := s.svc.Publisher()
	changed := pub.Subscribe()
	defer pub.Unsubscribe(changed)

	ticker := time.NewTicker(s.cfg.MinInterval)
	defer ticker.Stop()
	dirty := false
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-changed:
			dirty = true
		case <-ticker.C:
			if !dirty {
				continue
			}
			dirty = false
			if err := s.Publish(ctx); err != nil && ctx.Err() == nil {
				s.log.Warn("view sink write failed", zap.Error(err))
			}
		}
	}
}

// LatestSnapshot 读回最近一次写入的快照。
func LatestSnapshot(ctx context.Context, c *Client, prefix, symbol string) (market.Snapshot, error) {
	var snap market.Snapshot
	raw, err := c.Underlying().Get(ctx, SnapshotKey(prefix, symbol)).Bytes()
	if err != nil {
		return snap, fmt.Errorf("redis: get snapshot: %w", err)
	}
	if err := json.Unmarshal(raw, &snap); err != nil {
		return snap, fmt.Errorf("redis: decode snapshot: %w", err)
	}
	return snap, nil
}
