package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"market-mirror-go/config"
	"market-mirror-go/gateway"
	"market-mirror-go/infrastructure/logger"
	"market-mirror-go/internal/container"
	"market-mirror-go/market"
	"market-mirror-go/reconcile"
)

// syncprobe 用 REST 快照播种本地状态后执行一次对账，打印结果。
// 主要用于确认网络和阈值配置，偏差为 0 属于正常。
func main() {
	cfgPath := flag.String("config", "configs/config.yaml", "配置文件路径")
	symbol := flag.String("symbol", "", "交易对，留空使用配置")
	timeout := flag.Duration("timeout", 10*time.Second, "整体超时")
	flag.Parse()

	cfg, err := config.LoadWithEnvOverrides(*cfgPath)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}
	if *symbol != "" {
		cfg.Symbol = strings.ToUpper(*symbol)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	status, err := probe(ctx, cfg, logger.NewNop())
	if err != nil {
		log.Fatalf("probe failed: %v", err)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(status); err != nil {
		log.Fatalf("encode failed: %v", err)
	}
	if !status.InSync {
		os.Exit(2)
	}
}

func probe(ctx context.Context, cfg config.AppConfig, lg *logger.Logger) (market.SyncStatus, error) {
	rest := gateway.NewBinanceRESTClient(cfg.Feed.RESTEndpoint,
		gateway.NewTokenBucketLimiter(cfg.Feed.RESTRatePerSec, cfg.Feed.RESTBurst), nil)
	svc := market.NewService(cfg.Symbol, nil, market.WithCapacity(cfg.Tape.Capacity))

	snap, err := rest.Depth(ctx, cfg.Symbol, cfg.Feed.SnapshotLimit)
	if err != nil {
		return market.SyncStatus{}, fmt.Errorf("seed depth: %w", err)
	}
	svc.Reseed(snap)
	trades, err := rest.RecentTrades(ctx, cfg.Symbol, cfg.Tape.Capacity)
	if err != nil {
		return market.SyncStatus{}, fmt.Errorf("seed trades: %w", err)
	}
	for _, t := range trades {
		svc.OnTrade(t)
	}

	mon := reconcile.NewMonitor(cfg.Symbol, svc, rest,
		reconcile.WithTolerances(container.TolerancesFromConfig(cfg.Reconcile)),
		reconcile.WithLogger(lg),
	)
	return mon.CheckNow(ctx), nil
}
