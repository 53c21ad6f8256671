package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"market-mirror-go/internal/container"
)

func main() {
	cfgPath := flag.String("config", "configs/config.yaml", "配置文件路径")
	healthEvery := flag.Duration("healthInterval", 10*time.Second, "健康检查间隔")
	maxUnhealthy := flag.Int("maxUnhealthy", 6, "连续不健康次数上限，超过后退出（0 表示不退出）")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := container.New(*cfgPath)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}
	if err := c.Build(ctx); err != nil {
		log.Fatalf("初始化失败: %v", err)
	}
	if err := c.Start(ctx); err != nil {
		log.Fatalf("启动失败: %v", err)
	}
	lg := c.Logger()
	if _, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		lg.Warn("sd_notify ready failed", zap.Error(err))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return watchdog(gctx, c)
	})
	g.Go(func() error {
		return supervise(gctx, c.Health, *healthEvery, *maxUnhealthy, func(err error, streak int) {
			lg.Warn("health check failed", zap.Error(err), zap.Int("streak", streak))
		})
	})
	exitCode := 0
	if err := g.Wait(); err != nil {
		lg.Error("bookwatch exited", zap.Error(err))
		exitCode = 1
	}

	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	if err := c.Stop(); err != nil {
		log.Printf("停止时出错: %v", err)
		exitCode = 1
	}
	os.Exit(exitCode)
}

// supervise 周期性检查健康状态，连续失败 limit 次后返回错误，由 errgroup 触发整体退出。
func supervise(ctx context.Context, health func() error, interval time.Duration, limit int, onFail func(error, int)) error {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	streak := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			err := health()
			if err == nil {
				streak = 0
				continue
			}
			streak++
			if onFail != nil {
				onFail(err, streak)
			}
			if limit > 0 && streak >= limit {
				return fmt.Errorf("unhealthy for %d consecutive checks: %w", streak, err)
			}
		}
	}
}

// watchdog 在 systemd 开启 WatchdogSec 时按半周期上报，组件不健康时停止上报。
func watchdog(ctx context.Context, c *container.Container) error {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval <= 0 {
		return nil
	}
	ticker := time.NewTicker(interval / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := c.Health(); err != nil {
				continue
			}
			_, _ = daemon.SdNotify(false, daemon.SdNotifyWatchdog)
		}
	}
}
