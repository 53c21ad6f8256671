package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher 监听配置文件变化，重新加载并校验成功后回调。
// 监听的是文件所在目录，编辑器“写临时文件再改名”的保存方式同样能被捕获。
type Watcher struct {
	Path     string
	EnvFiles []string
	Cooldown time.Duration
	OnError  func(error)
}

// Start 阻塞直到 ctx 结束；回调收到最新的完整配置。
func (w Watcher) Start(ctx context.Context, onUpdate func(AppConfig)) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer fw.Close()

	abs, err := filepath.Abs(w.Path)
	if err != nil {
		return fmt.Errorf("resolve config path: %w", err)
	}
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("failed to watch config dir: %w", err)
	}

	cooldown := w.Cooldown
	if cooldown <= 0 {
		cooldown = 200 * time.Millisecond
	}
	// 一次保存往往产生多个事件，合并到 cooldown 之后统一重载
	var pending <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if pending == nil {
				pending = time.After(cooldown)
			}
		case <-pending:
			pending = nil
			cfg, err := LoadWithEnvOverrides(w.Path, w.EnvFiles...)
			if err != nil {
				w.reportError(fmt.Errorf("reload config: %w", err))
				continue
			}
			if onUpdate != nil {
				onUpdate(cfg)
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.reportError(err)
		}
	}
}

func (w Watcher) reportError(err error) {
	if w.OnError != nil {
		w.OnError(err)
	}
}
