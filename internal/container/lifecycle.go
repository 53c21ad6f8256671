package container

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"market-mirror-go/gateway"
	"market-mirror-go/infrastructure/logger"
	"market-mirror-go/market"
)

// Lifecycle 生命周期接口
type Lifecycle interface {
	Name() string
	Start(ctx context.Context) error
	Stop() error
	Health() error
}

// LifecycleManager 生命周期管理器
type LifecycleManager struct {
	components []Lifecycle
	mu         sync.RWMutex
}

// NewLifecycleManager 创建新的生命周期管理器
func NewLifecycleManager() *LifecycleManager {
	return &LifecycleManager{
		components: make([]Lifecycle, 0),
	}
}

// Register 注册组件
func (m *LifecycleManager) Register(component Lifecycle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.components = append(m.components, component)
}

// StartAll 按顺序启动所有组件，失败时回滚已启动的组件
func (m *LifecycleManager) StartAll(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for i, component := range m.components {
		if err := component.Start(ctx); err != nil {
			for j := i - 1; j >= 0; j-- {
				_ = m.components[j].Stop()
			}
			return fmt.Errorf("start %s failed: %w", component.Name(), err)
		}
	}
	return nil
}

// StopAll 逆序停止所有组件
func (m *LifecycleManager) StopAll() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var errs []error
	for i := len(m.components) - 1; i >= 0; i-- {
		if err := m.components[i].Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop %s: %w", m.components[i].Name(), err))
		}
	}
	return errors.Join(errs...)
}

// CheckHealth 检查所有组件健康状态
func (m *LifecycleManager) CheckHealth() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, component := range m.components {
		if err := component.Health(); err != nil {
			return fmt.Errorf("%s unhealthy: %w", component.Name(), err)
		}
	}
	return nil
}

// Names 返回注册顺序的组件名
func (m *LifecycleManager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.components))
	for _, c := range m.components {
		names = append(names, c.Name())
	}
	return names
}

// httpServerComponent HTTP服务器组件
type httpServerComponent struct {
	name    string
	handler http.Handler
	addr    string
	logger  *logger.Logger

	// onStop 在 Shutdown 之前调用，用于结束被接管的长连接
	onStop func()

	mu      sync.Mutex
	server  *http.Server
	bound   string
	started bool
}

func (h *httpServerComponent) Name() string { return h.name }

func (h *httpServerComponent) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.started {
		return nil
	}

	ln, err := net.Listen("tcp", h.addr)
	if err != nil {
		return fmt.Errorf("%s listen %s: %w", h.name, h.addr, err)
	}
	srv := &http.Server{
		Handler:           h.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	h.server = srv
	h.bound = ln.Addr().String()

	go func() {
		h.logger.Info("http server listening", zap.String("component", h.name), zap.String("addr", h.bound))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			h.logger.LogError(err, map[string]interface{}{
				"component": h.name,
				"action":    "serve",
			})
		}
	}()

	h.started = true
	return nil
}

func (h *httpServerComponent) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.started || h.server == nil {
		return nil
	}

	if h.onStop != nil {
		h.onStop()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("%s shutdown failed: %w", h.name, err)
	}
	h.logger.Info("http server stopped", zap.String("component", h.name))
	h.started = false
	return nil
}

func (h *httpServerComponent) Health() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.started {
		return fmt.Errorf("%s not started", h.name)
	}
	return nil
}

// Addr 返回实际监听地址（addr 为 :0 时有用）
func (h *httpServerComponent) Addr() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.bound
}

// runnerComponent 把阻塞式的 Run(ctx) 包装成生命周期组件
type runnerComponent struct {
	name   string
	run    func(ctx context.Context) error
	logger *logger.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

func (r *runnerComponent) Name() string { return r.name }

func (r *runnerComponent) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done != nil {
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})
	go func(done chan struct{}) {
		defer close(done)
		err := r.run(runCtx)
		if err != nil && !errors.Is(err, context.Canceled) {
			r.logger.LogError(err, map[string]interface{}{"component": r.name})
			r.mu.Lock()
			r.err = err
			r.mu.Unlock()
		}
	}(r.done)
	return nil
}

func (r *runnerComponent) Stop() error {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.mu.Unlock()
	if done == nil {
		return nil
	}
	cancel()
	<-done
	r.mu.Lock()
	r.done = nil
	r.mu.Unlock()
	return nil
}

func (r *runnerComponent) Health() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	if r.done == nil {
		return fmt.Errorf("%s not started", r.name)
	}
	select {
	case <-r.done:
		return fmt.Errorf("%s exited", r.name)
	default:
	}
	return nil
}

// feedComponent 管理一个行情会话
type feedComponent struct {
	feed       *gateway.Feed
	svc        *market.Service
	logger     *logger.Logger
	staleAfter time.Duration

	mu      sync.Mutex
	session *gateway.Session
}

func (f *feedComponent) Name() string { return "feed" }

func (f *feedComponent) Start(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.session != nil {
		return nil
	}
	sess, err := f.feed.Open(ctx, f.svc.Symbol(), f.svc)
	if err != nil {
		return err
	}
	f.session = sess
	f.logger.LogFeed("feed_state", map[string]interface{}{
		"symbol":  sess.Symbol,
		"session": sess.ID.String(),
		"state":   "open",
	})
	return nil
}

func (f *feedComponent) Stop() error {
	f.mu.Lock()
	sess := f.session
	f.session = nil
	f.mu.Unlock()
	if sess == nil {
		return nil
	}
	err := sess.Close()
	f.logger.LogFeed("feed_state", map[string]interface{}{
		"symbol":     sess.Symbol,
		"session":    sess.ID.String(),
		"state":      "closed",
		"reconnects": sess.Reconnects(),
	})
	return err
}

func (f *feedComponent) Health() error {
	f.mu.Lock()
	sess := f.session
	f.mu.Unlock()
	if sess == nil {
		return fmt.Errorf("feed not open")
	}
	select {
	case <-sess.Done():
		return fmt.Errorf("feed session %s exited", sess.ID)
	default:
	}
	if f.staleAfter > 0 {
		if st := f.svc.Staleness(); st > f.staleAfter {
			return fmt.Errorf("no market data for %s", st.Round(time.Second))
		}
	}
	return nil
}
