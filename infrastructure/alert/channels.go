package alert

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// LogChannel 把告警写入结构化日志
type LogChannel struct {
	logger *zap.Logger
	name   string
}

// NewLogChannel 创建日志告警通道
func NewLogChannel(name string, logger *zap.Logger) *LogChannel {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogChannel{logger: logger, name: name}
}

// Send 按告警级别映射日志级别
func (c *LogChannel) Send(alert Alert) error {
	keys := make([]string, 0, len(alert.Fields))
	for k := range alert.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fields := []zap.Field{
		zap.String("alert_level", alert.Level),
		zap.Time("alert_ts", alert.Timestamp),
	}
	for _, k := range keys {
		fields = append(fields, zap.Any(k, alert.Fields[k]))
	}
	switch alert.Level {
	case LevelInfo:
		c.logger.Info(alert.Message, fields...)
	case LevelWarning:
		c.logger.Warn(alert.Message, fields...)
	default:
		c.logger.Error(alert.Message, fields...)
	}
	return nil
}

func (c *LogChannel) Name() string {
	return c.name
}

// MemoryChannel 把告警保存在内存，供 /v1/sync 展示最近告警和测试断言
type MemoryChannel struct {
	name      string
	limit     int
	mu        sync.Mutex
	alerts    []Alert
	shouldErr bool
}

func NewMemoryChannel(name string, limit int) *MemoryChannel {
	if limit <= 0 {
		limit = 50
	}
	return &MemoryChannel{name: name, limit: limit}
}

func (c *MemoryChannel) Send(alert Alert) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.shouldErr {
		return fmt.Errorf("memory channel %s rejected alert", c.name)
	}
	c.alerts = append(c.alerts, alert)
	if len(c.alerts) > c.limit {
		c.alerts = c.alerts[len(c.alerts)-c.limit:]
	}
	return nil
}

func (c *MemoryChannel) Name() string {
	return c.name
}

// Alerts 返回拷贝，旧的在前
func (c *MemoryChannel) Alerts() []Alert {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Alert, len(c.alerts))
	copy(out, c.alerts)
	return out
}

func (c *MemoryChannel) SetShouldError(v bool) {
	c.mu.Lock()
	c.shouldErr = v
	c.mu.Unlock()
}

func (c *MemoryChannel) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.alerts)
}
