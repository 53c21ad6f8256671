package logschema

import (
	"fmt"
	"sort"
	"strings"
)

// Schema 定义每个日志事件所需的关键字段，便于集中校验。
type Schema struct {
	Event    string
	Required []string
}

var schemas = map[string]Schema{
	"feed_state": {
		Event:    "feed_state",
		Required: []string{"symbol", "session", "state"},
	},
	"depth_snapshot": {
		Event:    "depth_snapshot",
		Required: []string{"symbol", "lastUpdateId", "bid", "ask"},
	},
	"sequence_gap": {
		Event:    "sequence_gap",
		Required: []string{"symbol", "firstUpdateId", "lastUpdateId"},
	},
	"trade_print": {
		Event:    "trade_print",
		Required: []string{"symbol", "id", "price", "qty", "side"},
	},
	"sync_check": {
		Event:    "sync_check",
		Required: []string{"symbol", "inSync"},
	},
	"sync_fetch_failed": {
		Event:    "sync_fetch_failed",
		Required: []string{"symbol", "check", "error"},
	},
}

// Known 返回所有事件名，便于外部生成文档。
func Known() []string {
	names := make([]string, 0, len(schemas))
	for k := range schemas {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Validate 检查日志字段是否包含 schema 中要求的 key。未登记的事件不做校验。
func Validate(event string, fields map[string]interface{}) error {
	s, ok := schemas[event]
	if !ok {
		return nil
	}
	var missing []string
	for _, key := range s.Required {
		if _, exists := fields[key]; !exists {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing fields: %s", strings.Join(missing, ","))
	}
	return nil
}
