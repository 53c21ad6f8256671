package alert

import "sync"

// SyncRecorder 与 reconcile.Recorder 签名一致。
type SyncRecorder interface {
	RecordSyncCheck(check string, inSync bool)
	RecordSyncFailure(check string)
	SetInSync(inSync bool)
}

// SyncAlerter 包装对账指标记录器，在同步状态翻转和拉取失败时发送告警。
type SyncAlerter struct {
	Next    SyncRecorder
	Manager *Manager
	Symbol  string

	mu     sync.Mutex
	inSync bool
}

func NewSyncAlerter(symbol string, next SyncRecorder, mgr *Manager) *SyncAlerter {
	return &SyncAlerter{Next: next, Manager: mgr, Symbol: symbol, inSync: true}
}

func (a *SyncAlerter) RecordSyncCheck(check string, inSync bool) {
	if a.Next != nil {
		a.Next.RecordSyncCheck(check, inSync)
	}
}

func (a *SyncAlerter) RecordSyncFailure(check string) {
	if a.Next != nil {
		a.Next.RecordSyncFailure(check)
	}
	if a.Manager != nil {
		_ = a.Manager.SendError("sync fetch failed", map[string]interface{}{
			"symbol": a.Symbol,
			"check":  check,
		})
	}
}

func (a *SyncAlerter) SetInSync(inSync bool) {
	if a.Next != nil {
		a.Next.SetInSync(inSync)
	}
	a.mu.Lock()
	flipped := a.inSync != inSync
	a.inSync = inSync
	a.mu.Unlock()
	if !flipped || a.Manager == nil {
		return
	}
	fields := map[string]interface{}{"symbol": a.Symbol}
	if inSync {
		_ = a.Manager.SendInfo("book back in sync", fields)
		return
	}
	_ = a.Manager.SendWarning("book drifted from exchange", fields)
}
