package gateway

import "market-mirror-go/market"

// Recorder 收集网关层的运行指标，infrastructure/monitor.Monitor 实现了它。
type Recorder interface {
	RecordDepthApplied(top market.Top, bidLevels, askLevels int)
	RecordTrade(t market.Trade, buyPct float64)
	RecordParseError(kind string)
	RecordSequenceGap()
	RecordWSConnection()
	RecordWSDisconnect()
	RecordRESTRequest(action string)
	RecordRESTError(action string)
	RecordRESTLatency(action string, seconds float64)
}

type nopRecorder struct{}

func (nopRecorder) RecordDepthApplied(market.Top, int, int) {}
func (nopRecorder) RecordTrade(market.Trade, float64) {}
func (nopRecorder) RecordParseError(string) {}
func (nopRecorder) RecordSequenceGap() {}
func (nopRecorder) RecordWSConnection() {}
func (nopRecorder) RecordWSDisconnect() {}
func (nopRecorder) RecordRESTRequest(string) {}
func (nopRecorder) RecordRESTError(string) {}
func (nopRecorder) RecordRESTLatency(string, float64) {}

func recorderOrNop(r Recorder) Recorder {
	if r == nil {
		return nopRecorder{}
	}
	return r
}

// EventLog 输出结构化的业务事件，*logger.Logger 满足该接口。
type EventLog interface {
	LogFeed(event string, fields map[string]interface{})
	LogTrade(event string, fields map[string]interface{})
}

type nopEventLog struct{}

func (nopEventLog) LogFeed(string, map[string]interface{}) {}

func (nopEventLog) LogTrade(string, map[string]interface{}) {}

func eventLogOrNop(e EventLog) EventLog {
	if e == nil {
		return nopEventLog{}
	}
	return e
}
