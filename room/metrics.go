package room

import (
	"sync/atomic"
)

// Metrics 记录房间运行期的关键指标（用于监控与调试）
type Metrics struct {
	TickCount        int64 // 统计的 Tick 次数
	TotalTickNs      int64 // Tick 累计耗时（纳秒）
	Broadcasts       int64 // 发出的状态广播次数
	Deaths           int64 // 死亡的列车数
	BotOverruns      int64 // 决策超时被移除的 AI
	LateDecisions    int64 // 超时后才返回、被丢弃的决策
	InboxDiscarded   int64 // 因队列满被丢弃的客户端动作
	OutboundDropped  int64 // 因发送队列满被丢弃的出站消息
	SpectatorDropped int64 // 观战者发送队列满时丢弃的帧
}

func (m *Metrics) IncBroadcast()        { atomic.AddInt64(&m.Broadcasts, 1) }
func (m *Metrics) IncDeaths()           { atomic.AddInt64(&m.Deaths, 1) }
func (m *Metrics) IncBotOverrun()       { atomic.AddInt64(&m.BotOverruns, 1) }
func (m *Metrics) IncLateDecision()     { atomic.AddInt64(&m.LateDecisions, 1) }
func (m *Metrics) IncInboxDiscarded()   { atomic.AddInt64(&m.InboxDiscarded, 1) }
func (m *Metrics) IncOutboundDropped()  { atomic.AddInt64(&m.OutboundDropped, 1) }
func (m *Metrics) IncSpectatorDropped() { atomic.AddInt64(&m.SpectatorDropped, 1) }

func (m *Metrics) AddTick(ns int64) {
	atomic.AddInt64(&m.TickCount, 1)
	atomic.AddInt64(&m.TotalTickNs, ns)
}

// Snapshot 返回只读副本，便于 HTTP 输出
func (m *Metrics) Snapshot() map[string]any {
	tick := atomic.LoadInt64(&m.TickCount)
	total := atomic.LoadInt64(&m.TotalTickNs)
	var avgMs float64
	if tick > 0 {
		avgMs = float64(total) / float64(tick) / 1e6
	}
	return map[string]any{
		"tick_count":        tick,
		"avg_tick_ms":       avgMs,
		"broadcasts":        atomic.LoadInt64(&m.Broadcasts),
		"deaths":            atomic.LoadInt64(&m.Deaths),
		"bot_overruns":      atomic.LoadInt64(&m.BotOverruns),
		"late_decisions":    atomic.LoadInt64(&m.LateDecisions),
		"inbox_discarded":   atomic.LoadInt64(&m.InboxDiscarded),
		"outbound_dropped":  atomic.LoadInt64(&m.OutboundDropped),
		"spectator_dropped": atomic.LoadInt64(&m.SpectatorDropped),
	}
}
