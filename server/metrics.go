package server

import (
	"sync/atomic"
)

// Metrics 传输层计数器
type Metrics struct {
	PacketsReceived int64 // 收到的数据包
	MessagesDecoded int64 // 解析成功的消息
	ProtocolErrors  int64 // 无法解析的消息
	SendErrors      int64 // 发送失败
	Joins           int64 // 完成握手并进入房间
	Rejected        int64 // 名字或学号校验失败
	UnknownClients  int64 // 未握手地址发来的动作
	Disconnects     int64 // 断线（超时、ping 超时、被挤掉）
}

func (m *Metrics) IncPackets()        { atomic.AddInt64(&m.PacketsReceived, 1) }
func (m *Metrics) IncDecoded()        { atomic.AddInt64(&m.MessagesDecoded, 1) }
func (m *Metrics) IncProtocolErrors() { atomic.AddInt64(&m.ProtocolErrors, 1) }
func (m *Metrics) IncSendErrors()     { atomic.AddInt64(&m.SendErrors, 1) }
func (m *Metrics) IncJoins()          { atomic.AddInt64(&m.Joins, 1) }
func (m *Metrics) IncRejected()       { atomic.AddInt64(&m.Rejected, 1) }
func (m *Metrics) IncUnknownClients() { atomic.AddInt64(&m.UnknownClients, 1) }
func (m *Metrics) IncDisconnects()    { atomic.AddInt64(&m.Disconnects, 1) }

// Snapshot 返回只读副本，便于 HTTP 输出
func (m *Metrics) Snapshot() map[string]any {
	return map[string]any{
		"packets_received": atomic.LoadInt64(&m.PacketsReceived),
		"messages_decoded": atomic.LoadInt64(&m.MessagesDecoded),
		"protocol_errors":  atomic.LoadInt64(&m.ProtocolErrors),
		"send_errors":      atomic.LoadInt64(&m.SendErrors),
		"joins":            atomic.LoadInt64(&m.Joins),
		"rejected":         atomic.LoadInt64(&m.Rejected),
		"unknown_clients":  atomic.LoadInt64(&m.UnknownClients),
		"disconnects":      atomic.LoadInt64(&m.Disconnects),
	}
}
