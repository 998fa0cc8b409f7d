package server

import (
	"net/netip"
	"sort"
	"sync"
	"time"

	"trainarena/protocol"
	"trainarena/room"
)

// Session 一个已握手的地址
type Session struct {
	Addr         netip.AddrPort
	Nickname     string
	Sciper       string
	Mode         protocol.GameMode
	Room         *room.Room
	LastActivity time.Time
	PingSentAt   time.Time // 零值表示没有未回复的 ping
}

// Expiry 一次超时判定
type Expiry struct {
	Addr   netip.AddrPort
	Reason string
}

const (
	reasonTimeout     = "timeout"
	reasonPingTimeout = "ping timeout"
)

// Registry 地址 ↔ 身份表；接收协程与心跳协程共用同一把锁
type Registry struct {
	mu       sync.Mutex
	byAddr   map[netip.AddrPort]*Session
	bySciper map[string]netip.AddrPort
}

func NewRegistry() *Registry {
	return &Registry{
		byAddr:   make(map[netip.AddrPort]*Session),
		bySciper: make(map[string]netip.AddrPort),
	}
}

// Register 记录会话；同一学号的旧地址被挤掉并返回
func (r *Registry) Register(s Session) (evicted *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.bySciper[s.Sciper]; ok && old != s.Addr {
		if prev, ok := r.byAddr[old]; ok {
			cp := *prev
			evicted = &cp
			delete(r.byAddr, old)
		}
	}
	if prev, ok := r.byAddr[s.Addr]; ok && prev.Sciper != s.Sciper && r.bySciper[prev.Sciper] == s.Addr {
		delete(r.bySciper, prev.Sciper)
	}
	sess := s
	r.byAddr[s.Addr] = &sess
	r.bySciper[s.Sciper] = s.Addr
	return evicted
}

// AddrForSciper 学号当前绑定的地址
func (r *Registry) AddrForSciper(sciper string) (netip.AddrPort, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	addr, ok := r.bySciper[sciper]
	return addr, ok
}

// Lookup 返回会话副本
func (r *Registry) Lookup(addr netip.AddrPort) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byAddr[addr]
	if !ok {
		return Session{}, false
	}
	return *s, true
}

// Touch 记录一次活动
func (r *Registry) Touch(addr netip.AddrPort, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.byAddr[addr]; ok {
		s.LastActivity = now
	}
}

// Pong 清除未回复的 ping 并记录活动
func (r *Registry) Pong(addr netip.AddrPort, now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byAddr[addr]
	if !ok {
		return false
	}
	s.LastActivity = now
	s.PingSentAt = time.Time{}
	return true
}

// Remove 删除会话；只有第一次删除返回 true，断线流程据此不会重复触发
func (r *Registry) Remove(addr netip.AddrPort) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byAddr[addr]
	if !ok {
		return Session{}, false
	}
	r.removeLocked(s)
	return *s, true
}

func (r *Registry) removeLocked(s *Session) {
	delete(r.byAddr, s.Addr)
	if r.bySciper[s.Sciper] == s.Addr {
		delete(r.bySciper, s.Sciper)
	}
}

// NameTaken 昵称是否被仍在线的玩家占用
func (r *Registry) NameTaken(nickname string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.byAddr {
		if s.Nickname == nickname {
			return true
		}
	}
	return false
}

// DropRoom 删除绑定到已关闭房间的会话
func (r *Registry) DropRoom(id string) []netip.AddrPort {
	r.mu.Lock()
	defer r.mu.Unlock()
	var dropped []netip.AddrPort
	for _, s := range r.byAddr {
		if s.Room != nil && s.Room.ID == id {
			dropped = append(dropped, s.Addr)
		}
	}
	for _, addr := range dropped {
		r.removeLocked(r.byAddr[addr])
	}
	return dropped
}

// Addrs 所有在线地址，有序
func (r *Registry) Addrs() []netip.AddrPort {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.addrsLocked()
}

func (r *Registry) addrsLocked() []netip.AddrPort {
	out := make([]netip.AddrPort, 0, len(r.byAddr))
	for addr := range r.byAddr {
		out = append(out, addr)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Compare(out[j]) < 0 })
	return out
}

// Len 在线会话数
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byAddr)
}

// MarkPinged 为没有未回复 ping 的会话记录发送时间，返回需要 ping 的地址
func (r *Registry) MarkPinged(now time.Time) []netip.AddrPort {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.byAddr {
		if s.PingSentAt.IsZero() {
			s.PingSentAt = now
		}
	}
	return r.addrsLocked()
}

// Expired 超过 timeout 无活动，或 ping 超过 pingWait 未回复的会话
func (r *Registry) Expired(now time.Time, timeout, pingWait time.Duration) []Expiry {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Expiry
	for _, addr := range r.addrsLocked() {
		s := r.byAddr[addr]
		switch {
		case now.Sub(s.LastActivity) > timeout:
			out = append(out, Expiry{Addr: addr, Reason: reasonTimeout})
		case !s.PingSentAt.IsZero() && now.Sub(s.PingSentAt) > pingWait:
			out = append(out, Expiry{Addr: addr, Reason: reasonPingTimeout})
		}
	}
	return out
}
