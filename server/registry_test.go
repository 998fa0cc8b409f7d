package server

import (
	"net/netip"
	"testing"
	"time"

	"trainarena/room"
)

var (
	addrA = netip.MustParseAddrPort("127.0.0.1:50001")
	addrB = netip.MustParseAddrPort("127.0.0.1:50002")
)

func TestRegisterEvictsOldAddressForSameSciper(t *testing.T) {
	reg := NewRegistry()
	now := time.Now()
	if ev := reg.Register(Session{Addr: addrA, Nickname: "alice", Sciper: "123456", LastActivity: now}); ev != nil {
		t.Fatalf("first register evicted %+v", ev)
	}
	ev := reg.Register(Session{Addr: addrB, Nickname: "alice", Sciper: "123456", LastActivity: now})
	if ev == nil || ev.Addr != addrA {
		t.Fatalf("evicted = %+v, want %v", ev, addrA)
	}
	if _, ok := reg.Lookup(addrA); ok {
		t.Fatalf("old address still registered")
	}
	if addr, ok := reg.AddrForSciper("123456"); !ok || addr != addrB {
		t.Fatalf("sciper maps to %v", addr)
	}
}

func TestRemoveReportsFirstRemovalOnly(t *testing.T) {
	reg := NewRegistry()
	reg.Register(Session{Addr: addrA, Nickname: "alice", Sciper: "123456"})
	if _, first := reg.Remove(addrA); !first {
		t.Fatalf("first remove returned false")
	}
	if _, first := reg.Remove(addrA); first {
		t.Fatalf("second remove returned true")
	}
	if reg.NameTaken("alice") {
		t.Fatalf("name still taken after removal")
	}
}

func TestExpiredReasons(t *testing.T) {
	reg := NewRegistry()
	t0 := time.Now()
	reg.Register(Session{Addr: addrA, Nickname: "idle", Sciper: "111111", LastActivity: t0})
	reg.Register(Session{Addr: addrB, Nickname: "mute", Sciper: "222222", LastActivity: t0})

	if pinged := reg.MarkPinged(t0); len(pinged) != 2 {
		t.Fatalf("pinged = %v", pinged)
	}
	// 第二轮 ping 不刷新未回复的发送时间
	reg.MarkPinged(t0.Add(500 * time.Millisecond))

	got := reg.Expired(t0.Add(1100*time.Millisecond), 2*time.Second, time.Second)
	if len(got) != 2 || got[0].Reason != reasonPingTimeout || got[1].Reason != reasonPingTimeout {
		t.Fatalf("expired = %+v", got)
	}

	reg.Pong(addrA, t0.Add(1200*time.Millisecond))
	reg.Pong(addrB, t0.Add(1500*time.Millisecond))
	got = reg.Expired(t0.Add(3300*time.Millisecond), 2*time.Second, time.Second)
	if len(got) != 1 || got[0].Addr != addrA || got[0].Reason != reasonTimeout {
		t.Fatalf("expired = %+v", got)
	}
}

func TestDropRoom(t *testing.T) {
	reg := NewRegistry()
	r := room.New("r1", room.Options{})
	other := room.New("r2", room.Options{})
	reg.Register(Session{Addr: addrA, Nickname: "alice", Sciper: "111111", Room: r})
	reg.Register(Session{Addr: addrB, Nickname: "bob", Sciper: "222222", Room: other})

	dropped := reg.DropRoom("r1")
	if len(dropped) != 1 || dropped[0] != addrA {
		t.Fatalf("dropped = %v", dropped)
	}
	if reg.Len() != 1 {
		t.Fatalf("len = %d", reg.Len())
	}
	if _, ok := reg.AddrForSciper("111111"); ok {
		t.Fatalf("sciper of dropped session still mapped")
	}
}
