package scores

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestUpdateKeepsBest(t *testing.T) {
	tbl := Open("")
	if !tbl.Update("123456", 4) {
		t.Fatalf("first score not recorded")
	}
	if tbl.Update("123456", 3) {
		t.Fatalf("lower score replaced best")
	}
	if !tbl.Update("123456", 7) {
		t.Fatalf("higher score not recorded")
	}
	if s, _ := tbl.Get("123456"); s != 7 {
		t.Fatalf("best = %d, want 7", s)
	}
	if tbl.Update("", 10) {
		t.Fatalf("empty id accepted")
	}
}

func TestFlushAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scores.json")
	tbl := Open(path)
	tbl.Update("111111", 5)
	tbl.Update("222222", 2)
	if err := tbl.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	again := Open(path)
	snap := again.Snapshot()
	if snap["111111"] != 5 || snap["222222"] != 2 || len(snap) != 2 {
		t.Fatalf("reloaded = %v", snap)
	}
}

func TestOpenCorruptFileStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scores.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if n := len(Open(path).Snapshot()); n != 0 {
		t.Fatalf("corrupt file produced %d entries", n)
	}
}

func TestRunFlushesOnCancel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scores.json")
	tbl := Open(path)
	tbl.Update("333333", 9)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- tbl.Run(ctx, time.Hour) }()
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("run did not stop")
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("scores file not written: %v", err)
	}
}
