// Package scores 按学号保存每名玩家的历史最高分
package scores

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"trainarena/logging"
)

// Table 内存中的最高分表，可选地落盘为 JSON；并发写入以最后一次为准
type Table struct {
	mu     sync.Mutex
	path   string
	scores map[string]int
	dirty  bool
	log    *zap.SugaredLogger
}

// Open 从 path 载入分数表；文件不存在或损坏时从空表开始。path 为空表示只在内存中
func Open(path string) *Table {
	t := &Table{path: path, scores: make(map[string]int), log: logging.Named("scores")}
	if path == "" {
		return t
	}
	b, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		t.log.Infow("scores file not found, starting empty", "path", path)
	case err != nil:
		t.log.Errorw("read scores file", "path", path, "err", err)
	default:
		if err := json.Unmarshal(b, &t.scores); err != nil {
			t.log.Errorw("decode scores file, starting empty", "path", path, "err", err)
			t.scores = make(map[string]int)
		} else {
			t.log.Infow("scores loaded", "path", path, "players", len(t.scores))
		}
	}
	return t
}

// Update 新分数更高时记录并返回 true
func (t *Table) Update(id string, score int) bool {
	if id == "" {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if old, ok := t.scores[id]; ok && score <= old {
		return false
	}
	t.scores[id] = score
	t.dirty = true
	return true
}

// Get 返回指定学号的最高分
func (t *Table) Get(id string) (int, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.scores[id]
	return s, ok
}

// Snapshot 返回副本
func (t *Table) Snapshot() map[string]int {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]int, len(t.scores))
	for k, v := range t.scores {
		out[k] = v
	}
	return out
}

// Flush 有未保存的修改时写盘（先写临时文件再 rename）
func (t *Table) Flush() error {
	t.mu.Lock()
	if !t.dirty || t.path == "" {
		t.mu.Unlock()
		return nil
	}
	b, err := json.MarshalIndent(t.scores, "", "    ")
	t.dirty = false
	t.mu.Unlock()
	if err != nil {
		return fmt.Errorf("encode scores: %w", err)
	}

	if err := t.write(b); err != nil {
		t.mu.Lock()
		t.dirty = true
		t.mu.Unlock()
		return err
	}
	return nil
}

func (t *Table) write(b []byte) error {
	dir := filepath.Dir(t.path)
	tmp, err := os.CreateTemp(dir, ".scores-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp scores file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write scores: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close scores file: %w", err)
	}
	if err := os.Rename(tmpName, t.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace scores file: %w", err)
	}
	return nil
}

// Run 周期性落盘，ctx 结束时再写一次
func (t *Table) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			if err := t.Flush(); err != nil {
				t.log.Errorw("final scores flush", "err", err)
			}
			return nil
		case <-ticker.C:
			if err := t.Flush(); err != nil {
				t.log.Errorw("scores flush", "err", err)
			}
		}
	}
}
