package room

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"trainarena/logging"
)

// Manager 管理多个房间的生命周期
type Manager struct {
	mu    sync.RWMutex
	rooms map[string]*Room

	ctx     context.Context
	opts    Options
	onClose func(id string)
	wg      sync.WaitGroup
	log     *zap.SugaredLogger
}

// NewManager opts 作为每个新房间的模板；onClose 在房间关闭并移出管理器后调用
func NewManager(ctx context.Context, opts Options, onClose func(id string)) *Manager {
	return &Manager{
		rooms:   make(map[string]*Room),
		ctx:     ctx,
		opts:    opts,
		onClose: onClose,
		log:     logging.Named("rooms"),
	}
}

// Assign 把成员放进第一个可加入的房间，没有则新建
func (m *Manager) Assign(member Member) (*Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, r := range m.sortedLocked() {
		if !r.Available(member.Observer) {
			continue
		}
		err := r.Join(member)
		if err == nil {
			return r, nil
		}
		m.log.Debugw("join rejected, trying next room", "room", r.ID, "err", err)
	}

	r := m.createLocked()
	if err := r.Join(member); err != nil {
		return nil, err
	}
	return r, nil
}

func (m *Manager) createLocked() *Room {
	id := uuid.NewString()[:8]
	for m.rooms[id] != nil {
		id = uuid.NewString()[:8]
	}
	opts := m.opts
	opts.OnClose = m.remove
	r := New(id, opts)
	m.rooms[id] = r

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		r.Run(m.ctx)
	}()
	return r
}

func (m *Manager) remove(id string) {
	m.mu.Lock()
	_, ok := m.rooms[id]
	delete(m.rooms, id)
	m.mu.Unlock()
	if !ok {
		return
	}
	m.log.Infow("room removed", "room", id)
	if m.onClose != nil {
		m.onClose(id)
	}
}

// Get 按 ID 查找房间
func (m *Manager) Get(id string) (*Room, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rooms[id]
	return r, ok
}

// List 所有房间的概况，按创建时间排序
func (m *Manager) List() []Info {
	m.mu.RLock()
	rooms := m.sortedLocked()
	m.mu.RUnlock()

	out := make([]Info, 0, len(rooms))
	for _, r := range rooms {
		out = append(out, r.Info())
	}
	return out
}

func (m *Manager) sortedLocked() []*Room {
	rooms := make([]*Room, 0, len(m.rooms))
	for _, r := range m.rooms {
		rooms = append(rooms, r)
	}
	sort.Slice(rooms, func(i, j int) bool {
		if !rooms[i].createdAt.Equal(rooms[j].createdAt) {
			return rooms[i].createdAt.Before(rooms[j].createdAt)
		}
		return rooms[i].ID < rooms[j].ID
	})
	return rooms
}

// Shutdown 关闭所有房间，最多等待 timeout
func (m *Manager) Shutdown(timeout time.Duration) error {
	m.mu.RLock()
	rooms := m.sortedLocked()
	m.mu.RUnlock()
	for _, r := range rooms {
		r.cancel()
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return errors.New("rooms did not stop in time")
	}
}
