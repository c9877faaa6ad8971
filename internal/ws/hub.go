package ws

import (
	"sync"

	"watchparty/internal/session"
)

// Hub 管理房间级别的 session.Room，实现延迟创建与并发安全。
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]*session.Room
	opts  session.Options
}

func NewHub(opts session.Options) *Hub {
	return &Hub{rooms: make(map[string]*session.Room), opts: opts}
}

// GetRoom 若房间未初始化则懒加载一个 Room，房间在进程生命周期内常驻。
func (h *Hub) GetRoom(name string) *session.Room {
	h.mu.RLock()
	room := h.rooms[name]
	h.mu.RUnlock()
	if room != nil {
		return room
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	room = h.rooms[name]
	if room != nil {
		return room
	}
	room = session.NewRoom(name, h.opts)
	h.rooms[name] = room
	return room
}

func (h *Hub) Online(name string) int {
	h.mu.RLock()
	room := h.rooms[name]
	h.mu.RUnlock()
	if room == nil {
		return 0
	}
	return room.Online()
}

func (h *Hub) all() []*session.Room {
	h.mu.RLock()
	defer h.mu.RUnlock()
	rooms := make([]*session.Room, 0, len(h.rooms))
	for _, r := range h.rooms {
		rooms = append(rooms, r)
	}
	return rooms
}

// Close 关闭所有房间：不再接受新的助手请求，并断开现有连接。
func (h *Hub) Close() {
	for _, r := range h.all() {
		r.Close()
	}
}

// Wait 等待所有房间中进行中的助手请求结束，需在 Close 之后调用。
func (h *Hub) Wait() {
	for _, r := range h.all() {
		r.Wait()
	}
}
