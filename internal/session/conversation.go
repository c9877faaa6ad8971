package session

import (
	"context"
	"sync"
	"sync/atomic"

	"watchparty/internal/models"
)

// DefaultHistoryTurns 是每个参与者保留的最大轮次（5 问 5 答）。
const DefaultHistoryTurns = 10

// ConversationStore 按参与者分区保存与助手的对话历史，各分区独立加锁。
type ConversationStore struct {
	mu       sync.Mutex
	capacity int
	convos   map[string]*conversation
	epochs   atomic.Uint64
}

type conversation struct {
	mu    sync.Mutex
	turns []models.ConversationTurn
	// epoch 在 Clear/Drop 时变化，旧 epoch 的提交会被丢弃。
	epoch uint64
	// slot 串行化同一参与者的助手请求。
	slot chan struct{}
}

func NewConversationStore(capacity int) *ConversationStore {
	if capacity <= 0 {
		capacity = DefaultHistoryTurns
	}
	if capacity%2 != 0 {
		capacity++
	}
	return &ConversationStore{capacity: capacity, convos: make(map[string]*conversation)}
}

func (s *ConversationStore) Capacity() int { return s.capacity }

func (s *ConversationStore) get(id string, create bool) *conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.convos[id]
	if c == nil && create {
		c = &conversation{epoch: s.epochs.Add(1), slot: make(chan struct{}, 1)}
		s.convos[id] = c
	}
	return c
}

func (c *conversation) appendLocked(capacity int, user, assistant string) {
	c.turns = append(c.turns,
		models.ConversationTurn{Role: models.RoleUser, Content: user},
		models.ConversationTurn{Role: models.RoleAssistant, Content: assistant},
	)
	if over := len(c.turns) - capacity; over > 0 {
		kept := make([]models.ConversationTurn, capacity)
		copy(kept, c.turns[over:])
		c.turns = kept
	}
}

// AppendExchange 追加一问一答两轮，超出容量时先淘汰最旧的轮次。
func (s *ConversationStore) AppendExchange(id, user, assistant string) {
	c := s.get(id, true)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.appendLocked(s.capacity, user, assistant)
}

// WindowFor 返回最近 maxTurns 轮的副本。
func (s *ConversationStore) WindowFor(id string, maxTurns int) []models.ConversationTurn {
	turns, _ := s.window(id, maxTurns)
	return turns
}

func (s *ConversationStore) window(id string, maxTurns int) ([]models.ConversationTurn, uint64) {
	c := s.get(id, false)
	if c == nil || maxTurns <= 0 {
		return []models.ConversationTurn{}, 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	start := len(c.turns) - maxTurns
	if start < 0 {
		start = 0
	}
	out := make([]models.ConversationTurn, len(c.turns)-start)
	copy(out, c.turns[start:])
	return out, c.epoch
}

func (s *ConversationStore) Len(id string) int {
	c := s.get(id, false)
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.turns)
}

// Clear 清空历史并使进行中请求的提交失效。
func (s *ConversationStore) Clear(id string) {
	c := s.get(id, false)
	if c == nil {
		return
	}
	c.mu.Lock()
	c.turns = nil
	c.epoch = s.epochs.Add(1)
	c.mu.Unlock()
}

// Drop 在断开连接时整体移除该参与者的历史。
func (s *ConversationStore) Drop(id string) {
	s.mu.Lock()
	c := s.convos[id]
	delete(s.convos, id)
	s.mu.Unlock()
	if c != nil {
		c.mu.Lock()
		c.turns = nil
		c.epoch = s.epochs.Add(1)
		c.mu.Unlock()
	}
}

// Acquire 占用该参与者唯一的助手请求槽位，重叠的请求排队等待。
func (s *ConversationStore) Acquire(ctx context.Context, id string) (release func(), err error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c := s.get(id, true)
	select {
	case c.slot <- struct{}{}:
		return func() { <-c.slot }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Commit 仅在 epoch 未变化时原子地写入一问一答；否则丢弃并返回 false。
func (s *ConversationStore) Commit(id string, epoch uint64, user, assistant string) bool {
	c := s.get(id, false)
	if c == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epoch != epoch {
		return false
	}
	c.appendLocked(s.capacity, user, assistant)
	return true
}
