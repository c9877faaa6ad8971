package session

import (
	"fmt"
	"time"

	"watchparty/internal/models"
)

// Presence 记录在线参与者及举手状态，按加入顺序输出。非并发安全，由 Room 的锁保护。
type Presence struct {
	order []string
	byID  map[string]*models.Participant
}

func NewPresence() *Presence {
	return &Presence{byID: make(map[string]*models.Participant)}
}

// DisplayName 由连接 id 确定性地派生。
func DisplayName(id string) string {
	if len(id) > 6 {
		id = id[:6]
	}
	return "User-" + id
}

// Join 插入新参与者；同一 id 重复加入说明连接生命周期出错，返回 ErrInvariant。
func (p *Presence) Join(id string, now time.Time) (models.Participant, error) {
	if id == "" {
		return models.Participant{}, fmt.Errorf("%w: empty participant id", ErrValidation)
	}
	if _, ok := p.byID[id]; ok {
		return models.Participant{}, fmt.Errorf("%w: participant %s already joined", ErrInvariant, id)
	}
	part := &models.Participant{ID: id, DisplayName: DisplayName(id), JoinedAt: now}
	p.byID[id] = part
	p.order = append(p.order, id)
	return *part, nil
}

// Leave 移除参与者，返回是否真的移除了；对不存在的 id 幂等。
func (p *Presence) Leave(id string) bool {
	if _, ok := p.byID[id]; !ok {
		return false
	}
	delete(p.byID, id)
	for i, v := range p.order {
		if v == id {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}
	return true
}

func (p *Presence) ToggleHand(id string) (bool, error) {
	part, ok := p.byID[id]
	if !ok {
		return false, fmt.Errorf("%w: participant %s", ErrNotFound, id)
	}
	part.HandRaised = !part.HandRaised
	return part.HandRaised, nil
}

func (p *Presence) Get(id string) (models.Participant, bool) {
	part, ok := p.byID[id]
	if !ok {
		return models.Participant{}, false
	}
	return *part, true
}

func (p *Presence) Snapshot() []models.Participant {
	out := make([]models.Participant, 0, len(p.order))
	for _, id := range p.order {
		out = append(out, *p.byID[id])
	}
	return out
}

func (p *Presence) Len() int { return len(p.order) }
