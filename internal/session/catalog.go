package session

import (
	"fmt"

	"watchparty/internal/models"
)

// Catalog 是房间的视频目录和当前播放指针。只追加，不淘汰。非并发安全，由 Room 的锁保护。
type Catalog struct {
	videos  []models.Video
	index   map[string]int
	current *string
}

func NewCatalog() *Catalog {
	return &Catalog{index: make(map[string]int)}
}

// Add 追加视频；id 已存在时不做修改，返回已有记录和 false。
func (c *Catalog) Add(v models.Video) (models.Video, bool) {
	if i, ok := c.index[v.ID]; ok {
		return c.videos[i], false
	}
	c.index[v.ID] = len(c.videos)
	c.videos = append(c.videos, v)
	return v, true
}

func (c *Catalog) List() []models.Video {
	out := make([]models.Video, len(c.videos))
	copy(out, c.videos)
	return out
}

// SetCurrent 只接受目录中已存在的 id，失败时不改动指针。
func (c *Catalog) SetCurrent(videoID string) error {
	if _, ok := c.index[videoID]; !ok {
		return fmt.Errorf("%w: video %s", ErrNotFound, videoID)
	}
	id := videoID
	c.current = &id
	return nil
}

func (c *Catalog) Current() (string, bool) {
	if c.current == nil {
		return "", false
	}
	return *c.current, true
}

func (c *Catalog) Snapshot(room string) models.RoomSnapshot {
	snap := models.RoomSnapshot{Room: room, Videos: c.List()}
	if id, ok := c.Current(); ok {
		snap.CurrentVideoID = &id
	}
	return snap
}
