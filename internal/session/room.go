package session

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"watchparty/internal/assistant"
	"watchparty/internal/metrics"
	"watchparty/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	maxChatRunes     = 1000
	maxQuestionRunes = 2000
)

type Options struct {
	Gateway          assistant.Gateway
	AssistantTimeout time.Duration
	HistoryTurns     int
}

type member struct {
	sink   Sink
	ctx    context.Context
	cancel context.CancelFunc
}

// Room 是单个房间的事件路由：所有对在线表、视频目录和出站广播的修改都在 mu 下串行执行，
// 因此同一参与者的事件按发出顺序送达，不同参与者之间按到达顺序形成全序。
// 助手调用在锁外进行，结果回到锁内提交。
type Room struct {
	name string
	opts Options

	mu       sync.Mutex
	presence *Presence
	catalog  *Catalog
	members  map[string]*member
	closed   bool

	convos   *ConversationStore
	inflight sync.WaitGroup
}

func NewRoom(name string, opts Options) *Room {
	if opts.Gateway == nil {
		opts.Gateway = assistant.Unavailable{}
	}
	if opts.AssistantTimeout <= 0 {
		opts.AssistantTimeout = 30 * time.Second
	}
	if opts.HistoryTurns <= 0 {
		opts.HistoryTurns = DefaultHistoryTurns
	}
	return &Room{
		name:     name,
		opts:     opts,
		presence: NewPresence(),
		catalog:  NewCatalog(),
		members:  make(map[string]*member),
		convos:   NewConversationStore(opts.HistoryTurns),
	}
}

func (r *Room) Name() string { return r.name }

func (r *Room) Conversations() *ConversationStore { return r.convos }

// Join 注册新连接：私发房间快照，再向全房间广播在线列表。
func (r *Room) Join(id string, sink Sink) (models.Participant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return models.Participant{}, ErrClosed
	}
	p, err := r.presence.Join(id, time.Now())
	if err != nil {
		log.Error().Err(err).Str("room", r.name).Str("participant_id", id).Msg("join")
		return models.Participant{}, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	r.members[id] = &member{sink: sink, ctx: ctx, cancel: cancel}

	sink.Send(Event{Type: EventRoomState, Data: r.catalog.Snapshot(r.name)})
	r.broadcastLocked(Event{Type: EventUserList, Data: r.presence.Snapshot()})
	log.Info().Str("room", r.name).Str("participant_id", id).Int("online", r.presence.Len()).Msg("participant joined")
	return p, nil
}

// Leave 原子地移除参与者、丢弃其对话历史并取消进行中的助手请求；重复调用无副作用。
func (r *Room) Leave(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.presence.Leave(id) {
		return
	}
	if m := r.members[id]; m != nil {
		m.cancel()
		delete(r.members, id)
	}
	r.convos.Drop(id)
	r.broadcastLocked(Event{Type: EventUserList, Data: r.presence.Snapshot()})
	log.Info().Str("room", r.name).Str("participant_id", id).Int("online", r.presence.Len()).Msg("participant left")
}

func (r *Room) Online() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.presence.Len()
}

func (r *Room) Roster() []models.Participant {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.presence.Snapshot()
}

func (r *Room) Snapshot() models.RoomSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.catalog.Snapshot(r.name)
}

func (r *Room) Videos() []models.Video {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.catalog.List()
}

// AddVideo 由上传流程调用，追加到目录并通知房间。
func (r *Room) AddVideo(v models.Video) models.Video {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, added := r.catalog.Add(v)
	if added {
		r.broadcastLocked(Event{Type: EventVideoAdded, Data: stored})
	}
	return stored
}

// SelectVideo 切换当前视频；byID 为空表示来自 HTTP 接口。
func (r *Room) SelectVideo(byID, videoID string) error {
	videoID = strings.TrimSpace(videoID)
	if videoID == "" {
		return fmt.Errorf("%w: video_id is required", ErrValidation)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.catalog.SetCurrent(videoID); err != nil {
		return err
	}
	r.broadcastLocked(Event{Type: EventVideoChanged, Data: models.VideoChanged{Room: r.name, VideoID: videoID}})
	log.Info().Str("room", r.name).Str("participant_id", byID).Str("video_id", videoID).Msg("video changed")
	return nil
}

func (r *Room) SendChat(id, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return fmt.Errorf("%w: message is required", ErrValidation)
	}
	if utf8.RuneCountInString(text) > maxChatRunes {
		return fmt.Errorf("%w: message too long", ErrValidation)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.presence.Get(id)
	if !ok {
		return fmt.Errorf("%w: participant %s", ErrNotFound, id)
	}
	msg := models.ChatMessage{
		ID:          uuid.NewString(),
		AuthorID:    id,
		DisplayName: p.DisplayName,
		Body:        text,
		Timestamp:   time.Now(),
		Kind:        models.KindChat,
	}
	r.broadcastLocked(Event{Type: EventNewMessage, Data: msg})
	metrics.WsMessagesTotal.Inc()
	return nil
}

// RelayVideoControl 把手动的播放/暂停/跳转转发给全房间。
func (r *Room) RelayVideoControl(id, action string, at float64) error {
	act := models.PlaybackAction(action)
	switch act {
	case models.ActionPlay, models.ActionPause, models.ActionSeek:
	default:
		return fmt.Errorf("%w: unknown video action %q", ErrValidation, action)
	}
	if math.IsNaN(at) || math.IsInf(at, 0) || at < 0 {
		return fmt.Errorf("%w: invalid time", ErrValidation)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.presence.Get(id); !ok {
		return fmt.Errorf("%w: participant %s", ErrNotFound, id)
	}
	r.broadcastLocked(Event{Type: EventVideoControl, Data: models.VideoControl{Action: act, Time: at, UserID: id, Timestamp: time.Now()}})
	return nil
}

// ClearConversation 开启新对话；与放下手不同，放下手不会清空历史。
func (r *Room) ClearConversation(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.members[id]
	if !ok {
		return fmt.Errorf("%w: participant %s", ErrNotFound, id)
	}
	r.convos.Clear(id)
	m.sink.Send(Event{Type: EventConversationCleared, Data: models.Conversation{ParticipantID: id, Turns: []models.ConversationTurn{}}})
	return nil
}

// ReplayConversation 私发当前对话窗口。
func (r *Room) ReplayConversation(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.members[id]
	if !ok {
		return fmt.Errorf("%w: participant %s", ErrNotFound, id)
	}
	m.sink.Send(Event{Type: EventConversation, Data: models.Conversation{ParticipantID: id, Turns: r.convos.WindowFor(id, r.convos.Capacity())}})
	return nil
}

// Dispatch 是入站事件的唯一入口。错误不会越过这里：它们被私发给请求方后再返回给调用方记录。
func (r *Room) Dispatch(id string, in Inbound) error {
	var err error
	switch in.Type {
	case InChatMessage:
		err = r.SendChat(id, in.Message)
	case InRaiseHand:
		err = r.ToggleHand(id, in.Screenshot)
	case InSelectVideo:
		err = r.SelectVideo(id, in.VideoID)
	case InAssistantMessage:
		err = r.AskAssistant(id, in.Message, in.Screenshot)
	case InClearConversation:
		err = r.ClearConversation(id)
	case InGetConversation:
		err = r.ReplayConversation(id)
	case InVideoControl:
		err = r.RelayVideoControl(id, in.Action, in.Time)
	default:
		err = fmt.Errorf("%w: unknown message type %q", ErrValidation, in.Type)
	}
	if err != nil {
		r.Reject(id, err)
	}
	return err
}

// Reject 把错误私发给请求方。
func (r *Room) Reject(id string, err error) {
	code := ErrorCode(err)
	metrics.WsRejectedTotal.WithLabelValues(code).Inc()
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.members[id]; ok {
		m.sink.Send(Event{Type: EventError, Data: models.ErrorPayload{Code: code, Message: err.Error()}})
	}
}

// Close 用于停服：拒绝新的加入和助手请求，取消进行中的调用并断开所有连接。
// 之后调用 Wait 不会再与新的请求竞争。
func (r *Room) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	for _, m := range r.members {
		m.cancel()
		if c, ok := m.sink.(interface{ Close() }); ok {
			c.Close()
		}
	}
	log.Info().Str("room", r.name).Int("online", r.presence.Len()).Msg("room closed")
}

// Wait 阻塞直到所有进行中的助手请求结束，用于优雅停服和测试。
func (r *Room) Wait() { r.inflight.Wait() }

func (r *Room) broadcastLocked(evt Event) {
	for _, id := range r.presence.order {
		if m := r.members[id]; m != nil {
			m.sink.Send(evt)
		}
	}
}

func (r *Room) sendLocked(id string, evt Event) {
	if m := r.members[id]; m != nil {
		m.sink.Send(evt)
	}
}
