package models

import "time"

// AssistantID 是助手消息使用的 author id。
const AssistantID = "assistant"

type Participant struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"display_name"`
	HandRaised  bool      `json:"hand_raised"`
	JoinedAt    time.Time `json:"joined_at"`
}

type Video struct {
	ID           string    `json:"id"`
	Filename     string    `json:"filename"`
	OriginalName string    `json:"original_name"`
	StoragePath  string    `json:"storage_path"`
	URL          string    `json:"url"`
	SizeBytes    int64     `json:"size_bytes"`
	UploadedAt   time.Time `json:"uploaded_at"`
}

type MessageKind string

const (
	KindChat              MessageKind = "chat"
	KindAssistantResponse MessageKind = "assistant-response"
	KindInfo              MessageKind = "info"
)

type ChatMessage struct {
	ID                   string      `json:"id"`
	AuthorID             string      `json:"author_id"`
	DisplayName          string      `json:"display_name"`
	Body                 string      `json:"body"`
	Timestamp            time.Time   `json:"timestamp"`
	Kind                 MessageKind `json:"kind"`
	RelatedParticipantID string      `json:"related_participant_id,omitempty"`
}

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type ConversationTurn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// RoomSnapshot 是新连接加入时收到的房间状态。
type RoomSnapshot struct {
	Room           string  `json:"room"`
	Videos         []Video `json:"videos"`
	CurrentVideoID *string `json:"current_video_id"`
}

type HandRaised struct {
	ParticipantID string    `json:"participant_id"`
	DisplayName   string    `json:"display_name"`
	Raised        bool      `json:"raised"`
	Screenshot    string    `json:"screenshot,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

type PlaybackAction string

const (
	ActionPlay  PlaybackAction = "play"
	ActionPause PlaybackAction = "pause"
	ActionSeek  PlaybackAction = "seek"
)

type PlaybackControl struct {
	Action          PlaybackAction `json:"action"`
	Reason          string         `json:"reason"`
	ByParticipantID string         `json:"by_participant_id"`
	Timestamp       time.Time      `json:"timestamp"`
}

type VideoChanged struct {
	Room    string `json:"room"`
	VideoID string `json:"video_id"`
}

// VideoControl 是参与者手动播放/暂停/跳转的转发事件。
type VideoControl struct {
	Action    PlaybackAction `json:"action"`
	Time      float64        `json:"time"`
	UserID    string         `json:"user_id"`
	Timestamp time.Time      `json:"timestamp"`
}

type Conversation struct {
	ParticipantID string             `json:"participant_id"`
	Turns         []ConversationTurn `json:"turns"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
