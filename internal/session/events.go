package session

type EventType string

const (
	EventRoomState           EventType = "room_state"
	EventUserList            EventType = "user_list"
	EventNewMessage          EventType = "new_message"
	EventHandRaised          EventType = "hand_raised"
	EventPlaybackControl     EventType = "playback_control"
	EventVideoChanged        EventType = "video_changed"
	EventVideoAdded          EventType = "video_added"
	EventVideoControl        EventType = "video_control"
	EventConversation        EventType = "conversation"
	EventConversationCleared EventType = "conversation_cleared"
	EventError               EventType = "error"
)

const (
	ReasonHandRaised  = "hand_raised"
	ReasonHandLowered = "hand_lowered"
)

// Event 是下发给客户端的统一信封，Data 在投递后不得再被修改。
type Event struct {
	Type EventType `json:"type"`
	Data any       `json:"data"`
}

// Sink 代表一个连接的出站队列。Send 在房间锁内调用，必须非阻塞。
type Sink interface {
	Send(Event)
}

// Inbound 是客户端上行消息，字段按 Type 取用。
type Inbound struct {
	Type       string  `json:"type"`
	Message    string  `json:"message"`
	Screenshot string  `json:"screenshot"`
	VideoID    string  `json:"video_id"`
	Action     string  `json:"action"`
	Time       float64 `json:"time"`
}

const (
	InChatMessage       = "chat_message"
	InRaiseHand         = "raise_hand"
	InSelectVideo       = "select_video"
	InAssistantMessage  = "assistant_message"
	InClearConversation = "clear_conversation"
	InGetConversation   = "get_conversation"
	InVideoControl      = "video_control"
)
