package ws

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"
	"unicode/utf8"

	"watchparty/internal/config"
	"watchparty/internal/metrics"
	"watchparty/internal/session"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second

	// 截图以 base64 随 raise_hand / assistant_message 上行。
	maxMessageSize = 8 << 20
	sendBuffer     = 256
)

// Client 是一个 websocket 连接，同时实现 session.Sink。
type Client struct {
	id      string
	room    *session.Room
	conn    *websocket.Conn
	send    chan session.Event
	done    chan struct{}
	once    sync.Once
	limiter *rate.Limiter
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func newClient(id string, room *session.Room, conn *websocket.Conn, limiter *rate.Limiter) *Client {
	return &Client{
		id:      id,
		room:    room,
		conn:    conn,
		send:    make(chan session.Event, sendBuffer),
		done:    make(chan struct{}),
		limiter: limiter,
	}
}

// Send 在房间锁内被调用，不能阻塞；慢客户端的缓冲区满时直接断开。
func (c *Client) Send(evt session.Event) {
	select {
	case <-c.done:
	case c.send <- evt:
	default:
		log.Warn().Str("participant_id", c.id).Msg("send buffer full, closing connection")
		c.close()
	}
}

func (c *Client) close() {
	c.once.Do(func() { close(c.done) })
}

// Close 由房间在停服时调用，writePump 发送关闭帧后断开连接。
func (c *Client) Close() { c.close() }

func validRoomName(name string) bool {
	return name != "" && utf8.RuneCountInString(name) <= 64
}

// Serve 升级 HTTP 连接并把它挂到 room 查询参数指定的房间（默认 default）。
func Serve(h *Hub, cfg config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		roomName := c.DefaultQuery("room", config.DefaultRoom)
		if !validRoomName(roomName) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid room"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			return
		}
		rh := h.GetRoom(roomName)
		id := uuid.NewString()
		client := newClient(id, rh, conn, rate.NewLimiter(rate.Limit(cfg.WSMessagesPerSecond), cfg.WSBurst))

		// Join 会立即向 client.send 写入快照，writePump 启动前由缓冲区承接。
		if _, err := rh.Join(id, client); err != nil {
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "session error"),
				time.Now().Add(writeWait))
			_ = conn.Close()
			return
		}
		metrics.WsConnections.Inc()

		go client.writePump()
		client.readPump()
	}
}

func (c *Client) readPump() {
	defer func() {
		c.room.Leave(c.id)
		c.close()
		_ = c.conn.Close()
		metrics.WsConnections.Dec()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Str("participant_id", c.id).Msg("ws read")
			}
			return
		}
		if !c.limiter.Allow() {
			c.room.Reject(c.id, session.ErrRateLimited)
			continue
		}
		var in session.Inbound
		if err := json.Unmarshal(data, &in); err != nil {
			c.room.Reject(c.id, fmt.Errorf("%w: invalid json", session.ErrValidation))
			continue
		}
		if err := c.room.Dispatch(c.id, in); err != nil {
			log.Debug().Err(err).Str("room", c.room.Name()).Str("participant_id", c.id).Str("type", in.Type).Msg("inbound rejected")
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case evt := <-c.send:
			b, err := json.Marshal(evt)
			if err != nil {
				log.Error().Err(err).Str("type", string(evt.Type)).Msg("encode event")
				continue
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
				c.close()
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		}
	}
}
