package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"watchparty/internal/assistant"
	"watchparty/internal/config"
	"watchparty/internal/session"
	"watchparty/internal/upload"
	"watchparty/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// multipart 头部和其他字段的余量。
const multipartOverhead = 1 << 20

// Handler 聚合所有 HTTP handler，视频相关接口都作用于默认房间。
type Handler struct {
	hub      *ws.Hub
	gw       assistant.Gateway
	uploader *upload.Uploader
	timeout  time.Duration
	maxBody  int64
}

func NewHandler(hub *ws.Hub, gw assistant.Gateway, uploader *upload.Uploader, cfg config.Config) *Handler {
	if gw == nil {
		gw = assistant.Unavailable{}
	}
	return &Handler{
		hub:      hub,
		gw:       gw,
		uploader: uploader,
		timeout:  cfg.AssistantTimeout,
		maxBody:  cfg.MaxFileSize + multipartOverhead,
	}
}

func (h *Handler) defaultRoom() *session.Room {
	return h.hub.GetRoom(config.DefaultRoom)
}

// Upload 接收 multipart 字段 video，存储后追加到默认房间的视频目录。
func (h *Handler) Upload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBody)
	fh, err := c.FormFile("video")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			err = upload.ErrTooLarge
		} else {
			err = upload.ErrNoFile
		}
		c.JSON(uploadStatus(err), gin.H{"error": err.Error()})
		return
	}
	video, err := h.uploader.Store(c.Request.Context(), fh)
	if err != nil {
		if upload.IsValidation(err) {
			c.JSON(uploadStatus(err), gin.H{"error": err.Error()})
			return
		}
		log.Error().Err(err).Str("filename", fh.Filename).Msg("upload")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "upload failed"})
		return
	}
	stored := h.defaultRoom().AddVideo(video)
	c.JSON(http.StatusOK, gin.H{"success": true, "video": stored, "message": "Video uploaded successfully"})
}

func uploadStatus(err error) int {
	switch {
	case errors.Is(err, upload.ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, upload.ErrInvalidType):
		return http.StatusUnsupportedMediaType
	default:
		return http.StatusBadRequest
	}
}

func (h *Handler) ListVideos(c *gin.Context) {
	c.JSON(http.StatusOK, h.defaultRoom().Videos())
}

// SetCurrentVideo 切换默认房间的当前视频，并向房间广播 video_changed。
func (h *Handler) SetCurrentVideo(c *gin.Context) {
	var req struct {
		VideoID string `json:"videoId"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.VideoID) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "videoId is required"})
		return
	}
	if err := h.defaultRoom().SelectVideo("", req.VideoID); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "video not found"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "currentVideo": req.VideoID})
}

// AIChat 是无状态的单次助手调用，不读写任何对话历史。
func (h *Handler) AIChat(c *gin.Context) {
	var req struct {
		Message    string `json:"message"`
		Screenshot string `json:"screenshot"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Message) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Message is required"})
		return
	}
	if req.Screenshot != "" {
		if _, _, err := assistant.ParseImage(req.Screenshot); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	text, err := assistant.Call(c.Request.Context(), h.gw, h.timeout, assistant.Request{
		System:    assistant.SystemVideoChat,
		Text:      assistant.QuestionPrompt(strings.TrimSpace(req.Message), req.Screenshot != ""),
		Image:     req.Screenshot,
		MaxTokens: assistant.ChatMaxTokens,
	})
	if err != nil {
		switch assistant.Classify(err) {
		case assistant.ErrUnavailable:
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "AI service not configured"})
		case assistant.ErrTimeout:
			c.JSON(http.StatusGatewayTimeout, gin.H{"error": "AI service timed out"})
		default:
			log.Warn().Err(err).Msg("ai chat")
			c.JSON(http.StatusBadGateway, gin.H{"error": "AI chat failed"})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "response": text, "timestamp": time.Now()})
}
