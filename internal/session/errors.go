package session

import (
	"errors"

	"watchparty/internal/assistant"
)

// 会话层错误，Dispatch 会把它们以 error 事件私发给请求方。
var (
	ErrValidation = errors.New("validation error")
	ErrNotFound   = errors.New("not found")
	ErrInvariant  = errors.New("invariant violation")

	// ErrRateLimited 由传输层在入站速率超限时使用。
	ErrRateLimited = errors.New("too many messages")
	ErrClosed      = errors.New("room closed")
)

// ErrorCode 把错误映射成下发给客户端的 code。
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvariant):
		return "invariant"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, assistant.ErrUnavailable):
		return "service_unavailable"
	case errors.Is(err, assistant.ErrTimeout):
		return "timeout"
	default:
		return "internal"
	}
}
