package assistant

import (
	"context"
	"errors"
	"fmt"
	"time"

	"watchparty/internal/metrics"
	"watchparty/internal/models"
)

// 网关错误分类：调用方只需区分这三类。
var (
	ErrUnavailable = errors.New("assistant unavailable")
	ErrTimeout     = errors.New("assistant timeout")
	ErrUpstream    = errors.New("assistant upstream error")
)

// Request 是一次无状态的多模态补全请求。
type Request struct {
	System    string
	History   []models.ConversationTurn
	Text      string
	Image     string // data URL 或裸 base64，可为空
	MaxTokens int
}

// Gateway 是外部多模态补全服务的适配层。
type Gateway interface {
	Complete(ctx context.Context, req Request) (string, error)
	// Configured 为 false 时 Complete 必须同步返回 ErrUnavailable。
	Configured() bool
}

// Classify 把任意网关错误归入 ErrUnavailable / ErrTimeout / ErrUpstream。
func Classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrUnavailable):
		return ErrUnavailable
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return ErrTimeout
	default:
		return ErrUpstream
	}
}

func outcome(err error) string {
	switch Classify(err) {
	case nil:
		return "ok"
	case ErrUnavailable:
		return "unavailable"
	case ErrTimeout:
		return "timeout"
	default:
		return "upstream"
	}
}

// Call 在 timeout 约束下调用网关，返回的错误已归类并保留原始原因。
func Call(ctx context.Context, gw Gateway, timeout time.Duration, req Request) (string, error) {
	if gw == nil || !gw.Configured() {
		metrics.AssistantRequestsTotal.WithLabelValues("unavailable").Inc()
		return "", ErrUnavailable
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	text, err := complete(ctx, gw, req)
	if err == nil && text == "" {
		err = errors.New("empty completion")
	}
	metrics.AssistantLatency.Observe(time.Since(start).Seconds())
	metrics.AssistantRequestsTotal.WithLabelValues(outcome(err)).Inc()
	if err != nil {
		if kind := Classify(err); !errors.Is(err, kind) {
			return "", errors.Join(kind, err)
		}
		return "", err
	}
	return text, nil
}

type result struct {
	text string
	err  error
}

// complete 不依赖网关自身遵守 ctx：到期即返回，迟到的结果被丢进缓冲通道后回收。
func complete(ctx context.Context, gw Gateway, req Request) (string, error) {
	done := make(chan result, 1)
	go func() {
		text, err := gw.Complete(ctx, req)
		done <- result{text, err}
	}()
	select {
	case r := <-done:
		return r.text, r.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("%w: %w", ErrTimeout, ctx.Err())
		}
		return "", ctx.Err()
	}
}

// Unavailable 在未配置凭据时使用，从不发起网络请求。
type Unavailable struct{}

func (Unavailable) Complete(context.Context, Request) (string, error) { return "", ErrUnavailable }

func (Unavailable) Configured() bool { return false }
