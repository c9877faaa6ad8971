package assistant

import (
	"context"
	"fmt"
	"strings"

	vertexgenai "cloud.google.com/go/vertexai/genai"

	"watchparty/internal/models"
)

type VertexGemini struct {
	client    *vertexgenai.Client
	modelName string
}

func NewVertexGemini(ctx context.Context, projectID, location, modelName string) (*VertexGemini, error) {
	c, err := vertexgenai.NewClient(ctx, projectID, location)
	if err != nil {
		return nil, err
	}
	if modelName == "" {
		modelName = "gemini-1.5-flash"
	}
	return &VertexGemini{client: c, modelName: modelName}, nil
}

func (v *VertexGemini) Close() error { return v.client.Close() }

func (v *VertexGemini) Configured() bool { return v.client != nil }

// Complete 每次请求新建 GenerativeModel，避免并发请求共享生成参数。
func (v *VertexGemini) Complete(ctx context.Context, req Request) (string, error) {
	if !v.Configured() {
		return "", ErrUnavailable
	}
	m := v.client.GenerativeModel(v.modelName)
	m.SetTemperature(0.7)
	if req.MaxTokens > 0 {
		m.SetMaxOutputTokens(int32(req.MaxTokens))
	}
	if req.System != "" {
		m.SystemInstruction = &vertexgenai.Content{Parts: []vertexgenai.Part{vertexgenai.Text(req.System)}}
	}

	cs := m.StartChat()
	for _, t := range req.History {
		role := "user"
		if t.Role == models.RoleAssistant {
			role = "model"
		}
		cs.History = append(cs.History, &vertexgenai.Content{Role: role, Parts: []vertexgenai.Part{vertexgenai.Text(t.Content)}})
	}

	parts := []vertexgenai.Part{vertexgenai.Text(req.Text)}
	if req.Image != "" {
		mime, data, err := ParseImage(req.Image)
		if err != nil {
			return "", fmt.Errorf("assistant/vertex: %w", err)
		}
		parts = append(parts, vertexgenai.ImageData(strings.TrimPrefix(mime, "image/"), data))
	}

	resp, err := cs.SendMessage(ctx, parts...)
	if err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("assistant/vertex: %w", ctx.Err())
		}
		return "", fmt.Errorf("%w: %v", ErrUpstream, err)
	}

	var sb strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if t, ok := part.(vertexgenai.Text); ok {
				sb.WriteString(string(t))
			}
		}
		break
	}
	return strings.TrimSpace(sb.String()), nil
}
