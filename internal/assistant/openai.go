package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"watchparty/internal/models"
)

// OpenAI 调用兼容 OpenAI Chat Completions 协议的服务（默认按 Azure OpenAI 部署地址拼接）。
type OpenAI struct {
	httpClient *http.Client
	endpoint   string
	apiKey     string
	model      string
}

// NewAzureOpenAI 返回指向 {endpoint}/openai/deployments/{deployment} 的客户端；凭据不全时 Configured 为 false。
func NewAzureOpenAI(httpClient *http.Client, endpoint, deployment, apiVersion, apiKey string) *OpenAI {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	u := ""
	if endpoint != "" && deployment != "" {
		u = fmt.Sprintf("%s/openai/deployments/%s/chat/completions?api-version=%s",
			strings.TrimRight(endpoint, "/"), url.PathEscape(deployment), url.QueryEscape(apiVersion))
	}
	return &OpenAI{httpClient: httpClient, endpoint: u, apiKey: apiKey, model: deployment}
}

func (o *OpenAI) Configured() bool { return o.endpoint != "" && o.apiKey != "" }

type openaiContentPart struct {
	Type     string          `json:"type"`
	Text     string          `json:"text,omitempty"`
	ImageURL *openaiImageURL `json:"image_url,omitempty"`
}

type openaiImageURL struct {
	URL string `json:"url"`
}

type openaiMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type openaiRequest struct {
	Model       string          `json:"model,omitempty"`
	Messages    []openaiMessage `json:"messages"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Temperature float64         `json:"temperature"`
}

type openaiResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (o *OpenAI) buildRequest(req Request) (openaiRequest, error) {
	wire := openaiRequest{Model: o.model, MaxTokens: req.MaxTokens, Temperature: 0.7}
	if req.System != "" {
		wire.Messages = append(wire.Messages, openaiMessage{Role: "system", Content: req.System})
	}
	for _, t := range req.History {
		role := "user"
		if t.Role == models.RoleAssistant {
			role = "assistant"
		}
		wire.Messages = append(wire.Messages, openaiMessage{Role: role, Content: t.Content})
	}
	if req.Image == "" {
		wire.Messages = append(wire.Messages, openaiMessage{Role: "user", Content: req.Text})
		return wire, nil
	}
	dataURL, err := DataURL(req.Image)
	if err != nil {
		return openaiRequest{}, err
	}
	wire.Messages = append(wire.Messages, openaiMessage{Role: "user", Content: []openaiContentPart{
		{Type: "text", Text: req.Text},
		{Type: "image_url", ImageURL: &openaiImageURL{URL: dataURL}},
	}})
	return wire, nil
}

func (o *OpenAI) Complete(ctx context.Context, req Request) (string, error) {
	if !o.Configured() {
		return "", ErrUnavailable
	}
	wire, err := o.buildRequest(req)
	if err != nil {
		return "", fmt.Errorf("assistant/openai: %w", err)
	}
	body, err := json.Marshal(wire)
	if err != nil {
		return "", fmt.Errorf("assistant/openai: encode request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("assistant/openai: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("api-key", o.apiKey)

	resp, err := o.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("assistant/openai: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("assistant/openai: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: status %d: %s", ErrUpstream, resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	var out openaiResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", ErrUpstream, err)
	}
	if out.Error != nil {
		return "", fmt.Errorf("%w: %s", ErrUpstream, out.Error.Message)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices", ErrUpstream)
	}
	return strings.TrimSpace(out.Choices[0].Message.Content), nil
}
