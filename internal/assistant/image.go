package assistant

import (
	"encoding/base64"
	"errors"
	"strings"
)

var ErrInvalidImage = errors.New("invalid image payload")

// ParseImage 解析客户端截图：data:image/...;base64,xxx 或裸 base64（按 png 处理）。
func ParseImage(s string) (mime string, data []byte, err error) {
	mime = "image/png"
	payload := s
	if strings.HasPrefix(s, "data:") {
		head, body, ok := strings.Cut(s[len("data:"):], ",")
		if !ok || !strings.HasSuffix(head, ";base64") {
			return "", nil, ErrInvalidImage
		}
		mime = strings.TrimSuffix(head, ";base64")
		if !strings.HasPrefix(mime, "image/") {
			return "", nil, ErrInvalidImage
		}
		payload = body
	}
	data, err = base64.StdEncoding.DecodeString(payload)
	if err != nil || len(data) == 0 {
		return "", nil, ErrInvalidImage
	}
	return mime, data, nil
}

// DataURL 把截图统一成 data URL，供 OpenAI 兼容接口的 image_url 使用。
func DataURL(s string) (string, error) {
	mime, data, err := ParseImage(s)
	if err != nil {
		return "", err
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}
