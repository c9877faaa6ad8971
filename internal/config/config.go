package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// DefaultRoom 是未指定房间名时使用的房间。
const DefaultRoom = "default"

type Config struct {
	Port              string
	Env               string
	PublicDir         string
	UploadPath        string
	MaxFileSize       int64
	AllowedVideoTypes []string
	StorageBackend    string
	GCSBucket         string

	AssistantProvider string
	AssistantTimeout  time.Duration
	Azure             AzureConfig
	Vertex            VertexConfig

	WSMessagesPerSecond float64
	WSBurst             int
}

type AzureConfig struct {
	APIKey         string
	Endpoint       string
	DeploymentName string
	APIVersion     string
}

// Configured 仅在三项凭据齐全时返回 true。
func (a AzureConfig) Configured() bool {
	return a.APIKey != "" && a.Endpoint != "" && a.DeploymentName != ""
}

type VertexConfig struct {
	ProjectID string
	Location  string
	Model     string
}

func (v VertexConfig) Configured() bool { return v.ProjectID != "" }

func getenv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func getenvInt(key string, def int) int {
	v, err := strconv.Atoi(getenv(key, ""))
	if err != nil || v <= 0 {
		return def
	}
	return v
}

func getenvFloat(key string, def float64) float64 {
	v, err := strconv.ParseFloat(getenv(key, ""), 64)
	if err != nil || v <= 0 {
		return def
	}
	return v
}

func Load() Config {
	maxSize, err := strconv.ParseInt(getenv("MAX_FILE_SIZE", ""), 10, 64)
	if err != nil || maxSize <= 0 {
		maxSize = 100000000
	}
	var types []string
	for _, t := range strings.Split(getenv("ALLOWED_VIDEO_TYPES", "mp4,webm,avi,mov,mkv"), ",") {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" {
			types = append(types, t)
		}
	}
	return Config{
		Port:              getenv("APP_PORT", getenv("PORT", "3000")),
		Env:               getenv("APP_ENV", "dev"),
		PublicDir:         getenv("PUBLIC_DIR", "./public"),
		UploadPath:        getenv("UPLOAD_PATH", "./uploads"),
		MaxFileSize:       maxSize,
		AllowedVideoTypes: types,
		StorageBackend:    getenv("STORAGE_BACKEND", "local"),
		GCSBucket:         getenv("GCS_BUCKET", ""),
		AssistantProvider: getenv("ASSISTANT_PROVIDER", "azure"),
		AssistantTimeout:  time.Duration(getenvInt("ASSISTANT_TIMEOUT_SECONDS", 30)) * time.Second,
		Azure: AzureConfig{
			APIKey:         getenv("AZURE_OPENAI_API_KEY", ""),
			Endpoint:       strings.TrimRight(getenv("AZURE_OPENAI_ENDPOINT", ""), "/"),
			DeploymentName: getenv("AZURE_OPENAI_DEPLOYMENT_NAME", ""),
			APIVersion:     getenv("AZURE_OPENAI_API_VERSION", "2024-08-01-preview"),
		},
		Vertex: VertexConfig{
			ProjectID: getenv("VERTEX_PROJECT_ID", ""),
			Location:  getenv("VERTEX_LOCATION", "us-central1"),
			Model:     getenv("VERTEX_MODEL", "gemini-1.5-flash"),
		},
		WSMessagesPerSecond: getenvFloat("WS_MESSAGES_PER_SECOND", 10),
		WSBurst:             getenvInt("WS_BURST", 20),
	}
}

// Validate 在启动时拒绝无法运行的配置；缺少助手凭据不算错误，只会禁用助手。
func Validate(cfg Config) error {
	if cfg.Port == "" {
		return errors.New("port is required")
	}
	if cfg.MaxFileSize <= 0 {
		return errors.New("max file size must be positive")
	}
	if len(cfg.AllowedVideoTypes) == 0 {
		return errors.New("allowed video types must not be empty")
	}
	switch cfg.StorageBackend {
	case "local":
		if cfg.UploadPath == "" {
			return errors.New("upload path is required for local storage")
		}
	case "gcs":
		if cfg.GCSBucket == "" {
			return errors.New("gcs bucket is required for gcs storage")
		}
	default:
		return errors.New("unknown storage backend: " + cfg.StorageBackend)
	}
	switch cfg.AssistantProvider {
	case "azure", "vertex":
	default:
		return errors.New("unknown assistant provider: " + cfg.AssistantProvider)
	}
	if cfg.AssistantTimeout <= 0 {
		return errors.New("assistant timeout must be positive")
	}
	return nil
}
