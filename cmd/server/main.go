package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"watchparty/internal/assistant"
	"watchparty/internal/config"
	clog "watchparty/internal/log"
	"watchparty/internal/server"
	"watchparty/internal/session"
	"watchparty/internal/upload"
	"watchparty/internal/ws"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

func main() {
	// main 函数负责加载配置、初始化日志、构建助手网关与上传存储，并启动 Gin 服务。
	_ = godotenv.Load()
	cfg := config.Load()
	clog.Init(cfg.Env)
	if err := config.Validate(cfg); err != nil {
		log.Fatal().Err(err).Msg("config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	gw := assistant.New(ctx, cfg)
	if c, ok := gw.(io.Closer); ok {
		defer c.Close()
	}
	uploader, err := upload.New(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("upload storage")
	}
	defer uploader.Close()

	hub := ws.NewHub(session.Options{
		Gateway:          gw,
		AssistantTimeout: cfg.AssistantTimeout,
		HistoryTurns:     session.DefaultHistoryTurns,
	})
	r := server.SetupRouter(cfg, hub, server.NewHandler(hub, gw, uploader, cfg))

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: r, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		log.Info().Str("addr", srv.Addr).Bool("assistant", gw.Configured()).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server run")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown")
	}
	// 已升级的 websocket 连接不受 Shutdown 管理：先关闭房间停止派发，再等待助手请求收尾。
	hub.Close()
	hub.Wait()
}
