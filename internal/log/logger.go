package log

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Init 设置全局 logger：dev 环境输出彩色控制台格式并打开 debug，其余环境输出 JSON。
func Init(env string) {
	initTo(os.Stdout, env)
}

func initTo(w io.Writer, env string) {
	zerolog.TimeFieldFormat = time.RFC3339
	if env == "dev" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		cw := zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
		log.Logger = zerolog.New(cw).With().Timestamp().Str("service", "watchparty").Logger()
		return
	}
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	log.Logger = zerolog.New(w).With().Timestamp().Str("service", "watchparty").Logger()
}
