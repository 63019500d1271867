package logger

import (
	"context"
	"io"
	"os"
	"time"

	"splitpay/internal/config"

	"github.com/rs/zerolog"
)

type ctxKey struct{}

// New 根据配置创建结构化日志；console=true 时输出人类可读格式
func New(cfg config.LogConfig) zerolog.Logger {
	var out io.Writer = os.Stdout
	if cfg.Console {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}
	return NewWithWriter(out, cfg.Level)
}

// NewWithWriter 自定义输出，测试中可传入 bytes.Buffer
func NewWithWriter(w io.Writer, level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger()
}

// WithContext 把 logger 放进 context
func WithContext(ctx context.Context, log zerolog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, log)
}

// FromContext 取出 context 中的 logger，没有则返回 Nop
func FromContext(ctx context.Context) zerolog.Logger {
	if log, ok := ctx.Value(ctxKey{}).(zerolog.Logger); ok {
		return log
	}
	return zerolog.Nop()
}
