// Package logger 是全局日志门面：slog 文本输出，printf 风格接口。
// 决策循环的日志走这里，gin 的访问日志由 transport 层自理。
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
)

var (
	level slog.LevelVar
	root  atomic.Pointer[slog.Logger]
)

func init() {
	level.Set(slog.LevelInfo)
	root.Store(newLogger(os.Stdout))
}

func newLogger(w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stdout
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: &level}))
}

// SetOutput 重定向日志输出（main 里接 stdout+文件的 MultiWriter）。
func SetOutput(w io.Writer) {
	root.Store(newLogger(w))
}

// SetLevel 按配置字符串调整级别，未识别的值回落到 info。
func SetLevel(name string) {
	level.Set(parseLevel(name))
}

func parseLevel(name string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func logf(lv slog.Level, format string, v ...any) {
	l := root.Load()
	ctx := context.Background()
	if l == nil || !l.Enabled(ctx, lv) {
		return
	}
	l.Log(ctx, lv, fmt.Sprintf(format, v...))
}

func Debugf(format string, v ...any) { logf(slog.LevelDebug, format, v...) }

func Infof(format string, v ...any) { logf(slog.LevelInfo, format, v...) }

func Warnf(format string, v ...any) { logf(slog.LevelWarn, format, v...) }

func Errorf(format string, v ...any) { logf(slog.LevelError, format, v...) }
