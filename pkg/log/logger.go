package log

import (
	"context"
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"

	scierrors "github.com/YuminosukeSato/textclf/pkg/errors"
)

// zerologLogger は Logger インターフェースを zerolog で実装したものです。
type zerologLogger struct {
	zl zerolog.Logger
}

// NewZerologLogger は w に書き出す zerolog ベースの Logger を作成します。
// pretty が true の場合はコンソール向けの整形出力になります。
func NewZerologLogger(w io.Writer, level Level, pretty bool) Logger {
	if pretty {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	zl := zerolog.New(w).Level(toZerologLevel(level)).With().Timestamp().Logger()
	return &zerologLogger{zl: zl}
}

func (l *zerologLogger) Debug(msg string, fields ...any) {
	emit(l.zl.Debug(), msg, fields)
}

func (l *zerologLogger) Info(msg string, fields ...any) {
	emit(l.zl.Info(), msg, fields)
}

func (l *zerologLogger) Warn(msg string, fields ...any) {
	emit(l.zl.Warn(), msg, fields)
}

func (l *zerologLogger) Error(msg string, fields ...any) {
	emit(l.zl.Error(), msg, fields)
}

func (l *zerologLogger) With(fields ...any) Logger {
	return &zerologLogger{zl: l.zl.With().Fields(normalizeFields(fields)).Logger()}
}

func (l *zerologLogger) Enabled(_ context.Context, level Level) bool {
	return toZerologLevel(level) >= l.zl.GetLevel()
}

func toZerologLevel(level Level) zerolog.Level {
	switch {
	case level <= LevelDebug:
		return zerolog.DebugLevel
	case level <= LevelInfo:
		return zerolog.InfoLevel
	case level <= LevelWarn:
		return zerolog.WarnLevel
	default:
		return zerolog.ErrorLevel
	}
}

// Provider はプロセス全体で共有されるロガーを管理します。
type Provider struct {
	mu     sync.RWMutex
	w      io.Writer
	pretty bool
	level  Level
	root   Logger
}

// NewProvider は w に書き出す Provider を作成します。
func NewProvider(w io.Writer, level Level, pretty bool) *Provider {
	return &Provider{
		w:      w,
		pretty: pretty,
		level:  level,
		root:   NewZerologLogger(w, level, pretty),
	}
}

// GetLogger implements LoggerProvider.
func (p *Provider) GetLogger() Logger {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.root
}

// GetLoggerWithName implements LoggerProvider.
func (p *Provider) GetLoggerWithName(name string) Logger {
	return p.GetLogger().With(ComponentKey, name)
}

// SetLevel implements LoggerProvider. Loggers obtained earlier keep their level.
func (p *Provider) SetLevel(level Level) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.level = level
	p.root = NewZerologLogger(p.w, level, p.pretty)
}

var (
	globalMu       sync.RWMutex
	globalProvider LoggerProvider = NewProvider(os.Stderr, LevelInfo, false)
)

// SetupLogger はグローバルロガーを標準エラー出力向けに初期化し、
// pkg/errors の警告を構造化ログへ流すように設定します。
func SetupLogger(level string, pretty bool) error {
	lvl, err := ParseLevel(level)
	if err != nil {
		return scierrors.NewValidationError("log_level", "must be one of debug, info, warn, error", level)
	}
	SetProvider(NewProvider(os.Stderr, lvl, pretty))
	return nil
}

// SetProvider はグローバルな LoggerProvider を差し替えます。
// テストでは NewTestLoggerProvider と組み合わせて使います。
func SetProvider(p LoggerProvider) {
	globalMu.Lock()
	globalProvider = p
	globalMu.Unlock()

	warnLogger := p.GetLoggerWithName("warnings")
	scierrors.SetZerologWarnFunc(func(w error) {
		warnLogger.Warn(w.Error(), WarningKey, w)
	})
}

// GetLogger returns the global default logger.
func GetLogger() Logger {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalProvider.GetLogger()
}

// GetLoggerWithName returns the global logger tagged with a component name.
func GetLoggerWithName(name string) Logger {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalProvider.GetLoggerWithName(name)
}

// SetLevel changes the level of the global provider.
func SetLevel(level Level) {
	globalMu.RLock()
	defer globalMu.RUnlock()
	globalProvider.SetLevel(level)
}

// Nop returns a Logger that discards everything.
func Nop() Logger {
	return &zerologLogger{zl: zerolog.Nop()}
}
