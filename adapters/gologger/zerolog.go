package gologger

import (
	"context"
	"io"
	"os"
	"strings"

	glog "github.com/goliatone/go-logger/glog"
	"github.com/rs/zerolog"
)

const consoleTimeFormat = "2006-01-02T15:04:05.000Z07:00"

type ZerologOptions struct {
	Level  string
	Format string
	Output io.Writer
}

// ZerologLogger adapts a zerolog.Logger to glog.Logger. Variadic args are
// read as alternating key/value pairs.
type ZerologLogger struct {
	base zerolog.Logger
}

func NewZerologLogger(opts ZerologOptions) *ZerologLogger {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	var writer io.Writer = out
	if strings.EqualFold(strings.TrimSpace(opts.Format), "console") {
		writer = zerolog.ConsoleWriter{Out: out, TimeFormat: consoleTimeFormat}
	}
	base := zerolog.New(writer).
		Level(ParseLevel(opts.Level)).
		With().
		Timestamp().
		Logger()
	return &ZerologLogger{base: base}
}

// NewZerologLoggerFrom wraps an existing zerolog logger.
func NewZerologLoggerFrom(base zerolog.Logger) *ZerologLogger {
	return &ZerologLogger{base: base}
}

func ParseLevel(level string) zerolog.Level {
	parsed, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || parsed == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return parsed
}

func (l *ZerologLogger) Trace(msg string, args ...any) { l.log(zerolog.TraceLevel, msg, args) }
func (l *ZerologLogger) Debug(msg string, args ...any) { l.log(zerolog.DebugLevel, msg, args) }
func (l *ZerologLogger) Info(msg string, args ...any)  { l.log(zerolog.InfoLevel, msg, args) }
func (l *ZerologLogger) Warn(msg string, args ...any)  { l.log(zerolog.WarnLevel, msg, args) }
func (l *ZerologLogger) Error(msg string, args ...any) { l.log(zerolog.ErrorLevel, msg, args) }

// Fatal writes at fatal level without exiting; shutdown belongs to the caller.
func (l *ZerologLogger) Fatal(msg string, args ...any) { l.log(zerolog.FatalLevel, msg, args) }

func (l *ZerologLogger) WithContext(context.Context) glog.Logger {
	return l
}

func (l *ZerologLogger) WithFields(fields map[string]any) glog.Logger {
	if l == nil || len(fields) == 0 {
		return l
	}
	return &ZerologLogger{base: l.base.With().Fields(fields).Logger()}
}

// Named returns a child logger tagged with a logger=name field.
func (l *ZerologLogger) Named(name string) *ZerologLogger {
	if l == nil {
		return nil
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return l
	}
	return &ZerologLogger{base: l.base.With().Str("logger", name).Logger()}
}

func (l *ZerologLogger) log(level zerolog.Level, msg string, args []any) {
	if l == nil {
		return
	}
	event := l.base.WithLevel(level)
	if event == nil {
		return
	}
	if len(args) > 0 {
		event = event.Fields(normalizeArgs(args))
	}
	event.Msg(msg)
}

// normalizeArgs pairs args as key/value. A trailing value without a key is
// kept under "extra".
func normalizeArgs(args []any) []any {
	out := make([]any, 0, len(args)+1)
	for i := 0; i < len(args); i += 2 {
		if i+1 >= len(args) {
			out = append(out, "extra", args[i])
			break
		}
		key, ok := args[i].(string)
		if !ok {
			out = append(out, "extra", args[i])
			i--
			continue
		}
		out = append(out, key, args[i+1])
	}
	return out
}

// ZerologProvider hands out named children of one root logger.
type ZerologProvider struct {
	root *ZerologLogger
}

func NewZerologProvider(root *ZerologLogger) *ZerologProvider {
	if root == nil {
		root = NewZerologLoggerFrom(zerolog.Nop())
	}
	return &ZerologProvider{root: root}
}

func (p *ZerologProvider) GetLogger(name string) glog.Logger {
	if p == nil || p.root == nil {
		return glog.Nop()
	}
	return p.root.Named(name)
}

var (
	_ glog.Logger         = (*ZerologLogger)(nil)
	_ glog.FieldsLogger   = (*ZerologLogger)(nil)
	_ glog.LoggerProvider = (*ZerologProvider)(nil)
)
