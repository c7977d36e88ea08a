package logging

import (
	"fmt"
	"strings"

	"github.com/go-logr/logr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"tangled.org/atscan.net/martifact/internal/types"
)

// ====================================================================================
// ZAP
// ====================================================================================

type zapObserver struct {
	logger *zap.Logger
}

// NewZapObserver logs decoder events through zap
func NewZapObserver(l *zap.Logger) types.Observer {
	return &zapObserver{logger: l}
}

func (o *zapObserver) Observe(e types.Event) {
	fields := make([]zap.Field, 0, len(e.Fields)+1)
	if e.Section != "" {
		fields = append(fields, zap.String("section", e.Section))
	}
	for _, f := range e.Fields {
		fields = append(fields, zap.Any(f.Key, f.Value))
	}
	if ce := o.logger.Check(zapLevel(e.Level), e.Message); ce != nil {
		ce.Write(fields...)
	}
}

func zapLevel(l types.Level) zapcore.Level {
	switch l {
	case types.LevelDebug:
		return zapcore.DebugLevel
	case types.LevelWarn:
		return zapcore.WarnLevel
	case types.LevelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// ====================================================================================
// LOGR
// ====================================================================================

type logrObserver struct {
	logger logr.Logger
}

// NewLogrObserver logs decoder events through logr. Debug events go to V(1);
// warnings carry a "severity" key since logr has no warn level.
func NewLogrObserver(l logr.Logger) types.Observer {
	return &logrObserver{logger: l}
}

func (o *logrObserver) Observe(e types.Event) {
	kv := make([]interface{}, 0, 2*len(e.Fields)+4)
	if e.Section != "" {
		kv = append(kv, "section", e.Section)
	}
	for _, f := range e.Fields {
		kv = append(kv, f.Key, f.Value)
	}

	switch e.Level {
	case types.LevelDebug:
		o.logger.V(1).Info(e.Message, kv...)
	case types.LevelWarn:
		o.logger.Info(e.Message, append(kv, "severity", "warn")...)
	case types.LevelError:
		o.logger.Error(nil, e.Message, kv...)
	default:
		o.logger.Info(e.Message, kv...)
	}
}

// ====================================================================================
// PRINTF LOGGER
// ====================================================================================

type printfObserver struct {
	logger types.Logger
	min    types.Level
}

// NewPrintfObserver writes events at or above min as single lines through a
// Printf-style logger
func NewPrintfObserver(l types.Logger, min types.Level) types.Observer {
	return &printfObserver{logger: l, min: min}
}

func (o *printfObserver) Observe(e types.Event) {
	if e.Level < o.min {
		return
	}
	o.logger.Printf("%s", FormatEvent(e))
}

// FormatEvent renders an event as "[level] section: message key=value ..."
func FormatEvent(e types.Event) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] ", e.Level)
	if e.Section != "" {
		sb.WriteString(e.Section + ": ")
	}
	sb.WriteString(e.Message)
	for _, f := range e.Fields {
		fmt.Fprintf(&sb, " %s=%v", f.Key, f.Value)
	}
	return sb.String()
}
