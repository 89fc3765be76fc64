package loggingx

import (
	"fmt"

	"github.com/dogmatiq/dodeca/logging"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Zap is an implementation of logging.Logger that writes to a zap logger.
//
// Regular messages are written at the info level, debug messages at the debug
// level.
type Zap struct {
	Target *zap.Logger
}

var _ logging.Logger = (*Zap)(nil)

// Log writes an application log message formatted according to a format
// specifier.
func (z *Zap) Log(f string, v ...interface{}) {
	z.Target.Info(fmt.Sprintf(f, v...))
}

// LogString writes a pre-formatted application log message.
func (z *Zap) LogString(s string) {
	z.Target.Info(s)
}

// Debug writes a debug log message formatted according to a format specifier.
func (z *Zap) Debug(f string, v ...interface{}) {
	if z.IsDebug() {
		z.Target.Debug(fmt.Sprintf(f, v...))
	}
}

// DebugString writes a pre-formatted debug log message.
func (z *Zap) DebugString(s string) {
	z.Target.Debug(s)
}

// IsDebug returns true if the zap logger has the debug level enabled.
func (z *Zap) IsDebug() bool {
	return z.Target.Core().Enabled(zapcore.DebugLevel)
}
