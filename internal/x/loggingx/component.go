package loggingx

import (
	"strings"

	"github.com/dogmatiq/dodeca/logging"
)

// Component is an implementation of logging.Logger that labels each message
// with the name of the journal component that produced it, such as "store"
// or "replay".
//
// Messages are written to Target as "<name>: <message>". If Target is nil,
// logging.DefaultLogger is used.
type Component struct {
	Target logging.Logger
	Name   string
}

var _ logging.Logger = (*Component)(nil)

// Log writes an application log message formatted according to a format
// specifier.
func (c *Component) Log(f string, v ...interface{}) {
	c.target().Log(c.format()+f, v...)
}

// LogString writes a pre-formatted application log message.
func (c *Component) LogString(s string) {
	c.target().LogString(c.label() + s)
}

// Debug writes a debug log message formatted according to a format specifier.
func (c *Component) Debug(f string, v ...interface{}) {
	c.target().Debug(c.format()+f, v...)
}

// DebugString writes a pre-formatted debug log message.
func (c *Component) DebugString(s string) {
	c.target().DebugString(c.label() + s)
}

// IsDebug returns true if the target logger writes debug messages.
func (c *Component) IsDebug() bool {
	return c.target().IsDebug()
}

func (c *Component) target() logging.Logger {
	if c.Target == nil {
		return logging.DefaultLogger
	}
	return c.Target
}

// label is the text prepended to pre-formatted messages.
func (c *Component) label() string {
	return c.Name + ": "
}

// format is the label escaped for use within a format specifier.
func (c *Component) format() string {
	return strings.ReplaceAll(c.label(), "%", "%%")
}
