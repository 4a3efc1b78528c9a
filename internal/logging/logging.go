// Package logging builds the process logger.
package logging

import (
	"io"
	"time"

	"github.com/charmbracelet/log"
)

// New returns a timestamped logger writing to w at the named level. Unknown
// levels fall back to info.
func New(level string, w io.Writer) *log.Logger {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		lvl = log.InfoLevel
	}
	return log.NewWithOptions(w, log.Options{
		Level:           lvl,
		ReportTimestamp: true,
		TimeFormat:      time.DateTime,
		Prefix:          "gemchat",
	})
}
