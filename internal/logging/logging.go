// Package logging sets up the sidecar's process-wide logger: the standard
// library log package with a rotating file sink, since a long-lived
// background process fills a log file eventually.
package logging

import (
	"io"
	"log"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

// New builds a *log.Logger that writes to stderr and, when dataDir is
// non-empty, additionally to a rotated "daymon.log" inside it.
func New(dataDir string) *log.Logger {
	out := io.Writer(os.Stderr)
	if dataDir != "" {
		fileSink := &lumberjack.Logger{
			Filename:   filepath.Join(dataDir, "daymon.log"),
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
			Compress:   true,
		}
		out = io.MultiWriter(os.Stderr, fileSink)
	}
	return log.New(out, "", log.LstdFlags|log.Lmicroseconds)
}
