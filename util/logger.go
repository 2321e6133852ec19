package util

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"time"
)

type PanicSafeLogger struct {
	f  *os.File
	mw io.Writer
}

var std *PanicSafeLogger

func NewPanicSafeLogger(f *os.File, extra ...io.Writer) *PanicSafeLogger {
	writers := make([]io.Writer, 0, len(extra)+2)
	writers = append(writers, f, os.Stderr)
	writers = append(writers, extra...)
	std = &PanicSafeLogger{
		f:  f,
		mw: io.MultiWriter(writers...),
	}
	return std
}

func (l *PanicSafeLogger) Write(p []byte) (n int, err error) {
	return l.mw.Write(p)
}

func (l *PanicSafeLogger) Flush() error {
	return l.f.Sync()
}

func FlushLogger() error {
	if std == nil {
		return nil
	}
	return std.Flush()
}

func LogPanic(err any) {
	log.Printf("paniced with %v\n%s\n", err, string(debug.Stack()))
	_ = FlushLogger()
}

// CreateLogFile opens a fresh timestamped log file in the temp directory.
func CreateLogFile(prefix string) (f *os.File, path string, err error) {
	ts := time.Now().UTC().Format("2006-01-02T15:04:05.000Z")
	ts = strings.ReplaceAll(ts, ":", "-")
	ts = strings.ReplaceAll(ts, ".", "-")
	path = filepath.Join(os.TempDir(), fmt.Sprintf("%s-%s.log", prefix, ts))
	f, err = os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0644)
	return
}
