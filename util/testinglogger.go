package util

import (
	"log"
	"strings"
	"testing"
)

func NewTestingLogger(tb testing.TB) *CommitLogger {
	return &CommitLogger{
		Committer: func(p []byte) {
			tb.Log(strings.TrimRight(string(p), "\n"))
		},
		LineMode: true,
	}
}

// CaptureLog routes the standard logger to tb for the duration of the test.
func CaptureLog(tb testing.TB) {
	w := log.Writer()
	flags := log.Flags()
	log.SetOutput(NewTestingLogger(tb))
	log.SetFlags(0)
	tb.Cleanup(func() {
		log.SetOutput(w)
		log.SetFlags(flags)
	})
}
