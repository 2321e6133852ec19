package util

import "bytes"

// CommitLogger buffers written bytes and hands them to Committer either on
// Commit or, when LineMode is set, once per complete line.
type CommitLogger struct {
	Committer func(p []byte)
	LineMode  bool
	buf       []byte
}

// Reserve grows the buffer to hold at least n bytes without reallocating,
// keeping anything not yet committed.
func (l *CommitLogger) Reserve(n int) {
	if cap(l.buf) >= n {
		return
	}

	newbuf := make([]byte, len(l.buf), n)
	copy(newbuf, l.buf)
	l.buf = newbuf
}

func (l *CommitLogger) Write(p []byte) (n int, err error) {
	l.buf = append(l.buf, p...)
	if !l.LineMode {
		return len(p), nil
	}

	// commit each complete line:
	for {
		i := bytes.IndexByte(l.buf, '\n')
		if i < 0 {
			break
		}
		if l.Committer != nil {
			l.Committer(l.buf[:i+1])
		}
		l.buf = l.buf[:copy(l.buf, l.buf[i+1:])]
	}

	return len(p), nil
}

func (l *CommitLogger) Commit() {
	if l.Committer != nil && len(l.buf) > 0 {
		l.Committer(l.buf)
	}
	l.Reset()
}

func (l *CommitLogger) Reset() {
	l.buf = l.buf[:0]
}
