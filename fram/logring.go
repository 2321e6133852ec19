package fram

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sync"

	"pinshadow/metrics"
)

// header holds the big-endian offset of the next byte to write:
const logHeaderSize = 2

// LogRing is the rotating diagnostic log kept in FRAM. Oldest text is
// overwritten first. Append never logs, so it can sit behind the process
// logger.
type LogRing struct {
	mu   sync.Mutex
	dev  *Device
	base uint16
	size int
	head int
}

// OpenLogRing loads the ring's head pointer from the device.
func OpenLogRing(dev *Device) (*LogRing, error) {
	l := dev.layout
	if l.LogLength <= logHeaderSize {
		return nil, fmt.Errorf("fram: layout has no log area")
	}
	r := &LogRing{
		dev:  dev,
		base: l.LogBase,
		size: l.LogLength - logHeaderSize,
	}

	hdr, err := dev.Read(r.base, logHeaderSize)
	if err != nil {
		return nil, err
	}
	r.head = int(binary.BigEndian.Uint16(hdr))
	if r.head >= r.size {
		// never initialized or corrupted; start over:
		r.head = 0
	}
	return r, nil
}

// Size is the ring's text capacity in bytes.
func (r *LogRing) Size() int { return r.size }

func (r *LogRing) dataAddr(off int) uint16 {
	return r.base + logHeaderSize + uint16(off)
}

func (r *LogRing) Append(p []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(p) > r.size {
		p = p[len(p)-r.size:]
	}
	for len(p) > 0 {
		n := min(len(p), r.size-r.head)
		if err := r.dev.Write(r.dataAddr(r.head), p[:n]); err != nil {
			return err
		}
		r.head = (r.head + n) % r.size
		p = p[n:]
	}

	var hdr [logHeaderSize]byte
	binary.BigEndian.PutUint16(hdr[:], uint16(r.head))
	return r.dev.Write(r.base, hdr[:])
}

// Commit is an Append that drops its error, for use as a
// util.CommitLogger Committer.
func (r *LogRing) Commit(p []byte) {
	if err := r.Append(p); err != nil {
		metrics.TransportErrors.WithLabelValues("log").Inc()
	}
}

// Contents returns the ring oldest-first, without never-written space.
func (r *LogRing) Contents() ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	data, err := r.dev.Read(r.dataAddr(0), r.size)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, r.size)
	out = append(out, data[r.head:]...)
	out = append(out, data[:r.head]...)
	return bytes.TrimLeft(out, "\x00"), nil
}
