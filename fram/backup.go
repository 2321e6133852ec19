package fram

import (
	"pinshadow/metrics"
	"pinshadow/shadow"
)

// Backup is the continuous backup loop's state: one rotating cursor over
// the region. Each Tick advances the cursor one chunk and persists the chunk
// it lands on, so any byte is at most one full sweep stale in FRAM.
type Backup struct {
	dev    *Device
	region *shadow.Region
	cursor int
	sweeps int
	buf    [ChunkSize]byte
}

func NewBackup(dev *Device, region *shadow.Region) *Backup {
	return &Backup{dev: dev, region: region}
}

// Name makes Backup a sched.Task.
func (b *Backup) Name() string { return "backup" }

func (b *Backup) Cursor() int { return b.cursor }
func (b *Backup) Sweeps() int { return b.sweeps }

// TicksPerSweep is ceil(len/ChunkSize).
func (b *Backup) TicksPerSweep() int {
	return (b.region.Len() + ChunkSize - 1) / ChunkSize
}

// Tick advances the cursor by one chunk, wrapping to zero past the end of
// the region, and persists the chunk it now points at. A sweep completes
// when the cursor is back at zero. A failed write is not retried; the next
// sweep covers the chunk.
func (b *Backup) Tick() error {
	b.cursor += ChunkSize
	if b.cursor >= b.region.Len() {
		b.cursor = 0
		b.sweeps++
		metrics.BackupSweeps.WithLabelValues("tick").Inc()
	}

	off := b.cursor
	n := b.region.Snapshot(off, b.buf[:])
	err := b.dev.Write(b.dev.layout.ShadowBase+uint16(off), b.buf[:n])
	if err == nil {
		metrics.BackupChunks.Inc()
	}
	return err
}
