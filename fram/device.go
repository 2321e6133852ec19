package fram

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"pinshadow/metrics"
	"pinshadow/shadow"
)

// Device is the FRAM behind a Transport. Exchanges are serialized; Device
// itself never logs while holding the transport so that it can also carry
// the diagnostic log.
type Device struct {
	mu     sync.Mutex
	t      Transport
	layout Layout
}

func NewDevice(t Transport, layout Layout) *Device {
	return &Device{t: t, layout: layout}
}

func (d *Device) Layout() Layout { return d.layout }

func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.t.Close()
}

func (d *Device) run(seq CommandSequence) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return seq.Execute(d.t)
}

func checkRange(addr uint16, n int) error {
	if int(addr)+n > 0x10000 {
		return fmt.Errorf("%w: $%04x+%d", ErrAddressRange, addr, n)
	}
	return nil
}

// Read returns n bytes at addr. On a failed exchange it returns the bytes
// the chip did send, if any, along with the error.
func (d *Device) Read(addr uint16, n int) ([]byte, error) {
	if err := checkRange(addr, n); err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	if err := d.run(MakeReadCommands(addr, buf)); err != nil {
		metrics.TransportErrors.WithLabelValues("read").Inc()
		return buf[:min(Received(err), n)], err
	}
	return buf, nil
}

func (d *Device) Write(addr uint16, data []byte) error {
	if err := checkRange(addr, len(data)); err != nil {
		return err
	}
	if err := d.run(MakeWriteCommands(addr, data)); err != nil {
		metrics.TransportErrors.WithLabelValues("write").Inc()
		return err
	}
	return nil
}

func (d *Device) ReadStatus() (status byte, err error) {
	err = d.run(CommandSequence{&readStatusCommand{value: &status}})
	if err != nil {
		metrics.TransportErrors.WithLabelValues("status").Inc()
	}
	return
}

func (d *Device) WriteStatus(status byte) error {
	err := d.run(CommandSequence{&simpleCommand{op: OpWREN}, &writeStatusCommand{value: status}})
	if err != nil {
		metrics.TransportErrors.WithLabelValues("status").Inc()
	}
	return err
}

func (d *Device) WriteDisable() error {
	return d.run(CommandSequence{&simpleCommand{op: OpWRDI}})
}

// Init clears any block protection so the whole array is writable.
func (d *Device) Init() error {
	status, err := d.ReadStatus()
	if err != nil {
		return err
	}
	if status&(StatusBP0|StatusBP1|StatusWPEN) == 0 {
		return nil
	}
	log.Printf("fram: clearing block protection (status %#02x)\n", status)
	return d.WriteStatus(0)
}

// Restore reads the persisted image into region in ChunkSize strides. It is
// best-effort: a failed stride is logged, whatever part of it the chip
// returned is still restored, the rest keeps what the region held, and
// restore moves on. The returned error joins every stride failure.
func (d *Device) Restore(region *shadow.Region) error {
	start := time.Now()
	defer func() { metrics.RestoreDuration.Observe(time.Since(start).Seconds()) }()

	var errs []error
	for off := 0; off < region.Len(); off += ChunkSize {
		n := min(ChunkSize, region.Len()-off)
		addr := d.layout.ShadowBase + uint16(off)
		buf, err := d.Read(addr, n)
		if err != nil {
			log.Printf("fram: restore $%04x: %d of %d bytes: %v\n", addr, len(buf), n, err)
			errs = append(errs, err)
		}
		if len(buf) == 0 {
			continue
		}
		if err = region.Restore(off, buf); err != nil {
			return err
		}
	}
	if len(errs) > 0 {
		log.Printf("fram: restore finished with %d failed strides\n", len(errs))
	}
	return errors.Join(errs...)
}

// WriteAllNow persists the whole region in one synchronous sweep. The caller
// must not run it concurrently with a backup tick.
func (d *Device) WriteAllNow(region *shadow.Region) error {
	img := make([]byte, region.Len())
	region.Snapshot(0, img)
	if err := d.Write(d.layout.ShadowBase, img); err != nil {
		return err
	}
	metrics.BackupSweeps.WithLabelValues("now").Inc()
	return nil
}
