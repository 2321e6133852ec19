// Package shadow holds the live mirror of the host machine's working RAM.
//
// A Region has exactly one writer: the bus engine, which obtains the
// exclusive *Writer from Arm. Everything else (the backup loop, score
// tracking, the debug surface) only reads. There is no lock. Every access is
// a single-byte atomic operation, so a reader may observe a value that is
// one host write behind but never a value that was not written to that
// address. Readers that need a coherent image must take it again later;
// the backup sweep relies on exactly that.
package shadow

import (
	"errors"
	"fmt"
	"sync/atomic"
)

var (
	ErrArmed          = errors.New("shadow: region is armed; software writes are not allowed")
	ErrAlreadyArmed   = errors.New("shadow: region is already armed")
	ErrImportTooLarge = errors.New("shadow: import is larger than the region")
	ErrImportValue    = errors.New("shadow: import value out of byte range")
)

type Option func(r *Region)

// WithActivity enables the per-address write counters.
func WithActivity() Option {
	return func(r *Region) {
		r.activity = make([]atomic.Uint32, r.length)
	}
}

type Region struct {
	base   uint32
	length int

	// four bytes per word, little-endian lanes:
	words []atomic.Uint32

	activity []atomic.Uint32

	armed atomic.Bool
}

func New(base uint32, length int, opts ...Option) *Region {
	if length <= 0 {
		panic("shadow: region length must be positive")
	}
	r := &Region{
		base:   base,
		length: length,
		words:  make([]atomic.Uint32, (length+3)/4),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Region) Base() uint32 { return r.base }
func (r *Region) Len() int     { return r.length }

func (r *Region) IsArmed() bool { return r.armed.Load() }

func (r *Region) check(i int) {
	if i < 0 || i >= r.length {
		panic(fmt.Sprintf("shadow: offset %d out of range [0, %d)", i, r.length))
	}
}

// Load returns the byte at offset i. The value may be superseded by the host
// at any instant after it is returned.
func (r *Region) Load(i int) byte {
	r.check(i)
	return byte(r.words[i>>2].Load() >> ((i & 3) << 3))
}

// Snapshot copies bytes starting at off into dst and returns the count
// copied. Bytes are read one at a time; a concurrent host write may land
// before or after any given byte.
func (r *Region) Snapshot(off int, dst []byte) int {
	if off < 0 || off >= r.length {
		return 0
	}
	n := len(dst)
	if n > r.length-off {
		n = r.length - off
	}
	for j := 0; j < n; j++ {
		dst[j] = r.Load(off + j)
	}
	return n
}

func (r *Region) store(i int, v byte) {
	r.check(i)
	w := &r.words[i>>2]
	shift := (i & 3) << 3
	mask := uint32(0xFF) << shift
	for {
		old := w.Load()
		nw := (old &^ mask) | uint32(v)<<shift
		if w.CompareAndSwap(old, nw) {
			return
		}
	}
}

// Restore writes src at off. Only valid before Arm; this is how the boot
// restore pass and the consistency repair populate the region.
func (r *Region) Restore(off int, src []byte) error {
	if r.armed.Load() {
		return ErrArmed
	}
	if off < 0 || off+len(src) > r.length {
		return fmt.Errorf("shadow: restore [%d, %d) out of range [0, %d)", off, off+len(src), r.length)
	}
	for j, v := range src {
		r.store(off+j, v)
	}
	return nil
}

// Export returns the full image as an integer array for offline tooling.
func (r *Region) Export() []int {
	out := make([]int, r.length)
	for i := range out {
		out[i] = int(r.Load(i))
	}
	return out
}

// Import copies src over the first len(src) bytes. An import longer than the
// region or holding a value outside 0..255 is rejected with nothing changed.
func (r *Region) Import(src []int) error {
	if r.armed.Load() {
		return ErrArmed
	}
	if len(src) > r.length {
		return fmt.Errorf("%w: %d > %d", ErrImportTooLarge, len(src), r.length)
	}
	for i, v := range src {
		if v < 0 || v > 0xFF {
			return fmt.Errorf("%w: [%d] = %d", ErrImportValue, i, v)
		}
	}
	for i, v := range src {
		r.store(i, byte(v))
	}
	return nil
}

// Activity returns the write count for offset i, or 0 when counters are off.
func (r *Region) Activity(i int) uint32 {
	if r.activity == nil {
		return 0
	}
	r.check(i)
	return r.activity[i].Load()
}

// ActivityCounts copies all write counters; nil when counters are off.
func (r *Region) ActivityCounts() []uint32 {
	if r.activity == nil {
		return nil
	}
	out := make([]uint32, r.length)
	for i := range out {
		out[i] = r.activity[i].Load()
	}
	return out
}

// Arm hands the exclusive writer to the bus engine. From here on software
// writes fail with ErrArmed until the writer is released.
func (r *Region) Arm() (*Writer, error) {
	if !r.armed.CompareAndSwap(false, true) {
		return nil, ErrAlreadyArmed
	}
	return &Writer{r: r}, nil
}

// Writer is the single designated writer of a Region.
type Writer struct {
	r *Region
}

func (w *Writer) Region() *Region { return w.r }

func (w *Writer) Store(i int, v byte) {
	w.r.store(i, v)
	if w.r.activity != nil {
		w.r.activity[i].Add(1)
	}
}

// Release gives up write ownership; used when the engine is reset.
func (w *Writer) Release() {
	w.r.armed.Store(false)
}
