package bus

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"
)

var (
	ErrNotSelected = errors.New("bus: address outside the board's window")
	ErrNoResponse  = errors.New("bus: board did not respond within the cycle")
	ErrContention  = errors.New("bus: data lines still driven at end of cycle")
)

// Window is a range of the host address space decoded to one channel.
type Window struct {
	Start  uint16 `json:"start"`
	Length int    `json:"length"`
}

func (w Window) Contains(addr uint16) bool {
	return w.Length > 0 && int(addr) >= int(w.Start) && int(addr) < int(w.Start)+w.Length
}

type HostConfig struct {
	Geometry          Geometry
	SecondaryGeometry Geometry
	Windows           [2]Window

	// Budget is how long the host waits for the board at each handshake.
	// Real hardware gives a fraction of a microsecond; this only bounds how
	// long a test waits before declaring the board silent.
	Budget time.Duration
}

// Host simulates the host CPU driving its memory bus. Cycles are strictly
// serialized, as on the real machine.
type Host struct {
	cfg HostConfig

	cycleMu sync.Mutex

	edge      chan struct{}
	strobe    atomic.Bool
	read      atomic.Bool
	secondary atomic.Bool
	hi        atomic.Uint32
	lo        atomic.Uint32
	data      atomic.Uint32
	driven    atomic.Uint32
	dirs      atomic.Uint32

	stuck atomic.Bool
	noise atomic.Bool

	phaseMu sync.Mutex
	phase   Phase
	phaseCh [numPhases]chan struct{}

	drivenCh   chan struct{}
	releasedCh chan struct{}
	sampledCh  chan struct{}
}

func NewHost(cfg HostConfig) *Host {
	if cfg.Budget <= 0 {
		cfg.Budget = 250 * time.Millisecond
	}
	h := &Host{
		cfg:        cfg,
		edge:       make(chan struct{}, 1),
		drivenCh:   make(chan struct{}, 1),
		releasedCh: make(chan struct{}, 1),
		sampledCh:  make(chan struct{}, 1),
	}
	h.resetPhases()
	h.closeAllPhases()
	return h
}

func (h *Host) Config() HostConfig { return h.cfg }

// SetStuck holds the strobe asserted after the next cycle, as a shorted
// select line would.
func (h *Host) SetStuck(stuck bool) {
	h.stuck.Store(stuck)
	if !stuck {
		h.strobe.Store(false)
	}
}

// SetNoise makes RawAddress return contention garbage.
func (h *Host) SetNoise(noise bool) { h.noise.Store(noise) }

// Glitch pulses an edge notification without holding the strobe, which
// the classifier's settle re-check must reject.
func (h *Host) Glitch() {
	h.signal(h.edge)
}

func (h *Host) signal(c chan struct{}) {
	select {
	case c <- struct{}{}:
	default:
	}
}

func drain(c chan struct{}) {
	select {
	case <-c:
	default:
	}
}

func (h *Host) resetPhases() {
	h.phaseMu.Lock()
	defer h.phaseMu.Unlock()
	h.phase = PhaseIdle
	for i := range h.phaseCh {
		h.phaseCh[i] = make(chan struct{})
	}
	close(h.phaseCh[PhaseIdle])
}

func (h *Host) advance(p Phase) {
	h.phaseMu.Lock()
	defer h.phaseMu.Unlock()
	for q := h.phase + 1; q <= p; q++ {
		close(h.phaseCh[q])
	}
	if p > h.phase {
		h.phase = p
	}
}

func (h *Host) closeAllPhases() {
	h.advance(numPhases - 1)
}

func (h *Host) window(ch Channel) (Window, Geometry) {
	if ch == Secondary {
		return h.cfg.Windows[Secondary], h.cfg.SecondaryGeometry
	}
	return h.cfg.Windows[Primary], h.cfg.Geometry
}

// Do runs one bus cycle and returns the byte the host sampled on reads.
func (h *Host) Do(ctx context.Context, c Cycle) (data byte, err error) {
	win, geom := h.window(c.Channel)
	if !win.Contains(c.Address) {
		// nobody answers; the data bus floats high:
		return 0xFF, ErrNotSelected
	}

	h.cycleMu.Lock()
	defer h.cycleMu.Unlock()

	hi, lo := geom.Split(c.Address - win.Start)

	drain(h.drivenCh)
	drain(h.releasedCh)
	drain(h.sampledCh)
	h.resetPhases()
	defer h.endCycle()

	h.read.Store(c.Direction == Read)
	h.secondary.Store(c.Channel == Secondary)
	h.hi.Store(uint32(hi))
	h.lo.Store(uint32(lo))
	if c.Direction == Write {
		h.data.Store(uint32(c.Data))
	}

	h.advance(PhaseAddrHigh)
	if !h.strobe.Swap(true) {
		h.signal(h.edge)
	}
	h.advance(PhaseAddrLow)
	h.advance(PhaseDataValid)

	if c.Direction == Write {
		// hold data until the board has latched it:
		if err = h.await(ctx, h.sampledCh); err != nil {
			return
		}
		h.advance(PhaseSampled)
		return c.Data, nil
	}

	if err = h.await(ctx, h.drivenCh); err != nil {
		return
	}
	data = h.sample()
	h.advance(PhaseSampled)

	if err = h.await(ctx, h.releasedCh); err != nil {
		err = fmt.Errorf("%w: direction %#02x", ErrContention, h.dirs.Load())
		return
	}
	return
}

func (h *Host) await(ctx context.Context, c <-chan struct{}) error {
	t := time.NewTimer(h.cfg.Budget)
	defer t.Stop()
	select {
	case <-c:
		return nil
	case <-t.C:
		return ErrNoResponse
	case <-ctx.Done():
		return ctx.Err()
	}
}

// sample reads the data lines the way the host would: undriven lines float
// high.
func (h *Host) sample() byte {
	dirs := byte(h.dirs.Load())
	return byte(h.driven.Load())&dirs | ^dirs
}

func (h *Host) endCycle() {
	h.closeAllPhases()
	if !h.stuck.Load() {
		h.strobe.Store(false)
	}
}

// Read and Write are conveniences over Do.
func (h *Host) Read(ctx context.Context, ch Channel, addr uint16) (byte, error) {
	return h.Do(ctx, Cycle{Address: addr, Direction: Read, Channel: ch})
}

func (h *Host) Write(ctx context.Context, ch Channel, addr uint16, v byte) error {
	_, err := h.Do(ctx, Cycle{Address: addr, Direction: Write, Data: v, Channel: ch})
	return err
}

func (h *Host) StrobeEdge() <-chan struct{} { return h.edge }
func (h *Host) StrobeAsserted() bool        { return h.strobe.Load() }
func (h *Host) ReadCycle() bool             { return h.read.Load() }
func (h *Host) SecondarySelected() bool     { return h.secondary.Load() }

func (h *Host) WaitPhase(ctx context.Context, p Phase) error {
	if p >= numPhases {
		return fmt.Errorf("bus: no such phase %v", p)
	}
	h.phaseMu.Lock()
	c := h.phaseCh[p]
	h.phaseMu.Unlock()

	select {
	case <-c:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Host) AddressLines(p Phase) uint16 {
	switch p {
	case PhaseAddrHigh:
		return uint16(h.hi.Load())
	case PhaseAddrLow:
		return uint16(h.lo.Load())
	default:
		return 0
	}
}

func (h *Host) RawAddress() uint16 {
	if h.noise.Load() {
		return uint16(rand.Uint32())
	}
	geom := h.cfg.Geometry
	return geom.Join(uint16(h.hi.Load()), uint16(h.lo.Load()))
}

func (h *Host) DataLines() byte {
	v := byte(h.data.Load())
	h.signal(h.sampledCh)
	return v
}

func (h *Host) DriveData(v byte) {
	h.driven.Store(uint32(v))
}

func (h *Host) SetDataDirection(pattern byte) {
	old := byte(h.dirs.Swap(uint32(pattern)))
	if pattern != 0 {
		h.signal(h.drivenCh)
	} else if old != 0 {
		h.signal(h.releasedCh)
	}
}
