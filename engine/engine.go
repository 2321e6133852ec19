// Package engine is the bus-shadowing engine: a fixed network of
// single-purpose sequencers and self-retriggering movers that classifies
// every host bus cycle aimed at the board and keeps the shadow regions
// byte-accurate without any software in the loop.
//
// Topology, per channel:
//
//	classifier -> capture -> lookup mover -> responder -> direction mover
//	                      -> write capturer -> store mover
//
// Every queue holds one value. The classifier holds the arbiter token from
// dispatch until the terminal mover of the chain returns it, so at most one
// cycle is ever in flight across both channels.
package engine

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"pinshadow/bus"
	"pinshadow/interfaces"
	"pinshadow/shadow"
)

// BusEngine is all the rest of the system knows about the engine.
type BusEngine interface {
	Arm(ctx context.Context) error
	Reset() error
}

type Config struct {
	Geometry          bus.Geometry
	SecondaryGeometry bus.Geometry
	Patterns          DirectionPatterns
	// Settle is the delay before the classifier re-checks the strobe.
	Settle    time.Duration
	Allocator Allocator
}

type Engine struct {
	interfaces.ObserverList

	pins      bus.Pins
	cfg       Config
	primary   *shadow.Region
	secondary *shadow.Region

	mu      sync.Mutex
	armed   bool
	arb     *arbiter
	claimed resourceSet
	writers []*shadow.Writer
	cancel  context.CancelFunc
	group   *errgroup.Group
}

var _ BusEngine = (*Engine)(nil)

// New builds an unarmed engine. secondary may be nil for boards without a
// secondary register window.
func New(pins bus.Pins, primary, secondary *shadow.Region, cfg Config) *Engine {
	if cfg.Allocator == nil {
		cfg.Allocator = NewPool(DefaultSequencers, DefaultMovers)
	}
	if cfg.Patterns == (DirectionPatterns{}) {
		cfg.Patterns = DefaultPatterns
	}
	return &Engine{
		pins:      pins,
		cfg:       cfg,
		primary:   primary,
		secondary: secondary,
	}
}

func (e *Engine) validate() error {
	if e.cfg.Patterns.Out == e.cfg.Patterns.In {
		return fmt.Errorf("direction patterns are identical (%#02x)", e.cfg.Patterns.Out)
	}
	if err := e.cfg.Geometry.Validate(); err != nil {
		return err
	}
	if e.cfg.Geometry.Size() > e.primary.Len() {
		return fmt.Errorf("primary window %d bytes exceeds region %d bytes", e.cfg.Geometry.Size(), e.primary.Len())
	}
	if e.secondary != nil {
		if err := e.cfg.SecondaryGeometry.Validate(); err != nil {
			return err
		}
		if e.cfg.SecondaryGeometry.Size() > e.secondary.Len() {
			return fmt.Errorf("secondary window %d bytes exceeds region %d bytes", e.cfg.SecondaryGeometry.Size(), e.secondary.Len())
		}
	}
	return nil
}

// Arm claims the fixed resource set, takes write ownership of the regions
// and starts every sequencer and mover. Either the whole topology runs or
// nothing does. ctx only bounds arming; once armed the engine runs until
// Reset.
func (e *Engine) Arm(ctx context.Context) (err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.armed {
		return ErrArmed
	}
	if err = ctx.Err(); err != nil {
		return
	}
	if err = e.validate(); err != nil {
		return &EngineFault{Stage: "config", Err: err}
	}

	want := plan(e.secondary != nil)
	var got resourceSet
	if got, err = claim(e.cfg.Allocator, want); err != nil {
		return
	}

	writers := make([]*shadow.Writer, 0, 2)
	releaseWriters := func() {
		for _, w := range writers {
			w.Release()
		}
	}
	for _, r := range []*shadow.Region{e.primary, e.secondary} {
		if r == nil {
			continue
		}
		var w *shadow.Writer
		if w, err = r.Arm(); err != nil {
			releaseWriters()
			releaseAll(e.cfg.Allocator, got)
			return &EngineFault{Stage: "take region", Err: err}
		}
		writers = append(writers, w)
	}

	arb := newArbiter(&e.ObserverList)
	cl := &classifier{pins: e.pins, settle: e.cfg.Settle, arb: arb}
	cl.channels[bus.Primary] = newChannel(bus.Primary, e.pins, e.cfg.Geometry, writers[0], e.cfg.Patterns, arb)
	if e.secondary != nil {
		cl.channels[bus.Secondary] = newChannel(bus.Secondary, e.pins, e.cfg.SecondaryGeometry, writers[1], e.cfg.Patterns, arb)
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	group, gctx := errgroup.WithContext(runCtx)

	group.Go(func() error { return cl.run(gctx) })
	for i, ch := range cl.channels {
		if ch == nil {
			continue
		}
		for _, r := range ch.sequencers() {
			r := r
			group.Go(func() error { return r(gctx) })
		}
		for _, r := range ch.movers(got.movers[i*3 : i*3+3]) {
			r := r
			group.Go(func() error { return r(gctx) })
		}
	}

	e.arb = arb
	e.claimed = got
	e.writers = writers
	e.cancel = cancel
	e.group = group
	e.armed = true

	log.Printf("engine: armed: sequencers %v movers %v\n", got.sequencers, got.movers)
	return nil
}

// Reset is the full hardware reset: it is the only way to stop the engine.
// The regions become writable by software again afterwards.
func (e *Engine) Reset() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.armed {
		return ErrNotArmed
	}
	e.cancel()
	err := e.group.Wait()

	for _, w := range e.writers {
		w.Release()
	}
	releaseAll(e.cfg.Allocator, e.claimed)

	e.armed = false
	e.arb = nil
	e.writers = nil
	e.claimed = resourceSet{}
	log.Printf("engine: reset\n")
	return err
}

func (e *Engine) IsArmed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.armed
}

// WaitIdle blocks until no cycle is in flight. Used by tests and the
// harness to observe the region after a host cycle returns.
func (e *Engine) WaitIdle(ctx context.Context) error {
	e.mu.Lock()
	arb := e.arb
	e.mu.Unlock()
	if arb == nil {
		return ErrNotArmed
	}
	if !arb.acquire(ctx) {
		return ctx.Err()
	}
	arb.abandon()
	return nil
}

// PeakConcurrency is the largest number of stages ever active at once.
func (e *Engine) PeakConcurrency() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.arb == nil {
		return 0
	}
	return int(e.arb.peak.Load())
}
