package engine

import (
	"context"
	"log"
	"sync/atomic"

	"pinshadow/bus"
	"pinshadow/interfaces"
)

// Stage names the downstream unit that owns the bus for one cycle.
type Stage string

const (
	StageReadResponder    Stage = "read-responder"
	StageWriteCapturer    Stage = "write-capturer"
	StageSecondaryChannel Stage = "secondary-channel"
)

// StageEvent is sent to observers when a stage takes or gives up the bus.
type StageEvent struct {
	Stage  Stage
	Active bool
}

// arbiter holds the single token that makes cycles mutually exclusive: the
// classifier takes it before dispatching and the last mover of the chain
// hands it back.
type arbiter struct {
	token     chan struct{}
	current   atomic.Value // Stage
	active    atomic.Int32
	peak      atomic.Int32
	observers *interfaces.ObserverList
}

func newArbiter(observers *interfaces.ObserverList) *arbiter {
	a := &arbiter{
		token:     make(chan struct{}, 1),
		observers: observers,
	}
	a.token <- struct{}{}
	return a
}

func (a *arbiter) acquire(ctx context.Context) bool {
	select {
	case <-a.token:
		return true
	case <-ctx.Done():
		return false
	}
}

func (a *arbiter) begin(stage Stage) {
	a.current.Store(stage)
	n := a.active.Add(1)
	for {
		p := a.peak.Load()
		if n <= p || a.peak.CompareAndSwap(p, n) {
			break
		}
	}
	a.observers.Notify(StageEvent{Stage: stage, Active: true})
}

// finish ends the current stage and returns the token.
func (a *arbiter) finish() {
	stage, _ := a.current.Load().(Stage)
	a.active.Add(-1)
	a.observers.Notify(StageEvent{Stage: stage, Active: false})
	select {
	case a.token <- struct{}{}:
	default:
		log.Printf("engine: arbiter token returned twice by %s\n", stage)
	}
}

// abandon returns the token without a stage having begun.
func (a *arbiter) abandon() {
	select {
	case a.token <- struct{}{}:
	default:
	}
}

func stageFor(ch bus.Channel, dir bus.Direction) Stage {
	switch {
	case ch == bus.Secondary:
		return StageSecondaryChannel
	case dir == bus.Write:
		return StageWriteCapturer
	default:
		return StageReadResponder
	}
}
