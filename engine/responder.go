package engine

import (
	"context"

	"pinshadow/bus"
)

// respond drives the looked-up byte for exactly the host's sample window:
// data first, then the Out direction pattern, and the In pattern once the
// sample edge has passed.
func (c *channel) respond(ctx context.Context) error {
	for {
		v, ok := recv(ctx, c.dataOutQ)
		if !ok {
			return nil
		}
		if c.pins.WaitPhase(ctx, bus.PhaseDataValid) != nil {
			return nil
		}
		c.pins.DriveData(v)
		if !send(ctx, c.dirQ, dirOp{pattern: c.patterns.Out}) {
			return nil
		}
		if c.pins.WaitPhase(ctx, bus.PhaseSampled) != nil {
			return nil
		}
		if !send(ctx, c.dirQ, dirOp{pattern: c.patterns.In, last: true}) {
			return nil
		}
	}
}
