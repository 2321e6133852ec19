package engine

import (
	"context"

	"pinshadow/bus"
)

// captureWrite latches host data once it is valid and hands it to the store
// mover. There is no acknowledgement; the host has already moved on.
func (c *channel) captureWrite(ctx context.Context) error {
	for {
		addr, ok := recv(ctx, c.writeQ)
		if !ok {
			return nil
		}
		if c.pins.WaitPhase(ctx, bus.PhaseDataValid) != nil {
			return nil
		}
		v := c.pins.DataLines()
		if !send(ctx, c.storeQ, storeOp{addr: addr, data: v}) {
			return nil
		}
	}
}
