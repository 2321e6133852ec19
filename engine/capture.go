package engine

import (
	"context"

	"pinshadow/bus"
)

// capture reassembles the window offset from the two multiplexed address
// phases, adds the preloaded base and routes the local address down the
// read or write chain.
func (c *channel) capture(ctx context.Context) error {
	for {
		dir, ok := recv(ctx, c.trigger)
		if !ok {
			return nil
		}

		if c.pins.WaitPhase(ctx, bus.PhaseAddrHigh) != nil {
			return nil
		}
		hi := c.pins.AddressLines(bus.PhaseAddrHigh)
		if c.pins.WaitPhase(ctx, bus.PhaseAddrLow) != nil {
			return nil
		}
		lo := c.pins.AddressLines(bus.PhaseAddrLow)

		addr := c.base + uint32(c.geom.Join(hi, lo))

		q := c.lookupQ
		if dir == bus.Write {
			q = c.writeQ
		}
		if !send(ctx, q, addr) {
			return nil
		}
	}
}
