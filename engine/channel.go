package engine

import (
	"context"

	"pinshadow/bus"
	"pinshadow/shadow"
)

// channel is one complete address-capture / respond / capture pipeline bound
// to one region. The primary and secondary channels are identical apart
// from their region, geometry and slot numbers.
type channel struct {
	name     bus.Channel
	pins     bus.Pins
	geom     bus.Geometry
	base     uint32
	region   *shadow.Region
	writer   *shadow.Writer
	patterns DirectionPatterns
	arb      *arbiter

	// single-slot handoff queues:
	trigger  chan bus.Direction // classifier -> capture
	lookupQ  chan uint32        // capture -> lookup mover
	dataOutQ chan byte          // lookup mover -> responder
	writeQ   chan uint32        // capture -> write capturer
	storeQ   chan storeOp       // write capturer -> store mover
	dirQ     chan dirOp         // responder -> direction mover
}

func newChannel(name bus.Channel, pins bus.Pins, geom bus.Geometry, writer *shadow.Writer, patterns DirectionPatterns, arb *arbiter) *channel {
	return &channel{
		name:     name,
		pins:     pins,
		geom:     geom,
		base:     writer.Region().Base(),
		region:   writer.Region(),
		writer:   writer,
		patterns: patterns,
		arb:      arb,
		trigger:  make(chan bus.Direction, 1),
		lookupQ:  make(chan uint32, 1),
		dataOutQ: make(chan byte, 1),
		writeQ:   make(chan uint32, 1),
		storeQ:   make(chan storeOp, 1),
		dirQ:     make(chan dirOp, 1),
	}
}

type runner func(ctx context.Context) error

// sequencers returns capture, responder and capturer in slot order.
func (c *channel) sequencers() []runner {
	return []runner{c.capture, c.respond, c.captureWrite}
}

// movers returns lookup, store and direction movers in slot order.
func (c *channel) movers(ids []int) []runner {
	lookup := &mover[uint32, byte]{
		id:  ids[0],
		src: c.lookupQ,
		dst: c.dataOutQ,
		xfer: func(addr uint32) byte {
			return c.region.Load(int(addr - c.base))
		},
	}
	store := &mover[storeOp, struct{}]{
		id:  ids[1],
		src: c.storeQ,
		xfer: func(op storeOp) struct{} {
			c.writer.Store(int(op.addr-c.base), op.data)
			c.arb.finish()
			return struct{}{}
		},
	}
	direction := &mover[dirOp, struct{}]{
		id:  ids[2],
		src: c.dirQ,
		xfer: func(op dirOp) struct{} {
			c.pins.SetDataDirection(op.pattern)
			if op.last {
				c.arb.finish()
			}
			return struct{}{}
		},
	}
	return []runner{lookup.run, store.run, direction.run}
}
