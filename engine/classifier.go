package engine

import (
	"context"
	"fmt"
	"log"
	"time"

	"pinshadow/bus"
	"pinshadow/metrics"
)

// CycleKind is the classifier's decode of one strobe.
type CycleKind uint8

const (
	PrimaryRead CycleKind = iota
	PrimaryWrite
	SecondaryRead
	SecondaryWrite
)

func kindOf(ch bus.Channel, dir bus.Direction) CycleKind {
	return CycleKind(uint8(ch)<<1 | uint8(dir))
}

func (k CycleKind) Channel() bus.Channel     { return bus.Channel(k >> 1) }
func (k CycleKind) Direction() bus.Direction { return bus.Direction(k & 1) }

func (k CycleKind) String() string {
	return fmt.Sprintf("%s-%s", k.Channel(), k.Direction())
}

type classifierState uint8

const (
	awaitStrobe classifierState = iota
	settling
	awaitToken
	dispatching
)

// classifier watches the strobe and sends exactly one trigger per cycle to
// the matching channel's address capture.
type classifier struct {
	pins     bus.Pins
	settle   time.Duration
	arb      *arbiter
	channels [2]*channel
}

func (c *classifier) run(ctx context.Context) error {
	state := awaitStrobe
	var kind CycleKind
	for {
		switch state {
		case awaitStrobe:
			select {
			case <-c.pins.StrobeEdge():
				state = settling
			case <-ctx.Done():
				return nil
			}

		case settling:
			if c.settle > 0 {
				t := time.NewTimer(c.settle)
				select {
				case <-t.C:
				case <-ctx.Done():
					t.Stop()
					return nil
				}
			}
			if !c.pins.StrobeAsserted() {
				metrics.BusGlitches.Inc()
				state = awaitStrobe
				break
			}
			state = awaitToken

		case awaitToken:
			if !c.arb.acquire(ctx) {
				return nil
			}
			dir := bus.Write
			if c.pins.ReadCycle() {
				dir = bus.Read
			}
			ch := bus.Primary
			if c.pins.SecondarySelected() {
				ch = bus.Secondary
			}
			kind = kindOf(ch, dir)
			state = dispatching

		case dispatching:
			target := c.channels[kind.Channel()]
			if target == nil {
				log.Printf("engine: %s cycle with no channel wired; ignored\n", kind)
				c.arb.abandon()
				state = awaitStrobe
				break
			}
			metrics.BusCycles.WithLabelValues(kind.String()).Inc()
			c.arb.begin(stageFor(kind.Channel(), kind.Direction()))
			if !send(ctx, target.trigger, kind.Direction()) {
				return nil
			}
			state = awaitStrobe
		}
	}
}
