package engine

import (
	"context"
	"fmt"
	"math/bits"
	"time"

	"pinshadow/bus"
)

type ProbeConfig struct {
	Samples  int
	Interval time.Duration
	// MaxTransitions is the most address-line bit flips accepted over the
	// whole window before the bus is declared in contention.
	MaxTransitions int
}

var DefaultProbe = ProbeConfig{
	Samples:        1024,
	Interval:       time.Microsecond,
	MaxTransitions: 1024 * 4,
}

// ProbeActivity samples the raw address lines over a fixed window and counts
// bit transitions. A live host walks addresses in small steps; a count
// approaching random flipping of every line means another driver is
// fighting the bus. It must run before Arm.
func ProbeActivity(ctx context.Context, pins bus.Pins, cfg ProbeConfig) (transitions int, err error) {
	if cfg.Samples <= 0 {
		cfg = DefaultProbe
	}

	prev := pins.RawAddress()
	for i := 1; i < cfg.Samples; i++ {
		if cfg.Interval > 0 {
			select {
			case <-time.After(cfg.Interval):
			case <-ctx.Done():
				return transitions, ctx.Err()
			}
		}
		cur := pins.RawAddress()
		transitions += bits.OnesCount16(prev ^ cur)
		prev = cur
	}

	if transitions > cfg.MaxTransitions {
		err = fmt.Errorf("%w: %d transitions in %d samples (max %d)", ErrBusContention, transitions, cfg.Samples, cfg.MaxTransitions)
	}
	return
}
