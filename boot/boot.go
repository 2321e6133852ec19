// Package boot brings the board up: probe the host bus, restore the shadow
// image from FRAM, repair the host's checksum, seed the clock registers and
// finally arm the bus engine. Only a failed probe or a failed arm is fatal.
package boot

import (
	"context"
	"errors"
	"fmt"
	"log"

	"pinshadow/bus"
	"pinshadow/engine"
	"pinshadow/fram"
	"pinshadow/metrics"
	"pinshadow/rtc"
	"pinshadow/shadow"
)

// Sequencer holds everything boot touches. Device, Checksum, Clock and
// Secondary are optional.
type Sequencer struct {
	Pins      bus.Pins
	Device    *fram.Device
	Primary   *shadow.Region
	Secondary *shadow.Region
	Checksum  *shadow.Checksum
	Clock     *rtc.Clock
	Engine    engine.BusEngine
	Probe     engine.ProbeConfig
	Indicator Indicator

	// Offline restores and repairs but leaves the engine unarmed, so the
	// image can be inspected and edited over the debug listener.
	Offline bool
}

type Report struct {
	Transitions int
	RestoreErr  error
	Repaired    bool
	Stored      uint16
	Computed    uint16
	SeedErr     error
	Armed       bool
}

func (s *Sequencer) fatal(f Fault, err error) error {
	metrics.Faults.WithLabelValues(f.String()).Inc()
	if s.Indicator != nil {
		s.Indicator.Latch(f)
	}
	return err
}

func (s *Sequencer) Boot(ctx context.Context) (rep Report, err error) {
	log.Printf("boot: probing bus activity\n")
	rep.Transitions, err = engine.ProbeActivity(ctx, s.Pins, s.Probe)
	if err != nil {
		if errors.Is(err, engine.ErrBusContention) {
			log.Printf("boot: %v\n", err)
			return rep, s.fatal(FaultBusContention, err)
		}
		return rep, fmt.Errorf("boot: probe: %w", err)
	}
	log.Printf("boot: probe saw %d address-line transitions\n", rep.Transitions)

	if s.Device != nil {
		if err = s.Device.Init(); err != nil {
			log.Printf("boot: fram init: %v\n", err)
		}
		rep.RestoreErr = s.Device.Restore(s.Primary)
		if rep.RestoreErr != nil {
			log.Printf("boot: restore incomplete; continuing\n")
		} else {
			log.Printf("boot: restored %d bytes\n", s.Primary.Len())
		}
	}

	if s.Checksum != nil {
		rep.Repaired, rep.Stored, rep.Computed, err = s.Checksum.Repair(s.Primary)
		switch {
		case err != nil:
			log.Printf("boot: checksum: %v\n", err)
		case rep.Repaired:
			metrics.ChecksumRepairs.Inc()
			log.Printf("boot: checksum field was %#04x, rewrote %#04x\n", rep.Stored, rep.Computed)
		}
	}

	if s.Clock != nil && s.Secondary != nil {
		if rep.SeedErr = s.Clock.Seed(s.Secondary); rep.SeedErr != nil {
			log.Printf("boot: %v\n", rep.SeedErr)
		}
	}

	if s.Offline {
		log.Printf("boot: offline; engine left unarmed\n")
		return rep, nil
	}

	if err = s.Engine.Arm(ctx); err != nil {
		log.Printf("boot: %v\n", err)
		var fault *engine.EngineFault
		if errors.As(err, &fault) {
			return rep, s.fatal(FaultEngineArm, err)
		}
		return rep, fmt.Errorf("boot: arm: %w", err)
	}
	rep.Armed = true
	log.Printf("boot: engine armed\n")
	return rep, nil
}
