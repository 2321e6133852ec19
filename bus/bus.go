// Package bus describes the host machine's memory bus as seen from the
// add-on board: the cycle-valid strobe, the direction and channel-select
// lines, the time-multiplexed address lines and the bidirectional data
// lines. The bus engine only ever talks to a Pins; Host is a simulated
// host CPU that implements Pins for off-target testing.
package bus

import (
	"context"
	"fmt"
)

type Direction uint8

const (
	Read Direction = iota
	Write
)

func (d Direction) String() string {
	if d == Write {
		return "write"
	}
	return "read"
}

type Channel uint8

const (
	Primary Channel = iota
	Secondary
)

func (c Channel) String() string {
	if c == Secondary {
		return "secondary"
	}
	return "primary"
}

// Cycle is one host bus transaction. It only exists for the duration of a
// host clock period and is never stored by the engine.
type Cycle struct {
	Address   uint16
	Direction Direction
	Data      byte
	Channel   Channel
}

func (c Cycle) String() string {
	if c.Direction == Write {
		return fmt.Sprintf("%s %s $%04x <- $%02x", c.Channel, c.Direction, c.Address, c.Data)
	}
	return fmt.Sprintf("%s %s $%04x", c.Channel, c.Direction, c.Address)
}

// Phase is a sub-period of one host clock period.
type Phase uint8

const (
	PhaseIdle      Phase = iota
	PhaseAddrHigh        // high-order address lines valid
	PhaseAddrLow         // low-order address lines valid
	PhaseDataValid       // host data valid on writes; responder may drive on reads
	PhaseSampled         // host sample edge has passed
	numPhases
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseAddrHigh:
		return "addr-high"
	case PhaseAddrLow:
		return "addr-low"
	case PhaseDataValid:
		return "data-valid"
	case PhaseSampled:
		return "sampled"
	default:
		return fmt.Sprintf("phase(%d)", uint8(p))
	}
}

// Geometry is the split of a window offset over the multiplexed address
// lines: a wide high-order phase followed by a narrower low-order phase.
type Geometry struct {
	HighBits uint `json:"highBits"`
	LowBits  uint `json:"lowBits"`
}

func (g Geometry) Bits() uint { return g.HighBits + g.LowBits }
func (g Geometry) Size() int  { return 1 << g.Bits() }

func (g Geometry) Validate() error {
	if g.Bits() == 0 || g.Bits() > 16 {
		return fmt.Errorf("bus: geometry %d+%d bits must total 1..16", g.HighBits, g.LowBits)
	}
	return nil
}

func (g Geometry) Split(offset uint16) (hi, lo uint16) {
	lo = offset & (1<<g.LowBits - 1)
	hi = (offset >> g.LowBits) & (1<<g.HighBits - 1)
	return
}

func (g Geometry) Join(hi, lo uint16) uint16 {
	hi &= 1<<g.HighBits - 1
	lo &= 1<<g.LowBits - 1
	return hi<<g.LowBits | lo
}

// Pins is the electrical view of the host bus available to the sequencers.
type Pins interface {
	// StrobeEdge delivers one notification per rising edge of the
	// cycle-valid strobe.
	StrobeEdge() <-chan struct{}
	StrobeAsserted() bool

	// ReadCycle reports the direction line; true when the host reads.
	ReadCycle() bool
	SecondarySelected() bool

	// WaitPhase blocks until the current cycle reaches p.
	WaitPhase(ctx context.Context, p Phase) error
	// AddressLines returns what the multiplexed lines carry during p.
	AddressLines(p Phase) uint16
	// RawAddress samples the unlatched address lines at this instant.
	RawAddress() uint16

	DataLines() byte
	DriveData(v byte)
	// SetDataDirection writes the data-line direction pattern; a set bit
	// drives that line.
	SetDataDirection(pattern byte)
}
