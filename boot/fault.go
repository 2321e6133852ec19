package boot

import (
	"fmt"
	"log"
	"sync"
)

// Fault is a latched fatal boot fault. The value is the blink count of the
// status LED on the real board.
type Fault uint8

const (
	FaultNone Fault = iota
	FaultEngineArm
	FaultBusContention
)

func (f Fault) String() string {
	switch f {
	case FaultNone:
		return "none"
	case FaultEngineArm:
		return "engine-arm"
	case FaultBusContention:
		return "bus-contention"
	default:
		return fmt.Sprintf("fault(%d)", uint8(f))
	}
}

// Indicator shows a fault until power is removed. Once latched it does not
// change.
type Indicator interface {
	Latch(f Fault)
	Latched() Fault
}

type LogIndicator struct {
	mu    sync.Mutex
	fault Fault
}

func (l *LogIndicator) Latch(f Fault) {
	l.mu.Lock()
	if l.fault != FaultNone {
		l.mu.Unlock()
		return
	}
	l.fault = f
	l.mu.Unlock()
	log.Printf("boot: FAULT %d latched (%s)\n", uint8(f), f)
}

func (l *LogIndicator) Latched() Fault {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.fault
}
