// Package fram drives the serial FRAM that backs up the shadow region.
//
// The wire protocol is the usual SPI FRAM command set: one opcode byte, a
// 16-bit big-endian address where applicable, then payload. Writes are
// split into chunks of at most ChunkSize bytes and every chunk is preceded
// by its own write-enable, because the device clears its write-enable latch
// after each write.
package fram

import (
	"fmt"
	"sort"
	"sync"
)

type Opcode uint8

const (
	OpWRSR  Opcode = 0x01 // write status register
	OpWRITE Opcode = 0x02 // write memory
	OpREAD  Opcode = 0x03 // read memory
	OpWRDI  Opcode = 0x04 // write disable
	OpRDSR  Opcode = 0x05 // read status register
	OpWREN  Opcode = 0x06 // write enable
)

func (o Opcode) String() string {
	switch o {
	case OpWRSR:
		return "WRSR"
	case OpWRITE:
		return "WRITE"
	case OpREAD:
		return "READ"
	case OpWRDI:
		return "WRDI"
	case OpRDSR:
		return "RDSR"
	case OpWREN:
		return "WREN"
	default:
		return fmt.Sprintf("op(%#02x)", uint8(o))
	}
}

// status register bits:
const (
	StatusWEL  = 1 << 1
	StatusBP0  = 1 << 2
	StatusBP1  = 1 << 3
	StatusWPEN = 1 << 7
)

const ChunkSize = 16

// Transport performs one framed exchange with the device: assert select,
// wait the fixed settle delay, clock out frame, clock in exactly len(rsp)
// bytes, release select. A transport that cannot fill rsp returns an error.
type Transport interface {
	Exchange(frame []byte, rsp []byte) error
	Close() error
}

type Driver interface {
	DisplayName() string
	Open(name string) (Transport, error)
}

var (
	driversMu sync.RWMutex
	drivers   = make(map[string]Driver)
)

// Register makes a FRAM driver available by the provided name.
// If Register is called twice with the same name or if driver is nil,
// it panics.
func Register(name string, driver Driver) {
	driversMu.Lock()
	defer driversMu.Unlock()
	if driver == nil {
		panic("fram: Register driver is nil")
	}
	if _, dup := drivers[name]; dup {
		panic("fram: Register called twice for driver " + name)
	}
	drivers[name] = driver
}

// Drivers returns a sorted list of the names of the registered drivers.
func Drivers() []string {
	driversMu.RLock()
	defer driversMu.RUnlock()
	list := make([]string, 0, len(drivers))
	for name := range drivers {
		list = append(list, name)
	}
	sort.Strings(list)
	return list
}

func Open(driverName, portName string) (Transport, error) {
	driversMu.RLock()
	driveri, ok := drivers[driverName]
	driversMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("fram: unknown driver %q (forgotten import?)", driverName)
	}

	return driveri.Open(portName)
}
