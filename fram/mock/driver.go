package mock

import (
	"fmt"
	"strconv"

	"pinshadow/fram"
)

const driverName = "mock"

const DefaultSize = 0x10000

type Driver struct{}

func (d *Driver) DisplayName() string {
	return "In-memory FRAM"
}

// Open returns a fresh chip. name may give the size in bytes.
func (d *Driver) Open(name string) (fram.Transport, error) {
	size := DefaultSize
	if n, err := strconv.ParseInt(name, 0, 32); err == nil && n > 0 {
		size = int(n)
	}
	if size&(size-1) != 0 {
		return nil, fmt.Errorf("mock: chip size %d is not a power of two", size)
	}
	return NewChip(size), nil
}

func init() {
	fram.Register(driverName, &Driver{})
}
