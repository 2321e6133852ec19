// Package mock emulates a serial FRAM chip behind the fram.Transport
// interface: write-enable latch, status register with block protection and
// a flat byte array. It records every exchange and can inject failures.
package mock

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"pinshadow/fram"
)

var (
	ErrInjected = errors.New("mock: injected transport failure")
	ErrClosed   = errors.New("mock: chip closed")
)

// Exchange is one recorded frame.
type Exchange struct {
	Op    fram.Opcode
	Frame []byte
}

type Chip struct {
	// Settle is slept after select on every exchange.
	Settle time.Duration

	// BeforeRead, if set, runs after a READ frame is decoded and before the
	// response is clocked out.
	BeforeRead func(addr uint16, n int)

	mu        sync.Mutex
	mem       []byte
	wel       bool
	status    byte
	closed    bool
	exchanges []Exchange

	failOps   map[fram.Opcode]int
	failAfter int
	short     bool
}

// NewChip returns a blank chip of size bytes (a power of two; addresses
// wrap as on the real part).
func NewChip(size int) *Chip {
	if size <= 0 || size&(size-1) != 0 {
		panic(fmt.Sprintf("mock: chip size %d is not a power of two", size))
	}
	return &Chip{
		mem:       make([]byte, size),
		failOps:   make(map[fram.Opcode]int),
		failAfter: -1,
	}
}

// FailNext makes the next n exchanges of op fail.
func (c *Chip) FailNext(op fram.Opcode, n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failOps[op] += n
}

// FailAfter makes every exchange after the next n fail; -1 disables.
func (c *Chip) FailAfter(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failAfter = n
}

// ShortReads makes READ and RDSR return fewer bytes than asked for.
func (c *Chip) ShortReads(short bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.short = short
}

func (c *Chip) Exchanges() []Exchange {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Exchange, len(c.exchanges))
	copy(out, c.exchanges)
	return out
}

func (c *Chip) ResetExchanges() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.exchanges = nil
}

// Peek returns a copy of the array contents, bypassing the protocol.
func (c *Chip) Peek(addr uint16, n int) []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]byte, n)
	for i := range out {
		out[i] = c.mem[(int(addr)+i)&(len(c.mem)-1)]
	}
	return out
}

// Poke writes the array directly, bypassing the protocol.
func (c *Chip) Poke(addr uint16, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, v := range data {
		c.mem[(int(addr)+i)&(len(c.mem)-1)] = v
	}
}

func (c *Chip) SetStatus(status byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status = status &^ fram.StatusWEL
}

func (c *Chip) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *Chip) protected(addr int) bool {
	size := len(c.mem)
	switch (c.status >> 2) & 3 {
	case 1:
		return addr >= size-size/4
	case 2:
		return addr >= size/2
	case 3:
		return true
	default:
		return false
	}
}

func (c *Chip) Exchange(frame []byte, rsp []byte) error {
	if len(frame) == 0 {
		return fmt.Errorf("mock: empty frame")
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	op := fram.Opcode(frame[0])
	c.exchanges = append(c.exchanges, Exchange{Op: op, Frame: append([]byte(nil), frame...)})

	if c.failAfter == 0 {
		c.mu.Unlock()
		return ErrInjected
	}
	if c.failAfter > 0 {
		c.failAfter--
	}
	if c.failOps[op] > 0 {
		c.failOps[op]--
		c.mu.Unlock()
		return ErrInjected
	}
	settle := c.Settle
	c.mu.Unlock()

	if settle > 0 {
		time.Sleep(settle)
	}

	switch op {
	case fram.OpWREN:
		c.mu.Lock()
		c.wel = true
		c.mu.Unlock()
	case fram.OpWRDI:
		c.mu.Lock()
		c.wel = false
		c.mu.Unlock()
	case fram.OpRDSR:
		return c.readStatus(rsp)
	case fram.OpWRSR:
		if len(frame) < 2 {
			return fmt.Errorf("mock: WRSR without value")
		}
		c.mu.Lock()
		if c.wel {
			c.status = frame[1] & (fram.StatusBP0 | fram.StatusBP1 | fram.StatusWPEN)
		}
		c.wel = false
		c.mu.Unlock()
	case fram.OpREAD:
		return c.read(frame, rsp)
	case fram.OpWRITE:
		return c.write(frame)
	default:
		return fmt.Errorf("mock: unknown opcode %#02x", frame[0])
	}
	return nil
}

func (c *Chip) readStatus(rsp []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.short && len(rsp) > 0 {
		return &fram.ShortResponseError{Got: 0, Want: len(rsp)}
	}
	for i := range rsp {
		rsp[i] = c.status
		if c.wel {
			rsp[i] |= fram.StatusWEL
		}
	}
	return nil
}

func (c *Chip) read(frame []byte, rsp []byte) error {
	if len(frame) < 3 {
		return fmt.Errorf("mock: READ without address")
	}
	addr := uint16(frame[1])<<8 | uint16(frame[2])
	if c.BeforeRead != nil {
		c.BeforeRead(addr, len(rsp))
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	n := len(rsp)
	if c.short && n > 0 {
		n /= 2
	}
	for i := 0; i < n; i++ {
		rsp[i] = c.mem[(int(addr)+i)&(len(c.mem)-1)]
	}
	if n < len(rsp) {
		return &fram.ShortResponseError{Got: n, Want: len(rsp)}
	}
	return nil
}

func (c *Chip) write(frame []byte) error {
	if len(frame) < 3 {
		return fmt.Errorf("mock: WRITE without address")
	}
	addr := int(uint16(frame[1])<<8 | uint16(frame[2]))

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.wel {
		// the real part silently ignores it
		return nil
	}
	for i, v := range frame[3:] {
		a := (addr + i) & (len(c.mem) - 1)
		if !c.protected(a) {
			c.mem[a] = v
		}
	}
	c.wel = false
	return nil
}
