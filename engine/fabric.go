package engine

import "context"

// mover is one self-retriggering transfer: as soon as a transfer completes
// it re-arms on its source queue. Terminal movers have no destination.
type mover[I, O any] struct {
	id   int
	src  <-chan I
	dst  chan<- O
	xfer func(I) O
}

func (m *mover[I, O]) run(ctx context.Context) error {
	for {
		v, ok := recv(ctx, m.src)
		if !ok {
			return nil
		}
		out := m.xfer(v)
		if m.dst == nil {
			continue
		}
		if !send(ctx, m.dst, out) {
			return nil
		}
	}
}

// DirectionPatterns is the fixed pin-direction pair the direction movers
// write: Out while the responder drives the data lines, In otherwise.
type DirectionPatterns struct {
	Out byte
	In  byte
}

var DefaultPatterns = DirectionPatterns{Out: 0xFF, In: 0x00}

type storeOp struct {
	addr uint32
	data byte
}

type dirOp struct {
	pattern byte
	last    bool
}

func send[T any](ctx context.Context, c chan<- T, v T) bool {
	select {
	case c <- v:
		return true
	case <-ctx.Done():
		return false
	}
}

func recv[T any](ctx context.Context, c <-chan T) (v T, ok bool) {
	select {
	case v = <-c:
		return v, true
	case <-ctx.Done():
		return v, false
	}
}
