package engine

import (
	"fmt"
	"slices"
	"sync"
)

type ResourceKind uint8

const (
	Sequencer ResourceKind = iota
	Mover
)

func (k ResourceKind) String() string {
	if k == Mover {
		return "mover"
	}
	return "sequencer"
}

const (
	DefaultSequencers = 8
	DefaultMovers     = 12
)

// Allocator hands out the sequencer and mover slots the fabric is built
// from. The chain wiring refers to slots by number, so the engine insists on
// receiving exactly the numbers it was wired for.
type Allocator interface {
	Claim(kind ResourceKind) (int, error)
	Release(kind ResourceKind, id int)
}

type Pool struct {
	mu    sync.Mutex
	slots [2][]bool
}

func NewPool(sequencers, movers int) *Pool {
	p := &Pool{}
	p.slots[Sequencer] = make([]bool, sequencers)
	p.slots[Mover] = make([]bool, movers)
	return p
}

// Claim returns the lowest free slot of kind.
func (p *Pool) Claim(kind ResourceKind) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, used := range p.slots[kind] {
		if !used {
			p.slots[kind][id] = true
			return id, nil
		}
	}
	return -1, fmt.Errorf("%w: %s", ErrExhausted, kind)
}

// Reserve claims a specific slot on behalf of some other user.
func (p *Pool) Reserve(kind ResourceKind, id int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if id < 0 || id >= len(p.slots[kind]) {
		return fmt.Errorf("engine: no %s %d", kind, id)
	}
	if p.slots[kind][id] {
		return fmt.Errorf("engine: %s %d already claimed", kind, id)
	}
	p.slots[kind][id] = true
	return nil
}

func (p *Pool) Release(kind ResourceKind, id int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if id >= 0 && id < len(p.slots[kind]) {
		p.slots[kind][id] = false
	}
}

// slot numbers the chains are wired with:
const (
	seqClassifier = iota
	seqPrimaryCapture
	seqPrimaryResponder
	seqPrimaryCapturer
	seqSecondaryCapture
	seqSecondaryResponder
	seqSecondaryCapturer
)

const (
	movPrimaryLookup = iota
	movPrimaryStore
	movPrimaryDirection
	movSecondaryLookup
	movSecondaryStore
	movSecondaryDirection
)

type resourceSet struct {
	sequencers []int
	movers     []int
}

func plan(withSecondary bool) resourceSet {
	if !withSecondary {
		return resourceSet{
			sequencers: []int{seqClassifier, seqPrimaryCapture, seqPrimaryResponder, seqPrimaryCapturer},
			movers:     []int{movPrimaryLookup, movPrimaryStore, movPrimaryDirection},
		}
	}
	return resourceSet{
		sequencers: []int{
			seqClassifier,
			seqPrimaryCapture, seqPrimaryResponder, seqPrimaryCapturer,
			seqSecondaryCapture, seqSecondaryResponder, seqSecondaryCapturer,
		},
		movers: []int{
			movPrimaryLookup, movPrimaryStore, movPrimaryDirection,
			movSecondaryLookup, movSecondaryStore, movSecondaryDirection,
		},
	}
}

func releaseAll(a Allocator, got resourceSet) {
	for _, id := range got.sequencers {
		a.Release(Sequencer, id)
	}
	for _, id := range got.movers {
		a.Release(Mover, id)
	}
}

// claim takes the full set for want or nothing at all.
func claim(a Allocator, want resourceSet) (got resourceSet, err error) {
	for range want.sequencers {
		var id int
		if id, err = a.Claim(Sequencer); err != nil {
			releaseAll(a, got)
			return resourceSet{}, &EngineFault{Stage: "claim sequencers", Err: err}
		}
		got.sequencers = append(got.sequencers, id)
	}
	for range want.movers {
		var id int
		if id, err = a.Claim(Mover); err != nil {
			releaseAll(a, got)
			return resourceSet{}, &EngineFault{Stage: "claim movers", Err: err}
		}
		got.movers = append(got.movers, id)
	}

	if !slices.Equal(got.sequencers, want.sequencers) {
		releaseAll(a, got)
		return resourceSet{}, &EngineFault{Stage: "claim sequencers", Want: want.sequencers, Got: got.sequencers}
	}
	if !slices.Equal(got.movers, want.movers) {
		releaseAll(a, got)
		return resourceSet{}, &EngineFault{Stage: "claim movers", Want: want.movers, Got: got.movers}
	}
	return got, nil
}
