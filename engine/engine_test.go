package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/go-test/deep"

	"pinshadow/bus"
	"pinshadow/shadow"
	"pinshadow/util"
)

var (
	testGeometry          = bus.Geometry{HighBits: 3, LowBits: 2}
	testSecondaryGeometry = bus.Geometry{HighBits: 1, LowBits: 2}
	testWindows           = [2]bus.Window{
		{Start: 0x1000, Length: 32},
		{Start: 0x3000, Length: 8},
	}
)

type rig struct {
	host      *bus.Host
	primary   *shadow.Region
	secondary *shadow.Region
	engine    *Engine
}

func newRig(t *testing.T, cfg Config) *rig {
	t.Helper()
	util.CaptureLog(t)

	r := &rig{
		host: bus.NewHost(bus.HostConfig{
			Geometry:          testGeometry,
			SecondaryGeometry: testSecondaryGeometry,
			Windows:           testWindows,
			Budget:            2 * time.Second,
		}),
		primary:   shadow.New(0x2000_0000, 32),
		secondary: shadow.New(0x2000_4000, 8),
	}
	cfg.Geometry = testGeometry
	cfg.SecondaryGeometry = testSecondaryGeometry
	r.engine = New(r.host, r.primary, r.secondary, cfg)
	return r
}

func (r *rig) arm(t *testing.T) {
	t.Helper()
	if err := r.engine.Arm(context.Background()); err != nil {
		t.Fatalf("Arm() error = %v", err)
	}
	t.Cleanup(func() { _ = r.engine.Reset() })
}

func (r *rig) write(t *testing.T, ch bus.Channel, addr uint16, v byte) {
	t.Helper()
	ctx := context.Background()
	if err := r.host.Write(ctx, ch, addr, v); err != nil {
		t.Fatalf("host write %s $%04x: %v", ch, addr, err)
	}
	if err := r.engine.WaitIdle(ctx); err != nil {
		t.Fatal(err)
	}
}

func (r *rig) read(t *testing.T, ch bus.Channel, addr uint16) byte {
	t.Helper()
	ctx := context.Background()
	v, err := r.host.Read(ctx, ch, addr)
	if err != nil {
		t.Fatalf("host read %s $%04x: %v", ch, addr, err)
	}
	if err = r.engine.WaitIdle(ctx); err != nil {
		t.Fatal(err)
	}
	return v
}

func TestEngine_WritesLandInShadow(t *testing.T) {
	r := newRig(t, Config{})
	r.arm(t)

	tests := []struct {
		name   string
		ch     bus.Channel
		addr   uint16
		value  byte
		region *shadow.Region
		offset int
	}{
		{"primary first byte", bus.Primary, 0x1000, 0x11, r.primary, 0},
		{"primary low phase only", bus.Primary, 0x1003, 0x22, r.primary, 3},
		{"primary high phase only", bus.Primary, 0x1004, 0x33, r.primary, 4},
		{"primary last byte", bus.Primary, 0x101F, 0x44, r.primary, 31},
		{"secondary first register", bus.Secondary, 0x3000, 0x55, r.secondary, 0},
		{"secondary last register", bus.Secondary, 0x3007, 0x66, r.secondary, 7},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r.write(t, tt.ch, tt.addr, tt.value)
			if got := tt.region.Load(tt.offset); got != tt.value {
				t.Errorf("shadow[%d] = %#02x, want %#02x", tt.offset, got, tt.value)
			}
			if got := r.read(t, tt.ch, tt.addr); got != tt.value {
				t.Errorf("host read back %#02x, want %#02x", got, tt.value)
			}
		})
	}
}

func TestEngine_ReadsServeRestoredImage(t *testing.T) {
	r := newRig(t, Config{})
	image := make([]byte, 32)
	for i := range image {
		image[i] = byte(0xA0 + i)
	}
	if err := r.primary.Restore(0, image); err != nil {
		t.Fatal(err)
	}
	r.arm(t)

	got := make([]byte, 32)
	for i := range got {
		got[i] = r.read(t, bus.Primary, 0x1000+uint16(i))
	}
	if diff := deep.Equal(got, image); diff != nil {
		t.Fatal(diff)
	}
}

func TestEngine_OutsideWindowNeverTriggers(t *testing.T) {
	r := newRig(t, Config{})
	r.arm(t)

	v, err := r.host.Read(context.Background(), bus.Primary, 0x0FFF)
	if !errors.Is(err, bus.ErrNotSelected) {
		t.Fatalf("Read() error = %v, want %v", err, bus.ErrNotSelected)
	}
	if v != 0xFF {
		t.Errorf("open bus read = %#02x, want 0xff", v)
	}
	if err = r.host.Write(context.Background(), bus.Primary, 0x1020, 1); !errors.Is(err, bus.ErrNotSelected) {
		t.Fatalf("Write() error = %v, want %v", err, bus.ErrNotSelected)
	}
}

type stageRecorder struct {
	mu     sync.Mutex
	active int
	peak   int
	seen   map[Stage]int
}

func (s *stageRecorder) Notify(object interface{}) {
	ev, ok := object.(StageEvent)
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if ev.Active {
		s.active++
		s.seen[ev.Stage]++
	} else {
		s.active--
	}
	if s.active > s.peak {
		s.peak = s.active
	}
}

func TestEngine_ClassifierExclusivity(t *testing.T) {
	r := newRig(t, Config{})
	rec := &stageRecorder{seen: map[Stage]int{}}
	r.engine.Subscribe(rec)
	r.arm(t)

	// hammer both channels from several goroutines; the host serializes
	// cycles but the engine's stages could still overlap if the arbiter
	// failed to hold the token across the whole chain.
	ctx := context.Background()
	var wg sync.WaitGroup
	errs := make(chan error, 64)
	for g := 0; g < 4; g++ {
		g := g
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				var err error
				switch (g + i) % 4 {
				case 0:
					err = r.host.Write(ctx, bus.Primary, 0x1000+uint16(i%32), byte(i))
				case 1:
					_, err = r.host.Read(ctx, bus.Primary, 0x1000+uint16(i%32))
				case 2:
					err = r.host.Write(ctx, bus.Secondary, 0x3000+uint16(i%8), byte(i))
				case 3:
					_, err = r.host.Read(ctx, bus.Secondary, 0x3000+uint16(i%8))
				}
				if err != nil {
					errs <- err
					return
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatal(err)
	}
	if err := r.engine.WaitIdle(ctx); err != nil {
		t.Fatal(err)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.peak > 1 {
		t.Errorf("observed %d stages active at once\n%s", rec.peak, spew.Sdump(rec.seen))
	}
	if got := r.engine.PeakConcurrency(); got != 1 {
		t.Errorf("PeakConcurrency() = %d, want 1", got)
	}
	for _, stage := range []Stage{StageReadResponder, StageWriteCapturer, StageSecondaryChannel} {
		if rec.seen[stage] == 0 {
			t.Errorf("stage %s never ran", stage)
		}
	}
}

func TestEngine_GlitchIsIgnored(t *testing.T) {
	r := newRig(t, Config{Settle: time.Millisecond})
	r.arm(t)

	r.host.Glitch()
	time.Sleep(5 * time.Millisecond)

	r.write(t, bus.Primary, 0x1005, 0x77)
	if got := r.primary.Load(5); got != 0x77 {
		t.Errorf("shadow[5] = %#02x, want 0x77", got)
	}
}

func TestEngine_StuckStrobeStalls(t *testing.T) {
	r := newRig(t, Config{})
	r.host = bus.NewHost(bus.HostConfig{
		Geometry:          testGeometry,
		SecondaryGeometry: testSecondaryGeometry,
		Windows:           testWindows,
		Budget:            50 * time.Millisecond,
	})
	r.engine = New(r.host, r.primary, r.secondary, Config{Geometry: testGeometry, SecondaryGeometry: testSecondaryGeometry})
	r.arm(t)

	r.host.SetStuck(true)
	r.write(t, bus.Primary, 0x1001, 0x01)

	// no new edge, so the classifier never sees this cycle:
	err := r.host.Write(context.Background(), bus.Primary, 0x1001, 0x02)
	if !errors.Is(err, bus.ErrNoResponse) {
		t.Fatalf("Write() with stuck strobe error = %v, want %v", err, bus.ErrNoResponse)
	}
	if got := r.primary.Load(1); got != 0x01 {
		t.Errorf("shadow[1] = %#02x, want 0x01", got)
	}
}

func TestEngine_ArmFaults(t *testing.T) {
	tests := []struct {
		name      string
		allocator func() *Pool
		wantStage string
	}{
		{
			name: "sequencer slot taken by someone else",
			allocator: func() *Pool {
				p := NewPool(DefaultSequencers, DefaultMovers)
				_ = p.Reserve(Sequencer, 0)
				return p
			},
			wantStage: "claim sequencers",
		},
		{
			name: "mover slot taken by someone else",
			allocator: func() *Pool {
				p := NewPool(DefaultSequencers, DefaultMovers)
				_ = p.Reserve(Mover, 2)
				return p
			},
			wantStage: "claim movers",
		},
		{
			name:      "too few sequencers",
			allocator: func() *Pool { return NewPool(4, DefaultMovers) },
			wantStage: "claim sequencers",
		},
		{
			name:      "too few movers",
			allocator: func() *Pool { return NewPool(DefaultSequencers, 5) },
			wantStage: "claim movers",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pool := tt.allocator()
			r := newRig(t, Config{Allocator: pool})

			err := r.engine.Arm(context.Background())
			var fault *EngineFault
			if !errors.As(err, &fault) {
				t.Fatalf("Arm() error = %v, want *EngineFault", err)
			}
			if fault.Stage != tt.wantStage {
				t.Errorf("fault stage = %q, want %q", fault.Stage, tt.wantStage)
			}
			if r.engine.IsArmed() {
				t.Error("engine reports armed after a fault")
			}
			if r.primary.IsArmed() || r.secondary.IsArmed() {
				t.Error("regions left armed after a fault")
			}

			// nothing half-claimed: everything we did not reserve is free.
			free := 0
			for {
				if _, err := pool.Claim(Sequencer); err != nil {
					break
				}
				free++
			}
			if want := len(pool.slots[Sequencer]) - countReserved(tt.name); free != want {
				t.Errorf("free sequencers after fault = %d, want %d", free, want)
			}
		})
	}
}

func countReserved(name string) int {
	if name == "sequencer slot taken by someone else" {
		return 1
	}
	return 0
}

func TestEngine_ArmWithoutSecondary(t *testing.T) {
	util.CaptureLog(t)
	host := bus.NewHost(bus.HostConfig{Geometry: testGeometry, Windows: testWindows, Budget: 2 * time.Second})
	primary := shadow.New(0, 32)
	pool := NewPool(DefaultSequencers, DefaultMovers)
	e := New(host, primary, nil, Config{Geometry: testGeometry, Allocator: pool})
	if err := e.Arm(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer e.Reset()

	want := plan(false)
	if diff := deep.Equal(e.claimed.sequencers, want.sequencers); diff != nil {
		t.Error(diff)
	}
	if diff := deep.Equal(e.claimed.movers, want.movers); diff != nil {
		t.Error(diff)
	}
	if err := host.Write(context.Background(), bus.Primary, 0x1002, 0x42); err != nil {
		t.Fatal(err)
	}
	if err := e.WaitIdle(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := primary.Load(2); got != 0x42 {
		t.Errorf("shadow[2] = %#02x, want 0x42", got)
	}
}

func TestEngine_ResetReleasesEverything(t *testing.T) {
	pool := NewPool(DefaultSequencers, DefaultMovers)
	r := newRig(t, Config{Allocator: pool})
	if err := r.engine.Arm(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := r.engine.Arm(context.Background()); !errors.Is(err, ErrArmed) {
		t.Errorf("second Arm() error = %v, want %v", err, ErrArmed)
	}
	if err := r.primary.Restore(0, []byte{1}); !errors.Is(err, shadow.ErrArmed) {
		t.Errorf("Restore() while armed error = %v, want %v", err, shadow.ErrArmed)
	}

	if err := r.engine.Reset(); err != nil {
		t.Fatal(err)
	}
	if err := r.primary.Restore(0, []byte{1}); err != nil {
		t.Errorf("Restore() after Reset error = %v", err)
	}
	if err := r.engine.Reset(); !errors.Is(err, ErrNotArmed) {
		t.Errorf("second Reset() error = %v, want %v", err, ErrNotArmed)
	}

	// and it can be armed again with the same slot numbers:
	if err := r.engine.Arm(context.Background()); err != nil {
		t.Fatalf("re-Arm() error = %v", err)
	}
	_ = r.engine.Reset()
}

func TestEngine_ConfigFault(t *testing.T) {
	util.CaptureLog(t)
	host := bus.NewHost(bus.HostConfig{Geometry: testGeometry, Windows: testWindows})
	e := New(host, shadow.New(0, 16), nil, Config{Geometry: testGeometry})

	err := e.Arm(context.Background())
	var fault *EngineFault
	if !errors.As(err, &fault) || fault.Stage != "config" {
		t.Fatalf("Arm() error = %v, want config fault", err)
	}
}
