// Package harness runs the bus engine against a simulated host off-target.
// A board family's regions, engine, mock FRAM and backup loop are wired up
// exactly as on the board; synthetic host cycles come from Go calls or a
// Lua script.
package harness

import (
	"context"
	"fmt"
	"log"
	"time"

	lua "github.com/yuin/gopher-lua"

	"pinshadow/boards"
	"pinshadow/bus"
	"pinshadow/engine"
	"pinshadow/fram"
	"pinshadow/fram/mock"
	"pinshadow/sched"
	"pinshadow/shadow"
)

type Harness struct {
	Family    boards.Family
	Host      *bus.Host
	Engine    *engine.Engine
	Primary   *shadow.Region
	Secondary *shadow.Region
	Device    *fram.Device
	Backup    *fram.Backup
	Scheduler *sched.Scheduler
}

type Option func(o *options)

type options struct {
	transport fram.Transport
	tick      time.Duration
}

// WithTransport backs the harness with a real FRAM instead of a fresh
// in-memory chip.
func WithTransport(t fram.Transport) Option {
	return func(o *options) { o.transport = t }
}

// WithTick sets the scheduler period used by Scheduler.Run.
func WithTick(d time.Duration) Option {
	return func(o *options) { o.tick = d }
}

// New builds an unarmed harness for f. Activity counters are on.
func New(f boards.Family, opts ...Option) *Harness {
	o := options{tick: time.Millisecond}
	for _, opt := range opts {
		opt(&o)
	}
	if o.transport == nil {
		o.transport = mock.NewChip(mock.DefaultSize)
	}
	h := &Harness{Family: f}

	cfg := f.HostConfig()
	cfg.Budget = 2 * time.Second
	h.Host = bus.NewHost(cfg)

	h.Primary, h.Secondary = f.NewRegions(shadow.WithActivity())
	h.Engine = engine.New(h.Host, h.Primary, h.Secondary, f.EngineConfig())

	h.Device = fram.NewDevice(o.transport, f.Layout)
	h.Backup = fram.NewBackup(h.Device, h.Primary)
	h.Scheduler = sched.New(o.tick)
	h.Scheduler.Add(h.Backup)
	return h
}

func (h *Harness) Arm(ctx context.Context) error {
	return h.Engine.Arm(ctx)
}

func (h *Harness) Reset() error {
	return h.Engine.Reset()
}

func (h *Harness) window(ch bus.Channel) bus.Window {
	if ch == bus.Secondary {
		return h.Family.SecondaryWindow
	}
	return h.Family.Window
}

// Read runs one host read cycle at offset into the channel's window and
// returns once the engine is idle again.
func (h *Harness) Read(ctx context.Context, ch bus.Channel, offset int) (byte, error) {
	v, err := h.Host.Read(ctx, ch, h.window(ch).Start+uint16(offset))
	if err != nil {
		return v, err
	}
	return v, h.Engine.WaitIdle(ctx)
}

func (h *Harness) Write(ctx context.Context, ch bus.Channel, offset int, v byte) error {
	if err := h.Host.Write(ctx, ch, h.window(ch).Start+uint16(offset), v); err != nil {
		return err
	}
	return h.Engine.WaitIdle(ctx)
}

// Tick runs n scheduler steps, i.e. n backup chunks.
func (h *Harness) Tick(n int) {
	for i := 0; i < n; i++ {
		h.Scheduler.Step()
	}
}

// Persisted reads the FRAM mirror of the primary region at offset.
func (h *Harness) Persisted(offset int) (byte, error) {
	b, err := h.Device.Read(h.Family.Layout.ShadowBase+uint16(offset), 1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// RunScript executes Lua source against the harness. The script sees:
//
//	read(off) / write(off, v)          primary window
//	rtc_read(off) / rtc_write(off, v)  secondary window
//	tick([n])                          backup loop steps
//	shadow(off)                        primary region byte
//	persisted(off)                     FRAM mirror byte
//	sweep()                            ticks per full backup sweep
//
// Bus errors raise Lua errors.
func (h *Harness) RunScript(ctx context.Context, name, src string) error {
	L := lua.NewState()
	defer L.Close()
	L.SetContext(ctx)
	h.register(ctx, L)

	if err := L.DoString(src); err != nil {
		return fmt.Errorf("harness: %s: %w", name, err)
	}
	log.Printf("harness: %s: done\n", name)
	return nil
}

func (h *Harness) RunFile(ctx context.Context, path string) error {
	L := lua.NewState()
	defer L.Close()
	L.SetContext(ctx)
	h.register(ctx, L)

	if err := L.DoFile(path); err != nil {
		return fmt.Errorf("harness: %w", err)
	}
	log.Printf("harness: %s: done\n", path)
	return nil
}

func checkByte(L *lua.LState, n int) byte {
	v := L.CheckInt(n)
	if v < 0 || v > 0xFF {
		L.ArgError(n, "byte out of range")
	}
	return byte(v)
}

func (h *Harness) register(ctx context.Context, L *lua.LState) {
	reader := func(ch bus.Channel) lua.LGFunction {
		return func(L *lua.LState) int {
			v, err := h.Read(ctx, ch, L.CheckInt(1))
			if err != nil {
				L.RaiseError("%s read: %v", ch, err)
			}
			L.Push(lua.LNumber(v))
			return 1
		}
	}
	writer := func(ch bus.Channel) lua.LGFunction {
		return func(L *lua.LState) int {
			if err := h.Write(ctx, ch, L.CheckInt(1), checkByte(L, 2)); err != nil {
				L.RaiseError("%s write: %v", ch, err)
			}
			return 0
		}
	}

	L.SetGlobal("read", L.NewFunction(reader(bus.Primary)))
	L.SetGlobal("write", L.NewFunction(writer(bus.Primary)))
	L.SetGlobal("rtc_read", L.NewFunction(reader(bus.Secondary)))
	L.SetGlobal("rtc_write", L.NewFunction(writer(bus.Secondary)))
	L.SetGlobal("tick", L.NewFunction(func(L *lua.LState) int {
		h.Tick(L.OptInt(1, 1))
		return 0
	}))
	L.SetGlobal("sweep", L.NewFunction(func(L *lua.LState) int {
		L.Push(lua.LNumber(h.Backup.TicksPerSweep()))
		return 1
	}))
	L.SetGlobal("shadow", L.NewFunction(func(L *lua.LState) int {
		off := L.CheckInt(1)
		if off < 0 || off >= h.Primary.Len() {
			L.ArgError(1, "offset outside the region")
		}
		L.Push(lua.LNumber(h.Primary.Load(off)))
		return 1
	}))
	L.SetGlobal("persisted", L.NewFunction(func(L *lua.LState) int {
		off := L.CheckInt(1)
		if off < 0 || off >= h.Primary.Len() {
			L.ArgError(1, "offset outside the region")
		}
		v, err := h.Persisted(off)
		if err != nil {
			L.RaiseError("persisted: %v", err)
		}
		L.Push(lua.LNumber(v))
		return 1
	}))
}
