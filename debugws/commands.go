package debugws

import (
	"context"
	"fmt"
	"sort"
	"time"

	"pinshadow/boot"
	"pinshadow/diag"
	"pinshadow/fram"
	"pinshadow/interfaces"
	"pinshadow/sched"
	"pinshadow/shadow"
)

// Board is the command surface the listener exposes. Everything but Region
// is optional; commands needing a missing part fail with an error.
type Board struct {
	Family    string
	Region    *shadow.Region
	Device    *fram.Device
	Backup    *fram.Backup
	Scheduler *sched.Scheduler
	Log       *fram.LogRing
	Indicator boot.Indicator
	Engine    interface{ IsArmed() bool }

	// Timeout bounds commands that wait on the scheduler.
	Timeout time.Duration
}

var _ interfaces.CommandHandler = (*Board)(nil)

var commands = map[string]func(b *Board) interfaces.Command{
	"Export":      func(b *Board) interfaces.Command { return &exportCommand{b} },
	"Import":      func(b *Board) interfaces.Command { return &importCommand{b} },
	"Status":      func(b *Board) interfaces.Command { return &statusCommand{b} },
	"WriteAllNow": func(b *Board) interfaces.Command { return &writeAllNowCommand{b} },
	"Activity":    func(b *Board) interfaces.Command { return &activityCommand{b} },
	"Log":         func(b *Board) interfaces.Command { return &logCommand{b} },
}

// Opcodes lists the supported command names.
func Opcodes() []string {
	list := make([]string, 0, len(commands))
	for name := range commands {
		list = append(list, name)
	}
	sort.Strings(list)
	return list
}

func (b *Board) CommandFor(command string) (interfaces.Command, error) {
	mk, ok := commands[command]
	if !ok {
		return nil, fmt.Errorf("debugws: unknown opcode %q", command)
	}
	return mk(b), nil
}

func (b *Board) context() (context.Context, context.CancelFunc) {
	timeout := b.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return context.WithTimeout(context.Background(), timeout)
}

type ExportResult struct {
	Data []int              `json:"Data"`
	Hex  interfaces.HexBytes `json:"Hex"`
}

type exportCommand struct{ b *Board }

func (c *exportCommand) CreateArgs() interfaces.CommandArgs { return nil }
func (c *exportCommand) Execute(_ interfaces.CommandArgs) (interface{}, error) {
	hex := make(interfaces.HexBytes, c.b.Region.Len())
	c.b.Region.Snapshot(0, hex)
	return &ExportResult{Data: c.b.Region.Export(), Hex: hex}, nil
}

// ImportArgs carries the image either as Data (one int per byte) or as Hex.
type ImportArgs struct {
	Data []int              `json:"Data"`
	Hex  interfaces.HexBytes `json:"Hex"`
}

type importCommand struct{ b *Board }

func (c *importCommand) CreateArgs() interfaces.CommandArgs { return &ImportArgs{} }
func (c *importCommand) Execute(args interfaces.CommandArgs) (interface{}, error) {
	a := args.(*ImportArgs)
	data := a.Data
	if data == nil && a.Hex != nil {
		data = make([]int, len(a.Hex))
		for i, v := range a.Hex {
			data[i] = int(v)
		}
	}
	if err := c.b.Region.Import(data); err != nil {
		return nil, err
	}
	return interfaces.Object{"Imported": len(data)}, nil
}

type statusCommand struct{ b *Board }

func (c *statusCommand) CreateArgs() interfaces.CommandArgs { return nil }
func (c *statusCommand) Execute(_ interfaces.CommandArgs) (interface{}, error) {
	b := c.b
	status := interfaces.Object{
		"Family": b.Family,
		"Length": b.Region.Len(),
		"Armed":  b.Region.IsArmed(),
	}
	if b.Engine != nil {
		status["EngineArmed"] = b.Engine.IsArmed()
	}
	if b.Indicator != nil {
		status["Fault"] = b.Indicator.Latched().String()
	}
	if b.Backup != nil {
		status["BackupCursor"] = b.Backup.Cursor()
		status["BackupSweeps"] = b.Backup.Sweeps()
		status["TicksPerSweep"] = b.Backup.TicksPerSweep()
	}
	if b.Scheduler != nil {
		status["Ticks"] = b.Scheduler.Ticks()
		status["TickPeriod"] = b.Scheduler.Period().String()
	}
	return status, nil
}

type writeAllNowCommand struct{ b *Board }

func (c *writeAllNowCommand) CreateArgs() interfaces.CommandArgs { return nil }
func (c *writeAllNowCommand) Execute(_ interfaces.CommandArgs) (interface{}, error) {
	b := c.b
	if b.Device == nil {
		return nil, fmt.Errorf("debugws: no FRAM attached")
	}
	sweep := func() error { return b.Device.WriteAllNow(b.Region) }

	var err error
	if b.Scheduler != nil {
		// between two ticks, so the backup loop keeps its cursor:
		ctx, cancel := b.context()
		defer cancel()
		err = b.Scheduler.Do(ctx, sweep)
	} else {
		err = sweep()
	}
	if err != nil {
		return nil, err
	}
	return interfaces.Object{"Bytes": b.Region.Len()}, nil
}

type ActivityArgs struct {
	Bins  int `json:"Bins"`
	Width int `json:"Width"`
	Top   int `json:"Top"`
}

type ActivityResult struct {
	Histogram string         `json:"Histogram"`
	Hot       []diag.Hotspot `json:"Hot"`
}

type activityCommand struct{ b *Board }

func (c *activityCommand) CreateArgs() interfaces.CommandArgs {
	return &ActivityArgs{Bins: 10, Width: 40, Top: 16}
}
func (c *activityCommand) Execute(args interfaces.CommandArgs) (interface{}, error) {
	a := args.(*ActivityArgs)
	if a.Bins < 1 || a.Width < 1 || a.Top < 1 {
		return nil, fmt.Errorf("debugws: Bins, Width and Top must be positive; got %d, %d, %d", a.Bins, a.Width, a.Top)
	}
	counts := c.b.Region.ActivityCounts()
	hist, err := diag.Sprint(counts, a.Bins, a.Width)
	if err != nil {
		return nil, err
	}
	return &ActivityResult{Histogram: hist, Hot: diag.Hot(counts, a.Top)}, nil
}

type logCommand struct{ b *Board }

func (c *logCommand) CreateArgs() interfaces.CommandArgs { return nil }
func (c *logCommand) Execute(_ interfaces.CommandArgs) (interface{}, error) {
	if c.b.Log == nil {
		return nil, fmt.Errorf("debugws: no diagnostic log")
	}
	text, err := c.b.Log.Contents()
	if err != nil {
		return nil, err
	}
	return interfaces.Object{"Text": string(text)}, nil
}
