package boards

import (
	"time"

	"pinshadow/bus"
	"pinshadow/engine"
	"pinshadow/fram"
	"pinshadow/shadow"
)

const (
	sramBase = 0x2000_0000
	rtcBase  = 0x2000_4000
)

// FRAM map shared by every family; only the mirror length differs.
func layout(shadowLength int) fram.Layout {
	return fram.Layout{
		ShadowBase:   0x0000,
		ShadowLength: shadowLength,
		LogBase:      0x4000,
		LogLength:    0x1000,
		ProfileBase:  0x6000,
		ProfileSize:  0x200,
		ProfileCount: 8,
	}
}

func init() {
	// 6809, 8 KiB CMOS RAM, clock registers behind the ASIC.
	Register(Family{
		Name:              "wpc",
		DisplayName:       "WPC / WPC-S / WPC-95",
		RegionBase:        sramBase,
		RegionLength:      0x2000,
		Geometry:          bus.Geometry{HighBits: 8, LowBits: 5},
		Window:            bus.Window{Start: 0x0000, Length: 0x2000},
		SecondaryBase:     rtcBase,
		SecondaryLength:   8,
		SecondaryGeometry: bus.Geometry{HighBits: 1, LowBits: 2},
		SecondaryWindow:   bus.Window{Start: 0x3FF8, Length: 8},
		Checksum:          &shadow.Checksum{Start: 0x1D00, End: 0x1D80, Field: 0x1D80},
		Layout:            layout(0x2000),
		Probe:             engine.DefaultProbe,
		Settle:            50 * time.Nanosecond,
	})

	// 6802/6808, 2 KiB CMOS, no clock.
	Register(Family{
		Name:         "sys11",
		DisplayName:  "System 11",
		RegionBase:   sramBase,
		RegionLength: 0x0800,
		Geometry:     bus.Geometry{HighBits: 6, LowBits: 5},
		Window:       bus.Window{Start: 0x0000, Length: 0x0800},
		Checksum:     &shadow.Checksum{Start: 0x0100, End: 0x0180, Field: 0x0180},
		Layout:       layout(0x0800),
		Probe:        engine.DefaultProbe,
		Settle:       100 * time.Nanosecond,
	})

	Register(Family{
		Name:              "dataeast",
		DisplayName:       "Data East / Sega",
		RegionBase:        sramBase,
		RegionLength:      0x1000,
		Geometry:          bus.Geometry{HighBits: 7, LowBits: 5},
		Window:            bus.Window{Start: 0x0000, Length: 0x1000},
		SecondaryBase:     rtcBase,
		SecondaryLength:   8,
		SecondaryGeometry: bus.Geometry{HighBits: 1, LowBits: 2},
		SecondaryWindow:   bus.Window{Start: 0x2800, Length: 8},
		Layout:            layout(0x1000),
		Probe:             engine.DefaultProbe,
		Settle:            50 * time.Nanosecond,
	})
}
