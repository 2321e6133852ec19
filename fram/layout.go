package fram

import (
	"fmt"
	"sort"
)

// Layout places the persisted areas in the 16-bit FRAM address space.
type Layout struct {
	ShadowBase   uint16 `json:"shadowBase"`
	ShadowLength int    `json:"shadowLength"`

	// rotating diagnostic log:
	LogBase   uint16 `json:"logBase"`
	LogLength int    `json:"logLength"`

	// per-profile configuration records, owned by profile management:
	ProfileBase  uint16 `json:"profileBase"`
	ProfileSize  int    `json:"profileSize"`
	ProfileCount int    `json:"profileCount"`
}

func (l Layout) ProfileAddress(i int) uint16 {
	return l.ProfileBase + uint16(i*l.ProfileSize)
}

func (l Layout) Validate() error {
	type area struct {
		name  string
		start int
		end   int
	}
	all := []area{
		{"shadow", int(l.ShadowBase), int(l.ShadowBase) + l.ShadowLength},
		{"log", int(l.LogBase), int(l.LogBase) + l.LogLength},
		{"profiles", int(l.ProfileBase), int(l.ProfileBase) + l.ProfileSize*l.ProfileCount},
	}
	if l.ShadowLength <= 0 {
		return fmt.Errorf("fram: layout: shadow length %d", l.ShadowLength)
	}
	if l.LogLength != 0 && l.LogLength <= logHeaderSize {
		return fmt.Errorf("fram: layout: log length %d too small", l.LogLength)
	}
	areas := all[:0:0]
	for _, a := range all {
		if a.end > 0x10000 {
			return fmt.Errorf("fram: layout: %s [%#04x, %#05x) past end of address space", a.name, a.start, a.end)
		}
		if a.end > a.start {
			areas = append(areas, a)
		}
	}

	sort.Slice(areas, func(i, j int) bool { return areas[i].start < areas[j].start })
	for i := 1; i < len(areas); i++ {
		prev, cur := areas[i-1], areas[i]
		if cur.start < prev.end {
			return fmt.Errorf("fram: layout: %s overlaps %s", cur.name, prev.name)
		}
	}
	return nil
}
