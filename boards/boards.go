// Package boards describes the CPU board families the add-on clips onto:
// where the host keeps its working RAM, how the address lines are
// multiplexed onto the connector, and where each area lives in FRAM.
package boards

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"pinshadow/bus"
	"pinshadow/engine"
	"pinshadow/fram"
	"pinshadow/shadow"
)

type Family struct {
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`

	// primary shadow: the host's battery-backed working RAM.
	RegionBase   uint32       `json:"regionBase"`
	RegionLength int          `json:"regionLength"`
	Geometry     bus.Geometry `json:"geometry"`
	Window       bus.Window   `json:"window"`

	// secondary register file (clock shadow); zero length for boards
	// without one.
	SecondaryBase     uint32       `json:"secondaryBase"`
	SecondaryLength   int          `json:"secondaryLength"`
	SecondaryGeometry bus.Geometry `json:"secondaryGeometry"`
	SecondaryWindow   bus.Window   `json:"secondaryWindow"`

	Checksum *shadow.Checksum `json:"checksum,omitempty"`
	Layout   fram.Layout      `json:"layout"`

	// Probe bounds the boot activity probe.
	Probe engine.ProbeConfig `json:"probe"`
	// Settle is the classifier's strobe re-check delay.
	Settle time.Duration `json:"settle"`
}

func (f *Family) HasSecondary() bool { return f.SecondaryLength > 0 }

// NewRegions allocates the family's shadow regions; secondary is nil for
// boards without a register file.
func (f *Family) NewRegions(opts ...shadow.Option) (primary, secondary *shadow.Region) {
	primary = shadow.New(f.RegionBase, f.RegionLength, opts...)
	if f.HasSecondary() {
		secondary = shadow.New(f.SecondaryBase, f.SecondaryLength)
	}
	return
}

func (f *Family) EngineConfig() engine.Config {
	return engine.Config{
		Geometry:          f.Geometry,
		SecondaryGeometry: f.SecondaryGeometry,
		Settle:            f.Settle,
	}
}

func (f *Family) HostConfig() bus.HostConfig {
	return bus.HostConfig{
		Geometry:          f.Geometry,
		SecondaryGeometry: f.SecondaryGeometry,
		Windows:           [2]bus.Window{f.Window, f.SecondaryWindow},
	}
}

func (f *Family) Validate() error {
	if f.Name == "" {
		return fmt.Errorf("boards: family has no name")
	}
	if err := f.Geometry.Validate(); err != nil {
		return fmt.Errorf("boards: %s: %w", f.Name, err)
	}
	if f.Geometry.Size() != f.RegionLength {
		return fmt.Errorf("boards: %s: geometry decodes %d bytes, region is %d", f.Name, f.Geometry.Size(), f.RegionLength)
	}
	if f.Window.Length > f.RegionLength {
		return fmt.Errorf("boards: %s: window %d bytes exceeds region", f.Name, f.Window.Length)
	}
	if f.HasSecondary() {
		if err := f.SecondaryGeometry.Validate(); err != nil {
			return fmt.Errorf("boards: %s: secondary: %w", f.Name, err)
		}
		if f.SecondaryGeometry.Size() != f.SecondaryLength {
			return fmt.Errorf("boards: %s: secondary geometry decodes %d bytes, register file is %d", f.Name, f.SecondaryGeometry.Size(), f.SecondaryLength)
		}
	}
	if f.Layout.ShadowLength != f.RegionLength {
		return fmt.Errorf("boards: %s: FRAM mirror %d bytes, region is %d", f.Name, f.Layout.ShadowLength, f.RegionLength)
	}
	if err := f.Layout.Validate(); err != nil {
		return fmt.Errorf("boards: %s: %w", f.Name, err)
	}
	if f.Checksum != nil {
		if err := f.Checksum.Validate(f.RegionLength); err != nil {
			return fmt.Errorf("boards: %s: %w", f.Name, err)
		}
	}
	return nil
}

var (
	familiesMu sync.RWMutex
	families   = make(map[string]Family)
)

// Register makes a board family available by its name.
// If Register is called twice with the same name or the family does not
// validate, it panics.
func Register(f Family) {
	familiesMu.Lock()
	defer familiesMu.Unlock()
	if err := f.Validate(); err != nil {
		panic(err.Error())
	}
	if _, dup := families[f.Name]; dup {
		panic("boards: Register called twice for family " + f.Name)
	}
	families[f.Name] = f
}

// Names returns a sorted list of the registered family names.
func Names() []string {
	familiesMu.RLock()
	defer familiesMu.RUnlock()
	list := make([]string, 0, len(families))
	for name := range families {
		list = append(list, name)
	}
	sort.Strings(list)
	return list
}

// ByName returns a copy of the named family that the caller may adjust.
func ByName(name string) (Family, bool) {
	familiesMu.RLock()
	defer familiesMu.RUnlock()
	f, ok := families[name]
	if ok && f.Checksum != nil {
		c := *f.Checksum
		f.Checksum = &c
	}
	return f, ok
}

func (f *Family) ConfigurationKey() string { return "family" }

func (f *Family) ConfigurationModel() interface{} { return f }

// LoadConfiguration adjusts the family in place; the result must still
// validate.
func (f *Family) LoadConfiguration(config json.RawMessage) error {
	next := *f
	if f.Checksum != nil {
		c := *f.Checksum
		next.Checksum = &c
	}
	if err := json.Unmarshal(config, &next); err != nil {
		return err
	}
	if err := next.Validate(); err != nil {
		return err
	}
	*f = next
	return nil
}
