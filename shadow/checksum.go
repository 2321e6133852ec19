package shadow

import (
	"encoding/binary"
	"fmt"
)

// Checksum describes the one integrity field the host firmware keeps in its
// own RAM: a big-endian 16-bit value at Field such that Field == 0xFFFF
// minus the byte sum over [Start, End).
type Checksum struct {
	Start int `json:"start"`
	End   int `json:"end"`
	Field int `json:"field"`
}

func (c Checksum) Validate(length int) error {
	if c.Start < 0 || c.End > length || c.Start >= c.End {
		return fmt.Errorf("shadow: checksum range [%d, %d) invalid for length %d", c.Start, c.End, length)
	}
	if c.Field < 0 || c.Field+2 > length {
		return fmt.Errorf("shadow: checksum field %d invalid for length %d", c.Field, length)
	}
	if c.Field+2 > c.Start && c.Field < c.End {
		return fmt.Errorf("shadow: checksum field %d overlaps summed range [%d, %d)", c.Field, c.Start, c.End)
	}
	return nil
}

func (c Checksum) Compute(r *Region) uint16 {
	sum := uint16(0)
	for i := c.Start; i < c.End; i++ {
		sum += uint16(r.Load(i))
	}
	return 0xFFFF - sum
}

func (c Checksum) Stored(r *Region) uint16 {
	return uint16(r.Load(c.Field))<<8 | uint16(r.Load(c.Field+1))
}

// Repair rewrites the field when it disagrees with the range. It reports
// whether anything changed. Only valid before the region is armed.
func (c Checksum) Repair(r *Region) (repaired bool, stored, computed uint16, err error) {
	if err = c.Validate(r.Len()); err != nil {
		return
	}
	stored, computed = c.Stored(r), c.Compute(r)
	if stored == computed {
		return
	}

	var field [2]byte
	binary.BigEndian.PutUint16(field[:], computed)
	if err = r.Restore(c.Field, field[:]); err != nil {
		return
	}
	repaired = true
	return
}
