package shadow

import (
	"errors"
	"testing"
)

func TestChecksum_Repair(t *testing.T) {
	c := Checksum{Start: 0, End: 4, Field: 6}

	r := New(0, 8)
	_ = r.Restore(0, []byte{0x10, 0x20, 0x30, 0x40})

	repaired, stored, computed, err := c.Repair(r)
	if err != nil {
		t.Fatal(err)
	}
	if !repaired {
		t.Fatal("expected a repair on a zeroed field")
	}
	if got, want := computed, uint16(0xFFFF-0xA0); got != want {
		t.Errorf("computed = %#04x, want %#04x", got, want)
	}
	if stored != 0 {
		t.Errorf("stored = %#04x, want 0", stored)
	}
	if got, want := c.Stored(r), computed; got != want {
		t.Errorf("field after repair = %#04x, want %#04x", got, want)
	}

	// consistent now, so a second pass does nothing:
	if repaired, _, _, _ = c.Repair(r); repaired {
		t.Error("second Repair() changed a consistent field")
	}
}

func TestChecksum_RepairWhileArmed(t *testing.T) {
	c := Checksum{Start: 0, End: 4, Field: 6}
	r := New(0, 8)
	_ = r.Restore(0, []byte{1})
	_, _ = r.Arm()

	if _, _, _, err := c.Repair(r); !errors.Is(err, ErrArmed) {
		t.Errorf("Repair() error = %v, want %v", err, ErrArmed)
	}
}

func TestChecksum_Validate(t *testing.T) {
	tests := []struct {
		name    string
		c       Checksum
		wantErr bool
	}{
		{"ok", Checksum{Start: 0, End: 100, Field: 100}, false},
		{"field overlaps range", Checksum{Start: 0, End: 100, Field: 99}, true},
		{"range past end", Checksum{Start: 0, End: 300, Field: 0}, true},
		{"field past end", Checksum{Start: 0, End: 10, Field: 255}, true},
		{"empty range", Checksum{Start: 10, End: 10, Field: 0}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.c.Validate(256); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
