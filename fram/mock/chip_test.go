package mock

import (
	"errors"
	"testing"

	"github.com/go-test/deep"

	"pinshadow/fram"
)

func TestChip_WriteNeedsEnable(t *testing.T) {
	c := NewChip(0x100)

	if err := c.Exchange([]byte{byte(fram.OpWRITE), 0, 4, 0x11}, nil); err != nil {
		t.Fatal(err)
	}
	if got := c.Peek(4, 1)[0]; got != 0 {
		t.Fatalf("write without WREN landed: %#02x", got)
	}

	_ = c.Exchange([]byte{byte(fram.OpWREN)}, nil)
	_ = c.Exchange([]byte{byte(fram.OpWRITE), 0, 4, 0x11, 0x22}, nil)
	if diff := deep.Equal(c.Peek(4, 2), []byte{0x11, 0x22}); diff != nil {
		t.Error(diff)
	}

	// the latch cleared itself:
	_ = c.Exchange([]byte{byte(fram.OpWRITE), 0, 4, 0x99}, nil)
	if got := c.Peek(4, 1)[0]; got != 0x11 {
		t.Errorf("second write without WREN landed: %#02x", got)
	}
}

func TestChip_AddressWraps(t *testing.T) {
	c := NewChip(0x100)
	_ = c.Exchange([]byte{byte(fram.OpWREN)}, nil)
	_ = c.Exchange([]byte{byte(fram.OpWRITE), 0x01, 0xFF, 0xA1, 0xA2}, nil)

	rsp := make([]byte, 2)
	if err := c.Exchange([]byte{byte(fram.OpREAD), 0x00, 0xFF}, rsp); err != nil {
		t.Fatal(err)
	}
	if diff := deep.Equal(rsp, []byte{0xA1, 0xA2}); diff != nil {
		t.Error(diff)
	}
}

func TestChip_BlockProtect(t *testing.T) {
	tests := []struct {
		name      string
		status    byte
		protected []uint16
		open      []uint16
	}{
		{"none", 0, nil, []uint16{0x00, 0xFF}},
		{"upper quarter", fram.StatusBP0, []uint16{0xC0, 0xFF}, []uint16{0x00, 0xBF}},
		{"upper half", fram.StatusBP1, []uint16{0x80, 0xFF}, []uint16{0x00, 0x7F}},
		{"all", fram.StatusBP0 | fram.StatusBP1, []uint16{0x00, 0xFF}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewChip(0x100)
			c.SetStatus(tt.status)
			poke := func(addr uint16) {
				_ = c.Exchange([]byte{byte(fram.OpWREN)}, nil)
				_ = c.Exchange([]byte{byte(fram.OpWRITE), byte(addr >> 8), byte(addr), 0x5A}, nil)
			}
			for _, a := range tt.protected {
				poke(a)
				if c.Peek(a, 1)[0] != 0 {
					t.Errorf("$%02x written under protection", a)
				}
			}
			for _, a := range tt.open {
				poke(a)
				if c.Peek(a, 1)[0] != 0x5A {
					t.Errorf("$%02x not written", a)
				}
			}
		})
	}
}

func TestChip_StatusRegister(t *testing.T) {
	c := NewChip(0x100)
	rsp := make([]byte, 1)

	_ = c.Exchange([]byte{byte(fram.OpWREN)}, nil)
	_ = c.Exchange([]byte{byte(fram.OpRDSR)}, rsp)
	if rsp[0] != fram.StatusWEL {
		t.Errorf("RDSR after WREN = %#02x, want %#02x", rsp[0], fram.StatusWEL)
	}

	_ = c.Exchange([]byte{byte(fram.OpWRSR), fram.StatusBP1 | fram.StatusWPEN | 0x01}, nil)
	_ = c.Exchange([]byte{byte(fram.OpRDSR)}, rsp)
	if want := byte(fram.StatusBP1 | fram.StatusWPEN); rsp[0] != want {
		t.Errorf("RDSR after WRSR = %#02x, want %#02x", rsp[0], want)
	}

	// WRSR without WREN is ignored:
	_ = c.Exchange([]byte{byte(fram.OpWRSR), 0}, nil)
	_ = c.Exchange([]byte{byte(fram.OpRDSR)}, rsp)
	if want := byte(fram.StatusBP1 | fram.StatusWPEN); rsp[0] != want {
		t.Errorf("RDSR after unlatched WRSR = %#02x, want %#02x", rsp[0], want)
	}
}

func TestChip_Failures(t *testing.T) {
	c := NewChip(0x100)
	c.FailNext(fram.OpREAD, 1)

	rsp := make([]byte, 4)
	if err := c.Exchange([]byte{byte(fram.OpREAD), 0, 0}, rsp); !errors.Is(err, ErrInjected) {
		t.Errorf("first READ error = %v, want %v", err, ErrInjected)
	}
	if err := c.Exchange([]byte{byte(fram.OpREAD), 0, 0}, rsp); err != nil {
		t.Errorf("second READ error = %v", err)
	}

	c.ShortReads(true)
	if err := c.Exchange([]byte{byte(fram.OpREAD), 0, 0}, rsp); !errors.Is(err, fram.ErrShortResponse) {
		t.Errorf("short READ error = %v, want %v", err, fram.ErrShortResponse)
	}
	c.ShortReads(false)

	c.FailAfter(1)
	if err := c.Exchange([]byte{byte(fram.OpWREN)}, nil); err != nil {
		t.Errorf("exchange before the cutoff failed: %v", err)
	}
	if err := c.Exchange([]byte{byte(fram.OpWREN)}, nil); !errors.Is(err, ErrInjected) {
		t.Errorf("exchange after the cutoff error = %v, want %v", err, ErrInjected)
	}

	_ = c.Close()
	c.FailAfter(-1)
	if err := c.Exchange([]byte{byte(fram.OpWREN)}, nil); !errors.Is(err, ErrClosed) {
		t.Errorf("exchange on closed chip error = %v, want %v", err, ErrClosed)
	}

	if got := len(c.Exchanges()); got != 5 {
		t.Errorf("%d exchanges recorded, want 5", got)
	}
}
