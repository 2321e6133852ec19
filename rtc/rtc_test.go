package rtc

import (
	"errors"
	"testing"
	"time"

	"github.com/beevik/ntp"
	"github.com/go-test/deep"

	"pinshadow/shadow"
	"pinshadow/util"
)

func TestEncode(t *testing.T) {
	got := Encode(time.Date(2024, time.February, 29, 23, 59, 58, 0, time.UTC))
	want := [Size]byte{0x07, 0xE8, 2, 29, byte(time.Thursday), 23, 59, 58}
	if diff := deep.Equal(got, want); diff != nil {
		t.Error(diff)
	}
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		regs    []byte
		want    time.Time
		wantErr bool
	}{
		{"ok", []byte{0x07, 0xCF, 12, 31, 5, 23, 59, 59}, time.Date(1999, 12, 31, 23, 59, 59, 0, time.UTC), false},
		{"month zero", []byte{0x07, 0xCF, 0, 1, 0, 0, 0, 0}, time.Time{}, true},
		{"feb 30", []byte{0x07, 0xE8, 2, 30, 0, 0, 0, 0}, time.Time{}, true},
		{"hour 24", []byte{0x07, 0xE8, 1, 1, 0, 24, 0, 0}, time.Time{}, true},
		{"short", []byte{0x07, 0xE8, 1}, time.Time{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode(tt.regs, time.UTC)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Decode() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalid) {
				t.Errorf("Decode() error = %v, want %v", err, ErrInvalid)
			}
			if !got.Equal(tt.want) {
				t.Errorf("Decode() = %v, want %v", got, tt.want)
			}
		})
	}
}

func fixedClock(t *testing.T, responses map[string]*ntp.Response) *Clock {
	util.CaptureLog(t)
	local := time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC)
	c := NewClock("bad.example", "good.example")
	c.Location = time.UTC
	c.now = func() time.Time { return local }
	c.query = func(host string) (*ntp.Response, error) {
		if rsp, ok := responses[host]; ok {
			return rsp, nil
		}
		return nil, errors.New("unreachable")
	}
	return c
}

func TestClock_SeedFromNTP(t *testing.T) {
	c := fixedClock(t, map[string]*ntp.Response{
		"good.example": {Stratum: 2, ClockOffset: 90 * time.Second},
	})
	regs := shadow.New(0, Size)

	if err := c.Seed(regs); err != nil {
		t.Fatal(err)
	}
	if c.Server() != "good.example" {
		t.Errorf("Server() = %q", c.Server())
	}

	got := make([]byte, Size)
	regs.Snapshot(0, got)
	when, err := Decode(got, time.UTC)
	if err != nil {
		t.Fatal(err)
	}
	if want := time.Date(2025, time.June, 1, 12, 1, 30, 0, time.UTC); !when.Equal(want) {
		t.Errorf("seeded %v, want %v", when, want)
	}
}

func TestClock_SeedFallsBackToLocal(t *testing.T) {
	c := fixedClock(t, map[string]*ntp.Response{
		// kiss-of-death:
		"good.example": {Stratum: 0, KissCode: "RATE"},
	})
	regs := shadow.New(0, Size)
	if err := c.Seed(regs); err != nil {
		t.Fatal(err)
	}
	got := make([]byte, Size)
	regs.Snapshot(0, got)
	when, _ := Decode(got, time.UTC)
	if want := time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC); !when.Equal(want) {
		t.Errorf("seeded %v, want %v", when, want)
	}
}

func TestClock_SeedArmedRegion(t *testing.T) {
	c := fixedClock(t, nil)
	c.Hosts = nil
	regs := shadow.New(0, Size)
	w, _ := regs.Arm()
	defer w.Release()

	if err := c.Seed(regs); !errors.Is(err, shadow.ErrArmed) {
		t.Errorf("Seed() error = %v, want %v", err, shadow.ErrArmed)
	}
}

func TestClock_RateLimit(t *testing.T) {
	var queries int
	c := fixedClock(t, nil)
	c.query = func(host string) (*ntp.Response, error) {
		queries++
		return &ntp.Response{Stratum: 1}, nil
	}
	c.Sync()
	c.Sync()
	if queries != 1 {
		t.Errorf("%d queries inside the rate limit, want 1", queries)
	}
}
