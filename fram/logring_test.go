package fram_test

import (
	"strings"
	"testing"

	"pinshadow/fram"
	"pinshadow/fram/mock"
)

func TestLogRing(t *testing.T) {
	chip := mock.NewChip(mock.DefaultSize)
	layout := fram.Layout{ShadowBase: 0, ShadowLength: 0x100, LogBase: 0x200, LogLength: 2 + 16}
	dev := fram.NewDevice(chip, layout)

	ring, err := fram.OpenLogRing(dev)
	if err != nil {
		t.Fatal(err)
	}
	if ring.Size() != 16 {
		t.Errorf("Size() = %d, want 16", ring.Size())
	}
	if err = ring.Append([]byte("boot\n")); err != nil {
		t.Fatal(err)
	}
	got, _ := ring.Contents()
	if string(got) != "boot\n" {
		t.Errorf("Contents() = %q, want %q", got, "boot\n")
	}

	// wrap: 5 + 14 > 16, oldest bytes go first.
	ring.Commit([]byte("restore done!\n"))
	got, _ = ring.Contents()
	if want := "t\nrestore done!\n"; string(got) != want {
		t.Errorf("Contents() after wrap = %q, want %q", got, want)
	}

	// the head survives a reopen:
	reopened, err := fram.OpenLogRing(dev)
	if err != nil {
		t.Fatal(err)
	}
	again, _ := reopened.Contents()
	if string(again) != string(got) {
		t.Errorf("reopened Contents() = %q, want %q", again, got)
	}

	// an oversized line keeps only its tail:
	_ = reopened.Append([]byte(strings.Repeat("x", 20) + "tail\n"))
	got, _ = reopened.Contents()
	if !strings.HasSuffix(string(got), "tail\n") || len(got) != 16 {
		t.Errorf("Contents() after oversized append = %q", got)
	}
}

func TestLogRing_NoArea(t *testing.T) {
	dev := fram.NewDevice(mock.NewChip(mock.DefaultSize), fram.Layout{ShadowLength: 0x100})
	if _, err := fram.OpenLogRing(dev); err == nil {
		t.Error("OpenLogRing() without a log area succeeded")
	}
}
