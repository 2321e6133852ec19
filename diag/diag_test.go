package diag

import (
	"errors"
	"strings"
	"testing"

	"github.com/go-test/deep"
)

func TestHot(t *testing.T) {
	counts := []uint32{0, 5, 1, 9, 5, 0, 2}
	got := Hot(counts, 3)
	want := []Hotspot{{3, 9}, {1, 5}, {4, 5}}
	if diff := deep.Equal(got, want); diff != nil {
		t.Error(diff)
	}
	if got := Hot([]uint32{0, 0}, 3); len(got) != 0 {
		t.Errorf("Hot() of idle counters = %v", got)
	}
}

func TestSprint(t *testing.T) {
	counts := make([]uint32, 64)
	for i := range counts {
		counts[i] = uint32(i % 8)
	}
	out, err := Sprint(counts, 4, 20)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out, "56 of 64 addresses written\n") {
		t.Errorf("Sprint() header:\n%s", out)
	}
	if strings.Count(out, "\n") < 2 {
		t.Errorf("Sprint() drew no buckets:\n%s", out)
	}
}

func TestSprint_Idle(t *testing.T) {
	out, err := Sprint(make([]uint32, 16), 4, 20)
	if err != nil {
		t.Fatal(err)
	}
	if out != "no writes in 16 addresses\n" {
		t.Errorf("Sprint() = %q", out)
	}
	if _, err = Sprint(nil, 4, 20); !errors.Is(err, ErrNoActivity) {
		t.Errorf("Sprint(nil) error = %v, want %v", err, ErrNoActivity)
	}
}

func TestHot_NonPositive(t *testing.T) {
	for _, n := range []int{0, -1, -100} {
		if got := Hot([]uint32{3, 1, 2}, n); got != nil {
			t.Errorf("Hot(n=%d) = %v, want none", n, got)
		}
	}
}

func TestSprint_BadScale(t *testing.T) {
	tests := []struct {
		name        string
		bins, width int
	}{
		{"zero bins", 0, 20},
		{"negative bins", -3, 20},
		{"zero width", 4, 0},
		{"negative width", 4, -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Sprint([]uint32{1, 2}, tt.bins, tt.width); !errors.Is(err, ErrScale) {
				t.Errorf("Sprint() error = %v, want %v", err, ErrScale)
			}
		})
	}
}
