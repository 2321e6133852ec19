// Package diag summarizes the per-address write activity counters: which
// parts of the host's RAM are hot, and how activity is spread.
package diag

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/aybabtme/uniplot/histogram"
)

var (
	ErrNoActivity = errors.New("diag: activity counters are not enabled")
	ErrScale      = errors.New("diag: bins and width must be positive")
)

// Fprint draws a text histogram of how many addresses saw how many writes.
// Addresses never written are left out so they do not swamp the scale.
func Fprint(w io.Writer, counts []uint32, bins, width int) error {
	if bins < 1 || width < 1 {
		return fmt.Errorf("%w: bins %d, width %d", ErrScale, bins, width)
	}
	if len(counts) == 0 {
		return ErrNoActivity
	}
	data := make([]float64, 0, len(counts))
	for _, c := range counts {
		if c > 0 {
			data = append(data, float64(c))
		}
	}
	if len(data) == 0 {
		_, err := fmt.Fprintf(w, "no writes in %d addresses\n", len(counts))
		return err
	}

	h := histogram.Hist(bins, data)
	if _, err := fmt.Fprintf(w, "%d of %d addresses written\n", len(data), len(counts)); err != nil {
		return err
	}
	return histogram.Fprint(w, h, histogram.Linear(width))
}

func Sprint(counts []uint32, bins, width int) (string, error) {
	var b bytes.Buffer
	err := Fprint(&b, counts, bins, width)
	return b.String(), err
}

type Hotspot struct {
	Offset int    `json:"offset"`
	Writes uint32 `json:"writes"`
}

// Hot returns the n most written addresses, busiest first; ties go to the
// lower offset. n <= 0 asks for none.
func Hot(counts []uint32, n int) []Hotspot {
	if n <= 0 {
		return nil
	}
	spots := make([]Hotspot, 0, len(counts))
	for i, c := range counts {
		if c > 0 {
			spots = append(spots, Hotspot{Offset: i, Writes: c})
		}
	}
	sort.SliceStable(spots, func(i, j int) bool { return spots[i].Writes > spots[j].Writes })
	if len(spots) > n {
		spots = spots[:n]
	}
	return spots
}
