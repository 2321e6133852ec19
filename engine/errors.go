package engine

import (
	"errors"
	"fmt"
)

var (
	ErrArmed         = errors.New("engine: already armed")
	ErrNotArmed      = errors.New("engine: not armed")
	ErrExhausted     = errors.New("engine: no free resource")
	ErrBusContention = errors.New("engine: implausible address-line activity; bus contention")
)

// EngineFault is returned when the engine cannot be armed with its full
// fixed topology. It is fatal: nothing is left running.
type EngineFault struct {
	Stage string
	Want  []int
	Got   []int
	Err   error
}

func (e *EngineFault) Unwrap() error { return e.Err }
func (e *EngineFault) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("engine: arm fault at %s: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("engine: arm fault at %s: claimed %v, wired for %v", e.Stage, e.Got, e.Want)
}
