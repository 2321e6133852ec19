package fram

import (
	"errors"
	"fmt"
)

var (
	ErrShortResponse = errors.New("fram: short response")
	ErrAddressRange  = errors.New("fram: access crosses the end of the address space")
)

// ShortResponseError is a response cut off after Got of Want bytes. The
// first Got bytes of the response buffer hold what the chip sent.
type ShortResponseError struct {
	Got, Want int
	Err       error
}

func (e *ShortResponseError) Is(target error) bool { return target == ErrShortResponse }
func (e *ShortResponseError) Unwrap() error        { return e.Err }
func (e *ShortResponseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fram: short response: %d of %d bytes: %v", e.Got, e.Want, e.Err)
	}
	return fmt.Sprintf("fram: short response: %d of %d bytes", e.Got, e.Want)
}

// Received is the number of valid response bytes behind err: Got for a
// short response, otherwise zero.
func Received(err error) int {
	var se *ShortResponseError
	if errors.As(err, &se) {
		return se.Got
	}
	return 0
}

// TransportError is a single failed exchange. The driver never retries.
type TransportError struct {
	Op      Opcode
	Address uint16
	wrapped error
}

func (e *TransportError) Unwrap() error { return e.wrapped }
func (e *TransportError) Error() string {
	return fmt.Sprintf("fram: %s $%04x: %v", e.Op, e.Address, e.wrapped)
}
