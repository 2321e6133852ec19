// Package bridge reaches the FRAM through a USB-serial SPI bridge. Each
// exchange is sent as a small request header followed by the frame; the
// bridge asserts select, waits the settle delay, clocks the frame out and
// the response in, releases select and answers with a status byte and the
// response bytes.
package bridge

import (
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"

	"pinshadow/fram"
)

const driverName = "bridge"

const (
	reqMagic = 'S'
	rspOK    = 0x00

	maxTransfer = 0xFF
)

// settle delay the bridge applies after asserting select, in microseconds:
const settleMicros = 5

var (
	ErrNoBridgeFound = errors.New("bridge: no device found among serial ports")
	ErrTooLong       = errors.New("bridge: transfer longer than 255 bytes")

	baudRates = []int{
		921600,
		460800,
		230400,
		115200,
		57600,
	}
)

// USB identity of the bridge firmware:
const (
	bridgeVID = "2E8A"
	bridgePID = "000A"
)

type Driver struct{}

func (d *Driver) DisplayName() string {
	return "USB SPI bridge"
}

func DetectDevice() (portName string, err error) {
	var ports []*enumerator.PortDetails

	ports, err = enumerator.GetDetailedPortsList()
	if err != nil {
		return
	}

	for _, port := range ports {
		if !port.IsUSB {
			continue
		}
		if strings.EqualFold(port.VID, bridgeVID) && strings.EqualFold(port.PID, bridgePID) {
			portName = port.Name
			return
		}
	}

	return
}

// Open accepts "port" or "port;baud"; an empty port is detected.
func (d *Driver) Open(name string) (fram.Transport, error) {
	var err error

	parts := strings.Split(name, ";")

	portName := parts[0]
	if portName == "" {
		portName, err = DetectDevice()
		if err != nil {
			return nil, err
		}
	}
	if portName == "" {
		return nil, ErrNoBridgeFound
	}

	baudRequest := baudRates[0]
	if len(parts) > 1 {
		if n, e := strconv.Atoi(parts[1]); e == nil {
			baudRequest = n
		}
	}

	// Try the common baud rates in descending order:
	f := serial.Port(nil)
	for _, baud := range baudRates {
		if baud > baudRequest {
			continue
		}

		f, err = serial.Open(portName, &serial.Mode{
			BaudRate: baud,
			DataBits: 8,
			Parity:   serial.NoParity,
			StopBits: serial.OneStopBit,
		})
		if err == nil {
			log.Printf("bridge: opened %s at %d baud\n", portName, baud)
			break
		}
	}
	if err != nil {
		return nil, fmt.Errorf("bridge: failed to open serial port at any baud rate: %w", err)
	}
	if f == nil {
		return nil, fmt.Errorf("bridge: no baud rate at or below %d", baudRequest)
	}

	if err = f.SetDTR(true); err != nil {
		f.Close()
		return nil, fmt.Errorf("bridge: failed to set DTR: %w", err)
	}

	return &Conn{f: f}, nil
}

type Conn struct {
	mu sync.Mutex
	f  serial.Port
}

func sendSerial(f serial.Port, buf []byte) error {
	sent := 0
	for sent < len(buf) {
		n, e := f.Write(buf[sent:])
		if e != nil {
			return e
		}
		sent += n
	}
	return nil
}

func recvSerial(f serial.Port, rsp []byte, expected int) error {
	o := 0
	for o < expected {
		n, err := f.Read(rsp[o:expected])
		if err != nil {
			if o > 0 {
				return &fram.ShortResponseError{Got: o, Want: expected, Err: err}
			}
			return err
		}
		if n <= 0 {
			return &fram.ShortResponseError{Got: o, Want: expected}
		}
		o += n
	}
	return nil
}

func encodeRequest(frame []byte, rspLen int) ([]byte, error) {
	if len(frame) > maxTransfer || rspLen > maxTransfer {
		return nil, ErrTooLong
	}
	req := make([]byte, 0, 4+len(frame))
	req = append(req, reqMagic, settleMicros, byte(len(frame)), byte(rspLen))
	req = append(req, frame...)
	return req, nil
}

func (c *Conn) Exchange(frame []byte, rsp []byte) error {
	req, err := encodeRequest(frame, len(rsp))
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err = sendSerial(c.f, req); err != nil {
		return err
	}

	var status [1]byte
	if err = recvSerial(c.f, status[:], 1); err != nil {
		return err
	}
	if status[0] != rspOK {
		return fmt.Errorf("bridge: status %#02x", status[0])
	}
	if len(rsp) == 0 {
		return nil
	}
	return recvSerial(c.f, rsp, len(rsp))
}

func (c *Conn) Close() (err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Clear DTR (ignore any errors since we're closing):
	c.f.SetDTR(false)

	err = c.f.Close()
	if err != nil {
		return fmt.Errorf("bridge: could not close serial port: %w", err)
	}
	return
}

func init() {
	fram.Register(driverName, &Driver{})
}
