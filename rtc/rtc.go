// Package rtc keeps the secondary register file: the host's view of the
// wall clock. The board seeds it once before arming; from then on the host
// owns it through the bus.
package rtc

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/beevik/ntp"

	"pinshadow/shadow"
)

// Size is the register file length. Layout, all binary:
//
//	0-1 year (big-endian)
//	2   month 1-12
//	3   day 1-31
//	4   weekday, 0 = Sunday
//	5   hour
//	6   minute
//	7   second
const Size = 8

var ErrInvalid = errors.New("rtc: register file does not hold a valid time")

func Encode(t time.Time) (regs [Size]byte) {
	binary.BigEndian.PutUint16(regs[0:2], uint16(t.Year()))
	regs[2] = byte(t.Month())
	regs[3] = byte(t.Day())
	regs[4] = byte(t.Weekday())
	regs[5] = byte(t.Hour())
	regs[6] = byte(t.Minute())
	regs[7] = byte(t.Second())
	return
}

// Decode reads the registers back as a time in loc. The weekday register
// is not checked; the host recomputes it as it pleases.
func Decode(regs []byte, loc *time.Location) (time.Time, error) {
	if len(regs) < Size {
		return time.Time{}, fmt.Errorf("%w: %d bytes", ErrInvalid, len(regs))
	}
	year := int(binary.BigEndian.Uint16(regs[0:2]))
	month, day := int(regs[2]), int(regs[3])
	hour, minute, sec := int(regs[5]), int(regs[6]), int(regs[7])
	if month < 1 || month > 12 || day < 1 || day > 31 || hour > 23 || minute > 59 || sec > 59 {
		return time.Time{}, fmt.Errorf("%w: %v", ErrInvalid, regs[:Size])
	}
	t := time.Date(year, time.Month(month), day, hour, minute, sec, 0, loc)
	if t.Day() != day {
		// e.g. February 30th normalized into March
		return time.Time{}, fmt.Errorf("%w: %04d-%02d-%02d", ErrInvalid, year, month, day)
	}
	return t, nil
}

// cannot query NTP servers faster than once per:
const rateLimit = 2 * time.Second

type queryFunc func(host string) (*ntp.Response, error)

func ntpQuery(host string) (*ntp.Response, error) {
	return ntp.QueryWithOptions(host, ntp.QueryOptions{Timeout: 5 * time.Second})
}

// Clock tracks the offset between the local clock and NTP time.
type Clock struct {
	Hosts    []string
	Location *time.Location

	query   queryFunc
	now     func() time.Time
	offset  time.Duration
	server  string
	queried time.Time
}

func NewClock(hosts ...string) *Clock {
	return &Clock{
		Hosts:    hosts,
		Location: time.Local,
		query:    ntpQuery,
		now:      time.Now,
	}
}

func (c *Clock) Offset() time.Duration { return c.offset }
func (c *Clock) Server() string        { return c.server }

// Now is local time corrected by the last good NTP offset.
func (c *Clock) Now() time.Time {
	return c.now().Add(c.offset).In(c.Location)
}

// Sync queries each host in turn until one answers with a usable stratum.
func (c *Clock) Sync() bool {
	if !c.queried.IsZero() && c.now().Sub(c.queried) < rateLimit {
		return c.server != ""
	}

	for _, host := range c.Hosts {
		log.Printf("rtc: ntp query: %s\n", host)
		response, err := c.query(host)
		c.queried = c.now()
		if err != nil {
			log.Printf("rtc: ntp query error: %s: %v\n", host, err)
			continue
		}
		if response.Stratum == 0 {
			log.Printf("rtc: ntp query error: %s: stratum=%v, kissCode=%v\n", host, response.Stratum, response.KissCode)
			continue
		}
		c.offset = response.ClockOffset
		c.server = host
		log.Printf("rtc: ntp result: %s; %v\n", host, c.offset)
		return true
	}
	return false
}

// Seed writes the current time into the register file. It must run before
// the engine takes the region; an unreachable NTP server only degrades the
// seed to the local clock.
func (c *Clock) Seed(regs *shadow.Region) error {
	if regs.Len() < Size {
		return fmt.Errorf("rtc: register file is %d bytes, need %d", regs.Len(), Size)
	}
	if len(c.Hosts) > 0 && !c.Sync() {
		log.Printf("rtc: no ntp server answered; seeding from the local clock\n")
	}
	now := c.Now()
	enc := Encode(now)
	if err := regs.Restore(0, enc[:]); err != nil {
		return fmt.Errorf("rtc: seed: %w", err)
	}
	log.Printf("rtc: seeded %s\n", now.Format(time.DateTime))
	return nil
}
