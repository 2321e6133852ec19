package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"pinshadow/boards"
	"pinshadow/boot"
	"pinshadow/config"
	"pinshadow/debugws"
	"pinshadow/fram"
	"pinshadow/harness"
	"pinshadow/rtc"
	"pinshadow/util"
)

// include these FRAM drivers:
import (
	_ "pinshadow/fram/bridge"
	_ "pinshadow/fram/mock"
)

var logFile *os.File

// init is called first before all other package inits so it is best to set up log here:
func init() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.LUTC)

	var (
		path string
		err  error
	)
	logFile, path, err = util.CreateLogFile("pinshadow")
	if err != nil {
		log.Printf("could not open log file '%s' for writing\n", path)
		return
	}
	log.Printf("logging to '%s'\n", path)
	log.SetOutput(util.NewPanicSafeLogger(logFile))
}

func main() {
	defer func() {
		if err := recover(); err != nil {
			util.LogPanic(err)
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		log.Printf("pinshadow: %v\n", err)
		_ = util.FlushLogger()
		os.Exit(1)
	}
	_ = util.FlushLogger()
}

func run() error {
	cfg := config.FromEnv()
	family, ok := boards.ByName(cfg.Family)
	if !ok {
		log.Printf("pinshadow: unknown board family %q; known: %v\n", cfg.Family, boards.Names())
		return errors.New("no board family")
	}
	if err := config.Apply(cfg.Path, cfg, &family); err != nil {
		return err
	}
	log.Printf("pinshadow: board family %s (%s), FRAM driver %s, tick %v\n", family.Name, family.DisplayName, cfg.FramDriver, cfg.Tick)

	transport, err := fram.Open(cfg.FramDriver, cfg.FramPort)
	if err != nil {
		return err
	}
	h := harness.New(family, harness.WithTransport(transport), harness.WithTick(cfg.Tick))
	defer h.Device.Close()

	// from here on every log line also lands in the FRAM diagnostic ring:
	ring, err := fram.OpenLogRing(h.Device)
	if err != nil {
		log.Printf("pinshadow: no diagnostic log: %v\n", err)
	} else if logFile != nil {
		cl := &util.CommitLogger{Committer: ring.Commit, LineMode: true}
		// no line longer than the ring survives anyway:
		cl.Reserve(ring.Size())
		log.SetOutput(util.NewPanicSafeLogger(logFile, cl))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	indicator := &boot.LogIndicator{}
	seq := &boot.Sequencer{
		Pins:      h.Host,
		Device:    h.Device,
		Primary:   h.Primary,
		Secondary: h.Secondary,
		Checksum:  family.Checksum,
		Engine:    h.Engine,
		Probe:     family.Probe,
		Indicator: indicator,
		Offline:   cfg.Offline,
	}
	if h.Secondary != nil {
		seq.Clock = rtc.NewClock(cfg.NTPHosts()...)
	}

	// a fatal boot fault leaves the listener up so the fault can be read:
	if _, err = seq.Boot(ctx); err != nil {
		log.Printf("pinshadow: boot: %v\n", err)
	}
	if h.Engine.IsArmed() {
		defer func() {
			if err := h.Engine.Reset(); err != nil {
				log.Printf("pinshadow: reset: %v\n", err)
			}
		}()
	}

	board := &debugws.Board{
		Family:    family.Name,
		Region:    h.Primary,
		Device:    h.Device,
		Backup:    h.Backup,
		Scheduler: h.Scheduler,
		Log:       ring,
		Indicator: indicator,
		Engine:    h.Engine,
	}
	server := debugws.NewServer(board)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.Serve(gctx, cfg.ListenAddr()) })
	if indicator.Latched() == boot.FaultNone {
		g.Go(func() error { return h.Scheduler.Run(gctx) })
	}
	if cfg.Script != "" && h.Engine.IsArmed() {
		g.Go(func() error {
			if err := h.RunFile(gctx, cfg.Script); err != nil {
				log.Printf("pinshadow: script: %v\n", err)
			}
			return nil
		})
	}

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}

	// last sweep so nothing written since the cursor passed is lost:
	if indicator.Latched() == boot.FaultNone {
		if serr := h.Device.WriteAllNow(h.Primary); serr != nil {
			log.Printf("pinshadow: final sweep: %v\n", serr)
		}
	}
	log.Printf("pinshadow: stopped\n")
	return err
}
