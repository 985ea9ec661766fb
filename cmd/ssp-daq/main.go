// Copyright 2022 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command ssp-daq runs a standalone acquisition on an SSP module and
// writes the millislices to a file.
//
// Usage: ssp-daq [OPTIONS]
//
// Example:
//
//	$> ssp-daq -link=usb -id=0 -dur=10m -o=run.slices
//	$> ssp-daq -cfg=run.yaml -runlog=runs.db -pmon
package main // import "github.com/go-lpc/ssp/cmd/ssp-daq"

import (
	"context"
	"crypto/tls"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	tdaqlog "github.com/go-daq/tdaq/log"
	"github.com/go-lpc/ssp/config"
	"github.com/go-lpc/ssp/device"
	"github.com/go-lpc/ssp/millislice"
	"github.com/go-lpc/ssp/registry"
	"github.com/go-lpc/ssp/runlog"
	"github.com/sbinet/pmon"
	"golang.org/x/sync/errgroup"
	mail "gopkg.in/gomail.v2"
)

func main() {
	var (
		cfgName = flag.String("cfg", "", "path to YAML run configuration")
		link    = flag.String("link", "", "link to the module (usb, tcp, emu)")
		id      = flag.Int("id", 0, "USB unit index or emulated module number")
		addr    = flag.String("addr", "", "address of the module (tcp link)")
		oname   = flag.String("o", "ssp.slices", "path to output millislice file")
		dur     = flag.Duration("dur", 0, "run duration (0: until interrupted)")
		rlog    = flag.String("runlog", "", "path to run catalog")
		doMon   = flag.Bool("pmon", false, "enable pmon monitoring")
		doFreq  = flag.Duration("freq", 1*time.Second, "pmon frequency")
		doMail  = flag.Bool("mail", false, "send a mail alert when the run fails")
		verbose = flag.Bool("v", false, "enable verbose mode")
	)

	flag.Parse()

	log.SetPrefix("ssp-daq: ")
	log.SetFlags(0)

	cfg := config.Default()
	if *cfgName != "" {
		var err error
		cfg, err = config.Load(*cfgName)
		if err != nil {
			log.Fatalf("could not load run configuration: %+v", err)
		}
	}
	if *link != "" {
		cfg.Link = config.Link{Kind: *link, Index: *id, Addr: *addr}
	}
	if *rlog != "" {
		cfg.RunLog = *rlog
	}

	lvl := tdaqlog.LvlInfo
	if *verbose {
		lvl = tdaqlog.LvlDebug
	}

	stop := make(chan os.Signal, 1)
	err := run(params{
		cfg:   cfg,
		oname: *oname,
		dur:   *dur,
		pmon:  *doMon,
		freq:  *doFreq,
		mail:  *doMail,
		msg:   tdaqlog.NewMsgStream("ssp-daq", lvl, os.Stdout),
	}, stop)
	if err != nil {
		log.Fatalf("%+v", err)
	}
}

type params struct {
	cfg   config.Config
	oname string
	dur   time.Duration

	pmon bool
	freq time.Duration
	mail bool

	msg  tdaqlog.MsgStream
	regs []registry.Option
}

func run(p params, stop chan os.Signal) (err error) {
	signal.Notify(stop, os.Interrupt)
	defer signal.Stop(stop)

	loc, err := p.cfg.Locator()
	if err != nil {
		return fmt.Errorf("invalid module location: %w", err)
	}
	opts, err := p.cfg.Options()
	if err != nil {
		return fmt.Errorf("invalid windowing configuration: %w", err)
	}
	opts = append(opts, device.WithMsgStream(p.msg))

	reg := registry.New(append([]registry.Option{registry.WithMsgStream(p.msg)}, p.regs...)...)
	dev := device.New(reg, loc, opts...)

	err = dev.Initialize()
	if err != nil {
		return fmt.Errorf("could not initialize device %v: %w", loc, err)
	}
	defer func() {
		e := dev.Shutdown()
		if e != nil && err == nil {
			err = e
		}
	}()

	err = p.cfg.Configure(context.Background(), dev, p.msg)
	if err != nil {
		return err
	}

	f, err := os.Create(p.oname)
	if err != nil {
		return fmt.Errorf("could not create output file: %w", err)
	}
	defer f.Close()

	var (
		rl    *runlog.Log
		runID uint64
	)
	if p.cfg.RunLog != "" {
		rl, err = runlog.Open(p.cfg.RunLog)
		if err != nil {
			return fmt.Errorf("could not open run catalog: %w", err)
		}
		defer rl.Close()

		runID, err = rl.Next()
		if err != nil {
			return err
		}
		err = rl.Begin(runlog.Run{
			ID:     runID,
			Device: loc.String(),
			Beg:    time.Now().UTC(),
			Output: p.oname,
		})
		if err != nil {
			return err
		}
		log.Printf("run %d", runID)
	}

	if p.pmon {
		kill, err := monitor(p.oname+"-pmon.log", p.freq)
		if err != nil {
			return err
		}
		defer kill()
	}

	err = dev.Start()
	if err != nil {
		return fmt.Errorf("could not start run: %w", err)
	}

	var (
		w       = millislice.NewWriter(f)
		timeout <-chan time.Time
	)
	if p.dur > 0 {
		timeout = time.After(p.dur)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	grp, ctx := errgroup.WithContext(ctx)
	grp.Go(func() error {
		select {
		case <-stop:
			log.Printf("interrupted")
		case <-timeout:
		case <-ctx.Done():
		}
		cancel()
		return nil
	})
	grp.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			slice, ok := dev.Millislice()
			if !ok {
				if err := dev.Err(); err != nil {
					return err
				}
				continue
			}
			err := w.Write(slice)
			if err != nil {
				return fmt.Errorf("could not write millislice: %w", err)
			}
		}
	})

	runErr := grp.Wait()
	stopErr := dev.Stop()
	if runErr == nil {
		runErr = stopErr
	}

	// flush the slices completed before the read loop stopped.
	for {
		slice, ok := dev.Millislice()
		if !ok {
			break
		}
		err = w.Write(slice)
		if err != nil && runErr == nil {
			runErr = fmt.Errorf("could not write millislice: %w", err)
		}
	}

	stats := dev.Stats()
	log.Printf("run stopped: %v", stats)

	if rl != nil {
		err = rl.End(runID, stats, runErr)
		if err != nil && runErr == nil {
			runErr = err
		}
	}

	if runErr != nil {
		if p.mail {
			alertMail(loc, runID, runErr)
		}
		return fmt.Errorf("could not run acquisition: %w", runErr)
	}

	err = f.Close()
	if err != nil {
		return fmt.Errorf("could not close output file: %w", err)
	}
	return nil
}

func monitor(fname string, freq time.Duration) (func(), error) {
	pid := os.Getpid()
	p, err := pmon.Monitor(pid)
	if err != nil {
		return nil, fmt.Errorf("could not start monitoring (pid=%d): %w", pid, err)
	}
	f, err := os.Create(fname)
	if err != nil {
		return nil, fmt.Errorf("could not create pmon log file: %w", err)
	}
	p.W = f
	p.Freq = freq

	go func() {
		err := p.Run()
		if err != nil {
			log.Printf("could not run pmon: %+v", err)
		}
	}()

	return func() {
		err := p.Kill()
		if err != nil {
			log.Printf("could not stop monitoring: %+v", err)
		}
		_ = f.Close()
	}, nil
}

var (
	alertMailUsr  = os.Getenv("MAIL_USERNAME")
	alertMailPwd  = os.Getenv("MAIL_PASSWORD")
	alertMailSrv  = os.Getenv("MAIL_SERVER")
	alertMailPort = atoi(os.Getenv("MAIL_PORT"))
	alertMailTgts = strings.Split(os.Getenv("MAIL_TGTS"), ",")
)

var errMailCreds = errors.New("missing mail credentials")

func newAlert(loc registry.Locator, run uint64, rerr error) (*mail.Message, error) {
	if alertMailUsr == "" || alertMailPwd == "" ||
		alertMailSrv == "" || alertMailPort == 0 ||
		len(alertMailTgts) == 0 || alertMailTgts[0] == "" {
		return nil, errMailCreds
	}

	msg := mail.NewMessage()
	msg.SetHeader("From", alertMailUsr)
	msg.SetHeader("Bcc", alertMailTgts...)
	msg.SetHeader("Subject", fmt.Sprintf("[ssp-daq] run %d failed on %v", run, loc))
	msg.SetBody("text/plain", fmt.Sprintf("device: %v\nrun: %d\nerror: %+v", loc, run, rerr))
	return msg, nil
}

func alertMail(loc registry.Locator, run uint64, rerr error) {
	msg, err := newAlert(loc, run, rerr)
	if err != nil {
		log.Printf("could not send mail alert: %+v", err)
		return
	}

	dial := mail.NewDialer(alertMailSrv, alertMailPort, alertMailUsr, alertMailPwd)
	dial.TLSConfig = &tls.Config{
		InsecureSkipVerify: true,
	}
	err = dial.DialAndSend(msg)
	if err != nil {
		log.Printf("could not send mail alert: %+v", err)
	}
}

func atoi(s string) int {
	if s == "" {
		return 0
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		log.Printf("could not parse %q: %+v", s, err)
		return 0
	}
	return v
}
