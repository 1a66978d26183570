// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"math/rand/v2"
	"net"
	"sync"
	"time"

	"github.com/juju/errors"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/emslink/internal/config"
	"github.com/Thermoquad/emslink/internal/emslog"
	"github.com/Thermoquad/emslink/pkg/ems"
)

var (
	simulateListen      string
	simulateInterval    time.Duration
	simulateCorruptRate float64
	simulatePolls       int
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run a fake gateway emitting synthetic EMS frames",
	Long: `Listen on a TCP port and stream synthetic EMS frames to every client,
the way a gateway forwards bus traffic.

Between telegrams the simulator sends short poll frames. With --corrupt-rate
a share of the telegrams carry a damaged body so that clients see CRC
mismatches.

Point another instance at it for bench tests:
  emslink simulate &
  emslink error_detection -g 127.0.0.1:2323`,
	RunE: runSimulate,
}

func init() {
	rootCmd.AddCommand(simulateCmd)
	simulateCmd.Flags().StringVar(&simulateListen, "listen", "127.0.0.1:2323", "Address to listen on")
	simulateCmd.Flags().DurationVar(&simulateInterval, "interval", 500*time.Millisecond, "Delay between telegrams")
	simulateCmd.Flags().Float64Var(&simulateCorruptRate, "corrupt-rate", 0, "Share of telegrams sent with a damaged body (0-1)")
	simulateCmd.Flags().IntVar(&simulatePolls, "polls", 2, "Short poll frames sent between telegrams")
}

func runSimulate(cmd *cobra.Command, args []string) error {
	if simulateCorruptRate < 0 || simulateCorruptRate > 1 {
		return errors.NotValidf("corrupt rate %v", simulateCorruptRate)
	}

	// The simulator is the gateway, so no gateway address is needed.
	cfg := config.Default()
	if cmd.Flags().Changed("log-level") {
		cfg.LogLevel = logLevel
	}
	cfg.Verbosity = 0
	log, closeLog, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer closeLog()

	ln, err := net.Listen("tcp", simulateListen)
	if err != nil {
		return errors.Annotatef(err, "listen on %s", simulateListen)
	}

	ctx, cancel := signalContext()
	defer cancel()

	sim := &simulator{
		interval:    simulateInterval,
		corruptRate: simulateCorruptRate,
		polls:       simulatePolls,
		log:         log.WithField("listen", ln.Addr().String()),
	}
	log.Noticef("simulating gateway on %s", ln.Addr())
	return sim.serve(ctx, ln)
}

// sampleTelegrams are bus telegrams as a boiler and a room controller send them.
var sampleTelegrams = [][]byte{
	{0x08, 0x00, 0x18, 0x00, 0x0D, 0x01, 0x8F, 0x80, 0x00, 0x00, 0x00, 0x00, 0x00},
	{0x08, 0x00, 0x34, 0x00, 0x01, 0x2C, 0x80, 0x00, 0x00, 0x00, 0x00, 0x00},
	{0x10, 0x00, 0xFF, 0x00, 0x01, 0xA5, 0x80, 0x00, 0x01, 0x0E},
	{0x08, 0x00, 0x06, 0x00, 0x19, 0x0A, 0x12, 0x0E, 0x2D, 0x05, 0x02},
	{0x17, 0x08, 0x01, 0x00, 0x24},
}

// pollBodies are the one byte poll frames the bus master sends.
var pollBodies = [][]byte{{0x8B}, {0x88}, {0x90}, {0x08}}

type simulator struct {
	interval    time.Duration
	corruptRate float64
	polls       int
	log         *emslog.Logger
}

// serve accepts clients until ctx is done.
func (s *simulator) serve(ctx context.Context, ln net.Listener) error {
	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		c, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Annotate(err, "accept")
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.stream(ctx, c)
		}()
	}
}

func (s *simulator) stream(ctx context.Context, c net.Conn) {
	defer c.Close()
	log := s.log.WithField("client", c.RemoteAddr().String())
	log.Infof("client connected")

	stop := context.AfterFunc(ctx, func() { _ = c.Close() })
	defer stop()

	enc := ems.NewEncoder()
	rng := rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0))
	var sent uint64

	for ctx.Err() == nil {
		buf, corrupted, err := s.burst(enc, rng)
		if err != nil {
			log.Errorf("encode: %v", err)
			return
		}
		if _, err := c.Write(buf); err != nil {
			log.Infof("client gone after %d bytes: %v", sent, err)
			return
		}
		sent += uint64(len(buf))
		if corrupted {
			log.Debugf("sent corrupted telegram")
		}

		select {
		case <-ctx.Done():
		case <-time.After(s.interval):
		}
	}
}

// burst builds the poll frames and one telegram sent per interval.
func (s *simulator) burst(enc *ems.Encoder, rng *rand.Rand) ([]byte, bool, error) {
	var out []byte
	for i := 0; i < s.polls; i++ {
		f, err := enc.Encode(pollBodies[rng.IntN(len(pollBodies))])
		if err != nil {
			return nil, false, err
		}
		out = append(out, f...)
	}

	body := sampleTelegrams[rng.IntN(len(sampleTelegrams))]
	f, err := enc.Encode(body)
	if err != nil {
		return nil, false, err
	}
	corrupted := s.corruptRate > 0 && rng.Float64() < s.corruptRate
	if corrupted {
		// Damage the body after the checksum was computed.
		f[ems.HeaderSize+rng.IntN(len(body))] ^= 1 << rng.IntN(8)
	}
	return append(out, f...), corrupted, nil
}
