// SPDX-License-Identifier: MIT
//
// Copyright © 2020 the dmapwm authors.

// +build linux

package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

func init() {
	addBuildFlags(sweepCmd)
	sweepCmd.Flags().DurationVarP(&sweepOpts.Period, "period", "t", 2*time.Second, "time for one full up and down sweep")
	rootCmd.AddCommand(sweepCmd)
}

var sweepCmd = &cobra.Command{
	Use:     "sweep",
	Short:   "Sweep all pins from dark to full and back until interrupted",
	Args:    cobra.NoArgs,
	RunE:    sweep,
	Example: "  dmapwm sweep -p 21,22 -t 4s",
}

var sweepOpts = struct {
	Period time.Duration
}{}

func sweep(cmd *cobra.Command, args []string) error {
	board, err := buildBoard()
	if err != nil {
		return err
	}
	defer board.Terminate()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	// Step often enough to use the full duty resolution over a half sweep.
	steps := board.Info().Steps
	tick := time.NewTicker(sweepOpts.Period / time.Duration(2*steps))
	defer tick.Stop()

	frac, dir := 0.0, 1.0
	for {
		select {
		case <-sig:
			return nil
		case <-tick.C:
			frac += dir / float64(steps)
			if frac >= 1 {
				frac, dir = 1, -1
			} else if frac <= 0 {
				frac, dir = 0, 1
			}
			if err = board.SetAllPWM(frac); err != nil {
				return err
			}
		}
	}
}
