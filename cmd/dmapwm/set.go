// SPDX-License-Identifier: MIT
//
// Copyright © 2020 the dmapwm authors.

// +build linux

package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func init() {
	addBuildFlags(setCmd)
	setCmd.SetHelpTemplate(setCmd.HelpTemplate() + extendedSetHelp)
	rootCmd.AddCommand(setCmd)
}

var setCmd = &cobra.Command{
	Use:     "set <pin1>=<fraction1>...",
	Short:   "Drive pins at fixed duty fractions until interrupted",
	Args:    cobra.MinimumNArgs(1),
	RunE:    set,
	Example: "  dmapwm set 21=0.25 22=0.75",
}

var extendedSetHelp = `
Pins:
  Pins are raw BCM GPIO numbers and must be in the configured pin set.

Fractions:
  Fractions are duty cycles in [0, 1]; 0 holds the pin low, 1 holds it
  high.

The signals run until SIGINT or SIGTERM, then every pin is returned to
its idle level.
`

func set(cmd *cobra.Command, args []string) error {
	pp := []int(nil)
	ff := []float64(nil)
	pins := buildOpts.Pins
	for _, arg := range args {
		pin, f, err := parsePinFraction(arg)
		if err != nil {
			return err
		}
		pp = append(pp, pin)
		ff = append(ff, f)
		if len(buildOpts.Pins) == 0 {
			pins = append(pins, pin)
		}
	}
	buildOpts.Pins = pins

	board, err := buildBoard()
	if err != nil {
		return err
	}
	defer board.Terminate()

	for i, pin := range pp {
		if err = board.SetPWM(pin, ff[i]); err != nil {
			return err
		}
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	fmt.Println("running, ^C to stop")
	<-sig
	return nil
}
