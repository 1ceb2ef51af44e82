// SPDX-License-Identifier: MIT
//
// Copyright © 2020 the dmapwm authors.

// +build linux

package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/jyldev/dmapwm"
	"github.com/spf13/cobra"
)

var version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:   "dmapwm",
	Short: "dmapwm drives DMA paced PWM signals on Raspberry Pi GPIO pins",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
	Version: version,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

// buildOpts are the tuning flags shared by the commands that arm the
// hardware.
var buildOpts = struct {
	Pins    []int
	Divisor int
	Cycle   int
	Delay   int
	PCM     bool
	Invert  bool
}{}

func addBuildFlags(cmd *cobra.Command) {
	cmd.Flags().IntSliceVarP(&buildOpts.Pins, "pins", "p", nil, "BCM GPIO pins to drive")
	cmd.Flags().IntVarP(&buildOpts.Divisor, "divisor", "d", dmapwm.DefaultPWMDivisor, "pacing clock divisor from 500MHz")
	cmd.Flags().IntVarP(&buildOpts.Cycle, "cycle", "c", dmapwm.DefaultCycleTime, "PWM period in pacing clock units")
	cmd.Flags().IntVarP(&buildOpts.Delay, "delay", "s", dmapwm.DefaultSampleDelay, "step granularity in pacing clock units")
	cmd.Flags().BoolVar(&buildOpts.PCM, "pcm", false, "pace from the PCM peripheral instead of PWM")
	cmd.Flags().BoolVarP(&buildOpts.Invert, "invert", "i", false, "invert the output polarity")
}

func buildBoard() (*dmapwm.Board, error) {
	b := dmapwm.NewBuilder().
		Pins(buildOpts.Pins...).
		PWMDivisor(buildOpts.Divisor).
		CycleTime(buildOpts.Cycle).
		SampleDelay(buildOpts.Delay)
	if buildOpts.PCM {
		b = b.UsePCM()
	}
	board, err := b.Build()
	if err != nil {
		return nil, err
	}
	if buildOpts.Invert {
		if err = board.SetInvertMode(true); err != nil {
			board.Terminate()
			return nil, err
		}
	}
	return board, nil
}

func parsePin(arg string) (int, error) {
	o, err := strconv.ParseUint(arg, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("can't parse pin '%s'", arg)
	}
	if o == 0 || o >= dmapwm.MaxChannels {
		return 0, fmt.Errorf("unknown pin '%d'", o)
	}
	return int(o), nil
}

func parsePinFraction(arg string) (int, float64, error) {
	aa := strings.Split(arg, "=")
	if len(aa) != 2 {
		return 0, 0, fmt.Errorf("invalid pin<->fraction mapping: %s", arg)
	}
	pin, err := parsePin(aa[0])
	if err != nil {
		return 0, 0, err
	}
	f, err := strconv.ParseFloat(aa[1], 64)
	if err != nil || f < 0 || f > 1 {
		return 0, 0, fmt.Errorf("can't parse fraction '%s'", aa[1])
	}
	return pin, f, nil
}
