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
	"time"

	"github.com/jyldev/dmapwm"
	"github.com/warthog618/config"
	"github.com/warthog618/config/blob"
	"github.com/warthog618/config/blob/decoder/json"
	"github.com/warthog618/config/dict"
	"github.com/warthog618/config/env"
	"github.com/warthog618/config/pflag"
)

// This example breathes an LED on each configured pin, fading from dark
// to full brightness and back. The pins and signal tuning default to
// values below but can be altered via configuration (env, flag or config
// file). Wire each LED from the pin through a resistor to ground, and
// run as root so the peripherals can be mapped.
func main() {
	cfg := loadConfig()
	builder := dmapwm.NewBuilder().
		Pins(pinList(cfg)...).
		PWMDivisor(cfg.MustGet("divisor").Int()).
		CycleTime(cfg.MustGet("cycle").Int()).
		SampleDelay(cfg.MustGet("delay").Int())
	if cfg.MustGet("pcm").Bool() {
		builder = builder.UsePCM()
	}
	board, err := builder.Build()
	if err != nil {
		panic(err)
	}
	defer board.Terminate()
	board.PrintInfo()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	period := cfg.MustGet("period").Duration()
	steps := board.Info().Steps
	tick := time.NewTicker(period / time.Duration(2*steps))
	defer tick.Stop()

	fmt.Println("breathing, ^C to stop")
	frac, dir := 0.0, 1.0
	for {
		select {
		case <-sig:
			return
		case <-tick.C:
			frac += dir / float64(steps)
			if frac >= 1 {
				frac, dir = 1, -1
			} else if frac <= 0 {
				frac, dir = 0, 1
			}
			if err = board.SetAllPWM(frac); err != nil {
				panic(err)
			}
		}
	}
}

func pinList(cfg *config.Config) []int {
	uu := cfg.MustGet("pins").UintSlice()
	pp := make([]int, len(uu))
	for i, u := range uu {
		pp[i] = int(u)
	}
	return pp
}

func loadConfig() *config.Config {
	defaultConfig := map[string]interface{}{
		"pins":    []uint{21, 22},
		"divisor": dmapwm.DefaultPWMDivisor,
		"cycle":   dmapwm.DefaultCycleTime,
		"delay":   dmapwm.DefaultSampleDelay,
		"pcm":     false,
		"period":  "3s",
	}
	def := dict.New(dict.WithMap(defaultConfig))
	flags := []pflag.Flag{
		{Short: 'c', Name: "config-file"},
		{Short: 'p', Name: "pins"},
	}
	// highest priority sources first - flags override environment
	cfg := config.New(
		pflag.New(pflag.WithFlags(flags)),
		env.New(env.WithEnvPrefix("PULSE_")),
		config.WithDefault(def))
	// config file may be specified via flag or env, so check for it
	// and if present add it with lower priority than flag and env.
	cfg.Append(blob.NewConfigFile(cfg, "config.file", "pulse.json", json.NewDecoder()))
	return cfg
}
