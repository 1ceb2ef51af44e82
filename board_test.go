// SPDX-License-Identifier: MIT
//
// Copyright © 2020 the dmapwm authors.

// +build linux

package dmapwm

import (
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

// newFakeBoard assembles a Board over slice-backed registers and chain
// memory, so the full lifecycle runs without hardware.
func newFakeBoard(t *testing.T, pins ...int) *Board {
	cfg, err := NewBuilder().Pins(pins...).CycleTime(200).SampleDelay(10).config()
	assert.Nil(t, err)
	b := &Board{
		cfg:        cfg,
		plat:       platform{gen: Gen3, periphVirtBase: 0x3f000000, periphPhysBase: 0x7e000000},
		numSamples: cfg.numSamples(),
		ch:         newChannels(cfg.pins),
	}
	b.dma = &regFile{regs: make([]uint32, dmaChanSize/4)}
	b.pwm = &regFile{regs: make([]uint32, pwmLen/4)}
	b.pcm = &regFile{regs: make([]uint32, pcmLen/4)}
	b.clk = &regFile{regs: make([]uint32, clkLen/4)}
	b.gpio = &regFile{regs: make([]uint32, gpioLen/4)}
	b.ctl = newCtl(make([]uint32, ctlWords), testBusAddr, b.numSamples, b.targets())
	b.ctl.build(b.ch.allMask(), false)
	b.ctl.update(b.ch, false)
	return b
}

func TestInfoForDefaults(t *testing.T) {
	cfg, err := NewBuilder().Pins(21, 22).config()
	assert.Nil(t, err)
	info := infoFor(cfg, 0x3f007000)
	assert.Equal(t, PWM, info.Pacer)
	assert.Equal(t, []int{21, 22}, info.Pins)
	assert.Equal(t, 2, info.Channels)
	// 500MHz / (500 * 2000) = 500Hz
	assert.Equal(t, 500.0, info.FreqHz)
	assert.Equal(t, 200, info.Steps)
	// 2000 ticks at 1MHz
	assert.Equal(t, 2000.0, info.MaxPeriodUs)
	assert.Equal(t, 10.0, info.MinPeriodUs)
	assert.Equal(t, uint32(0x3f007000), info.DMABase)
}

func TestInfoForTuned(t *testing.T) {
	cfg, err := NewBuilder().
		Pins(4).
		PWMDivisor(250).
		CycleTime(400).
		SampleDelay(2).
		UsePCM().
		config()
	assert.Nil(t, err)
	info := infoFor(cfg, 0x20007000)
	assert.Equal(t, PCM, info.Pacer)
	// 500MHz / (250 * 400) = 5kHz
	assert.Equal(t, 5000.0, info.FreqHz)
	assert.Equal(t, 200, info.Steps)
	assert.Equal(t, 200.0, info.MaxPeriodUs)
	assert.Equal(t, 1.0, info.MinPeriodUs)
}

func TestInfoString(t *testing.T) {
	cfg, err := NewBuilder().Pins(21).config()
	assert.Nil(t, err)
	s := infoFor(cfg, 0x3f007000).String()
	assert.True(t, strings.Contains(s, "PWM"))
	assert.True(t, strings.Contains(s, "500.00 Hz"))
	assert.True(t, strings.Contains(s, "0x3f007000"))
}

func TestTargets(t *testing.T) {
	cfg, err := NewBuilder().Pins(21).config()
	assert.Nil(t, err)
	b := &Board{cfg: cfg, plat: platform{periphPhysBase: 0x7e000000}}
	tg := b.targets()
	assert.Equal(t, uint32(0x7e20001c), tg.gpioSet)
	assert.Equal(t, uint32(0x7e200028), tg.gpioClr)
	assert.Equal(t, uint32(0x7e20c018), tg.fifo)
	assert.Equal(t, uint32(perMapPWM), tg.perMap)

	cfg, err = NewBuilder().Pins(21).UsePCM().config()
	assert.Nil(t, err)
	b = &Board{cfg: cfg, plat: platform{periphPhysBase: 0x7e000000}}
	tg = b.targets()
	assert.Equal(t, uint32(0x7e203004), tg.fifo)
	assert.Equal(t, uint32(perMapPCM), tg.perMap)
}

func TestBoardSetPWM(t *testing.T) {
	b := newFakeBoard(t, 21, 22)

	assert.Nil(t, b.SetPWM(21, 0.5))
	// first use idles the pin and switches it to output
	assert.Equal(t, uint32(1<<21), b.gpio.read(gpioClr0))
	assert.Equal(t, uint32(1<<3), b.gpio.read(gpioFSel0+2))
	assert.Equal(t, uint32(1<<21), b.ctl.sample(0))

	err := b.SetPWM(21, 1.5)
	assert.True(t, errors.Is(err, ErrFractionOutOfRange))
	err = b.SetPWM(23, 0.5)
	assert.True(t, errors.Is(err, ErrUnknownChannel))
}

func TestBoardTerminate(t *testing.T) {
	b := newFakeBoard(t, 21, 22)
	assert.Nil(t, b.SetPWM(21, 0.5))
	assert.Nil(t, b.SetPWM(22, 1.0))

	// Terminate nils the Board's register fields, so keep our own
	// references to inspect the final state.
	dma := b.dma
	c := b.ctl

	assert.Nil(t, b.Terminate())

	// every sample drives the pins to the deasserted level
	assert.Equal(t, uint32(0), c.sample(0))
	for j := 1; j < c.numSamples; j++ {
		assert.Equal(t, uint32(1<<21|1<<22), c.sample(j), "sample %d", j)
	}
	// the engine reset is the last CS write
	assert.Equal(t, uint32(dmaCSReset), dma.read(dmaCS))
	assert.Nil(t, b.dma)
	assert.Nil(t, b.gpio)

	// idempotent, and the Board refuses further use
	assert.Nil(t, b.Terminate())
	assert.Equal(t, ErrClosed, b.SetPWM(21, 0.5))
	assert.Equal(t, ErrClosed, b.SetAllPWM(0.5))
	assert.Equal(t, ErrClosed, b.ReleasePWM(21))
	assert.Equal(t, ErrClosed, b.ReleaseAllPWM())
	assert.Equal(t, ErrClosed, b.SetInvertMode(true))
}
