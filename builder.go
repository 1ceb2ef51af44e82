// SPDX-License-Identifier: MIT
//
// Copyright © 2020 the dmapwm authors.

// Package dmapwm generates multiple simultaneous PWM signals on Raspberry
// Pi GPIO pins by programming the DMA controller with a circular
// control-block chain, so the steady-state signal needs no CPU at all.
//
// A Board is built through a Builder:
//
// 	board, err := dmapwm.NewBuilder().Pins(21, 22).Build()
// 	if err != nil {
// 		...
// 	}
// 	defer board.Terminate()
//
// 	board.SetPWM(21, 0.25)
// 	board.SetPWM(22, 0.75)
//
// Pin numbers are raw BCM GPIO numbers. Building requires root, as it maps
// peripheral registers through /dev/mem and requests physically contiguous
// memory from the VideoCore firmware.
package dmapwm

import "github.com/pkg/errors"

// MaxChannels is the highest number of simultaneous PWM channels, bounded
// by the width of the GPIO bank 0 register.
const MaxChannels = 32

// Tuning defaults. At the defaults the PWM clock runs at 500MHz/500 = 1MHz,
// one cycle is 2000us, and duty resolution is 2000/10 = 200 steps.
const (
	DefaultPWMDivisor  = 500
	DefaultCycleTime   = 2000
	DefaultSampleDelay = 10
)

// Tuning bounds. Out-of-range Builder values are clamped to these.
const (
	maxPWMDivisor  = 1000
	minCycleTime   = 200
	maxCycleTime   = 1000
	minSampleDelay = 1
	maxSampleDelay = 100
)

// DefaultPins are the pins enabled when the Builder is given none.
var DefaultPins = []int{4, 17, 18, 27, 21, 22, 23, 24, 25}

// BannedPins are reserved by the board and never accepted:
// 6 drives the Model B Ethernet function, 28-31 are board ID resistors,
// 40 and 45 carry analogue audio, 46 is HDMI hotplug detect, and 47-53
// belong to the SD card interface.
var BannedPins = []int{6, 28, 29, 30, 31, 40, 45, 46, 47, 48, 49, 50, 51, 52, 53}

// Pacer selects the peripheral that paces the DMA chain between samples.
type Pacer int

const (
	// PWM paces via the PWM FIFO data request. The default.
	PWM Pacer = iota
	// PCM paces via the PCM transmit FIFO data request, for when the PWM
	// block is needed elsewhere (e.g. analogue audio).
	PCM
)

func (p Pacer) String() string {
	if p == PCM {
		return "PCM"
	}
	return "PWM"
}

// boardConfig is a validated, clamped configuration ready to build from.
type boardConfig struct {
	pins        []int
	pacer       Pacer
	pwmDivisor  int
	cycleTime   int
	sampleDelay int
}

func (cfg boardConfig) numSamples() int {
	return cfg.cycleTime / cfg.sampleDelay
}

// Builder assembles a Board configuration. Out-of-range numeric tuning
// values are clamped; an unacceptable pin set fails Build.
type Builder struct {
	pins        []int
	pacer       Pacer
	pwmDivisor  int
	cycleTime   int
	sampleDelay int
}

// NewBuilder returns a Builder holding the default configuration.
func NewBuilder() *Builder {
	return &Builder{
		pwmDivisor:  DefaultPWMDivisor,
		cycleTime:   DefaultCycleTime,
		sampleDelay: DefaultSampleDelay,
	}
}

// Pins selects the GPIO pins the Board will drive. Zero pins are dropped,
// matching the free-slot sentinel. Without a call to Pins the DefaultPins
// are used.
func (b *Builder) Pins(pins ...int) *Builder {
	b.pins = b.pins[:0]
	for _, pin := range pins {
		if pin != 0 {
			b.pins = append(b.pins, pin)
		}
	}
	return b
}

// PWMDivisor divides the 500MHz PLL down to the pacing clock.
// Values above 1000 are clamped to 1000.
func (b *Builder) PWMDivisor(divisor int) *Builder {
	if divisor > maxPWMDivisor {
		divisor = maxPWMDivisor
	}
	b.pwmDivisor = divisor
	return b
}

// CycleTime sets the PWM period in pacing clock units, clamped to
// [200, 1000].
func (b *Builder) CycleTime(units int) *Builder {
	if units < minCycleTime {
		units = minCycleTime
	} else if units > maxCycleTime {
		units = maxCycleTime
	}
	b.cycleTime = units
	return b
}

// SampleDelay sets the pulse width increment granularity in pacing clock
// units, clamped to [1, 100]. Low values cost memory bandwidth; the DMA
// engine wakes once per sample.
func (b *Builder) SampleDelay(units int) *Builder {
	if units < minSampleDelay {
		units = minSampleDelay
	} else if units > maxSampleDelay {
		units = maxSampleDelay
	}
	b.sampleDelay = units
	return b
}

// UsePCM paces the DMA chain from the PCM peripheral instead of PWM.
func (b *Builder) UsePCM() *Builder {
	b.pacer = PCM
	return b
}

// Build validates the configuration and arms the hardware.
// It fails with ErrInvalidPin, ErrBannedPin or ErrTooManyChannels on an
// unacceptable pin set, and with a platform error if the board cannot be
// detected or mapped.
func (b *Builder) Build() (*Board, error) {
	cfg, err := b.config()
	if err != nil {
		return nil, err
	}
	return newBoard(cfg)
}

func (b *Builder) config() (boardConfig, error) {
	pins := b.pins
	if len(pins) == 0 {
		pins = DefaultPins
	}
	if err := validatePins(pins); err != nil {
		return boardConfig{}, err
	}
	cfg := boardConfig{
		pins:        append([]int(nil), pins...),
		pacer:       b.pacer,
		pwmDivisor:  b.pwmDivisor,
		cycleTime:   b.cycleTime,
		sampleDelay: b.sampleDelay,
	}
	return cfg, nil
}

func validatePins(pins []int) error {
	if len(pins) > MaxChannels {
		return errors.Wrapf(ErrTooManyChannels, "%d pins exceeds %d channels", len(pins), MaxChannels)
	}
	seen := uint32(0)
	for _, pin := range pins {
		if pin <= 0 || pin >= MaxChannels {
			return errors.Wrapf(ErrInvalidPin, "gpio %d", pin)
		}
		if isBannedPin(pin) {
			return errors.Wrapf(ErrBannedPin, "gpio %d", pin)
		}
		if seen&(1<<uint(pin)) != 0 {
			return errors.Wrapf(ErrInvalidPin, "gpio %d repeated", pin)
		}
		seen |= 1 << uint(pin)
	}
	return nil
}

func isBannedPin(pin int) bool {
	for _, b := range BannedPins {
		if b == pin {
			return true
		}
	}
	return false
}
