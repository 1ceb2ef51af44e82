// SPDX-License-Identifier: MIT
//
// Copyright © 2020 the dmapwm authors.

package dmapwm

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestNewBuilderDefaults(t *testing.T) {
	cfg, err := NewBuilder().config()
	assert.Nil(t, err)
	assert.Equal(t, DefaultPins, cfg.pins)
	assert.Equal(t, PWM, cfg.pacer)
	assert.Equal(t, DefaultPWMDivisor, cfg.pwmDivisor)
	assert.Equal(t, DefaultCycleTime, cfg.cycleTime)
	assert.Equal(t, DefaultSampleDelay, cfg.sampleDelay)
	assert.Equal(t, 200, cfg.numSamples())
}

func TestBuilderPins(t *testing.T) {
	cfg, err := NewBuilder().Pins(21, 22).config()
	assert.Nil(t, err)
	assert.Equal(t, []int{21, 22}, cfg.pins)

	// zero pins are dropped
	cfg, err = NewBuilder().Pins(21, 0, 22, 0).config()
	assert.Nil(t, err)
	assert.Equal(t, []int{21, 22}, cfg.pins)

	// all zeros falls back to the defaults
	cfg, err = NewBuilder().Pins(0, 0).config()
	assert.Nil(t, err)
	assert.Equal(t, DefaultPins, cfg.pins)
}

func TestBuilderPinValidation(t *testing.T) {
	patterns := []struct {
		name string
		pins []int
		err  error
	}{
		{"negative", []int{-1}, ErrInvalidPin},
		{"too high", []int{32}, ErrInvalidPin},
		{"duplicate", []int{21, 22, 21}, ErrInvalidPin},
		{"beyond bank", []int{47}, ErrInvalidPin},
		{"banned eth", []int{6}, ErrBannedPin},
		{"banned id", []int{29}, ErrBannedPin},
	}
	for _, p := range patterns {
		tf := func(t *testing.T) {
			_, err := NewBuilder().Pins(p.pins...).config()
			assert.NotNil(t, err)
			assert.True(t, errors.Is(err, p.err), "got %v", err)
		}
		t.Run(p.name, tf)
	}
}

func TestBuilderPinValidationTooMany(t *testing.T) {
	pins := []int(nil)
	for pin := 1; pin < 64; pin++ {
		pins = append(pins, pin)
	}
	_, err := NewBuilder().Pins(pins...).config()
	assert.True(t, errors.Is(err, ErrTooManyChannels), "got %v", err)
}

func TestBuilderClamps(t *testing.T) {
	cfg, err := NewBuilder().
		PWMDivisor(4000).
		CycleTime(40).
		SampleDelay(0).
		config()
	assert.Nil(t, err)
	assert.Equal(t, 1000, cfg.pwmDivisor)
	assert.Equal(t, 200, cfg.cycleTime)
	assert.Equal(t, 1, cfg.sampleDelay)

	cfg, err = NewBuilder().
		CycleTime(4000).
		SampleDelay(400).
		config()
	assert.Nil(t, err)
	assert.Equal(t, 1000, cfg.cycleTime)
	assert.Equal(t, 100, cfg.sampleDelay)

	// in-range values pass through
	cfg, err = NewBuilder().
		PWMDivisor(250).
		CycleTime(500).
		SampleDelay(5).
		config()
	assert.Nil(t, err)
	assert.Equal(t, 250, cfg.pwmDivisor)
	assert.Equal(t, 500, cfg.cycleTime)
	assert.Equal(t, 5, cfg.sampleDelay)
	assert.Equal(t, 100, cfg.numSamples())
}

func TestBuilderUsePCM(t *testing.T) {
	cfg, err := NewBuilder().UsePCM().config()
	assert.Nil(t, err)
	assert.Equal(t, PCM, cfg.pacer)
	assert.Equal(t, "PCM", cfg.pacer.String())
	assert.Equal(t, "PWM", PWM.String())
}

func TestNumSamplesNeverExceedsCapacity(t *testing.T) {
	// the clamped extremes of cycle time and sample delay must stay
	// within the fixed allocation
	for _, cycle := range []int{200, 1000, 2000} {
		for _, delay := range []int{1, 10, 100} {
			cfg, err := NewBuilder().CycleTime(cycle).SampleDelay(delay).config()
			assert.Nil(t, err)
			if cfg.numSamples() > maxSamples {
				t.Errorf("cycle %d delay %d: %d samples exceeds %d",
					cycle, delay, cfg.numSamples(), maxSamples)
			}
		}
	}
}
