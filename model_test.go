// SPDX-License-Identifier: MIT
//
// Copyright © 2020 the dmapwm authors.

package dmapwm

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestParseRevision(t *testing.T) {
	patterns := []struct {
		name string
		word uint32
		rev  revision
	}{
		{
			"pi1 b old scheme",
			0x000e,
			revision{boardType: 0},
		},
		{
			"pi2 b",
			0xa01041,
			revision{newScheme: true, ram: 2, manufacturer: 0, processor: 1, boardType: 4, rev: 1},
		},
		{
			"pi3 b",
			0xa02082,
			revision{newScheme: true, ram: 2, manufacturer: 0, processor: 2, boardType: 8, rev: 2},
		},
		{
			"pi3 b+",
			0xa020d3,
			revision{newScheme: true, ram: 2, manufacturer: 0, processor: 2, boardType: 0xd, rev: 3},
		},
		{
			"zero w",
			0x9000c1,
			revision{newScheme: true, ram: 1, manufacturer: 0, processor: 0, boardType: 0xc, rev: 1},
		},
	}
	for _, p := range patterns {
		tf := func(t *testing.T) {
			rev := parseRevision(p.word)
			// old-scheme words only need the scheme bit to be right
			if !p.rev.newScheme {
				assert.False(t, rev.newScheme)
				return
			}
			assert.Equal(t, p.rev, rev)
		}
		t.Run(p.name, tf)
	}
}

func TestRevisionGeneration(t *testing.T) {
	patterns := []struct {
		name string
		word uint32
		gen  Generation
	}{
		{"pi1 b old scheme", 0x000e, Gen1},
		{"pi1 b+ old scheme", 0x0010, Gen1},
		{"zero w", 0x9000c1, Gen1},
		{"pi2 b", 0xa01041, Gen2},
		{"pi3 b", 0xa02082, Gen3},
		{"pi3 b+", 0xa020d3, Gen3},
		{"cm3", 0xa020a0, Gen3},
	}
	for _, p := range patterns {
		tf := func(t *testing.T) {
			assert.Equal(t, p.gen, parseRevision(p.word).generation())
		}
		t.Run(p.name, tf)
	}
}

func TestDetectPlatform(t *testing.T) {
	p, err := detectPlatform(0x000e)
	assert.Nil(t, err)
	assert.Equal(t, Gen1, p.gen)
	assert.Equal(t, uint32(0x20000000), p.periphVirtBase)
	assert.Equal(t, uint32(0x7e000000), p.periphPhysBase)
	assert.Equal(t, uint32(memFlagL1NonAllocating|memFlagZero), p.memFlag)

	p, err = detectPlatform(0xa02082)
	assert.Nil(t, err)
	assert.Equal(t, Gen3, p.gen)
	assert.Equal(t, uint32(0x3f000000), p.periphVirtBase)
	assert.Equal(t, uint32(0x7e000000), p.periphPhysBase)
}

func TestDetectPlatformUnknown(t *testing.T) {
	_, err := detectPlatform(0)
	assert.True(t, errors.Is(err, ErrUnknownBoardModel), "got %v", err)
}

func TestGenerationString(t *testing.T) {
	assert.Equal(t, "Pi-1", Gen1.String())
	assert.Equal(t, "Pi-2", Gen2.String())
	assert.Equal(t, "Pi-3", Gen3.String())
	assert.Equal(t, "Pi-?", Generation(0).String())
}
