// SPDX-License-Identifier: MIT
//
// Copyright © 2020 the dmapwm authors.

package dmapwm

import "github.com/pkg/errors"

// Generation groups board models by peripheral address layout.
type Generation int

const (
	// Gen1 covers the BCM2835 boards: Pi 1 A/B/A+/B+, Zero, CM1.
	Gen1 Generation = iota + 1
	// Gen2 covers the Pi 2 B.
	Gen2
	// Gen3 covers the Pi 3 B/B+ and CM3.
	Gen3
)

func (g Generation) String() string {
	switch g {
	case Gen1:
		return "Pi-1"
	case Gen2:
		return "Pi-2"
	case Gen3:
		return "Pi-3"
	}
	return "Pi-?"
}

// Board revision word layout (new scheme):
//
//	SRRR MMMM PPPP TTTT TTTT VVVV
//
//	S scheme (0=old, 1=new)
//	R RAM (0=256MB, 1=512MB, 2=1GB)
//	M manufacturer
//	P processor (0=2835, 1=2836)
//	T board type
//	V revision
const (
	revSchemeNew       = 0x1 << 23
	revRAMShift        = 20
	revRAMMask         = 0x7
	revManufShift      = 16
	revManufMask       = 0xF
	revProcessorShift  = 12
	revProcessorMask   = 0xF
	revTypeShift       = 4
	revTypeMask        = 0xFF
	revRevisionMask    = 0xF
	revTypePi2B        = 4
	revTypePi3B        = 8
	revTypePi3BPlus    = 0xD
	revTypeCM3         = 10
)

// revision is the structured form of the bit-packed board revision word.
type revision struct {
	newScheme    bool
	ram          int
	manufacturer int
	processor    int
	boardType    int
	rev          int
}

func parseRevision(word uint32) revision {
	return revision{
		newScheme:    word&revSchemeNew != 0,
		ram:          int(word >> revRAMShift & revRAMMask),
		manufacturer: int(word >> revManufShift & revManufMask),
		processor:    int(word >> revProcessorShift & revProcessorMask),
		boardType:    int(word >> revTypeShift & revTypeMask),
		rev:          int(word & revRevisionMask),
	}
}

// generation maps the board type field to a peripheral layout generation.
// Unlisted new-scheme types share the Gen1 layout; that covers the A/B
// family and keeps unknown-but-compatible models working.
func (r revision) generation() Generation {
	if !r.newScheme {
		return Gen1
	}
	switch r.boardType {
	case revTypePi2B:
		return Gen2
	case revTypePi3B, revTypePi3BPlus, revTypeCM3:
		return Gen3
	}
	return Gen1
}

// platform holds the peripheral base addresses and mailbox memory flags
// for a board generation.
type platform struct {
	gen Generation

	// periphVirtBase is the physical address at which the ARM sees the
	// peripheral block; register windows are mapped from here.
	periphVirtBase uint32

	// periphPhysBase is the bus address at which the DMA engine sees the
	// same block; control block destinations use this.
	periphPhysBase uint32

	// memFlag requests physically contiguous memory that is non-allocating
	// in L1 (the DMA engine snoops L2 only) and zero initialised.
	memFlag uint32
}

// detectPlatform decodes a mailbox board revision word into the peripheral
// layout. A revision of zero cannot come from working firmware and fails
// with ErrUnknownBoardModel, since guessing addresses risks writing to the
// wrong hardware.
func detectPlatform(word uint32) (platform, error) {
	if word == 0 {
		return platform{}, errors.Wrapf(ErrUnknownBoardModel, "board revision %#010x", word)
	}
	p := platform{
		gen:            parseRevision(word).generation(),
		periphPhysBase: 0x7e000000,
		memFlag:        memFlagL1NonAllocating | memFlagZero,
	}
	switch p.gen {
	case Gen1:
		p.periphVirtBase = 0x20000000
	case Gen2, Gen3:
		p.periphVirtBase = 0x3f000000
	default:
		return platform{}, errors.Wrapf(ErrUnknownBoardModel, "board revision %#010x", word)
	}
	return p, nil
}
