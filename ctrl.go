// SPDX-License-Identifier: MIT
//
// Copyright © 2020 the dmapwm authors.

package dmapwm

import (
	"sync/atomic"

	"github.com/pkg/errors"
)

// DMA transfer information bits used by the chain.
const (
	dmaNoWideBursts = 1 << 26
	dmaDestDreq     = 1 << 6
	dmaWaitResp     = 1 << 3

	dmaPerMapShift = 16
)

// Peripheral numbers for the DREQ pacing map.
const (
	perMapPCM = 2
	perMapPWM = 5
)

// busUncachedAlias ORed into a bus address makes accesses bypass the L1
// cache, which the DMA engine never snoops. L2 stays coherent, so sample
// writes reach the engine without an explicit flush.
const busUncachedAlias = 0x40000000

// The allocation is always sized for the largest sample count the clamp
// bounds permit, so no in-range configuration overruns it and retuning
// never changes the memory footprint; shorter cycles just link fewer
// blocks.
const (
	maxSamples = maxCycleTime / minSampleDelay
	maxCBs     = 2 * maxSamples

	cbWords  = 8
	ctlWords = maxSamples + maxCBs*cbWords
	ctlBytes = ctlWords * 4
)

// Control block field offsets, in words. The trailing two words of each
// block are reserved and stay zero.
const (
	cbTI = iota
	cbSrc
	cbDst
	cbLen
	cbStride
	cbNext
)

// physTargets are the bus addresses the control blocks write to, plus the
// DREQ peripheral number gating the pacing blocks.
type physTargets struct {
	gpioSet uint32
	gpioClr uint32
	fifo    uint32
	perMap  uint32
}

// ctl is the DMA program: one sample word per timeslot followed by the
// control block array, viewed as words of the shared allocation.
//
// Exactly one goroutine mutates it while the DMA engine reads it
// concurrently. Every mutation is a single aligned word store, so the
// engine sees each change atomically; an update lands at worst one cycle
// late, never torn.
type ctl struct {
	words      []uint32
	busAddr    uint32
	numSamples int
	targets    physTargets
}

func newCtl(words []uint32, busAddr uint32, numSamples int, targets physTargets) *ctl {
	return &ctl{
		words:      words,
		busAddr:    busAddr,
		numSamples: numSamples,
		targets:    targets,
	}
}

// wordBus is the bus address of word i, through the uncached alias.
func (c *ctl) wordBus(i int) uint32 {
	return (c.busAddr + uint32(4*i)) | busUncachedAlias
}

func (c *ctl) sampleBus(i int) uint32 { return c.wordBus(i) }

// cbIndex is the word index of control block j.
func (c *ctl) cbIndex(j int) int { return maxSamples + j*cbWords }

// cbBus is the bus address of control block j.
func (c *ctl) cbBus(j int) uint32 { return c.wordBus(c.cbIndex(j)) }

func (c *ctl) sample(i int) uint32 { return atomic.LoadUint32(&c.words[i]) }

func (c *ctl) setSample(i int, v uint32) { atomic.StoreUint32(&c.words[i], v) }

func (c *ctl) cbField(j, field int) uint32 {
	return atomic.LoadUint32(&c.words[c.cbIndex(j)+field])
}

func (c *ctl) setCBField(j, field int, v uint32) {
	atomic.StoreUint32(&c.words[c.cbIndex(j)+field], v)
}

// build emits the circular program: per timeslot a data block copying the
// slot's sample word to a GPIO register, then a pacing block stalled on
// the peripheral DREQ; the last block links back to the first, so the
// chain runs forever without rearming. Called before the engine starts,
// so plain stores suffice here.
func (c *ctl) build(onMask uint32, invert bool) {
	dataDst := c.targets.gpioClr
	if invert {
		dataDst = c.targets.gpioSet
	}

	c.words[0] = onMask
	for i := 1; i < c.numSamples; i++ {
		c.words[i] = 0
	}

	pacingTI := uint32(dmaNoWideBursts | dmaWaitResp | dmaDestDreq)
	pacingTI |= c.targets.perMap << dmaPerMapShift

	for i := 0; i < c.numSamples; i++ {
		j := 2 * i

		base := c.cbIndex(j)
		c.words[base+cbTI] = dmaNoWideBursts | dmaWaitResp
		c.words[base+cbSrc] = c.sampleBus(i)
		c.words[base+cbDst] = dataDst
		c.words[base+cbLen] = 4
		c.words[base+cbStride] = 0
		c.words[base+cbNext] = c.cbBus(j + 1)

		base = c.cbIndex(j + 1)
		c.words[base+cbTI] = pacingTI
		c.words[base+cbSrc] = c.sampleBus(0)
		c.words[base+cbDst] = c.targets.fifo
		c.words[base+cbLen] = 4
		c.words[base+cbStride] = 0
		c.words[base+cbNext] = c.cbBus(j + 2)
	}
	c.words[c.cbIndex(2*c.numSamples-1)+cbNext] = c.cbBus(0)
}

// update recomputes the sample masks and data block destinations from the
// channel table while the engine runs.
//
// Slot 0 asserts every channel with a nonzero fraction at the cycle
// start; slot j deasserts a channel once j/numSamples exceeds its
// fraction. A channel at fraction 1.0 is never deasserted, and one at
// 0.0 is never asserted, so both extremes hold a steady level.
func (c *ctl) update(ch *channels, invert bool) {
	onDst, offDst := c.targets.gpioSet, c.targets.gpioClr
	if invert {
		onDst, offDst = offDst, onDst
	}

	c.setCBField(0, cbDst, onDst)
	mask := uint32(0)
	for i := 0; i < ch.active; i++ {
		if ch.frac[i] > 0 {
			mask |= 1 << uint(ch.slotPins[i])
		}
	}
	c.setSample(0, mask)

	for j := 1; j < c.numSamples; j++ {
		c.setCBField(2*j, cbDst, offDst)
		mask = 0
		for i := 0; i < ch.active; i++ {
			if float64(j)/float64(c.numSamples) > ch.frac[i] {
				mask |= 1 << uint(ch.slotPins[i])
			}
		}
		c.setSample(j, mask)
	}
}

// channels maps configured pins to slots in the sample masks. Slots are
// assigned first fit on first use and compacted on release, so the
// update loops scan only the active prefix. slotPins[i] is the pin
// occupying slot i, zero when free.
type channels struct {
	pins     []int
	slotPins [MaxChannels]uint8
	frac     [MaxChannels]float64
	active   int
}

func newChannels(pins []int) *channels {
	return &channels{pins: pins}
}

// known reports whether pin is part of the configured pin set.
func (ch *channels) known(pin int) bool {
	for _, p := range ch.pins {
		if p == pin {
			return true
		}
	}
	return false
}

// acquire resolves pin to a slot, assigning the next free slot on first
// use, and stores its fraction. Reports whether the slot is new.
func (ch *channels) acquire(pin int, frac float64) (bool, error) {
	for i := 0; i < ch.active; i++ {
		if int(ch.slotPins[i]) == pin {
			ch.frac[i] = frac
			return false, nil
		}
	}
	if ch.active >= len(ch.pins) {
		return false, errors.Wrapf(ErrUnknownChannel, "gpio %d: no free slot", pin)
	}
	ch.slotPins[ch.active] = uint8(pin)
	ch.frac[ch.active] = frac
	ch.active++
	return true, nil
}

// release frees the pin's slot, compacting the table so no holes remain.
// Reports whether the pin held a slot.
func (ch *channels) release(pin int) bool {
	for i := 0; i < ch.active; i++ {
		if int(ch.slotPins[i]) == pin {
			copy(ch.slotPins[i:ch.active], ch.slotPins[i+1:ch.active])
			copy(ch.frac[i:ch.active], ch.frac[i+1:ch.active])
			ch.active--
			ch.slotPins[ch.active] = 0
			ch.frac[ch.active] = 0
			return true
		}
	}
	return false
}

// releaseAll frees every slot. Idempotent.
func (ch *channels) releaseAll() {
	for i := 0; i < ch.active; i++ {
		ch.slotPins[i] = 0
		ch.frac[i] = 0
	}
	ch.active = 0
}

// zeroFractions idles every active channel while keeping its slot, so a
// following update drives each pin to its deasserted level.
func (ch *channels) zeroFractions() {
	for i := 0; i < ch.active; i++ {
		ch.frac[i] = 0
	}
}

// allMask is the OR of the configured pins' GPIO bits.
func (ch *channels) allMask() uint32 {
	mask := uint32(0)
	for _, pin := range ch.pins {
		mask |= 1 << uint(pin)
	}
	return mask
}
