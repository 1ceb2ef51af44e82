// SPDX-License-Identifier: MIT
//
// Copyright © 2020 the dmapwm authors.

// +build linux

package dmapwm

import (
	"fmt"
	"runtime"
	"strings"

	mmap "github.com/edsrzf/mmap-go"
	"github.com/pkg/errors"
)

// mboxAlloc is the physically contiguous allocation backing the sample
// buffer and control blocks. Owned exclusively by the Board and released
// exactly once, in reverse acquisition order, at teardown.
type mboxAlloc struct {
	handle  uint32
	busAddr uint32
	m       mmap.MMap
	pages   int
}

// Board is a running PWM engine. All methods must be called from a single
// goroutine; the only concurrent reader is the DMA engine itself.
type Board struct {
	cfg  boardConfig
	plat platform

	numSamples int

	dmaBank *regFile
	dma     *regFile
	pwm     *regFile
	pcm     *regFile
	clk     *regFile
	gpio    *regFile

	alloc mboxAlloc
	ctl   *ctl

	ch     *channels
	invert bool
	closed bool
}

// newBoard detects the platform, maps the peripherals, acquires the DMA
// memory through the mailbox, and arms the hardware. Any failure unwinds
// whatever was acquired and leaves the hardware untouched or reset.
func newBoard(cfg boardConfig) (*Board, error) {
	mb, err := openMbox()
	if err != nil {
		return nil, err
	}
	rev, err := mb.boardRevision()
	if err != nil {
		mb.close()
		return nil, err
	}
	plat, err := detectPlatform(rev)
	if err != nil {
		mb.close()
		return nil, err
	}

	b := &Board{
		cfg:        cfg,
		plat:       plat,
		numSamples: cfg.numSamples(),
		ch:         newChannels(cfg.pins),
	}

	fail := func(err error) (*Board, error) {
		b.releaseMappings()
		mb.close()
		return nil, err
	}

	b.dmaBank, err = mapPeripheral(plat.periphVirtBase+dmaBaseOffset, dmaChanSize*(dmaChanNum+1))
	if err != nil {
		return fail(err)
	}
	b.dma = b.dmaBank.window(dmaChanNum*dmaChanSize/4, dmaChanSize/4)
	b.pwm, err = mapPeripheral(plat.periphVirtBase+pwmBaseOffset, pwmLen)
	if err != nil {
		return fail(err)
	}
	b.pcm, err = mapPeripheral(plat.periphVirtBase+pcmBaseOffset, pcmLen)
	if err != nil {
		return fail(err)
	}
	b.clk, err = mapPeripheral(plat.periphVirtBase+clkBaseOffset, clkLen)
	if err != nil {
		return fail(err)
	}
	b.gpio, err = mapPeripheral(plat.periphVirtBase+gpioBaseOffset, gpioLen)
	if err != nil {
		return fail(err)
	}

	pages := (ctlBytes + pageSize - 1) / pageSize
	handle, err := mb.memAlloc(uint32(pages*pageSize), pageSize, plat.memFlag)
	if err != nil {
		return fail(err)
	}
	busAddr, err := mb.memLock(handle)
	if err != nil {
		mb.memFree(handle)
		return fail(err)
	}
	m, off, err := mapmem(busToPhys(busAddr), pages*pageSize)
	if err != nil {
		mb.memUnlock(handle)
		mb.memFree(handle)
		return fail(err)
	}
	if off != 0 {
		unmapmem(m)
		mb.memUnlock(handle)
		mb.memFree(handle)
		return fail(errors.Wrapf(ErrUnalignedMapping, "bus %#010x", busAddr))
	}
	b.alloc = mboxAlloc{handle: handle, busAddr: busAddr, m: m, pages: pages}

	// The mailbox is only needed while acquiring memory.
	mb.close()

	b.ctl = newCtl(wordsOf(m)[:ctlWords], busAddr, b.numSamples, b.targets())
	b.ctl.build(b.ch.allMask(), b.invert)
	b.initHardware()
	// idle the chain until the first SetPWM claims a channel
	b.ctl.update(b.ch, b.invert)

	runtime.SetFinalizer(b, (*Board).Terminate)
	return b, nil
}

// targets resolves the bus addresses the control blocks write to. The
// engine addresses peripherals through the bus alias, not the ARM
// physical addresses the register windows are mapped from.
func (b *Board) targets() physTargets {
	t := physTargets{
		gpioSet: b.plat.periphPhysBase + gpioBaseOffset + gpioSet0Off,
		gpioClr: b.plat.periphPhysBase + gpioBaseOffset + gpioClr0Off,
	}
	if b.cfg.pacer == PWM {
		t.fifo = b.plat.periphPhysBase + pwmBaseOffset + pwmFifoOff
		t.perMap = perMapPWM
	} else {
		t.fifo = b.plat.periphPhysBase + pcmBaseOffset + pcmFifoOff
		t.perMap = perMapPCM
	}
	return t
}

// SetPWM sets pin's duty fraction in [0, 1]. The first use of a pin
// claims a channel slot, drives the pin to its idle level, and switches
// it to output; until then the Board leaves the pin alone.
func (b *Board) SetPWM(pin int, fraction float64) error {
	if b.closed {
		return ErrClosed
	}
	if fraction < 0 || fraction > 1 {
		return errors.Wrapf(ErrFractionOutOfRange, "fraction %v", fraction)
	}
	if !b.ch.known(pin) {
		return errors.Wrapf(ErrUnknownChannel, "gpio %d", pin)
	}
	isNew, err := b.ch.acquire(pin, fraction)
	if err != nil {
		return err
	}
	if isNew {
		b.idlePin(pin)
		b.setPinMode(pin, gpioModeOut)
	}
	b.ctl.update(b.ch, b.invert)
	return nil
}

// SetAllPWM applies one fraction to every configured pin with a single
// recompute pass.
func (b *Board) SetAllPWM(fraction float64) error {
	if b.closed {
		return ErrClosed
	}
	if fraction < 0 || fraction > 1 {
		return errors.Wrapf(ErrFractionOutOfRange, "fraction %v", fraction)
	}
	for _, pin := range b.cfg.pins {
		isNew, err := b.ch.acquire(pin, fraction)
		if err != nil {
			return err
		}
		if isNew {
			b.idlePin(pin)
			b.setPinMode(pin, gpioModeOut)
		}
	}
	b.ctl.update(b.ch, b.invert)
	return nil
}

// ReleasePWM clears the pin's fraction and frees its slot for
// reassignment. Releasing a pin that holds no slot is a no-op.
func (b *Board) ReleasePWM(pin int) error {
	if b.closed {
		return ErrClosed
	}
	if !b.ch.known(pin) {
		return errors.Wrapf(ErrUnknownChannel, "gpio %d", pin)
	}
	if b.ch.release(pin) {
		b.ctl.update(b.ch, b.invert)
	}
	return nil
}

// ReleaseAllPWM idles every channel, lets the chain drive the pins to
// their deasserted level, and frees all slots. Idempotent.
func (b *Board) ReleaseAllPWM() error {
	if b.closed {
		return ErrClosed
	}
	b.ch.zeroFractions()
	b.ctl.update(b.ch, b.invert)
	b.ch.releaseAll()
	return nil
}

// SetInvertMode swaps which GPIO register asserts and which deasserts,
// inverting every output. Polarity is baked into the control block
// destinations, so the whole chain is rewritten in place.
func (b *Board) SetInvertMode(invert bool) error {
	if b.closed {
		return ErrClosed
	}
	b.invert = invert
	b.ctl.update(b.ch, b.invert)
	return nil
}

// Info reports the signal parameters derived from the configuration. No
// hardware access.
type Info struct {
	Pacer       Pacer
	Pins        []int
	Channels    int
	FreqHz      float64
	Steps       int
	MaxPeriodUs float64
	MinPeriodUs float64
	DMABase     uint32
}

func (i Info) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "pacer:          %v\n", i.Pacer)
	fmt.Fprintf(&sb, "channels:       %d %v\n", i.Channels, i.Pins)
	fmt.Fprintf(&sb, "frequency:      %.2f Hz\n", i.FreqHz)
	fmt.Fprintf(&sb, "steps:          %d\n", i.Steps)
	fmt.Fprintf(&sb, "max period:     %.2f us\n", i.MaxPeriodUs)
	fmt.Fprintf(&sb, "min period:     %.2f us\n", i.MinPeriodUs)
	fmt.Fprintf(&sb, "dma base:       0x%08x (channel %d)\n", i.DMABase, dmaChanNum)
	return sb.String()
}

// infoFor derives the signal parameters from a configuration. The pacing
// clock runs at 500MHz/divisor, one sample lasts sampleDelay ticks, and a
// cycle spans cycleTime ticks.
func infoFor(cfg boardConfig, dmaBase uint32) Info {
	return Info{
		Pacer:       cfg.pacer,
		Pins:        append([]int(nil), cfg.pins...),
		Channels:    len(cfg.pins),
		FreqHz:      500e6 / float64(cfg.pwmDivisor*cfg.cycleTime),
		Steps:       cfg.numSamples(),
		MaxPeriodUs: float64(cfg.cycleTime*cfg.pwmDivisor) / 500.0,
		MinPeriodUs: float64(cfg.sampleDelay*cfg.pwmDivisor) / 500.0,
		DMABase:     dmaBase,
	}
}

func (b *Board) Info() Info {
	return infoFor(b.cfg, b.plat.periphVirtBase+dmaBaseOffset)
}

// PrintInfo writes the Info summary to stdout.
func (b *Board) PrintInfo() {
	fmt.Print(b.Info())
}

// Terminate idles every pin, halts the DMA engine, and releases the
// mailbox allocation and register mappings in reverse acquisition order.
// Idempotent. Teardown always runs to completion; failures along the way
// are aggregated into an ErrTeardown.
func (b *Board) Terminate() error {
	if b.closed {
		return nil
	}
	b.closed = true
	runtime.SetFinalizer(b, nil)

	var faults []string

	if b.ctl != nil && b.dma != nil {
		b.ch.zeroFractions()
		b.ctl.update(b.ch, b.invert)
		// One full cycle so the final samples reach the pins.
		udelay(b.cfg.cycleTime)
		b.resetDMA()
	}

	if b.alloc.m != nil {
		if err := unmapmem(b.alloc.m); err != nil {
			faults = append(faults, fmt.Sprintf("unmap: %v", err))
		}
		b.alloc.m = nil
		mb, err := openMbox()
		if err != nil {
			faults = append(faults, err.Error())
		} else {
			if err := mb.memUnlock(b.alloc.handle); err != nil {
				faults = append(faults, err.Error())
			}
			if err := mb.memFree(b.alloc.handle); err != nil {
				faults = append(faults, err.Error())
			}
			if err := mb.close(); err != nil {
				faults = append(faults, fmt.Sprintf("mailbox close: %v", err))
			}
		}
	}

	faults = append(faults, b.releaseMappings()...)

	if len(faults) > 0 {
		return errors.Wrap(ErrTeardown, strings.Join(faults, "; "))
	}
	return nil
}

// releaseMappings unmaps the register windows in reverse mapping order.
func (b *Board) releaseMappings() []string {
	var faults []string
	for _, rf := range []*regFile{b.gpio, b.clk, b.pcm, b.pwm, b.dmaBank} {
		if err := rf.close(); err != nil {
			faults = append(faults, fmt.Sprintf("unmap registers: %v", err))
		}
	}
	b.gpio, b.clk, b.pcm, b.pwm, b.dmaBank, b.dma = nil, nil, nil, nil, nil, nil
	return faults
}

// HWIdentity is the firmware's view of the board, read via the property
// mailbox.
type HWIdentity struct {
	FirmwareRevision uint32
	BoardModel       uint32
	BoardRevision    uint32
	DMAChannelMask   uint32
	Generation       Generation
}

// DetectHardware queries the property mailbox for the board identity
// without touching any peripheral. It needs the same privileges as Build.
func DetectHardware() (HWIdentity, error) {
	mb, err := openMbox()
	if err != nil {
		return HWIdentity{}, err
	}
	defer mb.close()

	var id HWIdentity
	if id.FirmwareRevision, err = mb.firmwareRevision(); err != nil {
		return HWIdentity{}, err
	}
	if id.BoardModel, err = mb.boardModel(); err != nil {
		return HWIdentity{}, err
	}
	if id.BoardRevision, err = mb.boardRevision(); err != nil {
		return HWIdentity{}, err
	}
	if id.DMAChannelMask, err = mb.dmaChannels(); err != nil {
		return HWIdentity{}, err
	}
	plat, err := detectPlatform(id.BoardRevision)
	if err != nil {
		return HWIdentity{}, err
	}
	id.Generation = plat.gen
	return id, nil
}
