// SPDX-License-Identifier: MIT
//
// Copyright © 2020 the dmapwm authors.

// +build linux

package dmapwm

import (
	"fmt"
	"io"
	"time"
)

// Peripheral window offsets from the peripheral base.
const (
	dmaBaseOffset  = 0x00007000
	clkBaseOffset  = 0x00101000
	gpioBaseOffset = 0x00200000
	pcmBaseOffset  = 0x00203000
	pwmBaseOffset  = 0x0020c000
)

// Window lengths in bytes.
const (
	dmaChanSize = 0x100
	clkLen      = 0xa8
	gpioLen     = 0x100
	pcmLen      = 0x24
	pwmLen      = 0x28
)

// dmaChanNum is the DMA channel driving the chain. The low channels are
// claimed by the GPU and the SD host; 14 is the highest channel in the
// primary register bank and normally free.
const dmaChanNum = 14

// DMA channel registers, word indexed.
const (
	dmaCS       = 0x00 / 4
	dmaConblkAd = 0x04 / 4
	dmaDebug    = 0x20 / 4
)

const (
	dmaCSReset = 1 << 31
	dmaCSInt   = 1 << 2
	dmaCSEnd   = 1 << 1

	// dmaCSGo sets active with mid panic and AXI priority and waits for
	// outstanding writes.
	dmaCSGo = 0x10880001

	// dmaDebugClrErrors clears the read, FIFO and read-last-not-set error
	// latches.
	dmaDebugClrErrors = 7
)

// GPIO registers, word indexed.
const (
	gpioFSel0 = 0x00 / 4
	gpioSet0  = 0x1c / 4
	gpioClr0  = 0x28 / 4
)

const (
	gpioModeIn  = 0
	gpioModeOut = 1
)

// Byte offsets of the DMA-visible data ports within their windows.
const (
	gpioSet0Off = 0x1c
	gpioClr0Off = 0x28
	pwmFifoOff  = 0x18
	pcmFifoOff  = 0x04
)

// PWM registers, word indexed.
const (
	pwmCTL  = 0x00 / 4
	pwmDMAC = 0x08 / 4
	pwmRNG1 = 0x10 / 4
)

const (
	pwmCTLPWEN1 = 1 << 0
	pwmCTLUSEF1 = 1 << 5
	pwmCTLCLRF  = 1 << 6

	pwmDMACEnab    = 1 << 31
	pwmDMACThrshld = 15<<8 | 15
)

// PCM registers, word indexed.
const (
	pcmCSA   = 0x00 / 4
	pcmModeA = 0x08 / 4
	pcmTXCA  = 0x10 / 4
	pcmDreqA = 0x14 / 4
)

const (
	pcmCSAEn     = 1 << 0
	pcmCSATXOn   = 1 << 2
	pcmCSATXClr  = 1 << 3
	pcmCSARXClr  = 1 << 4
	pcmCSADMAEn  = 1 << 9
	pcmTXCCh1En  = 1 << 30
	pcmModeFSLen = 10
)

// Clock manager registers, word indexed within the CLK window.
const (
	pcmClkCntl = 38
	pcmClkDiv  = 39
	pwmClkCntl = 40
	pwmClkDiv  = 41
)

// Clock writes must carry the 0x5A password in the top byte or they are
// ignored.
const (
	clkPasswd      = 0x5a000000
	clkSrcPLLD     = 0x06
	clkEnable      = 0x10
	clkDivIntShift = 12
)

// udelay holds the mandated register settle time. The clock and pacing
// blocks lock up if reprogrammed back to back.
func udelay(us int) {
	time.Sleep(time.Duration(us) * time.Microsecond)
}

// initHardware programs the pacing peripheral, arms the DMA engine on the
// control block chain, and starts it. Order matters throughout: clocks
// settle before their consumers start, the chain address lands before the
// active bit, and the PCM transmitter comes up only after DMA is running
// so the FIFO cannot underrun.
func (b *Board) initHardware() {
	if b.cfg.pacer == PWM {
		b.pwm.write(pwmCTL, 0)
		udelay(10)
		b.clk.write(pwmClkCntl, clkPasswd|clkSrcPLLD)
		udelay(100)
		b.clk.write(pwmClkDiv, clkPasswd|uint32(b.cfg.pwmDivisor)<<clkDivIntShift)
		udelay(100)
		b.clk.write(pwmClkCntl, clkPasswd|clkSrcPLLD|clkEnable)
		udelay(100)
		b.pwm.write(pwmRNG1, uint32(b.cfg.sampleDelay))
		udelay(10)
		b.pwm.write(pwmDMAC, pwmDMACEnab|pwmDMACThrshld)
		udelay(10)
		b.pwm.write(pwmCTL, pwmCTLCLRF)
		udelay(10)
		b.pwm.write(pwmCTL, pwmCTLUSEF1|pwmCTLPWEN1)
		udelay(10)
	} else {
		b.pcm.write(pcmCSA, pcmCSAEn)
		udelay(100)
		b.clk.write(pcmClkCntl, clkPasswd|clkSrcPLLD)
		udelay(100)
		b.clk.write(pcmClkDiv, clkPasswd|uint32(b.cfg.pwmDivisor)<<clkDivIntShift)
		udelay(100)
		b.clk.write(pcmClkCntl, clkPasswd|clkSrcPLLD|clkEnable)
		udelay(100)
		b.pcm.write(pcmTXCA, pcmTXCCh1En)
		udelay(100)
		b.pcm.write(pcmModeA, uint32(b.cfg.sampleDelay-1)<<pcmModeFSLen)
		udelay(100)
		b.pcm.setBits(pcmCSA, pcmCSATXClr|pcmCSARXClr)
		udelay(100)
		b.pcm.write(pcmDreqA, 64<<24|64<<8)
		udelay(100)
		b.pcm.setBits(pcmCSA, pcmCSADMAEn)
		udelay(100)
	}

	b.dma.write(dmaCS, dmaCSReset)
	udelay(10)
	b.dma.write(dmaCS, dmaCSInt|dmaCSEnd)
	b.dma.write(dmaConblkAd, b.ctl.cbBus(0))
	b.dma.write(dmaDebug, dmaDebugClrErrors)
	b.dma.write(dmaCS, dmaCSGo)

	if b.cfg.pacer == PCM {
		b.pcm.setBits(pcmCSA, pcmCSATXOn)
	}
}

// resetDMA halts the engine. Safe only once the samples have been zeroed
// and a full cycle has elapsed, so every pin sits at its idle level.
func (b *Board) resetDMA() {
	b.dma.write(dmaCS, dmaCSReset)
	udelay(10)
}

// setPinMode programs the pin's function select field.
func (b *Board) setPinMode(pin, mode int) {
	reg := gpioFSel0 + pin/10
	shift := uint(pin%10) * 3
	fsel := b.gpio.read(reg)
	fsel &^= 7 << shift
	fsel |= uint32(mode) << shift
	b.gpio.write(reg, fsel)
}

// idlePin drives the pin to its deasserted level directly, bypassing the
// chain. Used before switching a fresh pin to output so it comes up idle.
func (b *Board) idlePin(pin int) {
	if b.invert {
		b.gpio.write(gpioSet0, 1<<uint(pin))
	} else {
		b.gpio.write(gpioClr0, 1<<uint(pin))
	}
}

// DumpTo writes the control block chain and engine registers, for
// debugging against a live board.
func (b *Board) DumpTo(w io.Writer) {
	fmt.Fprintf(w, "dma: cs=%08x conblk=%08x debug=%08x\n",
		b.dma.read(dmaCS), b.dma.read(dmaConblkAd), b.dma.read(dmaDebug))
	if b.cfg.pacer == PWM {
		fmt.Fprintf(w, "pwm: ctl=%08x dmac=%08x rng1=%08x\n",
			b.pwm.read(pwmCTL), b.pwm.read(pwmDMAC), b.pwm.read(pwmRNG1))
	} else {
		fmt.Fprintf(w, "pcm: cs=%08x mode=%08x txc=%08x dreq=%08x\n",
			b.pcm.read(pcmCSA), b.pcm.read(pcmModeA), b.pcm.read(pcmTXCA), b.pcm.read(pcmDreqA))
	}
	for j := 0; j < 2*b.numSamples; j++ {
		fmt.Fprintf(w, "cb[%03d]: ti=%08x src=%08x dst=%08x len=%d next=%08x\n",
			j, b.ctl.cbField(j, cbTI), b.ctl.cbField(j, cbSrc),
			b.ctl.cbField(j, cbDst), b.ctl.cbField(j, cbLen), b.ctl.cbField(j, cbNext))
	}
}
