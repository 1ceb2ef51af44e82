// SPDX-License-Identifier: MIT
//
// Copyright © 2020 the dmapwm authors.

// +build linux

package dmapwm

import (
	"os"
	"sync/atomic"
	"syscall"
	"unsafe"

	"github.com/pkg/errors"
)

// regFile is a mapped peripheral register window.
//
// Access is 32-bit only and atomic. The DMA, PWM, PCM and clock blocks
// tolerate neither torn writes nor compiler reordering of register
// accesses.
type regFile struct {
	buf  []byte
	regs []uint32
	phys uint32
}

// mapPeripheral memory maps length bytes of registers at phys from
// /dev/mem. Some reflection magic is used to convert the mapping to an
// unsafe []uint32 pointer.
func mapPeripheral(phys uint32, length int) (*regFile, error) {
	file, err := os.OpenFile(devMem, os.O_RDWR|os.O_SYNC, 0)
	if err != nil {
		return nil, errors.Wrap(ErrPeripheralMapFailed, err.Error())
	}
	defer file.Close()

	buf, err := syscall.Mmap(
		int(file.Fd()),
		int64(phys),
		length,
		syscall.PROT_READ|syscall.PROT_WRITE,
		syscall.MAP_SHARED)
	if err != nil {
		return nil, errors.Wrapf(ErrPeripheralMapFailed, "phys %#010x: %v", phys, err)
	}
	return &regFile{buf: buf, regs: wordsOf(buf), phys: phys}, nil
}

func (r *regFile) read(i int) uint32 {
	return atomic.LoadUint32(&r.regs[i])
}

func (r *regFile) write(i int, v uint32) {
	atomic.StoreUint32(&r.regs[i], v)
}

// setBits ORs bits into register i. Not atomic as a whole; callers are
// single threaded over any given peripheral.
func (r *regFile) setBits(i int, bits uint32) {
	r.write(i, r.read(i)|bits)
}

// window narrows the file to a word-aligned sub-range, e.g. one DMA
// channel out of the mapped bank. The parent retains the mapping; closing
// a window is a no-op.
func (r *regFile) window(wordOff, words int) *regFile {
	return &regFile{
		regs: r.regs[wordOff : wordOff+words],
		phys: r.phys + uint32(4*wordOff),
	}
}

func (r *regFile) close() error {
	if r == nil || r.buf == nil {
		return nil
	}
	buf := r.buf
	r.buf = nil
	r.regs = nil
	return syscall.Munmap(buf)
}

// wordsOf reinterprets mapped bytes as 32-bit registers, adjusting length
// as needed (32 bit = 4 bytes).
func wordsOf(buf []byte) []uint32 {
	if len(buf) < 4 {
		return nil
	}
	return unsafe.Slice((*uint32)(unsafe.Pointer(&buf[0])), len(buf)/4)
}
