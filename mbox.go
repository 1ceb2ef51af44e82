// SPDX-License-Identifier: MIT
//
// Copyright © 2020 the dmapwm authors.

// +build linux

// Property-mailbox access to the VideoCore firmware.
//
// The mailbox hands out the one resource the DMA chain cannot live
// without: physically contiguous memory with a known bus address.
// Protocol reference:
// https://github.com/raspberrypi/firmware/wiki/Mailbox-property-interface

package dmapwm

import (
	"fmt"
	"os"
	"path/filepath"
	"unsafe"

	mmap "github.com/edsrzf/mmap-go"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

const (
	devVCIO = "/dev/vcio"
	devMem  = "/dev/mem"

	// Major number of the mailbox char device, for the mknod fallback on
	// kernels without /dev/vcio.
	mboxMajor = 100

	pageSize = 4096
)

// VideoCore memory allocation flags.
const (
	memFlagDirect          = 1 << 2 // 0xC alias, uncached
	memFlagCoherent        = 2 << 2 // 0x8 alias, non-allocating in L2 but coherent
	memFlagL1NonAllocating = memFlagDirect | memFlagCoherent
	memFlagZero            = 1 << 4 // zero initialise
)

// Property tags.
const (
	tagFirmwareRevision = 0x10000
	tagBoardModel       = 0x10001
	tagBoardRevision    = 0x10002
	tagMemAlloc         = 0x3000c
	tagMemLock          = 0x3000d
	tagMemUnlock        = 0x3000e
	tagMemFree          = 0x3000f
	tagDMAChannels      = 0x60001
)

const propWords = 32

// propRequest is one property message: a fixed array of 32-bit words laid
// out as [total_size, request_code, tag, buffer_size, data_size,
// value..., end_tag]. The firmware overwrites the value slots in place,
// so results are read from the positions the arguments were written to.
type propRequest struct {
	buf [propWords]uint32
}

// newPropRequest lays out a single-tag request. valueWords is the size of
// the tag's value buffer; args fill its leading slots.
func newPropRequest(tag uint32, valueWords int, args ...uint32) *propRequest {
	p := &propRequest{}
	p.buf[1] = 0 // process request
	p.buf[2] = tag
	p.buf[3] = uint32(valueWords * 4)
	p.buf[4] = uint32(len(args) * 4)
	copy(p.buf[5:5+valueWords], args)
	p.buf[5+valueWords] = 0 // end tag
	p.buf[0] = uint32((5 + valueWords + 1) * 4)
	return p
}

// value returns the i'th word of the response value buffer.
func (p *propRequest) value(i int) uint32 { return p.buf[5+i] }

// responded reports whether the firmware marked the tag as processed.
func (p *propRequest) responded() bool { return p.buf[4]&0x80000000 != 0 }

// ioctl request code construction, _IOWR style: direction, type, number
// and argument size packed into one word.
const (
	iocNrBits   = 8
	iocTypeBits = 8
	iocSizeBits = 14

	iocNrShift   = 0
	iocTypeShift = iocNrShift + iocNrBits
	iocSizeShift = iocTypeShift + iocTypeBits
	iocDirShift  = iocSizeShift + iocSizeBits

	iocWrite = 1
	iocRead  = 2
)

func iowr(typ, nr, size uintptr) uintptr {
	return (iocRead|iocWrite)<<iocDirShift | size<<iocSizeShift | typ<<iocTypeShift | nr<<iocNrShift
}

// mbox is an open handle on the firmware property mailbox. It is needed
// only while acquiring or releasing memory, not while the engine runs.
type mbox struct {
	f *os.File
}

// openMbox opens /dev/vcio, falling back to a transient device node
// created with the fixed mailbox major number on older kernels.
func openMbox() (*mbox, error) {
	f, err := os.OpenFile(devVCIO, os.O_RDONLY, 0)
	if err != nil {
		f, err = openMboxNode()
	}
	if err != nil {
		return nil, errors.Wrap(ErrMailboxOpenFailed, err.Error())
	}
	return &mbox{f: f}, nil
}

// openMboxNode mknods a temporary mailbox device, opens it, and removes
// the node again; the open file keeps the device alive.
func openMboxNode() (*os.File, error) {
	path := filepath.Join(os.TempDir(), fmt.Sprintf("dmapwm-mbox-%d", os.Getpid()))
	os.Remove(path)
	dev := unix.Mkdev(mboxMajor, 0)
	if err := unix.Mknod(path, unix.S_IFCHR|0600, int(dev)); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_RDONLY, 0)
	if rerr := os.Remove(path); rerr != nil && err == nil {
		f.Close()
		return nil, rerr
	}
	return f, err
}

func (mb *mbox) close() error { return mb.f.Close() }

// property issues one ioctl per message.
func (mb *mbox) property(p *propRequest) error {
	req := iowr(mboxMajor, 0, unsafe.Sizeof(uintptr(0)))
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, mb.f.Fd(), req, uintptr(unsafe.Pointer(&p.buf[0])))
	if errno != 0 {
		return errors.Wrapf(ErrMailboxIoFailed, "tag %#x: %v", p.buf[2], errno)
	}
	if !p.responded() {
		return errors.Wrapf(ErrMailboxIoFailed, "tag %#x: no response", p.buf[2])
	}
	return nil
}

// memAlloc requests size bytes of contiguous VideoCore memory and returns
// its handle. The memory is not addressable until locked.
func (mb *mbox) memAlloc(size, align, flags uint32) (uint32, error) {
	p := newPropRequest(tagMemAlloc, 3, size, align, flags)
	if err := mb.property(p); err != nil {
		return 0, err
	}
	if p.value(0) == 0 {
		return 0, errors.Wrapf(ErrMailboxIoFailed, "allocating %d bytes: out of memory", size)
	}
	return p.value(0), nil
}

// memLock pins the allocation and returns its bus address.
func (mb *mbox) memLock(handle uint32) (uint32, error) {
	p := newPropRequest(tagMemLock, 1, handle)
	if err := mb.property(p); err != nil {
		return 0, err
	}
	return p.value(0), nil
}

func (mb *mbox) memUnlock(handle uint32) error {
	p := newPropRequest(tagMemUnlock, 1, handle)
	return mb.property(p)
}

func (mb *mbox) memFree(handle uint32) error {
	p := newPropRequest(tagMemFree, 1, handle)
	return mb.property(p)
}

func (mb *mbox) query(tag uint32) (uint32, error) {
	p := newPropRequest(tag, 1)
	if err := mb.property(p); err != nil {
		return 0, err
	}
	return p.value(0), nil
}

func (mb *mbox) boardRevision() (uint32, error)    { return mb.query(tagBoardRevision) }
func (mb *mbox) boardModel() (uint32, error)       { return mb.query(tagBoardModel) }
func (mb *mbox) firmwareRevision() (uint32, error) { return mb.query(tagFirmwareRevision) }
func (mb *mbox) dmaChannels() (uint32, error)      { return mb.query(tagDMAChannels) }

// busToPhys strips the VideoCore bus aliasing bits from a bus address.
func busToPhys(bus uint32) uint32 { return bus &^ 0xC0000000 }

// mapmem maps size bytes of physical memory into the process. The
// mapping starts on the page containing phys; the returned offset
// locates phys within it.
func mapmem(phys uint32, size int) (mmap.MMap, int, error) {
	f, err := os.OpenFile(devMem, os.O_RDWR|os.O_SYNC, 0)
	if err != nil {
		return nil, 0, errors.Wrap(ErrPeripheralMapFailed, err.Error())
	}
	defer f.Close()

	offset := int(phys & (pageSize - 1))
	m, err := mmap.MapRegion(f, size+offset, mmap.RDWR, 0, int64(phys)-int64(offset))
	if err != nil {
		return nil, 0, errors.Wrapf(ErrPeripheralMapFailed, "phys %#010x: %v", phys, err)
	}
	return m, offset, nil
}

func unmapmem(m mmap.MMap) error { return m.Unmap() }
