// SPDX-License-Identifier: MIT
//
// Copyright © 2020 the dmapwm authors.

package dmapwm

import "errors"

// Configuration errors. Build fails before any hardware is touched.
var (
	// ErrInvalidPin indicates a pin that is zero, duplicated or beyond the
	// addressable GPIO range.
	ErrInvalidPin = errors.New("invalid pin")

	// ErrBannedPin indicates a pin reserved by the board (SD card, audio,
	// HDMI hotplug, board ID resistors).
	ErrBannedPin = errors.New("banned pin")

	// ErrTooManyChannels indicates a pin set larger than MaxChannels.
	ErrTooManyChannels = errors.New("too many channels")
)

// Platform errors. These abort construction; the Board never arms.
var (
	// ErrMailboxOpenFailed indicates the property mailbox device could not
	// be opened or created.
	ErrMailboxOpenFailed = errors.New("mailbox open failed")

	// ErrMailboxIoFailed indicates a property ioctl returned an error.
	ErrMailboxIoFailed = errors.New("mailbox ioctl failed")

	// ErrUnknownBoardModel indicates a board revision word that does not
	// decode to any supported model.
	ErrUnknownBoardModel = errors.New("unknown board model")

	// ErrPeripheralMapFailed indicates /dev/mem could not be opened or a
	// register window could not be mapped. Usually a permissions problem;
	// the process must run as root.
	ErrPeripheralMapFailed = errors.New("peripheral map failed")

	// ErrUnalignedMapping indicates the mailbox allocation mapped at an
	// address that is not page aligned.
	ErrUnalignedMapping = errors.New("mapping not page aligned")
)

// Runtime errors. Returned without side effects on the running engine.
var (
	// ErrUnknownChannel indicates a pin that is not part of the configured
	// pin set.
	ErrUnknownChannel = errors.New("unknown channel")

	// ErrFractionOutOfRange indicates a duty fraction outside [0, 1].
	ErrFractionOutOfRange = errors.New("fraction out of range")

	// ErrClosed indicates an operation on a terminated Board.
	ErrClosed = errors.New("board closed")
)

// ErrTeardown aggregates non-fatal failures during Terminate, which
// always runs to completion.
var ErrTeardown = errors.New("teardown incomplete")
