// SPDX-License-Identifier: MIT
//
// Copyright © 2020 the dmapwm authors.

// +build linux

package main

import (
	"fmt"

	"github.com/jyldev/dmapwm"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(detectCmd)
}

var detectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Identify the board via the firmware mailbox",
	Args:  cobra.NoArgs,
	RunE:  detect,
}

func detect(cmd *cobra.Command, args []string) error {
	id, err := dmapwm.DetectHardware()
	if err != nil {
		return err
	}
	fmt.Printf("generation:     %v\n", id.Generation)
	fmt.Printf("board model:    %#x\n", id.BoardModel)
	fmt.Printf("board revision: %#x\n", id.BoardRevision)
	fmt.Printf("firmware:       %#x\n", id.FirmwareRevision)
	fmt.Printf("dma channels:   %#04x\n", id.DMAChannelMask)
	return nil
}
