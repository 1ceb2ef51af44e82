// SPDX-License-Identifier: MIT
//
// Copyright © 2020 the dmapwm authors.

// +build linux

package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	addBuildFlags(infoCmd)
	rootCmd.AddCommand(infoCmd)
}

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Report the signal parameters for a configuration",
	Args:  cobra.NoArgs,
	RunE:  info,
}

func info(cmd *cobra.Command, args []string) error {
	board, err := buildBoard()
	if err != nil {
		return err
	}
	defer board.Terminate()
	fmt.Print(board.Info())
	return nil
}
