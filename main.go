// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// Autoterm Bridge - Autoterm diesel heater serial bridge
//
// A CLI tool that forwards, decodes and overrides the serial traffic
// between an Autoterm heater and its control panel.

package main

import (
	"os"

	"github.com/Thermoquad/autoterm-bridge/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
