// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/autoterm-bridge/pkg/autoterm"
)

var (
	probeTimeout int
	probeRequest bool
)

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Test a connection by waiting for a valid Autoterm frame",
	Long: `Wait for a valid Autoterm frame on the connection until timeout.

Invalid bytes and frames failing the CRC check are ignored. A heater only
talks when spoken to, so use --request when probing a heater directly: a
status request is then sent once per second until something answers.

Exit codes:
  0 - Frame received before timeout
  1 - Timeout reached without receiving a valid frame
  2 - Connection error`,
	RunE: runProbe,
}

func init() {
	rootCmd.AddCommand(probeCmd)
	probeCmd.Flags().IntVar(&probeTimeout, "timeout", 10, "Timeout in seconds to wait for a frame")
	probeCmd.Flags().BoolVar(&probeRequest, "request", false, "Send status requests while waiting")
}

func runProbe(cmd *cobra.Command, args []string) error {
	conn, connInfo, err := openPort()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer conn.Close()

	fmt.Printf("Autoterm Bridge - Probe\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Timeout: %d seconds\n", probeTimeout)
	fmt.Printf("Waiting for valid Autoterm frame...\n\n")

	decoder := autoterm.NewDecoder()
	frameChan := make(chan *autoterm.Frame, 1)
	errChan := make(chan error, 1)

	go func() {
		buf := make([]byte, 128)
		for {
			n, err := conn.Read(buf)
			for i := 0; i < n; i++ {
				frame, decodeErr := decoder.DecodeByte(buf[i])
				if decodeErr != nil || frame == nil {
					continue
				}
				if skipped := decoder.Skipped(); skipped > 0 {
					fmt.Printf("(skipped %d invalid bytes before sync)\n", skipped)
				}
				frameChan <- frame
				return
			}
			if err != nil {
				errChan <- err
				return
			}
		}
	}()

	var requestTick <-chan time.Time
	request := autoterm.NewStatusRequest().Bytes()
	if probeRequest {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		requestTick = ticker.C
		if _, err := conn.Write(request); err != nil {
			fmt.Fprintf(os.Stderr, "Write error: %v\n", err)
			os.Exit(2)
		}
	}

	timeout := time.After(time.Duration(probeTimeout) * time.Second)
	for {
		select {
		case frame := <-frameChan:
			fmt.Printf("SUCCESS: Received valid frame\n")
			fmt.Printf("  Command: %s (0x%02X)\n", autoterm.FormatCommand(frame.Command()), frame.Command())
			fmt.Printf("  Origin: %s\n", frame.Origin())
			fmt.Printf("  Length: %d bytes\n", frame.Length())
			fmt.Printf("  CRC: 0x%04X\n", frame.CRC())
			os.Exit(0)

		case err := <-errChan:
			fmt.Fprintf(os.Stderr, "Read error: %v\n", err)
			os.Exit(2)

		case <-requestTick:
			if _, err := conn.Write(request); err != nil {
				fmt.Fprintf(os.Stderr, "Write error: %v\n", err)
				os.Exit(2)
			}

		case <-timeout:
			fmt.Fprintf(os.Stderr, "TIMEOUT: No valid frame received within %d seconds\n", probeTimeout)
			os.Exit(1)
		}
	}
}
