// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/autoterm-bridge/pkg/autoterm"
	"github.com/Thermoquad/autoterm-bridge/pkg/transport"
)

var (
	pingTimeout int
	pingCount   int
)

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Measure heater round trips with status requests",
	Long: `Send status requests to a heater and wait for each status report.

This verifies that the heater side of the line works in both directions and
shows the round trip time, including any WebSocket bridge in between. No
panel may be connected to the same line.

Exit codes:
  0 - All requests answered
  1 - One or more requests failed or timed out
  2 - Connection error`,
	RunE: runPing,
}

func init() {
	rootCmd.AddCommand(pingCmd)
	pingCmd.Flags().IntVar(&pingTimeout, "timeout", 2, "Timeout in seconds for each request")
	pingCmd.Flags().IntVar(&pingCount, "count", 3, "Number of requests to send")
}

func runPing(cmd *cobra.Command, args []string) error {
	conn, connInfo, err := openPort()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	port := transport.NewPort(conn)
	defer port.Close()

	fmt.Printf("Autoterm Bridge - Ping\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Timeout: %d seconds per request\n", pingTimeout)
	fmt.Printf("Count: %d requests\n\n", pingCount)

	decoder := autoterm.NewDecoder()
	request := autoterm.NewStatusRequest().Bytes()
	timeout := time.Duration(pingTimeout) * time.Second
	successCount := 0

	for i := 1; i <= pingCount; i++ {
		fmt.Printf("Request %d/%d: ", i, pingCount)

		startTime := time.Now()
		if _, err := port.Write(request); err != nil {
			fmt.Printf("SEND FAILED: %v\n", err)
			continue
		}

		status, err := awaitStatus(port, decoder, startTime.Add(timeout))
		switch {
		case err != nil:
			fmt.Printf("READ FAILED: %v\n", err)
		case status == nil:
			fmt.Printf("TIMEOUT (no response in %ds)\n", pingTimeout)
		default:
			fmt.Printf("%s, %.1f V, rtt=%v\n", status.Text, status.Voltage, time.Since(startTime).Round(time.Millisecond))
			successCount++
		}

		// Small delay between requests
		if i < pingCount {
			time.Sleep(100 * time.Millisecond)
		}
	}

	fmt.Printf("\n--- Ping statistics ---\n")
	fmt.Printf("%d requests sent, %d responses received, %.0f%% loss\n",
		pingCount, successCount, float64(pingCount-successCount)/float64(pingCount)*100)

	if successCount < pingCount {
		os.Exit(1)
	}
	return nil
}

// awaitStatus reads from port until a status report arrives or the deadline
// passes. Other frames are ignored. A nil status without error means timeout.
func awaitStatus(port *transport.Port, decoder *autoterm.Decoder, deadline time.Time) (*autoterm.Status, error) {
	for time.Now().Before(deadline) {
		b, err := port.ReadByte()
		if err == io.EOF {
			if perr := port.Err(); perr != nil {
				return nil, perr
			}
			time.Sleep(time.Millisecond)
			continue
		}

		frame, decodeErr := decoder.DecodeByte(b)
		if decodeErr != nil || frame == nil || frame.Origin() != autoterm.OriginHeater {
			continue
		}
		if status, ok := autoterm.ParseStatus(frame); ok {
			return &status, nil
		}
	}
	return nil, nil
}
