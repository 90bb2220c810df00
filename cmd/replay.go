// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/autoterm-bridge/pkg/autoterm"
	"github.com/Thermoquad/autoterm-bridge/pkg/bridge"
	"github.com/Thermoquad/autoterm-bridge/pkg/capture"
)

var replayHexdump bool

var replayCmd = &cobra.Command{
	Use:   "replay <capture-file>",
	Short: "Print the frames recorded in a capture file",
	Long: `Decode a capture written by "sniff --capture" or "bridge --capture".

Every recorded event is printed in order with its direction. Frames the
bridge rewrote are shown next to the frame as received, with the changed
bytes highlighted. A statistics summary closes the output.`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

func init() {
	rootCmd.AddCommand(replayCmd)
	replayCmd.Flags().BoolVar(&replayHexdump, "hexdump", false, "Print a hexdump of every frame")
}

func runReplay(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	rd, err := capture.NewReader(f)
	if err != nil {
		return err
	}

	fmt.Printf("Autoterm Bridge - Replay\n")
	fmt.Printf("Capture: %s (started %s)\n\n", args[0], rd.Started().Format("2006-01-02 15:04:05"))

	stats := bridge.NewStatistics()
	stats.StartTime = rd.Started()

	count := 0
	for {
		rec, err := rd.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Capture truncated after %d records: %v\n", count, err)
			break
		}
		count++

		e := rec.Event()
		stats.OnEvent(e)
		printReplayEvent(os.Stdout, e)
	}

	fmt.Printf("\n%d records\n", count)
	fmt.Print(stats.String())
	return nil
}

func printReplayEvent(w io.Writer, e bridge.Event) {
	stamp := e.Time.Format("15:04:05.000")
	switch e.Kind {
	case bridge.EventResync, bridge.EventSendFailed:
		label := warningLabel
		if e.Kind == bridge.EventSendFailed {
			label = errorLabel
		}
		fmt.Fprintf(w, "[%s] %s %s %d bytes", stamp, e.Direction, label.Sprint(e.Kind), len(e.Bytes))
		if e.Err != nil {
			fmt.Fprintf(w, ": %v", e.Err)
		}
		fmt.Fprintln(w)
		if replayHexdump && len(e.Bytes) > 0 {
			hexdump(w, e.Bytes, nil)
		}
		return
	}

	if e.Frame == nil {
		fmt.Fprintf(w, "[%s] %s %s (unparsable)\n", stamp, e.Direction, e.Kind)
		return
	}

	fmt.Fprintf(w, "[%s] %s %s ", stamp, e.Direction, e.Kind)
	if e.Kind == bridge.EventCRCError {
		fmt.Fprintf(w, "%s\n", errorLabel.Sprint(autoterm.FormatHex(e.Frame.Bytes())))
	} else {
		fmt.Fprint(w, autoterm.FormatFrame(e.Frame))
	}

	if e.Original != nil {
		fmt.Fprintf(w, "  received:\n")
		hexdump(w, e.Original.Bytes(), nil)
		fmt.Fprintf(w, "  forwarded:\n")
		hexdump(w, e.Frame.Bytes(), diffMask(e.Original.Bytes(), e.Frame.Bytes()))
	} else if replayHexdump {
		hexdump(w, e.Frame.Bytes(), nil)
	}
}
