// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"time"

	"github.com/fatih/color"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/autoterm-bridge/pkg/autoterm"
	"github.com/Thermoquad/autoterm-bridge/pkg/bridge"
	"github.com/Thermoquad/autoterm-bridge/pkg/capture"
	"github.com/Thermoquad/autoterm-bridge/pkg/transport"
)

var (
	sniffErrorsOnly   bool
	sniffHexdump      bool
	sniffStatsSeconds int
	sniffCapture      string
)

var (
	errorLabel   = color.New(color.FgRed, color.Bold)
	warningLabel = color.New(color.FgYellow, color.Bold)
	okLabel      = color.New(color.FgGreen, color.Bold)
)

var sniffCmd = &cobra.Command{
	Use:   "sniff",
	Short: "Decode Autoterm traffic from a passive tap",
	Long: `Continuously decode and display Autoterm frames as they arrive.

Connect --port to a tap on the panel/heater line. Both directions share the
wire, so frames are attributed by their origin byte. Each frame is validated:
  - CRC errors
  - Payload length mismatches
  - Out of range levels, temperature sources and wait modes
  - Implausible supply voltages and unknown status codes

Statistics are printed every --stats-interval seconds (0 disables them) and
--capture records every frame to a file for the replay command.`,
	RunE: runSniff,
}

func init() {
	rootCmd.AddCommand(sniffCmd)
	sniffCmd.Flags().BoolVar(&sniffErrorsOnly, "errors-only", false, "Only print frames with errors or anomalies")
	sniffCmd.Flags().BoolVar(&sniffHexdump, "hexdump", false, "Print a hexdump of every frame")
	sniffCmd.Flags().IntVar(&sniffStatsSeconds, "stats-interval", 10, "Statistics update interval (seconds)")
	sniffCmd.Flags().StringVar(&sniffCapture, "capture", "", "Record frames to a capture file")
}

func runSniff(cmd *cobra.Command, args []string) error {
	conn, connInfo, err := openPort()
	if err != nil {
		return err
	}
	defer conn.Close()

	fmt.Printf("Autoterm Bridge - Sniffer\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	stats := bridge.NewStatistics()
	observers := bridge.ObserverFunc(stats.OnEvent)

	if sniffCapture != "" {
		rec, closeCapture, err := openCapture(sniffCapture)
		if err != nil {
			return err
		}
		defer closeCapture()
		observers = func(e bridge.Event) {
			stats.OnEvent(e)
			rec.OnEvent(e)
		}
	}

	var statsTick <-chan time.Time
	if sniffStatsSeconds > 0 {
		ticker := time.NewTicker(time.Duration(sniffStatsSeconds) * time.Second)
		defer ticker.Stop()
		statsTick = ticker.C
	}

	// Reads block, so they run on their own goroutine
	chunks := make(chan []byte, 16)
	readErr := make(chan error, 1)
	go func() {
		buf := make([]byte, 128)
		for {
			n, err := conn.Read(buf)
			if n > 0 {
				data := make([]byte, n)
				copy(data, buf[:n])
				chunks <- data
			}
			if err != nil {
				readErr <- err
				return
			}
		}
	}()

	ctx := cmd.Context()
	s := newSniffer(os.Stdout, observers)
	for {
		select {
		case <-ctx.Done():
			fmt.Println()
			fmt.Print(stats.String())
			return nil

		case data := <-chunks:
			s.feed(time.Now(), data)

		case err := <-readErr:
			fmt.Print(stats.String())
			if errors.Is(err, transport.ErrConnectionClosed) || errors.Is(err, io.EOF) {
				log.Info().Msg("Connection closed")
				return nil
			}
			return fmt.Errorf("read error: %w", err)

		case <-statsTick:
			fmt.Println()
			fmt.Print(stats.String())
			fmt.Println()
		}
	}
}

// sniffer decodes a single tapped line and reports what it sees
type sniffer struct {
	out          io.Writer
	decoder      *autoterm.Decoder
	observer     bridge.Observer
	synchronized bool
	skipped      int
}

func newSniffer(out io.Writer, observer bridge.Observer) *sniffer {
	return &sniffer{
		out:      out,
		decoder:  autoterm.NewDecoder(),
		observer: observer,
	}
}

func (s *sniffer) feed(now time.Time, data []byte) {
	for _, b := range data {
		frame, err := s.decoder.DecodeByte(b)
		if frame == nil {
			continue
		}
		s.sync()
		s.report(now, frame, err)
	}
}

// sync announces the first complete frame and how much noise preceded it
func (s *sniffer) sync() {
	skipped := s.decoder.Skipped()
	if !s.synchronized {
		s.synchronized = true
		if skipped > 0 {
			fmt.Fprintf(s.out, "[SYNC] Synchronized after skipping %d bytes\n\n", skipped)
		} else {
			fmt.Fprintf(s.out, "[SYNC] Synchronized\n\n")
		}
	} else if skipped > s.skipped {
		fmt.Fprintf(s.out, "[SYNC] Skipped %d bytes of noise\n\n", skipped-s.skipped)
	}
	s.skipped = skipped
}

func (s *sniffer) report(now time.Time, frame *autoterm.Frame, err error) {
	e := bridge.Event{
		Time:      now,
		Kind:      bridge.EventFrame,
		Direction: directionOf(frame),
		Frame:     frame,
	}
	if err != nil {
		e.Kind = bridge.EventCRCError
		e.Err = err
	}
	s.observer.OnEvent(e)

	if err != nil {
		fmt.Fprintf(s.out, "[%s] %s %v\n", frame.Timestamp().Format("15:04:05.000"), errorLabel.Sprint("CRC ERROR:"), err)
		fmt.Fprintf(s.out, "  Raw: %s\n", autoterm.FormatHex(frame.Bytes()))
		fmt.Fprintf(s.out, "  >>> FRAME NOT DECODED <<<\n\n")
		return
	}

	problems := autoterm.ValidateFrame(frame)
	if len(problems) > 0 {
		printValidationErrors(s.out, frame, problems)
	} else if !sniffErrorsOnly {
		fmt.Fprint(s.out, autoterm.FormatFrame(frame))
	} else {
		return
	}
	if sniffHexdump {
		hexdump(s.out, frame.Bytes(), nil)
		fmt.Fprintln(s.out)
	}
}

// directionOf attributes a tapped frame by its origin byte
func directionOf(f *autoterm.Frame) bridge.Direction {
	if f.Origin() == autoterm.OriginHeater {
		return bridge.HeaterToController
	}
	return bridge.ControllerToHeater
}

// printValidationErrors prints validation errors for a frame
func printValidationErrors(w io.Writer, frame *autoterm.Frame, problems []autoterm.ValidationError) {
	timestamp := frame.Timestamp().Format("15:04:05.000")
	fmt.Fprintf(w, "[%s] %s %s (0x%02X) from=%s\n", timestamp,
		warningLabel.Sprint("VALIDATION ERROR:"), autoterm.FormatCommand(frame.Command()), frame.Command(), frame.Origin())
	fmt.Fprintf(w, "  CRC: %s\n", okLabel.Sprint("OK"))

	for i, p := range problems {
		label := warningLabel
		if p.Type == autoterm.AnomalyLengthMismatch {
			label = errorLabel
		}
		fmt.Fprintf(w, "  Issue %d: %s\n", i+1, label.Sprint(p.Message))
		keys := make([]string, 0, len(p.Details))
		for key := range p.Details {
			keys = append(keys, key)
		}
		slices.Sort(keys)
		for _, key := range keys {
			fmt.Fprintf(w, "    %s=%v\n", key, p.Details[key])
		}
	}
	fmt.Fprintf(w, "  Raw: %s\n\n", autoterm.FormatHex(frame.Bytes()))
}

// openCapture creates a capture file and returns a recorder writing to it
func openCapture(path string) (*capture.Recorder, func(), error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create capture file: %w", err)
	}
	rec, err := capture.NewRecorder(f, time.Now())
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	log.Info().Str("file", path).Msg("Recording capture")
	return rec, func() {
		if err := rec.Err(); err != nil {
			log.Warn().Err(err).Msg("Capture incomplete")
		}
		rec.Close()
		log.Info().Int("records", rec.Count()).Str("file", path).Msg("Capture closed")
	}, nil
}
