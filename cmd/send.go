// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/autoterm-bridge/pkg/autoterm"
	"github.com/Thermoquad/autoterm-bridge/pkg/bridge"
	"github.com/Thermoquad/autoterm-bridge/pkg/mqtt"
	"github.com/Thermoquad/autoterm-bridge/pkg/transport"
)

var (
	sendSyncTimeout time.Duration
	sendWait        time.Duration
)

var sendCmd = &cobra.Command{
	Use:   "send <command> [value]",
	Short: "Send a single command to a heater",
	Long: `Connect to a heater as its panel, issue one command and print the replies.

Commands use the same names as the MQTT command topics:
  power ON|OFF               fan_mode                 fan_level 0-9
  set_temperature 0-30       work_time <minutes>      power_level 0-9
  use_work_time ON|OFF       wait_mode ON|OFF         temperature_source <name>
  request settings|status    climate/mode off|heat|fan_only
  climate/preset <name>      climate/target_temperature <celsius>

The heater's current settings are read first so that a settings change only
touches the requested field. No panel may be connected to the same line.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runSend,
}

func init() {
	rootCmd.AddCommand(sendCmd)
	sendCmd.Flags().DurationVar(&sendSyncTimeout, "sync-timeout", 3*time.Second, "How long to wait for the heater's settings")
	sendCmd.Flags().DurationVar(&sendWait, "wait", 2*time.Second, "How long to print replies after sending")
}

func runSend(cmd *cobra.Command, args []string) error {
	value := ""
	if len(args) > 1 {
		value = args[1]
	}
	intent, err := mqtt.ParseCommand(args[0], value)
	if err != nil {
		return err
	}

	conn, connInfo, err := openPort()
	if err != nil {
		return err
	}
	port := transport.NewPort(conn)
	defer port.Close()

	fmt.Printf("Autoterm Bridge - Send\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Command: %s %s\n\n", args[0], value)

	b := bridge.New(nil, port,
		bridge.WithObserver(bridge.ObserverFunc(printEvent)),
		bridge.WithLogger(log.With().Str("component", "send").Logger()),
	)

	ctx := cmd.Context()
	poll := func(until time.Time, done func() bool) {
		for time.Now().Before(until) && ctx.Err() == nil {
			b.Poll(time.Now())
			if done != nil && done() {
				return
			}
			time.Sleep(5 * time.Millisecond)
		}
	}

	b.Start(time.Now())
	poll(time.Now().Add(sendSyncTimeout), func() bool {
		_, ok := b.Settings()
		return ok
	})
	if _, ok := b.Settings(); !ok {
		log.Warn().Msg("Heater did not report its settings, using defaults")
	}
	if err := port.Err(); err != nil {
		return fmt.Errorf("connection lost: %w", err)
	}

	if err := b.Apply(time.Now(), intent); err != nil {
		return err
	}
	poll(time.Now().Add(sendWait), nil)

	settings, ok := b.Settings()
	if ok {
		fmt.Printf("\nSettings: %s\n", settings)
	}
	fmt.Printf("State: %s\n", b.State())
	return nil
}

// printEvent prints the frames exchanged with the heater
func printEvent(e bridge.Event) {
	switch e.Kind {
	case bridge.EventCommand:
		fmt.Printf(">>> %s", autoterm.FormatFrame(e.Frame))
	case bridge.EventFrame:
		fmt.Printf("<<< %s", autoterm.FormatFrame(e.Frame))
	case bridge.EventCRCError:
		fmt.Printf("<<< %s %s\n", errorLabel.Sprint("CRC ERROR:"), autoterm.FormatHex(e.Frame.Bytes()))
	case bridge.EventResync:
		fmt.Printf("<<< %s %d bytes\n", warningLabel.Sprint("NOISE:"), len(e.Bytes))
	case bridge.EventSendFailed:
		fmt.Printf(">>> %s %v\n", errorLabel.Sprint("SEND FAILED:"), e.Err)
	default:
		fmt.Printf("--- %s %s\n", e.Kind, e.Direction)
	}
}
