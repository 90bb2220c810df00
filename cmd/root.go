// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/autoterm-bridge/pkg/transport"
)

var (
	// Connection flags
	portName      string
	baudRate      int
	wsUsername    string
	wsNoSSLVerify bool

	// Logging flags
	logLevel string
	logFile  string

	logOutput io.WriteCloser
)

var rootCmd = &cobra.Command{
	Use:   "autoterm-bridge",
	Short: "Autoterm heater serial bridge",
	Long: `autoterm-bridge - sits between an Autoterm diesel heater and its control panel.

Every byte is forwarded in both directions while complete frames are decoded
for telemetry. The bridge can replace the panel's temperature reading, force
the heater's temperature source and control the heater itself when no panel
is attached.

Endpoints are serial devices (/dev/ttyUSB0) or WebSocket URLs of remote
serial bridges (ws://host/path, wss://host/path).

For WebSocket authentication, the password is read from the AUTOTERM_PASSWORD
environment variable, or prompted interactively if not set. The --password
flag is intentionally not provided to avoid leaking credentials in shell history.`,
	Version:           "1.0.0",
	SilenceUsage:      true,
	PersistentPreRunE: setupLogging,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logOutput != nil {
			logOutput.Close()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "Serial device or WebSocket URL (single-port commands)")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", transport.DefaultBaudRate, "Baud rate (serial only)")
	rootCmd.PersistentFlags().StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth (WebSocket only)")
	rootCmd.PersistentFlags().BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Write logs to a file instead of stderr")
}

// Execute runs the root command. Commands are cancelled through their
// context on SIGINT or SIGTERM.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func setupLogging(cmd *cobra.Command, args []string) error {
	level, err := zerolog.ParseLevel(strings.ToLower(logLevel))
	if err != nil {
		return fmt.Errorf("invalid log level %q", logLevel)
	}
	zerolog.SetGlobalLevel(level)

	var out io.Writer = os.Stderr
	noColor := false
	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		logOutput = f
		out = f
		noColor = true
	}

	log.Logger = zerolog.New(zerolog.ConsoleWriter{
		Out:        out,
		TimeFormat: time.StampMilli,
		NoColor:    noColor,
	}).With().Timestamp().Logger()
	return nil
}

// endpoint builds an endpoint from an address and the shared connection flags
func endpoint(address string) transport.Endpoint {
	return transport.Endpoint{
		Address:       address,
		BaudRate:      baudRate,
		Username:      wsUsername,
		SkipSSLVerify: wsNoSSLVerify,
	}
}

// openPort opens the --port endpoint for single-port commands
func openPort() (transport.Conn, string, error) {
	if portName == "" {
		return nil, "", fmt.Errorf("--port must be specified")
	}
	e := endpoint(portName)
	conn, err := transport.Open(e)
	if err != nil {
		return nil, "", err
	}
	return conn, e.Describe(), nil
}
