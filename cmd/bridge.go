// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Thermoquad/autoterm-bridge/pkg/autoterm"
	"github.com/Thermoquad/autoterm-bridge/pkg/bridge"
	"github.com/Thermoquad/autoterm-bridge/pkg/metrics"
	"github.com/Thermoquad/autoterm-bridge/pkg/mqtt"
	"github.com/Thermoquad/autoterm-bridge/pkg/transport"
)

const intentQueueSize = 16

var (
	controllerAddr string
	heaterAddr     string
	bridgeTUI      bool
	bridgeCapture  string
	bridgeStats    int

	// Timing
	linkTimeout          time.Duration
	statusPollInterval   time.Duration
	settingsPollInterval time.Duration
	virtualPanelInterval time.Duration

	// Overrides at startup
	virtualPanelTemp float64
	forceSourceName  string

	// Outputs
	metricsListen       string
	mqttBroker          string
	mqttUsername        string
	mqttClientID        string
	mqttPrefix          string
	mqttDiscoveryPrefix string
)

var bridgeCmd = &cobra.Command{
	Use:   "bridge",
	Short: "Run the bridge between a panel and a heater",
	Long: `Forward traffic between an Autoterm control panel and its heater.

Every byte is passed through unchanged unless an override is active:
  - The virtual panel replaces the panel's temperature reading with
    --virtual-panel-temperature (or a value set over MQTT)
  - --force-source rewrites the temperature source of every mode and
    settings frame sent to the heater

Without a panel the bridge polls the heater itself and accepts commands from
MQTT or the dashboard. Lost serial or WebSocket links are reopened with
exponential backoff.

State is published to MQTT (--mqtt-broker) with optional Home Assistant
discovery and exported as Prometheus metrics (--metrics-listen).`,
	RunE: runBridge,
}

func init() {
	rootCmd.AddCommand(bridgeCmd)

	f := bridgeCmd.Flags()
	f.StringVar(&controllerAddr, "controller", "", "Panel side serial device or WebSocket URL (optional)")
	f.StringVar(&heaterAddr, "heater", "", "Heater side serial device or WebSocket URL")
	f.BoolVar(&bridgeTUI, "tui", false, "Show the terminal dashboard")
	f.StringVar(&bridgeCapture, "capture", "", "Record wire events to a capture file")
	f.IntVar(&bridgeStats, "stats-interval", 60, "Log statistics every N seconds (0 disables, text mode only)")

	defaults := bridge.DefaultConfig()
	f.DurationVar(&linkTimeout, "link-timeout", defaults.LinkTimeout, "Panel considered absent after this much silence")
	f.DurationVar(&statusPollInterval, "status-interval", defaults.StatusPollInterval, "Status poll interval without a panel")
	f.DurationVar(&settingsPollInterval, "settings-interval", defaults.SettingsPollInterval, "Settings poll interval without a panel")
	f.DurationVar(&virtualPanelInterval, "virtual-panel-interval", defaults.VirtualPanelInterval, "Virtual panel temperature retransmit interval")

	f.Float64Var(&virtualPanelTemp, "virtual-panel-temperature", math.NaN(), "Enable the virtual panel with this temperature (°C)")
	f.StringVar(&forceSourceName, "force-source", "", "Force the temperature source ("+strings.Join(autoterm.SourceNames(), ", ")+")")

	f.StringVar(&metricsListen, "metrics-listen", "", "Serve Prometheus metrics on this address (e.g. :9100)")
	f.StringVar(&mqttBroker, "mqtt-broker", "", "MQTT broker URL (e.g. tcp://localhost:1883)")
	f.StringVar(&mqttUsername, "mqtt-username", "", "MQTT username (password from "+mqtt.PasswordEnv+")")
	f.StringVar(&mqttClientID, "mqtt-client-id", "", "MQTT client ID")
	f.StringVar(&mqttPrefix, "mqtt-prefix", "autoterm", "MQTT topic prefix")
	f.StringVar(&mqttDiscoveryPrefix, "mqtt-discovery-prefix", "", "Home Assistant discovery prefix (e.g. homeassistant)")

	bridgeCmd.MarkFlagRequired("heater")
}

func runBridge(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	if bridgeTUI && logFile == "" {
		// Log lines would tear the dashboard
		log.Logger = log.Output(io.Discard)
	}

	forced := autoterm.SourceUnset
	if forceSourceName != "" {
		src, err := autoterm.ParseSource(forceSourceName)
		if err != nil {
			return err
		}
		forced = src
	}

	heater, err := newRedialer("heater", heaterAddr)
	if err != nil {
		return err
	}
	defer heater.Close()

	var controller *transport.Redialer
	if controllerAddr != "" {
		controller, err = newRedialer("controller", controllerAddr)
		if err != nil {
			return err
		}
		defer controller.Close()
	}

	intents := make(chan bridge.Intent, intentQueueSize)
	sinks := bridge.MultiSink{}
	opts := []bridge.Option{
		bridge.WithConfig(bridge.Config{
			LinkTimeout:          linkTimeout,
			StatusPollInterval:   statusPollInterval,
			SettingsPollInterval: settingsPollInterval,
			VirtualPanelInterval: virtualPanelInterval,
			PollInterval:         bridge.DefaultConfig().PollInterval,
		}),
		bridge.WithLogger(log.With().Str("component", "bridge").Logger()),
	}

	g, gctx := errgroup.WithContext(ctx)

	if metricsListen != "" {
		collector := metrics.New()
		sinks = append(sinks, collector)
		opts = append(opts, bridge.WithObserver(collector))
		g.Go(func() error {
			log.Info().Str("listen", metricsListen).Msg("Serving metrics")
			return collector.Serve(gctx, metricsListen)
		})
	}

	if mqttBroker != "" {
		client, err := connectMQTT(intents)
		if err != nil {
			return err
		}
		defer client.Close()
		sinks = append(sinks, client)
	}

	if bridgeCapture != "" {
		rec, closeCapture, err := openCapture(bridgeCapture)
		if err != nil {
			return err
		}
		defer closeCapture()
		opts = append(opts, bridge.WithObserver(rec))
	}

	var program *tea.Program
	if bridgeTUI {
		model := initialDashboardModel(describeBridge(), intents, false)
		program = tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
		sink := dashboardSink{p: program}
		sinks = append(sinks, sink)
		opts = append(opts, bridge.WithObserver(sink))
		heater.OnState = func(up bool) { sink.Link("Heater", up) }
		if controller != nil {
			controller.OnState = func(up bool) { sink.Link("Controller", up) }
		}
	} else {
		observer := &loggingObserver{stats: bridge.NewStatistics()}
		opts = append(opts, bridge.WithObserver(observer))
		if bridgeStats > 0 {
			g.Go(func() error {
				logStatistics(gctx, observer, time.Duration(bridgeStats)*time.Second)
				return nil
			})
		}
	}

	opts = append(opts, bridge.WithSink(sinks))

	var b *bridge.Bridge
	if controller != nil {
		b = bridge.New(controller, heater, opts...)
	} else {
		b = bridge.New(nil, heater, opts...)
	}

	// Startup overrides go through the intent queue so they are applied by
	// the bridge goroutine
	if !math.IsNaN(virtualPanelTemp) {
		intents <- bridge.VirtualPanelTemperature(virtualPanelTemp)
		intents <- bridge.VirtualPanelEnabled(true)
	}
	if forced != autoterm.SourceUnset {
		intents <- bridge.ForceSource(forced)
	}

	heater.Start()
	if controller != nil {
		controller.Start()
	}

	log.Info().Str("bridge", describeBridge()).Msg("Bridge starting")
	g.Go(func() error {
		err := b.Run(gctx, intents)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	if program != nil {
		// Quitting the dashboard stops the bridge
		g.Go(func() error {
			defer cancel()
			if _, err := program.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
				return fmt.Errorf("TUI error: %w", err)
			}
			return nil
		})
	}

	err = g.Wait()
	log.Info().Msg("Bridge stopped")
	return err
}

// newRedialer creates a reconnecting transport for an endpoint. WebSocket
// passwords are read once, up front.
func newRedialer(name, address string) (*transport.Redialer, error) {
	e := endpoint(address)
	dial := func() (transport.Conn, error) { return transport.Open(e) }

	if e.IsWebSocket() && e.Username != "" {
		password, err := transport.Password(transport.PasswordEnv)
		if err != nil {
			return nil, err
		}
		dial = func() (transport.Conn, error) {
			return transport.OpenWebSocket(e.Address, e.Username, password, e.SkipSSLVerify)
		}
	}
	return transport.NewRedialer(name, dial), nil
}

func connectMQTT(intents chan<- bridge.Intent) (*mqtt.Client, error) {
	cfg := mqtt.Config{
		Broker:          mqttBroker,
		Username:        mqttUsername,
		ClientID:        mqttClientID,
		Prefix:          mqttPrefix,
		DiscoveryPrefix: mqttDiscoveryPrefix,
	}
	if mqttUsername != "" {
		password, err := transport.Password(mqtt.PasswordEnv)
		if err != nil {
			return nil, err
		}
		cfg.Password = password
	}
	return mqtt.Connect(cfg, intents)
}

func describeBridge() string {
	heater := endpoint(heaterAddr).Describe()
	if controllerAddr == "" {
		return "Heater " + heater + " (no panel)"
	}
	return "Panel " + endpoint(controllerAddr).Describe() + " ↔ Heater " + heater
}

// loggingObserver logs wire errors and feeds the statistics in text mode
type loggingObserver struct {
	stats *bridge.Statistics
	mu    sync.Mutex
}

func (o *loggingObserver) OnEvent(e bridge.Event) {
	o.mu.Lock()
	o.stats.OnEvent(e)
	o.mu.Unlock()

	switch e.Kind {
	case bridge.EventCRCError:
		log.Warn().Stringer("direction", e.Direction).
			Str("bytes", autoterm.FormatHex(e.Frame.Bytes())).
			Msg("CRC error, forwarded without decoding")
	case bridge.EventResync:
		log.Warn().Stringer("direction", e.Direction).
			Int("bytes", len(e.Bytes)).
			Msg("Flushed unsynchronized bytes")
	case bridge.EventSendFailed:
		log.Error().Err(e.Err).Msg("Send failed")
	case bridge.EventCommand:
		log.Debug().Str("command", autoterm.FormatCommand(e.Frame.Command())).Msg("Sent frame")
	case bridge.EventFrame, bridge.EventRewritten, bridge.EventSuppressed:
		log.Trace().Stringer("direction", e.Direction).
			Str("kind", e.Kind.String()).
			Str("command", autoterm.FormatCommand(e.Frame.Command())).
			Msg("Frame")
	}
}

func (o *loggingObserver) summary() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.stats.String()
}

func logStatistics(ctx context.Context, o *loggingObserver, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		log.Info().Msg("Statistics\n" + o.summary())
	}
}
