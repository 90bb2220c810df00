// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package transport opens the byte streams the bridge runs on: local serial
// ports or remote serial bridges reached over WebSocket.
package transport

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"go.bug.st/serial"
	"golang.org/x/term"
)

// DefaultBaudRate is the Autoterm bus speed
const DefaultBaudRate = 9600

// PasswordEnv is consulted before prompting for a WebSocket password
const PasswordEnv = "AUTOTERM_PASSWORD"

// serialReadTimeout bounds each blocking read so a closed port is noticed
const serialReadTimeout = 100 * time.Millisecond

// ErrConnectionClosed is returned when reading from a closed WebSocket connection
var ErrConnectionClosed = errors.New("websocket connection closed")

// Conn is a blocking byte stream
type Conn interface {
	io.Reader
	io.Writer
	io.Closer
}

// Flusher is implemented by connections that buffer writes
type Flusher interface {
	Flush() error
}

// SerialConn wraps a serial port
type SerialConn struct {
	port serial.Port
}

func (s *SerialConn) Read(p []byte) (int, error) {
	return s.port.Read(p)
}

func (s *SerialConn) Write(p []byte) (int, error) {
	return s.port.Write(p)
}

// Flush waits until written bytes have left the UART
func (s *SerialConn) Flush() error {
	return s.port.Drain()
}

func (s *SerialConn) Close() error {
	return s.port.Close()
}

// WebSocketConn carries the byte stream in binary WebSocket messages
type WebSocketConn struct {
	conn      *websocket.Conn
	buf       []byte
	bufOffset int
	closed    bool
}

func (w *WebSocketConn) Read(p []byte) (int, error) {
	if w.closed {
		return 0, ErrConnectionClosed
	}

	if w.bufOffset < len(w.buf) {
		n := copy(p, w.buf[w.bufOffset:])
		w.bufOffset += n
		return n, nil
	}

	for {
		messageType, data, err := w.conn.ReadMessage()
		if err != nil {
			w.closed = true
			return 0, err
		}

		// Text frames are control chatter from the remote bridge
		if messageType != websocket.BinaryMessage {
			continue
		}

		w.buf = data
		w.bufOffset = 0
		n := copy(p, w.buf)
		w.bufOffset = n
		return n, nil
	}
}

func (w *WebSocketConn) Write(p []byte) (int, error) {
	if err := w.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (w *WebSocketConn) Close() error {
	return w.conn.Close()
}

// OpenSerial opens a serial port at 8N1
func OpenSerial(portName string, baudRate int) (*SerialConn, error) {
	if baudRate <= 0 {
		baudRate = DefaultBaudRate
	}
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", portName, err)
	}
	if err := port.SetReadTimeout(serialReadTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to configure serial port %s: %w", portName, err)
	}

	return &SerialConn{port: port}, nil
}

// OpenWebSocket dials a ws:// or wss:// URL with optional HTTP Basic auth
func OpenWebSocket(wsURL, username, password string, skipSSLVerify bool) (*WebSocketConn, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}

	switch u.Scheme {
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("unsupported URL scheme: %s (use ws:// or wss://)", u.Scheme)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	if u.Scheme == "wss" {
		dialer.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: skipSSLVerify,
		}
	}

	headers := http.Header{}
	if username != "" && password != "" {
		credentials := base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
		headers.Set("Authorization", "Basic "+credentials)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	conn, resp, err := dialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("WebSocket connection failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("WebSocket connection failed: %w", err)
	}

	return &WebSocketConn{conn: conn}, nil
}

// Password retrieves a password from the environment or prompts for it
func Password(envVar string) (string, error) {
	if pw := os.Getenv(envVar); pw != "" {
		return pw, nil
	}

	fmt.Fprint(os.Stderr, "Password: ")

	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		// Not a terminal
		reader := bufio.NewReader(os.Stdin)
		password, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		fmt.Fprintln(os.Stderr)
		return strings.TrimSpace(password), nil
	}

	fmt.Fprintln(os.Stderr)
	return string(passwordBytes), nil
}

// Endpoint describes one side of the bridge
type Endpoint struct {
	Address       string // serial device or ws:// / wss:// URL
	BaudRate      int
	Username      string
	SkipSSLVerify bool
}

// IsWebSocket reports whether the endpoint is a WebSocket URL
func (e Endpoint) IsWebSocket() bool {
	return strings.HasPrefix(e.Address, "ws://") || strings.HasPrefix(e.Address, "wss://")
}

// Describe returns a human readable description of the endpoint
func (e Endpoint) Describe() string {
	if e.IsWebSocket() {
		return fmt.Sprintf("WebSocket: %s", e.Address)
	}
	baud := e.BaudRate
	if baud <= 0 {
		baud = DefaultBaudRate
	}
	return fmt.Sprintf("Serial: %s @ %d baud", e.Address, baud)
}

// Open opens the endpoint. WebSocket passwords come from PasswordEnv or an
// interactive prompt.
func Open(e Endpoint) (Conn, error) {
	if e.Address == "" {
		return nil, errors.New("no address given")
	}
	if !e.IsWebSocket() {
		return OpenSerial(e.Address, e.BaudRate)
	}

	password := ""
	if e.Username != "" {
		var err error
		password, err = Password(PasswordEnv)
		if err != nil {
			return nil, err
		}
	}
	return OpenWebSocket(e.Address, e.Username, password, e.SkipSSLVerify)
}
