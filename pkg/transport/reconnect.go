// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"errors"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ErrDisconnected is returned by writes while no connection is open
var ErrDisconnected = errors.New("transport disconnected")

// DialFunc opens a new connection
type DialFunc func() (Conn, error)

// Redialer is a Port that reopens its connection with exponential backoff
// whenever it is lost. Bytes queued on a lost connection are discarded.
type Redialer struct {
	dial       DialFunc
	name       string
	MinBackoff time.Duration
	MaxBackoff time.Duration
	OnState    func(connected bool)
	log        zerolog.Logger

	mu   sync.RWMutex
	port *Port

	done chan struct{}
	wg   sync.WaitGroup
}

// NewRedialer creates a redialer. Call Start to begin connecting.
func NewRedialer(name string, dial DialFunc) *Redialer {
	return &Redialer{
		dial:       dial,
		name:       name,
		MinBackoff: time.Second,
		MaxBackoff: 30 * time.Second,
		log:        log.With().Str("component", "transport").Str("endpoint", name).Logger(),
		done:       make(chan struct{}),
	}
}

// Start connects in the background and keeps the connection open until
// Close
func (r *Redialer) Start() {
	r.wg.Add(1)
	go r.supervise()
}

func (r *Redialer) supervise() {
	defer r.wg.Done()
	backoff := r.MinBackoff

	for {
		conn, err := r.dial()
		if err != nil {
			r.log.Warn().Err(err).Dur("retry_in", backoff).Msg("Connect failed")
			if !r.sleep(backoff) {
				return
			}
			backoff *= 2
			if backoff > r.MaxBackoff {
				backoff = r.MaxBackoff
			}
			continue
		}

		backoff = r.MinBackoff
		port := NewPort(conn)
		r.setPort(port)
		r.log.Info().Msg("Connected")
		if r.OnState != nil {
			r.OnState(true)
		}

		select {
		case <-r.done:
			r.setPort(nil)
			port.Close()
			return
		case <-port.Done():
		}

		r.setPort(nil)
		port.Close()
		r.log.Warn().Err(port.Err()).Msg("Connection lost, reconnecting")
		if r.OnState != nil {
			r.OnState(false)
		}
		if !r.sleep(r.MinBackoff) {
			return
		}
	}
}

// sleep waits d, returning false when the redialer is closed meanwhile
func (r *Redialer) sleep(d time.Duration) bool {
	select {
	case <-r.done:
		return false
	case <-time.After(d):
		return true
	}
}

func (r *Redialer) setPort(p *Port) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.port = p
}

func (r *Redialer) current() *Port {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.port
}

// Connected reports whether a connection is open
func (r *Redialer) Connected() bool {
	return r.current() != nil
}

func (r *Redialer) Available() int {
	if p := r.current(); p != nil {
		return p.Available()
	}
	return 0
}

func (r *Redialer) ReadByte() (byte, error) {
	if p := r.current(); p != nil {
		return p.ReadByte()
	}
	return 0, io.EOF
}

func (r *Redialer) Write(b []byte) (int, error) {
	if p := r.current(); p != nil {
		return p.Write(b)
	}
	return 0, ErrDisconnected
}

func (r *Redialer) Flush() error {
	if p := r.current(); p != nil {
		return p.Flush()
	}
	return nil
}

// Close stops reconnecting and closes the current connection
func (r *Redialer) Close() error {
	close(r.done)
	r.wg.Wait()
	return nil
}
