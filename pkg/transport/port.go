// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"errors"
	"io"
	"sync"
)

// MaxQueued bounds the receive queue. Older bytes are dropped beyond it.
const MaxQueued = 4096

// Port turns a blocking Conn into the non-blocking stream the bridge
// polls. A reader goroutine fills a queue that ReadByte drains.
type Port struct {
	conn Conn

	mu      sync.Mutex
	queue   []byte
	dropped uint64
	err     error

	done chan struct{}
}

// NewPort starts reading from conn in the background
func NewPort(conn Conn) *Port {
	p := &Port{
		conn: conn,
		done: make(chan struct{}),
	}
	go p.readLoop()
	return p
}

func (p *Port) readLoop() {
	defer close(p.done)
	buf := make([]byte, 256)
	for {
		n, err := p.conn.Read(buf)
		if n > 0 {
			p.mu.Lock()
			p.queue = append(p.queue, buf[:n]...)
			if over := len(p.queue) - MaxQueued; over > 0 {
				p.queue = p.queue[over:]
				p.dropped += uint64(over)
			}
			p.mu.Unlock()
		}
		if err != nil {
			p.mu.Lock()
			p.err = err
			p.mu.Unlock()
			return
		}
	}
}

// Available returns the number of queued bytes
func (p *Port) Available() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

// ReadByte returns the next queued byte, or io.EOF when the queue is empty
func (p *Port) ReadByte() (byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.queue) == 0 {
		return 0, io.EOF
	}
	c := p.queue[0]
	p.queue = p.queue[1:]
	return c, nil
}

func (p *Port) Write(b []byte) (int, error) {
	return p.conn.Write(b)
}

// Flush drains the underlying connection when it buffers writes
func (p *Port) Flush() error {
	if f, ok := p.conn.(Flusher); ok {
		return f.Flush()
	}
	return nil
}

// Dropped returns the number of bytes discarded because the queue was full
func (p *Port) Dropped() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dropped
}

// Err returns the error that stopped the reader, if any
func (p *Port) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// Done is closed when the reader stops
func (p *Port) Done() <-chan struct{} {
	return p.done
}

// Close closes the connection and waits for the reader to stop
func (p *Port) Close() error {
	err := p.conn.Close()
	<-p.done
	if errors.Is(err, ErrConnectionClosed) {
		return nil
	}
	return err
}
