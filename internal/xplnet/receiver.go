// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package xplnet

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xplhald/xplhald/pkg/log"
)

// Port is the xPL UDP broadcast port.
const Port = 3865

const maxDatagram = 1500

// Datagram is one received payload, copied out of the kernel read
// buffer at receipt time so the caller can hold it past the next read.
type Datagram struct {
	Payload []byte
	From    *net.UDPAddr
}

// Config pre-wires a Receiver's dependencies, following the teacher
// corpus's Config-struct-plus-NewXxxFunc constructor idiom (grounded on
// bassosimone-nop's Config/NewConfig pattern): every field has a
// sensible default set by NewConfig, and the zero value is never used
// directly.
type Config struct {
	// Interface is the network interface to bind the broadcast socket to.
	Interface string
	// QueueDepth bounds the channel of pending received datagrams — the
	// Go-native replacement for the C original's mutex-guarded FIFO plus
	// dedicated memory pool (spec.md §9 "thread sharing -> message
	// passing").
	QueueDepth int
	// Logger receives receive-pipeline diagnostics.
	Logger *log.Logger
}

// NewConfig returns a Config with sensible defaults.
func NewConfig(iface string) *Config {
	return &Config{
		Interface:  iface,
		QueueDepth: 256,
		Logger:     log.With("xplnet"),
	}
}

// Receiver owns the broadcast UDP socket, a dedicated receive goroutine,
// and the bounded delivery channel the orchestrator consumes from. The
// receive goroutine is this package's analogue of the C original's
// dedicated receiver thread (spec.md §4.3): it copies each datagram,
// enqueues it, and advances a watchdog tick the caller asserts
// periodically.
type Receiver struct {
	cfg  Config
	conn *net.UDPConn

	out     chan Datagram
	done    chan struct{}
	dying   chan struct{}
	wg      sync.WaitGroup
	watchdog atomic.Int64
}

// NewReceiver binds a UDP socket on Port, broadcasting on cfg.Interface's
// broadcast address.
func NewReceiver(cfg *Config) (*Receiver, error) {
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = 256
	}
	if cfg.Logger == nil {
		cfg.Logger = log.With("xplnet")
	}

	conn, err := net.ListenUDP("udp4", &net.UDPAddr{Port: Port})
	if err != nil {
		return nil, fmt.Errorf("xplnet: listen: %w", err)
	}

	r := &Receiver{
		cfg:   *cfg,
		conn:  conn,
		out:   make(chan Datagram, cfg.QueueDepth),
		done:  make(chan struct{}),
		dying: make(chan struct{}),
	}
	return r, nil
}

// LocalPort returns the local port the socket is bound to, used by the
// heartbeat body's "port" field. This is the configured xPL port; no
// separate ephemeral port is bound.
func (r *Receiver) LocalPort() int {
	return r.conn.LocalAddr().(*net.UDPAddr).Port
}

// Datagrams returns the channel of received payloads, in arrival order.
func (r *Receiver) Datagrams() <-chan Datagram {
	return r.out
}

// WatchdogTick returns the current receive-tick counter. The caller
// should assert it is still advancing on a periodic basis; a stalled
// counter indicates the receive goroutine has wedged.
func (r *Receiver) WatchdogTick() int64 {
	return r.watchdog.Load()
}

// Alive compares the current watchdog tick against last and reports
// whether the receive goroutine has advanced since. The caller is
// expected to poll this periodically (every 20s per the original
// receive-thread watchdog) and treat a fixed number of consecutive
// false results as fatal.
func (r *Receiver) Alive(last int64) (current int64, alive bool) {
	current = r.watchdog.Load()
	return current, current != last
}

// Run is the dedicated receive loop; it blocks until Stop is called or
// ctx is cancelled, then returns after flushing and signaling the dying
// gasp.
func (r *Receiver) Run(ctx context.Context) {
	r.wg.Add(1)
	defer r.wg.Done()

	buf := make([]byte, maxDatagram)
	for {
		select {
		case <-r.done:
			close(r.dying)
			return
		case <-ctx.Done():
			close(r.dying)
			return
		default:
		}

		r.conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
		n, addr, err := r.conn.ReadFromUDP(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				r.watchdog.Add(1)
				continue
			}
			select {
			case <-r.done:
			case <-ctx.Done():
			default:
				r.cfg.Logger.Errorf("recv error: %v", err)
			}
			r.watchdog.Add(1)
			continue
		}

		payload := make([]byte, n)
		copy(payload, buf[:n])
		select {
		case r.out <- Datagram{Payload: payload, From: addr}:
		default:
			r.cfg.Logger.Warn("receive queue full, dropping datagram")
		}
		r.watchdog.Add(1)
	}
}

// Stop signals the receive goroutine to terminate and waits up to 1
// second for its dying-gasp acknowledgment (spec.md §4.3 cancellation
// rule), returning an error if it fails to exit in time.
func (r *Receiver) Stop() error {
	close(r.done)
	select {
	case <-r.dying:
	case <-time.After(1 * time.Second):
		return fmt.Errorf("xplnet: receive goroutine did not exit within 1s")
	}
	r.wg.Wait()
	return r.conn.Close()
}

// Send broadcasts or unicasts payload to addr.
func (r *Receiver) Send(payload []byte, addr *net.UDPAddr) error {
	_, err := r.conn.WriteToUDP(payload, addr)
	if err != nil {
		return fmt.Errorf("xplnet: send: %w", err)
	}
	return nil
}

// BroadcastAddr resolves cfg.Interface's broadcast address on Port.
func (r *Receiver) BroadcastAddr() (*net.UDPAddr, error) {
	ip, err := interfaceBroadcastAddr(r.cfg.Interface)
	if err != nil {
		return nil, err
	}
	return &net.UDPAddr{IP: ip, Port: Port}, nil
}
