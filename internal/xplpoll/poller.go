// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package xplpoll implements a level-triggered readiness multiplexer over
// file descriptors plus a periodic timeout-callback list, grounded on the
// unix.Poll + eventfd idiom used for cancellable blocking receive loops
// (other_examples' doublezero uping listener). The C original (poll.c)
// wraps a single poll(2) call with a user-registered fd/callback table;
// this is the same shape with a Go-native wake mechanism replacing the
// original's own pipe-based self-pipe trick.
package xplpoll

import (
	"encoding/binary"
	"fmt"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/xplhald/xplhald/pkg/log"
)

// Mask bits mirror the readiness primitive 1:1.
type Mask int16

const (
	Readable Mask = unix.POLLIN
	Writable Mask = unix.POLLOUT
	Error    Mask = unix.POLLERR | unix.POLLHUP
)

// Callback is invoked with the fd and the revents mask that fired.
type Callback func(fd int, revents Mask)

// TimeoutCallback is invoked once per wait() call that returns no fd
// events, and once per interrupted wait.
type TimeoutCallback func()

type registration struct {
	fd       int
	mask     Mask
	cb       Callback
	oneShot  bool
	unregd   bool
}

type timeoutReg struct {
	id  int
	cb  TimeoutCallback
	unregd bool
}

// Poller is single-threaded: register/unregister/wait must all be called
// from the same goroutine.
type Poller struct {
	mu        sync.Mutex
	regs      []*registration
	timeouts  []*timeoutReg
	nextTOID  int
	wakeR     int // eventfd read/write end used to interrupt Wait
	log       *log.Logger
}

// New creates a Poller with its own eventfd wake descriptor, used by
// Wake to interrupt a concurrently blocked Wait call.
func New() (*Poller, error) {
	efd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("xplpoll: eventfd: %w", err)
	}
	p := &Poller{wakeR: efd, log: log.With("xplpoll")}
	return p, nil
}

// Register adds fd to the watch set. A one-shot registration is
// auto-unregistered after its callback fires once.
func (p *Poller) Register(fd int, mask Mask, oneShot bool, cb Callback) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.regs = append(p.regs, &registration{fd: fd, mask: mask, cb: cb, oneShot: oneShot})
}

// Unregister removes every registration for fd.
func (p *Poller) Unregister(fd int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, r := range p.regs {
		if r.fd == fd {
			r.unregd = true
		}
	}
	p.compact()
}

// RegisterTimeout adds cb to the timeout-callback list, returning an id
// usable with UnregisterTimeout.
func (p *Poller) RegisterTimeout(cb TimeoutCallback) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextTOID++
	id := p.nextTOID
	p.timeouts = append(p.timeouts, &timeoutReg{id: id, cb: cb})
	return id
}

// UnregisterTimeout removes the timeout callback registered under id.
func (p *Poller) UnregisterTimeout(id int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, t := range p.timeouts {
		if t.id == id {
			t.unregd = true
		}
	}
	p.compactTimeouts()
}

func (p *Poller) compact() {
	kept := p.regs[:0]
	for _, r := range p.regs {
		if !r.unregd {
			kept = append(kept, r)
		}
	}
	p.regs = kept
}

func (p *Poller) compactTimeouts() {
	kept := p.timeouts[:0]
	for _, t := range p.timeouts {
		if !t.unregd {
			kept = append(kept, t)
		}
	}
	p.timeouts = kept
}

// Wake interrupts a concurrently blocked Wait call, firing the
// timeout-callback list once (per the "interrupted wait" rule).
func (p *Poller) Wake() {
	var one [8]byte
	binary.LittleEndian.PutUint64(one[:], 1)
	_, _ = unix.Write(p.wakeR, one[:])
}

// Close releases the wake eventfd. The Poller must not be used afterward.
func (p *Poller) Close() error {
	return unix.Close(p.wakeR)
}

// Wait blocks up to timeoutMs (-1 for indefinite) for readiness on any
// registered fd, the wake descriptor, or the timeout itself. Ready
// callbacks fire for every event returned; the timeout-callback list
// fires once if wait returned with no fd events (timeout or wake).
func (p *Poller) Wait(timeoutMs int) error {
	p.mu.Lock()
	pfds := make([]unix.PollFd, 0, len(p.regs)+1)
	for _, r := range p.regs {
		pfds = append(pfds, unix.PollFd{Fd: int32(r.fd), Events: int16(r.mask)})
	}
	wakeIdx := len(pfds)
	pfds = append(pfds, unix.PollFd{Fd: int32(p.wakeR), Events: unix.POLLIN})
	regs := p.regs
	p.mu.Unlock()

	n, err := unix.Poll(pfds, timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			p.fireTimeouts()
			return nil
		}
		return fmt.Errorf("xplpoll: poll: %w", err)
	}

	if pfds[wakeIdx].Revents&unix.POLLIN != 0 {
		var drain [8]byte
		_, _ = unix.Read(p.wakeR, drain[:])
	}

	if n == 0 {
		p.fireTimeouts()
		return nil
	}

	fired := 0
	for i, r := range regs {
		if i == wakeIdx {
			continue
		}
		revents := pfds[i].Revents
		if revents == 0 {
			continue
		}
		fired++
		r.cb(r.fd, Mask(revents))
		if r.oneShot {
			p.Unregister(r.fd)
		}
	}
	if fired == 0 {
		p.fireTimeouts()
	}
	return nil
}

func (p *Poller) fireTimeouts() {
	p.mu.Lock()
	timeouts := append([]*timeoutReg(nil), p.timeouts...)
	p.mu.Unlock()
	for _, t := range timeouts {
		if !t.unregd {
			t.cb()
		}
	}
}
