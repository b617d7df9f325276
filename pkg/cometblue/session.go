// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Caloric Labs

package cometblue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// findTimeout bounds a single discovery attempt for the configured address.
const findTimeout = 60 * time.Second

// Session wraps a Transport with the stateful connection lifecycle: a
// connect lock so concurrent callers never race duplicate connects, PIN
// authentication, and an idle-disconnect timer that tears the link down
// after DisconnectDelay without traffic.
type Session struct {
	address string
	pin     uint32
	tr      Transport
	log     *zap.SugaredLogger

	mu                 sync.Mutex
	handle             DeviceHandle
	conn               Conn
	idleTimer          *time.Timer
	idleDelay          time.Duration
	expectedDisconnect bool
}

// NewSession creates a session for one device. It does not touch the radio
// until EnsureConnected.
func NewSession(tr Transport, address string, pin uint32, log *zap.SugaredLogger) *Session {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Session{
		address:   address,
		pin:       pin,
		tr:        tr,
		log:       log,
		idleDelay: DisconnectDelay,
	}
}

// EnsureConnected establishes the link if it is down and authenticates
// with the PIN. A caller arriving while a connect is in progress waits for
// it instead of racing a second one. Discovery is retried once before the
// session fails with ErrDeviceNotFound. A rejected PIN fails the session
// with ErrAuthenticationFailed and is never retried internally.
func (s *Session) EnsureConnected(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn != nil {
		s.resetIdleTimerLocked()
		return nil
	}

	if s.handle == nil {
		handle, err := s.tr.FindDevice(ctx, s.address, findTimeout)
		if err != nil {
			s.log.Debugw("discovery failed, retrying once", "address", s.address, "err", err)
			handle, err = s.tr.FindDevice(ctx, s.address, findTimeout)
			if err != nil {
				return fmt.Errorf("discover %s: %w", s.address, ErrDeviceNotFound)
			}
		}
		s.handle = handle
	}

	s.log.Debugw("connecting", "address", s.address)
	conn, err := s.tr.Connect(ctx, s.handle, s.onTransportDisconnect)
	if err != nil {
		return fmt.Errorf("connect %s: %w", s.address, err)
	}
	s.conn = conn
	s.expectedDisconnect = false

	if err := conn.WriteCharacteristic(ctx, CharPassword, EncodePIN(s.pin), true); err != nil {
		s.log.Errorw("pin rejected", "address", s.address, "err", err)
		s.expectedDisconnect = true
		_ = conn.Disconnect()
		s.conn = nil
		return fmt.Errorf("authenticate %s: %w", s.address, ErrAuthenticationFailed)
	}

	s.resetIdleTimerLocked()
	s.log.Debugw("connected and authenticated", "address", s.address)
	return nil
}

// Read performs a characteristic read on the established link and feeds
// the idle timer on success.
func (s *Session) Read(ctx context.Context, char string) ([]byte, error) {
	conn := s.currentConn()
	if conn == nil {
		return nil, ErrNotConnected
	}
	data, err := conn.ReadCharacteristic(ctx, char)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", char, err)
	}
	s.ResetIdleTimer()
	return data, nil
}

// Write performs a characteristic write on the established link and feeds
// the idle timer on success.
func (s *Session) Write(ctx context.Context, char string, data []byte, withResponse bool) error {
	conn := s.currentConn()
	if conn == nil {
		return ErrNotConnected
	}
	if err := conn.WriteCharacteristic(ctx, char, data, withResponse); err != nil {
		return fmt.Errorf("write %s: %w", char, err)
	}
	s.ResetIdleTimer()
	return nil
}

// Connected reports whether the link is currently up.
func (s *Session) Connected() bool {
	return s.currentConn() != nil
}

// ResetIdleTimer rearms the idle-disconnect countdown. Every successful
// characteristic operation calls this so the timer never fires mid-cycle.
func (s *Session) ResetIdleTimer() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetIdleTimerLocked()
}

// Disconnect tears the link down deliberately, e.g. on shutdown.
func (s *Session) Disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopIdleTimerLocked()
	if s.conn == nil {
		return
	}
	s.expectedDisconnect = true
	_ = s.conn.Disconnect()
	s.conn = nil
}

func (s *Session) currentConn() Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn
}

func (s *Session) resetIdleTimerLocked() {
	s.expectedDisconnect = false
	if s.idleTimer != nil {
		s.idleTimer.Stop()
	}
	s.idleTimer = time.AfterFunc(s.idleDelay, s.idleDisconnect)
}

func (s *Session) stopIdleTimerLocked() {
	if s.idleTimer != nil {
		s.idleTimer.Stop()
		s.idleTimer = nil
	}
}

// idleDisconnect proactively drops the link after DisconnectDelay without
// traffic, conserving the device battery. The next operation reconnects.
func (s *Session) idleDisconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return
	}
	s.log.Debugw("idle timeout, disconnecting", "address", s.address)
	s.expectedDisconnect = true
	_ = s.conn.Disconnect()
	s.conn = nil
}

// onTransportDisconnect runs when the transport reports link loss. An
// expected drop (idle timer, deliberate disconnect) logs at debug; an
// unexpected one warns. Recovery is identical either way: the next
// EnsureConnected reconnects.
func (s *Session) onTransportDisconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn = nil
	s.stopIdleTimerLocked()
	if s.expectedDisconnect {
		s.log.Debugw("disconnected", "address", s.address)
		return
	}
	s.log.Warnw("device unexpectedly disconnected", "address", s.address)
}
