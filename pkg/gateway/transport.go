// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Caloric Labs

package gateway

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/caloric/cryostat/pkg/cometblue"
)

const (
	handshakeTimeout = 10 * time.Second
	defaultOpTimeout = 15 * time.Second
)

// Transport tunnels characteristic operations to a remote BLE gateway.
// The gateway end holds the radio; one WebSocket connection carries one
// device session, mirroring the single-outstanding-operation constraint of
// the BLE link itself: requests are strictly serialized.
type Transport struct {
	ws  *websocket.Conn
	log *zap.SugaredLogger

	// reqMu serializes request/response round trips; seq is only touched
	// under it.
	reqMu sync.Mutex
	seq   uint64

	results chan frame
	done    chan struct{}
	doneErr error
	once    sync.Once

	cbMu         sync.Mutex
	onDisconnect func()
}

type frame struct {
	op      uint8
	payload map[int]interface{}
}

// Dial connects to a gateway at a ws:// or wss:// URL, optionally with
// HTTP Basic credentials.
func Dial(rawURL, username, password string, skipTLSVerify bool, log *zap.SugaredLogger) (*Transport, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("unsupported URL scheme: %s (use ws:// or wss://)", u.Scheme)
	}

	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	if u.Scheme == "wss" {
		dialer.TLSClientConfig = &tls.Config{InsecureSkipVerify: skipTLSVerify}
	}

	headers := http.Header{}
	if username != "" && password != "" {
		credentials := base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
		headers.Set("Authorization", "Basic "+credentials)
	}

	ctx, cancel := context.WithTimeout(context.Background(), handshakeTimeout)
	defer cancel()
	ws, resp, err := dialer.DialContext(ctx, rawURL, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("gateway connection failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("gateway connection failed: %w", err)
	}

	t := &Transport{
		ws:      ws,
		log:     log,
		results: make(chan frame, 8),
		done:    make(chan struct{}),
	}
	go t.readLoop()
	return t, nil
}

// Close drops the gateway link.
func (t *Transport) Close() error {
	t.fail(fmt.Errorf("gateway closed"))
	return t.ws.Close()
}

// readLoop dispatches incoming frames: results to the in-flight round
// trip, disconnect events to the session callback. A read error kills the
// transport; the session sees it as link loss.
func (t *Transport) readLoop() {
	for {
		messageType, data, err := t.ws.ReadMessage()
		if err != nil {
			t.fail(fmt.Errorf("gateway read: %w", err))
			t.notifyDisconnect()
			return
		}
		if messageType != websocket.BinaryMessage {
			continue
		}
		op, payload, err := DecodeFrame(data)
		if err != nil {
			t.log.Warnw("bad gateway frame", "err", err)
			continue
		}
		if op == OpDisconnected {
			t.log.Debugw("gateway reported device disconnect")
			t.notifyDisconnect()
			continue
		}
		select {
		case t.results <- frame{op: op, payload: payload}:
		default:
			t.log.Warnw("unsolicited gateway result dropped", "op", op)
		}
	}
}

func (t *Transport) fail(err error) {
	t.once.Do(func() {
		t.doneErr = err
		close(t.done)
	})
}

func (t *Transport) notifyDisconnect() {
	t.cbMu.Lock()
	cb := t.onDisconnect
	t.onDisconnect = nil
	t.cbMu.Unlock()
	if cb != nil {
		go cb()
	}
}

// roundTrip sends one request frame and waits for the result echoing its
// sequence number. A round trip abandoned on timeout may leave its result
// in flight; the sequence match discards such late arrivals instead of
// adopting them as the response to a later request.
func (t *Transport) roundTrip(ctx context.Context, op uint8, payload map[int]interface{}) (map[int]interface{}, error) {
	t.reqMu.Lock()
	defer t.reqMu.Unlock()

	if ctx == nil {
		ctx = context.Background()
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultOpTimeout)
		defer cancel()
	}

	t.seq++
	seq := t.seq
	if payload == nil {
		payload = make(map[int]interface{}, 1)
	}
	payload[KeySeq] = seq

	req, err := EncodeFrame(op, payload)
	if err != nil {
		return nil, err
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = t.ws.SetWriteDeadline(deadline)
	}
	if err := t.ws.WriteMessage(websocket.BinaryMessage, req); err != nil {
		t.fail(err)
		return nil, fmt.Errorf("gateway write: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-t.done:
			return nil, t.doneErr
		case res := <-t.results:
			if got, ok := GetUint(res.payload, KeySeq); !ok || got != seq {
				t.log.Warnw("dropping stale gateway result", "got", got, "want", seq)
				continue
			}
			if res.op != OpResult {
				return nil, fmt.Errorf("unexpected gateway frame 0x%02X", res.op)
			}
			if ok, _ := GetBool(res.payload, KeyOK); !ok {
				msg, _ := GetString(res.payload, KeyErrorText)
				if msg == "" {
					msg = "unspecified gateway error"
				}
				return nil, fmt.Errorf("gateway: %s", msg)
			}
			return res.payload, nil
		}
	}
}

// FindDevice asks the gateway to resolve the address; the address itself
// serves as the device handle.
func (t *Transport) FindDevice(ctx context.Context, address string, timeout time.Duration) (cometblue.DeviceHandle, error) {
	_, err := t.roundTrip(ctx, OpFindDevice, map[int]interface{}{
		KeyAddress:   address,
		KeyTimeoutMs: uint64(timeout.Milliseconds()),
	})
	if err != nil {
		return nil, err
	}
	return address, nil
}

// Connect asks the gateway to open the GATT session.
func (t *Transport) Connect(ctx context.Context, handle cometblue.DeviceHandle, onDisconnect func()) (cometblue.Conn, error) {
	address, ok := handle.(string)
	if !ok {
		return nil, fmt.Errorf("bad device handle %T", handle)
	}
	if _, err := t.roundTrip(ctx, OpConnect, map[int]interface{}{KeyAddress: address}); err != nil {
		return nil, err
	}
	t.cbMu.Lock()
	t.onDisconnect = onDisconnect
	t.cbMu.Unlock()
	return &Conn{t: t}, nil
}

// Conn is the gateway-side GATT session.
type Conn struct {
	t *Transport
}

// ReadCharacteristic tunnels a characteristic read.
func (c *Conn) ReadCharacteristic(ctx context.Context, char string) ([]byte, error) {
	res, err := c.t.roundTrip(ctx, OpRead, map[int]interface{}{KeyChar: char})
	if err != nil {
		return nil, err
	}
	data, ok := GetBytes(res, KeyValue)
	if !ok {
		return nil, fmt.Errorf("gateway result missing value for %s", char)
	}
	return data, nil
}

// WriteCharacteristic tunnels a characteristic write.
func (c *Conn) WriteCharacteristic(ctx context.Context, char string, data []byte, withResponse bool) error {
	_, err := c.t.roundTrip(ctx, OpWrite, map[int]interface{}{
		KeyChar:         char,
		KeyData:         data,
		KeyWithResponse: withResponse,
	})
	return err
}

// Disconnect asks the gateway to drop the GATT session; the WebSocket link
// stays up for reconnection.
func (c *Conn) Disconnect() error {
	c.t.cbMu.Lock()
	c.t.onDisconnect = nil
	c.t.cbMu.Unlock()
	_, err := c.t.roundTrip(context.Background(), OpDisconnect, nil)
	return err
}
