// Copyright 2026 The OpenClaw GitHub App Authors
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"context"
	"fmt"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// maxFrameSize caps inbound frame size. Completion payloads carry the
// full run result text; 16 MB is generous headroom.
const maxFrameSize = 16 * 1024 * 1024

// Transport is one duplex framed connection to the gateway. Send
// marshals a frame as JSON; Receive returns the raw bytes of the next
// inbound frame so the caller can tolerate malformed messages without
// losing the connection.
//
// Implementations must allow Send and Receive from different
// goroutines, and Close from any goroutine at any time. After Close,
// Receive returns an error.
type Transport interface {
	Send(ctx context.Context, frame any) error
	Receive(ctx context.Context) ([]byte, error)
	Close() error
}

// DialFunc opens a Transport to the given URL. The Client uses
// DialWebSocket unless configured otherwise; tests inject scripted
// transports.
type DialFunc func(ctx context.Context, url string) (Transport, error)

// DialWebSocket opens a WebSocket transport to a ws:// or wss://
// gateway endpoint.
func DialWebSocket(ctx context.Context, url string) (Transport, error) {
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("gateway: dialing %s: %w", url, err)
	}
	conn.SetReadLimit(maxFrameSize)
	return &wsTransport{conn: conn}, nil
}

// wsTransport adapts a websocket.Conn to the Transport interface.
type wsTransport struct {
	conn *websocket.Conn

	// writeMu serializes writes: the connect sender and the call
	// sender may overlap with a future ping writer, and the websocket
	// library permits only one concurrent writer.
	writeMu sync.Mutex
}

func (t *wsTransport) Send(ctx context.Context, frame any) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if err := wsjson.Write(ctx, t.conn, frame); err != nil {
		return fmt.Errorf("gateway: writing frame: %w", err)
	}
	return nil
}

func (t *wsTransport) Receive(ctx context.Context) ([]byte, error) {
	_, data, err := t.conn.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("gateway: reading frame: %w", err)
	}
	return data, nil
}

func (t *wsTransport) Close() error {
	return t.conn.Close(websocket.StatusNormalClosure, "client disconnect")
}
