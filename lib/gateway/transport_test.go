// Copyright 2026 The OpenClaw GitHub App Authors
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

func TestWebSocketTransportRoundTrip(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			t.Errorf("accepting websocket: %v", err)
			return
		}
		defer conn.CloseNow()

		ctx := r.Context()
		var frame map[string]any
		if err := wsjson.Read(ctx, conn, &frame); err != nil {
			t.Errorf("reading frame: %v", err)
			return
		}
		// Echo the method back as an event so the client can check
		// both directions.
		reply := map[string]any{"type": "event", "event": frame["method"]}
		if err := wsjson.Write(ctx, conn, reply); err != nil {
			t.Errorf("writing reply: %v", err)
		}
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	transport, err := DialWebSocket(ctx, url)
	if err != nil {
		t.Fatalf("DialWebSocket: %v", err)
	}
	defer transport.Close()

	sent := request{Type: frameTypeRequest, ID: "c1", Method: "ping"}
	if err := transport.Send(ctx, sent); err != nil {
		t.Fatalf("Send: %v", err)
	}

	data, err := transport.Receive(ctx)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	var frame inboundFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		t.Fatalf("decoding received frame: %v", err)
	}
	if frame.Type != frameTypeEvent || frame.Event != "ping" {
		t.Fatalf("received %+v, want the echoed event", frame)
	}
}

func TestWebSocketTransportReceiveAfterClose(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		// Hold the connection open until the client closes it.
		conn.Read(r.Context())
		conn.CloseNow()
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	transport, err := DialWebSocket(ctx, url)
	if err != nil {
		t.Fatalf("DialWebSocket: %v", err)
	}

	if err := transport.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := transport.Receive(ctx); err == nil {
		t.Fatal("Receive after Close succeeded")
	}
}

func TestDialWebSocketRefused(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := DialWebSocket(ctx, "ws://127.0.0.1:1/ws"); err == nil {
		t.Fatal("dialing a closed port succeeded")
	}
}
