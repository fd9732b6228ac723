// Copyright 2026 The OpenClaw GitHub App Authors
// SPDX-License-Identifier: Apache-2.0

// Package gateway implements the protocol client for the local agent
// gateway: a persistent duplex WebSocket carrying JSON frames, an
// Ed25519 challenge/response handshake, and a request correlator that
// supports the gateway's dual-response run call.
//
// The package is organized around the connection data flow:
//
//   - protocol.go: wire format for frames, connect and run parameters
//   - transport.go: WebSocket dial, framed send/receive
//   - pending.go: correlation-id bookkeeping for in-flight calls
//   - handshake.go: canonical connect assertion and device block
//   - client.go: connection state machine, event routing, the public
//     Connect/Call/Disconnect surface
//
// A [Client] owns exactly one connection and one ephemeral device
// identity. The identity is generated in [New] and discarded with the
// process; nothing is persisted.
//
// The run call is dual-phase: one correlation id receives an early
// "accepted" response and, much later, a completion response. The
// completion races against the streamed-output fallback (the joined
// stream buffer, released by a terminal lifecycle event) and a hard
// call ceiling; whichever settles first is authoritative and the
// losers are no-ops.
package gateway
