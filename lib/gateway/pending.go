// Copyright 2026 The OpenClaw GitHub App Authors
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
)

// callKind tags a pending call with its response pattern.
type callKind int

const (
	// singlePhase calls settle on their first matching response.
	singlePhase callKind = iota

	// dualPhase calls receive an acceptance first, then a completion
	// (or explicit error) on the same correlation id.
	dualPhase
)

// callResult is one settled phase of a pending call: either a payload
// or an error, never both.
type callResult struct {
	payload json.RawMessage
	err     error

	// errText carries the gateway's error detail for a failed run
	// whose payload does not include one, such as a bare response
	// frame with only a top-level error field.
	errText string
}

// pendingCall is the correlation record for one outbound call.
//
// Both channels have capacity 1 and each is settled at most once; the
// correlator's mutex serializes the settling writes, and settle's
// non-blocking send makes a redundant settle (completion racing
// teardown) a harmless no-op.
type pendingCall struct {
	id   string
	kind callKind

	// acceptance receives the first response: the only response of a
	// single-phase call, or the "accepted" acknowledgment of a
	// dual-phase call.
	acceptance chan callResult

	// completion receives the second response of a dual-phase call.
	// Unused for single-phase calls.
	completion chan callResult

	// accepted marks a dual-phase call whose acceptance has fired.
	// Once set, further "accepted" responses are no-ops; the slot is
	// re-armed so a duplicate acknowledgment cannot double-resolve.
	// Guarded by the correlator mutex.
	accepted bool
}

// correlator matches inbound responses to outbound calls by
// correlation id. Ids are monotonically increasing and never reused,
// so a stale response can never settle a later call.
type correlator struct {
	mu       sync.Mutex
	sequence uint64
	pending  map[string]*pendingCall
	closed   bool
}

func newCorrelator() *correlator {
	return &correlator{pending: make(map[string]*pendingCall)}
}

// register creates a pending call with a fresh correlation id. Fails
// once the correlator has been closed by failAll.
func (c *correlator) register(kind callKind) (*pendingCall, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrConnectionClosed
	}

	c.sequence++
	call := &pendingCall{
		id:         "c" + strconv.FormatUint(c.sequence, 10),
		kind:       kind,
		acceptance: make(chan callResult, 1),
		completion: make(chan callResult, 1),
	}
	c.pending[call.id] = call
	return call, nil
}

// remove drops a pending record. Called by the waiter after the call
// settles (by response, timeout, or cancellation) so the id is no
// longer live.
func (c *correlator) remove(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pending, id)
}

// outstanding reports the number of live pending records.
func (c *correlator) outstanding() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// dispatch routes one response frame to its pending call. Returns
// false when no record matches the id (stale or unsolicited response).
func (c *correlator) dispatch(frame inboundFrame) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	call, ok := c.pending[frame.ID]
	if !ok {
		return false
	}

	if call.kind == singlePhase {
		delete(c.pending, frame.ID)
		if frame.OK {
			settle(call.acceptance, callResult{payload: frame.Payload})
		} else {
			settle(call.acceptance, callResult{err: &RemoteError{Reason: errorText(frame.Error)}})
		}
		return true
	}

	// Dual-phase routing is driven by the payload status.
	var body runPayload
	if len(frame.Payload) > 0 {
		// A payload that fails to decode is treated as an empty one;
		// the status switch below then resolves the call from the
		// response ok bit alone.
		_ = json.Unmarshal(frame.Payload, &body)
	}

	switch {
	case !frame.OK || body.Status == statusError:
		// Fast-fail: an explicit error resolves the overall call
		// immediately. Settle the acceptance too in case the error
		// arrived before the acknowledgment, so no waiter blocks.
		detail := body.Error
		if detail == "" {
			detail = errorText(frame.Error)
		}
		if !call.accepted {
			settle(call.acceptance, callResult{err: &RemoteError{Reason: detail}})
		}
		settle(call.completion, callResult{payload: frame.Payload, errText: detail})
		delete(c.pending, frame.ID)

	case body.Status == statusAccepted:
		if call.accepted {
			// Re-armed slot: a duplicate acknowledgment is a no-op.
			return true
		}
		call.accepted = true
		settle(call.acceptance, callResult{payload: frame.Payload})
		// The record stays registered, waiting for the completion.

	default:
		// Completion. If the gateway skipped the acceptance, settle
		// it as well so the waiter observes both phases.
		if !call.accepted {
			call.accepted = true
			settle(call.acceptance, callResult{payload: frame.Payload})
		}
		settle(call.completion, callResult{payload: frame.Payload})
		delete(c.pending, frame.ID)
	}
	return true
}

// failAll settles every outstanding call with err and closes the
// correlator against further registration. Called on disconnect and
// on transport failure so no waiter hangs past a dead connection.
func (c *correlator) failAll(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	for id, call := range c.pending {
		settle(call.acceptance, callResult{err: err})
		settle(call.completion, callResult{err: err})
		delete(c.pending, id)
	}
}

// settle delivers a result without blocking. The channel has capacity
// 1; if it is already full the phase was settled first by another
// producer and this attempt is intentionally dropped.
func settle(ch chan callResult, result callResult) {
	select {
	case ch <- result:
	default:
	}
}

// RemoteError is an explicit rejection or error status from the
// gateway, as opposed to a timeout or transport failure.
type RemoteError struct {
	// Reason is the server-supplied explanation.
	Reason string
}

func (e *RemoteError) Error() string {
	if e.Reason == "" {
		return "gateway: request rejected"
	}
	return fmt.Sprintf("gateway: request rejected: %s", e.Reason)
}
