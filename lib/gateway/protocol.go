// Copyright 2026 The OpenClaw GitHub App Authors
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Frame type discriminators. Every message on the wire is a JSON
// object whose "type" field is one of these values.
const (
	// frameTypeRequest is an outbound call: {type, id, method, params}.
	frameTypeRequest = "req"

	// frameTypeResponse answers a request by correlation id:
	// {type, id, ok, payload?, error?}. Most methods produce exactly
	// one response; the run method produces two on the same id
	// ("accepted", then completion or error).
	frameTypeResponse = "res"

	// frameTypeEvent is an unsolicited server push, not correlated to
	// any request: {type, event, payload?, stream?, text?}.
	frameTypeEvent = "event"
)

// Method names for outbound requests.
const (
	// methodConnect is the authenticated connect call. Single-phase.
	methodConnect = "connect"

	// methodAgentRun starts a long-running agent run. Dual-phase: the
	// gateway acknowledges acceptance immediately and delivers the
	// completion seconds to minutes later on the same id.
	methodAgentRun = "agent.run"
)

// Event names for server pushes.
const (
	// eventChallenge carries the server nonce for the connect
	// handshake in payload.nonce.
	eventChallenge = "connect.challenge"

	// eventAgentStream carries an incremental output fragment. The
	// stream field names the channel; only streamAssistant fragments
	// are buffered.
	eventAgentStream = "agent"

	// eventLifecycle carries run lifecycle transitions in
	// payload.state. The terminal state releases the streamed-output
	// fallback for the current run.
	eventLifecycle = "chat"
)

// streamAssistant is the output channel buffered for the fallback
// result. Other channels (tool traces, diagnostics) are ignored.
const streamAssistant = "assistant"

// lifecycleFinal is the terminal lifecycle state.
const lifecycleFinal = "final"

// Run payload status values. The first response to a dual-phase call
// carries statusAccepted; the second carries statusOK or statusError.
const (
	statusAccepted = "accepted"
	statusOK       = "ok"
	statusError    = "error"
)

// noOutputPlaceholder is the literal result used when a run ends with
// neither streamed output nor structured completion text.
const noOutputPlaceholder = "(no output)"

// Protocol version bounds offered in the connect call. The gateway
// replies with the version it selected; anything outside these bounds
// is a handshake failure.
const (
	minProtocolVersion = 1
	maxProtocolVersion = 3
)

// request is the outbound frame shape.
type request struct {
	Type   string `json:"type"`
	ID     string `json:"id"`
	Method string `json:"method"`
	Params any    `json:"params"`
}

// inboundFrame is the decoded shape of any inbound message. Fields are
// populated according to Type; payloads stay raw until the consumer
// knows what to decode them into.
type inboundFrame struct {
	Type string `json:"type"`

	// Response fields.
	ID      string          `json:"id,omitempty"`
	OK      bool            `json:"ok,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   json.RawMessage `json:"error,omitempty"`

	// Event fields.
	Event  string `json:"event,omitempty"`
	Stream string `json:"stream,omitempty"`
	Text   string `json:"text,omitempty"`
}

// clientDescriptor identifies this client in the connect call.
type clientDescriptor struct {
	ID       string `json:"id"`
	Version  string `json:"version"`
	Platform string `json:"platform"`
	Mode     string `json:"mode"`
}

// deviceBlock is the signed device identity presented during connect.
type deviceBlock struct {
	// ID is the device fingerprint (hex SHA-256 of the raw public key).
	ID string `json:"id"`

	// PublicKey is the raw Ed25519 public key, standard base64.
	PublicKey string `json:"publicKey"`

	// Signature is the base64 Ed25519 signature over the canonical
	// connect assertion (see connectAssertion).
	Signature string `json:"signature"`

	// SignedAt is the assertion timestamp in Unix milliseconds.
	SignedAt int64 `json:"signedAt"`

	// Nonce echoes the server challenge when one was issued. Absent
	// for the legacy v1 assertion form.
	Nonce string `json:"nonce,omitempty"`
}

// connectParams are the parameters of the connect call.
type connectParams struct {
	MinProtocol  int              `json:"minProtocol"`
	MaxProtocol  int              `json:"maxProtocol"`
	Client       clientDescriptor `json:"client"`
	Role         string           `json:"role"`
	Scopes       []string         `json:"scopes"`
	Capabilities []string         `json:"caps,omitempty"`
	Token        string           `json:"token,omitempty"`
	Device       deviceBlock      `json:"device"`
}

// helloPayload is the payload of a successful connect response.
type helloPayload struct {
	// Protocol is the version the gateway selected.
	Protocol int `json:"protocol"`

	// Server describes the gateway build. Informational.
	Server string `json:"server,omitempty"`
}

// runParams are the parameters of the agent run call.
type runParams struct {
	// Message is the free-text instruction for the agent.
	Message string `json:"message"`

	// SessionKey groups related runs into one agent session.
	SessionKey string `json:"sessionKey"`

	// IdempotencyKey is unique per call so the gateway can retry or
	// deduplicate safely.
	IdempotencyKey string `json:"idempotencyKey"`
}

// runPayload is the payload shape shared by all responses to the run
// call: the acceptance, the completion, and the explicit error.
type runPayload struct {
	Status  string `json:"status,omitempty"`
	Result  string `json:"result,omitempty"`
	Summary string `json:"summary,omitempty"`
	Error   string `json:"error,omitempty"`
}

// challengePayload is the payload of a connect.challenge event.
type challengePayload struct {
	Nonce string `json:"nonce"`
}

// lifecyclePayload is the payload of a lifecycle event.
type lifecyclePayload struct {
	State string `json:"state"`
}

// newIdempotencyKey builds a time-based key with a random suffix,
// unique per call.
func newIdempotencyKey() string {
	return fmt.Sprintf("%d-%s", time.Now().UnixMilli(), uuid.NewString()[:8])
}

// errorText flattens a response error field, which the gateway may
// send as either a bare string or a structured object, into a
// human-readable string.
func errorText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return asString
	}
	var asObject struct {
		Message string `json:"message"`
		Code    string `json:"code"`
	}
	if err := json.Unmarshal(raw, &asObject); err == nil {
		if asObject.Message != "" && asObject.Code != "" {
			return fmt.Sprintf("%s (%s)", asObject.Message, asObject.Code)
		}
		if asObject.Message != "" {
			return asObject.Message
		}
		if asObject.Code != "" {
			return asObject.Code
		}
	}
	return string(raw)
}
