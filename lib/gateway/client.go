// Copyright 2026 The OpenClaw GitHub App Authors
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/offloadmywork/openclaw-github-app/lib/identity"
)

// Sentinel errors for the failure taxonomy. Timeouts, closure, and
// remote rejections ([RemoteError]) are distinguishable with
// errors.Is / errors.As.
var (
	// ErrHandshakeTimeout means the Connecting→Ready path did not
	// complete within the handshake deadline.
	ErrHandshakeTimeout = errors.New("gateway: handshake timed out")

	// ErrCallTimeout means a call received no (further) response
	// within its deadline.
	ErrCallTimeout = errors.New("gateway: call timed out")

	// ErrConnectionClosed means the connection was closed, by
	// Disconnect or by transport failure, while the operation was
	// outstanding.
	ErrConnectionClosed = errors.New("gateway: connection closed")
)

// connState is the connection lifecycle state.
type connState int

const (
	stateDisconnected connState = iota
	stateConnecting
	stateAwaitingChallenge
	stateAuthenticating
	stateReady
	stateClosed
	stateFailed
)

func (s connState) String() string {
	switch s {
	case stateDisconnected:
		return "disconnected"
	case stateConnecting:
		return "connecting"
	case stateAwaitingChallenge:
		return "awaiting-challenge"
	case stateAuthenticating:
		return "authenticating"
	case stateReady:
		return "ready"
	case stateClosed:
		return "closed"
	case stateFailed:
		return "failed"
	default:
		return fmt.Sprintf("connState(%d)", int(s))
	}
}

// Default deadlines. Each is overridable in Config.
const (
	defaultHandshakeTimeout = 30 * time.Second
	defaultChallengeWait    = 5 * time.Second
	defaultAcceptTimeout    = 30 * time.Second
	defaultCallTimeout      = 300 * time.Second
)

// Config configures a gateway Client. URL is required; every other
// field has a usable default.
type Config struct {
	// URL is the gateway WebSocket endpoint (ws:// or wss://).
	URL string

	// Token is the optional bearer token presented during connect.
	// It is threaded through explicitly; there is no process-global
	// token state.
	Token string

	// ClientID identifies this client in the connect descriptor and
	// the signed assertion. Defaults to "github-app".
	ClientID string

	// ClientVersion is reported in the connect descriptor. Defaults
	// to "dev".
	ClientVersion string

	// Mode is the client mode in the descriptor and assertion.
	// Defaults to "backend".
	Mode string

	// Role is the requested role. Defaults to "operator".
	Role string

	// Scopes are the requested scopes. Defaults to ["agent.run"].
	Scopes []string

	// Capabilities advertises optional client capabilities.
	Capabilities []string

	// HandshakeTimeout bounds the whole Connecting→Ready path.
	// Defaults to 30s.
	HandshakeTimeout time.Duration

	// ChallengeWait bounds how long Connect waits for a server
	// challenge before falling back to the legacy v1 assertion for
	// gateways that never issue one. Defaults to 5s.
	ChallengeWait time.Duration

	// AcceptTimeout bounds the wait for a run call's acceptance.
	// Defaults to 30s.
	AcceptTimeout time.Duration

	// CallTimeout is the hard ceiling on a run call's completion,
	// independent of the acceptance. Defaults to 300s.
	CallTimeout time.Duration

	// Dial opens the transport. Defaults to DialWebSocket; tests
	// inject scripted transports here.
	Dial DialFunc

	// Logger is used for structured logging. Defaults to
	// slog.Default().
	Logger *slog.Logger
}

// Client is the protocol client for one gateway connection. It owns
// the connection exclusively: one physical channel, one ephemeral
// device identity, at most one run call in flight at a time (the
// correlator itself is id-based and does not preclude more, but the
// shared stream buffer assumes serialized calls).
//
// The zero value is not usable; construct with New.
type Client struct {
	url           string
	token         string
	clientID      string
	clientVersion string
	mode          string
	role          string
	scopes        []string
	capabilities  []string

	handshakeTimeout time.Duration
	challengeWait    time.Duration
	acceptTimeout    time.Duration
	callTimeout      time.Duration

	dial   DialFunc
	logger *slog.Logger
	device *identity.Identity

	calls      *correlator
	challenges chan string
	buffer     *streamBuffer

	mu         sync.Mutex
	state      connState
	transport  Transport
	readCancel context.CancelFunc
	run        *runFuture
}

// New creates a client and generates its ephemeral device identity.
// Identity generation failure is fatal: there is no degraded mode
// without a working identity.
func New(config Config) (*Client, error) {
	if config.URL == "" {
		return nil, errors.New("gateway: URL is required")
	}

	device, err := identity.Generate()
	if err != nil {
		return nil, err
	}

	client := &Client{
		url:              config.URL,
		token:            config.Token,
		clientID:         config.ClientID,
		clientVersion:    config.ClientVersion,
		mode:             config.Mode,
		role:             config.Role,
		scopes:           config.Scopes,
		capabilities:     config.Capabilities,
		handshakeTimeout: config.HandshakeTimeout,
		challengeWait:    config.ChallengeWait,
		acceptTimeout:    config.AcceptTimeout,
		callTimeout:      config.CallTimeout,
		dial:             config.Dial,
		logger:           config.Logger,
		device:           device,
		calls:            newCorrelator(),
		challenges:       make(chan string, 1),
		buffer:           &streamBuffer{},
		state:            stateDisconnected,
	}

	if client.clientID == "" {
		client.clientID = "github-app"
	}
	if client.clientVersion == "" {
		client.clientVersion = "dev"
	}
	if client.mode == "" {
		client.mode = "backend"
	}
	if client.role == "" {
		client.role = "operator"
	}
	if len(client.scopes) == 0 {
		client.scopes = []string{"agent.run"}
	}
	if client.handshakeTimeout <= 0 {
		client.handshakeTimeout = defaultHandshakeTimeout
	}
	if client.challengeWait <= 0 {
		client.challengeWait = defaultChallengeWait
	}
	if client.acceptTimeout <= 0 {
		client.acceptTimeout = defaultAcceptTimeout
	}
	if client.callTimeout <= 0 {
		client.callTimeout = defaultCallTimeout
	}
	if client.dial == nil {
		client.dial = DialWebSocket
	}
	if client.logger == nil {
		client.logger = slog.Default()
	}

	return client, nil
}

// Fingerprint returns the device fingerprint of this client's
// ephemeral identity.
func (c *Client) Fingerprint() string {
	return c.device.Fingerprint()
}

// Connect opens the transport and drives the handshake to Ready:
// dial, await the server challenge, send the signed connect call,
// and verify the hello response. The whole path is bounded by the
// handshake deadline; expiry surfaces ErrHandshakeTimeout, a server
// rejection surfaces the server's reason.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state != stateDisconnected {
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("gateway: connect called in state %s", state)
	}
	c.state = stateConnecting
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, c.handshakeTimeout)
	defer cancel()

	transport, err := c.dial(ctx, c.url)
	if err != nil {
		wrapped := fmt.Errorf("gateway: opening transport: %w", err)
		c.fail(wrapped)
		return wrapped
	}

	// The read loop outlives Connect; it is cancelled by Disconnect
	// or by fail, not by the handshake deadline.
	readCtx, readCancel := context.WithCancel(context.Background())
	c.mu.Lock()
	c.transport = transport
	c.readCancel = readCancel
	c.state = stateAwaitingChallenge
	c.mu.Unlock()
	go c.readLoop(readCtx, transport)

	// Wait for the challenge nonce. A gateway that never issues a
	// challenge gets the legacy v1 assertion after the grace window.
	var nonce string
	challengeTimer := time.NewTimer(c.challengeWait)
	defer challengeTimer.Stop()
	select {
	case nonce = <-c.challenges:
	case <-challengeTimer.C:
		c.logger.Debug("no challenge from gateway, using legacy assertion")
	case <-ctx.Done():
		handshakeError := c.handshakeContextError(ctx)
		c.fail(handshakeError)
		return handshakeError
	}

	c.setState(stateAuthenticating)

	call, err := c.calls.register(singlePhase)
	if err != nil {
		c.fail(err)
		return err
	}

	signedAt := time.Now().UnixMilli()
	params := connectParams{
		MinProtocol: minProtocolVersion,
		MaxProtocol: maxProtocolVersion,
		Client: clientDescriptor{
			ID:       c.clientID,
			Version:  c.clientVersion,
			Platform: runtime.GOOS,
			Mode:     c.mode,
		},
		Role:         c.role,
		Scopes:       c.scopes,
		Capabilities: c.capabilities,
		Token:        c.token,
		Device:       buildDeviceBlock(c.device, c.clientID, c.mode, c.role, c.scopes, signedAt, c.token, nonce),
	}

	frame := request{Type: frameTypeRequest, ID: call.id, Method: methodConnect, Params: params}
	if err := transport.Send(ctx, frame); err != nil {
		c.calls.remove(call.id)
		c.fail(err)
		return err
	}

	select {
	case result := <-call.acceptance:
		if result.err != nil {
			wrapped := fmt.Errorf("gateway: handshake rejected: %w", result.err)
			c.fail(wrapped)
			return wrapped
		}
		var hello helloPayload
		if err := json.Unmarshal(result.payload, &hello); err != nil {
			wrapped := fmt.Errorf("gateway: malformed hello payload: %w", err)
			c.fail(wrapped)
			return wrapped
		}
		if hello.Protocol < minProtocolVersion || hello.Protocol > maxProtocolVersion {
			wrapped := fmt.Errorf("gateway: no mutually supported protocol version (server selected %d, client supports %d-%d)",
				hello.Protocol, minProtocolVersion, maxProtocolVersion)
			c.fail(wrapped)
			return wrapped
		}
		c.setState(stateReady)
		c.logger.Info("gateway connection ready",
			"protocol", hello.Protocol,
			"device", c.device.Fingerprint(),
		)
		return nil
	case <-ctx.Done():
		c.calls.remove(call.id)
		handshakeError := c.handshakeContextError(ctx)
		c.fail(handshakeError)
		return handshakeError
	}
}

// Call issues one long-running agent run and blocks until it settles:
// first on the acceptance, then on a race between the completion
// response, the lifecycle fallback, and the hard call ceiling.
// Whichever source settles the run first is authoritative.
//
// An explicit error status from the gateway resolves the call with an
// error-derived result text rather than an error return, so the
// caller can surface it to the user (e.g., post it as a comment).
func (c *Client) Call(ctx context.Context, message, sessionKey string) (string, error) {
	c.mu.Lock()
	if c.state != stateReady {
		state := c.state
		c.mu.Unlock()
		return "", fmt.Errorf("gateway: call issued in state %s", state)
	}
	if c.run != nil {
		c.mu.Unlock()
		return "", errors.New("gateway: a call is already in flight")
	}
	run := newRunFuture()
	c.run = run
	c.buffer.reset()
	transport := c.transport
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		if c.run == run {
			c.run = nil
		}
		c.mu.Unlock()
	}()

	call, err := c.calls.register(dualPhase)
	if err != nil {
		return "", err
	}

	params := runParams{
		Message:        message,
		SessionKey:     sessionKey,
		IdempotencyKey: newIdempotencyKey(),
	}
	frame := request{Type: frameTypeRequest, ID: call.id, Method: methodAgentRun, Params: params}
	if err := transport.Send(ctx, frame); err != nil {
		c.calls.remove(call.id)
		return "", fmt.Errorf("gateway: sending run request: %w", err)
	}
	c.logger.Debug("run request sent", "call_id", call.id, "session_key", sessionKey)

	// Phase one: the acceptance acknowledgment.
	acceptTimer := time.NewTimer(c.acceptTimeout)
	defer acceptTimer.Stop()
	select {
	case result := <-call.acceptance:
		if result.err != nil {
			c.calls.remove(call.id)
			return "", result.err
		}
	case <-acceptTimer.C:
		c.calls.remove(call.id)
		return "", fmt.Errorf("%w: no acceptance within %s", ErrCallTimeout, c.acceptTimeout)
	case <-ctx.Done():
		c.calls.remove(call.id)
		return "", ctx.Err()
	}
	c.logger.Debug("run accepted", "call_id", call.id)

	// Phase two: race completion, fallback, and the ceiling. The run
	// future is single-assignment; losing producers are no-ops.
	ceiling := time.NewTimer(c.callTimeout)
	defer ceiling.Stop()
	select {
	case result := <-call.completion:
		if result.err != nil {
			run.settle("", result.err)
		} else {
			run.settle(c.resultText(result.payload, result.errText), nil)
		}
	case <-run.done:
		// The lifecycle fallback (or connection teardown) won.
	case <-ceiling.C:
		run.settle("", fmt.Errorf("%w: no completion within %s", ErrCallTimeout, c.callTimeout))
	case <-ctx.Done():
		run.settle("", ctx.Err())
	}
	c.calls.remove(call.id)

	<-run.done
	return run.text, run.err
}

// Disconnect closes the connection and settles every outstanding call
// so no caller hangs. It is valid from any state, idempotent, and
// never fails; the physical channel is released unconditionally.
func (c *Client) Disconnect() {
	c.mu.Lock()
	if c.state == stateClosed {
		c.mu.Unlock()
		return
	}
	c.state = stateClosed
	transport := c.transport
	readCancel := c.readCancel
	run := c.run
	c.transport = nil
	c.readCancel = nil
	c.run = nil
	c.mu.Unlock()

	// Settle pending calls before releasing the socket so that every
	// waiter observes ErrConnectionClosed rather than hanging.
	c.calls.failAll(ErrConnectionClosed)
	if run != nil {
		run.settle("", ErrConnectionClosed)
	}
	if readCancel != nil {
		readCancel()
	}
	if transport != nil {
		_ = transport.Close()
	}
	c.logger.Debug("gateway connection closed")
}

// fail moves the connection to Failed and propagates cause to every
// pending call. A connection already Closed by Disconnect stays
// Closed.
func (c *Client) fail(cause error) {
	c.mu.Lock()
	if c.state == stateClosed {
		c.mu.Unlock()
		return
	}
	c.state = stateFailed
	transport := c.transport
	readCancel := c.readCancel
	run := c.run
	c.transport = nil
	c.readCancel = nil
	c.run = nil
	c.mu.Unlock()

	c.calls.failAll(cause)
	if run != nil {
		run.settle("", cause)
	}
	if readCancel != nil {
		readCancel()
	}
	if transport != nil {
		_ = transport.Close()
	}
	c.logger.Warn("gateway connection failed", "error", cause)
}

func (c *Client) setState(state connState) {
	c.mu.Lock()
	c.state = state
	c.mu.Unlock()
}

// handshakeContextError maps a context expiry during the handshake to
// the timeout sentinel; caller-initiated cancellation passes through.
func (c *Client) handshakeContextError(ctx context.Context) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w after %s", ErrHandshakeTimeout, c.handshakeTimeout)
	}
	return ctx.Err()
}

// readLoop receives frames until the transport dies or teardown
// cancels it. Responses go to the correlator; events to the router.
// A frame that fails to parse is logged and dropped; it must not
// kill the loop or corrupt in-flight call state.
func (c *Client) readLoop(ctx context.Context, transport Transport) {
	for {
		data, err := transport.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				// Deliberate teardown by Disconnect or fail.
				return
			}
			c.fail(fmt.Errorf("gateway: connection lost: %w", err))
			return
		}

		var frame inboundFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			c.logger.Warn("discarding malformed frame", "error", err)
			continue
		}

		switch frame.Type {
		case frameTypeResponse:
			if !c.calls.dispatch(frame) {
				c.logger.Debug("response with no pending call", "id", frame.ID)
			}
		case frameTypeEvent:
			c.handleEvent(frame)
		default:
			c.logger.Warn("discarding frame with unknown type", "frame_type", frame.Type)
		}
	}
}

// handleEvent routes unsolicited server pushes: challenges to the
// handshake, assistant fragments to the stream buffer, terminal
// lifecycle states to the fallback resolution.
func (c *Client) handleEvent(frame inboundFrame) {
	switch frame.Event {
	case eventChallenge:
		var challenge challengePayload
		if err := json.Unmarshal(frame.Payload, &challenge); err != nil || challenge.Nonce == "" {
			c.logger.Warn("discarding challenge without nonce")
			return
		}
		select {
		case c.challenges <- challenge.Nonce:
		default:
			// A repeated challenge after the handshake consumed the
			// first is dropped.
		}

	case eventAgentStream:
		if frame.Stream != streamAssistant || frame.Text == "" {
			return
		}
		c.buffer.append(frame.Text)

	case eventLifecycle:
		var lifecycle lifecyclePayload
		if err := json.Unmarshal(frame.Payload, &lifecycle); err != nil {
			c.logger.Warn("discarding malformed lifecycle event", "error", err)
			return
		}
		if lifecycle.State != lifecycleFinal {
			return
		}
		c.mu.Lock()
		run := c.run
		c.mu.Unlock()
		if run != nil {
			run.settle(c.fallbackText(), nil)
		}

	default:
		c.logger.Debug("ignoring unrecognized event", "event", frame.Event)
	}
}

// fallbackText is the result recovered from streamed output when the
// structured completion is missing: the joined stream buffer, or the
// placeholder when nothing was streamed.
func (c *Client) fallbackText() string {
	if streamed := c.buffer.joined(); streamed != "" {
		return streamed
	}
	return noOutputPlaceholder
}

// resultText computes the final text for a structured completion.
// errDetail is the correlator's error text for runs that failed with
// no payload of their own.
//
// Preference policy: non-empty streamed output wins over the
// structured completion text, since the streamed transcript can be
// more complete than a truncated summary; then the structured fields
// in order result, summary, error detail; then the placeholder. The
// stream-first ordering is a policy choice documented here, not a
// protocol requirement.
func (c *Client) resultText(payload json.RawMessage, errDetail string) string {
	if streamed := c.buffer.joined(); streamed != "" {
		return streamed
	}
	var body runPayload
	if len(payload) > 0 {
		_ = json.Unmarshal(payload, &body)
	}
	switch {
	case body.Result != "":
		return body.Result
	case body.Summary != "":
		return body.Summary
	case body.Error != "":
		return body.Error
	case errDetail != "":
		return errDetail
	}
	return noOutputPlaceholder
}
