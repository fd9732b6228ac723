// Copyright 2026 The OpenClaw GitHub App Authors
// SPDX-License-Identifier: Apache-2.0

package forge

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"github.com/offloadmywork/openclaw-github-app/lib/secret"
)

// MaxPayloadSize caps webhook request bodies. GitHub's own limit is
// 25 MB; anything larger is not a legitimate delivery.
const MaxPayloadSize = 32 << 20

// ErrBadSignature is returned when the X-Hub-Signature-256 header is
// missing or does not match the payload.
var ErrBadSignature = errors.New("forge: webhook signature mismatch")

// VerifySignature checks the X-Hub-Signature-256 header value
// ("sha256=<hex>") against the payload using the signing secret. The
// comparison is constant-time.
func VerifySignature(signingSecret, payload []byte, header string) error {
	digest, ok := strings.CutPrefix(header, "sha256=")
	if !ok {
		return fmt.Errorf("%w: malformed signature header", ErrBadSignature)
	}
	provided, err := hex.DecodeString(digest)
	if err != nil {
		return fmt.Errorf("%w: signature is not hex", ErrBadSignature)
	}

	mac := hmac.New(sha256.New, signingSecret)
	mac.Write(payload)
	if !hmac.Equal(mac.Sum(nil), provided) {
		return ErrBadSignature
	}
	return nil
}

// ProcessFunc handles one accepted event. It runs on its own
// goroutine after the webhook response is sent; the context is the
// handler's base context, not the request's.
type ProcessFunc func(ctx context.Context, event *Event)

// HandlerConfig configures a webhook Handler.
type HandlerConfig struct {
	// Secret is the webhook signing secret. Required.
	Secret *secret.Buffer

	// Journal deduplicates deliveries. Required.
	Journal *DeliveryJournal

	// Process receives each accepted event. Required.
	Process ProcessFunc

	// Repositories restricts processing to these "owner/name" repos.
	// Empty allows all.
	Repositories []string

	// BaseContext is the context handed to Process calls. Defaults
	// to context.Background().
	BaseContext context.Context

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Handler is the HTTP endpoint GitHub delivers webhooks to. It
// responds before processing finishes: GitHub times deliveries out
// after ten seconds, and an agent run takes minutes.
type Handler struct {
	secret       *secret.Buffer
	journal      *DeliveryJournal
	process      ProcessFunc
	repositories []string
	baseContext  context.Context
	logger       *slog.Logger
}

// NewHandler validates the configuration and builds the endpoint.
func NewHandler(config HandlerConfig) (*Handler, error) {
	if config.Secret == nil {
		return nil, errors.New("forge: Secret is required")
	}
	if config.Journal == nil {
		return nil, errors.New("forge: Journal is required")
	}
	if config.Process == nil {
		return nil, errors.New("forge: Process is required")
	}
	if config.BaseContext == nil {
		config.BaseContext = context.Background()
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Handler{
		secret:       config.Secret,
		journal:      config.Journal,
		process:      config.Process,
		repositories: config.Repositories,
		baseContext:  config.BaseContext,
		logger:       config.Logger,
	}, nil
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxPayloadSize))
	if err != nil {
		h.logger.Warn("rejecting oversized webhook delivery", "error", err)
		http.Error(w, "payload too large", http.StatusRequestEntityTooLarge)
		return
	}

	if err := VerifySignature(h.secret.Bytes(), payload, r.Header.Get("X-Hub-Signature-256")); err != nil {
		h.logger.Warn("rejecting webhook delivery with bad signature",
			"delivery", r.Header.Get("X-GitHub-Delivery"))
		http.Error(w, "signature mismatch", http.StatusForbidden)
		return
	}

	delivery := r.Header.Get("X-GitHub-Delivery")
	if h.journal.Seen(delivery) {
		h.logger.Info("ignoring duplicate delivery", "delivery", delivery)
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "duplicate delivery")
		return
	}

	eventType := r.Header.Get("X-GitHub-Event")
	event, err := ParseEvent(eventType, delivery, payload)
	if errors.Is(err, ErrUnsupportedEvent) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "event ignored")
		return
	}
	if err != nil {
		h.logger.Warn("rejecting undecodable webhook payload", "event", eventType, "error", err)
		http.Error(w, "bad payload", http.StatusBadRequest)
		return
	}

	if event.FromBot {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "bot event ignored")
		return
	}
	if len(h.repositories) > 0 && !slices.Contains(h.repositories, event.FullRepo()) {
		h.logger.Info("ignoring event for unconfigured repository", "repo", event.FullRepo())
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "repository not configured")
		return
	}

	h.logger.Info("webhook event accepted",
		"delivery", delivery,
		"event", event.Type,
		"repo", event.FullRepo(),
		"number", event.Number,
		"author", event.Author,
	)
	go h.process(h.baseContext, event)

	w.WriteHeader(http.StatusAccepted)
	fmt.Fprintln(w, "accepted")
}
