// Copyright 2026 The OpenClaw GitHub App Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/offloadmywork/openclaw-github-app/lib/config"
	"github.com/offloadmywork/openclaw-github-app/lib/forge"
	"github.com/offloadmywork/openclaw-github-app/lib/gateway"
	"github.com/offloadmywork/openclaw-github-app/lib/secret"
	"github.com/offloadmywork/openclaw-github-app/lib/workcache"
)

// app wires one webhook event through the full pipeline: workspace
// restore, agent run over the gateway, comment posting, workspace
// snapshot.
type app struct {
	config       *config.Config
	logger       *slog.Logger
	cache        *workcache.Cache
	github       *forge.Client
	gatewayToken *secret.Buffer
}

// handleEvent processes one accepted webhook event. It runs on its
// own goroutine; failures are reported to the conversation when
// possible and always logged.
func (a *app) handleEvent(ctx context.Context, event *forge.Event) {
	sessionKey := forge.SessionKey(event)
	logger := a.logger.With("session", sessionKey, "delivery", event.Delivery)

	started := time.Now()
	result, err := a.runAgent(ctx, logger, event, sessionKey)
	if err != nil {
		logger.Error("agent run failed", "error", err)
		result = fmt.Sprintf("The agent run failed: %v", err)
	} else {
		logger.Info("agent run finished", "elapsed", time.Since(started))
	}

	a.postResult(ctx, logger, event, result)
}

// runAgent performs one gateway conversation turn for the event.
func (a *app) runAgent(ctx context.Context, logger *slog.Logger, event *forge.Event, sessionKey string) (string, error) {
	workspace, err := os.MkdirTemp("", "openclaw-ws-*")
	if err != nil {
		return "", fmt.Errorf("creating workspace: %w", err)
	}
	defer os.RemoveAll(workspace)

	if err := a.cache.Restore(sessionKey, workspace); err != nil {
		if errors.Is(err, workcache.ErrMiss) {
			logger.Debug("no workspace snapshot, starting cold")
		} else {
			logger.Warn("workspace restore failed, starting cold", "error", err)
		}
	}

	token := ""
	if a.gatewayToken != nil {
		token = a.gatewayToken.String()
	}

	client, err := gateway.New(gateway.Config{
		URL:              a.config.Gateway.URL,
		Token:            token,
		ClientID:         a.config.Gateway.ClientID,
		ClientVersion:    version,
		Mode:             a.config.Gateway.Mode,
		Role:             a.config.Gateway.Role,
		Scopes:           a.config.Gateway.Scopes,
		HandshakeTimeout: a.config.Gateway.HandshakeTimeout.Std(),
		AcceptTimeout:    a.config.Gateway.AcceptTimeout.Std(),
		CallTimeout:      a.config.Gateway.RunTimeout.Std(),
		Logger:           logger,
	})
	if err != nil {
		return "", err
	}

	if err := client.Connect(ctx); err != nil {
		return "", err
	}
	defer client.Disconnect()
	logger.Debug("gateway session open", "device", client.Fingerprint())

	prompt := forge.BuildPrompt(event)
	result, err := client.Call(ctx, prompt, sessionKey)
	if err != nil {
		return "", err
	}

	if err := appendTranscript(workspace, event, result); err != nil {
		logger.Warn("transcript update failed", "error", err)
	}
	if err := a.cache.Save(sessionKey, workspace); err != nil {
		logger.Warn("workspace snapshot failed", "error", err)
	}

	return result, nil
}

// postResult posts the run result back to the conversation, or logs
// it when no GitHub client is configured.
func (a *app) postResult(ctx context.Context, logger *slog.Logger, event *forge.Event, result string) {
	if a.github == nil {
		logger.Info("run result (not posted)", "result", result)
		return
	}
	var err error
	if event.Type == "pull_request" {
		err = a.github.PostPullRequestReview(ctx, event.Owner, event.Repo, event.Number, result)
	} else {
		err = a.github.PostIssueComment(ctx, event.Owner, event.Repo, event.Number, result)
	}
	if err != nil {
		logger.Error("posting result failed", "error", err)
		return
	}
	logger.Info("result posted", "repo", event.FullRepo(), "number", event.Number)
}

// appendTranscript records the turn in the workspace so the
// conversation history travels with the snapshot.
func appendTranscript(workspace string, event *forge.Event, result string) error {
	path := filepath.Join(workspace, "transcript.md")
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer file.Close()

	_, err = fmt.Fprintf(file, "## @%s (%s)\n\n%s\n\n## agent\n\n%s\n\n",
		event.Author, time.Now().UTC().Format(time.RFC3339), event.Body, result)
	return err
}
