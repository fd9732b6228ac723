// Copyright 2026 The OpenClaw GitHub App Authors
// SPDX-License-Identifier: Apache-2.0

package forge

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrUnsupportedEvent marks a delivery the app does not react to:
// either an event type it does not handle or an action within a
// handled type that it ignores.
var ErrUnsupportedEvent = errors.New("forge: unsupported event")

// Event is the normalized form of a webhook delivery the app acts on.
type Event struct {
	// Delivery is the GitHub delivery id (X-GitHub-Delivery).
	Delivery string

	// Type is the webhook event type (issues, issue_comment).
	Type string

	// Action is the event action (opened, created).
	Action string

	// Owner and Repo identify the repository.
	Owner string
	Repo  string

	// Number is the issue or pull request number.
	Number int

	// Title is the issue title.
	Title string

	// Body is the issue body or comment body that triggered the
	// event.
	Body string

	// Author is the login of the user who triggered the event.
	Author string

	// FromBot marks events raised by bot accounts, including this
	// app's own comments. Bot events are never processed, which
	// breaks the feedback loop of the app answering itself.
	FromBot bool

	// PullRequest marks issue events that are actually pull requests.
	PullRequest bool
}

// FullRepo returns "owner/repo".
func (e *Event) FullRepo() string {
	return e.Owner + "/" + e.Repo
}

// wire shapes shared by the supported payloads.
type wireUser struct {
	Login string `json:"login"`
	Type  string `json:"type"`
}

type wireRepository struct {
	Name  string   `json:"name"`
	Owner wireUser `json:"owner"`
}

type wireIssue struct {
	Number      int             `json:"number"`
	Title       string          `json:"title"`
	Body        string          `json:"body"`
	User        wireUser        `json:"user"`
	PullRequest json.RawMessage `json:"pull_request"`
}

type wireIssuesEvent struct {
	Action     string         `json:"action"`
	Issue      wireIssue      `json:"issue"`
	Repository wireRepository `json:"repository"`
	Sender     wireUser       `json:"sender"`
}

type wirePullRequestEvent struct {
	Action      string `json:"action"`
	PullRequest struct {
		Number int      `json:"number"`
		Title  string   `json:"title"`
		Body   string   `json:"body"`
		User   wireUser `json:"user"`
	} `json:"pull_request"`
	Repository wireRepository `json:"repository"`
	Sender     wireUser       `json:"sender"`
}

type wireIssueCommentEvent struct {
	Action  string `json:"action"`
	Comment struct {
		Body string   `json:"body"`
		User wireUser `json:"user"`
	} `json:"comment"`
	Issue      wireIssue      `json:"issue"`
	Repository wireRepository `json:"repository"`
	Sender     wireUser       `json:"sender"`
}

// ParseEvent decodes a webhook payload into an Event. Only new
// issues, new pull requests, and new issue comments produce events;
// everything else returns ErrUnsupportedEvent.
func ParseEvent(eventType, delivery string, payload []byte) (*Event, error) {
	switch eventType {
	case "issues":
		var body wireIssuesEvent
		if err := json.Unmarshal(payload, &body); err != nil {
			return nil, fmt.Errorf("forge: decoding issues payload: %w", err)
		}
		if body.Action != "opened" {
			return nil, fmt.Errorf("%w: issues action %q", ErrUnsupportedEvent, body.Action)
		}
		return &Event{
			Delivery:    delivery,
			Type:        eventType,
			Action:      body.Action,
			Owner:       body.Repository.Owner.Login,
			Repo:        body.Repository.Name,
			Number:      body.Issue.Number,
			Title:       body.Issue.Title,
			Body:        body.Issue.Body,
			Author:      body.Issue.User.Login,
			FromBot:     body.Sender.Type == "Bot",
			PullRequest: len(body.Issue.PullRequest) > 0,
		}, nil

	case "pull_request":
		var body wirePullRequestEvent
		if err := json.Unmarshal(payload, &body); err != nil {
			return nil, fmt.Errorf("forge: decoding pull_request payload: %w", err)
		}
		if body.Action != "opened" {
			return nil, fmt.Errorf("%w: pull_request action %q", ErrUnsupportedEvent, body.Action)
		}
		return &Event{
			Delivery:    delivery,
			Type:        eventType,
			Action:      body.Action,
			Owner:       body.Repository.Owner.Login,
			Repo:        body.Repository.Name,
			Number:      body.PullRequest.Number,
			Title:       body.PullRequest.Title,
			Body:        body.PullRequest.Body,
			Author:      body.PullRequest.User.Login,
			FromBot:     body.Sender.Type == "Bot" || body.PullRequest.User.Type == "Bot",
			PullRequest: true,
		}, nil

	case "issue_comment":
		var body wireIssueCommentEvent
		if err := json.Unmarshal(payload, &body); err != nil {
			return nil, fmt.Errorf("forge: decoding issue_comment payload: %w", err)
		}
		if body.Action != "created" {
			return nil, fmt.Errorf("%w: issue_comment action %q", ErrUnsupportedEvent, body.Action)
		}
		return &Event{
			Delivery:    delivery,
			Type:        eventType,
			Action:      body.Action,
			Owner:       body.Repository.Owner.Login,
			Repo:        body.Repository.Name,
			Number:      body.Issue.Number,
			Title:       body.Issue.Title,
			Body:        body.Comment.Body,
			Author:      body.Comment.User.Login,
			FromBot:     body.Sender.Type == "Bot" || body.Comment.User.Type == "Bot",
			PullRequest: len(body.Issue.PullRequest) > 0,
		}, nil

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedEvent, eventType)
	}
}
