// Copyright 2026 The OpenClaw GitHub App Authors
// SPDX-License-Identifier: Apache-2.0

package forge

import (
	"fmt"
	"strings"
)

// SessionKey groups all events of one conversation under a stable
// key, so consecutive runs for the same issue share an agent session
// and a workspace snapshot.
func SessionKey(event *Event) string {
	return fmt.Sprintf("%s/%s#%d", event.Owner, event.Repo, event.Number)
}

// BuildPrompt renders the agent instruction for an event. The prompt
// carries the repository coordinates and the triggering text; the
// agent sees prior turns through its session, so only the new
// material is included.
func BuildPrompt(event *Event) string {
	var builder strings.Builder

	kind := "issue"
	if event.PullRequest {
		kind = "pull request"
	}

	switch event.Type {
	case "issues", "pull_request":
		fmt.Fprintf(&builder, "A new %s was opened in %s by @%s.\n\n", kind, event.FullRepo(), event.Author)
		fmt.Fprintf(&builder, "#%d: %s\n\n", event.Number, event.Title)
	case "issue_comment":
		fmt.Fprintf(&builder, "@%s commented on %s #%d (%s) in %s.\n\n",
			event.Author, kind, event.Number, event.Title, event.FullRepo())
	}

	body := strings.TrimSpace(event.Body)
	if body == "" {
		body = "(no text)"
	}
	builder.WriteString(body)
	builder.WriteString("\n\nRespond with a single message suitable for posting as a GitHub comment.")

	return builder.String()
}
