// Copyright 2026 The OpenClaw GitHub App Authors
// SPDX-License-Identifier: Apache-2.0

// Package forge handles the GitHub side of the app: webhook receipt
// and verification, delivery deduplication, event parsing, prompt
// construction, and the REST client used to post results back.
//
// Inbound, [Handler] is the HTTP endpoint GitHub delivers to. It
// verifies the HMAC-SHA256 signature against the webhook secret,
// drops replayed deliveries through the [DeliveryJournal], parses the
// supported event types, and hands each accepted event to the
// configured processor without holding the delivery connection open.
//
// Outbound, [Client] is a minimal authenticated REST client that
// posts issue comments. HTTPS is enforced; tokens stay in
// [secret.Buffer] storage until the moment a request is built.
package forge
