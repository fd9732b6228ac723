// Copyright 2026 The OpenClaw GitHub App Authors
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"encoding/base64"
	"strconv"
	"strings"

	"github.com/offloadmywork/openclaw-github-app/lib/identity"
)

// Assertion version tags. The v2 form binds the assertion to the
// server challenge nonce; v1 is the legacy form for gateways that
// never issue a challenge.
const (
	assertionVersionV1 = "v1"
	assertionVersionV2 = "v2"
)

// connectAssertion builds the canonical string the device key signs
// during connect. The fields are pipe-delimited in a fixed order:
//
//	version|fingerprint|clientID|mode|role|scopes|signedAt|token[|nonce]
//
// Scopes are comma-joined. The token slot is always present (empty
// when no bearer token is configured) so the field count is stable
// for a given version tag. When nonce is non-empty the version tag is
// v2 and the nonce is the final field; otherwise the tag is v1 and
// the nonce field is omitted entirely.
func connectAssertion(fingerprint, clientID, mode, role string, scopes []string, signedAt int64, token, nonce string) string {
	version := assertionVersionV2
	if nonce == "" {
		version = assertionVersionV1
	}

	parts := []string{
		version,
		fingerprint,
		clientID,
		mode,
		role,
		strings.Join(scopes, ","),
		strconv.FormatInt(signedAt, 10),
		token,
	}
	if nonce != "" {
		parts = append(parts, nonce)
	}
	return strings.Join(parts, "|")
}

// buildDeviceBlock signs the connect assertion and assembles the wire
// device block.
func buildDeviceBlock(id *identity.Identity, clientID, mode, role string, scopes []string, signedAt int64, token, nonce string) deviceBlock {
	assertion := connectAssertion(id.Fingerprint(), clientID, mode, role, scopes, signedAt, token, nonce)
	signature := id.Sign([]byte(assertion))

	return deviceBlock{
		ID:        id.Fingerprint(),
		PublicKey: id.PublicKeyBase64(),
		Signature: base64.StdEncoding.EncodeToString(signature),
		SignedAt:  signedAt,
		Nonce:     nonce,
	}
}
