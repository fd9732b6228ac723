// Copyright 2026 The OpenClaw GitHub App Authors
// SPDX-License-Identifier: Apache-2.0

// Package secret holds sensitive material, the gateway bearer token
// and the webhook signing secret, in memory that cannot leak through
// the usual channels.
//
// [Buffer] allocates its backing memory outside the Go heap with
// mmap(MAP_ANONYMOUS), locks it into physical RAM with mlock so it is
// never swapped, and excludes it from core dumps with
// madvise(MADV_DONTDUMP). Close zeroes, unlocks, and unmaps the
// region. The garbage collector never sees the memory, so it cannot
// copy the secret around the heap.
//
// Secrets enter the process through [ReadFromPath] (a file, or stdin
// as "-") or [FromEnvironment], which scrubs the variable from the
// process environment after capturing it. Access the material with
// [Buffer.Bytes] (a view into the protected region) or
// [Buffer.String] (a heap copy for APIs that demand a string); compare
// with [Buffer.Equal], which is constant-time. After Close any access
// panics.
package secret
