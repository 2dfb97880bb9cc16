// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package ring provides fixed-capacity circular allocators that are
// reclaimed once per frame boundary.
//
// Linear serves per-frame scratch memory such as uploads and descriptor
// ranges: each allocation is a bump of the head and a whole frame is freed
// by OnBeginFrame in O(1). Allocators is a ring of native command
// allocators gated by submission epochs. Set wraps one Linear ring per
// recording slot.
//
// Exhaustion is reported with a false result or an error, never by growing.
package ring
