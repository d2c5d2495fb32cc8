// Copyright 2026 Bob Vawter (bob@vawter.org)
// SPDX-License-Identifier: Apache-2.0

// Package seq contains an unbounded, ordered hand-off between any number
// of producers and a single consumer.
//
// A [Channel] never blocks its producers. Its consumer pulls elements
// through a single-pass [iter.Seq2] that suspends while the buffer is
// empty and ends once the Channel has been closed and drained.
package seq
