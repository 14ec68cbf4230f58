// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import "time"

// UnixMillis converts t to integer milliseconds since the Unix epoch
// (UTC), the representation every timestamp takes on the wire.
// Sub-millisecond precision is truncated.
func UnixMillis(t time.Time) int64 {
	return t.UnixMilli()
}

// FromUnixMillis is the inverse of UnixMillis. The result is in UTC.
func FromUnixMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
