// Package ir provides the history event types shared by every sagalog package.
//
// This package contains type definitions and their encodings only. All other
// internal packages import ir; ir imports nothing internal.
//
// Key design constraints:
//   - A step instance owns exactly two event slots: one Precall, one Call
//   - The persisted shape is {"type": ..., "payload": {...}} with camelCase
//     payload fields (stepId, name, success, ret); these names are load-bearing
//     for histories written by earlier releases
//   - Call results and failures are opaque JSON carried verbatim in Ret
package ir
