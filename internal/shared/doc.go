// Package shared holds code used across navpulse packages that belongs to
// no single layer.
//
// The testutil subpackage provides the test helpers:
//
//	- Day and Obs build dates and NAV observations from literals
//	- ScriptedSource answers materializer fetches from per-date scripts
//	- NewTestLogger captures slog records for assertions
//
// Production code must not import testutil.
package shared
