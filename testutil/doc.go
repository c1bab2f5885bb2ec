// Package testutil provides core test utilities for the requeue engine
// with no domain assumptions: a capturing publisher double and nothing
// else. Package-specific fixtures live next to the tests that use them.
package testutil
