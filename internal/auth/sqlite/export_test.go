// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package sqlite

import "time"

// SetConnMaxLifetime overrides the connection lifetime for the duration of a test.
func SetConnMaxLifetime(d time.Duration) (restore func()) {
	prev := connMaxLifetime
	connMaxLifetime = d
	return func() { connMaxLifetime = prev }
}
