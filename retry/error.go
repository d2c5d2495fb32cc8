// Copyright 2026 Bob Vawter (bob@vawter.org)
// SPDX-License-Identifier: Apache-2.0

package retry

import "fmt"

// A MaxAttemptsError fails an element that was rejected on every
// permitted attempt. It wraps the error from the final attempt.
type MaxAttemptsError struct {
	Attempts int
	Err      error
}

// Error implements error.
func (e *MaxAttemptsError) Error() string {
	return fmt.Sprintf("gave up after %d attempts: %v", e.Attempts, e.Err)
}

// Unwrap returns the error from the final attempt.
func (e *MaxAttemptsError) Unwrap() error { return e.Err }
