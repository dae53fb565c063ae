// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import "fmt"

// Process exit codes.
const (
	ExitOK      = 0
	ExitFatal   = 1 // run aborted: unreadable corpus, merge failure, cancellation
	ExitPartial = 2 // table written but at least one classifier failed construction
	ExitUsage   = 3 // bad flags or config
)

// ExitError carries the process exit code for a command failure.
//
// # Description
//
// Commands return ExitError so main can choose the exit code without every
// command calling os.Exit. errors.As finds it anywhere in the chain.
//
// # Example
//
//	return &ExitError{Code: ExitUsage, Err: err}
type ExitError struct {
	// Code is the process exit code.
	Code int

	// Err is the underlying error. Nil for a silent non-zero exit.
	Err error
}

// Error returns the wrapped message, or the code when there is none.
func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit %d", e.Code)
	}
	return e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *ExitError) Unwrap() error {
	return e.Err
}

// usageError marks err as a usage or configuration failure.
func usageError(err error) error {
	return &ExitError{Code: ExitUsage, Err: err}
}

// fatalError marks err as a fatal run failure.
func fatalError(err error) error {
	return &ExitError{Code: ExitFatal, Err: err}
}
