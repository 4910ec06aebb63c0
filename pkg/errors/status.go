/*
 * Copyright 2026 The PawSync Authors. All rights reserved.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package errors provides structured errors with status codes shared by the
// store, replication and query layers.
package errors

import "fmt"

// StatusCode classifies an error by the kind of failure it represents.
type StatusCode int

const (
	// ErrCodeInvalidArgument indicates that the caller supplied an invalid
	// argument, such as a document failing schema validation.
	ErrCodeInvalidArgument StatusCode = 3

	// ErrCodeNotFound indicates that a requested document or collection
	// does not exist.
	ErrCodeNotFound StatusCode = 5

	// ErrCodeAlreadyExists indicates an attempt to create a document whose
	// id is already taken in the collection.
	ErrCodeAlreadyExists StatusCode = 6

	// ErrCodeResourceExhausted indicates that a bounded resource, such as
	// the retry ceiling of the push queue, has been used up.
	ErrCodeResourceExhausted StatusCode = 8

	// ErrCodeFailedPrecondition indicates that the system is not in a state
	// required for the operation, such as querying before the store has
	// finished initializing. Callers may retry after the state changes.
	ErrCodeFailedPrecondition StatusCode = 9

	// ErrCodeInternal indicates a broken invariant in the engine itself.
	ErrCodeInternal StatusCode = 13

	// ErrCodeUnavailable indicates a temporary failure reaching the remote
	// backend. Clients can back off and retry idempotent operations.
	ErrCodeUnavailable StatusCode = 14
)

// String returns the string representation of the status code.
func (c StatusCode) String() string {
	switch c {
	case ErrCodeInvalidArgument:
		return "invalid_argument"
	case ErrCodeNotFound:
		return "not_found"
	case ErrCodeAlreadyExists:
		return "already_exists"
	case ErrCodeResourceExhausted:
		return "resource_exhausted"
	case ErrCodeFailedPrecondition:
		return "failed_precondition"
	case ErrCodeInternal:
		return "internal"
	case ErrCodeUnavailable:
		return "unavailable"
	default:
		return fmt.Sprintf("code_%d", int(c))
	}
}

// IsRetryable returns true if the failure is transient and the same call may
// succeed later without any change by the caller.
func (c StatusCode) IsRetryable() bool {
	switch c {
	case ErrCodeFailedPrecondition, ErrCodeUnavailable:
		return true
	default:
		return false
	}
}
