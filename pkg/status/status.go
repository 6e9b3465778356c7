// Copyright 2019 The Asylo Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package status contains runtime-internal errors. These errors are distinct
// from errors returned by host system calls and from errors an enclave
// application reports to its own callers: they describe failures of the
// primitives layer itself, and every operation that crosses the enclave
// boundary reports one.
package status

import (
	"errors"
	"fmt"
)

// Code enumerates the error categories used by the primitives layer. The
// values mirror the canonical code space so that a code can be forwarded
// across process boundaries without translation.
type Code int

// Codes used by the primitives layer.
const (
	OK Code = iota
	Cancelled
	Unknown
	InvalidArgument
	DeadlineExceeded
	NotFound
	AlreadyExists
	PermissionDenied
	ResourceExhausted
	FailedPrecondition
	Aborted
	OutOfRange
	Unimplemented
	Internal
	Unavailable
)

var codeNames = map[Code]string{
	OK:                 "OK",
	Cancelled:          "CANCELLED",
	Unknown:            "UNKNOWN",
	InvalidArgument:    "INVALID_ARGUMENT",
	DeadlineExceeded:   "DEADLINE_EXCEEDED",
	NotFound:           "NOT_FOUND",
	AlreadyExists:      "ALREADY_EXISTS",
	PermissionDenied:   "PERMISSION_DENIED",
	ResourceExhausted:  "RESOURCE_EXHAUSTED",
	FailedPrecondition: "FAILED_PRECONDITION",
	Aborted:            "ABORTED",
	OutOfRange:         "OUT_OF_RANGE",
	Unimplemented:      "UNIMPLEMENTED",
	Internal:           "INTERNAL",
	Unavailable:        "UNAVAILABLE",
}

// String implements fmt.Stringer.String.
func (c Code) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("CODE(%d)", int(c))
}

// Error represents an internal error with an associated code.
type Error struct {
	code    Code
	message string
}

// New creates a new *Error. Static errors should be declared as package-level
// variables; dynamic errors should use Newf.
func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

// Newf creates a new *Error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{code: code, message: fmt.Sprintf(format, args...)}
}

// Error implements error.Error.
func (e *Error) Error() string {
	return e.code.String() + ": " + e.message
}

// Code returns the error's code. A nil *Error has code OK.
func (e *Error) Code() Code {
	if e == nil {
		return OK
	}
	return e.code
}

// Message returns the error's message without the code prefix.
func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

// Is reports whether err or any error it wraps is an *Error with the given
// code. A nil err matches only OK.
func Is(err error, code Code) bool {
	if err == nil {
		return code == OK
	}
	var se *Error
	if errors.As(err, &se) {
		return se.Code() == code
	}
	return code == Unknown
}

// FromError coerces an arbitrary error into an *Error, using code Unknown for
// errors that did not originate in this package.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) {
		return se
	}
	return &Error{code: Unknown, message: err.Error()}
}
