// Copyright 2022 Intel Corporation. All Rights Reserved.
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

package procfs

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kinds of table access failures. Use errors.Is to check for them.
var (
	// ErrTableUnavailable means a table could not be opened.
	ErrTableUnavailable = errors.New("table unavailable")
	// ErrSeekFailed means positioning to a record failed or landed elsewhere.
	ErrSeekFailed = errors.New("seek failed")
	// ErrShortRead means fewer bytes than a full record could be read.
	ErrShortRead = errors.New("short read")
	// ErrReadFailed means reading a record failed with an I/O error.
	ErrReadFailed = errors.New("read failed")
	// ErrInvalidInput means a request was malformed before any table access.
	ErrInvalidInput = errors.New("invalid input")
)

// Error describes a failed table access.
type Error struct {
	Kind   error  // one of the Err* kinds above
	Table  string // table name, usually its path
	Offset int64  // byte offset of the access, -1 if not applicable
	Err    error  // underlying error, if any
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Kind.Error()
	if e.Table != "" {
		msg = e.Table + ": " + msg
	}
	if e.Offset >= 0 {
		msg += fmt.Sprintf(" at offset 0x%x", e.Offset)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Is reports whether the error is of the given kind.
func (e *Error) Is(target error) bool {
	return target == e.Kind
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

func tableError(kind error, table string, offset int64, err error) error {
	return &Error{Kind: kind, Table: table, Offset: offset, Err: err}
}

// InvalidInput returns an ErrInvalidInput error with a formatted reason.
func InvalidInput(format string, args ...interface{}) error {
	return &Error{
		Kind:   ErrInvalidInput,
		Offset: -1,
		Err:    errors.Errorf(format, args...),
	}
}
