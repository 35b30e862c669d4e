// Copyright 2024 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package zipstream

import (
	"errors"
	"fmt"
	"io"
)

// ErrZipStream is the base error for all zipstream decode errors.
var ErrZipStream = errors.New("zipstream")

var (
	// ErrTruncatedStream indicates the producer was exhausted before a
	// required field or payload region completed.
	ErrTruncatedStream = fmt.Errorf("%w: truncated stream", ErrZipStream)

	// ErrUnexpectedSignature indicates a 4-byte signature at a member
	// boundary that is none of the recognized local/central/EOCD values.
	ErrUnexpectedSignature = fmt.Errorf("%w: unexpected signature", ErrZipStream)

	// ErrUnsupportedCompression indicates a compression method other than
	// stored (0) or deflate (8).
	ErrUnsupportedCompression = fmt.Errorf("%w: unsupported compression method", ErrZipStream)

	// ErrUnsupportedFlag indicates a general-purpose flag bit the decoder
	// cannot honor, including the encryption bit.
	ErrUnsupportedFlag = fmt.Errorf("%w: unsupported flag", ErrZipStream)

	// ErrMissingZip64Field indicates a base size field was the ZIP64
	// sentinel (0xFFFFFFFF) but the ZIP64 extra record lacked the
	// corresponding 8-byte replacement.
	ErrMissingZip64Field = fmt.Errorf("%w: missing zip64 field", ErrZipStream)

	// ErrLengthMismatch indicates a declared or descriptor-reported size
	// disagreed with the bytes actually produced or consumed.
	ErrLengthMismatch = fmt.Errorf("%w: length mismatch", ErrZipStream)

	// ErrDecompression indicates the deflate decompressor reported
	// malformed data.
	ErrDecompression = fmt.Errorf("%w: decompression error", ErrZipStream)
)

// ErrAbandoned is passed to a CancelableSource's Close when the consumer
// abandons iteration before the archive is exhausted. It is not part of
// the ErrZipStream family: it reports caller behavior, not a decode
// failure, the same way the teacher keeps errUnsupportedSeek and
// errNegativeOffset outside the errDictzip family.
var ErrAbandoned = errors.New("zipstream: abandoned before exhaustion")

// headerErr wraps err with context about which field or region failed to
// decode, folding truncation into ErrTruncatedStream the way the teacher's
// headerErr folds io.EOF/io.ErrUnexpectedEOF into ErrHeader.
func headerErr(field string, err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: %s: %w", ErrTruncatedStream, field, err)
	}
	return fmt.Errorf("%w: %s: %w", ErrZipStream, field, err)
}
