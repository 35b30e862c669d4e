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
	"fmt"
	"io"
	"time"

	"github.com/ianlewis/zipstream/internal/chunked"
)

// DefaultChunkSize is the default maximum size of payload chunks returned
// by Reader.Payload's Read, matching the suggested default in the wire
// format this package decodes.
const DefaultChunkSize = 65536

// state is the member iterator's position, replacing the nested-generator
// approach of the system this package streams with an explicit state
// machine: between members, inside one, or done.
type state int

const (
	stateBetween state = iota
	stateInMember
	stateFinished
)

// Member describes one archive entry as its local header presented it.
type Member struct {
	// Name is the raw bytes of the local header's file name field. It is
	// not transcoded from any particular character set.
	Name []byte

	// Size is the declared uncompressed size, or nil when the local
	// header deferred sizes to a trailing data descriptor.
	Size *uint64

	// Modified is the local header's MS-DOS modification date/time.
	Modified time.Time

	// Method is the compression method: "stored" or "deflate".
	Method string

	// Flags lists the local header conditions this decoder cares about
	// that are in effect for this member: "data-descriptor", "zip64",
	// or neither.
	Flags []string
}

// Source is the producer of raw archive bytes, re-exported from
// internal/chunked so callers implementing it don't need to import an
// internal package.
type Source = chunked.Source

// SourceFunc adapts a plain function to a Source.
type SourceFunc = chunked.SourceFunc

// CancelableSource lets a Source observe early abandonment.
type CancelableSource = chunked.CancelableSource

// Option configures a Reader.
type Option func(*Reader)

// WithChunkSize sets the maximum size of payload chunks Reader.Payload's
// Read returns. The default is DefaultChunkSize.
func WithChunkSize(n int) Option {
	return func(r *Reader) {
		if n > 0 {
			r.chunkSize = n
		}
	}
}

// Reader drives the header parser and payload decoder across a whole
// archive, enforcing sequential, at-most-once consumption of each member's
// payload and propagating cancellation back to the source on early
// abandonment.
type Reader struct {
	buf       *chunked.Buffer
	chunkSize int

	state   state
	current *payloadDecoder
	err     error
	closed  bool
}

// NewReader returns a Reader that decodes the archive produced by next.
func NewReader(next Source, opts ...Option) *Reader {
	r := &Reader{
		buf:       chunked.New(next),
		chunkSize: DefaultChunkSize,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Next advances to the next member, first draining any unread remainder of
// the current member's payload. It returns io.EOF when the session ends,
// whether by end-of-central-directory, central-directory-header, or clean
// stream exhaustion at a member boundary.
func (r *Reader) Next() (Member, error) {
	if r.err != nil {
		return Member{}, r.err
	}
	if r.state == stateFinished {
		return Member{}, io.EOF
	}

	if r.state == stateInMember {
		if err := r.drainCurrent(); err != nil {
			return Member{}, r.fail(err)
		}
		r.state = stateBetween
		r.current = nil
	}

	atEnd, err := r.buf.AtEOF()
	if err != nil {
		return Member{}, r.fail(err)
	}
	if atEnd {
		return Member{}, r.finishSession()
	}

	sig, err := readSignature(r.buf)
	if err != nil {
		return Member{}, r.fail(err)
	}

	switch sig {
	case sigCentralDir, sigEndOfCentralDir:
		return Member{}, r.finishSession()
	case sigLocalFile:
		h, err := parseLocalHeader(r.buf)
		if err != nil {
			return Member{}, r.fail(err)
		}
		r.current = newPayloadDecoder(r.buf, h)
		r.state = stateInMember
		return memberFromHeader(h), nil
	default:
		return Member{}, r.fail(fmt.Errorf("%w: %#08x", ErrUnexpectedSignature, sig))
	}
}

// Payload returns an io.Reader over the current member's decompressed
// bytes. It is valid only until the next call to Next or Close.
func (r *Reader) Payload() io.Reader {
	return payloadReader{r: r}
}

// Close abandons iteration. If the session already ended normally (Next
// returned io.EOF), Close is a no-op: normal exhaustion must never look
// like cancellation. Otherwise it notifies the source exactly once via
// CancelableSource, with ErrAbandoned as the cause.
func (r *Reader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	if r.state == stateFinished && r.err == nil {
		return nil
	}
	r.state = stateFinished
	return r.buf.Abandon(ErrAbandoned)
}

// finishSession marks the session done without signaling cancellation, and
// lets the source's own cleanup run to completion by draining it, the
// counterpart to Close's abandonment path.
func (r *Reader) finishSession() error {
	r.state = stateFinished
	r.current = nil
	if err := r.buf.Drain(); err != nil {
		return r.fail(err)
	}
	return io.EOF
}

// fail records a fatal decode error and returns it. Every subsequent call
// to Next or Payload's Read returns the same error.
func (r *Reader) fail(err error) error {
	r.err = err
	r.state = stateFinished
	r.current = nil
	return err
}

// drainCurrent discards whatever remains of the current member's payload,
// the iterator's sequential safety net for a consumer that moved on
// without reading a member to exhaustion.
func (r *Reader) drainCurrent() error {
	if r.current == nil {
		return nil
	}
	discard := make([]byte, r.chunkSize)
	for {
		_, err := r.current.Read(discard, r.chunkSize)
		if err != nil {
			if err == io.EOF { //nolint:errorlint // payloadDecoder returns io.EOF as a bare sentinel
				return nil
			}
			return err
		}
	}
}

// payloadReader is the io.Reader returned by Reader.Payload. It exists so
// a payload decode error fails the whole session, not just this read.
type payloadReader struct {
	r *Reader
}

func (p payloadReader) Read(b []byte) (int, error) {
	if p.r.err != nil {
		return 0, p.r.err
	}
	if p.r.state != stateInMember {
		return 0, io.EOF
	}
	n, err := p.r.current.Read(b, p.r.chunkSize)
	if err != nil && err != io.EOF { //nolint:errorlint // payloadDecoder returns io.EOF as a bare sentinel
		return n, p.r.fail(err)
	}
	return n, err
}

// memberFromHeader builds the member handle surfaced to the consumer,
// omitting Size when the local header deferred it to a data descriptor.
func memberFromHeader(h *localHeader) Member {
	m := Member{
		Name:     h.name,
		Modified: dosTimeToTime(h.modDate, h.modTime),
		Method:   methodName(h.method),
	}
	if h.sizeKnown {
		size := h.uncompressedSize
		m.Size = &size
	}
	if h.flags&flagDataDescriptor != 0 {
		m.Flags = append(m.Flags, "data-descriptor")
	}
	if h.zip64 {
		m.Flags = append(m.Flags, "zip64")
	}
	return m
}

// dosTimeToTime converts MS-DOS date/time fields, as carried in a ZIP
// local header, to a time.Time in UTC.
func dosTimeToTime(date, timeField uint16) time.Time {
	if date == 0 {
		return time.Time{}
	}
	year := int(date>>9) + 1980
	month := int(date>>5) & 0xf
	day := int(date) & 0x1f
	hour := int(timeField>>11) & 0x1f
	minute := int(timeField>>5) & 0x3f
	second := (int(timeField) & 0x1f) * 2
	return time.Date(year, time.Month(month), day, hour, minute, second, 0, time.UTC)
}
