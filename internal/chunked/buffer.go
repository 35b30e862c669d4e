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

// Package chunked adapts a lazy, arbitrarily-chunked byte producer into a
// pull-based "give me exactly N bytes" / "give me up to N bytes" interface,
// so that a parser reading fixed-width fields and a decoder streaming
// variable-width payloads can share one producer without either of them
// buffering more than the producer's own chunk boundaries require.
package chunked

import "io"

// Source supplies the next chunk of the input stream. It returns io.EOF,
// unwrapped, once the stream is exhausted.
type Source interface {
	Next() ([]byte, error)
}

// SourceFunc adapts a plain function to a Source, mirroring the
// net/http.HandlerFunc idiom.
type SourceFunc func() ([]byte, error)

// Next calls f.
func (f SourceFunc) Next() ([]byte, error) { return f() }

// CancelableSource is a Source that wants to observe early abandonment
// of the stream (the consumer stopped pulling before the producer ran
// out). Close is called with the reason exactly once, and never on
// normal exhaustion.
type CancelableSource interface {
	Source
	Close(cause error) error
}

// Buffer is a demand-driven queue of byte chunks. The zero value is not
// usable; construct with New.
type Buffer struct {
	src    Source
	bufs   [][]byte
	pulled int64
	eof    bool
}

// New returns a Buffer that pulls chunks from src as needed.
func New(src Source) *Buffer {
	return &Buffer{src: src}
}

// Pulled returns the number of bytes ever pulled from the producer.
func (b *Buffer) Pulled() int64 {
	return b.pulled
}

// AtEOF reports whether the stream has no more bytes: the buffer is empty
// and the producer is exhausted. It pulls from the producer as needed to
// find out, so a false result guarantees at least one byte is ready.
func (b *Buffer) AtEOF() (bool, error) {
	for len(b.bufs) == 0 {
		if err := b.pull(); err != nil {
			if err == io.EOF { //nolint:errorlint // io.EOF is a sentinel, never wrapped by contract
				return true, nil
			}
			return false, err
		}
	}
	return false, nil
}

// Drain pulls from the producer, discarding everything, until it is
// exhausted. It is used when a session ends normally: fully iterating the
// producer lets it run its own cleanup, as opposed to Abandon, which
// signals early cancellation.
func (b *Buffer) Drain() error {
	b.bufs = nil
	if b.eof {
		return nil
	}
	for {
		_, err := b.src.Next()
		if err != nil {
			if err == io.EOF { //nolint:errorlint // io.EOF is a sentinel, never wrapped by contract
				b.eof = true
				return nil
			}
			return err
		}
	}
}

// pull fetches one more chunk from the producer. It returns io.EOF,
// unwrapped, once the producer is exhausted.
func (b *Buffer) pull() error {
	if b.eof {
		return io.EOF
	}
	chunk, err := b.src.Next()
	if err != nil {
		if err == io.EOF { //nolint:errorlint // io.EOF is a sentinel, never wrapped by contract
			b.eof = true
		}
		return err
	}
	b.pulled += int64(len(chunk))
	b.bufs = append(b.bufs, chunk)
	return nil
}

// TakeExact returns exactly n bytes, pulling from the producer as needed.
// It fails with io.EOF if the producer is exhausted before n bytes arrive.
// n == 0 is a no-op and never pulls. The returned slice is valid only
// until the next call to TakeExact, TakeUpTo, or ReturnUnused.
func (b *Buffer) TakeExact(n int) ([]byte, error) {
	if n == 0 {
		return nil, nil
	}
	if len(b.bufs) > 0 && len(b.bufs[0]) >= n {
		out := b.bufs[0][:n]
		b.advance(n)
		return out, nil
	}

	out := make([]byte, 0, n)
	for len(out) < n {
		for len(b.bufs) == 0 {
			if err := b.pull(); err != nil {
				return nil, err
			}
		}
		head := b.bufs[0]
		take := n - len(out)
		if take > len(head) {
			take = len(head)
		}
		out = append(out, head[:take]...)
		b.advance(take)
	}
	return out, nil
}

// TakeUpTo returns between 1 and n bytes from the next available chunk,
// without pulling more from the producer than necessary. It fails with
// io.EOF only if the buffer is empty and the producer is exhausted.
func (b *Buffer) TakeUpTo(n int) ([]byte, error) {
	for len(b.bufs) == 0 {
		if err := b.pull(); err != nil {
			return nil, err
		}
	}
	head := b.bufs[0]
	take := n
	if take > len(head) {
		take = len(head)
	}
	out := head[:take]
	b.advance(take)
	return out, nil
}

// ReturnUnused pushes bytes back onto the head of the buffer. It is used
// by the payload decoder to relinquish bytes the inflater over-read.
func (b *Buffer) ReturnUnused(unused []byte) {
	if len(unused) == 0 {
		return
	}
	bufs := make([][]byte, 0, len(b.bufs)+1)
	bufs = append(bufs, unused)
	b.bufs = append(bufs, b.bufs...)
}

// advance discards n bytes from the front of the queue. n must not exceed
// the number of buffered bytes.
func (b *Buffer) advance(n int) {
	for n > 0 {
		head := b.bufs[0]
		if n < len(head) {
			b.bufs[0] = head[n:]
			return
		}
		n -= len(head)
		b.bufs = b.bufs[1:]
	}
}

// Abandon notifies a CancelableSource src that the consumer is stopping
// before exhaustion. It is a no-op if src does not implement
// CancelableSource.
func (b *Buffer) Abandon(cause error) error {
	if cs, ok := b.src.(CancelableSource); ok {
		return cs.Close(cause)
	}
	return nil
}
