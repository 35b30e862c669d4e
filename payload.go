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
	"bytes"
	"compress/flate"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/ianlewis/zipstream/internal/chunked"
)

// blockSize is the size of the lookahead block the deflate reader pulls
// from the chunk buffer at a time. It bounds how many bytes the deflate
// decoder may need to hand back via ReturnUnused.
const blockSize = 4096

// sigDataDescriptorBytes is sigDataDescriptor, little-endian, as a byte
// slice for use with bytes.Index.
var sigDataDescriptorBytes = func() []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, sigDataDescriptor)
	return b
}()

// byteBufReader adapts a chunked.Buffer to the io.Reader+io.ByteReader pair
// that compress/flate recognizes and reads from directly, without wrapping
// it in its own bufio.Reader. That lets this type retain exact knowledge of
// which bytes flate has actually consumed, so any block-sized lookahead it
// didn't need can be handed back to the chunk buffer with ReturnUnused.
type byteBufReader struct {
	buf      *chunked.Buffer
	pending  []byte
	consumed int64
	eof      bool
}

func newByteBufReader(buf *chunked.Buffer) *byteBufReader {
	return &byteBufReader{buf: buf}
}

func (r *byteBufReader) fill() error {
	for len(r.pending) == 0 {
		if r.eof {
			return io.EOF
		}
		chunk, err := r.buf.TakeUpTo(blockSize)
		if err != nil {
			r.eof = true
			return err
		}
		r.pending = chunk
	}
	return nil
}

// Read implements io.Reader.
func (r *byteBufReader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if err := r.fill(); err != nil {
		return 0, err
	}
	n := copy(p, r.pending)
	r.pending = r.pending[n:]
	r.consumed += int64(n)
	return n, nil
}

// ReadByte implements io.ByteReader. Its presence keeps flate from
// allocating its own internal buffer around this reader.
func (r *byteBufReader) ReadByte() (byte, error) {
	if err := r.fill(); err != nil {
		return 0, err
	}
	b := r.pending[0]
	r.pending = r.pending[1:]
	r.consumed++
	return b, nil
}

// leftover returns the bytes pulled from the chunk buffer but not yet
// handed to flate.
func (r *byteBufReader) leftover() []byte {
	return r.pending
}

// consumedBytes returns the total number of compressed bytes flate has
// actually consumed so far.
func (r *byteBufReader) consumedBytes() int64 {
	return r.consumed
}

// payloadDecoder streams decompressed bytes for one member, implementing
// the four method/framing combinations of the decode matrix.
type payloadDecoder struct {
	buf    *chunked.Buffer
	header *localHeader

	finished bool
	emitted  uint64

	// stored, known size
	storedRemaining uint64

	// stored, data descriptor: tail holds up to 3 bytes that might be a
	// prefix of the data descriptor signature split across a pull.
	tail []byte

	// deflate
	br *byteBufReader
	fr io.ReadCloser
}

func newPayloadDecoder(buf *chunked.Buffer, h *localHeader) *payloadDecoder {
	d := &payloadDecoder{buf: buf, header: h}
	switch {
	case h.method == methodStored:
		d.storedRemaining = h.compressedSize
	case h.method == methodDeflate:
		d.br = newByteBufReader(buf)
		d.fr = flate.NewReader(d.br)
	}
	return d
}

// Read fills p like io.Reader's Read, producing at most chunkSize bytes per
// call.
func (d *payloadDecoder) Read(p []byte, chunkSize int) (int, error) {
	if d.finished {
		return 0, io.EOF
	}
	if chunkSize > 0 && chunkSize < len(p) {
		p = p[:chunkSize]
	}
	if len(p) == 0 {
		return 0, nil
	}

	switch {
	case d.header.method == methodStored && d.header.sizeKnown:
		return d.readStoredKnown(p)
	case d.header.method == methodStored:
		return d.readStoredDescriptor(p)
	case d.header.sizeKnown:
		return d.readDeflateKnown(p)
	default:
		return d.readDeflateDescriptor(p)
	}
}

func (d *payloadDecoder) readStoredKnown(p []byte) (int, error) {
	if d.storedRemaining == 0 {
		d.finished = true
		return 0, io.EOF
	}
	want := uint64(len(p))
	if want > d.storedRemaining {
		want = d.storedRemaining
	}
	chunk, err := d.buf.TakeUpTo(int(want))
	if err != nil {
		return 0, headerErr("stored member body", err)
	}
	n := copy(p, chunk)
	d.storedRemaining -= uint64(n)
	d.emitted += uint64(n)
	return n, nil
}

// readStoredDescriptor scans the payload for the data descriptor signature,
// since a stored member with deferred sizes carries no other indication of
// where its body ends. This is inherently heuristic: the signature could
// legitimately appear inside the payload bytes.
func (d *payloadDecoder) readStoredDescriptor(p []byte) (int, error) {
	for {
		chunk, err := d.buf.TakeUpTo(len(p))
		if err != nil {
			return 0, headerErr("scanning for data descriptor", err)
		}
		combined := append(d.tail, chunk...)

		if idx := bytes.Index(combined, sigDataDescriptorBytes); idx >= 0 {
			payload := combined[:idx]
			trailer := append([]byte(nil), combined[idx:]...)
			d.buf.ReturnUnused(trailer)
			d.tail = nil
			n := copy(p, payload)
			d.emitted += uint64(n)
			if err := d.finishWithDescriptor(); err != nil {
				return n, err
			}
			if n == 0 {
				return 0, io.EOF
			}
			return n, nil
		}

		if len(combined) <= len(sigDataDescriptorBytes)-1 {
			d.tail = combined
			continue
		}

		emitLen := len(combined) - (len(sigDataDescriptorBytes) - 1)
		payload := combined[:emitLen]
		d.tail = append([]byte(nil), combined[emitLen:]...)
		n := copy(p, payload)
		d.emitted += uint64(n)
		return n, nil
	}
}

func (d *payloadDecoder) readDeflateKnown(p []byte) (int, error) {
	n, err := d.fr.Read(p)
	d.emitted += uint64(n)
	if err == nil {
		return n, nil
	}
	if err != io.EOF { //nolint:errorlint // flate.Reader returns io.EOF as a bare sentinel
		return n, fmt.Errorf("%w: %w", ErrDecompression, err)
	}

	d.buf.ReturnUnused(d.br.leftover())
	d.finished = true
	if uint64(d.br.consumedBytes()) != d.header.compressedSize { //nolint:gosec // consumedBytes is a byte count and never negative
		return n, fmt.Errorf("%w: compressed bytes consumed %d != declared %d",
			ErrLengthMismatch, d.br.consumedBytes(), d.header.compressedSize)
	}
	return n, io.EOF
}

func (d *payloadDecoder) readDeflateDescriptor(p []byte) (int, error) {
	n, err := d.fr.Read(p)
	d.emitted += uint64(n)
	if err == nil {
		return n, nil
	}
	if err != io.EOF { //nolint:errorlint // flate.Reader returns io.EOF as a bare sentinel
		return n, fmt.Errorf("%w: %w", ErrDecompression, err)
	}

	d.buf.ReturnUnused(d.br.leftover())
	if descErr := d.finishWithDescriptor(); descErr != nil {
		return n, descErr
	}
	return n, io.EOF
}

// finishWithDescriptor consumes the trailing data descriptor and validates
// its declared uncompressed size against what this decoder actually
// emitted. It marks the decoder finished either way: a length mismatch is
// fatal to the session, not recoverable by continuing to read.
func (d *payloadDecoder) finishWithDescriptor() error {
	d.finished = true
	_, _, uncompressedSize, err := consumeDataDescriptor(d.buf, d.header.zip64)
	if err != nil {
		return err
	}
	if uncompressedSize != d.emitted {
		return fmt.Errorf("%w: data descriptor declares %d bytes, emitted %d",
			ErrLengthMismatch, uncompressedSize, d.emitted)
	}
	return nil
}

// consumeDataDescriptor reads the (optional signature), CRC-32, compressed
// size, and uncompressed size following a member's payload. Size field
// width is 8 bytes iff the local header carried a ZIP64 extra record, else
// 4 bytes.
func consumeDataDescriptor(buf *chunked.Buffer, zip64 bool) (crc32 uint32, compressedSize, uncompressedSize uint64, err error) {
	first, err := buf.TakeExact(4)
	if err != nil {
		return 0, 0, 0, headerErr("data descriptor", err)
	}

	var crcBytes []byte
	if binary.LittleEndian.Uint32(first) == sigDataDescriptor {
		crcBytes, err = buf.TakeExact(4)
		if err != nil {
			return 0, 0, 0, headerErr("data descriptor CRC-32", err)
		}
	} else {
		crcBytes = first
	}
	crc32 = binary.LittleEndian.Uint32(crcBytes)

	width := 4
	if zip64 {
		width = 8
	}

	csBytes, err := buf.TakeExact(width)
	if err != nil {
		return 0, 0, 0, headerErr("data descriptor compressed size", err)
	}
	usBytes, err := buf.TakeExact(width)
	if err != nil {
		return 0, 0, 0, headerErr("data descriptor uncompressed size", err)
	}

	if zip64 {
		compressedSize = binary.LittleEndian.Uint64(csBytes)
		uncompressedSize = binary.LittleEndian.Uint64(usBytes)
	} else {
		compressedSize = uint64(binary.LittleEndian.Uint32(csBytes))
		uncompressedSize = uint64(binary.LittleEndian.Uint32(usBytes))
	}

	return crc32, compressedSize, uncompressedSize, nil
}
