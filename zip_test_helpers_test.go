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
	"io"
)

// localHeaderOpts configures a hand-assembled local file header for tests
// that need wire-level control archive/zip's Writer doesn't expose:
// forced ZIP64 sentinels, the data-descriptor flag, and mismatched
// declared sizes.
type localHeaderOpts struct {
	name             string
	content          []byte
	method           uint16
	dataDescriptor   bool
	zip64            bool
	declaredUncomp   uint32 // base field; sentinelSize32 forces ZIP64 lookup
	declaredComp     uint32
	zip64UncompSize  uint64
	zip64CompSize    uint64
	omitZip64Uncomp  bool // for MissingZip64Field tests
	omitZip64Comp    bool
	corruptMethod    *uint16
	encryptedFlagBit bool
}

// deflateBytes deflate-compresses content at default compression.
func deflateBytes(content []byte) []byte {
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.DefaultCompression)
	if err != nil {
		panic(err)
	}
	if _, err := w.Write(content); err != nil {
		panic(err)
	}
	if err := w.Close(); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// buildLocalHeader hand-assembles a local file header plus body (and, for
// the data-descriptor flag, a trailing descriptor) from opts.
func buildLocalHeader(opts localHeaderOpts) []byte {
	var body []byte
	var compSize, uncompSize uint32

	switch opts.method {
	case methodStored:
		body = opts.content
		compSize = uint32(len(opts.content))
		uncompSize = compSize
	case methodDeflate:
		body = deflateBytes(opts.content)
		compSize = uint32(len(body))
		uncompSize = uint32(len(opts.content))
	}

	var extra []byte
	declaredUncomp := uncompSize
	declaredComp := compSize
	if opts.declaredUncomp != 0 {
		declaredUncomp = opts.declaredUncomp
	}
	if opts.declaredComp != 0 {
		declaredComp = opts.declaredComp
	}

	if opts.zip64 {
		var rec bytes.Buffer
		if declaredUncomp == sentinelSize32 && !opts.omitZip64Uncomp {
			zu := opts.zip64UncompSize
			if zu == 0 {
				zu = uint64(uncompSize)
			}
			var b [8]byte
			binary.LittleEndian.PutUint64(b[:], zu)
			rec.Write(b[:])
		}
		if declaredComp == sentinelSize32 && !opts.omitZip64Comp {
			zc := opts.zip64CompSize
			if zc == 0 {
				zc = uint64(compSize)
			}
			var b [8]byte
			binary.LittleEndian.PutUint64(b[:], zc)
			rec.Write(b[:])
		}
		extra = appendExtraRecord(extra, zip64ExtraID, rec.Bytes())
	}

	var flags uint16
	if opts.dataDescriptor {
		flags |= flagDataDescriptor
		declaredUncomp = 0
		declaredComp = 0
	}
	if opts.encryptedFlagBit {
		flags |= flagEncrypted
	}

	method := opts.method
	if opts.corruptMethod != nil {
		method = *opts.corruptMethod
	}

	var out bytes.Buffer
	writeU32(&out, sigLocalFile)
	writeU16(&out, 20) // version needed
	writeU16(&out, flags)
	writeU16(&out, method)
	writeU16(&out, 0) // mod time
	writeU16(&out, 0) // mod date
	writeU32(&out, 0) // crc32, not verified
	writeU32(&out, declaredComp)
	writeU32(&out, declaredUncomp)
	writeU16(&out, uint16(len(opts.name)))
	writeU16(&out, uint16(len(extra)))
	out.WriteString(opts.name)
	out.Write(extra)
	out.Write(body)

	if opts.dataDescriptor {
		writeU32(&out, sigDataDescriptor)
		writeU32(&out, 0) // crc32
		if opts.zip64 {
			writeU64(&out, uint64(compSize))
			writeU64(&out, uint64(uncompSize))
		} else {
			writeU32(&out, compSize)
			writeU32(&out, uncompSize)
		}
	}

	return out.Bytes()
}

func appendExtraRecord(extra []byte, id uint16, data []byte) []byte {
	var rec bytes.Buffer
	writeU16(&rec, id)
	writeU16(&rec, uint16(len(data)))
	rec.Write(data)
	return append(extra, rec.Bytes()...)
}

func writeU16(buf *bytes.Buffer, v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	buf.Write(b[:])
}

func writeU32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func writeU64(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	buf.Write(b[:])
}

// endOfCentralDirectory returns a minimal, well-formed EOCD record: the
// decoder only inspects the signature at a member boundary, so the
// remaining fixed fields are zeroed.
func endOfCentralDirectory() []byte {
	var out bytes.Buffer
	writeU32(&out, sigEndOfCentralDir)
	out.Write(make([]byte, 18))
	return out.Bytes()
}

// centralDirectoryHeader returns a signature-only stand-in for a central
// directory file header: the decoder stops at the signature and never
// parses the rest.
func centralDirectoryHeader() []byte {
	var out bytes.Buffer
	writeU32(&out, sigCentralDir)
	out.Write(make([]byte, 42))
	return out.Bytes()
}

// chunkSource splits archive bytes into fixed-size chunks, the style of
// producer original_source/test.py drives its scenarios with.
func chunkSource(data []byte, size int) Source {
	i := 0
	return SourceFunc(func() ([]byte, error) {
		if i >= len(data) {
			return nil, io.EOF
		}
		end := i + size
		if end > len(data) {
			end = len(data)
		}
		chunk := data[i:end]
		i = end
		return chunk, nil
	})
}
