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
	"encoding/binary"
	"fmt"

	"github.com/ianlewis/zipstream/internal/chunked"
)

// ZIP local/central/end-of-central-directory signatures, little-endian on
// the wire and therefore compared as little-endian uint32s here.
const (
	sigLocalFile       uint32 = 0x04034b50
	sigCentralDir      uint32 = 0x02014b50
	sigEndOfCentralDir uint32 = 0x06054b50
	sigDataDescriptor  uint32 = 0x08074b50
)

// General-purpose bit flags this decoder inspects.
const (
	flagEncrypted      uint16 = 1 << 0
	flagDataDescriptor uint16 = 1 << 3
)

// Supported compression methods.
const (
	methodStored  uint16 = 0
	methodDeflate uint16 = 8
)

// methodName returns the human-readable name of a supported compression
// method, for CLI display.
func methodName(method uint16) string {
	switch method {
	case methodStored:
		return "stored"
	case methodDeflate:
		return "deflate"
	default:
		return fmt.Sprintf("unknown(%d)", method)
	}
}

// zip64ExtraID is the EXTRA-field subfield id for the ZIP64 record.
const zip64ExtraID uint16 = 0x0001

// sentinelSize32 marks a base size field as "see ZIP64 extra instead".
const sentinelSize32 uint32 = 0xFFFFFFFF

// localHeader is the decoded form of a ZIP local file header, with ZIP64
// substitution already applied to the size fields.
type localHeader struct {
	flags            uint16
	method           uint16
	modTime          uint16
	modDate          uint16
	crc32            uint32
	compressedSize   uint64
	uncompressedSize uint64
	sizeKnown        bool
	zip64            bool
	name             []byte
}

// readSignature reads the next 4-byte signature at a member boundary.
func readSignature(buf *chunked.Buffer) (uint32, error) {
	b, err := buf.TakeExact(4)
	if err != nil {
		return 0, headerErr("signature", err)
	}
	return binary.LittleEndian.Uint32(b), nil
}

// parseLocalHeader reads the fixed and variable portions of a local file
// header, the signature having already been consumed by the caller.
func parseLocalHeader(buf *chunked.Buffer) (*localHeader, error) {
	fixed, err := buf.TakeExact(26)
	if err != nil {
		return nil, headerErr("local header", err)
	}

	flags := binary.LittleEndian.Uint16(fixed[2:4])
	if flags&flagEncrypted != 0 {
		return nil, fmt.Errorf("%w: encrypted member", ErrUnsupportedFlag)
	}

	method := binary.LittleEndian.Uint16(fixed[4:6])
	if method != methodStored && method != methodDeflate {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedCompression, method)
	}

	h := &localHeader{
		flags:   flags,
		method:  method,
		modTime: binary.LittleEndian.Uint16(fixed[6:8]),
		modDate: binary.LittleEndian.Uint16(fixed[8:10]),
		crc32:   binary.LittleEndian.Uint32(fixed[10:14]),
	}
	compressedSize32 := binary.LittleEndian.Uint32(fixed[14:18])
	uncompressedSize32 := binary.LittleEndian.Uint32(fixed[18:22])
	nameLen := binary.LittleEndian.Uint16(fixed[22:24])
	extraLen := binary.LittleEndian.Uint16(fixed[24:26])

	name, err := buf.TakeExact(int(nameLen))
	if err != nil {
		return nil, headerErr("file name", err)
	}
	h.name = append([]byte(nil), name...)

	extra, err := buf.TakeExact(int(extraLen))
	if err != nil {
		return nil, headerErr("extra field", err)
	}

	compressedSize, uncompressedSize, zip64, err := applyZip64(extra, compressedSize32, uncompressedSize32)
	if err != nil {
		return nil, err
	}
	h.zip64 = zip64
	h.compressedSize = compressedSize
	h.uncompressedSize = uncompressedSize
	h.sizeKnown = flags&flagDataDescriptor == 0

	return h, nil
}

// applyZip64 scans the local header's EXTRA area for the ZIP64 record
// (id 0x0001) and substitutes its 8-byte fields, in order (uncompressed
// size, then compressed size), for any base field that held the ZIP64
// sentinel 0xFFFFFFFF. It reports whether a ZIP64 record was present at
// all, which governs the width of a following data descriptor.
func applyZip64(extra []byte, compressedSize32, uncompressedSize32 uint32) (compressedSize, uncompressedSize uint64, zip64Present bool, err error) {
	needUncompressed := uncompressedSize32 == sentinelSize32
	needCompressed := compressedSize32 == sentinelSize32

	uncompressedSize = uint64(uncompressedSize32)
	compressedSize = uint64(compressedSize32)

	record, found := findExtraRecord(extra, zip64ExtraID)
	if !found {
		if needUncompressed || needCompressed {
			return 0, 0, false, fmt.Errorf("%w: no ZIP64 extra record", ErrMissingZip64Field)
		}
		return compressedSize, uncompressedSize, false, nil
	}

	cursor := 0
	if needUncompressed {
		if cursor+8 > len(record) {
			return 0, 0, false, fmt.Errorf("%w: uncompressed size", ErrMissingZip64Field)
		}
		uncompressedSize = binary.LittleEndian.Uint64(record[cursor : cursor+8])
		cursor += 8
	}
	if needCompressed {
		if cursor+8 > len(record) {
			return 0, 0, false, fmt.Errorf("%w: compressed size", ErrMissingZip64Field)
		}
		compressedSize = binary.LittleEndian.Uint64(record[cursor : cursor+8])
		cursor += 8
	}

	return compressedSize, uncompressedSize, true, nil
}

// findExtraRecord scans a concatenation of (id:2, size:2, data:size)
// records for the first one matching id, returning its data.
func findExtraRecord(extra []byte, id uint16) ([]byte, bool) {
	for len(extra) >= 4 {
		recID := binary.LittleEndian.Uint16(extra[0:2])
		recLen := binary.LittleEndian.Uint16(extra[2:4])
		extra = extra[4:]
		if int(recLen) > len(extra) {
			return nil, false
		}
		data := extra[:recLen]
		if recID == id {
			return data, true
		}
		extra = extra[recLen:]
	}
	return nil, false
}
