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
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/ianlewis/zipstream/internal/chunked"
)

func TestReadSignature(t *testing.T) {
	t.Parallel()

	buf := chunked.New(chunkSource(buildLocalHeader(localHeaderOpts{name: "a", content: []byte("x"), method: methodStored}), 64))
	sig, err := readSignature(buf)
	if err != nil {
		t.Fatalf("readSignature: %v", err)
	}
	if sig != sigLocalFile {
		t.Errorf("sig = %#08x, want %#08x", sig, sigLocalFile)
	}
}

func TestReadSignatureTruncated(t *testing.T) {
	t.Parallel()

	buf := chunked.New(chunkSource([]byte{0x01, 0x02}, 64))
	if _, err := readSignature(buf); !errors.Is(err, ErrTruncatedStream) {
		t.Fatalf("readSignature: got %v, want ErrTruncatedStream", err)
	}
}

func TestParseLocalHeaderStored(t *testing.T) {
	t.Parallel()

	raw := buildLocalHeader(localHeaderOpts{name: "hello.txt", content: []byte("hello world"), method: methodStored})
	buf := chunked.New(chunkSource(raw, 3))
	if _, err := readSignature(buf); err != nil {
		t.Fatalf("readSignature: %v", err)
	}
	h, err := parseLocalHeader(buf)
	if err != nil {
		t.Fatalf("parseLocalHeader: %v", err)
	}

	want := &localHeader{
		method:           methodStored,
		compressedSize:   11,
		uncompressedSize: 11,
		sizeKnown:        true,
		name:             []byte("hello.txt"),
	}
	if diff := cmp.Diff(want, h, cmp.AllowUnexported(localHeader{})); diff != "" {
		t.Errorf("parseLocalHeader mismatch (-want +got):\n%s", diff)
	}
}

func TestParseLocalHeaderDataDescriptor(t *testing.T) {
	t.Parallel()

	raw := buildLocalHeader(localHeaderOpts{name: "d.bin", content: []byte("abc"), method: methodDeflate, dataDescriptor: true})
	buf := chunked.New(chunkSource(raw, 5))
	if _, err := readSignature(buf); err != nil {
		t.Fatalf("readSignature: %v", err)
	}
	h, err := parseLocalHeader(buf)
	if err != nil {
		t.Fatalf("parseLocalHeader: %v", err)
	}
	if h.sizeKnown {
		t.Error("sizeKnown = true, want false for a data-descriptor member")
	}
	if h.compressedSize != 0 || h.uncompressedSize != 0 {
		t.Errorf("sizes = (%d, %d), want (0, 0) when deferred", h.compressedSize, h.uncompressedSize)
	}
}

func TestParseLocalHeaderEncryptedRejected(t *testing.T) {
	t.Parallel()

	raw := buildLocalHeader(localHeaderOpts{name: "e", content: []byte("x"), method: methodStored, encryptedFlagBit: true})
	buf := chunked.New(chunkSource(raw, 64))
	if _, err := readSignature(buf); err != nil {
		t.Fatalf("readSignature: %v", err)
	}
	if _, err := parseLocalHeader(buf); !errors.Is(err, ErrUnsupportedFlag) {
		t.Fatalf("parseLocalHeader: got %v, want ErrUnsupportedFlag", err)
	}
}

func TestParseLocalHeaderUnsupportedMethod(t *testing.T) {
	t.Parallel()

	bad := uint16(12) // bzip2, not supported
	raw := buildLocalHeader(localHeaderOpts{name: "e", content: []byte("x"), method: methodStored, corruptMethod: &bad})
	buf := chunked.New(chunkSource(raw, 64))
	if _, err := readSignature(buf); err != nil {
		t.Fatalf("readSignature: %v", err)
	}
	if _, err := parseLocalHeader(buf); !errors.Is(err, ErrUnsupportedCompression) {
		t.Fatalf("parseLocalHeader: got %v, want ErrUnsupportedCompression", err)
	}
}

func TestApplyZip64BothFields(t *testing.T) {
	t.Parallel()

	var record bytes.Buffer
	writeU64(&record, 5_000_000_000)
	writeU64(&record, 1_234_567)
	extra := appendExtraRecord(nil, zip64ExtraID, record.Bytes())

	compressedSize, uncompressedSize, zip64, err := applyZip64(extra, sentinelSize32, sentinelSize32)
	if err != nil {
		t.Fatalf("applyZip64: %v", err)
	}
	if !zip64 {
		t.Error("zip64 = false, want true")
	}
	if uncompressedSize != 5_000_000_000 {
		t.Errorf("uncompressedSize = %d, want 5000000000", uncompressedSize)
	}
	if compressedSize != 1_234_567 {
		t.Errorf("compressedSize = %d, want 1234567", compressedSize)
	}
}

func TestApplyZip64NoSentinelNoRecordNeeded(t *testing.T) {
	t.Parallel()

	compressedSize, uncompressedSize, zip64, err := applyZip64(nil, 10, 20)
	if err != nil {
		t.Fatalf("applyZip64: %v", err)
	}
	if zip64 {
		t.Error("zip64 = true, want false")
	}
	if compressedSize != 10 || uncompressedSize != 20 {
		t.Errorf("sizes = (%d, %d), want (10, 20)", compressedSize, uncompressedSize)
	}
}

func TestApplyZip64MissingRecord(t *testing.T) {
	t.Parallel()

	if _, _, _, err := applyZip64(nil, sentinelSize32, 20); !errors.Is(err, ErrMissingZip64Field) {
		t.Fatalf("applyZip64: got %v, want ErrMissingZip64Field", err)
	}
}

func TestApplyZip64RecordTooShort(t *testing.T) {
	t.Parallel()

	extra := appendExtraRecord(nil, zip64ExtraID, []byte{1, 2, 3})
	if _, _, _, err := applyZip64(extra, sentinelSize32, sentinelSize32); !errors.Is(err, ErrMissingZip64Field) {
		t.Fatalf("applyZip64: got %v, want ErrMissingZip64Field", err)
	}
}

func TestFindExtraRecord(t *testing.T) {
	t.Parallel()

	extra := appendExtraRecord(appendExtraRecord(nil, 0x5455, []byte{1, 2, 3, 4, 5}), zip64ExtraID, []byte{9, 9})
	data, found := findExtraRecord(extra, zip64ExtraID)
	if !found {
		t.Fatal("findExtraRecord: not found, want found")
	}
	if diff := cmp.Diff([]byte{9, 9}, data); diff != "" {
		t.Errorf("findExtraRecord data mismatch (-want +got):\n%s", diff)
	}
}

func TestFindExtraRecordAbsent(t *testing.T) {
	t.Parallel()

	extra := appendExtraRecord(nil, 0x5455, []byte{1, 2, 3, 4, 5})
	if _, found := findExtraRecord(extra, zip64ExtraID); found {
		t.Fatal("findExtraRecord: found, want not found")
	}
}

func TestFindExtraRecordTruncated(t *testing.T) {
	t.Parallel()

	extra := []byte{0x01, 0x00, 0xff, 0xff} // claims 0xffff bytes of data, has none
	if _, found := findExtraRecord(extra, zip64ExtraID); found {
		t.Fatal("findExtraRecord: found, want not found for a truncated record")
	}
}
