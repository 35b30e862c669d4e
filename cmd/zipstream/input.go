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

package main

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/ianlewis/zipstream"
)

// readChunkSize is the size of chunks pulled from the input file or stdin.
// It is deliberately independent of zipstream.DefaultChunkSize: this is the
// producer's chunking, not the decoder's output chunking.
const readChunkSize = 32 * 1024

// openInput opens path for reading, treating "-" as stdin, and returns it
// alongside a zipstream.Source that pulls fixed-size chunks from it and
// logs each pull at debug level.
func openInput(path string, log *logrus.Logger) (io.Closer, zipstream.Source, error) {
	var f *os.File
	if path == "-" {
		f = os.Stdin
	} else {
		opened, err := os.Open(path)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: opening %q: %w", ErrZipstreamCLI, path, err)
		}
		f = opened
	}

	pulled := 0
	source := zipstream.SourceFunc(func() ([]byte, error) {
		buf := make([]byte, readChunkSize)
		n, err := f.Read(buf)
		if n > 0 {
			pulled += n
			log.Debugf("pulled %d bytes (%d total)", n, pulled)
			return buf[:n], nil
		}
		return nil, err
	})

	return f, source, nil
}
