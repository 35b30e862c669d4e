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

// Package zipstream decodes a ZIP archive as a lazy, forward-only sequence
// of member files, each itself a lazy sequence of decompressed payload
// chunks.
//
// The archive is never materialized in memory or on disk: decoding
// proceeds strictly left-to-right over whatever arbitrarily-sized byte
// chunks a producer supplies, without access to the central directory at
// the archive's tail. This makes it suitable for decoding an archive as it
// downloads, without buffering it first.
//
// Supported compression methods are stored and deflate, including ZIP64
// extensions and the data-descriptor (deferred-size) header form. Random
// access to members, CRC-32 verification, and central directory
// reconstruction are explicitly out of scope: see [Reader] for the
// sequential consumption model this implies.
package zipstream
