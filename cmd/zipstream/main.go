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

// Command zipstream lists and extracts ZIP archives by streaming them,
// never buffering the archive or a member's payload in memory.
package main

import (
	"errors"
	"os"
)

// ErrZipstreamCLI wraps errors originating in the CLI layer, as opposed to
// decode errors from the zipstream package itself.
var ErrZipstreamCLI = errors.New("zipstream")

func main() {
	// newZipstreamApp's ExitErrHandler already reports the error and exits
	// with the right code, so the return value here is not checked.
	_ = newZipstreamApp().Run(os.Args)
}
