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
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/rodaine/table"
	"github.com/urfave/cli/v2"

	"github.com/ianlewis/zipstream"
)

func newListCommand() *cli.Command {
	return &cli.Command{
		Name:      "list",
		Usage:     "list the members of an archive as it streams",
		ArgsUsage: "<path|->",
		Action: func(c *cli.Context) error {
			if c.Args().Len() != 1 {
				return fmt.Errorf("%w: list takes exactly one archive path", ErrFlagParse)
			}
			return runList(c, c.Args().First())
		},
	}
}

type listEntry struct {
	name   string
	size   string
	method string
	flags  string
}

func runList(c *cli.Context, path string) error {
	log := newLogger(c)

	f, source, err := openInput(path, log)
	if err != nil {
		return err
	}
	defer f.Close()

	r := zipstream.NewReader(source)
	defer r.Close()

	var entries []listEntry
	for {
		m, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("%w: %w", ErrZipstreamCLI, err)
		}

		size := "unknown"
		if m.Size != nil {
			size = fmt.Sprintf("%d", *m.Size)
		}
		log.Infof("member %q (size=%s)", m.Name, size)

		if _, err := io.Copy(io.Discard, r.Payload()); err != nil {
			return fmt.Errorf("%w: decoding %q: %w", ErrZipstreamCLI, m.Name, err)
		}

		flags := strings.Join(m.Flags, ",")
		entries = append(entries, listEntry{name: string(m.Name), size: size, method: m.Method, flags: flags})
	}

	tbl := table.New("name", "size", "method", "flags")
	for _, e := range entries {
		tbl.AddRow(e.name, e.size, e.method, e.flags)
	}
	tbl.Print()

	return nil
}
