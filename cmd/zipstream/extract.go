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
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/ianlewis/zipstream"
)

var errUnsafePath = errors.New("member path escapes destination directory")

func newExtractCommand() *cli.Command {
	return &cli.Command{
		Name:      "extract",
		Usage:     "extract each member to a destination directory as it streams",
		ArgsUsage: "<path|-> <destdir>",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:               "force",
				Usage:              "overwrite existing files",
				Aliases:            []string{"f"},
				DisableDefaultText: true,
			},
		},
		Action: func(c *cli.Context) error {
			if c.Args().Len() != 2 {
				return fmt.Errorf("%w: extract takes an archive path and a destination directory", ErrFlagParse)
			}
			return runExtract(c, c.Args().Get(0), c.Args().Get(1), c.Bool("force"))
		},
	}
}

func runExtract(c *cli.Context, path, destDir string, force bool) error {
	log := newLogger(c)

	f, source, err := openInput(path, log)
	if err != nil {
		return err
	}
	defer f.Close()

	r := zipstream.NewReader(source)
	defer r.Close()

	for {
		m, err := r.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: %w", ErrZipstreamCLI, err)
		}

		if err := extractMember(r, destDir, string(m.Name), force, log); err != nil {
			return err
		}
	}
}

func extractMember(r *zipstream.Reader, destDir, name string, force bool, log *logrus.Logger) error {
	target := filepath.Join(destDir, filepath.FromSlash(name))
	if !strings.HasPrefix(target, filepath.Clean(destDir)+string(os.PathSeparator)) && target != filepath.Clean(destDir) {
		return fmt.Errorf("%w: %q", errUnsafePath, name)
	}

	if strings.HasSuffix(name, "/") {
		log.Infof("creating directory %s", target)
		if err := os.MkdirAll(target, 0o755); err != nil {
			return fmt.Errorf("%w: creating directory %q: %w", ErrZipstreamCLI, target, err)
		}
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("%w: creating parent directories for %q: %w", ErrZipstreamCLI, target, err)
	}

	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if !force {
		flags |= os.O_EXCL
	}
	dst, err := os.OpenFile(target, flags, 0o644)
	if err != nil {
		return fmt.Errorf("%w: opening %q: %w", ErrZipstreamCLI, target, err)
	}
	defer dst.Close()

	log.Infof("extracting %s", target)
	if _, err := io.Copy(dst, r.Payload()); err != nil {
		return fmt.Errorf("%w: extracting %q: %w", ErrZipstreamCLI, name, err)
	}

	return nil
}
