// Copyright 2020 toolbelt Authors. All rights reserved.
// Use of this source code is governed by a BSD style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/ubccr/toolbelt"
	"github.com/urfave/cli"
)

// parseMode parses an octal permission string such as 0750 or 750
func parseMode(s string) (os.FileMode, error) {
	if len(s) == 0 {
		return 0, nil
	}

	m, err := strconv.ParseUint(s, 8, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid mode %q: %w", s, err)
	}
	if m > 0o7777 {
		return 0, fmt.Errorf("invalid mode %q", s)
	}

	return os.FileMode(m), nil
}

// parseCopySpecs parses src:dest pairs. dest defaults to the base name of src.
func parseCopySpecs(specs []string) ([]toolbelt.CopyFile, error) {
	files := make([]toolbelt.CopyFile, 0, len(specs))
	for _, s := range specs {
		src, dest, found := strings.Cut(s, ":")
		if len(src) == 0 || (found && len(dest) == 0) {
			return nil, fmt.Errorf("invalid copy spec %q", s)
		}
		if !found {
			parts := strings.Split(src, "/")
			dest = parts[len(parts)-1]
		}
		files = append(files, toolbelt.CopyFile{Src: src, Dest: dest})
	}

	return files, nil
}

func mkdirCommand() cli.Command {
	return cli.Command{
		Name:      "mkdir",
		Usage:     "Create a directory with owner, mode, seed files and quota",
		ArgsUsage: "path",
		Flags: append([]cli.Flag{
			cli.StringFlag{Name: "owner,o", Usage: "Owning user"},
			cli.StringFlag{Name: "group,g", Usage: "Owning group. Defaults to owner"},
			cli.StringFlag{Name: "mode,m", Value: "0700", Usage: "Octal permissions"},
			cli.StringSliceFlag{Name: "copy", Usage: "Seed file as src[:dest]. May be repeated"},
		}, limitFlags()...),
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return errors.New("exactly one path is required")
			}

			mode, err := parseMode(c.String("mode"))
			if err != nil {
				return err
			}

			files, err := parseCopySpecs(c.StringSlice("copy"))
			if err != nil {
				return err
			}

			group := c.String("group")
			if len(group) == 0 {
				group = c.String("owner")
			}

			mounts, err := toolbelt.MountTableFromConfig()
			if err != nil {
				return err
			}

			p := &toolbelt.Provisioner{
				Mounts: mounts,
				Runner: toolbelt.RunnerFromConfig(),
			}

			return p.CreatePath(context.Background(), toolbelt.PathOptions{
				Path:      c.Args().First(),
				Owner:     c.String("owner"),
				Group:     group,
				Mode:      mode,
				CopyFiles: files,
				Limits:    limitsFromFlags(c),
			})
		},
	}
}
