// Copyright 2020 toolbelt Authors. All rights reserved.
// Use of this source code is governed by a BSD style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/ubccr/toolbelt"
	"github.com/urfave/cli"
)

const MOUNT_FORMAT = "%-32s%-32s%-10s%s\n"

func mountCommand() cli.Command {
	return cli.Command{
		Name:      "mount",
		Usage:     "Show the mount containing each path, or the whole mount table",
		ArgsUsage: "[path...]",
		Action: func(c *cli.Context) error {
			mounts, err := toolbelt.MountTableFromConfig()
			if err != nil {
				return err
			}

			fmt.Printf(MOUNT_FORMAT, "Spec", "Mount point", "Type", "Backend")

			if c.NArg() == 0 {
				for _, m := range mounts.Mounts() {
					printMount(&m)
				}
				return nil
			}

			for _, path := range c.Args() {
				m, err := mounts.Lookup(path)
				if err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
				printMount(m)
			}

			return nil
		},
	}
}

func printMount(m *toolbelt.Mount) {
	b, err := toolbelt.BackendForFSType(m.VFSType)
	if err != nil {
		color.New(color.Faint).Printf(MOUNT_FORMAT, m.Spec, m.File, m.VFSType, "-")
		return
	}

	cyan.Printf(MOUNT_FORMAT, m.Spec, m.File, m.VFSType, b)
}
