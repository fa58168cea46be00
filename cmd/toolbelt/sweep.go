// Copyright 2020 toolbelt Authors. All rights reserved.
// Use of this source code is governed by a BSD style
// license that can be found in the LICENSE file.

package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/ubccr/toolbelt"
	"github.com/urfave/cli"
)

func sweepCommand() cli.Command {
	return cli.Command{
		Name:      "sweep",
		Usage:     "List or delete files unused for a number of days",
		ArgsUsage: "dir...",
		Flags: []cli.Flag{
			cli.IntFlag{Name: "days", Value: 30, Usage: "Days since last access and modification"},
			cli.BoolFlag{Name: "delete", Usage: "Remove matched files instead of listing them"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() == 0 {
				return errors.New("at least one directory is required")
			}
			if c.Int("days") <= 0 {
				return errors.New("days must be positive")
			}

			policy := &toolbelt.UnusedPeriodPolicy{
				Period: time.Duration(c.Int("days")) * 24 * time.Hour,
			}

			count := 0
			action := func(path string) error {
				count++
				fmt.Println(path)
				return nil
			}
			if c.Bool("delete") {
				action = func(path string) error {
					count++
					logrus.WithField("path", path).Info("Removing unused file")
					return os.Remove(path)
				}
			}

			if err := toolbelt.VisitDirs(c.Args(), policy, action); err != nil {
				return err
			}

			logrus.WithFields(logrus.Fields{
				"files":  count,
				"delete": c.Bool("delete"),
			}).Info("Sweep complete")

			return nil
		},
	}
}
