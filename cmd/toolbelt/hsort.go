// Copyright 2020 toolbelt Authors. All rights reserved.
// Use of this source code is governed by a BSD style
// license that can be found in the LICENSE file.

package main

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/ubccr/toolbelt"
	"github.com/urfave/cli"
)

func readLines(r io.Reader, lines []string) ([]string, error) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}

	return lines, scanner.Err()
}

func hsortCommand() cli.Command {
	return cli.Command{
		Name:      "hsort",
		Usage:     "Sort lines by a human readable size column such as 10K or 1.5G",
		ArgsUsage: "[file...]",
		Flags: []cli.Flag{
			cli.IntFlag{Name: "key,k", Value: 1, Usage: "Column to sort on, starting at 1"},
		},
		Action: func(c *cli.Context) error {
			key := c.Int("key")
			if key < 1 {
				return fmt.Errorf("invalid column %d", key)
			}

			var lines []string
			var err error
			if c.NArg() == 0 {
				lines, err = readLines(os.Stdin, lines)
				if err != nil {
					return err
				}
			}

			for _, name := range c.Args() {
				f, err := os.Open(name)
				if err != nil {
					return err
				}
				lines, err = readLines(f, lines)
				f.Close()
				if err != nil {
					return err
				}
			}

			w := bufio.NewWriter(os.Stdout)
			defer w.Flush()
			for _, line := range toolbelt.HumanNumericSort(lines, key-1) {
				fmt.Fprintln(w, line)
			}

			return nil
		},
	}
}
