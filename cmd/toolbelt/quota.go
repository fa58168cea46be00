// Copyright 2015 toolbelt Authors. All rights reserved.
// Use of this source code is governed by a BSD style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"errors"
	"fmt"
	"os/user"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/ubccr/toolbelt"
	"github.com/urfave/cli"
	"golang.org/x/sync/errgroup"
)

const (
	LONG_FORMAT  = "%-16s%-12s%12s%12s%12s%12s%12s%12s\n"
	SHORT_FORMAT = "%-16s%-12s%12s%12s%12s%12s\n"
)

var (
	cyan   = color.New(color.FgCyan)
	red    = color.New(color.FgRed)
	yellow = color.New(color.FgYellow)
)

type QuotaClient struct {
	Long       bool
	Kind       toolbelt.SubjectKind
	Backend    string
	Filesystem string

	runner toolbelt.Runner
}

func newQuotaClient(c *cli.Context) (*QuotaClient, error) {
	kind, err := toolbelt.ParseSubjectKind(c.String("kind"))
	if err != nil {
		return nil, err
	}

	fs := c.String("filesystem")
	if len(fs) == 0 {
		return nil, errors.New("a filesystem path is required")
	}

	return &QuotaClient{
		Long:       c.Bool("long"),
		Kind:       kind,
		Backend:    c.String("backend"),
		Filesystem: fs,
		runner:     toolbelt.RunnerFromConfig(),
	}, nil
}

// identities returns the command arguments or the current user
func identities(c *cli.Context) ([]string, error) {
	if c.NArg() > 0 {
		return c.Args(), nil
	}

	uid, err := user.Current()
	if err != nil {
		return nil, fmt.Errorf("Failed to determine user information: %w", err)
	}

	return []string{uid.Username}, nil
}

// resolve picks the backend and filesystem name, from the mount table unless
// a backend is given explicitly.
func (c *QuotaClient) resolve() (toolbelt.Backend, string, error) {
	if len(c.Backend) > 0 {
		b, err := toolbelt.ParseBackend(c.Backend)
		return b, c.Filesystem, err
	}

	mounts, err := toolbelt.MountTableFromConfig()
	if err != nil {
		return 0, "", err
	}

	mnt, err := mounts.Lookup(c.Filesystem)
	if err != nil {
		return 0, "", err
	}

	b, err := toolbelt.BackendForFSType(mnt.VFSType)
	if err != nil {
		return 0, "", err
	}

	if b == toolbelt.BackendZFS {
		return b, mnt.Spec, nil
	}
	return b, mnt.File, nil
}

func (c *QuotaClient) quotas(ids []string) ([]*toolbelt.Quota, error) {
	backend, fs, err := c.resolve()
	if err != nil {
		return nil, err
	}

	quotas := make([]*toolbelt.Quota, 0, len(ids))
	for _, id := range ids {
		q, err := toolbelt.NewQuota(toolbelt.Target{Filesystem: fs, Identity: id, Kind: c.Kind}, backend, c.runner)
		if err != nil {
			return nil, err
		}
		quotas = append(quotas, q)
	}

	return quotas, nil
}

func (c *QuotaClient) format() string {
	if c.Long {
		return LONG_FORMAT
	}

	return SHORT_FORMAT
}

func (c *QuotaClient) printHeader() {
	if c.Long {
		fmt.Printf(c.format(), "Filesystem", string(c.Kind), "used", "soft", "hard", "files", "fsoft", "fhard")
		return
	}

	fmt.Printf(c.format(), "Filesystem", string(c.Kind), "used", "limit", "files", "flimit")
}

// lfs reports block counts in KiB, zfs in bytes
func blockBytes(b toolbelt.Backend, v uint64) uint64 {
	if b == toolbelt.BackendLustre {
		return v * 1024
	}
	return v
}

func limitString(b toolbelt.Backend, v uint64, bytes bool) string {
	if v == 0 {
		return "-"
	}
	if bytes {
		return humanize.IBytes(blockBytes(b, v))
	}
	return humanize.Comma(int64(v))
}

func (c *QuotaClient) printQuota(q *toolbelt.Quota) {
	u, ok := q.Cached()
	if !ok {
		return
	}

	printer := cyan
	exceeded := func(used, soft, hard uint64) bool {
		return (soft > 0 && used > soft) || (hard > 0 && used >= hard)
	}
	if exceeded(u.BlockUsed, u.BlockSoft, u.BlockHard) || exceeded(u.InodeUsed, u.InodeSoft, u.InodeHard) {
		printer = red
	} else if u.BlockHard == 0 && u.InodeHard == 0 {
		printer = yellow
	}

	b := q.Backend
	if c.Long {
		printer.Printf(c.format(),
			q.Target.Filesystem,
			q.Target.Identity,
			humanize.IBytes(blockBytes(b, u.BlockUsed)),
			limitString(b, u.BlockSoft, true),
			limitString(b, u.BlockHard, true),
			humanize.Comma(int64(u.InodeUsed)),
			limitString(b, u.InodeSoft, false),
			limitString(b, u.InodeHard, false))
		return
	}

	printer.Printf(c.format(),
		q.Target.Filesystem,
		q.Target.Identity,
		humanize.IBytes(blockBytes(b, u.BlockUsed)),
		limitString(b, u.BlockHard, true),
		humanize.Comma(int64(u.InodeUsed)),
		limitString(b, u.InodeHard, false))
}

// Show queries all identities in parallel, one Quota per identity
func (c *QuotaClient) Show(ctx context.Context, ids []string) error {
	quotas, err := c.quotas(ids)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, q := range quotas {
		q := q
		g.Go(func() error {
			_, err := q.Query(ctx)
			if err != nil {
				return fmt.Errorf("%s: %w", q.Target.Identity, err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	c.printHeader()
	for _, q := range quotas {
		c.printQuota(q)
	}

	return nil
}

func (c *QuotaClient) Set(ctx context.Context, ids []string, limits toolbelt.Limits, noop bool) error {
	quotas, err := c.quotas(ids)
	if err != nil {
		return err
	}

	for _, q := range quotas {
		if noop {
			cmd, err := q.ApplyCommand(limits)
			if err != nil {
				return err
			}
			fmt.Println(cmd)
			continue
		}

		if err := q.Apply(ctx, limits); err != nil {
			return fmt.Errorf("%s: %w", q.Target.Identity, err)
		}

		logrus.WithFields(logrus.Fields{
			"identity": q.Target.Identity,
			"fs":       q.Target.Filesystem,
		}).Info("Quota set")
	}

	return nil
}

// Commands prints the query and apply command lines without running them
func (c *QuotaClient) Commands(ids []string, limits toolbelt.Limits) error {
	quotas, err := c.quotas(ids)
	if err != nil {
		return err
	}

	for _, q := range quotas {
		query, err := q.QueryCommand()
		if err != nil {
			return err
		}
		apply, err := q.ApplyCommand(limits)
		if err != nil {
			return err
		}

		fmt.Printf("query: %s\napply: %s\n", query, apply)
	}

	return nil
}

func limitFlags() []cli.Flag {
	return []cli.Flag{
		cli.Uint64Flag{Name: "bsoft", Usage: "Block soft limit"},
		cli.Uint64Flag{Name: "bhard", Usage: "Block hard limit"},
		cli.Uint64Flag{Name: "isoft", Usage: "Inode soft limit"},
		cli.Uint64Flag{Name: "ihard", Usage: "Inode hard limit"},
	}
}

func limitsFromFlags(c *cli.Context) toolbelt.Limits {
	return toolbelt.Limits{
		BlockSoft: c.Uint64("bsoft"),
		BlockHard: c.Uint64("bhard"),
		InodeSoft: c.Uint64("isoft"),
		InodeHard: c.Uint64("ihard"),
	}
}

func quotaCommand() cli.Command {
	targetFlags := []cli.Flag{
		cli.StringFlag{Name: "f,filesystem", Usage: "Path on the filesystem, or its name when --backend is given"},
		cli.StringFlag{Name: "kind,k", Value: "user", Usage: "user, group or project"},
		cli.StringFlag{Name: "backend,b", Usage: "generic, lustre, xfs or zfs. Detected from the mount table by default"},
	}

	return cli.Command{
		Name:  "quota",
		Usage: "Query and set filesystem quotas",
		Subcommands: []cli.Command{
			{
				Name:      "show",
				Usage:     "Display usage and limits",
				ArgsUsage: "[identity...]",
				Flags:     append(targetFlags, cli.BoolFlag{Name: "long,l", Usage: "display long listing"}),
				Action: func(c *cli.Context) error {
					client, err := newQuotaClient(c)
					if err != nil {
						return err
					}
					ids, err := identities(c)
					if err != nil {
						return err
					}
					return client.Show(context.Background(), ids)
				},
			},
			{
				Name:      "set",
				Usage:     "Set limits",
				ArgsUsage: "identity...",
				Flags: append(append(targetFlags, limitFlags()...),
					cli.BoolFlag{Name: "noop,n", Usage: "Print the commands instead of running them"}),
				Action: func(c *cli.Context) error {
					if c.NArg() == 0 {
						return errors.New("at least one identity is required")
					}
					client, err := newQuotaClient(c)
					if err != nil {
						return err
					}
					return client.Set(context.Background(), c.Args(), limitsFromFlags(c), c.Bool("noop"))
				},
			},
			{
				Name:      "cmd",
				Usage:     "Print the query and apply commands",
				ArgsUsage: "[identity...]",
				Flags:     append(targetFlags, limitFlags()...),
				Action: func(c *cli.Context) error {
					client, err := newQuotaClient(c)
					if err != nil {
						return err
					}
					ids, err := identities(c)
					if err != nil {
						return err
					}
					return client.Commands(ids, limitsFromFlags(c))
				},
			},
		},
	}
}
