// Copyright 2020 toolbelt Authors. All rights reserved.
// Use of this source code is governed by a BSD style
// license that can be found in the LICENSE file.

package toolbelt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

// CopyFile seeds a new directory with Src copied to Dest, relative to the
// directory.
type CopyFile struct {
	Src  string
	Dest string
}

// PathOptions describe a directory to provision
type PathOptions struct {
	Path      string
	Owner     string
	Group     string
	Mode      os.FileMode
	CopyFiles []CopyFile

	// Applied as a user quota for Owner when any limit is non-zero
	Limits Limits
}

// Provisioner creates user directories and applies their quotas
type Provisioner struct {
	Mounts *MountTable
	Runner Runner
}

// CreatePath creates a directory with the given attributes if it doesn't
// exist. Nothing is done for an existing path.
func (p *Provisioner) CreatePath(ctx context.Context, opts PathOptions) error {
	log := logrus.WithFields(logrus.Fields{
		"path":  opts.Path,
		"owner": opts.Owner,
		"group": opts.Group,
		"mode":  fmt.Sprintf("%#o", opts.Mode),
	})

	if _, err := os.Lstat(opts.Path); err == nil {
		log.Info("Path exists, skipping")
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	target := Target{Identity: opts.Owner, Kind: KindUser, Filesystem: "/"}
	if err := target.Validate(); err != nil {
		return err
	}
	if !identityPattern.MatchString(opts.Group) {
		return fmt.Errorf("%w: group %q", ErrInvalidTarget, opts.Group)
	}
	if !filesystemPattern.MatchString(opts.Path) {
		return fmt.Errorf("%w: path %q", ErrInvalidTarget, opts.Path)
	}

	mode := opts.Mode
	if mode == 0 {
		mode = 0700
	}

	mnt, err := p.Mounts.Lookup(opts.Path)
	if err != nil {
		return err
	}

	var quota *Quota
	if opts.Limits != (Limits{}) {
		backend, err := BackendForFSType(mnt.VFSType)
		if err != nil {
			return err
		}

		target.Filesystem = mnt.File
		if backend == BackendZFS {
			target.Filesystem = mnt.Spec
		}

		quota, err = NewQuota(target, backend, p.Runner)
		if err != nil {
			return err
		}
	}

	log.Info("Path does not exist, creating")
	if err := os.Mkdir(opts.Path, mode); err != nil {
		return err
	}

	for _, cf := range opts.CopyFiles {
		if err := copyFile(cf.Src, filepath.Join(opts.Path, cf.Dest)); err != nil {
			return fmt.Errorf("failed to copy %s: %w", cf.Src, err)
		}
	}

	_, err = p.Runner.Run(ctx, fmt.Sprintf("chown -R %s:%s %s", opts.Owner, opts.Group, opts.Path))
	if err != nil {
		return err
	}

	// Mkdir is subject to the umask
	if err := os.Chmod(opts.Path, mode); err != nil {
		return err
	}

	if quota != nil {
		if err := quota.Apply(ctx, opts.Limits); err != nil {
			return err
		}
	}

	log.Info("Path created")
	return nil
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}

	return out.Close()
}
