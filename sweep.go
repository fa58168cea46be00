// Copyright 2020 toolbelt Authors. All rights reserved.
// Use of this source code is governed by a BSD style
// license that can be found in the LICENSE file.

package toolbelt

import (
	"io/fs"
	"path/filepath"
	"time"

	"golang.org/x/sys/unix"
)

const DefaultUnusedPeriod = 30 * 24 * time.Hour

// Policy selects files during a sweep
type Policy interface {
	Match(path string) (bool, error)
}

// Action is run on every file a Policy selects
type Action func(path string) error

// UnusedPeriodPolicy matches files that have been neither accessed nor
// modified within Period.
type UnusedPeriodPolicy struct {
	Period time.Duration

	// Defaults to time.Now
	Now func() time.Time
}

func (p *UnusedPeriodPolicy) Match(path string) (bool, error) {
	period := p.Period
	if period == 0 {
		period = DefaultUnusedPeriod
	}

	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	cutoff := now().Add(-period)

	var st unix.Stat_t
	if err := unix.Lstat(path, &st); err != nil {
		return false, &fs.PathError{Op: "lstat", Path: path, Err: err}
	}

	atime := time.Unix(st.Atim.Unix())
	mtime := time.Unix(st.Mtim.Unix())

	return atime.Before(cutoff) && mtime.Before(cutoff), nil
}

// VisitDirs recursively walks dirs and runs action on every file matched by
// policy. The first policy, action or walk error stops the sweep.
func VisitDirs(dirs []string, policy Policy, action Action) error {
	for _, dir := range dirs {
		err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}

			ok, err := policy.Match(path)
			if err != nil {
				return err
			}
			if !ok {
				return nil
			}

			return action(path)
		})
		if err != nil {
			return err
		}
	}

	return nil
}
