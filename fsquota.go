// Copyright 2020 toolbelt Authors. All rights reserved.
// Use of this source code is governed by a BSD style
// license that can be found in the LICENSE file.

package toolbelt

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
)

// Quota manages the limits of a single target on one backend. The usage
// snapshot from the last query is kept until Invalidate is called; Apply
// does not refresh it. A Quota is not safe for concurrent use.
type Quota struct {
	Target  Target
	Backend Backend

	runner Runner
	usage  *Usage
}

// NewQuota returns a Quota for target, failing if the backend does not
// support the target's subject kind.
func NewQuota(t Target, b Backend, runner Runner) (*Quota, error) {
	if _, _, err := b.resolve(t); err != nil {
		return nil, err
	}

	return &Quota{Target: t, Backend: b, runner: runner}, nil
}

func (q *Quota) QueryCommand() (string, error) {
	return BuildQueryCommand(q.Target, q.Backend)
}

func (q *Quota) ApplyCommand(l Limits) (string, error) {
	return BuildApplyCommand(q.Target, q.Backend, l)
}

// Query runs the backend's query command and replaces the cached snapshot
func (q *Quota) Query(ctx context.Context) (*Usage, error) {
	if !q.Backend.CanQuery() {
		return nil, fmt.Errorf("%w on %s", ErrQueryUnsupported, q.Backend)
	}

	cmd, err := q.QueryCommand()
	if err != nil {
		return nil, err
	}

	out, err := q.runner.Run(ctx, cmd)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"err":      err,
			"identity": q.Target.Identity,
			"fs":       q.Target.Filesystem,
			"backend":  q.Backend,
		}).Error("Failed to query quota")
		return nil, err
	}

	usage, err := ParseUsage(q.Backend, out)
	if err != nil {
		return nil, err
	}

	q.usage = usage
	return usage, nil
}

// Usage returns the cached snapshot, querying only when nothing is cached
func (q *Quota) Usage(ctx context.Context) (*Usage, error) {
	if q.usage != nil {
		return q.usage, nil
	}

	return q.Query(ctx)
}

// Cached returns the cached snapshot, if any, without running a command
func (q *Quota) Cached() (*Usage, bool) {
	return q.usage, q.usage != nil
}

// Invalidate drops the cached snapshot so the next Usage call re-queries
func (q *Quota) Invalidate() {
	q.usage = nil
}

// Apply sets new limits for the target
func (q *Quota) Apply(ctx context.Context, l Limits) error {
	cmd, err := q.ApplyCommand(l)
	if err != nil {
		return err
	}

	logrus.WithFields(logrus.Fields{
		"identity": q.Target.Identity,
		"kind":     q.Target.Kind,
		"fs":       q.Target.Filesystem,
		"backend":  q.Backend,
	}).Info("Applying quota limits")

	_, err = q.runner.Run(ctx, cmd)
	return err
}
