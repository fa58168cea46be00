// Copyright 2015 toolbelt Authors. All rights reserved.
// Use of this source code is governed by a BSD style
// license that can be found in the LICENSE file.

package toolbelt

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Backend is the quota tool family used to manage a filesystem.
type Backend int

const (
	// ext3/ext4 via quota(1) and setquota(8)
	BackendGeneric Backend = iota
	BackendLustre
	BackendXFS
	BackendZFS
)

const (
	KindUser    SubjectKind = "user"
	KindGroup   SubjectKind = "group"
	KindProject SubjectKind = "project"
)

var (
	ErrUnsupportedKind       = errors.New("unsupported identity kind")
	ErrMalformedOutput       = errors.New("malformed quota output")
	ErrQueryUnsupported      = errors.New("quota query not supported")
	ErrInvalidTarget         = errors.New("invalid quota target")
	ErrUnsupportedFilesystem = errors.New("unsupported filesystem")
	ErrUnknownBackend        = errors.New("unknown backend")

	identityPattern   = regexp.MustCompile(`^[A-Za-z0-9._@-]+$`)
	filesystemPattern = regexp.MustCompile(`^[A-Za-z0-9._@:/+-]+$`)
)

// SubjectKind is the type of entity a quota applies to.
type SubjectKind string

// Target identifies what is being limited. Filesystem is a mount point for
// the generic, Lustre and XFS backends and a dataset name for ZFS.
type Target struct {
	Filesystem string      `json:"filesystem"`
	Identity   string      `json:"identity"`
	Kind       SubjectKind `json:"kind"`
}

// Limits are soft and hard thresholds for space and inode counts. A zero
// limit means unlimited on XFS and ZFS and a literal zero everywhere else.
type Limits struct {
	BlockSoft uint64 `json:"soft_limit"`
	BlockHard uint64 `json:"hard_limit"`
	InodeSoft uint64 `json:"soft_limit_inodes"`
	InodeHard uint64 `json:"hard_limit_inodes"`
}

// Usage is a snapshot of current consumption and limits
type Usage struct {
	BlockUsed uint64 `json:"used"`
	BlockSoft uint64 `json:"soft_limit"`
	BlockHard uint64 `json:"hard_limit"`
	InodeUsed uint64 `json:"used_inodes"`
	InodeSoft uint64 `json:"soft_limit_inodes"`
	InodeHard uint64 `json:"hard_limit_inodes"`
}

type backendOps struct {
	name  string
	flags map[SubjectKind]string
	query func(t Target, flag string) string
	apply func(t Target, flag string, l Limits) string

	// nil when the tool's output has no known grammar
	parse func(fields []string) (*Usage, error)
}

var backends = [...]backendOps{
	BackendGeneric: {
		name:  "generic",
		flags: map[SubjectKind]string{KindUser: "-u", KindGroup: "-g"},
		query: posixQueryCommand,
		apply: func(t Target, flag string, l Limits) string {
			return fmt.Sprintf("/sbin/setquota %s %s %d %d %d %d %s",
				flag, t.Identity, l.BlockSoft, l.BlockHard, l.InodeSoft, l.InodeHard, t.Filesystem)
		},
	},
	BackendLustre: {
		name:  "lustre",
		flags: map[SubjectKind]string{KindUser: "-u", KindGroup: "-g", KindProject: "-p"},
		query: func(t Target, flag string) string {
			return fmt.Sprintf("/bin/lfs quota -q %s %s %s", flag, t.Identity, t.Filesystem)
		},
		apply: func(t Target, flag string, l Limits) string {
			return fmt.Sprintf("/bin/lfs setquota %s %s"+
				" --block-softlimit %d --block-hardlimit %d"+
				" --inode-softlimit %d --inode-hardlimit %d %s",
				flag, t.Identity, l.BlockSoft, l.BlockHard, l.InodeSoft, l.InodeHard, t.Filesystem)
		},
		parse: parseLustre,
	},
	BackendXFS: {
		name:  "xfs",
		flags: map[SubjectKind]string{KindUser: "-u", KindGroup: "-g", KindProject: "-p"},
		query: posixQueryCommand,
		apply: func(t Target, flag string, l Limits) string {
			return fmt.Sprintf("/usr/sbin/xfs_quota -x -c 'limit %s bsoft=%s bhard=%s isoft=%s ihard=%s %s' %s",
				flag,
				limitOr(l.BlockSoft, "unlimited"),
				limitOr(l.BlockHard, "unlimited"),
				limitOr(l.InodeSoft, "unlimited"),
				limitOr(l.InodeHard, "unlimited"),
				t.Identity, t.Filesystem)
		},
	},
	BackendZFS: {
		name:  "zfs",
		flags: map[SubjectKind]string{KindUser: "user", KindGroup: "group"},
		query: func(t Target, prefix string) string {
			// Property order must match parseZFS
			return fmt.Sprintf("/sbin/zfs get -H -p -o value %[1]sused@%[2]s,%[1]squota@%[2]s,%[1]sobjused@%[2]s,%[1]sobjquota@%[2]s %[3]s",
				prefix, t.Identity, t.Filesystem)
		},
		apply: func(t Target, prefix string, l Limits) string {
			return fmt.Sprintf("/sbin/zfs set %[1]squota@%[2]s=%[4]s %[1]sobjquota@%[2]s=%[5]s %[3]s",
				prefix, t.Identity, t.Filesystem,
				limitOr(l.BlockHard, "none"),
				limitOr(l.InodeHard, "none"))
		},
		parse: parseZFS,
	},
}

func (b Backend) String() string {
	if b < 0 || int(b) >= len(backends) {
		return fmt.Sprintf("backend(%d)", int(b))
	}
	return backends[b].name
}

func (b Backend) ops() (*backendOps, error) {
	if b < 0 || int(b) >= len(backends) {
		return nil, fmt.Errorf("%w: %d", ErrUnknownBackend, int(b))
	}
	return &backends[b], nil
}

// Supports reports whether the backend can manage quotas for kind
func (b Backend) Supports(kind SubjectKind) bool {
	ops, err := b.ops()
	if err != nil {
		return false
	}
	_, ok := ops.flags[kind]
	return ok
}

// CanQuery reports whether usage output of the backend can be parsed
func (b Backend) CanQuery() bool {
	ops, err := b.ops()
	return err == nil && ops.parse != nil
}

// ParseBackend returns the backend with the given name
func ParseBackend(name string) (Backend, error) {
	for i := range backends {
		if backends[i].name == strings.ToLower(name) {
			return Backend(i), nil
		}
	}

	return 0, fmt.Errorf("%w: %q", ErrUnknownBackend, name)
}

// BackendForFSType maps a filesystem type as found in /proc/mounts to the
// backend that manages its quotas.
func BackendForFSType(fstype string) (Backend, error) {
	switch fstype {
	case "ext2", "ext3", "ext4":
		return BackendGeneric, nil
	case "lustre":
		return BackendLustre, nil
	case "xfs":
		return BackendXFS, nil
	case "zfs":
		return BackendZFS, nil
	}

	return 0, fmt.Errorf("%w: %q", ErrUnsupportedFilesystem, fstype)
}

// ParseSubjectKind validates a subject kind name
func ParseSubjectKind(s string) (SubjectKind, error) {
	switch k := SubjectKind(strings.ToLower(s)); k {
	case KindUser, KindGroup, KindProject:
		return k, nil
	}

	return "", fmt.Errorf("%w: %q", ErrUnsupportedKind, s)
}

// Validate checks that the target can be embedded in a shell command line
func (t Target) Validate() error {
	if !identityPattern.MatchString(t.Identity) {
		return fmt.Errorf("%w: identity %q", ErrInvalidTarget, t.Identity)
	}
	if !filesystemPattern.MatchString(t.Filesystem) {
		return fmt.Errorf("%w: filesystem %q", ErrInvalidTarget, t.Filesystem)
	}

	return nil
}

func (b Backend) resolve(t Target) (*backendOps, string, error) {
	ops, err := b.ops()
	if err != nil {
		return nil, "", err
	}

	flag, ok := ops.flags[t.Kind]
	if !ok {
		return nil, "", fmt.Errorf("%w: %q on %s", ErrUnsupportedKind, t.Kind, b)
	}

	if err := t.Validate(); err != nil {
		return nil, "", err
	}

	return ops, flag, nil
}

// BuildQueryCommand returns the command line that reports current usage for
// the target.
func BuildQueryCommand(t Target, b Backend) (string, error) {
	ops, flag, err := b.resolve(t)
	if err != nil {
		return "", err
	}

	return ops.query(t, flag), nil
}

// BuildApplyCommand returns the command line that sets limits for the
// target.
func BuildApplyCommand(t Target, b Backend, l Limits) (string, error) {
	ops, flag, err := b.resolve(t)
	if err != nil {
		return "", err
	}

	return ops.apply(t, flag, l), nil
}

// ParseUsage parses the output of the backend's query command
func ParseUsage(b Backend, raw string) (*Usage, error) {
	ops, err := b.ops()
	if err != nil {
		return nil, err
	}

	if ops.parse == nil {
		return nil, fmt.Errorf("%w on %s", ErrQueryUnsupported, b)
	}

	return ops.parse(strings.Fields(raw))
}

func posixQueryCommand(t Target, flag string) string {
	return fmt.Sprintf("/sbin/quota %s %s", flag, t.Identity)
}

func limitOr(v uint64, unlimited string) string {
	if v == 0 {
		return unlimited
	}
	return strconv.FormatUint(v, 10)
}

// fsname bused bsoft bhard btime iused isoft ihard itime
func parseLustre(fields []string) (*Usage, error) {
	if len(fields) != 9 {
		return nil, fmt.Errorf("%w: lustre expected 9 fields, got %d", ErrMalformedOutput, len(fields))
	}

	vals, err := parseCounts(fields[1], fields[2], fields[3], fields[5], fields[6], fields[7])
	if err != nil {
		return nil, err
	}

	return &Usage{
		BlockUsed: vals[0],
		BlockSoft: vals[1],
		BlockHard: vals[2],
		InodeUsed: vals[3],
		InodeSoft: vals[4],
		InodeHard: vals[5],
	}, nil
}

// bused bhard iused ihard. ZFS has no soft limits so soft mirrors hard.
func parseZFS(fields []string) (*Usage, error) {
	if len(fields) != 4 {
		return nil, fmt.Errorf("%w: zfs expected 4 fields, got %d", ErrMalformedOutput, len(fields))
	}

	vals, err := parseCounts(fields...)
	if err != nil {
		return nil, err
	}

	return &Usage{
		BlockUsed: vals[0],
		BlockSoft: vals[1],
		BlockHard: vals[1],
		InodeUsed: vals[2],
		InodeSoft: vals[3],
		InodeHard: vals[3],
	}, nil
}

func parseCounts(fields ...string) ([]uint64, error) {
	vals := make([]uint64, len(fields))
	for i, f := range fields {
		// lfs flags values over their limit with a trailing '*'
		f = strings.TrimSuffix(f, "*")
		if f == "none" || f == "-" {
			continue
		}

		v, err := strconv.ParseUint(f, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid count %q", ErrMalformedOutput, fields[i])
		}
		vals[i] = v
	}

	return vals, nil
}
