// Copyright 2020 toolbelt Authors. All rights reserved.
// Use of this source code is governed by a BSD style
// license that can be found in the LICENSE file.

package toolbelt

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
)

const DefaultMountsFile = "/proc/mounts"

var (
	ErrNoMount = errors.New("no mount found")
)

// Mount is one entry of the mount table
type Mount struct {
	Spec    string `json:"spec"`
	File    string `json:"file"`
	VFSType string `json:"vfstype"`
	MntOps  string `json:"mntops"`
	Freq    int    `json:"freq"`
	PassNo  int    `json:"passno"`
}

// MountTable answers which filesystem a path lives on. Entries are read once
// at construction and again on each Refresh.
type MountTable struct {
	file string

	mu     sync.RWMutex
	mounts []*Mount
}

// LoadMountTable reads a mount table in /proc/mounts format from file
func LoadMountTable(file string) (*MountTable, error) {
	if len(file) == 0 {
		file = DefaultMountsFile
	}

	mt := &MountTable{file: file}
	if err := mt.Refresh(); err != nil {
		return nil, err
	}

	return mt, nil
}

// NewMountTable parses a mount table from r. The table has no backing file
// and cannot be refreshed.
func NewMountTable(r io.Reader) (*MountTable, error) {
	mounts, err := parseMounts(r)
	if err != nil {
		return nil, err
	}

	return &MountTable{mounts: mounts}, nil
}

// Refresh re-reads the mount table from its file
func (mt *MountTable) Refresh() error {
	if len(mt.file) == 0 {
		return errors.New("mount table has no backing file")
	}

	f, err := os.Open(mt.file)
	if err != nil {
		return err
	}
	defer f.Close()

	mounts, err := parseMounts(f)
	if err != nil {
		return fmt.Errorf("failed to parse %s: %w", mt.file, err)
	}

	mt.mu.Lock()
	mt.mounts = mounts
	mt.mu.Unlock()

	return nil
}

// Mounts returns a copy of the current entries
func (mt *MountTable) Mounts() []Mount {
	mt.mu.RLock()
	defer mt.mu.RUnlock()

	out := make([]Mount, len(mt.mounts))
	for i, m := range mt.mounts {
		out[i] = *m
	}
	return out
}

// Lookup returns the mount the given path resides on. The path does not
// need to exist; symlinks are resolved for the portion that does before
// walking upward.
func (mt *MountTable) Lookup(path string) (*Mount, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	mt.mu.RLock()
	defer mt.mu.RUnlock()

	for p := resolvePath(abs); ; {
		if m := mt.find(p); m != nil {
			mm := *m
			return &mm, nil
		}

		next := filepath.Dir(p)
		if next == p {
			break
		}
		p = next
	}

	return nil, fmt.Errorf("%w for path %s", ErrNoMount, path)
}

// resolvePath evaluates symlinks in the longest existing prefix of abs and
// re-appends the components that don't exist yet.
func resolvePath(abs string) string {
	var missing []string
	for p := abs; ; {
		if real, err := filepath.EvalSymlinks(p); err == nil {
			return filepath.Join(append([]string{real}, missing...)...)
		}

		next := filepath.Dir(p)
		if next == p {
			return abs
		}
		missing = append([]string{filepath.Base(p)}, missing...)
		p = next
	}
}

// later entries are mounted over earlier ones at the same point
func (mt *MountTable) find(dir string) *Mount {
	for i := len(mt.mounts) - 1; i >= 0; i-- {
		if mt.mounts[i].File == dir {
			return mt.mounts[i]
		}
	}
	return nil
}

func parseMounts(r io.Reader) ([]*Mount, error) {
	mounts := make([]*Mount, 0)

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 || strings.HasPrefix(fields[0], "#") {
			continue
		}
		if len(fields) < 4 {
			return nil, fmt.Errorf("short mount entry: %q", scanner.Text())
		}

		m := &Mount{
			Spec:    unescapeMount(fields[0]),
			File:    unescapeMount(fields[1]),
			VFSType: fields[2],
			MntOps:  fields[3],
		}
		if len(fields) > 4 {
			m.Freq, _ = strconv.Atoi(fields[4])
		}
		if len(fields) > 5 {
			m.PassNo, _ = strconv.Atoi(fields[5])
		}

		mounts = append(mounts, m)
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return mounts, nil
}

// The kernel escapes space, tab, newline and backslash as \ooo
func unescapeMount(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}

	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+3 < len(s) {
			if v, err := strconv.ParseUint(s[i+1:i+4], 8, 8); err == nil {
				b.WriteByte(byte(v))
				i += 3
				continue
			}
		}
		b.WriteByte(s[i])
	}

	return b.String()
}
