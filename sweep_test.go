// Copyright 2020 toolbelt Authors. All rights reserved.
// Use of this source code is governed by a BSD style
// license that can be found in the LICENSE file.

package toolbelt

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"
)

func touch(t *testing.T, path string, atime, mtime time.Time) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.Chtimes(path, atime, mtime); err != nil {
		t.Fatal(err)
	}
}

func TestVisitDirs(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	old := now.Add(-60 * 24 * time.Hour)
	recent := now.Add(-time.Hour)

	dir1 := t.TempDir()
	dir2 := t.TempDir()

	touch(t, filepath.Join(dir1, "stale.dat"), old, old)
	touch(t, filepath.Join(dir1, "sub", "deep", "stale.log"), old, old)
	touch(t, filepath.Join(dir1, "read-recently"), recent, old)
	touch(t, filepath.Join(dir1, "written-recently"), old, recent)
	touch(t, filepath.Join(dir2, "stale2"), old, old)

	policy := &UnusedPeriodPolicy{Period: 30 * 24 * time.Hour, Now: func() time.Time { return now }}

	var found []string
	err := VisitDirs([]string{dir1, dir2}, policy, func(path string) error {
		found = append(found, path)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	want := []string{
		filepath.Join(dir1, "stale.dat"),
		filepath.Join(dir1, "sub", "deep", "stale.log"),
		filepath.Join(dir2, "stale2"),
	}
	sort.Strings(found)
	sort.Strings(want)
	if len(found) != len(want) {
		t.Fatalf("got %q want %q", found, want)
	}
	for i := range want {
		if found[i] != want[i] {
			t.Errorf("got %q want %q", found[i], want[i])
		}
	}
}

func TestVisitDirsRemove(t *testing.T) {
	now := time.Now()
	dir := t.TempDir()
	stale := filepath.Join(dir, "stale")
	touch(t, stale, now.Add(-90*24*time.Hour), now.Add(-90*24*time.Hour))

	err := VisitDirs([]string{dir}, &UnusedPeriodPolicy{}, os.Remove)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Error("stale file should be removed")
	}
}

func TestVisitDirsActionError(t *testing.T) {
	now := time.Now()
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "a"), now.Add(-90*24*time.Hour), now.Add(-90*24*time.Hour))

	boom := errors.New("boom")
	err := VisitDirs([]string{dir}, &UnusedPeriodPolicy{}, func(string) error { return boom })
	if !errors.Is(err, boom) {
		t.Errorf("expected action error, got %v", err)
	}

	err = VisitDirs([]string{filepath.Join(dir, "missing")}, &UnusedPeriodPolicy{}, func(string) error { return nil })
	if err == nil {
		t.Error("expected error for missing directory")
	}
}
