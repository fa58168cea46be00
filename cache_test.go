// Copyright 2020 toolbelt Authors. All rights reserved.
// Use of this source code is governed by a BSD style
// license that can be found in the LICENSE file.

package toolbelt

import (
	"errors"
	"fmt"
	"os"
	"testing"
	"time"
)

func newCache(t *testing.T) *Cache {
	addr := os.Getenv("TOOLBELT_TEST_REDIS")
	if len(addr) == 0 {
		t.Skip("TOOLBELT_TEST_REDIS not set")
	}

	return &Cache{Addr: addr, Expire: 60}
}

func TestCacheUsage(t *testing.T) {
	c := newCache(t)

	target := Target{
		Filesystem: "/scratch",
		Identity:   fmt.Sprintf("test%d", time.Now().UnixNano()),
		Kind:       KindUser,
	}

	if _, err := c.GetUsage(target); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	usage := &Usage{BlockUsed: 1, BlockSoft: 2, BlockHard: 3, InodeUsed: 4, InodeSoft: 5, InodeHard: 6}
	if err := c.SetUsage(target, usage); err != nil {
		t.Fatal(err)
	}

	got, err := c.GetUsage(target)
	if err != nil {
		t.Fatal(err)
	}
	if *got != *usage {
		t.Errorf("got %+v want %+v", *got, *usage)
	}

	if err := c.InvalidateUsage(target); err != nil {
		t.Fatal(err)
	}
	if _, err := c.GetUsage(target); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after invalidate, got %v", err)
	}
}

func TestCacheLoginRecords(t *testing.T) {
	c := newCache(t)

	user := fmt.Sprintf("u%d", time.Now().UnixNano()%100000000)
	for i := 0; i < 3; i++ {
		err := c.AddLoginRecord(&LoginRecord{
			When:     time.Unix(int64(1700000000+i), 0).UTC(),
			Host:     "login1",
			Service:  "sshd",
			User:     user,
			FromHost: "10.0.0.1",
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	records, err := c.LoginRecords(user, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[1].When.Unix() != 1700000002 {
		t.Errorf("expected newest record last, got %s", records[1].When)
	}
}
