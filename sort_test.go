// Copyright 2020 toolbelt Authors. All rights reserved.
// Use of this source code is governed by a BSD style
// license that can be found in the LICENSE file.

package toolbelt

import (
	"reflect"
	"testing"
)

func TestHumanNumericSort(t *testing.T) {
	lines := []string{
		"1G /data",
		"15k /home",
		"300 /tmp",
		"2M /var",
		"1.5G /scratch",
		"garbage /x",
		"",
		"3T /archive",
	}

	got := HumanNumericSort(lines, 0)
	want := []string{
		"garbage /x",
		"",
		"300 /tmp",
		"15k /home",
		"2M /var",
		"1G /data",
		"1.5G /scratch",
		"3T /archive",
	}

	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %q\nwant %q", got, want)
	}
}

func TestHumanNumericSortColumn(t *testing.T) {
	lines := []string{
		"alice 10k",
		"bob 2",
		"carol 1m",
		"dave",
	}

	got := HumanNumericSort(lines, 1)
	want := []string{"dave", "bob 2", "alice 10k", "carol 1m"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %q want %q", got, want)
	}

	if lines[0] != "alice 10k" {
		t.Error("input should not be modified")
	}
}

func TestHumanNumericSortLargeValues(t *testing.T) {
	lines := []string{"junk", "100000000p", "10000p", "1k", "99999999999999999999"}

	got := HumanNumericSort(lines, 0)
	want := []string{"junk", "1k", "100000000p", "10000p", "99999999999999999999"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %q want %q", got, want)
	}
}
