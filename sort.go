// Copyright 2020 toolbelt Authors. All rights reserved.
// Use of this source code is governed by a BSD style
// license that can be found in the LICENSE file.

package toolbelt

import (
	"errors"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
)

var humanSizePattern = regexp.MustCompile(`(\d+(?:\.\d+)?)([kmgtpKMGTP])`)

// HumanNumericSort sorts lines numerically on the given zero based column,
// like sort -h. Values may carry SI suffixes such as 15k or 1G. Lines whose
// column is missing or not numeric sort first. The sort is stable.
func HumanNumericSort(lines []string, column int) []string {
	keys := make([]int64, len(lines))
	for i, l := range lines {
		keys[i] = humanSortKey(l, column)
	}

	idx := make([]int, len(lines))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return keys[idx[a]] < keys[idx[b]]
	})

	out := make([]string, len(lines))
	for i, j := range idx {
		out[i] = lines[j]
	}
	return out
}

func humanSortKey(line string, column int) int64 {
	items := strings.Fields(line)
	if column < 0 || column >= len(items) {
		return -1
	}
	item := items[column]

	v, err := strconv.ParseInt(item, 10, 64)
	if err == nil && v >= 0 {
		return v
	}
	if errors.Is(err, strconv.ErrRange) && v > 0 {
		return math.MaxInt64
	}

	m := humanSizePattern.FindStringSubmatch(item)
	if m == nil {
		return -1
	}

	// humanize treats single letter suffixes as SI (powers of 1000). The
	// pattern guarantees the syntax so an error here means overflow.
	b, err := humanize.ParseBytes(m[1] + strings.ToLower(m[2]))
	if err != nil || b > math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(b)
}
