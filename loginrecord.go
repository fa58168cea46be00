// Copyright 2020 toolbelt Authors. All rights reserved.
// Use of this source code is governed by a BSD style
// license that can be found in the LICENSE file.

package toolbelt

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"
)

var (
	ErrInvalidRecord = errors.New("invalid login record")

	sshAcceptedPattern = regexp.MustCompile(
		`(\w{3}\s+\d+ \d{2}:\d{2}:\d{2}) (\S+) (\S+)\[\d+\]: Accepted (.+) for (.+) from (.+) port \d+ (.*)$`)
)

// LoginRecord is a successful login observed on a host
type LoginRecord struct {
	When     time.Time `json:"when"`
	Host     string    `json:"host"`
	Service  string    `json:"service"`
	Method   string    `json:"method,omitempty"`
	User     string    `json:"user"`
	FromHost string    `json:"fromhost"`
}

func (r *LoginRecord) String() string {
	return fmt.Sprintf("%s - %s", r.User, r.When.Format(time.RFC3339))
}

// Validate checks required fields and their maximum lengths
func (r *LoginRecord) Validate() error {
	if r.When.IsZero() {
		return fmt.Errorf("%w: when is required", ErrInvalidRecord)
	}

	fields := []struct {
		name     string
		value    string
		max      int
		required bool
	}{
		{"host", r.Host, 64, true},
		{"service", r.Service, 32, true},
		{"method", r.Method, 32, false},
		{"user", r.User, 32, true},
		{"fromhost", r.FromHost, 256, true},
	}

	for _, f := range fields {
		if f.required && len(f.value) == 0 {
			return fmt.Errorf("%w: %s is required", ErrInvalidRecord, f.name)
		}
		if len(f.value) > f.max {
			return fmt.Errorf("%w: %s longer than %d", ErrInvalidRecord, f.name, f.max)
		}
	}

	return nil
}

// ScanLoginRecords returns the accepted sshd logins found in a syslog style
// auth log. Syslog timestamps carry no year so the caller supplies one.
func ScanLoginRecords(r io.Reader, year int) ([]*LoginRecord, error) {
	records := make([]*LoginRecord, 0)

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		rec, err := parseSSHLine(strings.TrimRight(scanner.Text(), " \t\r"), year)
		if err != nil {
			return nil, err
		}
		if rec != nil {
			records = append(records, rec)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return records, nil
}

func parseSSHLine(line string, year int) (*LoginRecord, error) {
	m := sshAcceptedPattern.FindStringSubmatch(line)
	if m == nil {
		return nil, nil
	}

	stamp := fmt.Sprintf("%d %s", year, strings.Join(strings.Fields(m[1]), " "))
	when, err := time.ParseInLocation("2006 Jan 2 15:04:05", stamp, time.Local)
	if err != nil {
		return nil, fmt.Errorf("invalid timestamp %q: %w", m[1], err)
	}

	return &LoginRecord{
		When:     when,
		Host:     m[2],
		Service:  m[3],
		Method:   m[4],
		User:     m[5],
		FromHost: m[6],
	}, nil
}
