// Copyright 2020 toolbelt Authors. All rights reserved.
// Use of this source code is governed by a BSD style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/viper"
	"github.com/ubccr/toolbelt"
)

const testMounts = `/dev/sda1 / ext4 rw 0 1
mds@tcp:/scratch /scratch lustre rw,flock 0 0
/dev/sdb1 /data xfs rw,uquota 0 0
tank/home /home zfs rw 0 0
server:/export /nfs nfs4 rw 0 0
`

type fakeRunner struct {
	commands []string
	outputs  map[string]string
}

func (r *fakeRunner) Run(ctx context.Context, command string) (string, error) {
	r.commands = append(r.commands, command)
	out, ok := r.outputs[command]
	if !ok {
		return "", &toolbelt.CommandError{Command: command, ExitStatus: 1, Stderr: "unexpected command"}
	}
	return out, nil
}

type memCache struct {
	usage       map[toolbelt.Target]*toolbelt.Usage
	invalidated []toolbelt.Target
}

func (m *memCache) GetUsage(t toolbelt.Target) (*toolbelt.Usage, error) {
	u, ok := m.usage[t]
	if !ok {
		return nil, toolbelt.ErrNotFound
	}
	return u, nil
}

func (m *memCache) SetUsage(t toolbelt.Target, u *toolbelt.Usage) error {
	m.usage[t] = u
	return nil
}

func (m *memCache) InvalidateUsage(t toolbelt.Target) error {
	delete(m.usage, t)
	m.invalidated = append(m.invalidated, t)
	return nil
}

type memRecords struct {
	records []*toolbelt.LoginRecord
}

func (m *memRecords) AddLoginRecord(r *toolbelt.LoginRecord) error {
	m.records = append(m.records, r)
	return nil
}

func newTestHandler(t *testing.T, outputs map[string]string) (*Handler, *fakeRunner, *memCache, *memRecords) {
	mounts, err := toolbelt.NewMountTable(strings.NewReader(testMounts))
	if err != nil {
		t.Fatal(err)
	}

	runner := &fakeRunner{outputs: outputs}
	cache := &memCache{usage: make(map[toolbelt.Target]*toolbelt.Usage)}
	records := &memRecords{}

	h := &Handler{
		mounts:      mounts,
		runner:      runner,
		cache:       cache,
		records:     records,
		metrics:     NewMetrics(prometheus.NewRegistry()),
		lookupGroup: func(name string) error { return nil },
	}

	return h, runner, cache, records
}

func setAdmins(t *testing.T, admins ...string) {
	viper.Set("admins", admins)
	t.Cleanup(func() { viper.Set("admins", []string{}) })
}

func newContext(method, target, body string, u *User) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if len(body) > 0 {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.Set("user", u)
	return c, rec
}

func httpCode(err error) int {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code
	}
	return 0
}

func TestQuotaDefaultUser(t *testing.T) {
	h, runner, _, _ := newTestHandler(t, map[string]string{
		"/bin/lfs quota -q -u alice /scratch": "/scratch 100 200 300 - 4 5 6 -",
	})

	for i := 0; i < 2; i++ {
		c, rec := newContext(http.MethodGet, "/quota?path=/scratch/alice/work", "", &User{UID: "alice"})
		if err := h.Quota(c); err != nil {
			t.Fatal(err)
		}
		if rec.Code != http.StatusOK {
			t.Fatalf("got status %d", rec.Code)
		}

		report := &toolbelt.QuotaReport{}
		if err := json.Unmarshal(rec.Body.Bytes(), report); err != nil {
			t.Fatal(err)
		}

		if report.Path != "/scratch" || report.Backend != "lustre" || report.Target.Identity != "alice" {
			t.Errorf("unexpected report: %+v", report)
		}
		if report.Usage == nil || report.Usage.BlockUsed != 100 || report.Usage.InodeHard != 6 {
			t.Errorf("unexpected usage: %+v", report.Usage)
		}
		if report.Cached != (i == 1) {
			t.Errorf("request %d: cached = %v", i, report.Cached)
		}
	}

	if len(runner.commands) != 1 {
		t.Errorf("expected a single query, got %q", runner.commands)
	}
}

func TestQuotaZFSDataset(t *testing.T) {
	query := "/sbin/zfs get -H -p -o value userused@bob,userquota@bob,userobjused@bob,userobjquota@bob tank/home"
	h, _, _, _ := newTestHandler(t, map[string]string{query: "1 2 3 4"})

	c, rec := newContext(http.MethodGet, "/quota?path=/home/bob", "", &User{UID: "bob"})
	if err := h.Quota(c); err != nil {
		t.Fatal(err)
	}

	report := &toolbelt.QuotaReport{}
	if err := json.Unmarshal(rec.Body.Bytes(), report); err != nil {
		t.Fatal(err)
	}
	if report.Target.Filesystem != "tank/home" || report.Usage.BlockSoft != 2 {
		t.Errorf("unexpected report: %+v %+v", report, report.Usage)
	}
}

func TestQuotaPermissions(t *testing.T) {
	h, _, _, _ := newTestHandler(t, map[string]string{
		"/bin/lfs quota -q -u bob /scratch": "/scratch 1 2 3 - 4 5 6 -",
		"/bin/lfs quota -q -g lab /scratch": "/scratch 1 2 3 - 4 5 6 -",
		"/bin/lfs quota -q -p 77 /scratch":  "/scratch 1 2 3 - 4 5 6 -",
	})

	alice := &User{UID: "alice", Groups: []string{"lab"}}
	carol := &User{UID: "carol"}

	tests := []struct {
		name  string
		url   string
		user  *User
		admin bool
		code  int
	}{
		{"other user", "/quota?path=/scratch&user=bob", alice, false, http.StatusUnauthorized},
		{"other user as admin", "/quota?path=/scratch&user=bob", alice, true, http.StatusOK},
		{"member group", "/quota?path=/scratch&group=lab", alice, false, http.StatusOK},
		{"non member group", "/quota?path=/scratch&group=lab", carol, false, http.StatusUnauthorized},
		{"project", "/quota?path=/scratch&project=77", alice, false, http.StatusUnauthorized},
		{"project as admin", "/quota?path=/scratch&project=77", alice, true, http.StatusOK},
	}

	for _, tt := range tests {
		if tt.admin {
			setAdmins(t, tt.user.UID)
		} else {
			setAdmins(t)
		}

		c, rec := newContext(http.MethodGet, tt.url, "", tt.user)
		err := h.Quota(c)
		code := rec.Code
		if err != nil {
			code = httpCode(err)
		}
		if code != tt.code {
			t.Errorf("%s: got %d want %d (%v)", tt.name, code, tt.code, err)
		}
	}

	h.lookupGroup = func(string) error { return errors.New("unknown group") }
	c, _ := newContext(http.MethodGet, "/quota?path=/scratch&group=nope", "", alice)
	if code := httpCode(h.Quota(c)); code != http.StatusNotFound {
		t.Errorf("unknown group: got %d want 404", code)
	}
}

func TestQuotaErrors(t *testing.T) {
	h, _, _, _ := newTestHandler(t, map[string]string{})
	alice := &User{UID: "alice"}

	tests := []struct {
		url  string
		code int
	}{
		{"/quota", http.StatusBadRequest},
		{"/quota?path=/data/alice", http.StatusNotImplemented},
		{"/quota?path=/nfs/alice", http.StatusBadRequest},
		{"/quota?path=/scratch", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		c, _ := newContext(http.MethodGet, tt.url, "", alice)
		if code := httpCode(h.Quota(c)); code != tt.code {
			t.Errorf("%s: got %d want %d", tt.url, code, tt.code)
		}
	}

	mounts, err := toolbelt.NewMountTable(strings.NewReader("/dev/sdb1 /data xfs rw 0 0\n"))
	if err != nil {
		t.Fatal(err)
	}
	h.mounts = mounts
	c, _ := newContext(http.MethodGet, "/quota?path=/home/alice", "", alice)
	if code := httpCode(h.Quota(c)); code != http.StatusNotFound {
		t.Errorf("no mount: got %d want 404", code)
	}
}

func TestSetQuota(t *testing.T) {
	apply := "/usr/sbin/xfs_quota -x -c 'limit -u bsoft=100 bhard=200 isoft=unlimited ihard=unlimited bob' /data"
	h, runner, cache, _ := newTestHandler(t, map[string]string{apply: ""})

	target := toolbelt.Target{Filesystem: "/data", Identity: "bob", Kind: toolbelt.KindUser}
	cache.usage[target] = &toolbelt.Usage{BlockUsed: 1}

	body := `{"path": "/data/bob", "identity": "bob", "limits": {"soft_limit": 100, "hard_limit": 200}}`

	c, _ := newContext(http.MethodPut, "/quota", body, &User{UID: "alice"})
	if code := httpCode(h.SetQuota(c)); code != http.StatusUnauthorized {
		t.Errorf("non admin: got %d want 401", code)
	}

	setAdmins(t, "alice")
	c, rec := newContext(http.MethodPut, "/quota", body, &User{UID: "alice"})
	if err := h.SetQuota(c); err != nil {
		t.Fatal(err)
	}
	if rec.Code != http.StatusNoContent {
		t.Errorf("got status %d", rec.Code)
	}

	if len(runner.commands) != 1 || runner.commands[0] != apply {
		t.Errorf("unexpected commands: %q", runner.commands)
	}
	if _, ok := cache.usage[target]; ok || len(cache.invalidated) != 1 {
		t.Error("cached usage should be invalidated after apply")
	}

	body = `{"path": "/home/bob", "identity": "42", "kind": "project", "limits": {}}`
	c, _ = newContext(http.MethodPut, "/quota", body, &User{UID: "alice"})
	if code := httpCode(h.SetQuota(c)); code != http.StatusBadRequest {
		t.Errorf("project on zfs: got %d want 400", code)
	}
}

func TestLoginRecord(t *testing.T) {
	h, _, _, records := newTestHandler(t, nil)
	setAdmins(t, "root")

	body := `{"when": "2024-03-03T09:15:02Z", "host": "login1", "service": "sshd", "method": "publickey", "user": "alice", "fromhost": "10.1.2.3"}`
	c, rec := newContext(http.MethodPost, "/login-record", body, &User{UID: "root"})
	if err := h.LoginRecord(c); err != nil {
		t.Fatal(err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("got status %d", rec.Code)
	}
	if len(records.records) != 1 || records.records[0].User != "alice" {
		t.Fatalf("record not stored: %+v", records.records)
	}

	c, _ = newContext(http.MethodPost, "/login-record", `{"host": "login1"}`, &User{UID: "root"})
	if code := httpCode(h.LoginRecord(c)); code != http.StatusBadRequest {
		t.Errorf("invalid record: got %d want 400", code)
	}

	c, _ = newContext(http.MethodPost, "/login-record", body, &User{UID: "alice"})
	if code := httpCode(h.LoginRecord(c)); code != http.StatusUnauthorized {
		t.Errorf("non admin: got %d want 401", code)
	}

	// reporter accounts may be granted through an admin group
	setAdmins(t, "reporters")
	c, rec = newContext(http.MethodPost, "/login-record", body, &User{UID: "cron", Groups: []string{"reporters"}})
	if err := h.LoginRecord(c); err != nil {
		t.Fatal(err)
	}
	if rec.Code != http.StatusOK || len(records.records) != 2 {
		t.Errorf("admin group member: got status %d with %d records", rec.Code, len(records.records))
	}
}
