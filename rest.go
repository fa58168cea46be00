// Copyright 2015 toolbelt Authors. All rights reserved.
// Use of this source code is governed by a BSD style
// license that can be found in the LICENSE file.

package toolbelt

const (
	ResourceQuota       = "/quota"
	ResourceLoginRecord = "/login-record"
)

type QuotaParams struct {
	User    string `query:"user"`
	Group   string `query:"group"`
	Project string `query:"project"`
	Path    string `query:"path"`
}

// Request body to set limits on a path
type QuotaLimitRequest struct {
	Path     string `json:"path"`
	Identity string `json:"identity"`
	Kind     string `json:"kind"`
	Limits   Limits `json:"limits"`
}

type QuotaReport struct {
	Path    string `json:"path"`
	Target  Target `json:"target"`
	Backend string `json:"backend"`
	Usage   *Usage `json:"usage"`
	Cached  bool   `json:"cached"`
}

type ErrorResponse struct {
	Message string `json:"message"`
}
