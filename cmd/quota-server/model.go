// Copyright 2015 toolbelt Authors. All rights reserved.
// Use of this source code is governed by a BSD style
// license that can be found in the LICENSE file.

package main

import (
	"github.com/godbus/dbus"
	"github.com/spf13/viper"
)

const (
	sssdInfoPipe     = "org.freedesktop.sssd.infopipe"
	sssdInfoPipePath = "/org/freedesktop/sssd/infopipe"
)

type User struct {
	UID    string   `json:"uid"`
	Groups []string `json:"groups"`
}

func (u *User) HasGroup(group string) bool {
	for _, g := range u.Groups {
		if g == group {
			return true
		}
	}

	return false
}

// IsAdmin reports whether the user or one of its groups is listed in the
// admins config.
func (u *User) IsAdmin() bool {
	for _, x := range viper.GetStringSlice("admins") {
		if x == u.UID || u.HasGroup(x) {
			return true
		}
	}

	return false
}

// FetchGroups asks SSSD over the system bus for the groups of uid
func FetchGroups(uid string) ([]string, error) {
	conn, err := dbus.SystemBus()
	if err != nil {
		return nil, err
	}

	obj := conn.Object(sssdInfoPipe, dbus.ObjectPath(sssdInfoPipePath))

	var groups []string
	err = obj.Call(sssdInfoPipe+".GetUserGroups", 0, uid).Store(&groups)
	if err != nil {
		return nil, err
	}

	return groups, nil
}
