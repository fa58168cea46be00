// Copyright 2020 toolbelt Authors. All rights reserved.
// Use of this source code is governed by a BSD style
// license that can be found in the LICENSE file.

package toolbelt

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

func init() {
	viper.SetDefault("ssh_known_hosts", DefaultKnownHostsFile)
}

// RunnerFromConfig returns an SSH runner when ssh_host is configured and a
// local shell runner otherwise.
func RunnerFromConfig() Runner {
	host := viper.GetString("ssh_host")
	if len(host) == 0 {
		return &ShellRunner{Shell: viper.GetString("shell")}
	}

	logrus.WithFields(logrus.Fields{
		"host": host,
		"user": viper.GetString("ssh_user"),
	}).Info("Running quota commands over ssh")

	return &SSHRunner{
		Address:               host,
		User:                  viper.GetString("ssh_user"),
		Password:              viper.GetString("ssh_password"),
		KeyFile:               viper.GetString("ssh_key"),
		KnownHostsFile:        viper.GetString("ssh_known_hosts"),
		InsecureIgnoreHostKey: viper.GetBool("ssh_insecure_ignore_host_key"),
	}
}

// MountTableFromConfig loads the mount table named by mounts_file
func MountTableFromConfig() (*MountTable, error) {
	return LoadMountTable(viper.GetString("mounts_file"))
}
