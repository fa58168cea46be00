// Copyright 2015 toolbelt Authors. All rights reserved.
// Use of this source code is governed by a BSD style
// license that can be found in the LICENSE file.

// Command line tools for managing quotas, user directories and stale files
package main

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"github.com/urfave/cli"
)

func init() {
	viper.SetConfigName("toolbelt")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("/etc/toolbelt/")

	viper.SetDefault("mounts_file", "/proc/mounts")
}

func main() {
	app := cli.NewApp()
	app.Name = "toolbelt"
	app.Usage = "sysadmin helpers for quotas, user directories and stale files"
	app.Version = "0.1.0"
	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "conf,c", Usage: "Path to conf file"},
		cli.BoolFlag{Name: "debug,d", Usage: "Print debug messages"},
	}
	app.Before = func(c *cli.Context) error {
		if c.GlobalBool("debug") {
			logrus.SetLevel(logrus.DebugLevel)
		} else {
			logrus.SetLevel(logrus.WarnLevel)
		}

		conf := c.GlobalString("conf")
		if len(conf) > 0 {
			viper.SetConfigFile(conf)
		}

		// Config is optional for the CLI
		if err := viper.ReadInConfig(); err != nil {
			logrus.Debugf("No config file loaded: %s", err)
		}

		return nil
	}
	app.Commands = []cli.Command{
		quotaCommand(),
		mountCommand(),
		mkdirCommand(),
		sweepCommand(),
		hsortCommand(),
	}

	if err := app.Run(os.Args); err != nil {
		logrus.Fatal(err)
	}
}
