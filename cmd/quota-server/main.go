// Copyright 2015 toolbelt Authors. All rights reserved.
// Use of this source code is governed by a BSD style
// license that can be found in the LICENSE file.

// Server for querying and setting filesystem quotas and recording user
// logins
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"github.com/urfave/cli"
)

func init() {
	viper.SetConfigName("toolbelt")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("/etc/toolbelt/")
	viper.SetDefault("enable_cache", false)
	viper.SetDefault("redis", ":6379")
	viper.SetDefault("cache_expire", 500)
	viper.SetDefault("mounts_file", "/proc/mounts")
}

func main() {
	app := cli.NewApp()
	app.Name = "quota-server"
	app.Usage = "quota-server"
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

		err := viper.ReadInConfig()
		if err != nil {
			return fmt.Errorf("Failed reading config file - %s", err)
		}

		return nil
	}
	app.Action = func(c *cli.Context) error {
		return RunServer()
	}

	if err := app.Run(os.Args); err != nil {
		logrus.Fatal(err)
	}
}
