// Copyright 2020 toolbelt Authors. All rights reserved.
// Use of this source code is governed by a BSD style
// license that can be found in the LICENSE file.

// report sshd logins found in a syslog file to the quota server
package main

import (
	"fmt"
	"os"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/ubccr/toolbelt"
	kingpin "gopkg.in/alecthomas/kingpin.v2"
)

func main() {
	var (
		url = kingpin.Flag(
			"url",
			"Base URL of the quota server",
		).Required().Envar("LOGIN_REPORTER_URL").String()

		logFile = kingpin.Flag(
			"log",
			"Path to the sshd syslog file",
		).Default("/var/log/secure").Envar("LOGIN_REPORTER_LOG").String()

		year = kingpin.Flag(
			"year",
			"Year of the syslog timestamps",
		).Default("0").Envar("LOGIN_REPORTER_YEAR").Int()

		insecure = kingpin.Flag("insecure", "skip TLS certificate verification").Default("false").Bool()
		debug    = kingpin.Flag("debug", "enable debug mode").Default("false").Bool()
		noop     = kingpin.Flag("dry-run", "Print records and exit").Default("false").Bool()
	)

	kingpin.CommandLine.Help = "Report accepted sshd logins to the quota server. The user this runs " +
		"as must be listed in the server's admins config, or every record is rejected with 401."
	kingpin.HelpFlag.Short('h')
	kingpin.Parse()

	if *debug {
		log.SetLevel(log.DebugLevel)
	} else {
		log.SetLevel(log.WarnLevel)
	}

	if *year == 0 {
		*year = time.Now().Year()
	}

	f, err := os.Open(*logFile)
	if err != nil {
		log.Fatalf("Failed to open log file: %s", err)
	}
	defer f.Close()

	records, err := toolbelt.ScanLoginRecords(f, *year)
	if err != nil {
		log.Fatalf("Failed to read login records: %s", err)
	}

	if *noop {
		for _, r := range records {
			fmt.Println(r.String())
		}
		return
	}

	r := newReporter(*url, &toolbelt.ShellRunner{}, *insecure)

	failed := 0
	for _, rec := range records {
		if err := r.Send(rec); err != nil {
			failed++
			log.WithFields(log.Fields{
				"user":  rec.User,
				"host":  rec.Host,
				"error": err,
			}).Error("Failed to report login record")
		}
	}

	log.WithFields(log.Fields{
		"records": len(records),
		"failed":  failed,
	}).Info("Reported login records")

	if failed > 0 {
		os.Exit(1)
	}
}
