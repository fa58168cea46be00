// Copyright 2020 toolbelt Authors. All rights reserved.
// Use of this source code is governed by a BSD style
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/ubccr/toolbelt"
)

const mungeCmd = "munge -n"

type reporter struct {
	url    string
	runner toolbelt.Runner
	client *http.Client
}

func newReporter(url string, runner toolbelt.Runner, insecure bool) *reporter {
	tr := &http.Transport{TLSClientConfig: &tls.Config{InsecureSkipVerify: insecure}}

	return &reporter{
		url:    strings.TrimRight(url, "/") + toolbelt.ResourceLoginRecord,
		runner: runner,
		client: &http.Client{Transport: tr, Timeout: 30 * time.Second},
	}
}

// credential encodes a fresh MUNGE credential for the calling uid
func (r *reporter) credential(ctx context.Context) (string, error) {
	out, err := r.runner.Run(ctx, mungeCmd)
	if err != nil {
		return "", err
	}

	cred := strings.TrimSpace(out)
	if len(cred) == 0 {
		return "", errors.New("munge returned an empty credential")
	}

	return cred, nil
}

// Send posts a single record to the server
func (r *reporter) Send(rec *toolbelt.LoginRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}

	ctx := context.Background()

	cred, err := r.credential(ctx)
	if err != nil {
		return fmt.Errorf("Failed to create munge credential: %w", err)
	}

	body, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", cred)

	res, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	rawJson, err := io.ReadAll(res.Body)
	if err != nil {
		return err
	}

	if res.StatusCode != http.StatusOK {
		var ierr toolbelt.ErrorResponse
		if err := json.Unmarshal(rawJson, &ierr); err == nil && len(ierr.Message) > 0 {
			return fmt.Errorf("Failed to report login with HTTP status code %d: %s", res.StatusCode, ierr.Message)
		}
		return fmt.Errorf("Failed to report login with HTTP status code: %d", res.StatusCode)
	}

	log.WithFields(log.Fields{
		"user": rec.User,
		"host": rec.Host,
	}).Debug("Reported login record")

	return nil
}
