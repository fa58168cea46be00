// Copyright 2020 toolbelt Authors. All rights reserved.
// Use of this source code is governed by a BSD style
// license that can be found in the LICENSE file.

package toolbelt

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

const DefaultKnownHostsFile = "/etc/ssh/ssh_known_hosts"

// Runner executes a command line synchronously and returns its captured
// standard output. A non-zero exit status is reported as a *CommandError.
type Runner interface {
	Run(ctx context.Context, command string) (string, error)
}

// CommandError is returned when a command exits with a non-zero status
type CommandError struct {
	Command    string
	ExitStatus int
	Stderr     string
}

func (e *CommandError) Error() string {
	msg := strings.TrimSpace(e.Stderr)
	if len(msg) == 0 {
		return fmt.Sprintf("command failed with exit status %d: %s", e.ExitStatus, e.Command)
	}
	return fmt.Sprintf("command failed with exit status %d: %s: %s", e.ExitStatus, e.Command, msg)
}

// ShellRunner runs commands on the local host through a shell
type ShellRunner struct {
	// Defaults to /bin/sh
	Shell string
}

func (r *ShellRunner) Run(ctx context.Context, command string) (string, error) {
	shell := r.Shell
	if len(shell) == 0 {
		shell = "/bin/sh"
	}

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, shell, "-c", command)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	logrus.WithFields(logrus.Fields{
		"command": command,
	}).Debug("Running command")

	err := cmd.Run()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return "", &CommandError{
				Command:    command,
				ExitStatus: exitErr.ExitCode(),
				Stderr:     stderr.String(),
			}
		}
		return "", fmt.Errorf("failed to run %q: %w", command, err)
	}

	return stdout.String(), nil
}

// SSHRunner runs commands on a remote host, typically the server that owns
// the filesystem such as a Lustre MDS or a ZFS file server.
type SSHRunner struct {
	Address  string
	User     string
	Password string
	KeyFile  string

	// Host keys are checked against this file, DefaultKnownHostsFile if empty
	KnownHostsFile string

	// Skips host key verification entirely
	InsecureIgnoreHostKey bool
}

func (r *SSHRunner) hostKeyCallback() (ssh.HostKeyCallback, error) {
	if r.InsecureIgnoreHostKey {
		logrus.WithField("host", r.Address).Warn("SSH host key verification disabled")
		return ssh.InsecureIgnoreHostKey(), nil
	}

	file := r.KnownHostsFile
	if len(file) == 0 {
		file = DefaultKnownHostsFile
	}

	cb, err := knownhosts.New(file)
	if err != nil {
		return nil, fmt.Errorf("failed to load known hosts %s: %w", file, err)
	}

	return cb, nil
}

func (r *SSHRunner) clientConfig() (*ssh.ClientConfig, error) {
	authMethods := make([]ssh.AuthMethod, 0)

	if r.KeyFile != "" {
		sshKey, err := os.ReadFile(r.KeyFile)
		if err != nil {
			return nil, err
		}

		signer, err := ssh.ParsePrivateKey(sshKey)
		if err != nil {
			return nil, err
		}

		authMethods = append(authMethods, ssh.PublicKeys(signer))
	}

	if r.Password != "" {
		authMethods = append(authMethods, ssh.Password(r.Password))
	}

	if len(authMethods) == 0 {
		return nil, errors.New("no ssh key or password configured")
	}

	hostKey, err := r.hostKeyCallback()
	if err != nil {
		return nil, err
	}

	return &ssh.ClientConfig{
		User:            r.User,
		Auth:            authMethods,
		HostKeyCallback: hostKey,
	}, nil
}

func (r *SSHRunner) address() string {
	if _, _, err := net.SplitHostPort(r.Address); err == nil {
		return r.Address
	}
	return net.JoinHostPort(r.Address, "22")
}

func (r *SSHRunner) Run(ctx context.Context, command string) (string, error) {
	config, err := r.clientConfig()
	if err != nil {
		return "", err
	}

	var d net.Dialer
	netConn, err := d.DialContext(ctx, "tcp", r.address())
	if err != nil {
		return "", err
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(netConn, r.address(), config)
	if err != nil {
		netConn.Close()
		return "", err
	}
	conn := ssh.NewClient(sshConn, chans, reqs)
	defer conn.Close()

	sess, err := conn.NewSession()
	if err != nil {
		return "", err
	}
	defer sess.Close()

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	sess.Stdout = &stdout
	sess.Stderr = &stderr

	logrus.WithFields(logrus.Fields{
		"command": command,
		"host":    r.Address,
	}).Debug("Running remote command")

	done := make(chan error, 1)
	go func() { done <- sess.Run(command) }()

	select {
	case <-ctx.Done():
		conn.Close()
		return "", ctx.Err()
	case err = <-done:
	}

	if err != nil {
		var exitErr *ssh.ExitError
		if errors.As(err, &exitErr) {
			return "", &CommandError{
				Command:    command,
				ExitStatus: exitErr.ExitStatus(),
				Stderr:     stderr.String(),
			}
		}
		return "", fmt.Errorf("failed to run %q on %s: %w", command, r.Address, err)
	}

	return stdout.String(), nil
}
