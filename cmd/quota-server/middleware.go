// Copyright 2015 toolbelt Authors. All rights reserved.
// Use of this source code is governed by a BSD style
// license that can be found in the LICENSE file.

package main

import (
	"os/user"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
	munge "github.com/ubccr/gomunge"
)

// Replaced in tests, decoding needs a running munged
var (
	decodeCredential = func(cred string) (string, error) {
		c, err := munge.Decode(cred)
		if err != nil {
			return "", err
		}
		return c.UidString(), nil
	}
	lookupUID   = user.LookupId
	fetchGroups = FetchGroups
)

// MungeAuthRequired authenticates requests carrying a MUNGE credential in the
// Authorization header and stores the caller as "user" in the context.
func MungeAuthRequired(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		log := logrus.WithFields(logrus.Fields{
			"remote": c.RealIP(),
			"method": c.Request().Method,
			"path":   c.Request().URL.Path,
		})

		authReq := c.Request().Header.Get(echo.HeaderAuthorization)
		if len(authReq) == 0 {
			log.Warn("Request without Authorization header")
			return echo.ErrUnauthorized
		}

		uid, err := decodeCredential(authReq)
		if err != nil {
			log.WithField("err", err.Error()).Error("Rejected munge credential")
			return echo.ErrUnauthorized
		}

		ouser, err := lookupUID(uid)
		if err != nil {
			log.WithFields(logrus.Fields{
				"err": err.Error(),
				"uid": uid,
			}).Error("Credential uid has no local account")
			return echo.ErrUnauthorized
		}

		u := &User{UID: ouser.Username}

		u.Groups, err = fetchGroups(u.UID)
		if err != nil {
			// admins listed by name still pass
			log.WithFields(logrus.Fields{
				"err":  err.Error(),
				"user": u.UID,
			}).Warn("Continuing without groups")
		}

		log.WithField("user", u.UID).Debug("Authenticated request")

		c.Set("user", u)
		return next(c)
	}
}
