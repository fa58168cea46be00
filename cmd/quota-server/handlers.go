// Copyright 2015 toolbelt Authors. All rights reserved.
// Use of this source code is governed by a BSD style
// license that can be found in the LICENSE file.

package main

import (
	"errors"
	"net/http"
	group "os/user"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"github.com/ubccr/toolbelt"
)

// UsageCache stores usage snapshots between requests
type UsageCache interface {
	GetUsage(t toolbelt.Target) (*toolbelt.Usage, error)
	SetUsage(t toolbelt.Target, u *toolbelt.Usage) error
	InvalidateUsage(t toolbelt.Target) error
}

type RecordStore interface {
	AddLoginRecord(r *toolbelt.LoginRecord) error
}

type Handler struct {
	mounts  *toolbelt.MountTable
	runner  toolbelt.Runner
	cache   UsageCache
	records RecordStore
	metrics *Metrics

	lookupGroup func(name string) error
}

func NewHandler(metrics *Metrics) (*Handler, error) {
	mounts, err := toolbelt.MountTableFromConfig()
	if err != nil {
		return nil, err
	}

	cache := &toolbelt.Cache{Expire: viper.GetInt("cache_expire")}
	h := &Handler{
		mounts:      mounts,
		runner:      toolbelt.RunnerFromConfig(),
		records:     cache,
		metrics:     metrics,
		lookupGroup: lookupGroup,
	}

	if viper.GetBool("enable_cache") {
		h.cache = cache
	}

	return h, nil
}

func lookupGroup(name string) error {
	_, err := group.LookupGroup(name)
	return err
}

func (h *Handler) SetupRoutes(e *echo.Echo) {
	e.GET(toolbelt.ResourceQuota, MungeAuthRequired(h.Quota)).Name = "quota"
	e.PUT(toolbelt.ResourceQuota, MungeAuthRequired(h.SetQuota)).Name = "set-quota"
	e.POST(toolbelt.ResourceLoginRecord, MungeAuthRequired(h.LoginRecord)).Name = "login-record"
}

func currentUser(c echo.Context) (*User, error) {
	u, ok := c.Get("user").(*User)
	if !ok || u == nil {
		return nil, echo.NewHTTPError(http.StatusInternalServerError, "Failed to get user")
	}
	return u, nil
}

func quotaHTTPError(err error) error {
	switch {
	case errors.Is(err, toolbelt.ErrNoMount):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, toolbelt.ErrUnsupportedKind),
		errors.Is(err, toolbelt.ErrInvalidTarget),
		errors.Is(err, toolbelt.ErrUnsupportedFilesystem):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, toolbelt.ErrQueryUnsupported):
		return echo.NewHTTPError(http.StatusNotImplemented, err.Error())
	}

	return echo.NewHTTPError(http.StatusInternalServerError, "Failed to process quota")
}

func (h *Handler) resolve(path string, identity string, kind toolbelt.SubjectKind) (*toolbelt.Quota, *toolbelt.Mount, error) {
	mnt, err := h.mounts.Lookup(path)
	if err != nil {
		return nil, nil, err
	}

	backend, err := toolbelt.BackendForFSType(mnt.VFSType)
	if err != nil {
		return nil, nil, err
	}

	target := toolbelt.Target{Filesystem: mnt.File, Identity: identity, Kind: kind}
	if backend == toolbelt.BackendZFS {
		target.Filesystem = mnt.Spec
	}

	q, err := toolbelt.NewQuota(target, backend, h.runner)
	if err != nil {
		return nil, nil, err
	}

	return q, mnt, nil
}

func (h *Handler) Quota(c echo.Context) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}

	params := &toolbelt.QuotaParams{}
	if err := c.Bind(params); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid query parameters")
	}
	if len(params.Path) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "path is required")
	}

	log.Infof("User %s requesting quota for %s", user.UID, params.Path)

	// Default to returning quota for user
	identity, kind := user.UID, toolbelt.KindUser
	switch {
	case len(params.Project) > 0:
		if !user.IsAdmin() {
			return echo.ErrUnauthorized
		}
		identity, kind = params.Project, toolbelt.KindProject
	case len(params.Group) > 0:
		if err := h.lookupGroup(params.Group); err != nil {
			return echo.NewHTTPError(http.StatusNotFound, "Group not found")
		}
		if !user.HasGroup(params.Group) && !user.IsAdmin() {
			return echo.ErrUnauthorized
		}
		identity, kind = params.Group, toolbelt.KindGroup
	case len(params.User) > 0:
		if params.User != user.UID && !user.IsAdmin() {
			return echo.ErrUnauthorized
		}
		identity = params.User
	}

	q, mnt, err := h.resolve(params.Path, identity, kind)
	if err != nil {
		return quotaHTTPError(err)
	}

	report := &toolbelt.QuotaReport{
		Path:    mnt.File,
		Target:  q.Target,
		Backend: q.Backend.String(),
	}

	if h.cache != nil {
		usage, err := h.cache.GetUsage(q.Target)
		h.metrics.cacheLookup(err == nil)
		if err == nil {
			report.Usage = usage
			report.Cached = true
			return c.JSON(http.StatusOK, report)
		}
		if !errors.Is(err, toolbelt.ErrNotFound) {
			log.WithFields(log.Fields{
				"err":      err,
				"identity": identity,
			}).Warn("Failed to read quota cache")
		}
	}

	usage, err := q.Query(c.Request().Context())
	if !errors.Is(err, toolbelt.ErrQueryUnsupported) {
		h.metrics.command(q.Backend.String(), "query", err)
	}
	if err != nil {
		log.WithFields(log.Fields{
			"err":      err,
			"identity": identity,
			"path":     params.Path,
		}).Error("Failed to fetch quota")
		return quotaHTTPError(err)
	}

	if h.cache != nil {
		if err := h.cache.SetUsage(q.Target, usage); err != nil {
			log.WithFields(log.Fields{
				"err":      err,
				"identity": identity,
			}).Warn("Failed to cache quota")
		}
	}

	report.Usage = usage
	return c.JSON(http.StatusOK, report)
}

func (h *Handler) SetQuota(c echo.Context) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	if !user.IsAdmin() {
		return echo.ErrUnauthorized
	}

	req := &toolbelt.QuotaLimitRequest{}
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}

	kind := toolbelt.KindUser
	if len(req.Kind) > 0 {
		kind, err = toolbelt.ParseSubjectKind(req.Kind)
		if err != nil {
			return quotaHTTPError(err)
		}
	}

	q, _, err := h.resolve(req.Path, req.Identity, kind)
	if err != nil {
		return quotaHTTPError(err)
	}

	err = q.Apply(c.Request().Context(), req.Limits)
	h.metrics.command(q.Backend.String(), "apply", err)
	if err != nil {
		log.WithFields(log.Fields{
			"err":      err,
			"admin":    user.UID,
			"identity": req.Identity,
			"path":     req.Path,
		}).Error("Failed to set quota")
		return quotaHTTPError(err)
	}

	log.WithFields(log.Fields{
		"admin":    user.UID,
		"identity": req.Identity,
		"kind":     kind,
		"path":     req.Path,
	}).Warn("Quota limits changed")

	if h.cache != nil {
		if err := h.cache.InvalidateUsage(q.Target); err != nil {
			log.WithFields(log.Fields{
				"err":      err,
				"identity": req.Identity,
			}).Error("Failed to invalidate quota cache")
		}
	}

	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) LoginRecord(c echo.Context) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	if !user.IsAdmin() {
		return echo.ErrUnauthorized
	}

	rec := &toolbelt.LoginRecord{}
	if err := c.Bind(rec); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}

	if err := rec.Validate(); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	if err := h.records.AddLoginRecord(rec); err != nil {
		log.WithFields(log.Fields{
			"err":  err,
			"user": rec.User,
			"host": rec.Host,
		}).Error("Failed to store login record")
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to store login record")
	}

	return c.NoContent(http.StatusOK)
}
