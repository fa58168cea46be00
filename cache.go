// Copyright 2020 toolbelt Authors. All rights reserved.
// Use of this source code is governed by a BSD style
// license that can be found in the LICENSE file.

package toolbelt

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/gomodule/redigo/redis"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

const (
	loginRecordsKey = "login-records"
)

var (
	ErrNotFound = errors.New("not found")
)

// Cache stores quota usage snapshots and login records in redis
type Cache struct {
	// Defaults to the "redis" config value
	Addr string

	// Seconds before a cached usage snapshot expires
	Expire int
}

func (c *Cache) redisDial() (redis.Conn, error) {
	addr := c.Addr
	if len(addr) == 0 {
		addr = viper.GetString("redis")
	}

	conn, err := redis.Dial("tcp", addr)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"err": err.Error(),
		}).Error("Failed connecting to redis server")
		return nil, err
	}

	return conn, err
}

func usageKey(t Target) string {
	return fmt.Sprintf("quota:%s:%s:%s", t.Filesystem, strings.ToUpper(string(t.Kind)), t.Identity)
}

// GetUsage returns the cached usage for t or ErrNotFound
func (c *Cache) GetUsage(t Target) (*Usage, error) {
	conn, err := c.redisDial()
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	key := usageKey(t)
	rawJson, err := redis.Bytes(conn.Do("GET", key))
	if err != nil {
		if errors.Is(err, redis.ErrNil) {
			return nil, ErrNotFound
		}

		logrus.WithFields(logrus.Fields{
			"err": err.Error(),
			"key": key,
		}).Error("Failed to fetch quota from cache")
		return nil, err
	}

	usage := &Usage{}
	err = json.Unmarshal(rawJson, usage)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"err": err.Error(),
			"key": key,
		}).Error("Failed to unmarshal quota")
		return nil, err
	}

	return usage, nil
}

// SetUsage caches usage for t for Expire seconds
func (c *Cache) SetUsage(t Target, usage *Usage) error {
	conn, err := c.redisDial()
	if err != nil {
		return err
	}
	defer conn.Close()

	key := usageKey(t)
	out, err := json.Marshal(usage)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"err": err.Error(),
			"key": key,
		}).Error("Failed to marshal quota")
		return err
	}

	_, err = conn.Do("SETEX", key, c.Expire, out)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"err": err.Error(),
			"key": key,
		}).Error("Failed to set cache")
		return err
	}

	return nil
}

// InvalidateUsage drops the cached usage for t
func (c *Cache) InvalidateUsage(t Target) error {
	conn, err := c.redisDial()
	if err != nil {
		return err
	}
	defer conn.Close()

	_, err = conn.Do("DEL", usageKey(t))
	return err
}

// AddLoginRecord appends a record to the global and per user lists
func (c *Cache) AddLoginRecord(r *LoginRecord) error {
	conn, err := c.redisDial()
	if err != nil {
		return err
	}
	defer conn.Close()

	out, err := json.Marshal(r)
	if err != nil {
		return err
	}

	conn.Send("MULTI")
	conn.Send("RPUSH", loginRecordsKey, out)
	conn.Send("RPUSH", loginRecordsKey+":"+r.User, out)
	_, err = conn.Do("EXEC")
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"err":  err.Error(),
			"user": r.User,
		}).Error("Failed to store login record")
		return err
	}

	return nil
}

// LoginRecords returns the last n records for user, or for all users when
// user is empty.
func (c *Cache) LoginRecords(user string, n int) ([]*LoginRecord, error) {
	conn, err := c.redisDial()
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	key := loginRecordsKey
	if len(user) > 0 {
		key += ":" + user
	}

	raw, err := redis.ByteSlices(conn.Do("LRANGE", key, -n, -1))
	if err != nil {
		return nil, err
	}

	records := make([]*LoginRecord, 0, len(raw))
	for _, r := range raw {
		rec := &LoginRecord{}
		if err := json.Unmarshal(r, rec); err != nil {
			logrus.WithFields(logrus.Fields{
				"err": err.Error(),
				"key": key,
			}).Warn("Skipping invalid login record")
			continue
		}
		records = append(records, rec)
	}

	return records, nil
}
