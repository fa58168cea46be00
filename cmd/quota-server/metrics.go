// Copyright 2020 toolbelt Authors. All rights reserved.
// Use of this source code is governed by a BSD style
// license that can be found in the LICENSE file.

package main

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	commands *prometheus.CounterVec
	cache    *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "toolbelt",
			Name:      "quota_commands_total",
			Help:      "Quota commands executed by backend, operation and result.",
		}, []string{"backend", "op", "result"}),
		cache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "toolbelt",
			Name:      "quota_cache_lookups_total",
			Help:      "Quota usage cache lookups by result.",
		}, []string{"result"}),
	}

	reg.MustRegister(m.commands, m.cache)
	return m
}

func (m *Metrics) command(backend, op string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.commands.WithLabelValues(backend, op, result).Inc()
}

func (m *Metrics) cacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cache.WithLabelValues(result).Inc()
}
