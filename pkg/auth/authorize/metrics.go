// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package authorize

import (
	stderrors "errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/stacklok/authflow/pkg/logger"
)

// Operation names used as metric labels.
const (
	opSignIn          = "sign_in"
	opCompleteSignIn  = "complete_sign_in"
	opSignOut         = "sign_out"
	opCompleteSignOut = "complete_sign_out"
	opGetAccessToken  = "get_access_token"
)

type metrics struct {
	operations *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	operations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "authflow",
		Name:      "operations_total",
		Help:      "Total number of authentication operations by outcome.",
	}, []string{"operation", "status"})

	if reg != nil {
		if err := reg.Register(operations); err != nil {
			var are prometheus.AlreadyRegisteredError
			if stderrors.As(err, &are) {
				if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
					return &metrics{operations: existing}
				}
			}
			logger.Warnf("Failed to register authflow metrics, operations will not be exported: %v", err)
		}
	}

	return &metrics{operations: operations}
}

func (m *metrics) record(operation, status string) {
	m.operations.WithLabelValues(operation, status).Inc()
}
