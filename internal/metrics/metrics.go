package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	Logins = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "aegis",
		Name:      "logins_total",
		Help:      "Login attempts by outcome.",
	}, []string{"outcome"})

	TokenVerifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "aegis",
		Name:      "token_verifications_total",
		Help:      "Token verifications by outcome (ok, missing, invalid, expired).",
	}, []string{"outcome"})

	PermissionChecks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "aegis",
		Name:      "permission_checks_total",
		Help:      "Permission evaluations by outcome (allowed, denied, fail_open).",
	}, []string{"outcome"})

	TenantSwitches = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "aegis",
		Name:      "tenant_switches_total",
		Help:      "Tenant switch attempts by outcome.",
	}, []string{"outcome"})
)
