// Package metrics define las métricas Prometheus del servicio. Es la
// única fuente de nombres, labels y textos de ayuda; promauto las
// registra en el registry por defecto al cargar el paquete.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "users_api"

// LoginsTotal cuenta intentos de login por resultado.
// Label result: "success", "invalid_credentials", "rate_limited", "error".
var LoginsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "logins_total",
		Help:      "Total number of login attempts by result.",
	},
	[]string{"result"},
)

// TokensIssuedTotal cuenta tokens de acceso emitidos.
var TokensIssuedTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tokens_issued_total",
		Help:      "Total number of access tokens issued.",
	},
)

// IntrospectionsTotal cuenta introspecciones por resultado.
// Label result: "valid", "expired", "bad_signature", "malformed", "other".
var IntrospectionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "token_introspections_total",
		Help:      "Total number of token introspections by result.",
	},
	[]string{"result"},
)

// HTTPRequestDuration mide latencia por método, ruta y status.
var HTTPRequestDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency by method, route and status code.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"method", "route", "status"},
)
