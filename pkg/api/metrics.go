package api

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inbound_api_requests_total",
			Help: "Total number of API requests, by endpoint and status code",
		}, []string{"endpoint", "status"})

	rateLimitedRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inbound_api_rate_limited_requests_total",
			Help: "Total number of API requests rejected by the rate limiter, by user",
		}, []string{"user"})

	permissionFileReloadsSuccess = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "inbound_api_perm_file_reload_success",
			Help: "Total number of times the permissions file was successfully reloaded",
		})

	permissionFileReloadsFailure = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "inbound_api_perm_file_reload_failure",
			Help: "Total number of times the permissions file failed to reload",
		})
)
