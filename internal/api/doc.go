// Package api hosts the HTTP server, middleware, and REST handlers. Notable routes:
//   - GET /healthz and /readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/urls and GET /v1/urls/last-updated for direct date lookups.
//   - POST /v1/check-urls for a synchronous sheet comparison.
//   - POST /v1/jobs and GET /v1/jobs/{job_id} for queued comparisons.
package api
