// Package api hosts the HTTP server and middleware for the recommendation
// service. Notable routes:
//   - GET /healthz and /readyz for probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/recommend?q=&n= for similar-artist lookups.
//   - GET /v1/tags/segment?q= for movement tag normalization.
package api
