// Package api hosts the operator HTTP surface of the indexer:
//   - GET /healthz and /readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/stats for the consumer counters.
//   - POST /v1/crawl to crawl and publish a batch of URLs.
package api
