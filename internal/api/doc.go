// Package api hosts the HTTP server, middleware, and REST handlers.
// Notable routes:
//   - POST /api/crawl starts a crawl session.
//   - GET /api/get-crawl-data returns a session's page graph.
//   - GET /api/search and /api/get-stored-results query the corpus.
//   - POST /api/clear-database wipes pages and sessions.
//   - GET /api/sessions/{session_id} and /api/sessions/{session_id}/pages
//     report session progress.
//   - GET /healthz, /readyz, and /metrics for probes and Prometheus.
package api
