// Package api exposes the artifact engine over HTTP.
//
// Endpoints (all JSON unless noted):
//
//	GET    /health                                       liveness probe
//	GET    /ready                                        readiness probe (archive pool when configured)
//	POST   /api/v1/sessions                              create a session
//	GET    /api/v1/sessions                              list sessions
//	GET    /api/v1/sessions/{id}                         session transcript
//	DELETE /api/v1/sessions/{id}                         delete a session
//	GET    /api/v1/sessions/{id}/export                  download a session snapshot
//	POST   /api/v1/sessions/import                       restore a session snapshot
//	POST   /api/v1/sessions/{id}/messages                append a user message
//	POST   /api/v1/sessions/{id}/generate                run a generation (SSE)
//	GET    /api/v1/sessions/{id}/artifacts               list artifact ids
//	GET    /api/v1/sessions/{id}/artifacts/{artifactID}  one version (latest or ?version=N)
//	GET    /api/v1/sessions/{id}/artifacts/{artifactID}/history  all versions
//
// The generate endpoint streams Server-Sent Events: "commentary" and
// "artifact" text deltas while the model runs, then a single "done"
// event carrying the terminal status, or an "error" event.
//
// The middleware stack (outermost first) is recovery, request id,
// logging, CORS, and per-IP rate limiting; security headers are set on
// every response.
package api
