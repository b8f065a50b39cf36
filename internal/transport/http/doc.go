// Package http implements the HTTP handlers of navd.
//
// Handlers stay thin: they parse and validate the request, call the service
// layer and render the result with go-chi/render. Service errors are mapped
// onto internal/errors API errors and rendered as RFC 7807 problem details:
//
//	{
//	    "type": "/errors/materialize/already-running",
//	    "title": "Conflict",
//	    "status": 409,
//	    "detail": "A materialize run is already in progress",
//	    "instance": "/api/v1/materialize",
//	    "error_code": "RUN_IN_PROGRESS",
//	    "trace_id": "0b1c..."
//	}
//
// Routes:
//
//	POST /api/v1/materialize          run a range, or the default range
//	GET  /api/v1/materialize/latest   last completed run
//	GET  /api/v1/coverage?from=&to=   present and missing dates
//	GET  /api/v1/stats                store totals
//	GET  /api/health[/live|/ready]    health checks
//	GET  /api/version                 build information
//	GET  /metrics                     Prometheus exposition
package http
