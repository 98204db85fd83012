// Package httpserver exposes the allocation service over a JSON HTTP API.
// Routes live under /v1 and are grouped into controllers for requests, the
// claim queue, settings, stats, and audit.
package httpserver
