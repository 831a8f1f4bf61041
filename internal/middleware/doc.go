// Package middleware provides the HTTP middleware chain of the admin API:
// request IDs, structured request logging, panic recovery, rate limiting,
// request timeouts and OpenTelemetry instrumentation. Rejections are
// written as RFC 7807 problem documents.
package middleware
