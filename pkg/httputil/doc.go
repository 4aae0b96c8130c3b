// Package httputil holds the JSON response helpers, request parsing and
// request-scoped middleware shared by the API handlers.
//
// Every error body has the shape {"error": message, "code": code}. Errors
// from pkg/family map to a status by kind:
//
//	validation      400
//	authentication  401
//	authorization   403
//	not_found       404
//	conflict        409
//	anything else   500, with the message withheld
//
// Middleware:
//
//	httputil.Chain(
//		httputil.RequestIDMiddleware(logger),
//		httputil.LoggingMiddleware(logger),
//		httputil.RecoveryMiddleware(logger),
//		httputil.MaxBytesMiddleware(1<<20),
//	)
package httputil
