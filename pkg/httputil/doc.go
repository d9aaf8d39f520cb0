// Package httputil provides HTTP utilities for standardized request/response handling.
//
// # Overview
//
// This package offers helpers for JSON encoding/decoding, parameter parsing
// and validation, common middleware, and the boundary translation from
// domain errors to the wire envelope.
//
// # Error translation
//
// Handlers return domain errors and hand them to WriteError, which maps the
// typed errors to stable codes and HTTP statuses:
//
//	if err := h.governor.CheckCeiling(ctx, tenantID, plans.ResourceClientSpaces, count); err != nil {
//		httputil.WriteError(w, r, err)
//		return
//	}
//
// Quota denials carry structured details (limit, usage, suggested_tier or
// contact_sales). Unrecognized errors become a 500 with a correlation id;
// the underlying error is logged, never sent to the client.
//
// # Request Parsing
//
//	var req CreateSpaceRequest
//	if !httputil.ParseJSONOrError(w, r, &req) {
//		return // Error response already written
//	}
//
//	tenantID, err := httputil.ParsePathInt64(r, "id")
//	limit, err := httputil.ParseQueryInt(r, "limit", 20)
//
// # Middleware
//
//	httputil.Chain(
//		httputil.RequestIDMiddleware(logger),
//		httputil.RecoveryMiddleware,
//		httputil.MaxBytesMiddleware(1*1024*1024),
//	)
//
// # Related Packages
//
//   - pkg/middleware: tenant identity extraction
package httputil
