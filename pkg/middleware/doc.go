// Package middleware provides the tenant identity layer for the HTTP API.
//
// Tenant identity arrives as a header set by the fronting identity layer;
// the identity protocol itself is not this service's concern. The
// middleware resolves the header to a stored tenant, rejects requests
// without one, and places the tenant in the request context for handlers.
package middleware
