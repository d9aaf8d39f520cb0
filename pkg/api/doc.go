// Package api provides the HTTP surface: the billing webhook endpoint,
// self-serve checkout and subscription management, and the quota-governed
// product routes (client spaces, assistant messages, global search).
//
// The webhook route is the only one outside the tenant-identity middleware;
// it authenticates by HMAC signature instead. Everything else resolves the
// tenant from the request context and hands domain errors to
// httputil.WriteError for translation.
package api
