// Package assistant handles assistant message requests, the most heavily
// governed path in the system: each request passes the sliding-window rate
// limit, the monthly message ceiling and the token budget before any work
// happens, and the stored message, the request-log row and the usage
// counters commit in one transaction afterwards.
//
// Generating the response itself is out of scope here; a Responder is
// injected and may be anything from a model gateway to a canned stub.
package assistant
