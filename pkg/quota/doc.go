// Package quota enforces plan entitlements: countable ceilings, a sliding
// per-hour rate limit, a calendar-month token budget, and feature gates.
//
// # Governance kinds
//
// Ceilings compare a caller-supplied current count against the plan limit;
// the check and the subsequent insert must share a transaction (or the
// caller rolls back on overflow) so two concurrent creates cannot both pass.
//
// The rate limit is a trailing 60-minute window, not fixed buckets, so no
// 60-minute span ever exceeds the configured rate. The hot path counts a
// Redis sorted set; the Postgres request log is the source of truth and the
// fallback when Redis is unavailable.
//
// The token budget resets lazily: the first evaluation in a new calendar
// month zeroes the counter before checking. Correctness never depends on a
// background scheduler. A budget of 0 means the budget is disabled.
//
// # Denials
//
// Every denial carries the limit, the current usage, and the next tier
// strictly above the tenant's tier, or "contact sales" when only Enterprise
// would do, since Enterprise is never offered self-serve.
//
// RecordUsage must be called only after the guarded action actually
// succeeded; the monthly counters commit in the same transaction as the
// artifact they account for, so a crash can lose one unit of usage but can
// never double-charge a completed request.
package quota
