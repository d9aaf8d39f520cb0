// Package billing keeps a tenant's commercial entitlement state consistent
// between the local database and the external payment provider.
//
// # Subscription state
//
// Subscriptions move through an explicit state machine:
//
//	None/Trial -> Active -> {Suspended <-> Active} -> Cancelled
//
// Cancelled is terminal after the grace period ends. The "current"
// subscription for a tenant is the Active or Trial row with the greatest
// start date; a tenant with no qualifying row is implicitly on the default
// starter plan with status None.
//
// # Event processing
//
// The provider delivers events over signed webhooks. Processing is
// idempotent: every applied event id is recorded in the billing_events
// ledger, and a redelivered id is acknowledged as a no-op. The ledger row is
// written only after the handler succeeds, so a failed handler stays
// unrecorded and the provider's redelivery is the retry path. Handlers are
// additionally written to be safe to re-run without the dedup check.
//
// Mutations to a given subscription are serialized with a keyed lock, so
// near-simultaneous duplicate deliveries cannot interleave into a lost
// update. Events for different tenants need no ordering and get none.
//
// # Local mutations
//
// Tier changes through this package are only permitted for local-only
// subscriptions (no external subscription id). Anything the provider owns
// must change through the checkout/portal flow; mutating it locally would
// desynchronize the two systems (UseExternalCheckoutError).
package billing
