// Package tenants manages customer organizations (tenants) of ClientHub.
//
// Tenants are created at onboarding and never deleted, only status-flipped.
// EnsurePlaceholder exists for the one out-of-order path: a paid checkout
// completing before onboarding finished must never be silently lost, so the
// billing event processor provisions a minimal placeholder tenant row.
package tenants
