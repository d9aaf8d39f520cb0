// Package postgres manages the PostgreSQL and Redis connections and owns
// the database schema.
//
// PostgreSQL is the system of record for tenants, subscriptions, the
// billing event ledger and usage counters. Redis only backs the shared
// rate-limit window and is optional: the service starts and degrades
// gracefully without it.
package postgres
