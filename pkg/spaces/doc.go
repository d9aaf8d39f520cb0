// Package spaces manages client spaces, the per-client workspaces a tenant
// creates. Creation is the ceiling-governed path: the count, the limit
// check and the insert share one transaction so concurrent creates cannot
// both slip under the plan limit.
package spaces
