// Package plans provides the static plan catalog: the ordered set of
// subscription tiers, their resource limits, and their feature flags.
//
// # Tiers
//
// Tiers form a total order used for upgrade suggestions:
//
//	starter < professional < business < enterprise
//
// Enterprise is sales-led and excluded from self-serve listings and upgrade
// suggestions by default.
//
// # Limits
//
// Limits are countable ceilings keyed by Resource. The Unlimited sentinel
// (-1) means no ceiling and is never confused with zero. The monthly token
// budget is the one resource where 0 means "budget disabled" rather than
// "deny everything"; see pkg/quota for how it is evaluated.
//
// # Usage Example
//
//	catalog := plans.NewCatalog()
//	def, err := catalog.Get(plans.TierProfessional)
//	if err != nil {
//		// unknown tier
//	}
//	if def.Limit(plans.ResourceClientSpaces) == plans.Unlimited {
//		// no ceiling
//	}
//
// The catalog is read-only after initialization and safe for concurrent use.
// An optional YAML file can replace the built-in defaults and is hot-reloaded
// via fsnotify; see LoadFile and Watch.
//
// # Related Packages
//
//   - pkg/billing: resolves which tier a tenant is currently entitled to
//   - pkg/quota: evaluates limits and features against usage
package plans
