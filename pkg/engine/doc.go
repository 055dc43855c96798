// Package engine provides the core types and reconciliation pipeline for the
// OpenMend engine.
//
// # Overview
//
// OpenMend reconciles a declarative catalog of heterogeneous infrastructure
// resources against their backends. A run flows through four phases:
//
//  1. Flatten - Collect resources from catalog entries (Catalog.Flatten)
//  2. Order - Sort by install priority and dedup (SortByInstallOrder, Dedup)
//  3. Resolve - Expand dependency edges into a total order (Resolve)
//  4. Execute - Walk the plan in order through drivers (Executor.Run)
//
// # Core Domain Types
//
//   - Resource: A declared unit of infrastructure with lifecycle flags
//   - ResourceGroup, AppGroup: Named catalog containers
//   - App: An external collaborator that expands into resources
//   - Catalog: The declared universe of resources for one workspace
//   - Filter: Exact-equality selection over group/name/type
//   - InstallOrderTable: Injectable type-to-priority ordering
//   - ExecutionPlan: The ordered, duplicate-free result of planning
//   - RunResult: Attempted and succeeded counts for one run
//
// # Driver Interface
//
// Backend calls live behind the ResourceDriver interface:
//
//	type ResourceDriver interface {
//	    Create(ctx context.Context, r *Resource, client any) (bool, error)
//	    Read(ctx context.Context, r *Resource, client any) (any, error)
//	    Update(ctx context.Context, r *Resource, client any) (bool, error)
//	    Delete(ctx context.Context, r *Resource, client any) (bool, error)
//	}
//
// Drivers are registered per resource type tag in a DriverRegistry and
// share a lazily-built backend client.
//
// # Ordering Guarantees
//
// Within a plan, every dependency precedes its dependents for create and
// update, and follows them for delete. Resources without dependency or
// priority constraints keep their catalog declaration order. Cyclic
// dependency graphs are a planning error, never a silently mis-ordered
// plan.
//
// # Error Classification
//
// Errors are classified for retry logic:
//
//   - Transient: Temporary failures that may succeed on retry
//   - Throttled: Rate limiting that requires backoff
//   - Conflict: Resource conflicts requiring coordination
//   - Permanent: Failures that will not succeed on retry
//
// Selection errors (malformed catalogs, cycles, invalid filters) surface
// before execution; driver failures are caught per resource and reported
// through RunResult counts.
package engine
