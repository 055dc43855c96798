// Package policy gates execution plans with Open Policy Agent.
//
// Policies are Rego modules whose deny set is queried with the plan and a
// run context as input. The engine ships with builtin policies (deletion
// protection, blast radius, environment drift) and loads additional ones
// from .rego or .json files, optionally reloading them on change.
//
// A violation at error or critical severity marks the plan as not allowed.
// Engine.AsConfirmer adapts the policy check into the executor's plan
// confirmation step so blocked plans never reach a driver.
package policy
