// Package snapshot persists the last observed state of resources as
// YAML files under the workspace output directory. Drivers that read
// live state can hand it to a Store so later runs and operators can
// inspect what the engine last saw.
package snapshot
