// Package manifest loads declarative resource manifests written in CUE
// and turns them into engine catalogs.
//
// A manifest has a workspace block (environment, output directory,
// partial-failure policies, install order overrides) plus groups of
// resources and standalone resources. Dependencies are declared as
// "type/name" references and resolved across the whole manifest when the
// catalog is built.
//
// The Watcher reloads a manifest source on filesystem changes through
// fsnotify, delivering parsed manifests on a channel.
package manifest
