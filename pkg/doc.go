// Package pkg provides the core libraries behind the piplock CLI.
//
// # Overview
//
// piplock installs Python dependencies exactly as pinned in a project lock
// file, driving pip one package at a time with dependency resolution
// disabled. The pkg directory is organized around a single intermediate
// representation, the canonical lock:
//
//	Pipfile.lock / poetry.lock / requirements.txt
//	         ↓
//	    [manifest] translators (pipenv, poetry, piptools)
//	         ↓
//	    [lock] canonical lock model
//	         ↓
//	    [render] requirements text   or   [installer] pip invocation loop
//
// # Main Packages
//
// [lock] - The canonical lock model: sources, entries, locations,
// normalization of package names and Pipfile.lock serialization.
//
// [manifest] - Lock-file discovery and the Translator interface, with one
// subpackage per ecosystem. The Poetry translator carries the interesting
// machinery: dependency-category inference over a retry queue, marker
// reconciliation and extras reconstruction.
//
// [render] - Turns a canonical lock into requirements.txt text that pip can
// consume, including index directives and integrity hashes.
//
// [installer] - Installs each entry through pip with --no-deps, retrying
// order-sensitive failures through a bounded requeue policy.
//
// [errors] - Structured errors with machine-readable codes shared by every
// package.
//
// [buildinfo] - Build-time version information injected via ldflags.
//
// [lock]: https://pkg.go.dev/github.com/piplock/piplock/pkg/lock
// [manifest]: https://pkg.go.dev/github.com/piplock/piplock/pkg/manifest
// [render]: https://pkg.go.dev/github.com/piplock/piplock/pkg/render
// [installer]: https://pkg.go.dev/github.com/piplock/piplock/pkg/installer
// [errors]: https://pkg.go.dev/github.com/piplock/piplock/pkg/errors
// [buildinfo]: https://pkg.go.dev/github.com/piplock/piplock/pkg/buildinfo
package pkg
