// Package lock defines the canonical lock model: the normalized, in-memory
// representation of a fully resolved dependency set that every supported
// manifest ecosystem (Pipenv, Poetry, pip-tools requirements) is translated
// into.
//
// A canonical lock is built fresh on every invocation and never persisted as
// its own format. It is either rendered to a requirements file (pkg/render),
// fed to the installation driver (pkg/installer), or serialized to a
// Pipfile.lock-style JSON document as a side effect of installing from a
// non-Pipenv source.
package lock
