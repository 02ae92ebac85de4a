package pipenv

import (
	"github.com/piplock/piplock/pkg/errors"
	"github.com/piplock/piplock/pkg/lock"
	"github.com/piplock/piplock/pkg/manifest"
)

// ComputePipfileHash computes the digest binding a Pipfile.lock to the
// Pipfile content it was resolved from. Only the stable subset participates:
// the dependency tables, the source list and the python-requires table.
// Serialization is canonical (sorted keys, compact separators), so the digest
// matches the one Pipenv records under _meta.hash.sha256.
func ComputePipfileHash(pipfile map[string]any) (string, error) {
	requires := tableOf(pipfile["requires"])
	if requires == nil {
		requires = map[string]any{}
	}
	sources := tableSlice(pipfile["source"])
	if sources == nil {
		sources = []map[string]any{}
	}
	packages := tableOf(pipfile["packages"])
	if packages == nil {
		packages = map[string]any{}
	}
	devPackages := tableOf(pipfile["dev-packages"])
	if devPackages == nil {
		devPackages = map[string]any{}
	}

	data := map[string]any{
		"_meta": map[string]any{
			"requires": requires,
			"sources":  sources,
		},
		"default": packages,
		"develop": devPackages,
	}

	content, err := manifest.CanonicalJSON(data)
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeFileRead, err, "serializing Pipfile content")
	}
	return manifest.SHA256Hex(content), nil
}

// VerifyHash recomputes the Pipfile hash and compares it against the digest
// stored in the lock. A mismatch means Pipfile.lock is out of date.
func (t Translator) VerifyHash(opts manifest.Options, l *lock.Lock) error {
	pipfile, err := ReadPipfile(opts.Dir)
	if err != nil {
		return err
	}
	computed, err := ComputePipfileHash(pipfile)
	if err != nil {
		return err
	}
	if computed != l.ContentHash {
		return errors.New(errors.ErrCodeHashMismatch,
			"Pipfile.lock hash %q does not correspond to hash computed based on Pipfile %q, aborting deployment",
			l.ContentHash, computed)
	}
	return nil
}
