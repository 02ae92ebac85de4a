package poetry

import (
	"github.com/piplock/piplock/pkg/errors"
	"github.com/piplock/piplock/pkg/lock"
	"github.com/piplock/piplock/pkg/manifest"
)

// Field subsets participating in the content hash. Which subset applies
// depends on the manifest format: the legacy [tool.poetry] dependency-table
// format hashes the poetry tables only, the newer [project] metadata format
// hashes the project fields plus the poetry tables that still matter for
// resolution. Volatile fields (name, description, scripts, build config)
// never participate, so editing them does not invalidate the lock.
var (
	legacyHashKeys  = []string{"dependencies", "dev-dependencies", "group", "source", "extras"}
	projectHashKeys = []string{"dependencies", "optional-dependencies", "requires-python"}
	toolHashKeys    = []string{"dependencies", "group", "source", "extras"}
)

// usesProjectFormat reports whether the raw pyproject document declares its
// dependencies through the newer [project] metadata table rather than the
// legacy [tool.poetry] tables.
func usesProjectFormat(raw map[string]any) bool {
	project, ok := raw["project"].(map[string]any)
	if !ok {
		return false
	}
	if _, ok := project["dependencies"]; ok {
		return true
	}
	if _, ok := project["optional-dependencies"]; ok {
		return true
	}
	return false
}

// ComputeContentHash computes the digest binding poetry.lock to the
// pyproject.toml content it was resolved from. The relevant field subset is
// selected by the manifest format in use; serialization is canonical (sorted
// keys, compact separators).
func ComputeContentHash(raw map[string]any) (string, error) {
	relevant := map[string]any{}

	tool, _ := raw["tool"].(map[string]any)
	poetry, _ := tool["poetry"].(map[string]any)

	if usesProjectFormat(raw) {
		project, _ := raw["project"].(map[string]any)
		projectContent := map[string]any{}
		for _, key := range projectHashKeys {
			if value, ok := project[key]; ok {
				projectContent[key] = value
			}
		}
		toolContent := map[string]any{}
		for _, key := range toolHashKeys {
			if value, ok := poetry[key]; ok {
				toolContent[key] = value
			}
		}
		relevant["project"] = projectContent
		if len(toolContent) > 0 {
			relevant["tool"] = toolContent
		}
	} else {
		for _, key := range legacyHashKeys {
			if value, ok := poetry[key]; ok {
				relevant[key] = value
			}
		}
	}

	content, err := manifest.CanonicalJSON(relevant)
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeFileRead, err, "serializing pyproject.toml content")
	}
	return manifest.SHA256Hex(content), nil
}

// VerifyHash recomputes the pyproject content hash and compares it against
// the digest recorded in poetry.lock's metadata. A mismatch means the lock
// is stale relative to the manifest.
func (t Translator) VerifyHash(opts manifest.Options, l *lock.Lock) error {
	_, raw, err := readPyproject(opts.Dir)
	if err != nil {
		return err
	}
	computed, err := ComputeContentHash(raw)
	if err != nil {
		return err
	}
	if computed != l.ContentHash {
		return errors.New(errors.ErrCodeHashMismatch,
			"poetry.lock content hash %q does not correspond to hash computed based on pyproject.toml %q, aborting deployment",
			l.ContentHash, computed)
	}
	return nil
}
