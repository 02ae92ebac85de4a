// Package manifest provides discovery of dependency manifests on disk and
// the Translator interface implemented by each source ecosystem (Pipenv,
// Poetry, pip-tools requirements).
package manifest

import (
	"os"
	"path/filepath"

	"github.com/piplock/piplock/pkg/errors"
	"github.com/piplock/piplock/pkg/lock"
)

// MaxDirTraversal bounds the upward directory walk when locating manifest
// files, so a symlink loop cannot keep the search going forever.
const MaxDirTraversal = 42

// FindFile searches dir and each ancestor directory for a file with the
// given basename and returns the first matching absolute path.
func FindFile(dir, name string) (string, error) {
	path, err := filepath.Abs(dir)
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeFileNotFound, err, "resolving directory %q", dir)
	}

	for i := 0; i < MaxDirTraversal; i++ {
		candidate := filepath.Join(path, name)
		if info, statErr := os.Stat(candidate); statErr == nil && !info.IsDir() {
			return candidate, nil
		}

		parent := filepath.Dir(path)
		if resolved, evalErr := filepath.EvalSymlinks(parent); evalErr == nil {
			parent = resolved
		}
		path = parent
	}

	return "", errors.New(errors.ErrCodeFileNotFound,
		"file %q not found in %q or any parent directory", name, dir)
}

// Options control how a translator builds the canonical lock.
type Options struct {
	// Dir is the directory the manifest search starts from. Empty means the
	// current working directory.
	Dir string

	// OnlyDirect skips lock-file inference and reads only the dependency
	// tables declared directly in the source manifest.
	OnlyDirect bool

	// MaxRetries bounds how many times an undecided entry is requeued during
	// Poetry category inference before translation fails. Zero means the
	// default budget.
	MaxRetries int

	// Logger receives non-fatal diagnostics (for example an unexpected
	// Pipfile.lock spec version). Nil disables them.
	Logger func(format string, args ...any)
}

// Log emits a diagnostic through the configured logger, if any.
func (o Options) Log(format string, args ...any) {
	if o.Logger != nil {
		o.Logger(format, args...)
	}
}

// Translator builds a canonical lock from one manifest ecosystem.
type Translator interface {
	// Type returns the method identifier (e.g., "pipenv", "poetry").
	Type() string
	// LockFile returns the lock artifact basename this translator consumes.
	LockFile() string
	// Translate locates and parses the ecosystem's manifests and returns the
	// canonical lock.
	Translate(opts Options) (*lock.Lock, error)
}

// Detect probes translators in order and returns the first whose lock
// artifact exists in dir or an ancestor directory.
func Detect(dir string, translators ...Translator) (Translator, error) {
	for _, t := range translators {
		if _, err := FindFile(dir, t.LockFile()); err == nil {
			return t, nil
		}
	}
	return nil, errors.New(errors.ErrCodeFileNotFound,
		"no supported lock file found in %q or any parent directory", dir)
}
