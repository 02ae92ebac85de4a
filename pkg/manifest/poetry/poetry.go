// Package poetry translates Poetry's pyproject.toml and poetry.lock into the
// canonical lock.
//
// Poetry's lock format stopped recording the dependency category (production
// vs. development) after its schema evolution, and it never records which
// extras were activated per transitive package. Both are reconstructed here:
// the category by a work-queue fixed-point iteration seeded from the
// manifest's declared dependency tables, the extras by a subset heuristic
// over each entry's optional dependencies. The extras reconstruction is an
// approximation, not exact.
package poetry

import (
	"os"
	"regexp"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/piplock/piplock/pkg/errors"
	"github.com/piplock/piplock/pkg/lock"
	"github.com/piplock/piplock/pkg/manifest"
)

// Translator implements manifest.Translator for the Poetry ecosystem.
type Translator struct{}

func (Translator) Type() string     { return "poetry" }
func (Translator) LockFile() string { return "poetry.lock" }

// lockFile mirrors poetry.lock's TOML layout across the schema versions this
// tool understands: the legacy per-entry category field and metadata-section
// hash layout as well as the newer per-package files layout.
type lockFile struct {
	Package  []lockPackage `toml:"package"`
	Metadata lockMetadata  `toml:"metadata"`
}

type lockPackage struct {
	Name         string              `toml:"name"`
	Version      string              `toml:"version"`
	Category     string              `toml:"category"` // legacy schema only
	Optional     bool                `toml:"optional"`
	Dependencies map[string]any      `toml:"dependencies"`
	Extras       map[string][]string `toml:"extras"`
	Source       *lockSource         `toml:"source"`
	Files        []fileHash          `toml:"files"` // newer schema
}

type fileHash struct {
	File string `toml:"file"`
	Hash string `toml:"hash"`
}

type lockSource struct {
	Type              string `toml:"type"`
	URL               string `toml:"url"`
	Reference         string `toml:"reference"`
	ResolvedReference string `toml:"resolved_reference"`
	Subdirectory      string `toml:"subdirectory"`
}

type lockMetadata struct {
	LockVersion    string                `toml:"lock-version"`
	PythonVersions string                `toml:"python-versions"`
	ContentHash    string                `toml:"content-hash"`
	Files          map[string][]fileHash `toml:"files"` // legacy schema
}

// pyproject mirrors the subset of pyproject.toml this tool consumes, for
// both the legacy [tool.poetry] dependency-table format and the newer
// [project] metadata format.
type pyproject struct {
	Project *projectTable `toml:"project"`
	Tool    struct {
		Poetry poetryTable `toml:"poetry"`
	} `toml:"tool"`
}

type projectTable struct {
	Name                 string              `toml:"name"`
	RequiresPython       string              `toml:"requires-python"`
	Dependencies         []string            `toml:"dependencies"`
	OptionalDependencies map[string][]string `toml:"optional-dependencies"`
}

type poetryTable struct {
	Name            string                 `toml:"name"`
	Dependencies    map[string]any         `toml:"dependencies"`
	DevDependencies map[string]any         `toml:"dev-dependencies"` // legacy
	Group           map[string]poetryGroup `toml:"group"`
	Source          []poetrySource         `toml:"source"`
	Extras          map[string][]string    `toml:"extras"`
}

type poetryGroup struct {
	Dependencies map[string]any `toml:"dependencies"`
}

type poetrySource struct {
	Name string `toml:"name"`
	URL  string `toml:"url"`
}

// defaultSource is assumed when pyproject.toml declares no explicit sources.
var defaultSource = lock.Source{Name: "pypi", URL: "https://pypi.org/simple", VerifySSL: true}

func readLockFile(dir string) (*lockFile, error) {
	path, err := manifest.FindFile(dir, "poetry.lock")
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeFileRead, err, "reading %s", path)
	}
	var lf lockFile
	if err := toml.Unmarshal(data, &lf); err != nil {
		return nil, errors.Wrap(errors.ErrCodeFileRead, err, "failed to parse poetry.lock")
	}
	return &lf, nil
}

func readPyproject(dir string) (*pyproject, map[string]any, error) {
	path, err := manifest.FindFile(dir, "pyproject.toml")
	if err != nil {
		return nil, nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, errors.Wrap(errors.ErrCodeFileRead, err, "reading %s", path)
	}
	var pp pyproject
	if err := toml.Unmarshal(data, &pp); err != nil {
		return nil, nil, errors.Wrap(errors.ErrCodeFileRead, err, "failed to parse pyproject.toml")
	}
	var raw map[string]any
	if err := toml.Unmarshal(data, &raw); err != nil {
		return nil, nil, errors.Wrap(errors.ErrCodeFileRead, err, "failed to parse pyproject.toml")
	}
	return &pp, raw, nil
}

// Translate builds the canonical lock from pyproject.toml and poetry.lock,
// or from pyproject.toml alone in only-direct mode.
func (t Translator) Translate(opts manifest.Options) (*lock.Lock, error) {
	pp, _, err := readPyproject(opts.Dir)
	if err != nil {
		return nil, err
	}

	if opts.OnlyDirect {
		return translateDirect(pp)
	}

	lf, err := readLockFile(opts.Dir)
	if err != nil {
		return nil, err
	}
	return translateLock(pp, lf, opts)
}

var numericVersionRE = regexp.MustCompile(`^\d+(\.\d+)*$`)

// translateConstraint maps a Poetry version constraint to a pip-compatible
// one where an equivalent exists. A numeric literal becomes an exact pin;
// Poetry's caret/tilde range syntax has no pip equivalent and is passed
// through unmodified.
func translateConstraint(constraint string) string {
	if numericVersionRE.MatchString(constraint) {
		return "==" + constraint
	}
	return constraint
}

// translateDirect emits simplified entries straight from the declared
// dependency tables, without consulting poetry.lock.
func translateDirect(pp *pyproject) (*lock.Lock, error) {
	l := lock.New()
	addSources(l, pp)

	addTable := func(section map[string]lock.Entry, deps map[string]any) error {
		for name, value := range deps {
			if strings.EqualFold(name, "python") {
				continue
			}
			entry, err := directEntry(name, value)
			if err != nil {
				return err
			}
			section[lock.Normalize(name)] = entry
		}
		return nil
	}

	if err := addTable(l.Default, pp.Tool.Poetry.Dependencies); err != nil {
		return nil, err
	}
	if pp.Project != nil {
		for _, req := range pp.Project.Dependencies {
			name, entry := pep508Entry(req)
			if name != "" {
				l.Default[name] = entry
			}
		}
	}
	if err := addTable(l.Develop, pp.Tool.Poetry.DevDependencies); err != nil {
		return nil, err
	}
	for _, group := range pp.Tool.Poetry.Group {
		if err := addTable(l.Develop, group.Dependencies); err != nil {
			return nil, err
		}
	}

	return l, nil
}

// directEntry converts one declared dependency value (version string or
// inline table) into a canonical entry.
func directEntry(name string, value any) (lock.Entry, error) {
	switch v := value.(type) {
	case string:
		return lock.Entry{Version: translateConstraint(v)}, nil
	case map[string]any:
		entry := lock.Entry{}
		if git, ok := v["git"].(string); ok {
			loc := lock.GitLocation{URL: git}
			if ref, ok := v["rev"].(string); ok {
				loc.Ref = ref
			} else if ref, ok := v["branch"].(string); ok {
				loc.Ref = ref
			} else if ref, ok := v["tag"].(string); ok {
				loc.Ref = ref
			}
			if sub, ok := v["subdirectory"].(string); ok {
				loc.Subdirectory = sub
			}
			entry.Location = loc
			return entry, nil
		}
		if path, ok := v["path"].(string); ok {
			develop, _ := v["develop"].(bool)
			entry.Location = lock.PathLocation{Path: path, Editable: develop}
			return entry, nil
		}
		if url, ok := v["url"].(string); ok {
			entry.Location = lock.FileLocation{URL: url}
			return entry, nil
		}
		if version, ok := v["version"].(string); ok {
			entry.Version = translateConstraint(version)
		}
		for _, extra := range extraStrings(v["extras"]) {
			entry.Extras = append(entry.Extras, extra)
		}
		if markers, ok := v["markers"].(string); ok {
			entry.Markers = markers
		}
		return entry, nil
	case []any:
		// Multiple-constraint dependency; keep the first declaration.
		for _, item := range v {
			if m, ok := item.(map[string]any); ok {
				return directEntry(name, m)
			}
		}
		return lock.Entry{}, errors.New(errors.ErrCodePoetry,
			"empty multiple-constraint dependency for %q", name)
	default:
		return lock.Entry{}, errors.New(errors.ErrCodePoetry,
			"unknown dependency declaration for %q (should be a table or a string)", name)
	}
}

func extraStrings(v any) []string {
	var result []string
	switch s := v.(type) {
	case []string:
		result = s
	case []any:
		for _, item := range s {
			if str, ok := item.(string); ok {
				result = append(result, str)
			}
		}
	}
	return result
}

var pep508NameRE = regexp.MustCompile(`^\s*([A-Za-z0-9][A-Za-z0-9._-]*)\s*(\[([^\]]*)\])?\s*([^;]*?)\s*(;\s*(.*))?$`)

// pep508Entry parses a PEP 508 requirement string ("name[extra]>=1.0; marker")
// into a normalized name and a simplified canonical entry.
func pep508Entry(req string) (string, lock.Entry) {
	m := pep508NameRE.FindStringSubmatch(strings.TrimSpace(req))
	if m == nil {
		return "", lock.Entry{}
	}
	entry := lock.Entry{Version: strings.TrimSpace(m[4])}
	if m[3] != "" {
		for _, extra := range strings.Split(m[3], ",") {
			if e := strings.TrimSpace(extra); e != "" {
				entry.Extras = append(entry.Extras, e)
			}
		}
	}
	if m[6] != "" {
		entry.Markers = strings.TrimSpace(m[6])
	}
	return lock.Normalize(m[1]), entry
}

// addSources populates the lock's index list from the pyproject source
// declarations, falling back to PyPI when none are declared.
func addSources(l *lock.Lock, pp *pyproject) {
	for _, src := range pp.Tool.Poetry.Source {
		l.Sources = append(l.Sources, lock.Source{Name: src.Name, URL: src.URL, VerifySSL: true})
	}
	if len(l.Sources) == 0 {
		l.Sources = []lock.Source{defaultSource}
	}
}
