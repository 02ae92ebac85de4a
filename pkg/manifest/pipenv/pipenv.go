// Package pipenv translates Pipenv's Pipfile and Pipfile.lock into the
// canonical lock. Pipfile.lock is already shaped very much like the
// canonical model, so translation is mostly a structural mapping; the
// interesting part is the Pipfile content hash used for deploy-mode drift
// detection.
package pipenv

import (
	"encoding/json"
	"os"

	"github.com/BurntSushi/toml"

	"github.com/piplock/piplock/pkg/errors"
	"github.com/piplock/piplock/pkg/lock"
	"github.com/piplock/piplock/pkg/manifest"
)

// Translator implements manifest.Translator for the Pipenv ecosystem.
type Translator struct{}

func (Translator) Type() string     { return "pipenv" }
func (Translator) LockFile() string { return "Pipfile.lock" }

// pipfileLock mirrors the on-disk Pipfile.lock JSON layout (pipfile-spec 6).
type pipfileLock struct {
	Meta struct {
		Hash        map[string]string `json:"hash"`
		PipfileSpec int               `json:"pipfile-spec"`
		Requires    map[string]string `json:"requires"`
		Sources     []struct {
			Name      string `json:"name"`
			URL       string `json:"url"`
			VerifySSL bool   `json:"verify_ssl"`
		} `json:"sources"`
	} `json:"_meta"`
	Default map[string]lockEntry `json:"default"`
	Develop map[string]lockEntry `json:"develop"`
}

// lockEntry is the union of all per-package shapes Pipfile.lock records.
type lockEntry struct {
	Version      string   `json:"version"`
	Hashes       []string `json:"hashes"`
	Extras       []string `json:"extras"`
	Markers      string   `json:"markers"`
	Index        string   `json:"index"`
	Git          string   `json:"git"`
	Ref          string   `json:"ref"`
	Subdirectory string   `json:"subdirectory"`
	Path         string   `json:"path"`
	Editable     bool     `json:"editable"`
	File         string   `json:"file"`
}

// Translate builds the canonical lock from Pipfile.lock, or from Pipfile
// alone in only-direct mode.
func (t Translator) Translate(opts manifest.Options) (*lock.Lock, error) {
	if opts.OnlyDirect {
		return t.translateDirect(opts)
	}

	path, err := manifest.FindFile(opts.Dir, t.LockFile())
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeFileRead, err, "reading %s", path)
	}

	var pl pipfileLock
	if err := json.Unmarshal(data, &pl); err != nil {
		return nil, errors.Wrap(errors.ErrCodeFileRead, err, "failed to parse Pipfile.lock")
	}

	if pl.Meta.PipfileSpec != lock.PipfileSpecVersion {
		opts.Log("unsupported Pipfile.lock spec version - supported is %d, got %d",
			lock.PipfileSpecVersion, pl.Meta.PipfileSpec)
	}

	l := lock.New()
	l.ContentHash = pl.Meta.Hash["sha256"]
	l.PythonVersion = pl.Meta.Requires["python_version"]
	for _, s := range pl.Meta.Sources {
		l.Sources = append(l.Sources, lock.Source{Name: s.Name, URL: s.URL, VerifySSL: s.VerifySSL})
	}
	for name, entry := range pl.Default {
		l.Default[lock.Normalize(name)] = toCanonical(entry)
	}
	for name, entry := range pl.Develop {
		l.Develop[lock.Normalize(name)] = toCanonical(entry)
	}

	if err := l.Validate(); err != nil {
		return nil, err
	}
	return l, nil
}

func toCanonical(e lockEntry) lock.Entry {
	entry := lock.Entry{
		Extras:  e.Extras,
		Markers: e.Markers,
		Index:   e.Index,
	}

	switch {
	case e.Git != "":
		entry.Location = lock.GitLocation{URL: e.Git, Ref: e.Ref, Subdirectory: e.Subdirectory, Editable: e.Editable}
	case e.Path != "":
		entry.Location = lock.PathLocation{Path: e.Path, Editable: e.Editable}
	case e.File != "":
		entry.Location = lock.FileLocation{URL: e.File}
	default:
		entry.Version = e.Version
		entry.Hashes = e.Hashes
	}
	return entry
}

// translateDirect reads only the Pipfile dependency tables, producing
// simplified entries without hashes or index assignments.
func (t Translator) translateDirect(opts manifest.Options) (*lock.Lock, error) {
	pipfile, err := ReadPipfile(opts.Dir)
	if err != nil {
		return nil, err
	}

	l := lock.New()
	for _, src := range tableSlice(pipfile["source"]) {
		name, _ := src["name"].(string)
		url, _ := src["url"].(string)
		verify, ok := src["verify_ssl"].(bool)
		if !ok {
			verify = true
		}
		l.Sources = append(l.Sources, lock.Source{Name: name, URL: url, VerifySSL: verify})
	}

	for name, value := range tableOf(pipfile["packages"]) {
		entry, err := directEntry(name, value)
		if err != nil {
			return nil, err
		}
		l.Default[lock.Normalize(name)] = entry
	}
	for name, value := range tableOf(pipfile["dev-packages"]) {
		entry, err := directEntry(name, value)
		if err != nil {
			return nil, err
		}
		l.Develop[lock.Normalize(name)] = entry
	}

	return l, nil
}

// directEntry converts a Pipfile package declaration (either a bare version
// string or an inline table) into a canonical entry.
func directEntry(name string, value any) (lock.Entry, error) {
	switch v := value.(type) {
	case string:
		return lock.Entry{Version: v}, nil
	case map[string]any:
		version, _ := v["version"].(string)
		entry := lock.Entry{Version: version}
		for _, extra := range anySlice(v["extras"]) {
			if s, ok := extra.(string); ok {
				entry.Extras = append(entry.Extras, s)
			}
		}
		if markers, ok := v["markers"].(string); ok {
			entry.Markers = markers
		}
		return entry, nil
	default:
		return lock.Entry{}, errors.New(errors.ErrCodeRequirements,
			"unknown Pipfile entry for %q (should be a table or a string)", name)
	}
}

// ReadPipfile locates and parses Pipfile into a generic nested mapping.
func ReadPipfile(dir string) (map[string]any, error) {
	path, err := manifest.FindFile(dir, "Pipfile")
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeFileRead, err, "reading %s", path)
	}
	var pipfile map[string]any
	if err := toml.Unmarshal(data, &pipfile); err != nil {
		return nil, errors.Wrap(errors.ErrCodeFileRead, err, "failed to parse Pipfile")
	}
	return pipfile, nil
}

func tableOf(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

func anySlice(v any) []any {
	s, _ := v.([]any)
	return s
}

func tableSlice(v any) []map[string]any {
	// BurntSushi/toml decodes an array of tables as []map[string]any, but a
	// plain array lands as []any; accept both.
	if tables, ok := v.([]map[string]any); ok {
		return tables
	}
	var result []map[string]any
	for _, item := range anySlice(v) {
		if m, ok := item.(map[string]any); ok {
			result = append(result, m)
		}
	}
	return result
}
