package lock

import (
	"net/url"
	"sort"

	"github.com/piplock/piplock/pkg/errors"
)

// Source describes one Python package index.
type Source struct {
	Name      string // unique within a lock when multiple sources exist
	URL       string // empty for a reference-only legacy source
	VerifySSL bool   // false means the host is passed to pip as trusted
}

// Host returns the host portion of the source URL, used for pip's
// --trusted-host directive. Returns empty string if the URL does not parse.
func (s Source) Host() string {
	u, err := url.Parse(s.URL)
	if err != nil {
		return ""
	}
	return u.Host
}

// Location is the source-location variant of a requirement entry. Exactly one
// concrete type applies to an entry; entries with a location never carry a
// pinned version or integrity hashes.
type Location interface {
	locationVariant()
}

// GitLocation points at a VCS checkout.
type GitLocation struct {
	URL          string
	Ref          string // resolved commit or declared reference
	Subdirectory string
	Editable     bool
}

// PathLocation points at a local directory.
type PathLocation struct {
	Path     string
	Editable bool
}

// FileLocation points at a remote or local archive URL.
type FileLocation struct {
	URL string
}

func (GitLocation) locationVariant()  {}
func (PathLocation) locationVariant() {}
func (FileLocation) locationVariant() {}

// Entry is one resolved dependency. The package name is the key of the
// Default/Develop mapping holding the entry, always in normalized form.
type Entry struct {
	Version  string   // exact pin ("==1.2.3") or "*" for unconstrained
	Hashes   []string // "algorithm:hexdigest" integrity digests
	Extras   []string // sorted optional-feature names
	Markers  string   // environment-condition expression
	Index    string   // name of a Source; empty means the default index
	Location Location // nil for a regular pinned entry
}

// Editable reports whether the entry refers to an editable install, either
// a local directory or a VCS checkout. Editable entries suppress version and
// hash rendering entirely.
func (e Entry) Editable() bool {
	switch loc := e.Location.(type) {
	case PathLocation:
		return loc.Editable
	case GitLocation:
		return loc.Editable
	}
	return false
}

// Lock is the canonical lock: the intermediate representation shared by all
// translators, the renderer and the installation driver.
type Lock struct {
	ContentHash   string // digest binding the lock to its source manifest
	PythonVersion string // required interpreter version ("3.9"), optional
	Sources       []Source
	Default       map[string]Entry
	Develop       map[string]Entry
}

// New returns an empty lock with initialized dependency mappings.
func New() *Lock {
	return &Lock{
		Default: map[string]Entry{},
		Develop: map[string]Entry{},
	}
}

// SourceByName returns the source with the given name.
func (l *Lock) SourceByName(name string) (Source, bool) {
	for _, s := range l.Sources {
		if s.Name == name {
			return s, true
		}
	}
	return Source{}, false
}

// Validate checks structural invariants: source names must be unique when
// more than one source exists, and every entry index reference must resolve.
func (l *Lock) Validate() error {
	if len(l.Sources) > 1 {
		seen := make(map[string]bool, len(l.Sources))
		for _, s := range l.Sources {
			if seen[s.Name] {
				return errors.New(errors.ErrCodeRequirements, "duplicate index name %q", s.Name)
			}
			seen[s.Name] = true
		}
	}
	for _, section := range []map[string]Entry{l.Default, l.Develop} {
		for name, entry := range section {
			if entry.Index == "" {
				continue
			}
			if _, ok := l.SourceByName(entry.Index); !ok {
				return errors.New(errors.ErrCodeRequirements,
					"package %q references unknown index %q", name, entry.Index)
			}
		}
	}
	return nil
}

// SectionOptions filter which parts of the lock a caller wants to consume.
type SectionOptions struct {
	NoIndexes bool // drop the source list
	NoDefault bool // drop production dependencies
	NoDev     bool // drop development dependencies
}

// Sections holds the filtered view of a lock produced by Lock.Sections.
type Sections struct {
	Sources []Source
	Default map[string]Entry
	Develop map[string]Entry
}

// Sections returns the requested subset of the lock. Asking for neither the
// default nor the develop group is an arguments error: there would be nothing
// left to render or install.
func (l *Lock) Sections(opts SectionOptions) (*Sections, error) {
	if opts.NoDefault && opts.NoDev {
		return nil, errors.New(errors.ErrCodeArguments,
			"cannot produce requirements as both default and dev were asked to be discarded")
	}

	result := &Sections{
		Default: map[string]Entry{},
		Develop: map[string]Entry{},
	}
	if !opts.NoIndexes {
		result.Sources = l.Sources
	}
	if !opts.NoDefault {
		result.Default = l.Default
	}
	if !opts.NoDev {
		result.Develop = l.Develop
	}
	return result, nil
}

// SortedNames returns the keys of a dependency mapping in sorted order, used
// wherever deterministic iteration matters.
func SortedNames(entries map[string]Entry) []string {
	names := make([]string, 0, len(entries))
	for name := range entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
