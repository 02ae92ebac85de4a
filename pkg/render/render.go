// Package render turns a canonical lock into requirements-file text that pip
// can consume directly. Rendering is a pure function of the lock and the
// options, except for environment-variable interpolation in index URLs which
// reads the process environment at render time.
package render

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/piplock/piplock/pkg/errors"
	"github.com/piplock/piplock/pkg/lock"
)

// Options configure what ends up in the rendered requirements text.
type Options struct {
	NoHashes   bool // drop --hash lines
	NoIndexes  bool // drop index directives
	NoVersions bool // drop version pins (implies no hashes, pip rejects them unpinned)
	OnlyDirect bool // lock came from direct manifest tables, no hashes available
	NoDefault  bool // drop the default group
	NoDev      bool // drop the develop group
	NoComments bool // drop section comment banners
}

// Requirements renders the lock. Entries appear in sorted-name order within
// each group so that equal inputs always produce byte-identical output. A
// name already emitted under the default group is skipped when it recurs in
// the develop group.
func Requirements(l *lock.Lock, opts Options) (string, error) {
	sections, err := l.Sections(lock.SectionOptions{
		NoIndexes: opts.NoIndexes,
		NoDefault: opts.NoDefault,
		NoDev:     opts.NoDev,
	})
	if err != nil {
		return "", err
	}

	var b strings.Builder
	if !opts.NoIndexes {
		directives, err := IndexDirectives(sections.Sources, "")
		if err != nil {
			return "", err
		}
		b.WriteString(directives)
	}

	emitted := map[string]bool{}
	if err := renderGroup(&b, l, sections.Default, "Default dependencies", emitted, opts); err != nil {
		return "", err
	}
	if err := renderGroup(&b, l, sections.Develop, "Dev dependencies", emitted, opts); err != nil {
		return "", err
	}
	return b.String(), nil
}

func renderGroup(b *strings.Builder, l *lock.Lock, entries map[string]lock.Entry,
	title string, emitted map[string]bool, opts Options) error {
	names := lock.SortedNames(entries)
	pending := names[:0]
	for _, name := range names {
		if !emitted[name] {
			pending = append(pending, name)
		}
	}
	if len(pending) == 0 {
		return nil
	}

	if !opts.NoComments {
		fmt.Fprintf(b, "#\n# %s\n#\n", title)
	}
	for _, name := range pending {
		entry := entries[name]
		if entry.Index != "" {
			if _, ok := l.SourceByName(entry.Index); !ok {
				return errors.New(errors.ErrCodeRequirements,
					"package %q references unknown index %q", name, entry.Index)
			}
		}
		b.WriteString(EntryLine(name, entry, opts))
		emitted[name] = true
	}
	return nil
}

// IndexDirectives renders pip index configuration lines. With an empty index
// name every source is emitted, the first as --index-url and the rest as
// --extra-index-url; a named index restricts output to that single source.
// Sources with verify_ssl disabled are preceded by a --trusted-host line.
func IndexDirectives(sources []lock.Source, index string) (string, error) {
	if index != "" {
		src, found := lock.Source{}, false
		for _, s := range sources {
			if s.Name == index {
				src, found = s, true
				break
			}
		}
		if !found {
			return "", errors.New(errors.ErrCodeRequirements,
				"package index %q not found in the source listing", index)
		}
		if src.URL == "" {
			// Reference-only legacy source, nothing to configure.
			return "", nil
		}
		return sourceDirective(src, true), nil
	}

	var b strings.Builder
	primary := true
	for _, src := range sources {
		if src.URL == "" {
			// Reference-only legacy source, nothing to configure.
			continue
		}
		b.WriteString(sourceDirective(src, primary))
		primary = false
	}
	return b.String(), nil
}

func sourceDirective(src lock.Source, primary bool) string {
	var b strings.Builder
	if !src.VerifySSL {
		if host := src.Host(); host != "" {
			fmt.Fprintf(&b, "--trusted-host %s\n", host)
		}
	}
	directive := "--extra-index-url"
	if primary {
		directive = "--index-url"
	}
	fmt.Fprintf(&b, "%s %s\n", directive, InterpolateEnv(src.URL))
	return b.String()
}

// EntryLine renders one requirement entry, terminated by a newline. Location
// entries take priority over pinned versions; hashes follow on
// backslash-continued lines unless suppressed.
func EntryLine(name string, e lock.Entry, opts Options) string {
	var b strings.Builder

	switch loc := e.Location.(type) {
	case lock.GitLocation:
		if loc.Editable {
			b.WriteString("--editable ")
		}
		b.WriteString("git+")
		b.WriteString(loc.URL)
		if loc.Ref != "" {
			b.WriteString("@")
			b.WriteString(loc.Ref)
		}
		fmt.Fprintf(&b, "#egg=%s", name)
		if loc.Subdirectory != "" {
			fmt.Fprintf(&b, "&subdirectory=%s", loc.Subdirectory)
		}
	case lock.PathLocation:
		if loc.Editable {
			b.WriteString("--editable ")
		}
		b.WriteString(loc.Path)
	case lock.FileLocation:
		b.WriteString(loc.URL)
	default:
		b.WriteString(name)
		if len(e.Extras) > 0 {
			fmt.Fprintf(&b, "[%s]", strings.Join(e.Extras, ","))
		}
		if !opts.NoVersions && e.Version != "" && e.Version != "*" {
			b.WriteString(e.Version)
		}
	}

	if e.Markers != "" {
		b.WriteString("; ")
		b.WriteString(e.Markers)
	}

	if includeHashes(e, opts) {
		for _, hash := range e.Hashes {
			fmt.Fprintf(&b, " \\\n    --hash=%s", hash)
		}
	}
	b.WriteString("\n")
	return b.String()
}

func includeHashes(e lock.Entry, opts Options) bool {
	if opts.NoHashes || opts.NoVersions || opts.OnlyDirect {
		return false
	}
	return !e.Editable() && e.Location == nil
}

var envRE = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-([^}]*))?\}`)

// InterpolateEnv expands ${VAR} and ${VAR:-default} references against the
// process environment. An unset variable without a default collapses to the
// empty string.
func InterpolateEnv(s string) string {
	return envRE.ReplaceAllStringFunc(s, func(match string) string {
		parts := envRE.FindStringSubmatch(match)
		if value, ok := os.LookupEnv(parts[1]); ok {
			return value
		}
		return parts[3]
	})
}
