package poetry

import (
	"fmt"
	"sort"
	"strings"

	"github.com/piplock/piplock/pkg/errors"
	"github.com/piplock/piplock/pkg/lock"
	"github.com/piplock/piplock/pkg/manifest"
)

// defaultMaxRetries bounds how many times an entry whose category cannot be
// determined yet is pushed back to the work queue before translation fails.
const defaultMaxRetries = 3

// markerSentinel marks a dependency required unconditionally by at least one
// parent; such a dependency gets no marker at all.
const markerSentinel = "\x00unconditional"

// translateLock runs the full lock-file inference: category propagation over
// a work queue, marker reconciliation, extras reconstruction and per-entry
// source mapping.
func translateLock(pp *pyproject, lf *lockFile, opts manifest.Options) (*lock.Lock, error) {
	l := lock.New()
	l.ContentHash = lf.Metadata.ContentHash
	addSources(l, pp)

	mainSet, devSet := seedCategories(pp)

	if err := propagateCategories(lf.Package, mainSet, devSet, opts); err != nil {
		return nil, err
	}

	markers := collectMarkers(pp, lf.Package)

	multiSource := len(l.Sources) > 1
	for _, pkg := range lf.Package {
		name := lock.Normalize(pkg.Name)

		entry, err := buildEntry(pkg, lf, l, multiSource)
		if err != nil {
			return nil, err
		}
		entry.Markers = combinedMarker(markers[name])
		entry.Extras = reconstructExtras(pkg)

		if mainSet[name] {
			l.Default[name] = entry
		}
		if devSet[name] {
			l.Develop[name] = entry
		}
	}

	if err := l.Validate(); err != nil {
		return nil, err
	}
	return l, nil
}

// seedCategories returns the initial main and dev category sets from the
// direct dependency names declared in pyproject.toml.
func seedCategories(pp *pyproject) (map[string]bool, map[string]bool) {
	mainSet := map[string]bool{}
	devSet := map[string]bool{}

	for name := range pp.Tool.Poetry.Dependencies {
		if strings.EqualFold(name, "python") {
			continue
		}
		mainSet[lock.Normalize(name)] = true
	}
	if pp.Project != nil {
		for _, req := range pp.Project.Dependencies {
			if name, _ := pep508Entry(req); name != "" {
				mainSet[name] = true
			}
		}
	}

	for name := range pp.Tool.Poetry.DevDependencies {
		devSet[lock.Normalize(name)] = true
	}
	for _, group := range pp.Tool.Poetry.Group {
		for name := range group.Dependencies {
			devSet[lock.Normalize(name)] = true
		}
	}

	return mainSet, devSet
}

// queueItem is one unit of category-inference work.
type queueItem struct {
	pkg     *lockPackage
	retries int
}

// propagateCategories grows mainSet and devSet to a fixed point over the
// lock entries. Entries are processed from a double-ended queue; an entry
// whose category cannot be determined yet is requeued at the tail with an
// incremented retry counter. A package exceeding the retry budget without
// resolving indicates a malformed lock graph and aborts translation.
//
// A package reachable from both the production and the development
// dependency graph ends up in both sets: Poetry itself prefers the main
// category on conflict, which union membership replicates.
func propagateCategories(packages []lockPackage, mainSet, devSet map[string]bool, opts manifest.Options) error {
	budget := opts.MaxRetries
	if budget <= 0 {
		budget = defaultMaxRetries
	}

	queue := make([]queueItem, 0, len(packages))
	for i := range packages {
		queue = append(queue, queueItem{pkg: &packages[i]})
	}

	for len(queue) > 0 {
		item := queue[0]
		queue = queue[1:]

		name := lock.Normalize(item.pkg.Name)
		inMain := item.pkg.Category == "main" || mainSet[name]
		inDev := item.pkg.Category == "dev" || devSet[name]

		if !inMain && !inDev {
			item.retries++
			if item.retries > budget {
				return errors.New(errors.ErrCodePoetry,
					"unable to determine dependency category for package %q after %d attempts", name, budget)
			}
			queue = append(queue, item)
			continue
		}

		if inMain {
			mainSet[name] = true
			for dep := range item.pkg.Dependencies {
				mainSet[lock.Normalize(dep)] = true
			}
		}
		if inDev {
			devSet[name] = true
			for dep := range item.pkg.Dependencies {
				devSet[lock.Normalize(dep)] = true
			}
		}
	}

	return nil
}

// collectMarkers gathers, per dependency name, the marker expressions
// contributed by each parent edge in the manifest and the lock. A parent that
// requires a dependency without any marker contributes the unconditional
// sentinel instead.
func collectMarkers(pp *pyproject, packages []lockPackage) map[string][]string {
	markers := map[string][]string{}

	addEdge := func(dep string, value any) {
		name := lock.Normalize(dep)
		switch v := value.(type) {
		case string:
			markers[name] = append(markers[name], markerSentinel)
		case map[string]any:
			if m, ok := v["markers"].(string); ok && m != "" {
				markers[name] = append(markers[name], m)
			} else {
				markers[name] = append(markers[name], markerSentinel)
			}
		case []any:
			for _, item := range v {
				addEdgeItem(markers, name, item)
			}
		}
	}

	for dep, value := range pp.Tool.Poetry.Dependencies {
		if strings.EqualFold(dep, "python") {
			continue
		}
		addEdge(dep, value)
	}
	for dep, value := range pp.Tool.Poetry.DevDependencies {
		addEdge(dep, value)
	}
	for _, group := range pp.Tool.Poetry.Group {
		for dep, value := range group.Dependencies {
			addEdge(dep, value)
		}
	}
	for _, pkg := range packages {
		for dep, value := range pkg.Dependencies {
			addEdge(dep, value)
		}
	}

	return markers
}

func addEdgeItem(markers map[string][]string, name string, item any) {
	if m, ok := item.(map[string]any); ok {
		if expr, ok := m["markers"].(string); ok && expr != "" {
			markers[name] = append(markers[name], expr)
			return
		}
	}
	markers[name] = append(markers[name], markerSentinel)
}

// combinedMarker reduces the collected marker expressions for one dependency.
// The unconditional sentinel wins outright: the dependency is needed
// regardless of environment. Otherwise the distinct expressions are sorted
// and OR-combined, parenthesized when more than one applies.
func combinedMarker(collected []string) string {
	if len(collected) == 0 {
		return ""
	}

	distinct := map[string]bool{}
	for _, m := range collected {
		if m == markerSentinel {
			return ""
		}
		distinct[m] = true
	}

	exprs := make([]string, 0, len(distinct))
	for m := range distinct {
		exprs = append(exprs, m)
	}
	sort.Strings(exprs)

	if len(exprs) == 1 {
		return exprs[0]
	}
	for i, e := range exprs {
		exprs[i] = "(" + e + ")"
	}
	return strings.Join(exprs, " or ")
}

// reconstructExtras approximates which extras were activated for a lock
// entry. For each declared extra group, the names it lists are compared
// against the entry's own optional dependencies; a subset match concludes
// the extra was active.
func reconstructExtras(pkg lockPackage) []string {
	if len(pkg.Extras) == 0 {
		return nil
	}

	optional := map[string]bool{}
	for dep, value := range pkg.Dependencies {
		if m, ok := value.(map[string]any); ok {
			if opt, ok := m["optional"].(bool); ok && opt {
				optional[lock.Normalize(dep)] = true
			}
		}
	}

	var extras []string
	for extraName, listed := range pkg.Extras {
		subset := true
		for _, req := range listed {
			name := extraDependencyName(req)
			if name == "" || !optional[name] {
				subset = false
				break
			}
		}
		if subset {
			extras = append(extras, extraName)
		}
	}
	sort.Strings(extras)
	return extras
}

// extraDependencyName strips the version specifier from an extras listing
// like "PySocks (>=1.5.6,!=1.5.7)" and returns the normalized name.
func extraDependencyName(req string) string {
	req = strings.TrimSpace(req)
	if idx := strings.IndexAny(req, " (<>=!~;["); idx >= 0 {
		req = req[:idx]
	}
	return lock.Normalize(req)
}

// buildEntry maps one lock entry's pinned version, integrity hashes and
// source descriptor to the canonical representation.
func buildEntry(pkg lockPackage, lf *lockFile, l *lock.Lock, multiSource bool) (lock.Entry, error) {
	entry := lock.Entry{}

	if pkg.Source != nil {
		switch pkg.Source.Type {
		case "git":
			ref := pkg.Source.ResolvedReference
			if ref == "" {
				ref = pkg.Source.Reference
			}
			entry.Location = lock.GitLocation{
				URL:          pkg.Source.URL,
				Ref:          ref,
				Subdirectory: pkg.Source.Subdirectory,
			}
			return entry, nil
		case "directory":
			entry.Location = lock.PathLocation{Path: pkg.Source.URL}
			return entry, nil
		case "url":
			entry.Location = lock.FileLocation{URL: pkg.Source.URL}
			return entry, nil
		case "legacy":
			// A single legacy source is assumed to be the default index and
			// needs no per-entry pin.
			if multiSource {
				entry.Index = legacyIndexName(l, pkg.Source)
			}
		default:
			return entry, errors.New(errors.ErrCodeNotSupported,
				"unsupported source type %q for package %q", pkg.Source.Type, pkg.Name)
		}
	}

	if pkg.Version != "" {
		entry.Version = "==" + pkg.Version
	}
	entry.Hashes = entryHashes(pkg, lf)
	return entry, nil
}

// legacyIndexName resolves a legacy package source to an index name in the
// lock's source list, registering a reference-only source when the index was
// not declared in pyproject.toml.
func legacyIndexName(l *lock.Lock, src *lockSource) string {
	for _, s := range l.Sources {
		if s.URL != "" && s.URL == src.URL {
			return s.Name
		}
	}
	name := src.Reference
	if name == "" {
		name = fmt.Sprintf("source-%s", manifest.SHA256Hex([]byte(src.URL))[:8])
	}
	if _, ok := l.SourceByName(name); !ok {
		l.Sources = append(l.Sources, lock.Source{Name: name, URL: src.URL, VerifySSL: true})
	}
	return name
}

// entryHashes returns the integrity digests for a lock entry, handling both
// the newer per-package files layout and the legacy metadata-section layout.
func entryHashes(pkg lockPackage, lf *lockFile) []string {
	files := pkg.Files
	if len(files) == 0 {
		files = lf.Metadata.Files[pkg.Name]
		if len(files) == 0 {
			files = lf.Metadata.Files[lock.Normalize(pkg.Name)]
		}
	}
	if len(files) == 0 {
		return nil
	}

	hashes := make([]string, 0, len(files))
	seen := map[string]bool{}
	for _, f := range files {
		if f.Hash == "" || seen[f.Hash] {
			continue
		}
		seen[f.Hash] = true
		hashes = append(hashes, f.Hash)
	}
	sort.Strings(hashes)
	return hashes
}
