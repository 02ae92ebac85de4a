// Package piptools translates pip-tools style requirements files into the
// canonical lock.
//
// A requirements file is only accepted as a lock source when every
// non-editable entry is fully pinned: exactly one exact-equality version
// specifier and at least one integrity hash. Anything looser fails with the
// REQUIREMENTS_NOT_LOCKED code, which the install path downgrades to a
// direct, unverified pip invocation rather than a hard error.
package piptools

import (
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/piplock/piplock/pkg/errors"
	"github.com/piplock/piplock/pkg/lock"
	"github.com/piplock/piplock/pkg/manifest"
)

// DefaultIndexURL is assumed when the requirements file configures no index.
const DefaultIndexURL = "https://pypi.org/simple"

// Translator implements manifest.Translator for pip-tools requirements
// files. FileName overrides the default requirements.txt basename.
type Translator struct {
	FileName string
}

func (t Translator) Type() string { return "requirements" }

func (t Translator) LockFile() string {
	if t.FileName != "" {
		return t.FileName
	}
	return "requirements.txt"
}

// parsedLine is one logical requirement line after continuation joining.
type parsedLine struct {
	name     string // normalized; synthetic for editable entries
	entry    lock.Entry
	editable bool // editable or local reference, exempt from the pin policy
	pinned   bool // has exactly one == specifier and at least one hash
}

// Translate locates and parses the requirements file. Only-direct mode does
// not apply to this ecosystem: a requirements file has no notion of
// transitive entries to skip.
func (t Translator) Translate(opts manifest.Options) (*lock.Lock, error) {
	path, err := manifest.FindFile(opts.Dir, t.LockFile())
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeFileRead, err, "reading %s", path)
	}

	l := lock.New()
	l.ContentHash = manifest.SHA256Hex(data)

	var (
		indexURLs    []string
		trustedHosts = map[string]bool{}
		lines        []parsedLine
	)

	for _, line := range logicalLines(string(data)) {
		switch {
		case strings.HasPrefix(line, "--index-url") || strings.HasPrefix(line, "-i "):
			indexURLs = prependURL(indexURLs, optionValue(line))
		case strings.HasPrefix(line, "--extra-index-url"):
			indexURLs = append(indexURLs, optionValue(line))
		case strings.HasPrefix(line, "--trusted-host"):
			trustedHosts[optionValue(line)] = true
		case strings.HasPrefix(line, "--require-hashes") || strings.HasPrefix(line, "--no-binary") ||
			strings.HasPrefix(line, "--only-binary"):
			// Behavioral pip options that do not affect translation.
		case strings.HasPrefix(line, "-r ") || strings.HasPrefix(line, "--requirement") ||
			strings.HasPrefix(line, "-c ") || strings.HasPrefix(line, "--constraint"):
			return nil, errors.New(errors.ErrCodeNotSupported,
				"nested requirements files are not supported: %q", line)
		case strings.HasPrefix(line, "-e ") || strings.HasPrefix(line, "--editable"):
			lines = append(lines, editableLine(optionValue(line)))
		case strings.HasPrefix(line, "-"):
			return nil, errors.New(errors.ErrCodeNotSupported,
				"unsupported requirements option: %q", line)
		default:
			parsed, err := requirementLine(line)
			if err != nil {
				return nil, err
			}
			lines = append(lines, parsed)
		}
	}

	if err := checkLocked(lines); err != nil {
		return nil, err
	}

	for _, parsed := range lines {
		if _, exists := l.Default[parsed.name]; exists {
			return nil, errors.New(errors.ErrCodeRequirements,
				"duplicate requirement entry for %q", parsed.name)
		}
		l.Default[parsed.name] = parsed.entry
	}

	l.Sources = buildSources(indexURLs, trustedHosts)
	if len(l.Sources) == 1 {
		// Exactly one source: it is implicitly every entry's index.
		for name, entry := range l.Default {
			entry.Index = l.Sources[0].Name
			l.Default[name] = entry
		}
	}

	if err := l.Validate(); err != nil {
		return nil, err
	}
	return l, nil
}

// checkLocked enforces the strict-lock policy: every non-editable entry must
// be fully pinned, and an all-editable file is rejected outright since
// editable installs are performed with dependency resolution disabled and
// cannot be trusted to enumerate transitive dependencies.
func checkLocked(lines []parsedLine) error {
	editable := 0
	for _, parsed := range lines {
		if parsed.editable {
			editable++
			continue
		}
		if !parsed.pinned {
			return errors.New(errors.ErrCodeNotLocked,
				"requirement %q is not fully locked (expected exactly one '==' specifier and at least one hash)",
				parsed.name)
		}
	}
	if len(lines) > 0 && editable == len(lines) {
		return errors.New(errors.ErrCodeNotLocked,
			"requirements file contains only editable entries and cannot enumerate transitive dependencies")
	}
	return nil
}

// logicalLines splits the file into logical lines: backslash continuations
// joined, comments and blanks dropped.
func logicalLines(content string) []string {
	var result []string
	var pending strings.Builder

	for _, raw := range strings.Split(content, "\n") {
		line := strings.TrimRight(raw, "\r")
		if idx := commentIndex(line); idx >= 0 {
			line = line[:idx]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasSuffix(line, "\\") {
			pending.WriteString(strings.TrimSuffix(line, "\\"))
			pending.WriteString(" ")
			continue
		}
		pending.WriteString(line)
		result = append(result, strings.Join(strings.Fields(pending.String()), " "))
		pending.Reset()
	}
	if rest := strings.TrimSpace(pending.String()); rest != "" {
		result = append(result, strings.Join(strings.Fields(rest), " "))
	}
	return result
}

// commentIndex returns the offset of a comment marker: a '#' at line start
// or preceded by whitespace. A '#' inside a URL fragment does not count.
func commentIndex(line string) int {
	for i := 0; i < len(line); i++ {
		if line[i] != '#' {
			continue
		}
		if i == 0 || line[i-1] == ' ' || line[i-1] == '\t' {
			return i
		}
	}
	return -1
}

func optionValue(line string) string {
	if idx := strings.IndexByte(line, '='); idx >= 0 && !strings.Contains(line[:idx], " ") {
		return strings.TrimSpace(line[idx+1:])
	}
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return ""
	}
	return strings.Join(fields[1:], " ")
}

// editableLine builds an entry for an editable reference. No stable package
// name exists before installation, so a content digest of the descriptor
// serves as the synthetic unique key.
func editableLine(target string) parsedLine {
	key := "editable-" + manifest.SHA256Hex([]byte(target))[:16]

	var entry lock.Entry
	if strings.HasPrefix(target, "git+") {
		url, ref, subdir := splitGitTarget(strings.TrimPrefix(target, "git+"))
		entry.Location = lock.GitLocation{URL: url, Ref: ref, Subdirectory: subdir, Editable: true}
	} else {
		entry.Location = lock.PathLocation{Path: target, Editable: true}
	}
	return parsedLine{name: key, entry: entry, editable: true}
}

// splitGitTarget separates "url@ref#egg=name&subdirectory=sub" into parts.
func splitGitTarget(target string) (url, ref, subdir string) {
	url = target
	if idx := strings.IndexByte(url, '#'); idx >= 0 {
		fragment := url[idx+1:]
		url = url[:idx]
		for _, part := range strings.Split(fragment, "&") {
			if value, ok := strings.CutPrefix(part, "subdirectory="); ok {
				subdir = value
			}
		}
	}
	// An @ after the last / separates the reference from the repository URL.
	if slash := strings.LastIndexByte(url, '/'); slash >= 0 {
		if at := strings.IndexByte(url[slash:], '@'); at >= 0 {
			ref = url[slash+at+1:]
			url = url[:slash+at]
		}
	}
	return url, ref, subdir
}

var requirementRE = regexp.MustCompile(`^([A-Za-z0-9][A-Za-z0-9._-]*)\s*(\[([^\]]*)\])?\s*([^;]*?)\s*$`)

// requirementLine parses a pinned requirement: name, extras, specifier,
// markers, hash arguments.
func requirementLine(line string) (parsedLine, error) {
	spec := line
	var hashes []string
	if idx := strings.Index(spec, "--hash="); idx >= 0 {
		for _, field := range strings.Fields(spec[idx:]) {
			if value, ok := strings.CutPrefix(field, "--hash="); ok {
				hashes = appendUnique(hashes, value)
			}
		}
		spec = strings.TrimSpace(spec[:idx])
	}

	var markers string
	if idx := strings.IndexByte(spec, ';'); idx >= 0 {
		markers = strings.TrimSpace(spec[idx+1:])
		spec = strings.TrimSpace(spec[:idx])
	}

	// A direct reference (local path or URL) is a location entry; it cannot
	// be hash-pinned.
	if strings.Contains(spec, "://") || strings.HasPrefix(spec, "git+") {
		key := "url-" + manifest.SHA256Hex([]byte(spec))[:16]
		if strings.HasPrefix(spec, "git+") {
			url, ref, subdir := splitGitTarget(strings.TrimPrefix(spec, "git+"))
			return parsedLine{
				name:   key,
				entry:  lock.Entry{Markers: markers, Location: lock.GitLocation{URL: url, Ref: ref, Subdirectory: subdir}},
				pinned: false,
			}, nil
		}
		return parsedLine{
			name:   key,
			entry:  lock.Entry{Markers: markers, Location: lock.FileLocation{URL: spec}},
			pinned: false,
		}, nil
	}
	if strings.HasPrefix(spec, ".") || strings.HasPrefix(spec, "/") {
		key := "path-" + manifest.SHA256Hex([]byte(spec))[:16]
		return parsedLine{
			name:     key,
			entry:    lock.Entry{Markers: markers, Location: lock.PathLocation{Path: spec}},
			editable: true,
		}, nil
	}

	m := requirementRE.FindStringSubmatch(spec)
	if m == nil {
		return parsedLine{}, errors.New(errors.ErrCodeRequirements,
			"malformed requirement line: %q", line)
	}

	entry := lock.Entry{
		Version: strings.TrimSpace(m[4]),
		Hashes:  hashes,
		Markers: markers,
	}
	if m[3] != "" {
		for _, extra := range strings.Split(m[3], ",") {
			if e := strings.TrimSpace(extra); e != "" {
				entry.Extras = append(entry.Extras, e)
			}
		}
		sort.Strings(entry.Extras)
	}

	pinned := strings.HasPrefix(entry.Version, "==") &&
		!strings.Contains(entry.Version, ",") &&
		len(hashes) > 0

	return parsedLine{
		name:   lock.Normalize(m[1]),
		entry:  entry,
		pinned: pinned,
	}, nil
}

func appendUnique(values []string, value string) []string {
	for _, v := range values {
		if v == value {
			return values
		}
	}
	return append(values, value)
}

func prependURL(urls []string, url string) []string {
	return append([]string{url}, urls...)
}

// buildSources turns the configured index URLs into named sources. URLs are
// deduplicated; each gets a synthetic name derived from a digest of the URL,
// except the well-known default index which keeps its conventional name.
func buildSources(indexURLs []string, trustedHosts map[string]bool) []lock.Source {
	if len(indexURLs) == 0 {
		indexURLs = []string{DefaultIndexURL}
	}

	var sources []lock.Source
	seen := map[string]bool{}
	for _, url := range indexURLs {
		if url == "" || seen[url] {
			continue
		}
		seen[url] = true

		name := "source-" + manifest.SHA256Hex([]byte(url))[:8]
		if url == DefaultIndexURL {
			name = "pypi"
		}
		src := lock.Source{Name: name, URL: url, VerifySSL: true}
		if trustedHosts[src.Host()] {
			src.VerifySSL = false
		}
		sources = append(sources, src)
	}
	return sources
}
