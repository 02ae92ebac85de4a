// Package installer drives pip over the entries of a canonical lock. Every
// package is installed on its own with dependency resolution disabled, so
// install order matters; the driver compensates with a retry queue that
// requeues failed entries until either everything installs or a full cycle
// passes with no progress.
package installer

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/piplock/piplock/pkg/errors"
	"github.com/piplock/piplock/pkg/lock"
	"github.com/piplock/piplock/pkg/render"
)

// Runner abstracts the external pip process so the driver can be exercised
// with a fake in tests.
type Runner interface {
	// Run invokes pip with the given arguments and returns an error when the
	// process exits non-zero.
	Run(ctx context.Context, args ...string) error
	// Output invokes pip and captures its standard output.
	Output(ctx context.Context, args ...string) (string, error)
}

// Options configure one installation run.
type Options struct {
	// Runner executes pip. Required.
	Runner Runner

	// Dev includes the develop group alongside the default group.
	Dev bool

	// PipArgs are passed through to every pip install invocation, after the
	// driver's own arguments.
	PipArgs []string

	// Logger receives progress diagnostics. Nil disables them.
	Logger func(format string, args ...any)
}

func (o Options) log(format string, args ...any) {
	if o.Logger != nil {
		o.Logger(format, args...)
	}
}

// item is one queued installation unit.
type item struct {
	name     string
	entry    lock.Entry
	failures int
}

// Install walks the lock's entries through the retry queue. A single
// temporary requirements file is truncated and rewritten per attempt and
// removed on every exit path.
func Install(ctx context.Context, l *lock.Lock, opts Options) error {
	sections, err := l.Sections(lock.SectionOptions{NoDev: !opts.Dev})
	if err != nil {
		return err
	}

	var queue []item
	seen := map[string]bool{}
	for _, group := range []map[string]lock.Entry{sections.Default, sections.Develop} {
		for _, name := range lock.SortedNames(group) {
			if seen[name] {
				continue
			}
			seen[name] = true
			queue = append(queue, item{name: name, entry: group[name]})
		}
	}

	runID := uuid.NewString()[:8]
	tmp, err := os.CreateTemp("", fmt.Sprintf("piplock-%s-*.txt", runID))
	if err != nil {
		return errors.Wrap(errors.ErrCodePipInstall, err, "creating temporary requirements file")
	}
	tmpPath := tmp.Name()
	tmp.Close()
	defer os.Remove(tmpPath)

	opts.log("installation run %s: %d packages queued", runID, len(queue))

	for len(queue) > 0 {
		head := queue[0]
		queue = queue[1:]

		installed, err := installOne(ctx, l, head, tmpPath, opts)
		if err != nil {
			return err
		}
		if installed {
			opts.log("successfully installed %q", head.name)
			resetTrailingFailures(queue)
			continue
		}

		if len(queue) == 0 || head.failures > len(queue) {
			return errors.New(errors.ErrCodePipInstall,
				"failed to install %q, it looks like it is not installable in the given order", head.name)
		}
		head.failures++
		opts.log("failed to install %q, requeueing (attempt %d)", head.name, head.failures)
		queue = append(queue, head)
	}
	return nil
}

// installOne tries one queue entry, iterating over all configured sources
// when the entry pins no index and more than one source exists.
func installOne(ctx context.Context, l *lock.Lock, it item, tmpPath string, opts Options) (bool, error) {
	indexes := []string{it.entry.Index}
	if it.entry.Index == "" && it.entry.Location == nil && len(l.Sources) > 1 {
		indexes = indexes[:0]
		for _, src := range l.Sources {
			indexes = append(indexes, src.Name)
		}
	}

	for _, index := range indexes {
		directives, err := render.IndexDirectives(l.Sources, index)
		if err != nil {
			return false, err
		}
		content := directives + render.EntryLine(it.name, it.entry, render.Options{})
		if err := os.WriteFile(tmpPath, []byte(content), 0o600); err != nil {
			return false, errors.Wrap(errors.ErrCodePipInstall, err, "writing temporary requirements file")
		}

		args := append([]string{"install", "--no-deps"}, opts.PipArgs...)
		args = append(args, "-r", tmpPath)
		if err := opts.Runner.Run(ctx, args...); err == nil {
			return true, nil
		}
	}
	return false, nil
}

// resetTrailingFailures clears failure counters scanning from the tail and
// stops at the first entry already at zero. Failed entries are always
// appended at the tail, so everything before a clean entry is clean too.
func resetTrailingFailures(queue []item) {
	for i := len(queue) - 1; i >= 0; i-- {
		if queue[i].failures == 0 {
			return
		}
		queue[i].failures = 0
	}
}

// InstallUnlocked installs a requirements file directly, with pip's own
// dependency resolution enabled. This is the fallback for requirements files
// that do not satisfy the strict-lock policy; afterwards the actually
// installed versions are reported via pip freeze.
func InstallUnlocked(ctx context.Context, requirementsFile string, opts Options) error {
	args := append([]string{"install"}, opts.PipArgs...)
	args = append(args, "-r", requirementsFile)
	if err := opts.Runner.Run(ctx, args...); err != nil {
		return errors.Wrap(errors.ErrCodePipInstall, err,
			"failed to install requirements from %s", requirementsFile)
	}
	if frozen, err := opts.Runner.Output(ctx, "freeze"); err == nil {
		opts.log("installed packages:\n%s", strings.TrimSpace(frozen))
	}
	return nil
}

var pipPythonRE = regexp.MustCompile(`\(python ([0-9]+(?:\.[0-9]+)*)\)`)

// VerifyPythonVersion checks the interpreter behind pip against the version
// the lock requires. An empty requirement or an unparseable pip version
// report skips the check with a diagnostic.
func VerifyPythonVersion(ctx context.Context, required string, opts Options) error {
	if required == "" {
		return nil
	}
	out, err := opts.Runner.Output(ctx, "--version")
	if err != nil {
		return errors.Wrap(errors.ErrCodePipInstall, err, "querying pip version")
	}
	m := pipPythonRE.FindStringSubmatch(out)
	if m == nil {
		opts.log("cannot determine Python version from pip, skipping version check")
		return nil
	}
	running := m[1]
	if running != required && !strings.HasPrefix(running, required+".") {
		return errors.New(errors.ErrCodePythonVersionMismatch,
			"running Python version %s, but Python version %s was used to generate the lock file",
			running, required)
	}
	return nil
}
