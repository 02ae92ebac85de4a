package installer

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/piplock/piplock/pkg/errors"
	"github.com/piplock/piplock/pkg/lock"
)

// fakeRunner records every pip invocation and the requirements file content
// it was given, and decides success via the configured callback.
type fakeRunner struct {
	succeed func(content string) bool
	runs    []string
	args    [][]string
	version string
}

func (f *fakeRunner) Run(_ context.Context, args ...string) error {
	f.args = append(f.args, args)

	var path string
	for i, a := range args {
		if a == "-r" && i+1 < len(args) {
			path = args[i+1]
		}
	}
	content := ""
	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			content = string(data)
		}
	}
	f.runs = append(f.runs, content)

	if f.succeed == nil || f.succeed(content) {
		return nil
	}
	return fmt.Errorf("exit status 1")
}

func (f *fakeRunner) Output(_ context.Context, args ...string) (string, error) {
	if len(args) > 0 && args[0] == "--version" {
		return f.version, nil
	}
	if len(args) > 0 && args[0] == "freeze" {
		return "daiquiri==2.0.0\n", nil
	}
	return "", nil
}

func twoPackageLock() *lock.Lock {
	l := lock.New()
	l.Sources = []lock.Source{{Name: "pypi", URL: "https://pypi.org/simple", VerifySSL: true}}
	l.Default = map[string]lock.Entry{
		"alpha": {Version: "==1.0.0", Hashes: []string{"sha256:aaa"}, Index: "pypi"},
		"beta":  {Version: "==2.0.0", Hashes: []string{"sha256:bbb"}, Index: "pypi"},
	}
	return l
}

func TestInstallSuccess(t *testing.T) {
	runner := &fakeRunner{}
	err := Install(context.Background(), twoPackageLock(), Options{Runner: runner})
	if err != nil {
		t.Fatalf("Install() error = %v", err)
	}
	if len(runner.runs) != 2 {
		t.Fatalf("pip invoked %d times, want 2", len(runner.runs))
	}
	// Alphabetical queue order: alpha first.
	if !strings.Contains(runner.runs[0], "alpha==1.0.0") {
		t.Errorf("first invocation content:\n%s", runner.runs[0])
	}
	for _, args := range runner.args {
		if args[0] != "install" || args[1] != "--no-deps" {
			t.Errorf("pip args = %v, want install --no-deps prefix", args)
		}
	}
}

func TestInstallRetriesUntilOrderWorks(t *testing.T) {
	// Everything else refuses to install until alpha has gone in, simulating
	// a build dependency under --no-deps.
	alphaDone := false
	runner := &fakeRunner{succeed: func(content string) bool {
		if strings.Contains(content, "alpha") {
			alphaDone = true
			return true
		}
		return alphaDone
	}}

	l := twoPackageLock()
	// Force beta to the queue head.
	delete(l.Default, "alpha")
	l.Default["aaa-later"] = lock.Entry{Version: "==1.0.0", Hashes: []string{"sha256:ccc"}, Index: "pypi"}
	l.Default["alpha"] = lock.Entry{Version: "==1.0.0", Hashes: []string{"sha256:aaa"}, Index: "pypi"}

	if err := Install(context.Background(), l, Options{Runner: runner}); err != nil {
		t.Fatalf("Install() error = %v", err)
	}
}

func TestInstallTerminatesWhenNothingProgresses(t *testing.T) {
	runner := &fakeRunner{succeed: func(string) bool { return false }}

	err := Install(context.Background(), twoPackageLock(), Options{Runner: runner})
	if !errors.Is(err, errors.ErrCodePipInstall) {
		t.Fatalf("Install() error = %v, want PIP_INSTALL code", err)
	}
	if !strings.Contains(err.Error(), "alpha") && !strings.Contains(err.Error(), "beta") {
		t.Errorf("error does not name the failing package: %v", err)
	}
}

func TestInstallSourceFallback(t *testing.T) {
	// The entry pins no index and two sources exist, so each source is tried
	// in turn; only the second one works.
	runner := &fakeRunner{succeed: func(content string) bool {
		return strings.Contains(content, "https://internal.example.com/simple")
	}}

	l := lock.New()
	l.Sources = []lock.Source{
		{Name: "pypi", URL: "https://pypi.org/simple", VerifySSL: true},
		{Name: "internal", URL: "https://internal.example.com/simple", VerifySSL: true},
	}
	l.Default = map[string]lock.Entry{
		"gamma": {Version: "==3.0.0", Hashes: []string{"sha256:ddd"}},
	}

	if err := Install(context.Background(), l, Options{Runner: runner}); err != nil {
		t.Fatalf("Install() error = %v", err)
	}
	if len(runner.runs) != 2 {
		t.Fatalf("pip invoked %d times, want 2 (one per source)", len(runner.runs))
	}
	if !strings.Contains(runner.runs[0], "--index-url https://pypi.org/simple") {
		t.Errorf("first attempt content:\n%s", runner.runs[0])
	}
	if !strings.Contains(runner.runs[1], "--index-url https://internal.example.com/simple") {
		t.Errorf("second attempt content:\n%s", runner.runs[1])
	}
}

func TestInstallDevGroup(t *testing.T) {
	runner := &fakeRunner{}
	l := twoPackageLock()
	l.Develop = map[string]lock.Entry{
		"pytest": {Version: "==5.4.1", Hashes: []string{"sha256:eee"}, Index: "pypi"},
	}

	if err := Install(context.Background(), l, Options{Runner: runner}); err != nil {
		t.Fatal(err)
	}
	if len(runner.runs) != 2 {
		t.Errorf("dev group installed without Dev option: %d runs", len(runner.runs))
	}

	runner = &fakeRunner{}
	if err := Install(context.Background(), l, Options{Runner: runner, Dev: true}); err != nil {
		t.Fatal(err)
	}
	if len(runner.runs) != 3 {
		t.Errorf("pip invoked %d times with Dev, want 3", len(runner.runs))
	}
}

func TestResetTrailingFailures(t *testing.T) {
	queue := []item{
		{name: "a", failures: 0},
		{name: "b", failures: 2},
		{name: "c", failures: 0},
		{name: "d", failures: 1},
		{name: "e", failures: 3},
	}
	resetTrailingFailures(queue)

	// The scan stops at c, so b's stale counter stays. The enqueue policy
	// guarantees that situation never arises in practice.
	want := []int{0, 2, 0, 0, 0}
	for i, w := range want {
		if queue[i].failures != w {
			t.Errorf("queue[%d].failures = %d, want %d", i, queue[i].failures, w)
		}
	}
}

func TestInstallUnlocked(t *testing.T) {
	runner := &fakeRunner{}
	var logged []string
	opts := Options{
		Runner: runner,
		Logger: func(format string, args ...any) {
			logged = append(logged, fmt.Sprintf(format, args...))
		},
	}

	if err := InstallUnlocked(context.Background(), "requirements.txt", opts); err != nil {
		t.Fatalf("InstallUnlocked() error = %v", err)
	}
	args := runner.args[0]
	for _, a := range args {
		if a == "--no-deps" {
			t.Error("unlocked install must keep pip's dependency resolution enabled")
		}
	}
	found := false
	for _, line := range logged {
		if strings.Contains(line, "daiquiri==2.0.0") {
			found = true
		}
	}
	if !found {
		t.Errorf("pip freeze report missing from diagnostics: %v", logged)
	}
}

func TestVerifyPythonVersion(t *testing.T) {
	tests := []struct {
		name     string
		required string
		version  string
		wantCode errors.Code
	}{
		{"no requirement", "", "", ""},
		{"exact match", "3.9", "pip 23.0 from /usr/lib (python 3.9)", ""},
		{"patch release match", "3.9", "pip 23.0 from /usr/lib (python 3.9.1)", ""},
		{"mismatch", "3.9", "pip 23.0 from /usr/lib (python 3.11)", errors.ErrCodePythonVersionMismatch},
		{"unparseable output skips", "3.9", "something unexpected", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &fakeRunner{version: tt.version}
			err := VerifyPythonVersion(context.Background(), tt.required, Options{Runner: runner})
			if tt.wantCode == "" {
				if err != nil {
					t.Errorf("VerifyPythonVersion() error = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantCode) {
				t.Errorf("VerifyPythonVersion() error = %v, want %s", err, tt.wantCode)
			}
		})
	}
}
