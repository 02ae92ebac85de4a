package cli

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	charmlog "github.com/charmbracelet/log"

	"github.com/piplock/piplock/pkg/lock"
)

// stubPip records every pip invocation and always succeeds.
type stubPip struct {
	runs   [][]string
	frozen string
}

func (s *stubPip) Run(_ context.Context, args ...string) error {
	s.runs = append(s.runs, args)
	return nil
}

func (s *stubPip) Output(_ context.Context, args ...string) (string, error) {
	return s.frozen, nil
}

// chdir changes into dir for the duration of the test, restoring the
// previous working directory on cleanup (t.Chdir needs Go 1.24+).
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(old); err != nil {
			t.Fatal(err)
		}
	})
}

func quietContext() context.Context {
	return withLogger(context.Background(), newLogger(io.Discard, charmlog.InfoLevel))
}

func TestRunInstallUnlockedFallback(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "requirements.txt")
	if err := os.WriteFile(path, []byte("daiquiri>=2.0\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	pip := &stubPip{frozen: "daiquiri==3.0.2\n"}
	var stderr bytes.Buffer

	err := runInstall(quietContext(), installConfig{
		Method: "requirements",
		Dir:    dir,
		Runner: pip,
		Stderr: &stderr,
	})
	if err != nil {
		t.Fatalf("runInstall() error = %v", err)
	}

	if !strings.Contains(stderr.String(), "installing without integrity verification") {
		t.Errorf("missing downgrade warning on stderr:\n%s", stderr.String())
	}
	if len(pip.runs) != 1 {
		t.Fatalf("pip install invocations = %d, want 1", len(pip.runs))
	}
	args := pip.runs[0]
	for _, arg := range args {
		if arg == "--no-deps" {
			t.Errorf("unlocked install must keep pip resolution enabled, got args %v", args)
		}
	}
	if len(args) != 3 || args[0] != "install" || args[1] != "-r" || args[2] != path {
		t.Errorf("pip args = %v, want [install -r %s]", args, path)
	}
}

func TestRunInstallLockedRequirements(t *testing.T) {
	dir := t.TempDir()
	content := "daiquiri==3.0.2 \\\n" +
		"    --hash=sha256:1e867e4817a46e7e964e0c9e98875f544954a578b64b4a39218fdc3b0b9bf7f6\n"
	if err := os.WriteFile(filepath.Join(dir, "requirements.txt"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	pip := &stubPip{}
	var stderr bytes.Buffer

	err := runInstall(quietContext(), installConfig{
		Method:  "requirements",
		Dir:     dir,
		Runner:  pip,
		Stderr:  &stderr,
		NoWrite: true,
		NoPrint: true,
	})
	if err != nil {
		t.Fatalf("runInstall() error = %v", err)
	}

	if stderr.String() != "" {
		t.Errorf("unexpected stderr output:\n%s", stderr.String())
	}
	if len(pip.runs) != 1 {
		t.Fatalf("pip install invocations = %d, want 1", len(pip.runs))
	}
	args := pip.runs[0]
	if len(args) < 2 || args[0] != "install" || args[1] != "--no-deps" {
		t.Errorf("pip args = %v, want an install --no-deps invocation", args)
	}
}

func TestEmitPipfileLock(t *testing.T) {
	l := lock.New()
	l.ContentHash = "abc"
	l.Sources = []lock.Source{{Name: "pypi", URL: "https://pypi.org/simple", VerifySSL: true}}
	l.Default["daiquiri"] = lock.Entry{Version: "==2.0.0", Hashes: []string{"sha256:aaa"}}

	t.Run("writes lock file", func(t *testing.T) {
		chdir(t, t.TempDir())
		if err := emitPipfileLock(l, false, true); err != nil {
			t.Fatalf("emitPipfileLock() error = %v", err)
		}
		data, err := os.ReadFile("Pipfile.lock")
		if err != nil {
			t.Fatalf("Pipfile.lock not written: %v", err)
		}
		for _, want := range []string{`"pipfile-spec": 6`, `"daiquiri"`, `"==2.0.0"`} {
			if !strings.Contains(string(data), want) {
				t.Errorf("Pipfile.lock missing %q:\n%s", want, data)
			}
		}
	})

	t.Run("write suppressed", func(t *testing.T) {
		chdir(t, t.TempDir())
		if err := emitPipfileLock(l, true, true); err != nil {
			t.Fatalf("emitPipfileLock() error = %v", err)
		}
		if _, err := os.Stat("Pipfile.lock"); !os.IsNotExist(err) {
			t.Error("Pipfile.lock should not have been written")
		}
	})
}
