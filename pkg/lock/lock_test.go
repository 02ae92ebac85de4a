package lock

import (
	"bytes"
	"strings"
	"testing"

	"github.com/piplock/piplock/pkg/errors"
)

func TestSourceHost(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://pypi.org/simple", "pypi.org"},
		{"http://localhost:8080/simple", "localhost:8080"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			s := Source{URL: tt.url}
			if got := s.Host(); got != tt.want {
				t.Errorf("Host() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestEntryEditable(t *testing.T) {
	tests := []struct {
		name  string
		entry Entry
		want  bool
	}{
		{"pinned", Entry{Version: "==1.0.0"}, false},
		{"path non-editable", Entry{Location: PathLocation{Path: "."}}, false},
		{"path editable", Entry{Location: PathLocation{Path: ".", Editable: true}}, true},
		{"git", Entry{Location: GitLocation{URL: "https://example.com/repo.git"}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.entry.Editable(); got != tt.want {
				t.Errorf("Editable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSectionsBothDiscarded(t *testing.T) {
	l := New()
	_, err := l.Sections(SectionOptions{NoDefault: true, NoDev: true})
	if !errors.Is(err, errors.ErrCodeArguments) {
		t.Fatalf("Sections() error = %v, want ARGUMENTS code", err)
	}
}

func TestSectionsFiltering(t *testing.T) {
	l := New()
	l.Sources = []Source{{Name: "pypi", URL: "https://pypi.org/simple", VerifySSL: true}}
	l.Default["daiquiri"] = Entry{Version: "==2.0.0"}
	l.Develop["pytest"] = Entry{Version: "==5.3.1"}

	tests := []struct {
		name        string
		opts        SectionOptions
		wantSources int
		wantDefault int
		wantDevelop int
	}{
		{"everything", SectionOptions{}, 1, 1, 1},
		{"no dev", SectionOptions{NoDev: true}, 1, 1, 0},
		{"no default", SectionOptions{NoDefault: true}, 1, 0, 1},
		{"no indexes", SectionOptions{NoIndexes: true}, 0, 1, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := l.Sections(tt.opts)
			if err != nil {
				t.Fatalf("Sections() error = %v", err)
			}
			if len(got.Sources) != tt.wantSources {
				t.Errorf("Sources = %d, want %d", len(got.Sources), tt.wantSources)
			}
			if len(got.Default) != tt.wantDefault {
				t.Errorf("Default = %d, want %d", len(got.Default), tt.wantDefault)
			}
			if len(got.Develop) != tt.wantDevelop {
				t.Errorf("Develop = %d, want %d", len(got.Develop), tt.wantDevelop)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	t.Run("duplicate source names", func(t *testing.T) {
		l := New()
		l.Sources = []Source{
			{Name: "pypi", URL: "https://pypi.org/simple"},
			{Name: "pypi", URL: "https://mirror.example.com/simple"},
		}
		if err := l.Validate(); !errors.Is(err, errors.ErrCodeRequirements) {
			t.Errorf("Validate() error = %v, want REQUIREMENTS code", err)
		}
	})

	t.Run("unknown index reference", func(t *testing.T) {
		l := New()
		l.Sources = []Source{{Name: "pypi", URL: "https://pypi.org/simple"}}
		l.Default["daiquiri"] = Entry{Version: "==2.0.0", Index: "missing"}
		if err := l.Validate(); !errors.Is(err, errors.ErrCodeRequirements) {
			t.Errorf("Validate() error = %v, want REQUIREMENTS code", err)
		}
	})

	t.Run("valid", func(t *testing.T) {
		l := New()
		l.Sources = []Source{{Name: "pypi", URL: "https://pypi.org/simple"}}
		l.Default["daiquiri"] = Entry{Version: "==2.0.0", Index: "pypi"}
		if err := l.Validate(); err != nil {
			t.Errorf("Validate() error = %v, want nil", err)
		}
	})
}

func TestMarshalPipfileLock(t *testing.T) {
	l := New()
	l.ContentHash = "deadbeef"
	l.PythonVersion = "3.9"
	l.Sources = []Source{{Name: "pypi", URL: "https://pypi.org/simple", VerifySSL: true}}
	l.Default["daiquiri"] = Entry{
		Version: "==2.0.0",
		Hashes:  []string{"sha256:aaa", "sha256:bbb"},
		Index:   "pypi",
	}
	l.Develop["daiquiri-fork"] = Entry{
		Location: GitLocation{URL: "https://example.com/fork.git", Ref: "abc123"},
	}

	out, err := l.MarshalPipfileLock()
	if err != nil {
		t.Fatalf("MarshalPipfileLock() error = %v", err)
	}

	for _, want := range []string{
		`"pipfile-spec": 6`,
		`"sha256": "deadbeef"`,
		`"python_version": "3.9"`,
		`"url": "https://pypi.org/simple"`,
		`"version": "==2.0.0"`,
		`"git": "https://example.com/fork.git"`,
		`"ref": "abc123"`,
	} {
		if !strings.Contains(string(out), want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	// Serialization must be deterministic.
	again, err := l.MarshalPipfileLock()
	if err != nil {
		t.Fatalf("MarshalPipfileLock() error = %v", err)
	}
	if !bytes.Equal(out, again) {
		t.Error("repeated serialization produced different bytes")
	}
}

func TestSortedNames(t *testing.T) {
	entries := map[string]Entry{"b": {}, "a": {}, "c": {}}
	got := SortedNames(entries)
	want := []string{"a", "b", "c"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("SortedNames = %v, want %v", got, want)
		}
	}
}
