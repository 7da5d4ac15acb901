package pathutil

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

func TestValidatePath(t *testing.T) {
	allowed := t.TempDir()
	other := t.TempDir()
	if err := os.MkdirAll(filepath.Join(allowed, "runs"), 0700); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	tests := []struct {
		name        string
		path        string
		dirs        []string
		outside     bool
		errContains string
	}{
		{name: "file in allowed dir", path: filepath.Join(allowed, "contacts.jsonl"), dirs: []string{allowed}},
		{name: "nested missing dirs", path: filepath.Join(allowed, "a", "b", "sir.png"), dirs: []string{allowed}},
		{name: "the allowed dir itself", path: allowed, dirs: []string{allowed}},
		{name: "second allowed dir", path: filepath.Join(other, "run.gif"), dirs: []string{allowed, other}},
		{name: "dot-dot escape", path: filepath.Join(allowed, "runs", "..", "..", "etc", "passwd"), dirs: []string{allowed}, outside: true},
		{name: "sibling dir", path: filepath.Join(other, "run.gif"), dirs: []string{allowed}, outside: true},
		{name: "prefix is not containment", path: allowed + "x" + string(os.PathSeparator) + "f", dirs: []string{allowed}, outside: true},
		{name: "empty", path: "", dirs: []string{allowed}, errContains: "empty"},
		{name: "null byte", path: filepath.Join(allowed, "a\x00b"), dirs: []string{allowed}, errContains: "null byte"},
		{name: "no dirs", path: filepath.Join(allowed, "f"), dirs: nil, errContains: "no allowed directories"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePath(tt.path, tt.dirs)
			switch {
			case tt.outside:
				if !errors.Is(err, ErrOutsideAllowed) {
					t.Errorf("ValidatePath() error = %v, want ErrOutsideAllowed", err)
				}
			case tt.errContains != "":
				if err == nil || !strings.Contains(err.Error(), tt.errContains) {
					t.Errorf("ValidatePath() error = %v, want %q", err, tt.errContains)
				}
			case err != nil:
				t.Errorf("ValidatePath() unexpected error: %v", err)
			}
		})
	}
}

func TestValidatePath_Symlinks(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on Windows")
	}

	allowed := t.TempDir()
	outside := t.TempDir()

	escape := filepath.Join(allowed, "escape")
	if err := os.Symlink(outside, escape); err != nil {
		t.Fatalf("symlink: %v", err)
	}
	if err := ValidatePath(filepath.Join(escape, "run.gif"), []string{allowed}); !errors.Is(err, ErrOutsideAllowed) {
		t.Errorf("symlink out of allowed dir: error = %v, want ErrOutsideAllowed", err)
	}

	real := filepath.Join(allowed, "real")
	if err := os.MkdirAll(real, 0700); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	link := filepath.Join(allowed, "link")
	if err := os.Symlink(real, link); err != nil {
		t.Fatalf("symlink: %v", err)
	}
	if err := ValidatePath(filepath.Join(link, "run.gif"), []string{allowed}); err != nil {
		t.Errorf("symlink inside allowed dir: %v", err)
	}
}

func TestRedactPath(t *testing.T) {
	tests := map[string]string{
		"":                              "",
		"/home/u/.crowdsim/crowdsim.db": ".../.crowdsim/crowdsim.db",
		"/a/b/c/d/e.txt":                ".../d/e.txt",
		"/file.txt":                     "file.txt",
		"file.txt":                      "file.txt",
		"/home/u/.crowdsim/":            ".../u/.crowdsim",
	}
	for in, want := range tests {
		if got := RedactPath(in); got != want {
			t.Errorf("RedactPath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestAllowedOutputDirs(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	root := t.TempDir()

	dirs, err := AllowedOutputDirs(root)
	if err != nil {
		t.Fatalf("AllowedOutputDirs() error = %v", err)
	}
	want := []string{filepath.Join(home, ".crowdsim"), filepath.Join(root, ".crowdsim")}
	if len(dirs) != 2 || dirs[0] != want[0] || dirs[1] != want[1] {
		t.Errorf("dirs = %v, want %v", dirs, want)
	}

	dirs, err = AllowedOutputDirs("")
	if err != nil || len(dirs) != 1 {
		t.Errorf("AllowedOutputDirs(\"\") = %v, %v; want only the home dir", dirs, err)
	}
}
