package backup

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeBackupFiles(t *testing.T, dir string, stamps ...string) {
	t.Helper()
	for _, s := range stamps {
		path := filepath.Join(dir, filePrefix+s+fileSuffix)
		if err := Write(path, &Archive{Version: FormatVersion}); err != nil {
			t.Fatalf("Write(%s) error = %v", path, err)
		}
	}
}

func TestListBackups_NewestFirst(t *testing.T) {
	dir := t.TempDir()
	writeBackupFiles(t, dir, "20260101-000000.000", "20260103-000000.000", "20260102-000000.000")
	// Unrelated files are ignored.
	os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0600)

	backups, err := ListBackups(dir)
	if err != nil {
		t.Fatalf("ListBackups() error = %v", err)
	}
	if len(backups) != 3 {
		t.Fatalf("ListBackups() returned %d, want 3", len(backups))
	}
	if filepath.Base(backups[0].Path) != filePrefix+"20260103-000000.000"+fileSuffix {
		t.Errorf("newest = %s", backups[0].Path)
	}
}

func TestListBackups_MissingDir(t *testing.T) {
	backups, err := ListBackups(filepath.Join(t.TempDir(), "nope"))
	if err != nil || backups != nil {
		t.Errorf("ListBackups() = %v, %v; want nil, nil", backups, err)
	}
}

func TestApplyRetention_Count(t *testing.T) {
	dir := t.TempDir()
	writeBackupFiles(t, dir, "20260101-000000.000", "20260102-000000.000", "20260103-000000.000")

	deleted, err := ApplyRetention(dir, &CountPolicy{MaxCount: 1})
	if err != nil {
		t.Fatalf("ApplyRetention() error = %v", err)
	}
	if len(deleted) != 2 {
		t.Errorf("deleted %d, want 2", len(deleted))
	}
	left, _ := ListBackups(dir)
	if len(left) != 1 || filepath.Base(left[0].Path) != filePrefix+"20260103-000000.000"+fileSuffix {
		t.Errorf("remaining = %+v", left)
	}
}

func TestAgePolicy(t *testing.T) {
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	p := &AgePolicy{MaxAge: 48 * time.Hour, now: func() time.Time { return now }}
	backups := []BackupInfo{
		{Path: "a", CreatedAt: now.Add(-time.Hour)},
		{Path: "b", CreatedAt: now.Add(-72 * time.Hour)},
	}
	keep := p.Apply(backups)
	if len(keep) != 1 || keep[0].Path != "a" {
		t.Errorf("Apply() = %+v, want only a", keep)
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{"720h", 720 * time.Hour, false},
		{"30d", 30 * 24 * time.Hour, false},
		{"2w", 14 * 24 * time.Hour, false},
		{"", 0, true},
		{"d", 0, true},
		{"5y", 0, true},
		{"-3d", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDuration(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseDuration(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseDuration(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestAnyPolicy_Union(t *testing.T) {
	now := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	backups := []BackupInfo{
		{Path: "c", CreatedAt: now.Add(-1 * time.Hour)},
		{Path: "b", CreatedAt: now.Add(-48 * time.Hour)},
		{Path: "a", CreatedAt: now.Add(-72 * time.Hour)},
	}
	policy := AnyPolicy{
		&CountPolicy{MaxCount: 1},
		&AgePolicy{MaxAge: 50 * time.Hour, now: func() time.Time { return now }},
	}
	keep := policy.Apply(backups)
	if len(keep) != 2 || keep[0].Path != "c" || keep[1].Path != "b" {
		t.Errorf("Apply() = %v, want [c b]", keep)
	}
	if got := (AnyPolicy{}).Apply(backups); len(got) != 0 {
		t.Errorf("empty AnyPolicy kept %d backups, want 0", len(got))
	}
}
