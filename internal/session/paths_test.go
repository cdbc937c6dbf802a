package session

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDir(t *testing.T) {
	home, _ := os.UserHomeDir()
	got := Dir("main")
	want := filepath.Join(home, ".wagate", "sessions", "main")
	if got != want {
		t.Errorf("Dir(main) = %q, want %q", got, want)
	}
}

func TestWorkBase(t *testing.T) {
	got := WorkBase("test")
	if !strings.HasSuffix(got, filepath.Join("sessions", "test", "engine")) {
		t.Errorf("WorkBase(test) = %q, want suffix sessions/test/engine", got)
	}
}

func TestMediaDir(t *testing.T) {
	got := MediaDir("test")
	if !strings.HasSuffix(got, filepath.Join("sessions", "test", "media")) {
		t.Errorf("MediaDir(test) = %q, want suffix sessions/test/media", got)
	}
}

func TestLockPath(t *testing.T) {
	got := LockPath("test")
	if !strings.HasSuffix(got, filepath.Join("sessions", "test", "LOCK")) {
		t.Errorf("LockPath(test) = %q, want suffix sessions/test/LOCK", got)
	}
}

func TestDBPathIsShared(t *testing.T) {
	got := DBPath()
	if !strings.HasSuffix(got, filepath.Join(".wagate", "wagate.db")) {
		t.Errorf("DBPath() = %q, want suffix .wagate/wagate.db", got)
	}
}
