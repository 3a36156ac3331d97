package stats

import (
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "counts.db")
	s, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s, path
}

func TestCountAndSnapshot(t *testing.T) {
	s, _ := openTestStore(t)

	for i := 0; i < 3; i++ {
		if _, err := s.Count(0x244); err != nil {
			t.Fatal(err)
		}
	}
	total, err := s.Count(0x7E8)
	if err != nil {
		t.Fatal(err)
	}
	if total != 1 {
		t.Errorf("first count = %d, want 1", total)
	}

	snap, err := s.Snapshot()
	if err != nil {
		t.Fatal(err)
	}
	if snap[0x244] != 3 || snap[0x7E8] != 1 {
		t.Errorf("snapshot = %v", snap)
	}
}

func TestCountersSurviveReopen(t *testing.T) {
	s, path := openTestStore(t)
	s.Count(0x188)
	s.Count(0x188)
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	s2, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer s2.Close()
	snap, err := s2.Snapshot()
	if err != nil {
		t.Fatal(err)
	}
	if snap[0x188] != 2 {
		t.Errorf("count after reopen = %d, want 2", snap[0x188])
	}
}

func TestReset(t *testing.T) {
	s, _ := openTestStore(t)
	s.Count(0x123)
	if err := s.Reset(); err != nil {
		t.Fatal(err)
	}
	snap, err := s.Snapshot()
	if err != nil {
		t.Fatal(err)
	}
	if len(snap) != 0 {
		t.Errorf("snapshot after reset = %v", snap)
	}
}
