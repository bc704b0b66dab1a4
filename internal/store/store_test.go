package store

import (
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewStore error: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSessionStore_PutGet(t *testing.T) {
	s := newTestStore(t)
	ss := s.Session("alice")

	type item struct {
		Name string `json:"name"`
		N    int    `json:"n"`
	}

	if err := ss.Put("things", []item{{Name: "a", N: 1}, {Name: "b", N: 2}}); err != nil {
		t.Fatalf("Put error: %v", err)
	}

	var got []item
	ok, err := ss.Get("things", &got)
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if !ok {
		t.Fatal("Get reported absent for a written key")
	}
	if len(got) != 2 || got[0].Name != "a" || got[1].N != 2 {
		t.Errorf("got = %+v", got)
	}
}

func TestSessionStore_AbsentIsExplicit(t *testing.T) {
	s := newTestStore(t)
	ss := s.Session("alice")

	var got []string
	ok, err := ss.Get("never-written", &got)
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if ok {
		t.Error("absent key reported as present")
	}
	if got != nil {
		t.Errorf("value touched for absent key: %v", got)
	}

	// An empty collection is present, not absent.
	if err := ss.Put("empty", []string{}); err != nil {
		t.Fatalf("Put error: %v", err)
	}
	ok, err = ss.Get("empty", &got)
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if !ok {
		t.Error("empty collection reported as absent")
	}
}

func TestSessionStore_Overwrite(t *testing.T) {
	s := newTestStore(t)
	ss := s.Session("alice")

	ss.Put("v", "first")
	ss.Put("v", "second")

	var got string
	if _, err := ss.Get("v", &got); err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if got != "second" {
		t.Errorf("got = %q, want second", got)
	}
}

func TestStore_SessionIsolation(t *testing.T) {
	s := newTestStore(t)

	if err := s.Session("alice").Put("memory", []string{"hers"}); err != nil {
		t.Fatalf("Put error: %v", err)
	}

	var got []string
	ok, err := s.Session("bob").Get("memory", &got)
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if ok {
		t.Errorf("bob read alice's state: %v", got)
	}
}

func TestStore_SessionIDs(t *testing.T) {
	s := newTestStore(t)

	ids, err := s.SessionIDs()
	if err != nil {
		t.Fatalf("SessionIDs error: %v", err)
	}
	if len(ids) != 0 {
		t.Errorf("ids = %v, want empty", ids)
	}

	s.Session("bob").Put("reminders", []string{})
	s.Session("alice").Put("reminders", []string{})
	s.Session("alice").Put("memory", []string{})

	ids, err = s.SessionIDs()
	if err != nil {
		t.Fatalf("SessionIDs error: %v", err)
	}
	if len(ids) != 2 || ids[0] != "alice" || ids[1] != "bob" {
		t.Errorf("ids = %v, want [alice bob]", ids)
	}
}

func TestStore_Maintain(t *testing.T) {
	s := newTestStore(t)
	s.Session("alice").Put("memory", []string{"x"})

	if err := s.Maintain(); err != nil {
		t.Fatalf("Maintain error: %v", err)
	}

	// State survives maintenance.
	var got []string
	ok, err := s.Session("alice").Get("memory", &got)
	if err != nil || !ok || len(got) != 1 {
		t.Errorf("state lost after Maintain: ok=%v err=%v got=%v", ok, err, got)
	}
}
