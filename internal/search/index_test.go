package search

import (
	"path/filepath"
	"testing"

	"github.com/ChamsBouzaiene/ensemble/internal/session"
)

func newScene(t *testing.T) *session.Session {
	t.Helper()
	s := session.New("A jewel vanished from the castle vault.", "Detective")
	s.AddAgent("Guard", "👮")
	s.AddAgent("Witch", "🧙")
	s.AppendPublic(session.Entry{Speaker: "Guard", Text: "Nobody passed the vault door tonight."})
	s.AppendPublic(session.Entry{Speaker: "Witch", Text: "My potions are missing too."})
	s.AppendPrivate("Witch", session.Entry{Speaker: "Detective", Text: "Where is the jewel?"})
	s.AppendPrivate("Witch", session.Entry{Speaker: "Witch", Text: "The cat hid the jewel under the stairs."})
	return s
}

func newIndex(t *testing.T) *TranscriptIndex {
	t.Helper()
	x, err := NewTranscriptIndex("")
	if err != nil {
		t.Fatalf("NewTranscriptIndex: %v", err)
	}
	t.Cleanup(func() { _ = x.Close() })
	return x
}

func TestSearchAcrossChannels(t *testing.T) {
	x := newIndex(t)
	s := newScene(t)
	if err := x.IndexSession(s); err != nil {
		t.Fatal(err)
	}

	hits, err := x.Search(Query{Text: "jewel"})
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 2 {
		t.Fatalf("hits = %+v", hits)
	}
	for _, h := range hits {
		if h.Channel != session.Private("Witch") || h.SessionID != s.ID || h.Text == "" {
			t.Errorf("hit = %+v", h)
		}
	}

	hits, err = x.Search(Query{Text: "vault", Channel: session.Public})
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 || hits[0].Speaker != "Guard" || hits[0].EntryID != s.Public[0].ID {
		t.Errorf("public hits = %+v", hits)
	}

	hits, _ = x.Search(Query{Text: "jewel", Speaker: "Detective"})
	if len(hits) != 1 {
		t.Errorf("speaker filter hits = %+v", hits)
	}
}

func TestReindexReplacesEntries(t *testing.T) {
	x := newIndex(t)
	s := newScene(t)
	if err := x.IndexSession(s); err != nil {
		t.Fatal(err)
	}
	s.ClearAllPrivate()
	s.AppendPublic(session.Entry{Speaker: "Guard", Text: "The jewel is back!"})
	if err := x.IndexSession(s); err != nil {
		t.Fatal(err)
	}

	if n, _ := x.Count(); n != 3 {
		t.Errorf("Count() = %d, want 3", n)
	}
	hits, _ := x.Search(Query{Text: "jewel", SessionID: s.ID})
	if len(hits) != 1 || hits[0].Channel != session.Public {
		t.Errorf("hits after reindex = %+v", hits)
	}

	other := newScene(t)
	if err := x.IndexSession(other); err != nil {
		t.Fatal(err)
	}
	if err := x.RemoveSession(s.ID); err != nil {
		t.Fatal(err)
	}
	hits, _ = x.Search(Query{Text: "jewel"})
	for _, h := range hits {
		if h.SessionID == s.ID {
			t.Errorf("removed session still indexed: %+v", h)
		}
	}
}

func TestSearchRejectsEmptyText(t *testing.T) {
	if _, err := newIndex(t).Search(Query{Text: "  "}); err == nil {
		t.Error("empty search accepted")
	}
}

func TestIndexOnDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "transcripts.bleve")
	x, err := NewTranscriptIndex(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := x.IndexSession(newScene(t)); err != nil {
		t.Fatal(err)
	}
	x.Close()

	reopened, err := NewTranscriptIndex(path)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()
	if n, _ := reopened.Count(); n != 4 {
		t.Errorf("Count() after reopen = %d", n)
	}
}
