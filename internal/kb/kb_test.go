package kb

import (
	"reflect"
	"sync"
	"testing"
)

func sampleDocs() []Document {
	return []Document{
		{ID: "sync-setup", Title: "How to set up Firefox Sync", Topics: []string{"sync", "accounts"}},
		{ID: "clear-cookies", Title: "Clear cookies and site data", Topics: []string{"privacy"}},
		{ID: "private-browsing", Title: "Private Browsing", Topics: []string{"privacy"}},
	}
}

func TestStoreGet(t *testing.T) {
	s := NewStoreWith(sampleDocs())

	doc, ok := s.Get("sync-setup")
	if !ok {
		t.Fatal("expected sync-setup to be present")
	}
	if doc.Title != "How to set up Firefox Sync" {
		t.Errorf("unexpected title %q", doc.Title)
	}

	if _, ok := s.Get("missing"); ok {
		t.Error("expected missing id to be absent")
	}
}

func TestStoreEmpty(t *testing.T) {
	s := NewStore()
	if s.Len() != 0 {
		t.Errorf("empty store Len() = %d, want 0", s.Len())
	}
	if got := s.Topics(); len(got) != 0 {
		t.Errorf("empty store Topics() = %v, want empty", got)
	}
	if got := s.ByTopic("privacy"); len(got) != 0 {
		t.Errorf("empty store ByTopic() = %v, want empty", got)
	}
}

func TestStoreIDsSorted(t *testing.T) {
	s := NewStoreWith(sampleDocs())
	want := []string{"clear-cookies", "private-browsing", "sync-setup"}
	if got := s.IDs(); !reflect.DeepEqual(got, want) {
		t.Errorf("IDs() = %v, want %v", got, want)
	}
}

func TestStoreTopics(t *testing.T) {
	s := NewStoreWith(sampleDocs())

	want := []string{"accounts", "privacy", "sync"}
	if got := s.Topics(); !reflect.DeepEqual(got, want) {
		t.Errorf("Topics() = %v, want %v", got, want)
	}

	privacy := s.ByTopic("privacy")
	if len(privacy) != 2 {
		t.Fatalf("ByTopic(privacy) returned %d docs, want 2", len(privacy))
	}
	if privacy[0].ID != "clear-cookies" || privacy[1].ID != "private-browsing" {
		t.Errorf("ByTopic(privacy) order = %q, %q", privacy[0].ID, privacy[1].ID)
	}
}

func TestStoreSkipsEmptyAndDuplicateIDs(t *testing.T) {
	s := NewStoreWith([]Document{
		{ID: "", Title: "no id"},
		{ID: "a", Title: "first"},
		{ID: "a", Title: "second"},
	})

	if s.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", s.Len())
	}
	doc, _ := s.Get("a")
	if doc.Title != "first" {
		t.Errorf("duplicate id should keep first occurrence, got %q", doc.Title)
	}
}

func TestStoreReplace(t *testing.T) {
	s := NewStoreWith(sampleDocs())

	s.Replace([]Document{{ID: "only-one", Title: "Only One", Topics: []string{"misc"}}})

	if s.Len() != 1 {
		t.Fatalf("Len() after Replace = %d, want 1", s.Len())
	}
	if _, ok := s.Get("sync-setup"); ok {
		t.Error("old snapshot document still visible after Replace")
	}
	if _, ok := s.Get("only-one"); !ok {
		t.Error("new document missing after Replace")
	}
	if got := s.Topics(); !reflect.DeepEqual(got, []string{"misc"}) {
		t.Errorf("Topics() after Replace = %v, want [misc]", got)
	}
}

// Concurrent readers during Replace must always see a complete snapshot,
// never a partially built one.
func TestStoreConcurrentReplace(t *testing.T) {
	s := NewStoreWith(sampleDocs())

	var wg sync.WaitGroup
	stop := make(chan struct{})

	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				n := s.Len()
				if n != 1 && n != 3 {
					t.Errorf("observed torn snapshot with %d docs", n)
					return
				}
			}
		}()
	}

	for range 100 {
		s.Replace([]Document{{ID: "x", Title: "X"}})
		s.Replace(sampleDocs())
	}
	close(stop)
	wg.Wait()
}
