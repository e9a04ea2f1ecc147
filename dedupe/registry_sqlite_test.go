package dedupe

import (
	"context"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/lesprgm/Roulette-sub000/dbopen"
)

func openRegistry(t *testing.T, opts Options) *SQLiteRegistry {
	t.Helper()
	db := dbopen.OpenMemory(t)
	r := NewSQLiteRegistry(db, opts)
	if err := r.EnsureTable(context.Background()); err != nil {
		t.Fatal(err)
	}
	return r
}

func TestSQLiteAdmitFreshThenDuplicate(t *testing.T) {
	ctx := context.Background()
	r := openRegistry(t, Options{})

	ok, err := r.Admit(ctx, "sig-1")
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("first admit should succeed")
	}

	ok, err = r.Admit(ctx, "sig-1")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("second admit of the same signature should be rejected")
	}
}

func TestSQLiteEvictionScenario(t *testing.T) {
	ctx := context.Background()
	r := openRegistry(t, Options{Capacity: 2})

	for _, sig := range []string{"a", "b", "c"} {
		if err := r.Remember(ctx, sig); err != nil {
			t.Fatal(err)
		}
		// Distinct seen_at timestamps keep eviction order unambiguous.
		time.Sleep(2 * time.Millisecond)
	}

	if seen, _ := r.Seen(ctx, "a"); seen {
		t.Fatal(`"a" should have been evicted`)
	}
	if seen, _ := r.Seen(ctx, "b"); !seen {
		t.Fatal(`"b" should still be present`)
	}
	if seen, _ := r.Seen(ctx, "c"); !seen {
		t.Fatal(`"c" should still be present`)
	}
}

func TestSQLiteSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	db := dbopen.OpenMemory(t)

	first := NewSQLiteRegistry(db, Options{})
	if err := first.EnsureTable(ctx); err != nil {
		t.Fatal(err)
	}
	if err := first.Remember(ctx, "persisted"); err != nil {
		t.Fatal(err)
	}

	// A second registry over the same database sees the earlier window.
	second := NewSQLiteRegistry(db, Options{})
	if seen, err := second.Seen(ctx, "persisted"); err != nil || !seen {
		t.Fatalf("seen=%v err=%v, want true", seen, err)
	}
}
