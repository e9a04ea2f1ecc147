package dedupe

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/lesprgm/Roulette-sub000/document"
)

func TestSkeletonizeStripsContent(t *testing.T) {
	in := `<!-- banner --><div class="card">
		<script>alert("{")</script>
		<style>.card { color: red }</style>
		<h1>Hello World</h1>
		<p>Some prose.</p>
	</div>`
	got := Skeletonize(in)
	want := `<divclass="card"><h1></h1><p></p></div>`
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestSkeletonizeStripsLeadingAndTrailingText(t *testing.T) {
	got := Skeletonize(`Sure! Here is your page: <div><span>x</span></div> hope you like it`)
	want := `<div><span></span></div>`
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

// Two documents differing only in visible text and comments inside an
// identical markup skeleton must fingerprint identically.
func TestFingerprintLayoutTwins(t *testing.T) {
	a := &document.Document{Kind: document.KindPage,
		HTML: `<div class="hero"><h1>Moon Garden</h1><p>Grow flowers at night.</p></div>`}
	b := &document.Document{Kind: document.KindPage,
		HTML: `<!-- v2 --><div class="hero"><h1>Tide Clock</h1><p>Watch the sea breathe.</p></div>`}

	if Fingerprint(a) != Fingerprint(b) {
		t.Fatal("layout twins should share a fingerprint")
	}
}

func TestFingerprintDistinguishesStructure(t *testing.T) {
	a := &document.Document{Kind: document.KindPage, HTML: `<div><h1>x</h1></div>`}
	b := &document.Document{Kind: document.KindPage, HTML: `<div><h2>x</h2></div>`}
	if Fingerprint(a) == Fingerprint(b) {
		t.Fatal("different tag structure should fingerprint differently")
	}
}

func TestFingerprintSnippetIncludesCode(t *testing.T) {
	a := &document.Document{Kind: document.KindSnippet, HTML: `<div></div>`, JS: `spin()`}
	b := &document.Document{Kind: document.KindSnippet, HTML: `<div></div>`, JS: `bounce()`}
	if Fingerprint(a) == Fingerprint(b) {
		t.Fatal("JS differences should produce distinct fingerprints")
	}
}

func TestFingerprintIdempotent(t *testing.T) {
	d := &document.Document{Kind: document.KindPage, HTML: `<main><p>hi</p></main>`}
	if Fingerprint(d) != Fingerprint(d) {
		t.Fatal("fingerprint must be deterministic")
	}
}

func TestFingerprintFallbackKeyOrderInsensitive(t *testing.T) {
	// Unknown kinds canonicalize by sorted keys, so field order in the
	// source JSON cannot matter once unmarshaled into the same struct.
	a := &document.Document{Kind: "manifest", Title: "t", Category: "game"}
	b := &document.Document{Kind: "manifest", Category: "game", Title: "t"}
	if Fingerprint(a) != Fingerprint(b) {
		t.Fatal("canonicalized fallback should be order-insensitive")
	}
}

func TestRegistryEvictionScenario(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRegistry(Options{Capacity: 2})

	for _, sig := range []string{"a", "b", "c"} {
		if err := r.Remember(ctx, sig); err != nil {
			t.Fatal(err)
		}
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

func TestRegistryTTLExpiry(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRegistry(Options{Capacity: 10, TTL: time.Hour})

	now := time.Now()
	r.now = func() time.Time { return now }
	if err := r.Remember(ctx, "old"); err != nil {
		t.Fatal(err)
	}

	r.now = func() time.Time { return now.Add(2 * time.Hour) }
	if seen, _ := r.Seen(ctx, "old"); seen {
		t.Fatal("entry beyond TTL should not count as seen")
	}
}

// Two concurrent Admit calls for the same signature: exactly one wins.
func TestRegistryAdmitAtomic(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRegistry(Options{Capacity: 100})

	const workers = 32
	var wg sync.WaitGroup
	admitted := make(chan bool, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := r.Admit(ctx, "same-signature")
			if err != nil {
				t.Error(err)
				return
			}
			admitted <- ok
		}()
	}
	wg.Wait()
	close(admitted)

	var wins int
	for ok := range admitted {
		if ok {
			wins++
		}
	}
	if wins != 1 {
		t.Fatalf("got %d admissions, want exactly 1", wins)
	}
}
