package cache

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/formvault/formvault/internal/core/domain"
)

func entryWithPages(id string, pageNumbers ...int) domain.DocumentCatalogEntry {
	entry := domain.DocumentCatalogEntry{
		DocumentID:   id,
		DocumentName: id + ".pdf",
		TotalPages:   len(pageNumbers),
		ProcessedAt:  time.Unix(1700000000, 0).UTC(),
	}
	for _, n := range pageNumbers {
		entry.Pages = append(entry.Pages, domain.PageAnalysis{
			PageNumber:      n,
			PageTitle:       fmt.Sprintf("page %d", n),
			PageType:        domain.PageTypeGovernmentForm,
			ConfidenceScore: 0.9,
		})
	}
	return entry
}

func TestStoreAndGetRoundTrip(t *testing.T) {
	c := New(Config{MaxEntries: 4, MaxMemoryBytes: 1 << 20})

	if ok := c.Store("doc-a", entryWithPages("doc-a", 1, 2)); !ok {
		t.Fatalf("store rejected entry that fits")
	}
	got, ok := c.Get("doc-a")
	if !ok {
		t.Fatalf("expected hit for doc-a")
	}
	if got.TotalPages != 2 || len(got.Pages) != 2 {
		t.Fatalf("unexpected entry: %+v", got)
	}

	page, ok := c.GetPage("doc-a", 2)
	if !ok || page.PageNumber != 2 {
		t.Fatalf("expected page 2, got %+v ok=%v", page, ok)
	}
	if _, ok := c.GetPage("doc-a", 3); ok {
		t.Fatalf("page 3 should be absent")
	}
}

func TestLRUEvictionRefreshedByGet(t *testing.T) {
	c := New(Config{MaxEntries: 2, MaxMemoryBytes: 1 << 20})

	c.Store("a", entryWithPages("a", 1))
	c.Store("b", entryWithPages("b", 1))

	if _, ok := c.Get("a"); !ok {
		t.Fatalf("expected a cached")
	}

	// The read refreshed a's recency, so the third insert evicts b.
	c.Store("d", entryWithPages("d", 1))

	if _, ok := c.Get("a"); !ok {
		t.Fatalf("a should have survived, it was freshest")
	}
	if _, ok := c.Get("b"); ok {
		t.Fatalf("b should have been evicted")
	}
	if _, ok := c.Get("d"); !ok {
		t.Fatalf("d should be cached")
	}
}

func TestBoundsHoldAfterEveryStore(t *testing.T) {
	cfg := Config{MaxEntries: 3, MaxMemoryBytes: 4096}
	c := New(cfg)

	for i := 0; i < 20; i++ {
		id := fmt.Sprintf("doc-%d", i)
		entry := entryWithPages(id, 1, 2, 3)
		entry.Pages[0].ExtractedValues = map[string]any{
			"form_number": strings.Repeat("x", i*20),
		}
		c.Store(id, entry)

		if c.Len() > cfg.MaxEntries {
			t.Fatalf("entry bound violated after store %d: %d", i, c.Len())
		}
		if c.MemoryUsageBytes() > cfg.MaxMemoryBytes {
			t.Fatalf("memory bound violated after store %d: %d", i, c.MemoryUsageBytes())
		}
	}
}

func TestOversizedEntryRejectedWithoutEviction(t *testing.T) {
	c := New(Config{MaxEntries: 10, MaxMemoryBytes: 2048})
	c.Store("small", entryWithPages("small", 1))

	big := entryWithPages("big", 1)
	big.Pages[0].ExtractedValues = map[string]any{
		"blob": strings.Repeat("y", 4096),
	}
	if ok := c.Store("big", big); ok {
		t.Fatalf("oversized entry must be rejected")
	}
	if _, ok := c.Get("small"); !ok {
		t.Fatalf("rejection must not evict existing entries")
	}
	if c.Len() != 1 {
		t.Fatalf("expected 1 entry, got %d", c.Len())
	}
}

func TestRemoveDropsPageIndexToo(t *testing.T) {
	c := New(Config{MaxEntries: 4, MaxMemoryBytes: 1 << 20})
	c.Store("doc", entryWithPages("doc", 1, 2))

	if !c.Remove("doc") {
		t.Fatalf("remove should report true for present entry")
	}
	if c.Remove("doc") {
		t.Fatalf("second remove should report false")
	}
	if _, ok := c.GetPage("doc", 1); ok {
		t.Fatalf("page index must not outlive its entry")
	}
	if c.MemoryUsageBytes() != 0 {
		t.Fatalf("memory accounting should return to zero, got %d", c.MemoryUsageBytes())
	}
}

func TestEvictionRemovesPageIndex(t *testing.T) {
	c := New(Config{MaxEntries: 1, MaxMemoryBytes: 1 << 20})
	c.Store("first", entryWithPages("first", 1))
	c.Store("second", entryWithPages("second", 1))

	if _, ok := c.GetPage("first", 1); ok {
		t.Fatalf("evicted entry must leave the page index")
	}
	if _, ok := c.GetPage("second", 1); !ok {
		t.Fatalf("surviving entry must stay indexed")
	}
}

func TestCleanupOlderThan(t *testing.T) {
	now := time.Unix(1700000000, 0)
	c := New(Config{MaxEntries: 10, MaxMemoryBytes: 1 << 20})
	c.SetClock(func() time.Time { return now })

	c.Store("stale", entryWithPages("stale", 1))
	now = now.Add(2 * time.Hour)
	c.Store("fresh", entryWithPages("fresh", 1))

	removed := c.CleanupOlderThan(time.Hour)
	if removed != 1 {
		t.Fatalf("expected 1 removal, got %d", removed)
	}
	if _, ok := c.Get("stale"); ok {
		t.Fatalf("stale entry should be gone")
	}
	if _, ok := c.Get("fresh"); !ok {
		t.Fatalf("fresh entry should remain")
	}
}

func TestShrinkTo(t *testing.T) {
	c := New(Config{MaxEntries: 10, MaxMemoryBytes: 1 << 20})
	for i := 0; i < 6; i++ {
		c.Store(fmt.Sprintf("doc-%d", i), entryWithPages(fmt.Sprintf("doc-%d", i), 1))
	}

	removed := c.ShrinkTo(3)
	if removed != 3 {
		t.Fatalf("expected 3 removals, got %d", removed)
	}
	if c.Len() != 3 {
		t.Fatalf("expected 3 entries, got %d", c.Len())
	}
	// Oldest go first.
	for _, id := range []string{"doc-0", "doc-1", "doc-2"} {
		if _, ok := c.Get(id); ok {
			t.Fatalf("%s should have been shrunk away", id)
		}
	}
}

func TestStatsSnapshot(t *testing.T) {
	c := New(Config{MaxEntries: 2, MaxMemoryBytes: 1 << 20})
	c.Store("a", entryWithPages("a", 1, 2))
	c.Get("a")
	c.Get("missing")
	c.Store("b", entryWithPages("b", 1))
	c.Store("c", entryWithPages("c", 1))

	stats := c.Stats()
	if stats.Hits != 1 || stats.Misses != 1 {
		t.Fatalf("unexpected hit/miss counts: %+v", stats)
	}
	if stats.Evictions != 1 {
		t.Fatalf("expected 1 eviction, got %d", stats.Evictions)
	}
	if stats.TotalDocuments != 2 {
		t.Fatalf("expected 2 documents, got %d", stats.TotalDocuments)
	}
	if stats.HitRate != 0.5 {
		t.Fatalf("expected hit rate 0.5, got %v", stats.HitRate)
	}
	if stats.MemoryUsageBytes <= 0 {
		t.Fatalf("expected positive memory usage")
	}
}
