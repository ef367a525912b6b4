package classifier

import (
	"fmt"
	"testing"

	"github.com/terrava/agrocore/internal/route"
)

func TestMemoCacheEvictsOldest(t *testing.T) {
	c := newMemoCache(3)
	for i := 0; i < 5; i++ {
		c.put(fmt.Sprintf("q%d", i), &Result{Primary: route.GeneralAgent})
	}

	if c.len() != 3 {
		t.Fatalf("got %d entries, want 3", c.len())
	}
	if _, ok := c.get("q0"); ok {
		t.Error("q0 should have been evicted")
	}
	if _, ok := c.get("q1"); ok {
		t.Error("q1 should have been evicted")
	}
	if _, ok := c.get("q4"); !ok {
		t.Error("q4 should still be cached")
	}
}

func TestMemoCacheOverwriteKeepsSize(t *testing.T) {
	c := newMemoCache(2)
	c.put("a", &Result{Primary: route.WeatherAgent})
	c.put("a", &Result{Primary: route.GeneralAgent})
	c.put("b", &Result{Primary: route.FarmDataAgent})

	if c.len() != 2 {
		t.Fatalf("got %d entries, want 2", c.len())
	}
	got, _ := c.get("a")
	if got.Primary != route.GeneralAgent {
		t.Errorf("overwrite lost: got %q", got.Primary)
	}
}

func TestMemoKeyNormalization(t *testing.T) {
	a := memoKey("  Quelle MÉTÉO demain ?", map[string]string{"region": "Bretagne", "noise": "x"})
	b := memoKey("quelle météo demain ?", map[string]string{"noise": "y", "region": "bretagne"})
	if a != b {
		t.Errorf("keys differ:\n  %q\n  %q", a, b)
	}

	c := memoKey("quelle météo demain ?", map[string]string{"region": "Provence"})
	if a == c {
		t.Error("different region should key differently")
	}
}
